package repository

import (
	"adaptive_exam_backend/internal/model"

	"gorm.io/gorm"
)

type ExamAssignmentRepository struct {
	DB *gorm.DB
}

func NewExamAssignmentRepository(db *gorm.DB) *ExamAssignmentRepository {
	return &ExamAssignmentRepository{DB: db}
}

func (r *ExamAssignmentRepository) Create(assignment *model.ExamAssignment) error {
	return r.DB.Create(assignment).Error
}

func (r *ExamAssignmentRepository) Find(examID string, studentID uint) (*model.ExamAssignment, error) {
	var a model.ExamAssignment
	err := r.DB.Where("exam_id = ? AND student_id = ?", examID, studentID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByID is student-scoped so one student cannot start from another's
// assignment.
func (r *ExamAssignmentRepository) FindByID(id uint, studentID uint) (*model.ExamAssignment, error) {
	var a model.ExamAssignment
	err := r.DB.Where("id = ? AND student_id = ?", id, studentID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ExamAssignmentRepository) ListByStudent(studentID uint) ([]model.ExamAssignment, error) {
	var assignments []model.ExamAssignment
	err := r.DB.Preload("Exam").
		Where("student_id = ?", studentID).
		Order("created_at desc").
		Find(&assignments).Error
	return assignments, err
}

func (r *ExamAssignmentRepository) ListByExam(examID string) ([]model.ExamAssignment, error) {
	var assignments []model.ExamAssignment
	err := r.DB.Where("exam_id = ?", examID).
		Order("created_at asc").
		Find(&assignments).Error
	return assignments, err
}
