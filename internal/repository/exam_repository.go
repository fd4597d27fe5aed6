package repository

import (
	"adaptive_exam_backend/internal/model"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) Create(exam *model.Exam) error {
	return r.DB.Create(exam).Error
}

func (r *ExamRepository) FindByID(id string) (*model.Exam, error) {
	var exam model.Exam
	if err := r.DB.Preload("SubjectRef").First(&exam, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *ExamRepository) ListByTeacher(teacherID uint) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.Preload("SubjectRef").
		Where("created_by_id = ?", teacherID).
		Order("created_at desc").
		Find(&exams).Error
	return exams, err
}

// ListForStudent returns public exams plus exams in subjects the student is
// enrolled in.
func (r *ExamRepository) ListForStudent(userID uint) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.Preload("SubjectRef").
		Joins("LEFT JOIN subject_enrollments ON subject_enrollments.subject_id = exams.subject_id"+
			" AND subject_enrollments.user_id = ? AND subject_enrollments.deleted_at IS NULL", userID).
		Where("exams.is_public = ? OR subject_enrollments.id IS NOT NULL", true).
		Order("exams.created_at desc").
		Find(&exams).Error
	return exams, err
}

func (r *ExamRepository) CountLinks(examID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.ExamQuestion{}).Where("exam_id = ?", examID).Count(&count).Error
	return count, err
}

func (r *ExamRepository) GetLinkedQuestions(examID string) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.Preload("Choices", func(db *gorm.DB) *gorm.DB {
		return db.Order("choices.sort_order asc")
	}).
		Joins("JOIN exam_questions ON exam_questions.question_id = questions.id").
		Where("exam_questions.exam_id = ?", examID).
		Order("exam_questions.sort_order asc").
		Find(&questions).Error
	return questions, err
}
