package repository

import (
	"adaptive_exam_backend/internal/model"

	"gorm.io/gorm"
)

type SubjectRepository struct {
	DB *gorm.DB
}

func NewSubjectRepository(db *gorm.DB) *SubjectRepository {
	return &SubjectRepository{DB: db}
}

func (r *SubjectRepository) Create(subject *model.Subject) error {
	return r.DB.Create(subject).Error
}

func (r *SubjectRepository) FindByID(id uint) (*model.Subject, error) {
	var s model.Subject
	if err := r.DB.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubjectRepository) List() ([]model.Subject, error) {
	var subjects []model.Subject
	err := r.DB.Order("name asc").Find(&subjects).Error
	return subjects, err
}

func (r *SubjectRepository) ListByTeacher(teacherID uint) ([]model.Subject, error) {
	var subjects []model.Subject
	err := r.DB.Where("created_by_id = ?", teacherID).Order("name asc").Find(&subjects).Error
	return subjects, err
}

func (r *SubjectRepository) Enroll(subjectID, userID uint) error {
	var existing model.SubjectEnrollment
	err := r.DB.Where("subject_id = ? AND user_id = ?", subjectID, userID).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return r.DB.Create(&model.SubjectEnrollment{SubjectID: subjectID, UserID: userID}).Error
}

func (r *SubjectRepository) IsEnrolled(subjectID, userID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.SubjectEnrollment{}).
		Where("subject_id = ? AND user_id = ?", subjectID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *SubjectRepository) ListEnrolled(userID uint) ([]model.Subject, error) {
	var subjects []model.Subject
	err := r.DB.
		Joins("JOIN subject_enrollments ON subject_enrollments.subject_id = subjects.id").
		Where("subject_enrollments.user_id = ?", userID).
		Order("subjects.name asc").
		Find(&subjects).Error
	return subjects, err
}
