package repository

import (
	"adaptive_exam_backend/internal/model"

	"gorm.io/gorm"
)

type ExamAttemptRepository struct {
	DB *gorm.DB
}

func NewExamAttemptRepository(db *gorm.DB) *ExamAttemptRepository {
	return &ExamAttemptRepository{DB: db}
}

func (r *ExamAttemptRepository) Create(attempt *model.ExamAttempt) error {
	return r.DB.Create(attempt).Error
}

// FindActive returns the student's unfinished attempt for an exam, if any.
func (r *ExamAttemptRepository) FindActive(examID string, userID uint) (*model.ExamAttempt, error) {
	var attempt model.ExamAttempt
	err := r.DB.Where("exam_id = ? AND user_id = ? AND finished_at IS NULL", examID, userID).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *ExamAttemptRepository) ListByUser(userID uint) ([]model.ExamAttempt, error) {
	var attempts []model.ExamAttempt
	err := r.DB.Preload("Exam").Preload("Exam.SubjectRef").
		Where("user_id = ?", userID).
		Order("started_at desc").
		Find(&attempts).Error
	return attempts, err
}

func (r *ExamAttemptRepository) CountAnswers(attemptID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.AttemptAnswer{}).Where("attempt_id = ?", attemptID).Count(&count).Error
	return count, err
}
