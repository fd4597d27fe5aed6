package service

import (
	"adaptive_exam_backend/internal/model"
	"adaptive_exam_backend/internal/repository"
	"adaptive_exam_backend/internal/util"
	"errors"

	"gorm.io/gorm"
)

type SubjectService struct {
	SubjectRepo *repository.SubjectRepository
}

func NewSubjectService(subjectRepo *repository.SubjectRepository) *SubjectService {
	return &SubjectService{SubjectRepo: subjectRepo}
}

type CreateSubjectInput struct {
	Name        string `json:"name" binding:"required"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (s *SubjectService) CreateSubject(input CreateSubjectInput, teacherID uint) (*model.Subject, error) {
	subject := model.Subject{
		Name:        input.Name,
		Code:        input.Code,
		Description: input.Description,
		CreatedByID: teacherID,
	}
	if err := s.SubjectRepo.Create(&subject); err != nil {
		return nil, err
	}
	return &subject, nil
}

func (s *SubjectService) ListSubjects() ([]model.Subject, error) {
	return s.SubjectRepo.List()
}

// Enroll is idempotent; enrolling twice is a no-op.
func (s *SubjectService) Enroll(subjectID, userID uint) error {
	if _, err := s.SubjectRepo.FindByID(subjectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrSubjectNotFound
		}
		return err
	}
	return s.SubjectRepo.Enroll(subjectID, userID)
}

func (s *SubjectService) ListEnrolled(userID uint) ([]model.Subject, error) {
	return s.SubjectRepo.ListEnrolled(userID)
}
