package service

import (
	"adaptive_exam_backend/internal/model"
	"adaptive_exam_backend/internal/repository"
	"adaptive_exam_backend/internal/util"
	"adaptive_exam_backend/pkg/logger"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ExamService struct {
	DB             *gorm.DB
	ExamRepo       *repository.ExamRepository
	AttemptRepo    *repository.ExamAttemptRepository
	SubjectRepo    *repository.SubjectRepository
	AssignmentRepo *repository.ExamAssignmentRepository
	Adaptive       *AdaptiveService
}

func NewExamService(db *gorm.DB, examRepo *repository.ExamRepository, attemptRepo *repository.ExamAttemptRepository, subjectRepo *repository.SubjectRepository, assignmentRepo *repository.ExamAssignmentRepository, adaptive *AdaptiveService) *ExamService {
	return &ExamService{
		DB:             db,
		ExamRepo:       examRepo,
		AttemptRepo:    attemptRepo,
		SubjectRepo:    subjectRepo,
		AssignmentRepo: assignmentRepo,
		Adaptive:       adaptive,
	}
}

type CreateExamInput struct {
	Title         string `json:"title" binding:"required"`
	IsAdaptive    bool   `json:"isAdaptive"`
	IsPublic      bool   `json:"isPublic"`
	QuestionCount int    `json:"questionCount"`
	DifficultyMin int    `json:"difficultyMin"`
	DifficultyMax int    `json:"difficultyMax"`
	SubjectID     *uint  `json:"subjectId"`
}

func (s *ExamService) CreateExam(input CreateExamInput, teacherID uint) (*model.Exam, error) {
	if input.SubjectID != nil {
		if _, err := s.SubjectRepo.FindByID(*input.SubjectID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, util.ErrSubjectNotFound
			}
			return nil, err
		}
	}

	exam := model.Exam{
		Title:         input.Title,
		IsAdaptive:    input.IsAdaptive,
		IsPublic:      input.IsPublic,
		QuestionCount: input.QuestionCount,
		DifficultyMin: input.DifficultyMin,
		DifficultyMax: input.DifficultyMax,
		SubjectID:     input.SubjectID,
		CreatedByID:   teacherID,
	}
	if exam.QuestionCount < 1 {
		exam.QuestionCount = DefaultTotalQuestions
	}
	if exam.DifficultyMin < 1 || exam.DifficultyMin > 5 {
		exam.DifficultyMin = 1
	}
	if exam.DifficultyMax < 1 || exam.DifficultyMax > 5 {
		exam.DifficultyMax = 5
	}
	if exam.DifficultyMin > exam.DifficultyMax {
		exam.DifficultyMin, exam.DifficultyMax = exam.DifficultyMax, exam.DifficultyMin
	}

	if err := s.ExamRepo.Create(&exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

func (s *ExamService) GetExam(id string) (*model.Exam, error) {
	exam, err := s.ExamRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	return exam, nil
}

func (s *ExamService) ListByTeacher(teacherID uint) ([]model.Exam, error) {
	return s.ExamRepo.ListByTeacher(teacherID)
}

func (s *ExamService) ListForStudent(userID uint) ([]model.Exam, error) {
	return s.ExamRepo.ListForStudent(userID)
}

// checkAccess decides whether a student may start an exam. Public exams and
// exams without a subject are open to everyone; subject-scoped exams need an
// enrollment or a live assignment.
func (s *ExamService) checkAccess(exam *model.Exam, userID uint) error {
	if exam.IsPublic || exam.SubjectID == nil {
		return nil
	}

	enrolled, err := s.SubjectRepo.IsEnrolled(*exam.SubjectID, userID)
	if err != nil {
		return err
	}
	if enrolled {
		return nil
	}

	assignment, err := s.AssignmentRepo.Find(exam.ID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrNotEnrolled
		}
		return err
	}
	if assignment.DueAt != nil && time.Now().After(*assignment.DueAt) {
		return util.ErrAssignmentExpired
	}
	return nil
}

// openAttempt creates the attempt row and presents the first question. The
// unique index on (exam_id, user_id, active) is the arbiter when two starts
// race: the loser's insert fails and surfaces ErrAttemptInProgress.
func (s *ExamService) openAttempt(exam *model.Exam, userID uint) (*AttemptProgress, error) {
	if _, err := s.AttemptRepo.FindActive(exam.ID, userID); err == nil {
		return nil, util.ErrAttemptInProgress
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	active := true
	attempt := model.ExamAttempt{
		ExamID:     exam.ID,
		UserID:     userID,
		Active:     &active,
		ThetaStart: InitialTheta,
		ThetaEnd:   InitialTheta,
	}
	if err := s.AttemptRepo.Create(&attempt); err != nil {
		if _, findErr := s.AttemptRepo.FindActive(exam.ID, userID); findErr == nil {
			return nil, util.ErrAttemptInProgress
		}
		return nil, err
	}

	logger.Log.Info("attempt started",
		zap.String("examId", exam.ID),
		zap.String("attemptId", attempt.ID),
		zap.Uint("userId", userID))

	return s.Adaptive.EnsureCurrentQuestion(attempt.ID, userID)
}

// StartAttempt opens a fresh attempt on an adaptive exam and presents its
// first question. Only one unfinished attempt per student and exam may exist.
func (s *ExamService) StartAttempt(examID string, userID uint) (*AttemptProgress, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsAdaptive {
		return nil, util.ErrExamNotAdaptive
	}
	if err := s.checkAccess(exam, userID); err != nil {
		return nil, err
	}
	return s.openAttempt(exam, userID)
}

func (s *ExamService) ListAttempts(userID uint) ([]model.ExamAttempt, error) {
	return s.AttemptRepo.ListByUser(userID)
}

type AssignExamInput struct {
	StudentIDs []uint     `json:"studentIds" binding:"required,min=1"`
	DueAt      *time.Time `json:"dueAt"`
}

// AssignExam grants the listed students access to the exam. Already-assigned
// students are skipped, so re-posting the same roster is harmless.
func (s *ExamService) AssignExam(examID string, teacherID uint, input AssignExamInput) (int, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return 0, err
	}
	if exam.CreatedByID != teacherID {
		return 0, util.ErrPermissionDenied
	}

	created := 0
	for _, studentID := range input.StudentIDs {
		if _, err := s.AssignmentRepo.Find(exam.ID, studentID); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, err
		}
		assignment := model.ExamAssignment{
			ExamID:       exam.ID,
			StudentID:    studentID,
			AssignedByID: teacherID,
			DueAt:        input.DueAt,
		}
		if err := s.AssignmentRepo.Create(&assignment); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *ExamService) ListAssignmentsForExam(examID string, teacherID uint) ([]model.ExamAssignment, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return nil, err
	}
	if exam.CreatedByID != teacherID {
		return nil, util.ErrPermissionDenied
	}
	return s.AssignmentRepo.ListByExam(exam.ID)
}

func (s *ExamService) ListAssignmentsForStudent(userID uint) ([]model.ExamAssignment, error) {
	return s.AssignmentRepo.ListByStudent(userID)
}

// StartAssignedAttempt starts an attempt through an assignment. The
// assignment itself is the access grant; no enrollment is consulted.
func (s *ExamService) StartAssignedAttempt(assignmentID uint, userID uint) (*AttemptProgress, error) {
	assignment, err := s.AssignmentRepo.FindByID(assignmentID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAssignmentNotFound
		}
		return nil, err
	}
	if assignment.DueAt != nil && time.Now().After(*assignment.DueAt) {
		return nil, util.ErrAssignmentExpired
	}

	exam, err := s.GetExam(assignment.ExamID)
	if err != nil {
		return nil, err
	}
	if !exam.IsAdaptive {
		return nil, util.ErrExamNotAdaptive
	}
	return s.openAttempt(exam, userID)
}

// EnsureStandardExamQuestions snapshots a fixed question list onto a
// non-adaptive exam. Idempotent: an exam that already has links is left alone
// unless force is set, in which case the links are rebuilt.
func (s *ExamService) EnsureStandardExamQuestions(examID string, teacherID uint, force bool) (int, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return 0, err
	}
	if exam.CreatedByID != teacherID {
		return 0, util.ErrPermissionDenied
	}
	if exam.IsAdaptive {
		return 0, util.ErrExamIsAdaptive
	}

	linked := 0
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.ExamQuestion{}).Where("exam_id = ?", exam.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 && !force {
			linked = int(count)
			return nil
		}

		query := tx.Model(&model.Question{}).Where("created_by_id = ?", exam.CreatedByID)
		if exam.SubjectRef != nil {
			query = query.Where("subject = ?", exam.SubjectRef.Name)
		}
		var questions []model.Question
		required := exam.QuestionCount
		if required < 1 {
			required = DefaultTotalQuestions
		}
		if err := query.Order("created_at asc, id asc").Limit(required).Find(&questions).Error; err != nil {
			return err
		}
		if len(questions) < required {
			return util.ErrNotEnoughQuestions
		}

		if count > 0 {
			// hard delete: the unique exam/question index must be free for relinking
			if err := tx.Unscoped().Where("exam_id = ?", exam.ID).Delete(&model.ExamQuestion{}).Error; err != nil {
				return err
			}
		}
		for i, q := range questions {
			link := model.ExamQuestion{ExamID: exam.ID, QuestionID: q.ID, Order: i}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		linked = len(questions)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return linked, nil
}
