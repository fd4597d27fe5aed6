package service

import (
	"adaptive_exam_backend/internal/config"
	"adaptive_exam_backend/internal/model"
	"adaptive_exam_backend/internal/repository"
	"adaptive_exam_backend/pkg/database"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database. A single connection keeps
// concurrent transactions serialized the way the production database would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

type fixture struct {
	db       *gorm.DB
	adaptive *AdaptiveService
	exams    *ExamService
	subjects *SubjectService
	teacher  *model.User
	student  *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	adaptive := NewAdaptiveService(db, config.AdaptiveConfig{})
	subjectRepo := repository.NewSubjectRepository(db)

	f := &fixture{
		db:       db,
		adaptive: adaptive,
		exams: NewExamService(db,
			repository.NewExamRepository(db),
			repository.NewExamAttemptRepository(db),
			subjectRepo,
			repository.NewExamAssignmentRepository(db),
			adaptive),
		subjects: NewSubjectService(subjectRepo),
	}
	f.teacher = seedUser(t, db, "teacher@example.com", model.Teacher)
	f.student = seedUser(t, db, "student@example.com", model.Student)
	return f
}

func seedUser(t *testing.T, db *gorm.DB, email string, role model.UserRole) *model.User {
	t.Helper()
	user := &model.User{
		Name:     strings.Split(email, "@")[0],
		Email:    email,
		Password: "x",
		Role:     role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func (f *fixture) adaptiveExam(t *testing.T, questionCount, difficultyMin, difficultyMax int) *model.Exam {
	t.Helper()
	exam := &model.Exam{
		Title:         "Adaptive exam",
		IsAdaptive:    true,
		QuestionCount: questionCount,
		DifficultyMin: difficultyMin,
		DifficultyMax: difficultyMax,
		CreatedByID:   f.teacher.ID,
	}
	require.NoError(t, f.db.Create(exam).Error)
	return exam
}

func intPtr(v int) *int { return &v }

// seedQuestion creates a four-choice question with choice B correct. The id
// and creation time are fixed so selection order is deterministic.
func seedQuestion(t *testing.T, db *gorm.DB, teacherID uint, id string, createdAt time.Time, difficulty *int) *model.Question {
	t.Helper()

	q := &model.Question{
		Subject:     "math",
		GradeLevel:  "grade-7",
		Body:        "Question " + id,
		CreatedByID: teacherID,
	}
	q.ID = id
	q.CreatedAt = createdAt
	for i := 0; i < 4; i++ {
		q.Choices = append(q.Choices, model.Choice{
			Text:      fmt.Sprintf("%s choice %d", id, i),
			IsCorrect: i == 1,
			Order:     i,
		})
	}
	require.NoError(t, db.Create(q).Error)

	if difficulty != nil {
		require.NoError(t, db.Create(&model.AIScore{
			QuestionID: id,
			Difficulty: difficulty,
			Reason:     "seeded",
			ModelName:  "seed",
		}).Error)
	}
	return q
}

func pickChoice(t *testing.T, db *gorm.DB, questionID string, correct bool) string {
	t.Helper()
	var c model.Choice
	require.NoError(t, db.
		Where("question_id = ? AND is_correct = ?", questionID, correct).
		Order("sort_order asc").
		First(&c).Error)
	return c.ID
}

// answerCurrent submits an answer against the attempt's pending question.
func answerCurrent(t *testing.T, f *fixture, attemptID string, userID uint, correct bool) *AnswerResult {
	t.Helper()

	progress, err := f.adaptive.EnsureCurrentQuestion(attemptID, userID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, progress.Status)
	require.NotNil(t, progress.Question)

	result, err := f.adaptive.RecordAnswer(RecordAnswerInput{
		AttemptID:  attemptID,
		UserID:     userID,
		QuestionID: progress.Question.ID,
		ChoiceID:   pickChoice(t, f.db, progress.Question.ID, correct),
	})
	require.NoError(t, err)
	return result
}

func loadAttempt(t *testing.T, db *gorm.DB, attemptID string) *model.ExamAttempt {
	t.Helper()
	var attempt model.ExamAttempt
	require.NoError(t, db.Preload("Answers", func(db *gorm.DB) *gorm.DB {
		return db.Order("attempt_answers.id asc")
	}).First(&attempt, "id = ?", attemptID).Error)
	return &attempt
}

var seedBase = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
