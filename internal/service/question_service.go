package service

import (
	"adaptive_exam_backend/internal/model"
	"adaptive_exam_backend/internal/repository"
	"adaptive_exam_backend/internal/util"
	"adaptive_exam_backend/pkg/logger"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var csvImportHeader = []string{
	"subject", "gradeLevel", "body", "explanation",
	"choiceA", "choiceB", "choiceC", "choiceD",
	"correctChoice", "shouldRescore",
}

type QuestionService struct {
	DB           *gorm.DB
	QuestionRepo *repository.QuestionRepository
	Storage      *StorageService
}

func NewQuestionService(db *gorm.DB, questionRepo *repository.QuestionRepository, storage *StorageService) *QuestionService {
	return &QuestionService{DB: db, QuestionRepo: questionRepo, Storage: storage}
}

type ChoiceInput struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

type CreateQuestionInput struct {
	Subject     string        `json:"subject" binding:"required"`
	GradeLevel  string        `json:"gradeLevel" binding:"required"`
	Body        string        `json:"body" binding:"required"`
	Explanation string        `json:"explanation"`
	Choices     []ChoiceInput `json:"choices" binding:"required,min=2"`
}

func (s *QuestionService) CreateQuestion(input CreateQuestionInput, teacherID uint) (*model.Question, error) {
	correct := 0
	for _, c := range input.Choices {
		if c.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return nil, fmt.Errorf("question must have exactly one correct choice, got %d", correct)
	}

	question := model.Question{
		Subject:       input.Subject,
		GradeLevel:    input.GradeLevel,
		Body:          input.Body,
		Explanation:   input.Explanation,
		CreatedByID:   teacherID,
		ShouldRescore: true,
	}
	for i, c := range input.Choices {
		question.Choices = append(question.Choices, model.Choice{
			Text:      c.Text,
			IsCorrect: c.IsCorrect,
			Order:     i,
		})
	}

	if err := s.QuestionRepo.Create(&question); err != nil {
		return nil, err
	}
	return &question, nil
}

func (s *QuestionService) GetQuestion(id string, teacherID uint) (*model.Question, error) {
	q, err := s.QuestionRepo.FindOwned(id, teacherID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}
	return q, nil
}

func (s *QuestionService) ListQuestions(teacherID uint, subject string) ([]model.Question, error) {
	return s.QuestionRepo.ListByTeacher(teacherID, subject)
}

func (s *QuestionService) DeleteQuestion(id string, teacherID uint) error {
	err := s.QuestionRepo.Delete(id, teacherID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrQuestionNotFound
	}
	return err
}

// ImportRowResult reports one CSV line. Row numbers start at 2 because row 1
// is the header.
type ImportRowResult struct {
	Row        int    `json:"row"`
	QuestionID string `json:"questionId,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ImportResult struct {
	Created    int               `json:"created"`
	Failed     int               `json:"failed"`
	ArchiveURL string            `json:"archiveUrl,omitempty"`
	Rows       []ImportRowResult `json:"rows"`
}

// ImportCSV bulk-creates questions from an uploaded CSV. Bad rows are
// reported, not fatal; the raw upload is archived for audit.
func (s *QuestionService) ImportCSV(ctx context.Context, reader io.Reader, filename string, teacherID uint) (*ImportResult, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(raw))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateImportHeader(header); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	row := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.Failed++
			result.Rows = append(result.Rows, ImportRowResult{Row: row, Error: err.Error()})
			continue
		}

		input, err := parseImportRow(record)
		if err != nil {
			result.Failed++
			result.Rows = append(result.Rows, ImportRowResult{Row: row, Error: err.Error()})
			continue
		}

		q, err := s.CreateQuestion(*input, teacherID)
		if err != nil {
			result.Failed++
			result.Rows = append(result.Rows, ImportRowResult{Row: row, Error: err.Error()})
			continue
		}
		result.Created++
		result.Rows = append(result.Rows, ImportRowResult{Row: row, QuestionID: q.ID})
	}

	archiveName := fmt.Sprintf("imports/%d_%s", time.Now().Unix(), filename)
	url, err := s.Storage.Upload(ctx, archiveName, bytes.NewReader(raw), int64(len(raw)), "text/csv")
	if err != nil {
		// the import itself succeeded; losing the archive is only logged
		logger.Log.Warn("failed to archive question import",
			zap.String("filename", filename), zap.Error(err))
	} else {
		result.ArchiveURL = url
	}

	logger.Log.Info("question import finished",
		zap.Uint("teacherId", teacherID),
		zap.Int("created", result.Created),
		zap.Int("failed", result.Failed))
	return result, nil
}

func validateImportHeader(header []string) error {
	if len(header) < len(csvImportHeader) {
		return fmt.Errorf("CSV header has %d columns, expected %d", len(header), len(csvImportHeader))
	}
	for i, want := range csvImportHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return fmt.Errorf("CSV column %d must be %q, got %q", i+1, want, header[i])
		}
	}
	return nil
}

func parseImportRow(record []string) (*CreateQuestionInput, error) {
	if len(record) < len(csvImportHeader) {
		return nil, fmt.Errorf("row has %d columns, expected %d", len(record), len(csvImportHeader))
	}

	get := func(i int) string { return strings.TrimSpace(record[i]) }

	input := CreateQuestionInput{
		Subject:     get(0),
		GradeLevel:  get(1),
		Body:        get(2),
		Explanation: get(3),
	}
	if input.Subject == "" || input.GradeLevel == "" || input.Body == "" {
		return nil, errors.New("subject, gradeLevel and body are required")
	}

	correctIdx, err := parseCorrectLabel(get(8))
	if err != nil {
		return nil, err
	}

	for i := 0; i < 4; i++ {
		text := get(4 + i)
		if text == "" {
			return nil, fmt.Errorf("choice %c is empty", 'A'+i)
		}
		input.Choices = append(input.Choices, ChoiceInput{
			Text:      text,
			IsCorrect: i == correctIdx,
		})
	}
	return &input, nil
}

// parseCorrectLabel accepts A-D or 1-4.
func parseCorrectLabel(label string) (int, error) {
	switch strings.ToUpper(label) {
	case "A", "1":
		return 0, nil
	case "B", "2":
		return 1, nil
	case "C", "3":
		return 2, nil
	case "D", "4":
		return 3, nil
	}
	return 0, fmt.Errorf("correctChoice must be A-D or 1-4, got %q", label)
}

// ImportTemplate returns a CSV skeleton teachers can fill in.
func (s *QuestionService) ImportTemplate() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(csvImportHeader)
	w.Write([]string{
		"math", "grade-7", "What is 2 + 2?", "Basic addition.",
		"3", "4", "5", "6", "B", "true",
	})
	w.Flush()
	return buf.Bytes()
}

// ListPendingRescore returns questions flagged for difficulty (re)scoring.
func (s *QuestionService) ListPendingRescore(limit int) ([]model.Question, error) {
	var questions []model.Question
	err := s.DB.Where("should_rescore = ?", true).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&questions).Error
	return questions, err
}
