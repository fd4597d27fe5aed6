package service

import (
	"adaptive_exam_backend/internal/config"
	"adaptive_exam_backend/internal/model"
	"adaptive_exam_backend/internal/repository"
	"adaptive_exam_backend/internal/util"
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newQuestionService(t *testing.T, db *gorm.DB) *QuestionService {
	t.Helper()
	storage := &StorageService{Provider: &LocalStorageProvider{
		Config: &config.StorageConfig{LocalPath: t.TempDir()},
	}}
	return NewQuestionService(db, repository.NewQuestionRepository(db), storage)
}

func TestCreateQuestionRequiresOneCorrectChoice(t *testing.T) {
	f := newFixture(t)
	svc := newQuestionService(t, f.db)

	base := CreateQuestionInput{
		Subject:    "math",
		GradeLevel: "grade-7",
		Body:       "What is 2 + 2?",
	}

	none := base
	none.Choices = []ChoiceInput{{Text: "3"}, {Text: "4"}}
	_, err := svc.CreateQuestion(none, f.teacher.ID)
	require.Error(t, err)

	two := base
	two.Choices = []ChoiceInput{{Text: "3", IsCorrect: true}, {Text: "4", IsCorrect: true}}
	_, err = svc.CreateQuestion(two, f.teacher.ID)
	require.Error(t, err)

	one := base
	one.Choices = []ChoiceInput{{Text: "3"}, {Text: "4", IsCorrect: true}}
	q, err := svc.CreateQuestion(one, f.teacher.ID)
	require.NoError(t, err)
	assert.True(t, q.ShouldRescore)
	require.Len(t, q.Choices, 2)
	assert.Equal(t, 0, q.Choices[0].Order)
	assert.Equal(t, 1, q.Choices[1].Order)
}

func TestDeleteQuestionCascades(t *testing.T) {
	f := newFixture(t)
	svc := newQuestionService(t, f.db)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))

	require.NoError(t, svc.DeleteQuestion("q1", f.teacher.ID))

	var choices int64
	require.NoError(t, f.db.Model(&model.Choice{}).Where("question_id = ?", "q1").Count(&choices).Error)
	assert.EqualValues(t, 0, choices)

	err := svc.DeleteQuestion("q1", f.teacher.ID)
	require.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestDeleteQuestionScopedToOwner(t *testing.T) {
	f := newFixture(t)
	svc := newQuestionService(t, f.db)
	other := seedUser(t, f.db, "other-teacher@example.com", model.Teacher)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))

	err := svc.DeleteQuestion("q1", other.ID)
	require.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestImportCSV(t *testing.T) {
	f := newFixture(t)
	svc := newQuestionService(t, f.db)

	csvData := strings.Join([]string{
		"subject,gradeLevel,body,explanation,choiceA,choiceB,choiceC,choiceD,correctChoice,shouldRescore",
		`math,grade-7,What is 2 + 2?,Basic addition.,3,4,5,6,B,true`,
		`math,grade-7,What is 3 x 3?,Times table.,6,8,9,12,3,true`,
		`math,grade-7,Broken row,,a,b,c,d,Z,true`,
	}, "\n")

	result, err := svc.ImportCSV(context.Background(), strings.NewReader(csvData), "bank.csv", f.teacher.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, 2, result.Rows[0].Row)
	assert.NotEmpty(t, result.Rows[0].QuestionID)
	assert.Equal(t, 4, result.Rows[2].Row)
	assert.Contains(t, result.Rows[2].Error, "correctChoice")
	assert.NotEmpty(t, result.ArchiveURL)

	// the "3" label means choice C
	questions, err := svc.ListQuestions(f.teacher.ID, "math")
	require.NoError(t, err)
	require.Len(t, questions, 2)
	for _, q := range questions {
		if q.Body != "What is 3 x 3?" {
			continue
		}
		require.Len(t, q.Choices, 4)
		assert.False(t, q.Choices[0].IsCorrect)
		assert.True(t, q.Choices[2].IsCorrect)
		assert.Equal(t, "9", q.Choices[2].Text)
	}
}

func TestImportCSVArchivesUpload(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	storage := &StorageService{Provider: &LocalStorageProvider{
		Config: &config.StorageConfig{LocalPath: dir},
	}}
	svc := NewQuestionService(f.db, repository.NewQuestionRepository(f.db), storage)

	csvData := "subject,gradeLevel,body,explanation,choiceA,choiceB,choiceC,choiceD,correctChoice,shouldRescore\n" +
		"math,grade-7,What is 2 + 2?,,3,4,5,6,B,true\n"
	_, err := svc.ImportCSV(context.Background(), strings.NewReader(csvData), "bank.csv", f.teacher.ID)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "imports"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "bank.csv")
}

func TestImportCSVRejectsBadHeader(t *testing.T) {
	f := newFixture(t)
	svc := newQuestionService(t, f.db)

	_, err := svc.ImportCSV(context.Background(),
		strings.NewReader("subject,body\nmath,hi\n"), "bad.csv", f.teacher.ID)
	require.Error(t, err)

	questions, err := svc.ListQuestions(f.teacher.ID, "")
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func TestImportTemplateRoundTrips(t *testing.T) {
	f := newFixture(t)
	svc := newQuestionService(t, f.db)

	r := csv.NewReader(bytes.NewReader(svc.ImportTemplate()))
	header, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, csvImportHeader, header)

	// the sample row must import cleanly
	result, err := svc.ImportCSV(context.Background(), bytes.NewReader(svc.ImportTemplate()), "template.csv", f.teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Failed)
}

func TestParseCorrectLabel(t *testing.T) {
	for label, want := range map[string]int{
		"A": 0, "b": 1, "C": 2, "d": 3,
		"1": 0, "2": 1, "3": 2, "4": 3,
	} {
		got, err := parseCorrectLabel(label)
		require.NoError(t, err, "label %q", label)
		assert.Equal(t, want, got, "label %q", label)
	}

	for _, label := range []string{"", "E", "0", "5", "correct"} {
		_, err := parseCorrectLabel(label)
		require.Error(t, err, "label %q", label)
	}
}
