package service

import (
	"adaptive_exam_backend/internal/config"
	"adaptive_exam_backend/internal/model"
	"adaptive_exam_backend/internal/util"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampTheta(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{0.68, 0.68},
		{0.675, 0.68},
		{0.674, 0.67},
		{0.005, 0.01},
		{-0.04, 0},
		{1.04, 1},
		{0, 0},
		{1, 1},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, ClampTheta(c.in), 1e-9, "ClampTheta(%v)", c.in)
	}
}

func TestThetaDelta(t *testing.T) {
	cases := []struct {
		correct    bool
		difficulty int
		want       float64
	}{
		{true, 3, 0.18},
		{true, 5, 0.08},
		{true, 1, 0.28},
		{false, 3, -0.18},
		{false, 5, -0.28},
		{false, 1, -0.08},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, ThetaDelta(c.correct, c.difficulty), 1e-9,
			"ThetaDelta(%v, %d)", c.correct, c.difficulty)
	}
}

func TestDifficultyFromTheta(t *testing.T) {
	assert.Equal(t, 1, DifficultyFromTheta(0))
	assert.Equal(t, 1, DifficultyFromTheta(0.1))
	assert.Equal(t, 3, DifficultyFromTheta(0.5))
	assert.Equal(t, 4, DifficultyFromTheta(0.68))
	assert.Equal(t, 5, DifficultyFromTheta(1))

	// monotonic and always inside the 1-5 band
	prev := 0
	for v := 0.0; v <= 1.0; v += 0.01 {
		d := DifficultyFromTheta(v)
		assert.GreaterOrEqual(t, d, 1)
		assert.LessOrEqual(t, d, 5)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestStartAttemptPresentsNearestDifficulty(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	for i := 1; i <= 5; i++ {
		seedQuestion(t, f.db, f.teacher.ID, string(rune('a'+i-1))+"-question",
			seedBase.Add(time.Duration(i)*time.Minute), intPtr(i))
	}

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, progress.Status)
	require.NotNil(t, progress.Question)
	// initial theta 0.5 targets difficulty 3
	assert.Equal(t, 3, progress.Question.Difficulty)
	assert.Equal(t, 5, progress.TotalQuestions)
	assert.Equal(t, 0, progress.AnsweredCount)
	assert.InDelta(t, 0.5, progress.Theta, 1e-9)
}

func TestAllCorrectRunCompletesWithRisingTheta(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 3, 1, 5)
	for i := 0; i < 3; i++ {
		seedQuestion(t, f.db, f.teacher.ID, []string{"q1", "q2", "q3"}[i],
			seedBase.Add(time.Duration(i)*time.Minute), intPtr(3))
	}

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	attemptID := progress.Attempt.ID

	r1 := answerCurrent(t, f, attemptID, f.student.ID, true)
	assert.True(t, r1.IsCorrect)
	assert.InDelta(t, 0.68, r1.ThetaAfter, 1e-9)
	assert.Equal(t, StatusInProgress, r1.Status)

	r2 := answerCurrent(t, f, attemptID, f.student.ID, true)
	assert.InDelta(t, 0.86, r2.ThetaAfter, 1e-9)

	r3 := answerCurrent(t, f, attemptID, f.student.ID, true)
	// 0.86 + 0.18 clamps to 1.00
	assert.InDelta(t, 1.0, r3.ThetaAfter, 1e-9)
	assert.Equal(t, StatusCompleted, r3.Status)
	assert.Nil(t, r3.Question)
	assert.Equal(t, 3, r3.Score)
	assert.Equal(t, 3, r3.AnsweredCount)

	attempt := loadAttempt(t, f.db, attemptID)
	require.NotNil(t, attempt.FinishedAt)
	assert.Nil(t, attempt.CurrentQuestionID)
	assert.Equal(t, 3, attempt.Score)
	assert.InDelta(t, 1.0, attempt.ThetaEnd, 1e-9)
	require.Len(t, attempt.Answers, 3)
	assert.InDelta(t, 0.5, attempt.Answers[0].ThetaBefore, 1e-9)
	assert.InDelta(t, 0.68, attempt.Answers[0].ThetaAfter, 1e-9)
	assert.InDelta(t, 0.86, attempt.Answers[1].ThetaAfter, 1e-9)
}

func TestWrongAnswersClampThetaAtZero(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 3, 1, 5)
	for i := 0; i < 3; i++ {
		seedQuestion(t, f.db, f.teacher.ID, []string{"q1", "q2", "q3"}[i],
			seedBase.Add(time.Duration(i)*time.Minute), intPtr(3))
	}

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	attemptID := progress.Attempt.ID

	r1 := answerCurrent(t, f, attemptID, f.student.ID, false)
	assert.InDelta(t, 0.32, r1.ThetaAfter, 1e-9)
	r2 := answerCurrent(t, f, attemptID, f.student.ID, false)
	assert.InDelta(t, 0.14, r2.ThetaAfter, 1e-9)
	r3 := answerCurrent(t, f, attemptID, f.student.ID, false)
	assert.InDelta(t, 0.0, r3.ThetaAfter, 1e-9)
	assert.Equal(t, StatusCompleted, r3.Status)
	assert.Equal(t, 0, r3.Score)
}

func TestPoolExhaustionFinishesEarly(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 10, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))
	seedQuestion(t, f.db, f.teacher.ID, "q2", seedBase.Add(time.Minute), intPtr(3))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	attemptID := progress.Attempt.ID

	answerCurrent(t, f, attemptID, f.student.ID, true)
	r2 := answerCurrent(t, f, attemptID, f.student.ID, true)

	assert.Equal(t, StatusCompleted, r2.Status)
	assert.Equal(t, 2, r2.AnsweredCount)
	attempt := loadAttempt(t, f.db, attemptID)
	require.NotNil(t, attempt.FinishedAt)
}

func TestEmptyPoolAtStartCompletesImmediately(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 10, 1, 5)

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, progress.Status)
	assert.Equal(t, 0, progress.AnsweredCount)
}

func TestEnsureCurrentQuestionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))
	seedQuestion(t, f.db, f.teacher.ID, "q2", seedBase.Add(time.Minute), intPtr(3))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	attemptID := progress.Attempt.ID
	first := progress.Question.ID

	for i := 0; i < 3; i++ {
		again, err := f.adaptive.EnsureCurrentQuestion(attemptID, f.student.ID)
		require.NoError(t, err)
		require.NotNil(t, again.Question)
		assert.Equal(t, first, again.Question.ID)
	}
}

func TestSelectorPrefersOlderQuestionOnTie(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "newer", seedBase.Add(time.Hour), intPtr(3))
	seedQuestion(t, f.db, f.teacher.ID, "older", seedBase, intPtr(3))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, "older", progress.Question.ID)
}

func TestSelectorFollowsRisingTheta(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 3, 1, 5)
	ids := []string{"d1", "d2", "d3", "d4", "d5"}
	for i, id := range ids {
		seedQuestion(t, f.db, f.teacher.ID, id,
			seedBase.Add(time.Duration(i)*time.Minute), intPtr(i+1))
	}

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	attemptID := progress.Attempt.ID
	assert.Equal(t, "d3", progress.Question.ID)

	// theta 0.68 targets difficulty 4
	r1 := answerCurrent(t, f, attemptID, f.student.ID, true)
	assert.Equal(t, "d4", r1.Question.ID)

	// theta 0.81 still targets 4; with d4 spent, d5 is closest
	r2 := answerCurrent(t, f, attemptID, f.student.ID, true)
	assert.InDelta(t, 0.81, r2.ThetaAfter, 1e-9)
	assert.Equal(t, "d5", r2.Question.ID)
}

func TestDifficultyBandFiltersCandidates(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 2)
	seedQuestion(t, f.db, f.teacher.ID, "hard", seedBase, intPtr(3))
	seedQuestion(t, f.db, f.teacher.ID, "easy", seedBase.Add(time.Minute), intPtr(2))

	// target is 3, but the band excludes the difficulty-3 question
	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, "easy", progress.Question.ID)
}

func TestDifficultyBandFallsBackWhenEmpty(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 2)
	seedQuestion(t, f.db, f.teacher.ID, "only", seedBase, intPtr(5))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	require.NotNil(t, progress.Question)
	assert.Equal(t, "only", progress.Question.ID)
}

func TestUnscoredQuestionPassesBandAndDefaultsToThree(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 2)
	seedQuestion(t, f.db, f.teacher.ID, "unscored", seedBase, nil)

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	require.NotNil(t, progress.Question)
	assert.Equal(t, "unscored", progress.Question.ID)
	assert.Equal(t, 3, progress.Question.Difficulty)

	// an unscored question moves theta as difficulty 3 would
	r := answerCurrent(t, f, progress.Attempt.ID, f.student.ID, true)
	assert.InDelta(t, 0.68, r.ThetaAfter, 1e-9)
}

func TestRecordAnswerQuestionMismatch(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))
	stale := seedQuestion(t, f.db, f.teacher.ID, "q2", seedBase.Add(time.Minute), intPtr(5))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	attemptID := progress.Attempt.ID
	require.NotEqual(t, stale.ID, progress.Question.ID)

	_, err = f.adaptive.RecordAnswer(RecordAnswerInput{
		AttemptID:  attemptID,
		UserID:     f.student.ID,
		QuestionID: stale.ID,
		ChoiceID:   pickChoice(t, f.db, stale.ID, true),
	})
	require.ErrorIs(t, err, util.ErrQuestionMismatch)

	// nothing moved
	attempt := loadAttempt(t, f.db, attemptID)
	assert.Empty(t, attempt.Answers)
	assert.Equal(t, 0, attempt.Score)
	require.NotNil(t, attempt.CurrentQuestionID)
	assert.Equal(t, progress.Question.ID, *attempt.CurrentQuestionID)
}

func TestRecordAnswerChoiceNotFound(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))
	other := seedQuestion(t, f.db, f.teacher.ID, "q2", seedBase.Add(time.Minute), intPtr(5))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)

	_, err = f.adaptive.RecordAnswer(RecordAnswerInput{
		AttemptID:  progress.Attempt.ID,
		UserID:     f.student.ID,
		QuestionID: progress.Question.ID,
		ChoiceID:   pickChoice(t, f.db, other.ID, true), // belongs to another question
	})
	require.ErrorIs(t, err, util.ErrChoiceNotFound)

	attempt := loadAttempt(t, f.db, progress.Attempt.ID)
	assert.Empty(t, attempt.Answers)
}

func TestNoAnswersAfterFinish(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	attemptID := progress.Attempt.ID
	questionID := progress.Question.ID

	_, err = f.adaptive.FinishAttempt(attemptID, f.student.ID)
	require.NoError(t, err)

	_, err = f.adaptive.RecordAnswer(RecordAnswerInput{
		AttemptID:  attemptID,
		UserID:     f.student.ID,
		QuestionID: questionID,
		ChoiceID:   pickChoice(t, f.db, questionID, true),
	})
	require.ErrorIs(t, err, util.ErrAttemptAlreadyFinished)
}

func TestFinishAttemptIsIdempotent(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	attemptID := progress.Attempt.ID

	first, err := f.adaptive.FinishAttempt(attemptID, f.student.ID)
	require.NoError(t, err)
	require.NotNil(t, first.FinishedAt)
	assert.Nil(t, first.CurrentQuestionID)

	second, err := f.adaptive.FinishAttempt(attemptID, f.student.ID)
	require.NoError(t, err)
	assert.True(t, first.FinishedAt.Equal(*second.FinishedAt))

	// ensure after finish reports completion without reopening
	again, err := f.adaptive.EnsureCurrentQuestion(attemptID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)
}

func TestAttemptScopedToOwner(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))
	intruder := seedUser(t, f.db, "other@example.com", model.Student)

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)

	_, err = f.adaptive.EnsureCurrentQuestion(progress.Attempt.ID, intruder.ID)
	require.ErrorIs(t, err, util.ErrAttemptNotFound)

	_, err = f.adaptive.FinishAttempt(progress.Attempt.ID, intruder.ID)
	require.ErrorIs(t, err, util.ErrAttemptNotFound)
}

func TestQuestionViewHidesCorrectness(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)

	q := progress.Question
	require.Len(t, q.Choices, 4)
	for i, c := range q.Choices {
		assert.NotEmpty(t, c.ID)
		// choices come back in authored order with no correctness flag
		assert.Contains(t, c.Text, fmt.Sprintf("choice %d", i))
	}
}

func TestConcurrentAnswersSingleWinner(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))
	seedQuestion(t, f.db, f.teacher.ID, "q2", seedBase.Add(time.Minute), intPtr(3))
	seedQuestion(t, f.db, f.teacher.ID, "q3", seedBase.Add(2*time.Minute), intPtr(3))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	attemptID := progress.Attempt.ID
	questionID := progress.Question.ID

	correctID := pickChoice(t, f.db, questionID, true)
	wrongID := pickChoice(t, f.db, questionID, false)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, choiceID := range []string{correctID, wrongID} {
		wg.Add(1)
		go func(i int, choiceID string) {
			defer wg.Done()
			_, errs[i] = f.adaptive.RecordAnswer(RecordAnswerInput{
				AttemptID:  attemptID,
				UserID:     f.student.ID,
				QuestionID: questionID,
				ChoiceID:   choiceID,
			})
		}(i, choiceID)
	}
	wg.Wait()

	// exactly one submission wins
	require.True(t, (errs[0] == nil) != (errs[1] == nil),
		"expected one success and one failure, got %v and %v", errs[0], errs[1])
	var lost error
	if errs[0] != nil {
		lost = errs[0]
	} else {
		lost = errs[1]
	}
	assert.ErrorIs(t, lost, util.ErrQuestionMismatch)

	attempt := loadAttempt(t, f.db, attemptID)
	require.Len(t, attempt.Answers, 1)
	assert.Equal(t, questionID, attempt.Answers[0].QuestionID)
	assert.LessOrEqual(t, attempt.Score, 1)
}

func TestConfigHotSwapConcurrentWithReads(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 5, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)

	// reload swaps tunables while handlers keep reading them
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			f.adaptive.SetConfig(config.AdaptiveConfig{
				DefaultQuestionCount: 10 + i%3,
				CandidateWindow:      20 + i%7,
			})
		}
	}()

	for i := 0; i < 50; i++ {
		again, err := f.adaptive.EnsureCurrentQuestion(progress.Attempt.ID, f.student.ID)
		require.NoError(t, err)
		require.NotNil(t, again.Question)
	}
	<-done
}

func TestFormatAttemptSummary(t *testing.T) {
	f := newFixture(t)
	exam := f.adaptiveExam(t, 2, 1, 5)
	seedQuestion(t, f.db, f.teacher.ID, "q1", seedBase, intPtr(3))
	seedQuestion(t, f.db, f.teacher.ID, "q2", seedBase.Add(time.Minute), intPtr(3))

	progress, err := f.exams.StartAttempt(exam.ID, f.student.ID)
	require.NoError(t, err)
	attemptID := progress.Attempt.ID

	answerCurrent(t, f, attemptID, f.student.ID, true)
	answerCurrent(t, f, attemptID, f.student.ID, false)

	attempt, err := f.adaptive.FinishAttempt(attemptID, f.student.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Preload("Exam").Preload("Answers").
		First(attempt, "id = ?", attemptID).Error)

	summary := f.adaptive.FormatAttemptSummary(attempt)
	assert.Equal(t, attemptID, summary.AttemptID)
	assert.Equal(t, 1, summary.Score)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Answered)
	assert.InDelta(t, 0.5, summary.ThetaStart, 1e-9)
	assert.InDelta(t, 0.5, summary.ThetaEnd, 1e-9) // +0.18 then -0.18
	assert.False(t, summary.FinishedAt.IsZero())
}
