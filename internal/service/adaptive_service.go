package service

import (
	"adaptive_exam_backend/internal/config"
	"adaptive_exam_backend/internal/model"
	"adaptive_exam_backend/internal/repository"
	"adaptive_exam_backend/internal/util"
	"adaptive_exam_backend/pkg/logger"
	"adaptive_exam_backend/pkg/monitoring"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Tunables of the ability heuristic. Difficulty 3 is the pivot: correct
// answers above it earn more, wrong answers below it cost more.
const (
	DefaultTotalQuestions  = 10
	InitialTheta           = 0.5
	defaultDifficulty      = 3
	thetaBaseStep          = 0.18
	thetaSlope             = 0.05
	defaultCandidateWindow = 25
)

// AdaptiveService drives the attempt lifecycle: ensure/record/finish, theta
// updates and next-question selection. Every entry point runs as one
// transaction; the presented question is consumed with compare-and-swap
// updates on current_question_id, so concurrent submissions against the same
// attempt can never both advance it.
type AdaptiveService struct {
	DB *gorm.DB

	mu  sync.RWMutex
	cfg config.AdaptiveConfig
}

func NewAdaptiveService(db *gorm.DB, cfg config.AdaptiveConfig) *AdaptiveService {
	return &AdaptiveService{DB: db, cfg: cfg}
}

// SetConfig swaps the tuning knobs at runtime. Config hot-reload calls this
// from the watcher goroutine while request handlers keep reading.
func (s *AdaptiveService) SetConfig(cfg config.AdaptiveConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *AdaptiveService) tunables() config.AdaptiveConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ClampTheta bounds theta to [0,1] and rounds half-up to 2 decimals. The
// rounding rule is fixed so stored values stay bit-comparable across
// implementations.
func ClampTheta(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return math.Floor(v*100+0.5) / 100
}

// DifficultyFromTheta maps ability to a target difficulty band: theta 0 aims
// at difficulty 1, theta 1 at difficulty 5, monotonic in between.
func DifficultyFromTheta(theta float64) int {
	raw := int(math.Round(theta*4)) + 1
	if raw < 1 {
		return 1
	}
	if raw > 5 {
		return 5
	}
	return raw
}

// ThetaDelta is the post-answer ability step.
func ThetaDelta(isCorrect bool, difficulty int) float64 {
	factor := float64(difficulty-defaultDifficulty) * thetaSlope
	if isCorrect {
		return thetaBaseStep - factor
	}
	return -(thetaBaseStep + factor)
}

type AttemptStatus string

const (
	StatusCompleted  AttemptStatus = "completed"
	StatusInProgress AttemptStatus = "in-progress"
)

type ChoiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is what a student sees mid-attempt: no correct-answer flags,
// no explanation.
type QuestionView struct {
	ID         string       `json:"id"`
	Subject    string       `json:"subject"`
	GradeLevel string       `json:"gradeLevel"`
	Body       string       `json:"body"`
	Difficulty int          `json:"difficulty"`
	Hint       string       `json:"hint"`
	Choices    []ChoiceView `json:"choices"`
}

type AttemptProgress struct {
	Status         AttemptStatus      `json:"status"`
	Question       *QuestionView      `json:"question,omitempty"`
	AnsweredCount  int                `json:"answeredCount"`
	TotalQuestions int                `json:"totalQuestions"`
	Theta          float64            `json:"theta"`
	Score          int                `json:"score"`
	Attempt        *model.ExamAttempt `json:"-"`
}

type AnswerResult struct {
	AttemptProgress
	ThetaAfter float64 `json:"thetaAfter"`
	IsCorrect  bool    `json:"isCorrect"`
}

type RecordAnswerInput struct {
	AttemptID  string
	UserID     uint
	QuestionID string
	ChoiceID   string
}

type AttemptSummary struct {
	AttemptID  string    `json:"attemptId"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	ThetaStart float64   `json:"thetaStart"`
	ThetaEnd   float64   `json:"thetaEnd"`
	Answered   int       `json:"answered"`
	FinishedAt time.Time `json:"finishedAt"`
}

// loadContext reads the attempt with its exam config, current question and
// answer history, scoped to the owning user. A cross-user lookup fails as
// not-found, never as forbidden.
func (s *AdaptiveService) loadContext(tx *gorm.DB, attemptID string, userID uint) (*model.ExamAttempt, error) {
	var attempt model.ExamAttempt
	err := tx.
		Preload("Exam").
		Preload("Exam.SubjectRef").
		Preload("CurrentQuestion").
		Preload("CurrentQuestion.Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("choices.sort_order asc")
		}).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("attempt_answers.created_at asc, attempt_answers.id asc")
		}).
		Where("id = ? AND user_id = ?", attemptID, userID).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

func (s *AdaptiveService) totalQuestions(exam *model.Exam) int {
	fallback := s.tunables().DefaultQuestionCount
	if fallback < 1 {
		fallback = DefaultTotalQuestions
	}
	if exam == nil || exam.QuestionCount < 1 {
		return fallback
	}
	return exam.QuestionCount
}

func (s *AdaptiveService) candidateWindow() int {
	if w := s.tunables().CandidateWindow; w > 0 {
		return w
	}
	return defaultCandidateWindow
}

func difficultyBounds(exam *model.Exam) (int, int) {
	min, max := 1, 5
	if exam != nil {
		if exam.DifficultyMin > 0 {
			min = exam.DifficultyMin
		}
		if exam.DifficultyMax > 0 {
			max = exam.DifficultyMax
		}
	}
	if min > max {
		min, max = max, min
	}
	return min, max
}

// latestScore returns the newest difficulty-history entry, or nil when the
// question was never scored.
func latestScore(tx *gorm.DB, questionID string) (*model.AIScore, error) {
	var score model.AIScore
	err := tx.Where("question_id = ?", questionID).
		Order("created_at desc, id desc").
		First(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}

func (s *AdaptiveService) questionView(tx *gorm.DB, q *model.Question) (*QuestionView, error) {
	score, err := latestScore(tx, q.ID)
	if err != nil {
		return nil, err
	}

	difficulty := defaultDifficulty
	hint := "AI rationale unavailable"
	if score != nil {
		if score.Difficulty != nil {
			difficulty = *score.Difficulty
		}
		if score.Reason != "" {
			hint = score.Reason
		}
	}

	choices := make([]ChoiceView, 0, len(q.Choices))
	sorted := make([]model.Choice, len(q.Choices))
	copy(sorted, q.Choices)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for _, c := range sorted {
		choices = append(choices, ChoiceView{ID: c.ID, Text: c.Text})
	}

	return &QuestionView{
		ID:         q.ID,
		Subject:    q.Subject,
		GradeLevel: q.GradeLevel,
		Body:       q.Body,
		Difficulty: difficulty,
		Hint:       hint,
		Choices:    choices,
	}, nil
}

// selectNextQuestion picks the unanswered question whose latest difficulty is
// closest to the ability target. Greedy over a bounded window fetched in
// created_at, id order; the stable sort makes ties resolve to the oldest
// question, then lowest id.
func (s *AdaptiveService) selectNextQuestion(tx *gorm.DB, attempt *model.ExamAttempt) (*model.Question, error) {
	target := DifficultyFromTheta(attempt.ThetaEnd)

	excludeIDs := make([]string, 0, len(attempt.Answers)+1)
	for _, a := range attempt.Answers {
		excludeIDs = append(excludeIDs, a.QuestionID)
	}
	if attempt.CurrentQuestionID != nil {
		excludeIDs = append(excludeIDs, *attempt.CurrentQuestionID)
	}

	query := tx.Preload("Choices", func(db *gorm.DB) *gorm.DB {
		return db.Order("choices.sort_order asc")
	}).Where("created_by_id = ?", attempt.Exam.CreatedByID)
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}
	if attempt.Exam.SubjectRef != nil {
		query = query.Where("subject = ?", attempt.Exam.SubjectRef.Name)
	}

	var candidates []model.Question
	if err := query.Order("created_at asc, id asc").Limit(s.candidateWindow()).Find(&candidates).Error; err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	scores, err := repository.LatestScores(tx, ids)
	if err != nil {
		return nil, err
	}

	minDiff, maxDiff := difficultyBounds(attempt.Exam)
	pool := make([]model.Question, 0, len(candidates))
	for _, c := range candidates {
		d, ok := scores[c.ID]
		if !ok || d == nil {
			// unscored questions pass the gate
			pool = append(pool, c)
			continue
		}
		if *d >= minDiff && *d <= maxDiff {
			pool = append(pool, c)
		}
	}

	// Prefer presenting some question over none: an empty band falls back to
	// the whole window.
	ranked := pool
	if len(ranked) == 0 {
		ranked = candidates
	}

	distance := func(q model.Question) int {
		d := defaultDifficulty
		if v, ok := scores[q.ID]; ok && v != nil {
			d = *v
		}
		diff := d - target
		if diff < 0 {
			diff = -diff
		}
		return diff
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return distance(ranked[i]) < distance(ranked[j])
	})

	selected := ranked[0]
	return &selected, nil
}

func (s *AdaptiveService) markFinished(tx *gorm.DB, attemptID string) error {
	now := time.Now()
	return tx.Model(&model.ExamAttempt{}).
		Where("id = ? AND finished_at IS NULL", attemptID).
		Updates(map[string]interface{}{
			"finished_at":         now,
			"current_question_id": nil,
			"active":              nil,
		}).Error
}

// assignCurrentQuestion is a compare-and-swap: it only succeeds while no
// question is presented and the attempt is still active.
func (s *AdaptiveService) assignCurrentQuestion(tx *gorm.DB, attemptID, questionID string) error {
	res := tx.Model(&model.ExamAttempt{}).
		Where("id = ? AND current_question_id IS NULL AND finished_at IS NULL", attemptID).
		Update("current_question_id", questionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		logger.Log.Warn("lost race assigning next question",
			zap.String("attemptId", attemptID),
			zap.String("questionId", questionID))
		return util.ErrAssignmentFailed
	}
	return nil
}

func (s *AdaptiveService) completedProgress(attempt *model.ExamAttempt, answered int) *AttemptProgress {
	return &AttemptProgress{
		Status:         StatusCompleted,
		AnsweredCount:  answered,
		TotalQuestions: s.totalQuestions(attempt.Exam),
		Theta:          attempt.ThetaEnd,
		Score:          attempt.Score,
		Attempt:        attempt,
	}
}

// EnsureCurrentQuestion is the idempotent resume/advance operation: it
// finalizes exhausted attempts, returns the already-presented question
// unchanged, or selects and assigns the next one. Pool exhaustion is a
// graceful completion, not an error.
func (s *AdaptiveService) EnsureCurrentQuestion(attemptID string, userID uint) (*AttemptProgress, error) {
	var result *AttemptProgress
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		attempt, err := s.loadContext(tx, attemptID, userID)
		if err != nil {
			return err
		}

		total := s.totalQuestions(attempt.Exam)
		answered := len(attempt.Answers)

		if attempt.FinishedAt != nil || answered >= total {
			if attempt.FinishedAt == nil {
				if err := s.markFinished(tx, attempt.ID); err != nil {
					return err
				}
				if attempt, err = s.loadContext(tx, attemptID, userID); err != nil {
					return err
				}
			}
			result = s.completedProgress(attempt, answered)
			return nil
		}

		if attempt.CurrentQuestion != nil {
			view, err := s.questionView(tx, attempt.CurrentQuestion)
			if err != nil {
				return err
			}
			result = &AttemptProgress{
				Status:         StatusInProgress,
				Question:       view,
				AnsweredCount:  answered,
				TotalQuestions: total,
				Theta:          attempt.ThetaEnd,
				Score:          attempt.Score,
				Attempt:        attempt,
			}
			return nil
		}

		next, err := s.selectNextQuestion(tx, attempt)
		if err != nil {
			return err
		}
		if next == nil {
			if err := s.markFinished(tx, attempt.ID); err != nil {
				return err
			}
			if attempt, err = s.loadContext(tx, attemptID, userID); err != nil {
				return err
			}
			result = s.completedProgress(attempt, answered)
			return nil
		}

		if err := s.assignCurrentQuestion(tx, attempt.ID, next.ID); err != nil {
			return err
		}

		attempt, err = s.loadContext(tx, attemptID, userID)
		if err != nil {
			return err
		}
		if attempt.CurrentQuestion == nil {
			logger.Log.Error("selected question missing at assignment time",
				zap.String("attemptId", attemptID),
				zap.String("questionId", next.ID))
			return util.ErrAssignmentFailed
		}

		view, err := s.questionView(tx, attempt.CurrentQuestion)
		if err != nil {
			return err
		}
		result = &AttemptProgress{
			Status:         StatusInProgress,
			Question:       view,
			AnsweredCount:  answered,
			TotalQuestions: total,
			Theta:          attempt.ThetaEnd,
			Score:          attempt.Score,
			Attempt:        attempt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	monitoring.AttemptTransitions.WithLabelValues("ensure", string(result.Status)).Inc()
	return result, nil
}

// RecordAnswer validates the submission against the presented question,
// appends the immutable answer row, moves theta, and either finalizes the
// attempt or assigns the next question. The whole round is one transaction;
// losing the compare-and-swap rolls everything back and surfaces
// ErrQuestionMismatch.
func (s *AdaptiveService) RecordAnswer(input RecordAnswerInput) (*AnswerResult, error) {
	var result *AnswerResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		attempt, err := s.loadContext(tx, input.AttemptID, input.UserID)
		if err != nil {
			return err
		}
		if attempt.FinishedAt != nil {
			return util.ErrAttemptAlreadyFinished
		}
		if attempt.CurrentQuestion == nil || attempt.CurrentQuestion.ID != input.QuestionID {
			return util.ErrQuestionMismatch
		}

		var selected *model.Choice
		for i := range attempt.CurrentQuestion.Choices {
			if attempt.CurrentQuestion.Choices[i].ID == input.ChoiceID {
				selected = &attempt.CurrentQuestion.Choices[i]
				break
			}
		}
		if selected == nil {
			return util.ErrChoiceNotFound
		}

		isCorrect := selected.IsCorrect
		thetaBefore := attempt.ThetaEnd

		score, err := latestScore(tx, attempt.CurrentQuestion.ID)
		if err != nil {
			return err
		}
		difficulty := defaultDifficulty
		if score != nil && score.Difficulty != nil {
			difficulty = *score.Difficulty
		}

		thetaAfter := ClampTheta(thetaBefore + ThetaDelta(isCorrect, difficulty))

		answer := model.AttemptAnswer{
			AttemptID:   attempt.ID,
			QuestionID:  attempt.CurrentQuestion.ID,
			ChoiceID:    selected.ID,
			IsCorrect:   isCorrect,
			ThetaBefore: thetaBefore,
			ThetaAfter:  thetaAfter,
		}
		if err := tx.Create(&answer).Error; err != nil {
			return err
		}

		scoreDelta := 0
		if isCorrect {
			scoreDelta = 1
		}
		res := tx.Model(&model.ExamAttempt{}).
			Where("id = ? AND current_question_id = ?", attempt.ID, input.QuestionID).
			Updates(map[string]interface{}{
				"theta_end":           thetaAfter,
				"current_question_id": nil,
				"score":               gorm.Expr("score + ?", scoreDelta),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// a concurrent submission consumed this question first
			return util.ErrQuestionMismatch
		}

		attempt, err = s.loadContext(tx, input.AttemptID, input.UserID)
		if err != nil {
			return err
		}

		total := s.totalQuestions(attempt.Exam)
		answered := len(attempt.Answers)

		if answered >= total {
			if err := s.markFinished(tx, attempt.ID); err != nil {
				return err
			}
			if attempt, err = s.loadContext(tx, input.AttemptID, input.UserID); err != nil {
				return err
			}
			result = &AnswerResult{
				AttemptProgress: *s.completedProgress(attempt, answered),
				ThetaAfter:      thetaAfter,
				IsCorrect:       isCorrect,
			}
			return nil
		}

		next, err := s.selectNextQuestion(tx, attempt)
		if err != nil {
			return err
		}
		if next == nil {
			if err := s.markFinished(tx, attempt.ID); err != nil {
				return err
			}
			if attempt, err = s.loadContext(tx, input.AttemptID, input.UserID); err != nil {
				return err
			}
			result = &AnswerResult{
				AttemptProgress: *s.completedProgress(attempt, answered),
				ThetaAfter:      thetaAfter,
				IsCorrect:       isCorrect,
			}
			return nil
		}

		if err := s.assignCurrentQuestion(tx, attempt.ID, next.ID); err != nil {
			return err
		}
		if attempt, err = s.loadContext(tx, input.AttemptID, input.UserID); err != nil {
			return err
		}
		if attempt.CurrentQuestion == nil {
			logger.Log.Error("selected question missing at assignment time",
				zap.String("attemptId", input.AttemptID),
				zap.String("questionId", next.ID))
			return util.ErrAssignmentFailed
		}

		view, err := s.questionView(tx, attempt.CurrentQuestion)
		if err != nil {
			return err
		}
		result = &AnswerResult{
			AttemptProgress: AttemptProgress{
				Status:         StatusInProgress,
				Question:       view,
				AnsweredCount:  answered,
				TotalQuestions: total,
				Theta:          attempt.ThetaEnd,
				Score:          attempt.Score,
				Attempt:        attempt,
			},
			ThetaAfter: thetaAfter,
			IsCorrect:  isCorrect,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	monitoring.AttemptTransitions.WithLabelValues("record_answer", string(result.Status)).Inc()
	return result, nil
}

// FinishAttempt is the explicit early-termination path. Idempotent: finishing
// a finished attempt returns the existing snapshot unchanged.
func (s *AdaptiveService) FinishAttempt(attemptID string, userID uint) (*model.ExamAttempt, error) {
	var result *model.ExamAttempt
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		attempt, err := s.loadContext(tx, attemptID, userID)
		if err != nil {
			return err
		}
		if attempt.FinishedAt != nil {
			result = attempt
			return nil
		}
		if err := s.markFinished(tx, attempt.ID); err != nil {
			return err
		}
		if attempt, err = s.loadContext(tx, attemptID, userID); err != nil {
			return err
		}
		result = attempt
		return nil
	})
	if err != nil {
		return nil, err
	}
	monitoring.AttemptTransitions.WithLabelValues("finish", string(StatusCompleted)).Inc()
	return result, nil
}

// FormatAttemptSummary is a pure projection of a (usually finished) attempt.
func (s *AdaptiveService) FormatAttemptSummary(attempt *model.ExamAttempt) AttemptSummary {
	finishedAt := time.Now()
	if attempt.FinishedAt != nil {
		finishedAt = *attempt.FinishedAt
	}
	return AttemptSummary{
		AttemptID:  attempt.ID,
		Score:      attempt.Score,
		Total:      s.totalQuestions(attempt.Exam),
		ThetaStart: attempt.ThetaStart,
		ThetaEnd:   attempt.ThetaEnd,
		Answered:   len(attempt.Answers),
		FinishedAt: finishedAt,
	}
}
