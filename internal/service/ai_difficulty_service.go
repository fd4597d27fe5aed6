package service

import (
	"adaptive_exam_backend/internal/config"
	"adaptive_exam_backend/internal/model"
	"adaptive_exam_backend/internal/repository"
	"adaptive_exam_backend/internal/util"
	"adaptive_exam_backend/pkg/logger"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const heuristicModelName = "heuristic-v1"

// AIDifficultyService assigns a 1-5 difficulty to a question. It asks an
// OpenAI-compatible endpoint when one is configured and falls back to a
// deterministic heuristic otherwise, so scoring never blocks question
// authoring. Results are appended to the question's difficulty history.
type AIDifficultyService struct {
	Cfg          config.AIConfig
	QuestionRepo *repository.QuestionRepository
	Usage        *AIUsageService
	HTTPClient   *http.Client
}

func NewAIDifficultyService(cfg config.AIConfig, questionRepo *repository.QuestionRepository, usage *AIUsageService) *AIDifficultyService {
	return &AIDifficultyService{
		Cfg:          cfg,
		QuestionRepo: questionRepo,
		Usage:        usage,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

type aiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []aiChatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message aiChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ScoreQuestion rates the question and appends the result to its history.
// Remote failures degrade to the heuristic; only an exhausted daily budget is
// surfaced as an error.
func (s *AIDifficultyService) ScoreQuestion(ctx context.Context, question *model.Question) (*model.AIScore, error) {
	allowed, _, err := s.Usage.Allow(ctx)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, util.ErrAIDailyLimit
	}

	difficulty, reason, modelName := s.rate(ctx, question)

	score := model.AIScore{
		QuestionID: question.ID,
		Difficulty: &difficulty,
		Reason:     reason,
		ModelName:  modelName,
	}
	if err := s.QuestionRepo.AppendScore(&score); err != nil {
		return nil, err
	}

	logger.Log.Info("question scored",
		zap.String("questionId", question.ID),
		zap.Int("difficulty", difficulty),
		zap.String("model", modelName))
	return &score, nil
}

func (s *AIDifficultyService) rate(ctx context.Context, question *model.Question) (int, string, string) {
	if s.Cfg.BaseURL != "" && s.Cfg.APIKey != "" {
		difficulty, reason, err := s.rateRemote(ctx, question)
		if err == nil {
			return difficulty, reason, s.Cfg.Model
		}
		logger.Log.Warn("remote difficulty scoring failed, using heuristic",
			zap.String("questionId", question.ID), zap.Error(err))
	}
	difficulty, reason := HeuristicDifficulty(question.Subject, question.GradeLevel, question.Body)
	return difficulty, reason, heuristicModelName
}

func (s *AIDifficultyService) rateRemote(ctx context.Context, question *model.Question) (int, string, error) {
	prompt := fmt.Sprintf(
		"Rate the difficulty of this %s question for %s students on a 1-5 scale "+
			"(1 easiest, 5 hardest). Reply with JSON only: {\"difficulty\": <1-5>, \"reason\": \"<one sentence>\"}.\n\nQuestion: %s",
		question.Subject, question.GradeLevel, question.Body)

	reqBody := chatCompletionRequest{
		Model: s.Cfg.Model,
		Messages: []aiChatMessage{
			{Role: "system", Content: "You are an assessment expert who calibrates question difficulty."},
			{Role: "user", Content: prompt},
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Cfg.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Cfg.APIKey)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return 0, "", err
	}
	if completion.Error != nil {
		return 0, "", fmt.Errorf("AI API error: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return 0, "", fmt.Errorf("AI API returned no choices")
	}

	return parseDifficultyReply(completion.Choices[0].Message.Content)
}

// parseDifficultyReply extracts the JSON object from the model reply, which
// may be wrapped in markdown fences or prose.
func parseDifficultyReply(content string) (int, string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return 0, "", fmt.Errorf("no JSON object in AI reply: %q", content)
	}

	var parsed struct {
		Difficulty int    `json:"difficulty"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return 0, "", err
	}
	if parsed.Difficulty < 1 || parsed.Difficulty > 5 {
		return 0, "", fmt.Errorf("difficulty %d out of range", parsed.Difficulty)
	}
	return parsed.Difficulty, parsed.Reason, nil
}

var hardTopics = []string{"calculus", "derivative", "integral", "quantum", "stoichiometry", "thermodynamics", "proof"}
var easyTopics = []string{"basic", "intro", "simple", "what is", "identify"}

// HeuristicDifficulty is the deterministic fallback scorer: question length
// and grade level set the base, topic keywords nudge it.
func HeuristicDifficulty(subject, gradeLevel, body string) (int, string) {
	words := len(strings.Fields(body))
	lengthScore := float64(words) / 40.0 * 5.0
	if lengthScore < 1 {
		lengthScore = 1
	}
	if lengthScore > 5 {
		lengthScore = 5
	}

	grade := 0
	for _, r := range gradeLevel {
		if r >= '0' && r <= '9' {
			grade = grade*10 + int(r-'0')
		}
	}
	gradeScore := float64(grade) / 3.0
	if gradeScore < 1 {
		gradeScore = 1
	}
	if gradeScore > 5 {
		gradeScore = 5
	}

	base := (lengthScore + gradeScore) / 2.0

	lower := strings.ToLower(subject + " " + body)
	for _, t := range hardTopics {
		if strings.Contains(lower, t) {
			base += 0.5
			break
		}
	}
	for _, t := range easyTopics {
		if strings.Contains(lower, t) {
			base -= 0.5
			break
		}
	}

	if base < 1 {
		base = 1
	}
	if base > 5 {
		base = 5
	}
	difficulty := int(math.Round(base))

	reason := fmt.Sprintf("Heuristic estimate from question length (%d words) and grade level %q.", words, gradeLevel)
	return difficulty, reason
}
