package controller

import (
	"adaptive_exam_backend/internal/service"
	"adaptive_exam_backend/internal/util"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxImportSize = 5 << 20 // 5 MiB

type QuestionController struct {
	QuestionService *service.QuestionService
	Difficulty      *service.AIDifficultyService
}

func NewQuestionController(questionService *service.QuestionService, difficulty *service.AIDifficultyService) *QuestionController {
	return &QuestionController{QuestionService: questionService, Difficulty: difficulty}
}

// CreateQuestion godoc
// @Summary Create a question
// @Description New questions are flagged for difficulty scoring
// @Tags questions
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.CreateQuestionInput true "Question with choices"
// @Success 201 {object} util.Response{data=model.Question} "Created"
// @Failure 400 {object} util.Response "Invalid request"
// @Router /api/teacher/questions [post]
func (c *QuestionController) CreateQuestion(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateQuestionInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	question, err := c.QuestionService.CreateQuestion(req, claims.UserID)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Created(ctx, question)
}

// ListQuestions godoc
// @Summary List the caller's questions
// @Tags questions
// @Produce  json
// @Security ApiKeyAuth
// @Param   subject query string false "Filter by subject"
// @Success 200 {object} util.Response{data=[]model.Question} "Success"
// @Router /api/teacher/questions [get]
func (c *QuestionController) ListQuestions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	questions, err := c.QuestionService.ListQuestions(claims.UserID, ctx.Query("subject"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, questions)
}

// GetQuestion godoc
// @Summary Get one question
// @Tags questions
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Question id"
// @Success 200 {object} util.Response{data=model.Question} "Success"
// @Failure 404 {object} util.Response "Question not found"
// @Router /api/teacher/questions/{id} [get]
func (c *QuestionController) GetQuestion(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	question, err := c.QuestionService.GetQuestion(ctx.Param("id"), claims.UserID)
	if err != nil {
		if errors.Is(err, util.ErrQuestionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, question)
}

// DeleteQuestion godoc
// @Summary Delete a question
// @Tags questions
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Question id"
// @Success 200 {object} util.Response "Success"
// @Failure 404 {object} util.Response "Question not found"
// @Router /api/teacher/questions/{id} [delete]
func (c *QuestionController) DeleteQuestion(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.QuestionService.DeleteQuestion(ctx.Param("id"), claims.UserID); err != nil {
		if errors.Is(err, util.ErrQuestionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, nil)
}

// ImportQuestions godoc
// @Summary Bulk import questions from CSV
// @Description Bad rows are reported per line, not fatal
// @Tags questions
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   file formData file true "CSV file"
// @Success 200 {object} util.Response{data=service.ImportResult} "Success"
// @Failure 400 {object} util.Response "Invalid file or header"
// @Router /api/teacher/questions/import [post]
func (c *QuestionController) ImportQuestions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	if fileHeader.Size > maxImportSize {
		util.BadRequest(ctx, "file too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	result, err := c.QuestionService.ImportCSV(ctx.Request.Context(), file, fileHeader.Filename, claims.UserID)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, result)
}

// ImportTemplate godoc
// @Summary Download the CSV import template
// @Tags questions
// @Produce  text/csv
// @Security ApiKeyAuth
// @Success 200 {string} string "CSV template"
// @Router /api/teacher/questions/import/template [get]
func (c *QuestionController) ImportTemplate(ctx *gin.Context) {
	ctx.Header("Content-Disposition", `attachment; filename="question_import_template.csv"`)
	ctx.Data(http.StatusOK, "text/csv", c.QuestionService.ImportTemplate())
}

// ScoreQuestion godoc
// @Summary Score a question's difficulty
// @Description Appends an AI (or heuristic) difficulty rating to the
// @Description question's history
// @Tags questions
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Question id"
// @Success 200 {object} util.Response{data=model.AIScore} "Success"
// @Failure 404 {object} util.Response "Question not found"
// @Failure 429 {object} util.Response "Daily AI budget exhausted"
// @Router /api/teacher/questions/{id}/score [post]
func (c *QuestionController) ScoreQuestion(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	question, err := c.QuestionService.GetQuestion(ctx.Param("id"), claims.UserID)
	if err != nil {
		if errors.Is(err, util.ErrQuestionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	score, err := c.Difficulty.ScoreQuestion(ctx.Request.Context(), question)
	if err != nil {
		if errors.Is(err, util.ErrAIDailyLimit) {
			used, _ := c.Difficulty.Usage.UsedToday(ctx.Request.Context())
			util.ErrorWithData(ctx, http.StatusTooManyRequests, "daily AI scoring limit reached",
				gin.H{"used": used, "limit": c.Difficulty.Usage.Limit()})
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, score)
}
