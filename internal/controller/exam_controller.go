package controller

import (
	"adaptive_exam_backend/internal/service"
	"adaptive_exam_backend/internal/util"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	ExamService     *service.ExamService
	AdaptiveService *service.AdaptiveService
}

func NewExamController(examService *service.ExamService, adaptiveService *service.AdaptiveService) *ExamController {
	return &ExamController{ExamService: examService, AdaptiveService: adaptiveService}
}

// CreateExam godoc
// @Summary Create an exam
// @Description Creates an adaptive or standard exam owned by the caller
// @Tags exams
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.CreateExamInput true "Exam definition"
// @Success 201 {object} util.Response{data=model.Exam} "Created"
// @Failure 400 {object} util.Response "Invalid request"
// @Failure 404 {object} util.Response "Subject not found"
// @Router /api/teacher/exams [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateExamInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.CreateExam(req, claims.UserID)
	if err != nil {
		if errors.Is(err, util.ErrSubjectNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, exam)
}

// ListTeacherExams godoc
// @Summary List the caller's exams
// @Tags exams
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Exam} "Success"
// @Router /api/teacher/exams [get]
func (c *ExamController) ListTeacherExams(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	exams, err := c.ExamService.ListByTeacher(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, exams)
}

// ListExams godoc
// @Summary List exams available to the student
// @Description Public exams plus exams in subjects the student is enrolled in
// @Tags exams
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Exam} "Success"
// @Router /api/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	exams, err := c.ExamService.ListForStudent(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, exams)
}

// GetExam godoc
// @Summary Get one exam
// @Tags exams
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Exam id"
// @Success 200 {object} util.Response{data=model.Exam} "Success"
// @Failure 404 {object} util.Response "Exam not found"
// @Router /api/exams/{id} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	exam, err := c.ExamService.GetExam(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, exam)
}

// StartAttempt godoc
// @Summary Start an adaptive attempt
// @Description Opens a fresh attempt and presents the first question
// @Tags attempts
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Exam id"
// @Success 201 {object} util.Response{data=service.AttemptProgress} "Created"
// @Failure 400 {object} util.Response "Exam is not adaptive"
// @Failure 403 {object} util.Response "Not enrolled"
// @Failure 404 {object} util.Response "Exam not found"
// @Failure 409 {object} util.Response "Unfinished attempt exists"
// @Router /api/exams/{id}/attempts [post]
func (c *ExamController) StartAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	progress, err := c.ExamService.StartAttempt(ctx.Param("id"), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrExamNotAdaptive):
			util.BadRequest(ctx, "exam is not adaptive")
		case errors.Is(err, util.ErrNotEnrolled):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrAssignmentExpired):
			util.Error(ctx, http.StatusForbidden, "assignment past its due date")
		case errors.Is(err, util.ErrAttemptInProgress):
			util.Conflict(ctx, "an unfinished attempt already exists for this exam")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, progress)
}

// AssignExam godoc
// @Summary Assign an exam to students
// @Description Grants the listed students access without enrollment;
// @Description re-posting the same roster is harmless
// @Tags assignments
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Exam id"
// @Param   body body service.AssignExamInput true "Student roster"
// @Success 200 {object} util.Response{data=object} "Success"
// @Failure 403 {object} util.Response "Not the exam owner"
// @Failure 404 {object} util.Response "Exam not found"
// @Router /api/teacher/exams/{id}/assignments [post]
func (c *ExamController) AssignExam(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.AssignExamInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	created, err := c.ExamService.AssignExam(ctx.Param("id"), claims.UserID, req)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"assigned": created})
}

// ListExamAssignments godoc
// @Summary List an exam's assignments
// @Tags assignments
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Exam id"
// @Success 200 {object} util.Response{data=[]model.ExamAssignment} "Success"
// @Failure 403 {object} util.Response "Not the exam owner"
// @Failure 404 {object} util.Response "Exam not found"
// @Router /api/teacher/exams/{id}/assignments [get]
func (c *ExamController) ListExamAssignments(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	assignments, err := c.ExamService.ListAssignmentsForExam(ctx.Param("id"), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, assignments)
}

// ListMyAssignments godoc
// @Summary List the caller's exam assignments
// @Tags assignments
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.ExamAssignment} "Success"
// @Router /api/assignments [get]
func (c *ExamController) ListMyAssignments(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	assignments, err := c.ExamService.ListAssignmentsForStudent(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, assignments)
}

// StartAssignedAttempt godoc
// @Summary Start an attempt from an assignment
// @Description The assignment grants access even without enrollment
// @Tags assignments
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "Assignment id"
// @Success 201 {object} util.Response{data=service.AttemptProgress} "Created"
// @Failure 400 {object} util.Response "Exam is not adaptive"
// @Failure 403 {object} util.Response "Assignment past its due date"
// @Failure 404 {object} util.Response "Assignment not found"
// @Failure 409 {object} util.Response "Unfinished attempt exists"
// @Router /api/assignments/{id}/start [post]
func (c *ExamController) StartAssignedAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid assignment id")
		return
	}

	progress, err := c.ExamService.StartAssignedAttempt(uint(id), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAssignmentNotFound), errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrAssignmentExpired):
			util.Error(ctx, http.StatusForbidden, "assignment past its due date")
		case errors.Is(err, util.ErrExamNotAdaptive):
			util.BadRequest(ctx, "exam is not adaptive")
		case errors.Is(err, util.ErrAttemptInProgress):
			util.Conflict(ctx, "an unfinished attempt already exists for this exam")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Created(ctx, progress)
}

// GetCurrentQuestion godoc
// @Summary Current question of an attempt
// @Description Idempotent: presents the pending question, assigning one if
// @Description needed, or reports completion
// @Tags attempts
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Attempt id"
// @Success 200 {object} util.Response{data=service.AttemptProgress} "Success"
// @Failure 404 {object} util.Response "Attempt not found"
// @Router /api/attempts/{id}/current [get]
func (c *ExamController) GetCurrentQuestion(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	progress, err := c.AdaptiveService.EnsureCurrentQuestion(ctx.Param("id"), claims.UserID)
	if err != nil {
		c.writeAttemptError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

type SubmitAnswerRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	ChoiceID   string `json:"choiceId" binding:"required"`
}

// SubmitAnswer godoc
// @Summary Answer the current question
// @Description Records the answer, updates ability, and returns either the
// @Description next question or the completed attempt
// @Tags attempts
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Attempt id"
// @Param   body body SubmitAnswerRequest true "Answer"
// @Success 200 {object} util.Response{data=service.AnswerResult} "Success"
// @Failure 404 {object} util.Response "Attempt or choice not found"
// @Failure 409 {object} util.Response "Attempt finished or question mismatch"
// @Router /api/attempts/{id}/answers [post]
func (c *ExamController) SubmitAnswer(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.AdaptiveService.RecordAnswer(service.RecordAnswerInput{
		AttemptID:  ctx.Param("id"),
		UserID:     claims.UserID,
		QuestionID: req.QuestionID,
		ChoiceID:   req.ChoiceID,
	})
	if err != nil {
		c.writeAttemptError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// FinishAttempt godoc
// @Summary Finish an attempt early
// @Description Idempotent; returns the final summary
// @Tags attempts
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Attempt id"
// @Success 200 {object} util.Response{data=service.AttemptSummary} "Success"
// @Failure 404 {object} util.Response "Attempt not found"
// @Router /api/attempts/{id}/finish [post]
func (c *ExamController) FinishAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attempt, err := c.AdaptiveService.FinishAttempt(ctx.Param("id"), claims.UserID)
	if err != nil {
		c.writeAttemptError(ctx, err)
		return
	}
	util.Success(ctx, c.AdaptiveService.FormatAttemptSummary(attempt))
}

// ListAttempts godoc
// @Summary List the caller's attempts
// @Tags attempts
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.ExamAttempt} "Success"
// @Router /api/attempts [get]
func (c *ExamController) ListAttempts(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attempts, err := c.ExamService.ListAttempts(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// EnsureExamQuestions godoc
// @Summary Link questions to a standard exam
// @Description Snapshots a fixed question list; idempotent unless force=true
// @Tags exams
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "Exam id"
// @Param   force query bool false "Rebuild existing links"
// @Success 200 {object} util.Response{data=object} "Success"
// @Failure 400 {object} util.Response "Exam is adaptive"
// @Failure 404 {object} util.Response "Exam not found"
// @Failure 409 {object} util.Response "Not enough questions"
// @Router /api/teacher/exams/{id}/questions/ensure [post]
func (c *ExamController) EnsureExamQuestions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	force := ctx.Query("force") == "true"
	linked, err := c.ExamService.EnsureStandardExamQuestions(ctx.Param("id"), claims.UserID, force)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrExamIsAdaptive):
			util.BadRequest(ctx, "adaptive exams have no fixed question list")
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrNotEnoughQuestions):
			util.Conflict(ctx, "not enough questions to fill the exam")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"linked": linked})
}

func (c *ExamController) writeAttemptError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrAttemptNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrAttemptAlreadyFinished):
		util.Conflict(ctx, "attempt already finished")
	case errors.Is(err, util.ErrQuestionMismatch):
		util.Conflict(ctx, "submitted question is not the current question")
	case errors.Is(err, util.ErrChoiceNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrAssignmentFailed):
		util.Conflict(ctx, "attempt changed concurrently, retry")
	default:
		util.LogInternalError(ctx, err)
	}
}
