package controller

import (
	"adaptive_exam_backend/internal/service"
	"adaptive_exam_backend/internal/util"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type SubjectController struct {
	SubjectService *service.SubjectService
}

func NewSubjectController(subjectService *service.SubjectService) *SubjectController {
	return &SubjectController{SubjectService: subjectService}
}

// CreateSubject godoc
// @Summary Create a subject
// @Tags subjects
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.CreateSubjectInput true "Subject"
// @Success 201 {object} util.Response{data=model.Subject} "Created"
// @Failure 400 {object} util.Response "Invalid request"
// @Router /api/teacher/subjects [post]
func (c *SubjectController) CreateSubject(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateSubjectInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	subject, err := c.SubjectService.CreateSubject(req, claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, subject)
}

// ListSubjects godoc
// @Summary List all subjects
// @Tags subjects
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Subject} "Success"
// @Router /api/subjects [get]
func (c *SubjectController) ListSubjects(ctx *gin.Context) {
	subjects, err := c.SubjectService.ListSubjects()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, subjects)
}

// Enroll godoc
// @Summary Enroll in a subject
// @Description Idempotent; enrolling twice is a no-op
// @Tags subjects
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "Subject id"
// @Success 200 {object} util.Response "Success"
// @Failure 404 {object} util.Response "Subject not found"
// @Router /api/subjects/{id}/enroll [post]
func (c *SubjectController) Enroll(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	subjectID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid subject id")
		return
	}

	if err := c.SubjectService.Enroll(uint(subjectID), claims.UserID); err != nil {
		if errors.Is(err, util.ErrSubjectNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, nil)
}

// ListEnrolled godoc
// @Summary List the caller's enrolled subjects
// @Tags subjects
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Subject} "Success"
// @Router /api/subjects/enrolled [get]
func (c *SubjectController) ListEnrolled(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	subjects, err := c.SubjectService.ListEnrolled(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, subjects)
}
