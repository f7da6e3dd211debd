package controller

import (
	"context"
	"strconv"
	"strings"

	"codearena/internal/common/http/middleware"
	"codearena/internal/judge/language"
	"codearena/internal/submit/service"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionService is the orchestrator surface the handlers need.
type SubmissionService interface {
	Submit(ctx context.Context, in service.SubmitInput) (*service.SubmissionView, error)
	Run(ctx context.Context, in service.RunInput) (*service.RunView, error)
	History(ctx context.Context, in service.HistoryInput) ([]service.SubmissionView, error)
	OverrideScore(ctx context.Context, in service.OverrideInput) (*service.SubmissionView, error)
}

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService SubmissionService
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService SubmissionService) *SubmitController {
	return &SubmitController{submitService: submitService}
}

// Submit grades and stores an attempt.
func (h *SubmitController) Submit(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	view, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		UserID:         identity.UserID,
		ContestID:      req.ContestID,
		TaskID:         req.TaskID,
		Language:       req.Language,
		Code:           req.Code,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
		ClientIP:       c.ClientIP(),
		Viewer:         viewerOf(identity),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Run grades an attempt without saving it.
func (h *SubmitController) Run(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	view, err := h.submitService.Run(c.Request.Context(), service.RunInput{
		UserID:      identity.UserID,
		TaskID:      req.TaskID,
		Language:    req.Language,
		Code:        req.Code,
		CustomCases: req.TestCases,
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// History lists the caller's submissions for a task.
func (h *SubmitController) History(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	taskID, err := strconv.ParseInt(c.Param("taskId"), 10, 64)
	if err != nil || taskID <= 0 {
		response.BadRequest(c, "Invalid task id")
		return
	}
	contestID, err := optionalInt64(c.Query("contest_id"))
	if err != nil {
		response.BadRequest(c, "Invalid contest id")
		return
	}
	limit, err := optionalInt64(c.Query("limit"))
	if err != nil {
		response.BadRequest(c, "Invalid limit")
		return
	}

	views, err := h.submitService.History(c.Request.Context(), service.HistoryInput{
		UserID:    identity.UserID,
		TaskID:    taskID,
		ContestID: contestID,
		Limit:     int(limit),
		Viewer:    viewerOf(identity),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, views)
}

// OverrideScore lets an administrator correct a submission's score.
func (h *SubmitController) OverrideScore(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	submissionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || submissionID <= 0 {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	var req OverrideScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Score == nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	view, err := h.submitService.OverrideScore(c.Request.Context(), service.OverrideInput{
		AdminID:      identity.UserID,
		SubmissionID: submissionID,
		Score:        *req.Score,
		Viewer:       viewerOf(identity),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// Languages lists the supported languages.
func (h *SubmitController) Languages(c *gin.Context) {
	response.Success(c, language.Supported())
}

// RegisterRoutes mounts the submission endpoints behind auth.
func (h *SubmitController) RegisterRoutes(router gin.IRouter, verifier *middleware.TokenVerifier) {
	router.GET("/api/v1/languages", h.Languages)

	api := router.Group("/api/v1/submissions", middleware.AuthMiddleware(verifier))
	api.POST("/run", h.Run)
	api.POST("/submit", h.Submit)
	api.GET("/task/:taskId", h.History)

	admin := router.Group("/api/v1/admin", middleware.AuthMiddleware(verifier, middleware.RoleAdmin))
	admin.PATCH("/submissions/:id/score", h.OverrideScore)
}

func viewerOf(identity middleware.Identity) service.Viewer {
	if identity.IsAdmin() {
		return service.ViewerAdmin
	}
	return service.ViewerParticipant
}

func optionalInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, pkgerrors.ValidationError("query", "must be a non-negative integer")
	}
	return v, nil
}

// SubmitRequest defines submission payload.
type SubmitRequest struct {
	TaskID    int64  `json:"taskId" binding:"required"`
	ContestID int64  `json:"contestId" binding:"required"`
	Language  string `json:"language" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

// RunRequest defines run payload. TestCases are optional custom cases.
// Runs are not tied to a contest, so a contestId in the body is ignored.
type RunRequest struct {
	TaskID    int64                `json:"taskId" binding:"required"`
	Language  string               `json:"language" binding:"required"`
	Code      string               `json:"code" binding:"required"`
	TestCases []service.CustomCase `json:"testCases"`
}

// OverrideScoreRequest defines the admin score payload.
type OverrideScoreRequest struct {
	Score *int `json:"score"`
}
