package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
	"github.com/noah-isme/rec-workflow-api/pkg/response"
)

type assignmentService interface {
	Assign(ctx context.Context, submissionID string, req dto.AssignReviewersRequest, actor *models.JWTClaims) (*dto.AssignReviewersResponse, error)
	ListForSubmission(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.ReviewerAssignment, error)
	ListForReviewer(ctx context.Context, actor *models.JWTClaims) ([]models.ReviewerAssignment, error)
}

type reviewService interface {
	Submit(ctx context.Context, submissionID string, req dto.SubmitReviewRequest, actor *models.JWTClaims) (*models.Review, *models.CompletionRatio, error)
	Progress(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.CompletionRatio, error)
	ListForSubmission(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.Review, error)
}

type poolService interface {
	Pool(ctx context.Context) ([]models.User, error)
}

// ReviewHandler exposes reviewer assignment and review collection endpoints.
type ReviewHandler struct {
	assignments assignmentService
	reviews     reviewService
	pool        poolService
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(assignments assignmentService, reviews reviewService, pool poolService) *ReviewHandler {
	return &ReviewHandler{assignments: assignments, reviews: reviews, pool: pool}
}

// Pool godoc
// @Summary List the active reviewer pool
// @Tags Reviews
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reviewers/pool [get]
func (h *ReviewHandler) Pool(c *gin.Context) {
	users, err := h.pool.Pool(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	infos := make([]models.UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, models.UserInfo{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role})
	}
	response.JSON(c, http.StatusOK, infos, nil)
}

// Assign godoc
// @Summary Assign reviewers to a submission
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.AssignReviewersRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reviewers [post]
func (h *ReviewHandler) Assign(c *gin.Context) {
	var req dto.AssignReviewersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid assignment payload"))
		return
	}
	resp, err := h.assignments.Assign(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// ListAssignments godoc
// @Summary List current-cycle assignments for a submission
// @Tags Reviews
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reviewers [get]
func (h *ReviewHandler) ListAssignments(c *gin.Context) {
	assignments, err := h.assignments.ListForSubmission(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// MyAssignments godoc
// @Summary List the acting reviewer's open assignments
// @Tags Reviews
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *ReviewHandler) MyAssignments(c *gin.Context) {
	assignments, err := h.assignments.ListForReviewer(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// SubmitReview godoc
// @Summary Seal the acting reviewer's assessment
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.SubmitReviewRequest true "Review payload"
// @Success 201 {object} response.Envelope
// @Router /submissions/{id}/reviews [post]
func (h *ReviewHandler) SubmitReview(c *gin.Context) {
	var req dto.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
		return
	}
	review, ratio, err := h.reviews.Submit(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, review, nil, map[string]interface{}{
		"progress": dto.ReviewProgressResponse{Completed: ratio.Completed, Required: ratio.Required, Reached: ratio.Reached()},
	})
}

// ListReviews godoc
// @Summary List sealed reviews for a submission
// @Tags Reviews
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reviews [get]
func (h *ReviewHandler) ListReviews(c *gin.Context) {
	reviews, err := h.reviews.ListForSubmission(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, nil)
}

// Progress godoc
// @Summary Get review completion progress
// @Tags Reviews
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reviews/progress [get]
func (h *ReviewHandler) Progress(c *gin.Context) {
	ratio, err := h.reviews.Progress(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ReviewProgressResponse{
		Completed: ratio.Completed,
		Required:  ratio.Required,
		Reached:   ratio.Reached(),
	}, nil)
}
