package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
	"github.com/noah-isme/rec-workflow-api/pkg/response"
)

type submissionService interface {
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Submission, error)
	GetByTrackingCode(ctx context.Context, code string, actor *models.JWTClaims) (*models.Submission, error)
	List(ctx context.Context, query dto.SubmissionQuery, actor *models.JWTClaims) ([]models.Submission, int, error)
	Classify(ctx context.Context, id string, req dto.ClassifyRequest, actor *models.JWTClaims) (*models.Submission, error)
	Decide(ctx context.Context, id string, req dto.DecideRequest, actor *models.JWTClaims) (*models.Submission, error)
	History(ctx context.Context, id string, actor *models.JWTClaims) ([]models.HistoryEvent, error)
}

// SubmissionHandler exposes submission reads, classification and decisions.
type SubmissionHandler struct {
	service submissionService
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service submissionService) *SubmissionHandler {
	return &SubmissionHandler{service: service}
}

// List godoc
// @Summary List submissions
// @Tags Submissions
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param category query string false "Review category"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	query := dto.SubmissionQuery{}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				query.Status = append(query.Status, models.SubmissionStatus(part))
			}
		}
	}
	if raw := c.Query("category"); raw != "" {
		query.Category = models.ReviewCategory(strings.ToUpper(strings.TrimSpace(raw)))
	}
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	subs, total, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	pageSize := query.Limit
	if pageSize <= 0 {
		pageSize = 20
	}
	pagination := &models.Pagination{
		Page:       query.Offset/pageSize + 1,
		PageSize:   pageSize,
		TotalCount: total,
	}
	response.JSON(c, http.StatusOK, subs, pagination)
}

// Get godoc
// @Summary Get submission detail
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	sub, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Track godoc
// @Summary Look up a submission by tracking code
// @Tags Submissions
// @Produce json
// @Param code path string true "Tracking code"
// @Success 200 {object} response.Envelope
// @Router /submissions/track/{code} [get]
func (h *SubmissionHandler) Track(c *gin.Context) {
	sub, err := h.service.GetByTrackingCode(c.Request.Context(), c.Param("code"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// History godoc
// @Summary Get submission timeline
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/history [get]
func (h *SubmissionHandler) History(c *gin.Context) {
	events, err := h.service.History(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Classify godoc
// @Summary Classify a verified submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ClassifyRequest true "Classification payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/classify [post]
func (h *SubmissionHandler) Classify(c *gin.Context) {
	var req dto.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid classification payload"))
		return
	}
	sub, err := h.service.Classify(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Decide godoc
// @Summary Record the board decision
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.DecideRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/decision [post]
func (h *SubmissionHandler) Decide(c *gin.Context) {
	var req dto.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	sub, err := h.service.Decide(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}
