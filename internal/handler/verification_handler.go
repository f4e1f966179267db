package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	svc "github.com/noah-isme/rec-workflow-api/internal/service"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
	"github.com/noah-isme/rec-workflow-api/pkg/jobs"
	"github.com/noah-isme/rec-workflow-api/pkg/response"
)

type verificationService interface {
	Verify(ctx context.Context, documentID string, req dto.VerifyDocumentRequest, actor *models.JWTClaims) (*models.Document, error)
	Undo(ctx context.Context, documentID string, actor *models.JWTClaims) (*models.Document, error)
	Complete(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.ConsolidationResult, error)
}

type consolidationEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// VerificationHandler exposes document verification endpoints.
type VerificationHandler struct {
	service verificationService
	queue   consolidationEnqueuer
}

// NewVerificationHandler constructs the handler.
func NewVerificationHandler(service verificationService, queue consolidationEnqueuer) *VerificationHandler {
	return &VerificationHandler{service: service, queue: queue}
}

// Verify godoc
// @Summary Approve or reject one document
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.VerifyDocumentRequest true "Verification decision"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/verify [post]
func (h *VerificationHandler) Verify(c *gin.Context) {
	var req dto.VerifyDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid verification payload"))
		return
	}
	doc, err := h.service.Verify(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Undo godoc
// @Summary Undo the latest verification decision
// @Tags Verification
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/verify/undo [post]
func (h *VerificationHandler) Undo(c *gin.Context) {
	doc, err := h.service.Undo(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Complete godoc
// @Summary Seal verification and build the consolidated application
// @Tags Verification
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/verification/complete [post]
func (h *VerificationHandler) Complete(c *gin.Context) {
	result, err := h.service.Complete(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reconsolidate godoc
// @Summary Queue a rebuild of the consolidated application
// @Tags Verification
// @Produce json
// @Param id path string true "Submission ID"
// @Success 202 {object} response.Envelope
// @Router /submissions/{id}/consolidate [post]
func (h *VerificationHandler) Reconsolidate(c *gin.Context) {
	if h.queue == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrDependency, "consolidation worker unavailable"))
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: svc.JobTypeConsolidate, Payload: c.Param("id")}
	if err := h.queue.Enqueue(job); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"jobId": job.ID})
}
