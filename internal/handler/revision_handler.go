package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
	"github.com/noah-isme/rec-workflow-api/pkg/response"
)

type revisionService interface {
	Request(ctx context.Context, submissionID string, req dto.RequestRevisionRequest, actor *models.JWTClaims) (*models.RevisionRequest, error)
	Resubmit(ctx context.Context, submissionID string, req dto.ResubmitRequest, uploads []dto.FileUpload, actor *models.JWTClaims) (*models.Submission, error)
}

// RevisionHandler exposes the revision request and resubmission endpoints.
type RevisionHandler struct {
	service     revisionService
	maxFileSize int64
}

// NewRevisionHandler constructs the handler.
func NewRevisionHandler(service revisionService, maxFileSize int64) *RevisionHandler {
	return &RevisionHandler{service: service, maxFileSize: maxFileSize}
}

// Request godoc
// @Summary Send flagged documents back to the researcher
// @Tags Revisions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.RequestRevisionRequest true "Revision checklist"
// @Success 201 {object} response.Envelope
// @Router /submissions/{id}/revisions [post]
func (h *RevisionHandler) Request(c *gin.Context) {
	var req dto.RequestRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid revision payload"))
		return
	}
	revision, err := h.service.Request(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, revision)
}

// Resubmit godoc
// @Summary Resubmit replacement documents
// @Description Multipart form; replacement attachments are file fields named
// by document kind, updated form steps travel in a "payload" JSON field.
// @Tags Revisions
// @Accept mpfd
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/resubmit [post]
func (h *RevisionHandler) Resubmit(c *gin.Context) {
	uploads, err := readUploads(c, h.maxFileSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ResubmitRequest
	if raw := c.PostForm("payload"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resubmission payload"))
			return
		}
	}
	sub, err := h.service.Resubmit(c.Request.Context(), c.Param("id"), req, uploads, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}
