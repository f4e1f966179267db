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

type draftService interface {
	Create(ctx context.Context, req dto.CreateDraftRequest, actor *models.JWTClaims) (*models.DraftSubmission, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.DraftSubmission, error)
	List(ctx context.Context, actor *models.JWTClaims) ([]models.DraftSubmission, error)
	UpdateStep(ctx context.Context, id string, req dto.UpdateDraftStepRequest, actor *models.JWTClaims) (*models.DraftSubmission, error)
	Submit(ctx context.Context, id string, uploads []dto.FileUpload, actor *models.JWTClaims) (*models.Submission, error)
}

// DraftHandler exposes the researcher's draft application endpoints.
type DraftHandler struct {
	service     draftService
	maxFileSize int64
}

// NewDraftHandler constructs the handler.
func NewDraftHandler(service draftService, maxFileSize int64) *DraftHandler {
	return &DraftHandler{service: service, maxFileSize: maxFileSize}
}

// Create godoc
// @Summary Open a new draft application
// @Tags Drafts
// @Accept json
// @Produce json
// @Param payload body dto.CreateDraftRequest true "Draft payload"
// @Success 201 {object} response.Envelope
// @Router /drafts [post]
func (h *DraftHandler) Create(c *gin.Context) {
	var req dto.CreateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid draft payload"))
		return
	}
	draft, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, draft)
}

// List godoc
// @Summary List own drafts
// @Tags Drafts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /drafts [get]
func (h *DraftHandler) List(c *gin.Context) {
	drafts, err := h.service.List(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, drafts, nil)
}

// Get godoc
// @Summary Get draft detail
// @Tags Drafts
// @Produce json
// @Param id path string true "Draft ID"
// @Success 200 {object} response.Envelope
// @Router /drafts/{id} [get]
func (h *DraftHandler) Get(c *gin.Context) {
	draft, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// UpdateStep godoc
// @Summary Replace one step of a draft
// @Tags Drafts
// @Accept json
// @Produce json
// @Param id path string true "Draft ID"
// @Param payload body dto.UpdateDraftStepRequest true "Step payload"
// @Success 200 {object} response.Envelope
// @Router /drafts/{id}/steps [put]
func (h *DraftHandler) UpdateStep(c *gin.Context) {
	var req dto.UpdateDraftStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid step payload"))
		return
	}
	draft, err := h.service.UpdateStep(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Submit godoc
// @Summary Commit a draft into a submission
// @Description Multipart form; attachments are file fields named by document kind.
// @Tags Drafts
// @Accept mpfd
// @Produce json
// @Param id path string true "Draft ID"
// @Success 201 {object} response.Envelope
// @Router /drafts/{id}/submit [post]
func (h *DraftHandler) Submit(c *gin.Context) {
	uploads, err := readUploads(c, h.maxFileSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	sub, err := h.service.Submit(c.Request.Context(), c.Param("id"), uploads, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sub)
}
