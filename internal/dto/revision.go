package dto

import "github.com/noah-isme/rec-workflow-api/internal/models"

// RequestRevisionRequest returns flagged documents to the researcher.
type RequestRevisionRequest struct {
	Checklist []models.DocumentKind `json:"checklist" validate:"required,min=1"`
	Comment   string                `json:"comment" validate:"required"`
}

// ResubmitRequest is parsed from the multipart resubmission form. Replacement
// attachments travel alongside as uploads keyed by document kind; flagged
// generated forms are re-rendered from the updated step payloads instead.
type ResubmitRequest struct {
	Application *models.ApplicationStep `json:"application,omitempty"`
	Protocol    *models.ProtocolStep    `json:"protocol,omitempty"`
	Consent     *models.ConsentStep     `json:"consent,omitempty"`
}
