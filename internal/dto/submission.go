package dto

import (
	"github.com/noah-isme/rec-workflow-api/internal/models"
)

// CreateDraftRequest opens a new draft application.
type CreateDraftRequest struct {
	Title string `json:"title" validate:"required,max=300"`
}

// UpdateDraftStepRequest replaces one step of the draft. Exactly one of the
// step payloads must be set, matching the step name.
type UpdateDraftStepRequest struct {
	Step        string                  `json:"step" validate:"required,oneof=application protocol consent"`
	Application *models.ApplicationStep `json:"application,omitempty"`
	Protocol    *models.ProtocolStep    `json:"protocol,omitempty"`
	Consent     *models.ConsentStep     `json:"consent,omitempty"`
}

// ClassifyRequest assigns a review category to a verified submission.
type ClassifyRequest struct {
	Category models.ReviewCategory `json:"category" validate:"required"`
}

// DecideRequest records the final board decision.
type DecideRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED DISAPPROVED"`
	Minutes  string `json:"minutes"`
}

// SubmissionQuery mirrors supported listing filters.
type SubmissionQuery struct {
	Status   []models.SubmissionStatus
	Category models.ReviewCategory
	Limit    int
	Offset   int
}

// ConsolidationResult reports the outcome of a merge pass.
type ConsolidationResult struct {
	DocumentID   string   `json:"documentId"`
	PageCount    int      `json:"pageCount"`
	SignedURL    string   `json:"signedUrl,omitempty"`
	SkippedParts []string `json:"skippedParts,omitempty"`
}
