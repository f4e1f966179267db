package models

import "time"

// DraftSubmission is the researcher's multi-step application assembled
// incrementally. It is committed atomically into a Submission at final
// submit; partial drafts never touch the workflow aggregates.
type DraftSubmission struct {
	ID           string              `db:"id" json:"id"`
	ResearcherID string              `db:"researcher_id" json:"researcherId"`
	Title        string              `db:"title" json:"title"`
	Application  *ApplicationStep    `db:"-" json:"application,omitempty"`
	Protocol     *ProtocolStep       `db:"-" json:"protocol,omitempty"`
	Consent      *ConsentStep        `db:"-" json:"consent,omitempty"`
	StepsRaw     []byte              `db:"steps" json:"-"`
	SubmissionID *string             `db:"submission_id" json:"submissionId,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updatedAt"`
}

// ApplicationStep carries the application-form fields.
type ApplicationStep struct {
	StudyTitle            string `json:"studyTitle" validate:"required"`
	PrincipalInvestigator string `json:"principalInvestigator" validate:"required"`
	Institution           string `json:"institution" validate:"required"`
	StudySite             string `json:"studySite"`
	FundingSource         string `json:"fundingSource"`
	DurationMonths        int    `json:"durationMonths" validate:"gte=0"`
}

// ProtocolStep carries the research-protocol fields.
type ProtocolStep struct {
	Background      string `json:"background" validate:"required"`
	Objectives      string `json:"objectives" validate:"required"`
	Methodology     string `json:"methodology" validate:"required"`
	SampleSize      int    `json:"sampleSize" validate:"gte=0"`
	RiskAssessment  string `json:"riskAssessment"`
	DataManagement  string `json:"dataManagement"`
	EthicalConcerns string `json:"ethicalConcerns"`
}

// ConsentStep carries the informed-consent fields.
type ConsentStep struct {
	ProcedureSummary   string `json:"procedureSummary" validate:"required"`
	RisksAndBenefits   string `json:"risksAndBenefits" validate:"required"`
	ConfidentialityNote string `json:"confidentialityNote"`
	WithdrawalClause   string `json:"withdrawalClause"`
	ContactInformation string `json:"contactInformation" validate:"required"`
}

// Complete reports whether every generated-form step has been filled in.
func (d *DraftSubmission) Complete() bool {
	return d.Application != nil && d.Protocol != nil && d.Consent != nil
}
