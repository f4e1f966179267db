package models

import "time"

// SubmissionStatus captures workflow states for research ethics submissions.
type SubmissionStatus string

const (
	StatusPendingVerification SubmissionStatus = "PENDING_VERIFICATION"
	StatusVerified            SubmissionStatus = "VERIFIED"
	StatusAwaitingAssignment  SubmissionStatus = "AWAITING_ASSIGNMENT"
	StatusUnderReview         SubmissionStatus = "UNDER_REVIEW"
	StatusReviewed            SubmissionStatus = "REVIEWED"
	StatusNeedsRevision       SubmissionStatus = "NEEDS_REVISION"
	StatusDecided             SubmissionStatus = "DECIDED"
	StatusDone                SubmissionStatus = "DONE"
)

// ReviewCategory enumerates classification outcomes.
type ReviewCategory string

const (
	CategoryUnclassified ReviewCategory = "UNCLASSIFIED"
	CategoryExempted     ReviewCategory = "EXEMPTED"
	CategoryExpedited    ReviewCategory = "EXPEDITED"
	CategoryFullReview   ReviewCategory = "FULL_REVIEW"
)

// transitions holds every legal status edge. The only backward edges are the
// revision loop: UNDER_REVIEW|REVIEWED -> NEEDS_REVISION -> PENDING_VERIFICATION.
var transitions = map[SubmissionStatus][]SubmissionStatus{
	StatusPendingVerification: {StatusVerified},
	StatusVerified:            {StatusAwaitingAssignment, StatusDone},
	StatusAwaitingAssignment:  {StatusUnderReview},
	StatusUnderReview:         {StatusReviewed, StatusNeedsRevision},
	StatusReviewed:            {StatusDecided, StatusNeedsRevision},
	StatusNeedsRevision:       {StatusPendingVerification},
	StatusDecided:             {},
	StatusDone:                {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to SubmissionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Submission is one research ethics application moving through the workflow.
type Submission struct {
	ID           string           `db:"id" json:"id"`
	TrackingCode string           `db:"tracking_code" json:"trackingCode"`
	Title        string           `db:"title" json:"title"`
	ResearcherID string           `db:"researcher_id" json:"researcherId"`
	Status       SubmissionStatus `db:"status" json:"status"`
	Category     ReviewCategory   `db:"category" json:"category"`
	Decision     *string          `db:"decision" json:"decision,omitempty"`
	VerifiedBy   *string          `db:"verified_by" json:"verifiedBy,omitempty"`
	ClassifiedBy *string          `db:"classified_by" json:"classifiedBy,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
	SubmittedAt  *time.Time       `db:"submitted_at" json:"submittedAt,omitempty"`
	VerifiedAt   *time.Time       `db:"verified_at" json:"verifiedAt,omitempty"`
	ClassifiedAt *time.Time       `db:"classified_at" json:"classifiedAt,omitempty"`
	ReviewedAt   *time.Time       `db:"reviewed_at" json:"reviewedAt,omitempty"`
	DecidedAt    *time.Time       `db:"decided_at" json:"decidedAt,omitempty"`
	Revision     int              `db:"revision" json:"revision"`
}

// SubmissionFilter constrains listing queries.
type SubmissionFilter struct {
	Status       []SubmissionStatus
	Category     ReviewCategory
	ResearcherID string
	Limit        int
	Offset       int
}
