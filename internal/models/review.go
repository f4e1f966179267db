package models

import "time"

// AssignmentStatus tracks an individual reviewer binding.
type AssignmentStatus string

const (
	AssignmentStatusAssigned   AssignmentStatus = "ASSIGNED"
	AssignmentStatusInProgress AssignmentStatus = "IN_PROGRESS"
	AssignmentStatusCompleted  AssignmentStatus = "COMPLETED"
)

// ReviewerAssignment binds a reviewer to a submission for one review pass.
// Assignments from prior revision cycles are retained read-only.
type ReviewerAssignment struct {
	ID           string           `db:"id" json:"id"`
	SubmissionID string           `db:"submission_id" json:"submissionId"`
	ReviewerID   string           `db:"reviewer_id" json:"reviewerId"`
	Revision     int              `db:"revision" json:"revision"`
	Status       AssignmentStatus `db:"status" json:"status"`
	AssignedAt   time.Time        `db:"assigned_at" json:"assignedAt"`
	DueDate      time.Time        `db:"due_date" json:"dueDate"`
	CompletedAt  *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
}

// ReviewRecommendation enumerates reviewer verdicts.
type ReviewRecommendation string

const (
	RecommendationApprove       ReviewRecommendation = "APPROVE"
	RecommendationMinorRevision ReviewRecommendation = "MINOR_REVISION"
	RecommendationMajorRevision ReviewRecommendation = "MAJOR_REVISION"
	RecommendationDisapprove    ReviewRecommendation = "DISAPPROVE"
)

// IsValidRecommendation reports whether the verdict is known.
func IsValidRecommendation(r ReviewRecommendation) bool {
	switch r {
	case RecommendationApprove, RecommendationMinorRevision, RecommendationMajorRevision, RecommendationDisapprove:
		return true
	}
	return false
}

// Review is one reviewer's sealed assessment, at most one per assignment.
type Review struct {
	ID             string               `db:"id" json:"id"`
	AssignmentID   string               `db:"assignment_id" json:"assignmentId"`
	SubmissionID   string               `db:"submission_id" json:"submissionId"`
	Recommendation ReviewRecommendation `db:"recommendation" json:"recommendation"`
	Remarks        string               `db:"remarks" json:"remarks"`
	SubmittedAt    time.Time            `db:"submitted_at" json:"submittedAt"`
}

// CompletionRatio pairs completed review count against the required quorum.
type CompletionRatio struct {
	Completed int `json:"completed"`
	Required  int `json:"required"`
}

// Reached reports whether the quorum has been met.
func (r CompletionRatio) Reached() bool {
	return r.Required > 0 && r.Completed >= r.Required
}
