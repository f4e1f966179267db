package dto

import (
	"time"

	"github.com/noah-isme/rec-workflow-api/internal/models"
)

// AssignReviewersRequest binds the selected reviewer set to a submission.
type AssignReviewersRequest struct {
	ReviewerIDs []string  `json:"reviewerIds" validate:"required,min=1,dive,required"`
	DueDate     time.Time `json:"dueDate"`
}

// AssignReviewersResponse reports upsert counts plus reviewers from earlier
// revision cycles, so the secretariat can keep the panel consistent.
type AssignReviewersResponse struct {
	Updated         int      `json:"updated"`
	Inserted        int      `json:"inserted"`
	PastReviewerIDs []string `json:"pastReviewerIds,omitempty"`
}

// SubmitReviewRequest seals one reviewer's assessment.
type SubmitReviewRequest struct {
	Recommendation models.ReviewRecommendation `json:"recommendation" validate:"required"`
	Remarks        string                      `json:"remarks"`
}

// ReviewProgressResponse exposes the completion ratio.
type ReviewProgressResponse struct {
	Completed int  `json:"completed"`
	Required  int  `json:"required"`
	Reached   bool `json:"reached"`
}
