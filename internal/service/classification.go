package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/rec-workflow-api/internal/models"
	"github.com/noah-isme/rec-workflow-api/pkg/config"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

const defaultExpeditedQuorum = 3

// reviewPolicy resolves the per-category review rules: how many reviewers a
// submission takes and how long they get. Pure over config, no I/O.
type reviewPolicy struct {
	cfg config.ReviewConfig
}

// ExpeditedQuorum returns the fixed expedited panel size.
func (p reviewPolicy) ExpeditedQuorum() int {
	if p.cfg.ExpeditedQuorum > 0 {
		return p.cfg.ExpeditedQuorum
	}
	return defaultExpeditedQuorum
}

// CheckQuorum validates a proposed reviewer count against the category policy:
// expedited reviews take a fixed panel, full reviews any non-empty subset of
// the pool, exempted submissions never reach assignment.
func (p reviewPolicy) CheckQuorum(category models.ReviewCategory, count, poolSize int) error {
	switch category {
	case models.CategoryExpedited:
		if quorum := p.ExpeditedQuorum(); count != quorum {
			return appErrors.Clone(appErrors.ErrQuorumMismatch, fmt.Sprintf("expedited review requires exactly %d reviewers", quorum))
		}
	case models.CategoryFullReview:
		if count < 1 || count > poolSize {
			return appErrors.Clone(appErrors.ErrQuorumMismatch, "full review requires between 1 reviewer and the whole pool")
		}
	case models.CategoryExempted:
		return appErrors.Clone(appErrors.ErrInvalidTransition, "exempted submissions are not assigned reviewers")
	default:
		return appErrors.Clone(appErrors.ErrValidation, "submission has not been classified")
	}
	return nil
}

// RequiredReviews returns how many sealed reviews close the review phase:
// the expedited panel size, or every assignment for a full review.
func (p reviewPolicy) RequiredReviews(category models.ReviewCategory, assigned int) int {
	if category == models.CategoryExpedited {
		return p.ExpeditedQuorum()
	}
	return assigned
}

// DueOffset returns the review window for a category.
func (p reviewPolicy) DueOffset(category models.ReviewCategory) time.Duration {
	switch category {
	case models.CategoryExpedited:
		return p.cfg.ExpeditedDueOffset
	case models.CategoryFullReview:
		return p.cfg.FullReviewDueOffset
	default:
		return p.cfg.ExemptedDueOffset
	}
}
