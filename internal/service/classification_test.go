package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rec-workflow-api/internal/models"
	"github.com/noah-isme/rec-workflow-api/pkg/config"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

func testPolicy() reviewPolicy {
	return reviewPolicy{cfg: config.ReviewConfig{
		ExpeditedQuorum:     3,
		ExpeditedDueOffset:  14 * 24 * time.Hour,
		FullReviewDueOffset: 30 * 24 * time.Hour,
	}}
}

func TestCheckQuorumTable(t *testing.T) {
	policy := testPolicy()
	cases := []struct {
		name     string
		category models.ReviewCategory
		count    int
		poolSize int
		wantCode string
	}{
		{"expedited exact", models.CategoryExpedited, 3, 10, ""},
		{"expedited under", models.CategoryExpedited, 2, 10, appErrors.ErrQuorumMismatch.Code},
		{"expedited over", models.CategoryExpedited, 4, 10, appErrors.ErrQuorumMismatch.Code},
		{"full single", models.CategoryFullReview, 1, 5, ""},
		{"full whole pool", models.CategoryFullReview, 5, 5, ""},
		{"full empty", models.CategoryFullReview, 0, 5, appErrors.ErrQuorumMismatch.Code},
		{"full beyond pool", models.CategoryFullReview, 6, 5, appErrors.ErrQuorumMismatch.Code},
		{"exempted", models.CategoryExempted, 1, 5, appErrors.ErrInvalidTransition.Code},
		{"unclassified", models.CategoryUnclassified, 1, 5, appErrors.ErrValidation.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.CheckQuorum(tc.category, tc.count, tc.poolSize)
			if tc.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
		})
	}
}

func TestRequiredReviewsPerCategory(t *testing.T) {
	policy := testPolicy()
	assert.Equal(t, 3, policy.RequiredReviews(models.CategoryExpedited, 5))
	assert.Equal(t, 5, policy.RequiredReviews(models.CategoryFullReview, 5))
}

func TestExpeditedQuorumDefaultsWhenUnset(t *testing.T) {
	policy := reviewPolicy{}
	assert.Equal(t, defaultExpeditedQuorum, policy.ExpeditedQuorum())
}

func TestDueOffsetPerCategory(t *testing.T) {
	policy := testPolicy()
	assert.Equal(t, 14*24*time.Hour, policy.DueOffset(models.CategoryExpedited))
	assert.Equal(t, 30*24*time.Hour, policy.DueOffset(models.CategoryFullReview))
	assert.Zero(t, policy.DueOffset(models.CategoryExempted))
}
