package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionForwardPath(t *testing.T) {
	path := []SubmissionStatus{
		StatusPendingVerification,
		StatusVerified,
		StatusAwaitingAssignment,
		StatusUnderReview,
		StatusReviewed,
		StatusDecided,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestCanTransitionRevisionLoop(t *testing.T) {
	assert.True(t, CanTransition(StatusUnderReview, StatusNeedsRevision))
	assert.True(t, CanTransition(StatusReviewed, StatusNeedsRevision))
	assert.True(t, CanTransition(StatusNeedsRevision, StatusPendingVerification))
}

func TestCanTransitionRejectsOffTableEdges(t *testing.T) {
	cases := [][2]SubmissionStatus{
		{StatusPendingVerification, StatusUnderReview},
		{StatusVerified, StatusPendingVerification},
		{StatusDecided, StatusReviewed},
		{StatusDone, StatusPendingVerification},
		{StatusAwaitingAssignment, StatusReviewed},
	}
	for _, c := range cases {
		assert.False(t, CanTransition(c[0], c[1]), "%s -> %s", c[0], c[1])
	}
}

func TestCanTransitionExemptedShortCircuit(t *testing.T) {
	assert.True(t, CanTransition(StatusVerified, StatusDone))
}

func boolPtr(b bool) *bool { return &b }

func TestVerificationSetPredicates(t *testing.T) {
	docs := []Document{
		{ID: "d1", Kind: KindApplicationForm, IsVerified: boolPtr(true)},
		{ID: "d2", Kind: KindResearchProtocol},
		{ID: "d3", Kind: KindConsolidated, IsVerified: boolPtr(true)},
	}
	set := NewVerificationSet(docs)
	require.Len(t, set.Documents, 2)
	assert.False(t, set.AllApproved())
	assert.False(t, set.AnyRejected())
	assert.Len(t, set.Pending(), 1)

	docs[1].IsVerified = boolPtr(false)
	set = NewVerificationSet(docs)
	assert.True(t, set.AnyRejected())

	docs[1].IsVerified = boolPtr(true)
	set = NewVerificationSet(docs)
	assert.True(t, set.AllApproved())
}

func TestVerificationSetEmptyNeverApproved(t *testing.T) {
	assert.False(t, NewVerificationSet(nil).AllApproved())
}

func TestCompletionRatioReached(t *testing.T) {
	assert.False(t, CompletionRatio{Completed: 2, Required: 3}.Reached())
	assert.True(t, CompletionRatio{Completed: 3, Required: 3}.Reached())
	assert.False(t, CompletionRatio{Completed: 0, Required: 0}.Reached())
}
