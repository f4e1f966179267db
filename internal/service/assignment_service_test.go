package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	"github.com/noah-isme/rec-workflow-api/pkg/config"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

type assignmentStubs struct {
	sub         *models.Submission
	assignments []*models.ReviewerAssignment
	pool        []models.User
}

func (s *assignmentStubs) Create(_ context.Context, a *models.ReviewerAssignment) error {
	if a.ID == "" {
		a.ID = "as-" + a.ReviewerID
	}
	s.assignments = append(s.assignments, a)
	return nil
}

func (s *assignmentStubs) FindByReviewer(_ context.Context, submissionID, reviewerID string, revision int) (*models.ReviewerAssignment, error) {
	for _, a := range s.assignments {
		if a.SubmissionID == submissionID && a.ReviewerID == reviewerID && a.Revision == revision {
			return a, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentStubs) ListBySubmission(_ context.Context, submissionID string, revision int) ([]models.ReviewerAssignment, error) {
	out := make([]models.ReviewerAssignment, 0)
	for _, a := range s.assignments {
		if a.SubmissionID == submissionID && a.Revision == revision {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *assignmentStubs) ListAllBySubmission(_ context.Context, submissionID string) ([]models.ReviewerAssignment, error) {
	out := make([]models.ReviewerAssignment, 0)
	for _, a := range s.assignments {
		if a.SubmissionID == submissionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *assignmentStubs) ListByReviewer(_ context.Context, reviewerID string) ([]models.ReviewerAssignment, error) {
	out := make([]models.ReviewerAssignment, 0)
	for _, a := range s.assignments {
		if a.ReviewerID == reviewerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *assignmentStubs) UpdateDueDate(_ context.Context, id string, dueDate time.Time) error {
	for _, a := range s.assignments {
		if a.ID == id {
			a.DueDate = dueDate
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *assignmentStubs) FindByID(_ context.Context, id string) (*models.Submission, error) {
	if s.sub == nil || s.sub.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *s.sub
	return &clone, nil
}

func (s *assignmentStubs) UpdateStatus(_ context.Context, id string, from, to models.SubmissionStatus) error {
	if s.sub.ID != id || s.sub.Status != from {
		return sql.ErrNoRows
	}
	s.sub.Status = to
	return nil
}

func (s *assignmentStubs) Pool(context.Context) ([]models.User, error) {
	return s.pool, nil
}

func newAssignmentFixture(category models.ReviewCategory, poolSize int) (*AssignmentService, *assignmentStubs) {
	stubs := &assignmentStubs{
		sub: &models.Submission{
			ID:           "sub-1",
			ResearcherID: "researcher-1",
			Status:       models.StatusAwaitingAssignment,
			Category:     category,
		},
	}
	for i := 0; i < poolSize; i++ {
		stubs.pool = append(stubs.pool, models.User{ID: string(rune('a' + i)), Role: models.RoleReviewer, Active: true})
	}
	cfg := config.ReviewConfig{ExpeditedQuorum: 3, ExpeditedDueOffset: 14 * 24 * time.Hour, FullReviewDueOffset: 30 * 24 * time.Hour}
	svc := NewAssignmentService(stubs, stubs, stubs, nil, NewSubmissionLocks(), cfg, nil)
	return svc, stubs
}

func secretariatClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "sec-1", Role: models.RoleSecretariat}
}

func TestAssignExpeditedEnforcesExactQuorum(t *testing.T) {
	svc, _ := newAssignmentFixture(models.CategoryExpedited, 5)

	_, err := svc.Assign(context.Background(), "sub-1", dto.AssignReviewersRequest{ReviewerIDs: []string{"a", "b"}}, secretariatClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrQuorumMismatch.Code, appErrors.FromError(err).Code)

	resp, err := svc.Assign(context.Background(), "sub-1", dto.AssignReviewersRequest{ReviewerIDs: []string{"a", "b", "c"}}, secretariatClaims())
	require.NoError(t, err)
	require.Equal(t, 3, resp.Inserted)
	require.Zero(t, resp.Updated)
}

func TestAssignMovesSubmissionUnderReviewAndUpserts(t *testing.T) {
	svc, stubs := newAssignmentFixture(models.CategoryFullReview, 4)

	resp, err := svc.Assign(context.Background(), "sub-1", dto.AssignReviewersRequest{ReviewerIDs: []string{"a", "b"}}, secretariatClaims())
	require.NoError(t, err)
	require.Equal(t, 2, resp.Inserted)
	require.Equal(t, models.StatusUnderReview, stubs.sub.Status)

	// Re-running with an extended set refreshes existing bindings and adds
	// the new reviewer.
	due := time.Now().Add(48 * time.Hour).UTC()
	resp, err = svc.Assign(context.Background(), "sub-1", dto.AssignReviewersRequest{ReviewerIDs: []string{"a", "b", "c"}, DueDate: due}, secretariatClaims())
	require.NoError(t, err)
	require.Equal(t, 2, resp.Updated)
	require.Equal(t, 1, resp.Inserted)
	for _, a := range stubs.assignments {
		require.Equal(t, due, a.DueDate)
	}
}

func TestAssignRejectsReviewerOutsidePool(t *testing.T) {
	svc, _ := newAssignmentFixture(models.CategoryFullReview, 2)

	_, err := svc.Assign(context.Background(), "sub-1", dto.AssignReviewersRequest{ReviewerIDs: []string{"z"}}, secretariatClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignRejectsExemptedSubmissions(t *testing.T) {
	svc, _ := newAssignmentFixture(models.CategoryExempted, 3)

	_, err := svc.Assign(context.Background(), "sub-1", dto.AssignReviewersRequest{ReviewerIDs: []string{"a"}}, secretariatClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestAssignRejectsWrongPhase(t *testing.T) {
	svc, stubs := newAssignmentFixture(models.CategoryFullReview, 3)
	stubs.sub.Status = models.StatusPendingVerification

	_, err := svc.Assign(context.Background(), "sub-1", dto.AssignReviewersRequest{ReviewerIDs: []string{"a"}}, secretariatClaims())
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestAssignReportsPastCycleReviewers(t *testing.T) {
	svc, stubs := newAssignmentFixture(models.CategoryFullReview, 4)
	stubs.sub.Revision = 1
	stubs.assignments = append(stubs.assignments, &models.ReviewerAssignment{
		ID:           "assign-old",
		SubmissionID: "sub-1",
		ReviewerID:   "a",
		Revision:     0,
		Status:       models.AssignmentStatusCompleted,
	})

	resp, err := svc.Assign(context.Background(), "sub-1", dto.AssignReviewersRequest{ReviewerIDs: []string{"a", "b"}}, secretariatClaims())
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, resp.PastReviewerIDs)
}
