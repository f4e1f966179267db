package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

type stubDocStore struct {
	docs map[string]*models.Document
}

func (s *stubDocStore) FindByID(_ context.Context, id string) (*models.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *doc
	return &clone, nil
}

func (s *stubDocStore) ListBySubmission(_ context.Context, submissionID string, includeSuperseded bool) ([]models.Document, error) {
	out := make([]models.Document, 0)
	for _, doc := range s.docs {
		if doc.SubmissionID != submissionID {
			continue
		}
		if !includeSuperseded && doc.SupersededAt != nil {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (s *stubDocStore) UpdateVerification(_ context.Context, doc *models.Document) error {
	stored, ok := s.docs[doc.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.IsVerified = doc.IsVerified
	stored.Comment = doc.Comment
	stored.PrevIsVerified = doc.PrevIsVerified
	stored.PrevComment = doc.PrevComment
	stored.HasPriorState = doc.HasPriorState
	return nil
}

type stubSubStore struct {
	subs map[string]*models.Submission
}

func (s *stubSubStore) FindByID(_ context.Context, id string) (*models.Submission, error) {
	sub, ok := s.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *sub
	return &clone, nil
}

func (s *stubSubStore) UpdateStatus(_ context.Context, id string, from, to models.SubmissionStatus) error {
	sub, ok := s.subs[id]
	if !ok || sub.Status != from {
		return sql.ErrNoRows
	}
	sub.Status = to
	return nil
}

func (s *stubSubStore) SetVerified(_ context.Context, id, verifiedBy string, at time.Time) error {
	sub := s.subs[id]
	sub.VerifiedBy = &verifiedBy
	sub.VerifiedAt = &at
	return nil
}

type stubConsolidator struct {
	result *dto.ConsolidationResult
	err    error
	calls  int
}

func (s *stubConsolidator) Consolidate(context.Context, string) (*dto.ConsolidationResult, error) {
	s.calls++
	return s.result, s.err
}

func staffClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff}
}

func newVerificationFixture(status models.SubmissionStatus) (*VerificationService, *stubDocStore, *stubSubStore, *stubConsolidator) {
	docs := &stubDocStore{docs: map[string]*models.Document{
		"doc-1": {ID: "doc-1", SubmissionID: "sub-1", Kind: models.KindResearchInstrument},
		"doc-2": {ID: "doc-2", SubmissionID: "sub-1", Kind: models.KindEndorsementLetter},
	}}
	subs := &stubSubStore{subs: map[string]*models.Submission{
		"sub-1": {ID: "sub-1", Status: status},
	}}
	merge := &stubConsolidator{result: &dto.ConsolidationResult{DocumentID: "doc-c", PageCount: 9}}
	svc := NewVerificationService(docs, subs, merge, nil, NewSubmissionLocks(), nil)
	return svc, docs, subs, merge
}

func TestVerifyRecordsSnapshotAndIdempotentRepeat(t *testing.T) {
	svc, docs, _, _ := newVerificationFixture(models.StatusPendingVerification)

	doc, err := svc.Verify(context.Background(), "doc-1", dto.VerifyDocumentRequest{Approved: true, Comment: "ok"}, staffClaims())
	require.NoError(t, err)
	require.True(t, *doc.IsVerified)
	require.True(t, doc.HasPriorState)
	require.Nil(t, doc.PrevIsVerified)

	// Identical decision is a no-op; the snapshot still points at the
	// state before the first call.
	doc, err = svc.Verify(context.Background(), "doc-1", dto.VerifyDocumentRequest{Approved: true, Comment: "ok"}, staffClaims())
	require.NoError(t, err)
	require.Nil(t, docs.docs["doc-1"].PrevIsVerified)

	// A changed decision snapshots the approved state.
	doc, err = svc.Verify(context.Background(), "doc-1", dto.VerifyDocumentRequest{Approved: false, Comment: "blurry scan"}, staffClaims())
	require.NoError(t, err)
	require.False(t, *doc.IsVerified)
	require.NotNil(t, doc.PrevIsVerified)
	require.True(t, *doc.PrevIsVerified)
	require.Equal(t, "ok", doc.PrevComment)
}

func TestUndoRestoresPriorStateOnce(t *testing.T) {
	svc, docs, _, _ := newVerificationFixture(models.StatusPendingVerification)

	_, err := svc.Verify(context.Background(), "doc-1", dto.VerifyDocumentRequest{Approved: false, Comment: "reject"}, staffClaims())
	require.NoError(t, err)

	doc, err := svc.Undo(context.Background(), "doc-1", staffClaims())
	require.NoError(t, err)
	require.Nil(t, doc.IsVerified)
	require.Empty(t, doc.Comment)
	require.False(t, docs.docs["doc-1"].HasPriorState)

	_, err = svc.Undo(context.Background(), "doc-1", staffClaims())
	require.ErrorIs(t, err, appErrors.ErrNoPriorState)
}

func TestVerifyRejectedOutsideVerificationPhase(t *testing.T) {
	svc, _, _, _ := newVerificationFixture(models.StatusUnderReview)

	_, err := svc.Verify(context.Background(), "doc-1", dto.VerifyDocumentRequest{Approved: true}, staffClaims())
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestCompleteRequiresAllApproved(t *testing.T) {
	svc, docs, subs, merge := newVerificationFixture(models.StatusPendingVerification)

	_, err := svc.Complete(context.Background(), "sub-1", staffClaims())
	require.ErrorIs(t, err, appErrors.ErrIncompleteVerification)
	require.Zero(t, merge.calls)

	approved := true
	for _, doc := range docs.docs {
		doc.IsVerified = &approved
	}

	result, err := svc.Complete(context.Background(), "sub-1", staffClaims())
	require.NoError(t, err)
	require.Equal(t, 9, result.PageCount)
	require.Equal(t, 1, merge.calls)
	require.Equal(t, models.StatusVerified, subs.subs["sub-1"].Status)
	require.NotNil(t, subs.subs["sub-1"].VerifiedAt)
}

func TestCompleteFailsWhenConsolidationFails(t *testing.T) {
	svc, docs, subs, merge := newVerificationFixture(models.StatusPendingVerification)
	merge.err = errors.New("merge broke")
	merge.result = nil

	approved := true
	for _, doc := range docs.docs {
		doc.IsVerified = &approved
	}

	_, err := svc.Complete(context.Background(), "sub-1", staffClaims())
	require.Error(t, err)
	require.Equal(t, models.StatusPendingVerification, subs.subs["sub-1"].Status)
}
