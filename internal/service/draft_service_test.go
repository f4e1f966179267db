package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	"github.com/noah-isme/rec-workflow-api/pkg/config"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

type draftStubs struct {
	drafts    map[string]*models.DraftSubmission
	subs      []*models.Submission
	documents []*models.Document
	claimErr  error
}

func (s *draftStubs) Create(_ context.Context, draft *models.DraftSubmission) error {
	if draft.ID == "" {
		draft.ID = "draft-1"
	}
	s.drafts[draft.ID] = draft
	return nil
}

func (s *draftStubs) FindByID(_ context.Context, id string) (*models.DraftSubmission, error) {
	draft, ok := s.drafts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *draft
	return &clone, nil
}

func (s *draftStubs) ListByResearcher(_ context.Context, researcherID string) ([]models.DraftSubmission, error) {
	out := make([]models.DraftSubmission, 0)
	for _, draft := range s.drafts {
		if draft.ResearcherID == researcherID {
			out = append(out, *draft)
		}
	}
	return out, nil
}

func (s *draftStubs) UpdateSteps(_ context.Context, id string, stepsRaw []byte, updatedAt time.Time) error {
	draft, ok := s.drafts[id]
	if !ok || draft.SubmissionID != nil {
		return sql.ErrNoRows
	}
	draft.StepsRaw = stepsRaw
	draft.UpdatedAt = updatedAt
	return nil
}

func (s *draftStubs) MarkSubmitted(_ context.Context, _ sqlx.ExtContext, id, submissionID string, _ time.Time) error {
	if s.claimErr != nil {
		return s.claimErr
	}
	draft, ok := s.drafts[id]
	if !ok || draft.SubmissionID != nil {
		return sql.ErrNoRows
	}
	draft.SubmissionID = &submissionID
	return nil
}

type draftSubCreator struct{ stubs *draftStubs }

func (c *draftSubCreator) CreateTx(_ context.Context, _ sqlx.ExtContext, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = "sub-1"
	}
	c.stubs.subs = append(c.stubs.subs, sub)
	return nil
}

type draftDocCreator struct{ stubs *draftStubs }

func (c *draftDocCreator) CreateTx(_ context.Context, _ sqlx.ExtContext, doc *models.Document) error {
	c.stubs.documents = append(c.stubs.documents, doc)
	return nil
}

type draftTxMock struct {
	db *sqlx.DB
}

func (m *draftTxMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, opts)
}

func newDraftTxMock(t *testing.T) (*draftTxMock, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { _ = db.Close() })
	return &draftTxMock{db: sqlxdb}, mock
}

func newDraftFixture(t *testing.T) (*DraftService, *draftStubs, *memBlobStore, sqlmock.Sqlmock) {
	t.Helper()
	stubs := &draftStubs{drafts: map[string]*models.DraftSubmission{}}
	blobs := newMemBlobStore()
	tx, mock := newDraftTxMock(t)
	svc := NewDraftService(stubs, &draftSubCreator{stubs: stubs}, &draftDocCreator{stubs: stubs}, blobs, tx, nil,
		config.StorageConfig{MaxFileSizeBytes: 20 * 1024 * 1024},
		config.ReviewConfig{TrackingCodePrefix: "REC"}, nil)
	return svc, stubs, blobs, mock
}

func fillDraftSteps(t *testing.T, svc *DraftService, id string) {
	t.Helper()
	actor := researcherClaims()
	_, err := svc.UpdateStep(context.Background(), id, dto.UpdateDraftStepRequest{
		Step: "application",
		Application: &models.ApplicationStep{
			StudyTitle:            "Cohort Study",
			PrincipalInvestigator: "Dr. Reyes",
			Institution:           "State University",
			DurationMonths:        12,
		},
	}, actor)
	require.NoError(t, err)
	_, err = svc.UpdateStep(context.Background(), id, dto.UpdateDraftStepRequest{
		Step: "protocol",
		Protocol: &models.ProtocolStep{
			Background:  "prior work",
			Objectives:  "measure outcomes",
			Methodology: "longitudinal survey",
			SampleSize:  200,
		},
	}, actor)
	require.NoError(t, err)
	_, err = svc.UpdateStep(context.Background(), id, dto.UpdateDraftStepRequest{
		Step: "consent",
		Consent: &models.ConsentStep{
			ProcedureSummary:   "quarterly interviews",
			RisksAndBenefits:   "minimal risk",
			ContactInformation: "rec@example.edu",
		},
	}, actor)
	require.NoError(t, err)
}

func draftAttachments(t *testing.T) []dto.FileUpload {
	t.Helper()
	uploads := make([]dto.FileUpload, 0, len(models.AttachmentKinds))
	for _, kind := range models.AttachmentKinds {
		uploads = append(uploads, dto.FileUpload{Kind: kind, Filename: string(kind) + ".pdf", Data: validPDF(t)})
	}
	return uploads
}

func TestSubmitRejectsIncompleteDraft(t *testing.T) {
	svc, _, _, _ := newDraftFixture(t)
	draft, err := svc.Create(context.Background(), dto.CreateDraftRequest{Title: "Cohort Study"}, researcherClaims())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), draft.ID, draftAttachments(t), researcherClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestSubmitCommitsDraftAtomically(t *testing.T) {
	svc, stubs, blobs, mock := newDraftFixture(t)
	draft, err := svc.Create(context.Background(), dto.CreateDraftRequest{Title: "Cohort Study"}, researcherClaims())
	require.NoError(t, err)
	fillDraftSteps(t, svc, draft.ID)

	mock.ExpectBegin()
	mock.ExpectCommit()

	sub, err := svc.Submit(context.Background(), draft.ID, draftAttachments(t), researcherClaims())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sub.TrackingCode, "REC-"))
	require.Equal(t, models.StatusPendingVerification, sub.Status)
	require.Equal(t, models.CategoryUnclassified, sub.Category)

	// Three rendered forms plus three attachments, all at version 1.
	require.Len(t, stubs.documents, 6)
	require.Len(t, blobs.blobs, 6)
	for _, doc := range stubs.documents {
		require.Equal(t, 1, doc.Version)
		require.Nil(t, doc.IsVerified)
	}
	require.NotNil(t, stubs.drafts[draft.ID].SubmissionID)

	_, err = svc.Submit(context.Background(), draft.ID, draftAttachments(t), researcherClaims())
	require.ErrorIs(t, err, appErrors.ErrAlreadySubmitted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRollsBackWhenDraftClaimLost(t *testing.T) {
	svc, stubs, blobs, mock := newDraftFixture(t)
	draft, err := svc.Create(context.Background(), dto.CreateDraftRequest{Title: "Cohort Study"}, researcherClaims())
	require.NoError(t, err)
	fillDraftSteps(t, svc, draft.ID)

	// A concurrent submit won the claim on the draft row: the whole
	// transaction must roll back and no blob may survive.
	stubs.claimErr = sql.ErrNoRows
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = svc.Submit(context.Background(), draft.ID, draftAttachments(t), researcherClaims())
	require.ErrorIs(t, err, appErrors.ErrAlreadySubmitted)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Empty(t, blobs.blobs)
	require.Nil(t, stubs.drafts[draft.ID].SubmissionID)
}

func TestSubmitCleansUpWhenBindFails(t *testing.T) {
	svc, stubs, blobs, mock := newDraftFixture(t)
	draft, err := svc.Create(context.Background(), dto.CreateDraftRequest{Title: "Cohort Study"}, researcherClaims())
	require.NoError(t, err)
	fillDraftSteps(t, svc, draft.ID)

	stubs.claimErr = sql.ErrConnDone
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = svc.Submit(context.Background(), draft.ID, draftAttachments(t), researcherClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Empty(t, blobs.blobs)
}

func TestSubmitRequiresEveryAttachment(t *testing.T) {
	svc, _, _, _ := newDraftFixture(t)
	draft, err := svc.Create(context.Background(), dto.CreateDraftRequest{Title: "Cohort Study"}, researcherClaims())
	require.NoError(t, err)
	fillDraftSteps(t, svc, draft.ID)

	uploads := draftAttachments(t)[:2]
	_, err = svc.Submit(context.Background(), draft.ID, uploads, researcherClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateStepValidatesPayload(t *testing.T) {
	svc, _, _, _ := newDraftFixture(t)
	draft, err := svc.Create(context.Background(), dto.CreateDraftRequest{Title: "Cohort Study"}, researcherClaims())
	require.NoError(t, err)

	_, err = svc.UpdateStep(context.Background(), draft.ID, dto.UpdateDraftStepRequest{
		Step:        "application",
		Application: &models.ApplicationStep{StudyTitle: "only a title"},
	}, researcherClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDraftOwnershipEnforced(t *testing.T) {
	svc, _, _, _ := newDraftFixture(t)
	draft, err := svc.Create(context.Background(), dto.CreateDraftRequest{Title: "Cohort Study"}, researcherClaims())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), draft.ID, &models.JWTClaims{UserID: "someone-else", Role: models.RoleResearcher})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}
