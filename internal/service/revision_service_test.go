package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
	"github.com/noah-isme/rec-workflow-api/pkg/pdf"
)

type memBlobStore struct {
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[string][]byte{}}
}

func (s *memBlobStore) Put(ref string, data []byte) (string, error) {
	if _, ok := s.blobs[ref]; ok {
		return "", fmt.Errorf("blob path already occupied: %s", ref)
	}
	s.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (s *memBlobStore) Get(ref string) ([]byte, error) {
	data, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", ref)
	}
	return data, nil
}

func (s *memBlobStore) Delete(ref string) error {
	delete(s.blobs, ref)
	return nil
}

type revisionStubs struct {
	sub       *models.Submission
	open      *models.RevisionRequest
	created   []*models.RevisionRequest
	documents []*models.Document
	versions  map[models.DocumentKind]int
}

func (s *revisionStubs) Create(_ context.Context, req *models.RevisionRequest) error {
	if req.ID == "" {
		req.ID = "rr-1"
	}
	s.created = append(s.created, req)
	s.open = req
	return nil
}

func (s *revisionStubs) FindOpenBySubmission(_ context.Context, submissionID string) (*models.RevisionRequest, error) {
	if s.open == nil || s.open.SubmissionID != submissionID {
		return nil, sql.ErrNoRows
	}
	return s.open, nil
}

func (s *revisionStubs) Resolve(_ context.Context, id string, at time.Time) error {
	if s.open == nil || s.open.ID != id {
		return sql.ErrNoRows
	}
	s.open.ResolvedAt = &at
	s.open = nil
	return nil
}

func (s *revisionStubs) FindByID(_ context.Context, id string) (*models.Submission, error) {
	if s.sub == nil || s.sub.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *s.sub
	return &clone, nil
}

func (s *revisionStubs) UpdateStatus(_ context.Context, id string, from, to models.SubmissionStatus) error {
	if s.sub.ID != id || s.sub.Status != from {
		return sql.ErrNoRows
	}
	s.sub.Status = to
	return nil
}

func (s *revisionStubs) IncrementRevision(_ context.Context, id string) error {
	s.sub.Revision++
	s.sub.VerifiedAt = nil
	s.sub.ReviewedAt = nil
	return nil
}

func (s *revisionStubs) NextVersion(_ context.Context, _ string, kind models.DocumentKind) (int, error) {
	s.versions[kind]++
	return s.versions[kind] + 1, nil // existing v1 plus prior replacements
}

func (s *revisionStubs) CreateDocument(doc *models.Document) {
	s.documents = append(s.documents, doc)
}

type revisionDocAdapter struct{ stubs *revisionStubs }

func (a *revisionDocAdapter) NextVersion(ctx context.Context, submissionID string, kind models.DocumentKind) (int, error) {
	return a.stubs.NextVersion(ctx, submissionID, kind)
}

func (a *revisionDocAdapter) Create(_ context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = "doc-" + string(doc.Kind)
	}
	a.stubs.CreateDocument(doc)
	return nil
}

func (a *revisionDocAdapter) SupersedeActiveByKind(context.Context, string, models.DocumentKind, time.Time) error {
	return nil
}

func newRevisionFixture(status models.SubmissionStatus) (*RevisionService, *revisionStubs, *memBlobStore) {
	stubs := &revisionStubs{
		sub: &models.Submission{
			ID:           "sub-1",
			Title:        "Cohort Study",
			ResearcherID: "researcher-1",
			Status:       status,
			Revision:     0,
		},
		versions: map[models.DocumentKind]int{},
	}
	blobs := newMemBlobStore()
	svc := NewRevisionService(stubs, stubs, &revisionDocAdapter{stubs: stubs}, blobs, nil, NewSubmissionLocks(), 0, nil)
	return svc, stubs, blobs
}

func validPDF(t *testing.T) []byte {
	t.Helper()
	data, err := pdf.NewFormRenderer().Render(pdf.FormDocument{
		Title:    "Attachment",
		Sections: []pdf.FormSection{{Paragraphs: []string{"content"}}},
	})
	require.NoError(t, err)
	return data
}

func researcherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "researcher-1", Role: models.RoleResearcher}
}

func TestRequestRevisionFlagsDocuments(t *testing.T) {
	svc, stubs, _ := newRevisionFixture(models.StatusUnderReview)

	req := dto.RequestRevisionRequest{
		Checklist: []models.DocumentKind{models.KindResearchInstrument, models.KindConsentForm},
		Comment:   "instrument lacks version, consent misses withdrawal clause",
	}
	revision, err := svc.Request(context.Background(), "sub-1", req, secretariatClaims())
	require.NoError(t, err)
	require.Equal(t, models.StatusNeedsRevision, stubs.sub.Status)
	require.Len(t, revision.Checklist, 2)

	// A second request cannot open while one is pending.
	stubs.sub.Status = models.StatusUnderReview
	_, err = svc.Request(context.Background(), "sub-1", req, secretariatClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRequestRevisionRejectsConsolidatedKind(t *testing.T) {
	svc, _, _ := newRevisionFixture(models.StatusReviewed)

	_, err := svc.Request(context.Background(), "sub-1", dto.RequestRevisionRequest{
		Checklist: []models.DocumentKind{models.KindConsolidated},
		Comment:   "x",
	}, secretariatClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestResubmitCoversChecklistAndReentersVerification(t *testing.T) {
	svc, stubs, blobs := newRevisionFixture(models.StatusUnderReview)

	_, err := svc.Request(context.Background(), "sub-1", dto.RequestRevisionRequest{
		Checklist: []models.DocumentKind{models.KindResearchInstrument, models.KindConsentForm},
		Comment:   "fix both",
	}, secretariatClaims())
	require.NoError(t, err)

	// Missing consent step payload fails the coverage check.
	uploads := []dto.FileUpload{{Kind: models.KindResearchInstrument, Filename: "instrument.pdf", Data: validPDF(t)}}
	_, err = svc.Resubmit(context.Background(), "sub-1", dto.ResubmitRequest{}, uploads, researcherClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req := dto.ResubmitRequest{Consent: &models.ConsentStep{
		ProcedureSummary:   "interviews",
		RisksAndBenefits:   "minimal risk",
		WithdrawalClause:   "may withdraw at any time",
		ContactInformation: "rec@example.edu",
	}}
	sub, err := svc.Resubmit(context.Background(), "sub-1", req, uploads, researcherClaims())
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingVerification, sub.Status)
	require.Equal(t, 1, sub.Revision)
	require.Len(t, stubs.documents, 2)
	require.Len(t, blobs.blobs, 2)
	for _, doc := range stubs.documents {
		require.Nil(t, doc.IsVerified)
		require.NotNil(t, doc.PageCount)
	}
}

func TestResubmitRejectsUploadOutsideChecklist(t *testing.T) {
	svc, _, _ := newRevisionFixture(models.StatusUnderReview)

	_, err := svc.Request(context.Background(), "sub-1", dto.RequestRevisionRequest{
		Checklist: []models.DocumentKind{models.KindResearchInstrument},
		Comment:   "fix",
	}, secretariatClaims())
	require.NoError(t, err)

	uploads := []dto.FileUpload{{Kind: models.KindEndorsementLetter, Filename: "letter.pdf", Data: validPDF(t)}}
	_, err = svc.Resubmit(context.Background(), "sub-1", dto.ResubmitRequest{}, uploads, researcherClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestResubmitForbiddenForOtherResearcher(t *testing.T) {
	svc, _, _ := newRevisionFixture(models.StatusNeedsRevision)

	_, err := svc.Resubmit(context.Background(), "sub-1", dto.ResubmitRequest{}, nil, &models.JWTClaims{UserID: "intruder", Role: models.RoleResearcher})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}
