package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
	"github.com/noah-isme/rec-workflow-api/pkg/pdf"
	"github.com/noah-isme/rec-workflow-api/pkg/storage"
)

type consolidationDocStub struct {
	docs    []models.Document
	created []*models.Document
	version int
}

func (s *consolidationDocStub) ListBySubmission(_ context.Context, submissionID string, includeSuperseded bool) ([]models.Document, error) {
	out := make([]models.Document, 0)
	for _, doc := range s.docs {
		if doc.SubmissionID == submissionID && (includeSuperseded || doc.SupersededAt == nil) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *consolidationDocStub) NextVersion(context.Context, string, models.DocumentKind) (int, error) {
	s.version++
	return s.version, nil
}

func (s *consolidationDocStub) Create(_ context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc-consolidated-v%d", doc.Version)
	}
	s.created = append(s.created, doc)
	return nil
}

func (s *consolidationDocStub) SupersedeActiveByKind(_ context.Context, submissionID string, kind models.DocumentKind, at time.Time) error {
	for i := range s.docs {
		if s.docs[i].SubmissionID == submissionID && s.docs[i].Kind == kind && s.docs[i].SupersededAt == nil {
			s.docs[i].SupersededAt = &at
		}
	}
	return nil
}

func seedConsolidationFixture(t *testing.T, blobs *memBlobStore, docStub *consolidationDocStub, kinds []models.DocumentKind) {
	t.Helper()
	renderer := pdf.NewFormRenderer()
	for _, kind := range kinds {
		data, err := renderer.Render(pdf.FormDocument{
			Title:    string(kind),
			Sections: []pdf.FormSection{{Paragraphs: []string{"body of " + string(kind)}}},
		})
		require.NoError(t, err)
		ref := "sub-1/" + string(kind) + "/v1.pdf"
		_, err = blobs.Put(ref, data)
		require.NoError(t, err)
		docStub.docs = append(docStub.docs, models.Document{
			ID:           "doc-" + string(kind),
			SubmissionID: "sub-1",
			Kind:         kind,
			Version:      1,
			BlobRef:      ref,
		})
	}
}

func TestConsolidateMergesFormsAndSeparatedAttachments(t *testing.T) {
	blobs := newMemBlobStore()
	docStub := &consolidationDocStub{}
	all := append(append([]models.DocumentKind{}, models.GeneratedKinds...), models.AttachmentKinds...)
	seedConsolidationFixture(t, blobs, docStub, all)

	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewConsolidationService(docStub, blobs, signer, true, nil)

	result, err := svc.Consolidate(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Empty(t, result.SkippedParts)
	require.NotEmpty(t, result.SignedURL)
	// Three one-page forms, three attachments each preceded by a banner page.
	require.Equal(t, 9, result.PageCount)
	require.Len(t, docStub.created, 1)
	require.Equal(t, models.KindConsolidated, docStub.created[0].Kind)

	merged, err := blobs.Get(docStub.created[0].BlobRef)
	require.NoError(t, err)
	require.NoError(t, pdf.NewMerger().Validate(merged))
}

func TestConsolidateSkipsCorruptParts(t *testing.T) {
	blobs := newMemBlobStore()
	docStub := &consolidationDocStub{}
	seedConsolidationFixture(t, blobs, docStub, models.GeneratedKinds)

	// A corrupt attachment is skipped, not fatal.
	_, err := blobs.Put("sub-1/research_instrument/v1.pdf", []byte("not a pdf"))
	require.NoError(t, err)
	docStub.docs = append(docStub.docs, models.Document{
		ID:           "doc-bad",
		SubmissionID: "sub-1",
		Kind:         models.KindResearchInstrument,
		Version:      1,
		BlobRef:      "sub-1/research_instrument/v1.pdf",
	})

	svc := NewConsolidationService(docStub, blobs, nil, true, nil)
	result, err := svc.Consolidate(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Contains(t, result.SkippedParts, string(models.KindResearchInstrument))
	require.Equal(t, 3, result.PageCount)
}

func TestConsolidateFailsWithNothingMergeable(t *testing.T) {
	blobs := newMemBlobStore()
	docStub := &consolidationDocStub{}

	svc := NewConsolidationService(docStub, blobs, nil, true, nil)
	_, err := svc.Consolidate(context.Background(), "sub-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrDependency.Code, appErrors.FromError(err).Code)
}

func TestReconsolidationSupersedesPriorVersion(t *testing.T) {
	blobs := newMemBlobStore()
	docStub := &consolidationDocStub{}
	seedConsolidationFixture(t, blobs, docStub, models.GeneratedKinds)

	svc := NewConsolidationService(docStub, blobs, nil, true, nil)
	first, err := svc.Consolidate(context.Background(), "sub-1")
	require.NoError(t, err)

	docStub.docs = append(docStub.docs, *docStub.created[0])
	second, err := svc.Consolidate(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotEqual(t, first.DocumentID, second.DocumentID)

	// Prior consolidated row is retired, its blob kept for history.
	require.NotNil(t, docStub.docs[len(docStub.docs)-1].SupersededAt)
	require.Len(t, blobs.blobs, 5)
}
