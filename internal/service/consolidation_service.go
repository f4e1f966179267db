package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
	"github.com/noah-isme/rec-workflow-api/pkg/jobs"
	"github.com/noah-isme/rec-workflow-api/pkg/pdf"
)

// JobTypeConsolidate identifies queued re-consolidation work.
const JobTypeConsolidate = "consolidate_submission"

type consolidationDocStore interface {
	ListBySubmission(ctx context.Context, submissionID string, includeSuperseded bool) ([]models.Document, error)
	NextVersion(ctx context.Context, submissionID string, kind models.DocumentKind) (int, error)
	Create(ctx context.Context, doc *models.Document) error
	SupersedeActiveByKind(ctx context.Context, submissionID string, kind models.DocumentKind, at time.Time) error
}

type blobStore interface {
	Put(ref string, data []byte) (string, error)
	Get(ref string) ([]byte, error)
	Delete(ref string) error
}

type urlSigner interface {
	Generate(resourceID, blobRef string) (string, time.Time, error)
}

// ConsolidationService assembles the single consolidated application PDF from
// the generated forms and uploaded attachments of a submission.
type ConsolidationService struct {
	docs     consolidationDocStore
	blobs    blobStore
	merger   *pdf.Merger
	renderer *pdf.FormRenderer
	signer   urlSigner
	retain   bool
	logger   *zap.Logger
}

// NewConsolidationService constructs the service.
func NewConsolidationService(docs consolidationDocStore, blobs blobStore, signer urlSigner, retainOldBlobs bool, logger *zap.Logger) *ConsolidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsolidationService{
		docs:     docs,
		blobs:    blobs,
		merger:   pdf.NewMerger(),
		renderer: pdf.NewFormRenderer(),
		signer:   signer,
		retain:   retainOldBlobs,
		logger:   logger,
	}
}

// Consolidate merges the active documents of a submission into a fresh
// consolidated version. Attachments are preceded by a banner page. Parts that
// fail PDF validation are skipped and reported rather than failing the whole
// merge; the merge fails only when nothing mergeable remains.
func (s *ConsolidationService) Consolidate(ctx context.Context, submissionID string) (*dto.ConsolidationResult, error) {
	docs, err := s.docs.ListBySubmission(ctx, submissionID, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}

	byKind := make(map[models.DocumentKind]models.Document, len(docs))
	var oldConsolidated *models.Document
	for i := range docs {
		doc := docs[i]
		if doc.Kind == models.KindConsolidated {
			oldConsolidated = &doc
			continue
		}
		byKind[doc.Kind] = doc
	}

	parts := make([][]byte, 0, len(models.GeneratedKinds)+2*len(models.AttachmentKinds))
	skipped := make([]string, 0)

	appendPart := func(kind models.DocumentKind) {
		doc, ok := byKind[kind]
		if !ok {
			skipped = append(skipped, string(kind))
			return
		}
		data, err := s.blobs.Get(doc.BlobRef)
		if err != nil {
			s.logger.Warn("consolidation part unreadable", zap.String("submission_id", submissionID), zap.String("kind", string(kind)), zap.Error(err))
			skipped = append(skipped, string(kind))
			return
		}
		if err := s.merger.Validate(data); err != nil {
			s.logger.Warn("consolidation part invalid", zap.String("submission_id", submissionID), zap.String("kind", string(kind)), zap.Error(err))
			skipped = append(skipped, string(kind))
			return
		}
		parts = append(parts, data)
	}

	for _, kind := range models.GeneratedKinds {
		appendPart(kind)
	}
	for _, kind := range models.AttachmentKinds {
		if _, ok := byKind[kind]; !ok {
			skipped = append(skipped, string(kind))
			continue
		}
		separator, err := s.renderer.RenderSeparator(models.AttachmentTitles[kind])
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render separator page")
		}
		before := len(parts)
		parts = append(parts, separator)
		appendPart(kind)
		if len(parts) == before+1 {
			// Attachment was skipped; drop its orphaned banner.
			parts = parts[:before]
		}
	}

	if len(parts) == 0 {
		return nil, appErrors.Clone(appErrors.ErrDependency, "no mergeable documents for consolidation")
	}

	merged, pages, err := s.merger.Merge(parts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "pdf merge failed")
	}

	version, err := s.docs.NextVersion(ctx, submissionID, models.KindConsolidated)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate consolidated version")
	}
	ref := fmt.Sprintf("%s/%s/v%d.pdf", submissionID, models.KindConsolidated, version)
	if _, err := s.blobs.Put(ref, merged); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store consolidated pdf")
	}

	now := time.Now().UTC()
	if err := s.docs.SupersedeActiveByKind(ctx, submissionID, models.KindConsolidated, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire previous consolidated pdf")
	}
	doc := &models.Document{
		SubmissionID: submissionID,
		Kind:         models.KindConsolidated,
		Version:      version,
		BlobRef:      ref,
		SizeBytes:    int64(len(merged)),
		PageCount:    &pages,
		UploadedAt:   now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record consolidated pdf")
	}

	if !s.retain && oldConsolidated != nil {
		if err := s.blobs.Delete(oldConsolidated.BlobRef); err != nil {
			s.logger.Warn("failed to delete superseded consolidated blob", zap.String("blob_ref", oldConsolidated.BlobRef), zap.Error(err))
		}
	}

	result := &dto.ConsolidationResult{
		DocumentID:   doc.ID,
		PageCount:    pages,
		SkippedParts: skipped,
	}
	if s.signer != nil {
		url, _, err := s.signer.Generate(doc.ID, doc.BlobRef)
		if err != nil {
			s.logger.Warn("failed to sign consolidated url", zap.String("document_id", doc.ID), zap.Error(err))
		} else {
			result.SignedURL = url
		}
	}

	s.logger.Info("consolidated application assembled",
		zap.String("submission_id", submissionID),
		zap.Int("version", version),
		zap.Int("pages", pages),
		zap.Strings("skipped", skipped))
	return result, nil
}

// HandleJob adapts Consolidate to the background queue.
func (s *ConsolidationService) HandleJob(ctx context.Context, job jobs.Job) error {
	submissionID, ok := job.Payload.(string)
	if !ok || submissionID == "" {
		return fmt.Errorf("consolidation job %s carries no submission id", job.ID)
	}
	_, err := s.Consolidate(ctx, submissionID)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		// Submission vanished; nothing to retry.
		return nil
	}
	return err
}
