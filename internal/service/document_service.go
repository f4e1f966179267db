package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

type documentStore interface {
	FindByID(ctx context.Context, id string) (*models.Document, error)
	ListBySubmission(ctx context.Context, submissionID string, includeSuperseded bool) ([]models.Document, error)
}

type documentSubmissionStore interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
}

type documentAssignmentStore interface {
	FindByReviewer(ctx context.Context, submissionID, reviewerID string, revision int) (*models.ReviewerAssignment, error)
}

type blobOpener interface {
	Open(ref string) (*os.File, error)
}

type documentSigner interface {
	Generate(resourceID, blobRef string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (resourceID, blobRef string, expiresAt time.Time, err error)
}

// DocumentService exposes document listings and short-lived signed downloads.
type DocumentService struct {
	docs        documentStore
	subs        documentSubmissionStore
	assignments documentAssignmentStore
	blobs       blobOpener
	signer      documentSigner
	urlPrefix   string
	logger      *zap.Logger
}

// NewDocumentService constructs the service. urlPrefix is the route prefix
// signed tokens are appended to, e.g. "/api/v1/files".
func NewDocumentService(docs documentStore, subs documentSubmissionStore, assignments documentAssignmentStore, blobs blobOpener, signer documentSigner, urlPrefix string, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if urlPrefix == "" {
		urlPrefix = "/api/v1/files"
	}
	return &DocumentService{
		docs:        docs,
		subs:        subs,
		assignments: assignments,
		blobs:       blobs,
		signer:      signer,
		urlPrefix:   urlPrefix,
		logger:      logger,
	}
}

// List returns a submission's documents. Superseded versions are included
// only for verification staff roles.
func (s *DocumentService) List(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]dto.DocumentItem, error) {
	sub, err := s.authorize(ctx, submissionID, actor)
	if err != nil {
		return nil, err
	}
	includeSuperseded := actor.Role == models.RoleStaff || actor.Role == models.RoleSecretariat || actor.Role == models.RoleAdmin
	docs, err := s.docs.ListBySubmission(ctx, sub.ID, includeSuperseded)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	items := make([]dto.DocumentItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, dto.DocumentItem{
			ID:         doc.ID,
			Kind:       doc.Kind,
			Version:    doc.Version,
			SizeBytes:  doc.SizeBytes,
			PageCount:  doc.PageCount,
			IsVerified: doc.IsVerified,
			Comment:    doc.Comment,
			UploadedAt: doc.UploadedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

// DownloadURL mints a fresh signed link for one document. Links expire after
// the configured TTL and are never stored.
func (s *DocumentService) DownloadURL(ctx context.Context, documentID string, actor *models.JWTClaims) (*dto.DownloadURLResponse, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if _, err := s.authorize(ctx, doc.SubmissionID, actor); err != nil {
		return nil, err
	}
	if doc.BlobRef == "" {
		return &dto.DownloadURLResponse{Available: false}, nil
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.BlobRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &dto.DownloadURLResponse{
		URL:       fmt.Sprintf("%s/%s", s.urlPrefix, token),
		ExpiresAt: expiresAt.Format(time.RFC3339),
		Available: true,
	}, nil
}

// OpenByToken validates a signed token and opens the referenced blob. The
// returned name is the suggested download filename.
func (s *DocumentService) OpenByToken(token string) (*os.File, string, error) {
	resourceID, blobRef, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	file, err := s.blobs.Open(blobRef)
	if err != nil {
		s.logger.Warn("signed url points at missing blob", zap.String("resource_id", resourceID), zap.Error(err))
		return nil, "", appErrors.ErrNotFound
	}
	return file, path.Base(blobRef), nil
}

// authorize loads the submission and checks the actor may read its documents.
// Reviewers must hold an assignment for the current revision cycle.
func (s *DocumentService) authorize(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	sub, err := s.subs.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleSecretariat, models.RoleStaff:
		return sub, nil
	case models.RoleResearcher:
		if sub.ResearcherID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
		return sub, nil
	case models.RoleReviewer:
		if _, err := s.assignments.FindByReviewer(ctx, sub.ID, actor.UserID, sub.Revision); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrForbidden
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
		}
		return sub, nil
	default:
		return nil, appErrors.ErrForbidden
	}
}
