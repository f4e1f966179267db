package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
	"github.com/noah-isme/rec-workflow-api/pkg/pdf"
)

type revisionStore interface {
	Create(ctx context.Context, req *models.RevisionRequest) error
	FindOpenBySubmission(ctx context.Context, submissionID string) (*models.RevisionRequest, error)
	Resolve(ctx context.Context, id string, at time.Time) error
}

type revisionSubmissionStore interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	UpdateStatus(ctx context.Context, id string, from, to models.SubmissionStatus) error
	IncrementRevision(ctx context.Context, id string) error
}

type revisionDocStore interface {
	NextVersion(ctx context.Context, submissionID string, kind models.DocumentKind) (int, error)
	Create(ctx context.Context, doc *models.Document) error
	SupersedeActiveByKind(ctx context.Context, submissionID string, kind models.DocumentKind, at time.Time) error
}

// RevisionService drives the revision loop: flagged documents go back to the
// researcher, replacements come in, and the submission re-enters verification.
type RevisionService struct {
	revisions   revisionStore
	subs        revisionSubmissionStore
	docs        revisionDocStore
	blobs       blobStore
	merger      *pdf.Merger
	renderer    *pdf.FormRenderer
	audit       auditLogger
	locks       *SubmissionLocks
	maxFileSize int64
	logger      *zap.Logger
}

// NewRevisionService constructs the service.
func NewRevisionService(revisions revisionStore, subs revisionSubmissionStore, docs revisionDocStore, blobs blobStore, audit auditLogger, locks *SubmissionLocks, maxFileSize int64, logger *zap.Logger) *RevisionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewSubmissionLocks()
	}
	if maxFileSize <= 0 {
		maxFileSize = 20 * 1024 * 1024
	}
	return &RevisionService{
		revisions:   revisions,
		subs:        subs,
		docs:        docs,
		blobs:       blobs,
		merger:      pdf.NewMerger(),
		renderer:    pdf.NewFormRenderer(),
		audit:       audit,
		locks:       locks,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Request flags documents for replacement and sends the submission back to
// the researcher. Only one revision request can be open at a time.
func (s *RevisionService) Request(ctx context.Context, submissionID string, req dto.RequestRevisionRequest, actor *models.JWTClaims) (*models.RevisionRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if len(req.Checklist) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "revision checklist cannot be empty")
	}
	if req.Comment == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "revision comment cannot be empty")
	}
	seen := make(map[models.DocumentKind]struct{}, len(req.Checklist))
	for _, kind := range req.Checklist {
		if !models.IsValidKind(kind) || kind == models.KindConsolidated || kind == models.KindCertificate {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("document kind %s cannot be revised", kind))
		}
		if _, dup := seen[kind]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate document kind in checklist")
		}
		seen[kind] = struct{}{}
	}

	unlock := s.locks.Lock(submissionID)
	defer unlock()

	sub, err := s.findSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.StatusUnderReview && sub.Status != models.StatusReviewed {
		return nil, appErrors.ErrInvalidTransition
	}
	if _, err := s.revisions.FindOpenBySubmission(ctx, submissionID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a revision request is already open")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check revision requests")
	}

	revision := &models.RevisionRequest{
		SubmissionID: submissionID,
		Revision:     sub.Revision,
		Checklist:    req.Checklist,
		Comment:      req.Comment,
		RequestedBy:  actor.UserID,
	}
	if err := s.revisions.Create(ctx, revision); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create revision request")
	}
	if err := s.subs.UpdateStatus(ctx, submissionID, sub.Status, models.StatusNeedsRevision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission status")
	}

	s.emitAudit(ctx, actor, models.AuditActionRevisionRequest, submissionID, map[string]interface{}{
		"checklist": req.Checklist,
		"comment":   req.Comment,
	})
	return revision, nil
}

// Resubmit replaces every flagged document and re-enters verification.
// Attachment kinds must arrive as uploads; generated kinds are re-rendered
// from the updated step payloads. The whole checklist must be covered.
func (s *RevisionService) Resubmit(ctx context.Context, submissionID string, req dto.ResubmitRequest, uploads []dto.FileUpload, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	unlock := s.locks.Lock(submissionID)
	defer unlock()

	sub, err := s.findSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleResearcher && sub.ResearcherID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if sub.Status != models.StatusNeedsRevision {
		return nil, appErrors.ErrInvalidTransition
	}

	open, err := s.revisions.FindOpenBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "no open revision request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision request")
	}

	replacements, err := s.collectReplacements(sub, open.Checklist, req, uploads)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, rep := range replacements {
		version, err := s.docs.NextVersion(ctx, submissionID, rep.kind)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate document version")
		}
		ref := fmt.Sprintf("%s/%s/v%d.pdf", submissionID, rep.kind, version)
		if _, err := s.blobs.Put(ref, rep.data); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store replacement document")
		}
		if err := s.docs.SupersedeActiveByKind(ctx, submissionID, rep.kind, now); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire replaced document")
		}
		pages := rep.pages
		doc := &models.Document{
			SubmissionID: submissionID,
			Kind:         rep.kind,
			Version:      version,
			BlobRef:      ref,
			SizeBytes:    int64(len(rep.data)),
			PageCount:    &pages,
			UploadedAt:   now,
		}
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record replacement document")
		}
	}

	if err := s.revisions.Resolve(ctx, open.ID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close revision request")
	}
	if err := s.subs.IncrementRevision(ctx, submissionID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open new revision cycle")
	}
	if err := s.subs.UpdateStatus(ctx, submissionID, models.StatusNeedsRevision, models.StatusPendingVerification); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission status")
	}

	s.emitAudit(ctx, actor, models.AuditActionResubmit, submissionID, map[string]interface{}{
		"checklist": open.Checklist,
	})

	sub.Status = models.StatusPendingVerification
	sub.Revision++
	return sub, nil
}

type replacement struct {
	kind  models.DocumentKind
	data  []byte
	pages int
}

// collectReplacements resolves the checklist into concrete PDF payloads,
// rejecting uploads outside the checklist and gaps inside it.
func (s *RevisionService) collectReplacements(sub *models.Submission, checklist []models.DocumentKind, req dto.ResubmitRequest, uploads []dto.FileUpload) ([]replacement, error) {
	flagged := make(map[models.DocumentKind]struct{}, len(checklist))
	for _, kind := range checklist {
		flagged[kind] = struct{}{}
	}
	uploaded := make(map[models.DocumentKind]dto.FileUpload, len(uploads))
	for _, up := range uploads {
		if _, ok := flagged[up.Kind]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("document kind %s is not on the revision checklist", up.Kind))
		}
		if _, dup := uploaded[up.Kind]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate upload for %s", up.Kind))
		}
		uploaded[up.Kind] = up
	}

	replacements := make([]replacement, 0, len(checklist))
	for _, kind := range checklist {
		var data []byte
		switch kind {
		case models.KindApplicationForm:
			if req.Application == nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "application form payload missing for flagged document")
			}
			rendered, err := s.renderer.Render(buildApplicationForm(sub.Title, req.Application))
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render application form")
			}
			data = rendered
		case models.KindResearchProtocol:
			if req.Protocol == nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "research protocol payload missing for flagged document")
			}
			rendered, err := s.renderer.Render(buildProtocolForm(sub.Title, req.Protocol))
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render research protocol")
			}
			data = rendered
		case models.KindConsentForm:
			if req.Consent == nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "consent form payload missing for flagged document")
			}
			rendered, err := s.renderer.Render(buildConsentForm(sub.Title, req.Consent))
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render consent form")
			}
			data = rendered
		default:
			up, ok := uploaded[kind]
			if !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("replacement upload missing for %s", kind))
			}
			if int64(len(up.Data)) > s.maxFileSize {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("upload for %s exceeds the size limit", kind))
			}
			if err := s.merger.Validate(up.Data); err != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("upload for %s is not a valid pdf", kind))
			}
			data = up.Data
		}
		pages, err := s.merger.PageCount(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pages")
		}
		replacements = append(replacements, replacement{kind: kind, data: data, pages: pages})
	}
	return replacements, nil
}

func (s *RevisionService) findSubmission(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return sub, nil
}

func (s *RevisionService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, submissionID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "submission",
		ResourceID: &submissionID,
		NewValues:  payload,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
