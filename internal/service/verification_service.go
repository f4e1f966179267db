package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

type verificationDocStore interface {
	FindByID(ctx context.Context, id string) (*models.Document, error)
	ListBySubmission(ctx context.Context, submissionID string, includeSuperseded bool) ([]models.Document, error)
	UpdateVerification(ctx context.Context, doc *models.Document) error
}

type verificationSubmissionStore interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	UpdateStatus(ctx context.Context, id string, from, to models.SubmissionStatus) error
	SetVerified(ctx context.Context, id, verifiedBy string, at time.Time) error
}

type consolidator interface {
	Consolidate(ctx context.Context, submissionID string) (*dto.ConsolidationResult, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// VerificationService handles per-document verification decisions, their
// single-level undo, and the completion step that seals verification and
// produces the consolidated application.
type VerificationService struct {
	docs   verificationDocStore
	subs   verificationSubmissionStore
	merge  consolidator
	audit  auditLogger
	locks  *SubmissionLocks
	logger *zap.Logger
}

// NewVerificationService constructs the service.
func NewVerificationService(docs verificationDocStore, subs verificationSubmissionStore, merge consolidator, audit auditLogger, locks *SubmissionLocks, logger *zap.Logger) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewSubmissionLocks()
	}
	return &VerificationService{docs: docs, subs: subs, merge: merge, audit: audit, locks: locks, logger: logger}
}

// Verify records an approve or reject decision on one document. Repeating the
// identical decision is a no-op so the undo snapshot keeps pointing at the
// state before the first call.
func (s *VerificationService) Verify(ctx context.Context, documentID string, req dto.VerifyDocumentRequest, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, sub, err := s.loadVerifiable(ctx, documentID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(sub.ID)
	defer unlock()

	if doc.IsVerified != nil && *doc.IsVerified == req.Approved && doc.Comment == req.Comment {
		return doc, nil
	}

	doc.PrevIsVerified = doc.IsVerified
	doc.PrevComment = doc.Comment
	doc.HasPriorState = true
	approved := req.Approved
	doc.IsVerified = &approved
	doc.Comment = req.Comment

	if err := s.docs.UpdateVerification(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record verification")
	}
	s.emitAudit(ctx, actor, models.AuditActionDocumentVerify, doc.ID, map[string]interface{}{
		"approved": req.Approved,
		"comment":  req.Comment,
	})
	return doc, nil
}

// Undo restores the verification state captured before the latest decision.
// Only one level of history is kept; undoing twice in a row fails.
func (s *VerificationService) Undo(ctx context.Context, documentID string, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, sub, err := s.loadVerifiable(ctx, documentID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(sub.ID)
	defer unlock()

	if !doc.HasPriorState {
		return nil, appErrors.ErrNoPriorState
	}
	doc.IsVerified = doc.PrevIsVerified
	doc.Comment = doc.PrevComment
	doc.PrevIsVerified = nil
	doc.PrevComment = ""
	doc.HasPriorState = false

	if err := s.docs.UpdateVerification(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore verification")
	}
	s.emitAudit(ctx, actor, models.AuditActionVerifyUndo, doc.ID, nil)
	return doc, nil
}

// Complete seals verification once every active document is approved,
// assembles the consolidated application synchronously, and moves the
// submission to VERIFIED.
func (s *VerificationService) Complete(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.ConsolidationResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	unlock := s.locks.Lock(submissionID)
	defer unlock()

	sub, err := s.findSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.StatusPendingVerification {
		return nil, appErrors.ErrInvalidTransition
	}

	docs, err := s.docs.ListBySubmission(ctx, submissionID, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	set := models.NewVerificationSet(docs)
	if !set.AllApproved() {
		return nil, appErrors.ErrIncompleteVerification
	}

	result, err := s.merge.Consolidate(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.subs.UpdateStatus(ctx, submissionID, models.StatusPendingVerification, models.StatusVerified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission status")
	}
	if err := s.subs.SetVerified(ctx, submissionID, actor.UserID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stamp verification")
	}
	s.emitAudit(ctx, actor, models.AuditActionVerifyComplete, submissionID, map[string]interface{}{
		"page_count": result.PageCount,
		"skipped":    result.SkippedParts,
	})
	return result, nil
}

func (s *VerificationService) loadVerifiable(ctx context.Context, documentID string) (*models.Document, *models.Submission, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.SupersededAt != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "document has been superseded")
	}
	if doc.Kind == models.KindConsolidated || doc.Kind == models.KindCertificate {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "generated artifacts are not subject to verification")
	}
	sub, err := s.findSubmission(ctx, doc.SubmissionID)
	if err != nil {
		return nil, nil, err
	}
	if sub.Status != models.StatusPendingVerification {
		return nil, nil, appErrors.ErrInvalidTransition
	}
	return doc, sub, nil
}

func (s *VerificationService) findSubmission(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return sub, nil
}

func (s *VerificationService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "document_verification",
		ResourceID: &resourceID,
		NewValues:  payload,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
