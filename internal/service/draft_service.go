package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	"github.com/noah-isme/rec-workflow-api/pkg/config"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
	"github.com/noah-isme/rec-workflow-api/pkg/pdf"
)

type draftStore interface {
	Create(ctx context.Context, draft *models.DraftSubmission) error
	FindByID(ctx context.Context, id string) (*models.DraftSubmission, error)
	ListByResearcher(ctx context.Context, researcherID string) ([]models.DraftSubmission, error)
	UpdateSteps(ctx context.Context, id string, stepsRaw []byte, updatedAt time.Time) error
	MarkSubmitted(ctx context.Context, exec sqlx.ExtContext, id, submissionID string, at time.Time) error
}

type draftSubmissionStore interface {
	CreateTx(ctx context.Context, exec sqlx.ExtContext, sub *models.Submission) error
}

type draftDocStore interface {
	CreateTx(ctx context.Context, exec sqlx.ExtContext, doc *models.Document) error
}

type draftTxProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// draftSteps is the serialized shape of the steps column.
type draftSteps struct {
	Application *models.ApplicationStep `json:"application,omitempty"`
	Protocol    *models.ProtocolStep    `json:"protocol,omitempty"`
	Consent     *models.ConsentStep     `json:"consent,omitempty"`
}

// DraftService manages researcher drafts and commits a complete draft into a
// submission atomically: generated forms rendered, attachments stored, and the
// submission opened in PENDING_VERIFICATION.
type DraftService struct {
	drafts   draftStore
	subs     draftSubmissionStore
	docs     draftDocStore
	blobs    blobStore
	tx       draftTxProvider
	merger   *pdf.Merger
	renderer *pdf.FormRenderer
	audit    auditLogger
	validate *validator.Validate
	storage  config.StorageConfig
	review   config.ReviewConfig
	logger   *zap.Logger
}

// NewDraftService constructs the service.
func NewDraftService(drafts draftStore, subs draftSubmissionStore, docs draftDocStore, blobs blobStore, tx draftTxProvider, audit auditLogger, storageCfg config.StorageConfig, reviewCfg config.ReviewConfig, logger *zap.Logger) *DraftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftService{
		drafts:   drafts,
		subs:     subs,
		docs:     docs,
		blobs:    blobs,
		tx:       tx,
		merger:   pdf.NewMerger(),
		renderer: pdf.NewFormRenderer(),
		audit:    audit,
		validate: validator.New(),
		storage:  storageCfg,
		review:   reviewCfg,
		logger:   logger,
	}
}

// Create opens a new empty draft for the acting researcher.
func (s *DraftService) Create(ctx context.Context, req dto.CreateDraftRequest, actor *models.JWTClaims) (*models.DraftSubmission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	draft := &models.DraftSubmission{
		ResearcherID: actor.UserID,
		Title:        req.Title,
	}
	if err := s.drafts.Create(ctx, draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create draft")
	}
	return draft, nil
}

// Get returns one draft, decoded, enforcing ownership.
func (s *DraftService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.DraftSubmission, error) {
	draft, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// List returns the acting researcher's drafts.
func (s *DraftService) List(ctx context.Context, actor *models.JWTClaims) ([]models.DraftSubmission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	drafts, err := s.drafts.ListByResearcher(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list drafts")
	}
	for i := range drafts {
		if err := decodeDraftSteps(&drafts[i]); err != nil {
			return nil, err
		}
	}
	return drafts, nil
}

// UpdateStep replaces one step of the draft, validating its payload.
func (s *DraftService) UpdateStep(ctx context.Context, id string, req dto.UpdateDraftStepRequest, actor *models.JWTClaims) (*models.DraftSubmission, error) {
	draft, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if draft.SubmissionID != nil {
		return nil, appErrors.ErrAlreadySubmitted
	}

	switch req.Step {
	case "application":
		if req.Application == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "application payload missing")
		}
		if err := s.validate.Struct(req.Application); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application step")
		}
		draft.Application = req.Application
	case "protocol":
		if req.Protocol == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "protocol payload missing")
		}
		if err := s.validate.Struct(req.Protocol); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid protocol step")
		}
		draft.Protocol = req.Protocol
	case "consent":
		if req.Consent == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "consent payload missing")
		}
		if err := s.validate.Struct(req.Consent); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid consent step")
		}
		draft.Consent = req.Consent
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown draft step")
	}

	raw, err := json.Marshal(draftSteps{Application: draft.Application, Protocol: draft.Protocol, Consent: draft.Consent})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode draft steps")
	}
	draft.StepsRaw = raw
	draft.UpdatedAt = time.Now().UTC()
	if err := s.drafts.UpdateSteps(ctx, draft.ID, raw, draft.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadySubmitted
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update draft")
	}
	return draft, nil
}

// Submit commits a complete draft into a new submission. All three generated
// forms are rendered, every required attachment must be present as a valid
// PDF, and the draft is bound to the submission so it cannot commit twice.
func (s *DraftService) Submit(ctx context.Context, id string, uploads []dto.FileUpload, actor *models.JWTClaims) (*models.Submission, error) {
	draft, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if draft.SubmissionID != nil {
		return nil, appErrors.ErrAlreadySubmitted
	}
	if !draft.Complete() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "draft steps are incomplete")
	}

	attachments, err := s.checkAttachments(uploads)
	if err != nil {
		return nil, err
	}

	rendered := map[models.DocumentKind][]byte{}
	if rendered[models.KindApplicationForm], err = s.renderer.Render(buildApplicationForm(draft.Title, draft.Application)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render application form")
	}
	if rendered[models.KindResearchProtocol], err = s.renderer.Render(buildProtocolForm(draft.Title, draft.Protocol)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render research protocol")
	}
	if rendered[models.KindConsentForm], err = s.renderer.Render(buildConsentForm(draft.Title, draft.Consent)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render consent form")
	}

	now := time.Now().UTC()
	sub := &models.Submission{
		TrackingCode: NewTrackingCode(s.review.TrackingCodePrefix, now),
		Title:        draft.Title,
		ResearcherID: draft.ResearcherID,
		Status:       models.StatusPendingVerification,
		Category:     models.CategoryUnclassified,
		SubmittedAt:  &now,
	}

	// The submission row, its six document rows and the draft claim all land
	// in one transaction. Blobs are written alongside and removed again when
	// the transaction does not commit.
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open submit transaction")
	}
	var refs []string
	defer func() {
		if err == nil {
			return
		}
		_ = tx.Rollback()
		for _, ref := range refs {
			if delErr := s.blobs.Delete(ref); delErr != nil {
				s.logger.Warn("failed to remove blob of aborted submit", zap.String("blob_ref", ref), zap.Error(delErr))
			}
		}
	}()

	if err = s.subs.CreateTx(ctx, tx, sub); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}

	for _, kind := range models.GeneratedKinds {
		var ref string
		if ref, err = s.storeDocument(ctx, tx, sub.ID, kind, rendered[kind], now); ref != "" {
			refs = append(refs, ref)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, kind := range models.AttachmentKinds {
		var ref string
		if ref, err = s.storeDocument(ctx, tx, sub.ID, kind, attachments[kind], now); ref != "" {
			refs = append(refs, ref)
		}
		if err != nil {
			return nil, err
		}
	}

	if err = s.drafts.MarkSubmitted(ctx, tx, draft.ID, sub.ID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.ErrAlreadySubmitted
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bind draft to submission")
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit submission")
	}

	s.emitAudit(ctx, actor, sub)
	s.logger.Info("submission created",
		zap.String("submission_id", sub.ID),
		zap.String("tracking_code", sub.TrackingCode),
		zap.String("researcher_id", sub.ResearcherID))
	return sub, nil
}

// checkAttachments validates that every required attachment kind is present
// exactly once and parses as PDF.
func (s *DraftService) checkAttachments(uploads []dto.FileUpload) (map[models.DocumentKind][]byte, error) {
	byKind := make(map[models.DocumentKind][]byte, len(uploads))
	for _, up := range uploads {
		valid := false
		for _, kind := range models.AttachmentKinds {
			if up.Kind == kind {
				valid = true
				break
			}
		}
		if !valid {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unexpected attachment kind %s", up.Kind))
		}
		if _, dup := byKind[up.Kind]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate attachment for %s", up.Kind))
		}
		if int64(len(up.Data)) > s.storage.MaxFileSizeBytes {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("attachment %s exceeds the size limit", up.Kind))
		}
		if err := s.merger.Validate(up.Data); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("attachment %s is not a valid pdf", up.Kind))
		}
		byKind[up.Kind] = up.Data
	}
	for _, kind := range models.AttachmentKinds {
		if _, ok := byKind[kind]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("required attachment %s is missing", kind))
		}
	}
	return byKind, nil
}

// storeDocument writes the blob and records the document row through exec.
// The blob reference is returned even on failure so the caller can undo the
// write when the surrounding transaction rolls back.
func (s *DraftService) storeDocument(ctx context.Context, exec sqlx.ExtContext, submissionID string, kind models.DocumentKind, data []byte, now time.Time) (string, error) {
	ref := fmt.Sprintf("%s/%s/v1.pdf", submissionID, kind)
	if _, err := s.blobs.Put(ref, data); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}
	pages, err := s.merger.PageCount(data)
	if err != nil {
		return ref, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pages")
	}
	doc := &models.Document{
		SubmissionID: submissionID,
		Kind:         kind,
		Version:      1,
		BlobRef:      ref,
		SizeBytes:    int64(len(data)),
		PageCount:    &pages,
		UploadedAt:   now,
	}
	if err := s.docs.CreateTx(ctx, exec, doc); err != nil {
		return ref, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}
	return ref, nil
}

func (s *DraftService) load(ctx context.Context, id string, actor *models.JWTClaims) (*models.DraftSubmission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	draft, err := s.drafts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load draft")
	}
	if draft.ResearcherID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if err := decodeDraftSteps(draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func decodeDraftSteps(draft *models.DraftSubmission) error {
	if len(draft.StepsRaw) == 0 {
		return nil
	}
	var steps draftSteps
	if err := json.Unmarshal(draft.StepsRaw, &steps); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode draft steps")
	}
	draft.Application = steps.Application
	draft.Protocol = steps.Protocol
	draft.Consent = steps.Consent
	return nil
}

func (s *DraftService) emitAudit(ctx context.Context, actor *models.JWTClaims, sub *models.Submission) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"tracking_code": sub.TrackingCode,
		"title":         sub.Title,
	})
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionSubmissionCreate,
		Resource:   "submission",
		ResourceID: &sub.ID,
		NewValues:  payload,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", models.AuditActionSubmissionCreate), zap.Error(err))
	}
}
