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
	"github.com/noah-isme/rec-workflow-api/pkg/config"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

type submissionStore interface {
	Create(ctx context.Context, sub *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByTrackingCode(ctx context.Context, code string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
	UpdateStatus(ctx context.Context, id string, from, to models.SubmissionStatus) error
	SetClassified(ctx context.Context, id string, category models.ReviewCategory, classifiedBy string, at time.Time) error
	SetDecision(ctx context.Context, id, decision string, at time.Time) error
}

type timelineAssignmentStore interface {
	ListAllBySubmission(ctx context.Context, submissionID string) ([]models.ReviewerAssignment, error)
}

type timelineReviewStore interface {
	ListBySubmission(ctx context.Context, submissionID string) ([]models.Review, error)
}

type timelineRevisionStore interface {
	ListBySubmission(ctx context.Context, submissionID string) ([]models.RevisionRequest, error)
}

// SubmissionService exposes submission reads, classification and the final
// board decision.
type SubmissionService struct {
	subs        submissionStore
	assignments timelineAssignmentStore
	reviews     timelineReviewStore
	revisions   timelineRevisionStore
	audit       auditLogger
	locks       *SubmissionLocks
	cfg         config.ReviewConfig
	logger      *zap.Logger
}

// NewSubmissionService constructs the service.
func NewSubmissionService(subs submissionStore, assignments timelineAssignmentStore, reviews timelineReviewStore, revisions timelineRevisionStore, audit auditLogger, locks *SubmissionLocks, cfg config.ReviewConfig, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewSubmissionLocks()
	}
	return &SubmissionService{
		subs:        subs,
		assignments: assignments,
		reviews:     reviews,
		revisions:   revisions,
		audit:       audit,
		locks:       locks,
		cfg:         cfg,
		logger:      logger,
	}
}

// Get returns one submission enforcing ownership for researchers.
func (s *SubmissionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Submission, error) {
	sub, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(sub, actor); err != nil {
		return nil, err
	}
	return sub, nil
}

// GetByTrackingCode resolves a submission by its public tracking code.
func (s *SubmissionService) GetByTrackingCode(ctx context.Context, code string, actor *models.JWTClaims) (*models.Submission, error) {
	sub, err := s.subs.FindByTrackingCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if err := s.authorizeRead(sub, actor); err != nil {
		return nil, err
	}
	return sub, nil
}

// List returns submissions scoped by role: researchers see their own,
// everyone else sees the full set.
func (s *SubmissionService) List(ctx context.Context, query dto.SubmissionQuery, actor *models.JWTClaims) ([]models.Submission, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	filter := models.SubmissionFilter{
		Status:   query.Status,
		Category: query.Category,
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	if actor.Role == models.RoleResearcher {
		filter.ResearcherID = actor.UserID
	}
	subs, total, err := s.subs.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return subs, total, nil
}

// Classify assigns a review category to a verified submission. Exempted
// submissions skip the review pipeline entirely and finish immediately.
func (s *SubmissionService) Classify(ctx context.Context, id string, req dto.ClassifyRequest, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch req.Category {
	case models.CategoryExempted, models.CategoryExpedited, models.CategoryFullReview:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown review category")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	sub, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	next := models.StatusAwaitingAssignment
	if req.Category == models.CategoryExempted {
		next = models.StatusDone
	}
	if !models.CanTransition(sub.Status, next) {
		return nil, appErrors.ErrInvalidTransition
	}

	now := time.Now().UTC()
	if err := s.subs.SetClassified(ctx, id, req.Category, actor.UserID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record classification")
	}
	if err := s.subs.UpdateStatus(ctx, id, models.StatusVerified, next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission status")
	}

	s.emitAudit(ctx, actor, models.AuditActionClassify, id, map[string]interface{}{"category": req.Category})

	sub.Category = req.Category
	sub.Status = next
	sub.ClassifiedBy = &actor.UserID
	sub.ClassifiedAt = &now
	return sub, nil
}

// Decide records the final board decision on a fully reviewed submission.
func (s *SubmissionService) Decide(ctx context.Context, id string, req dto.DecideRequest, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	sub, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(sub.Status, models.StatusDecided) {
		return nil, appErrors.ErrInvalidTransition
	}

	now := time.Now().UTC()
	if err := s.subs.UpdateStatus(ctx, id, models.StatusReviewed, models.StatusDecided); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission status")
	}
	if err := s.subs.SetDecision(ctx, id, req.Decision, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}
	s.emitAudit(ctx, actor, models.AuditActionDecide, id, map[string]interface{}{
		"decision": req.Decision,
		"minutes":  req.Minutes,
	})

	sub.Status = models.StatusDecided
	sub.Decision = &req.Decision
	sub.DecidedAt = &now
	return sub, nil
}

// History rebuilds the submission timeline from the aggregates.
func (s *SubmissionService) History(ctx context.Context, id string, actor *models.JWTClaims) ([]models.HistoryEvent, error) {
	sub, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(sub, actor); err != nil {
		return nil, err
	}
	assignments, err := s.assignments.ListAllBySubmission(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	reviews, err := s.reviews.ListBySubmission(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviews")
	}
	revisions, err := s.revisions.ListBySubmission(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision requests")
	}
	return models.BuildTimeline(sub, assignments, reviews, revisions), nil
}

// NewTrackingCode derives a public tracking code for a fresh submission.
func NewTrackingCode(prefix string, at time.Time) string {
	if prefix == "" {
		prefix = "REC"
	}
	return fmt.Sprintf("%s-%d", prefix, at.Unix())
}

func (s *SubmissionService) find(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return sub, nil
}

func (s *SubmissionService) authorizeRead(sub *models.Submission, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleResearcher && sub.ResearcherID != actor.UserID {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *SubmissionService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, values map[string]interface{}) {
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
		Resource:   "submission",
		ResourceID: &resourceID,
		NewValues:  payload,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
