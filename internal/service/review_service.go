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
	"github.com/noah-isme/rec-workflow-api/pkg/config"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

type reviewStore interface {
	Create(ctx context.Context, review *models.Review) error
	FindByAssignment(ctx context.Context, assignmentID string) (*models.Review, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]models.Review, error)
}

type reviewAssignmentStore interface {
	FindByReviewer(ctx context.Context, submissionID, reviewerID string, revision int) (*models.ReviewerAssignment, error)
	UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus, completedAt *time.Time) error
	CountBySubmission(ctx context.Context, submissionID string, revision int) (completed, total int, err error)
}

type reviewSubmissionStore interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	UpdateStatus(ctx context.Context, id string, from, to models.SubmissionStatus) error
	SetReviewed(ctx context.Context, id string, at time.Time) error
}

// ReviewService collects sealed reviewer assessments and closes the review
// phase once the quorum is reached.
type ReviewService struct {
	reviews     reviewStore
	assignments reviewAssignmentStore
	subs        reviewSubmissionStore
	audit       auditLogger
	locks       *SubmissionLocks
	cfg         config.ReviewConfig
	logger      *zap.Logger
}

// NewReviewService constructs the service.
func NewReviewService(reviews reviewStore, assignments reviewAssignmentStore, subs reviewSubmissionStore, audit auditLogger, locks *SubmissionLocks, cfg config.ReviewConfig, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewSubmissionLocks()
	}
	return &ReviewService{
		reviews:     reviews,
		assignments: assignments,
		subs:        subs,
		audit:       audit,
		locks:       locks,
		cfg:         cfg,
		logger:      logger,
	}
}

// Submit seals the acting reviewer's assessment. A reviewer gets exactly one
// review per assignment; reaching the quorum moves the submission to REVIEWED.
func (s *ReviewService) Submit(ctx context.Context, submissionID string, req dto.SubmitReviewRequest, actor *models.JWTClaims) (*models.Review, *models.CompletionRatio, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !models.IsValidRecommendation(req.Recommendation) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown recommendation")
	}

	unlock := s.locks.Lock(submissionID)
	defer unlock()

	sub, err := s.subs.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if sub.Status != models.StatusUnderReview {
		return nil, nil, appErrors.ErrInvalidTransition
	}

	assignment, err := s.assignments.FindByReviewer(ctx, submissionID, actor.UserID, sub.Revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "no review assignment for this submission")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	if _, err := s.reviews.FindByAssignment(ctx, assignment.ID); err == nil {
		return nil, nil, appErrors.ErrAlreadySubmitted
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing review")
	}

	now := time.Now().UTC()
	review := &models.Review{
		AssignmentID:   assignment.ID,
		SubmissionID:   submissionID,
		Recommendation: req.Recommendation,
		Remarks:        req.Remarks,
		SubmittedAt:    now,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store review")
	}
	if err := s.assignments.UpdateStatus(ctx, assignment.ID, models.AssignmentStatusCompleted, &now); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close assignment")
	}

	ratio, err := s.progress(ctx, sub)
	if err != nil {
		return nil, nil, err
	}
	if ratio.Reached() {
		if err := s.subs.UpdateStatus(ctx, submissionID, models.StatusUnderReview, models.StatusReviewed); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission status")
			}
		} else {
			if err := s.subs.SetReviewed(ctx, submissionID, now); err != nil {
				return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stamp review completion")
			}
		}
	}

	s.emitAudit(ctx, actor, submissionID, review)
	return review, ratio, nil
}

// Progress reports the completion ratio for the current revision cycle.
func (s *ReviewService) Progress(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.CompletionRatio, error) {
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
	return s.progress(ctx, sub)
}

// ListForSubmission returns the sealed reviews on a submission.
func (s *ReviewService) ListForSubmission(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.Review, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	reviews, err := s.reviews.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}
	return reviews, nil
}

// progress computes completed versus required. The required count is the
// fixed panel size for expedited reviews and the full assignment set for
// full reviews.
func (s *ReviewService) progress(ctx context.Context, sub *models.Submission) (*models.CompletionRatio, error) {
	completed, total, err := s.assignments.CountBySubmission(ctx, sub.ID, sub.Revision)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
	}
	required := reviewPolicy{cfg: s.cfg}.RequiredReviews(sub.Category, total)
	return &models.CompletionRatio{Completed: completed, Required: required}, nil
}

func (s *ReviewService) emitAudit(ctx context.Context, actor *models.JWTClaims, submissionID string, review *models.Review) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"review_id":      review.ID,
		"recommendation": review.Recommendation,
	})
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionReviewSubmit,
		Resource:   "submission",
		ResourceID: &submissionID,
		NewValues:  payload,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", models.AuditActionReviewSubmit), zap.Error(err))
	}
}
