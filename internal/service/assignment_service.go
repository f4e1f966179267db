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

type assignmentStore interface {
	Create(ctx context.Context, a *models.ReviewerAssignment) error
	FindByReviewer(ctx context.Context, submissionID, reviewerID string, revision int) (*models.ReviewerAssignment, error)
	ListBySubmission(ctx context.Context, submissionID string, revision int) ([]models.ReviewerAssignment, error)
	ListAllBySubmission(ctx context.Context, submissionID string) ([]models.ReviewerAssignment, error)
	ListByReviewer(ctx context.Context, reviewerID string) ([]models.ReviewerAssignment, error)
	UpdateDueDate(ctx context.Context, id string, dueDate time.Time) error
}

type assignmentSubmissionStore interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	UpdateStatus(ctx context.Context, id string, from, to models.SubmissionStatus) error
}

type reviewerPool interface {
	Pool(ctx context.Context) ([]models.User, error)
}

// AssignmentService binds reviewers to submissions and enforces the quorum
// policy per review category.
type AssignmentService struct {
	assignments assignmentStore
	subs        assignmentSubmissionStore
	pool        reviewerPool
	audit       auditLogger
	locks       *SubmissionLocks
	policy      reviewPolicy
	logger      *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(assignments assignmentStore, subs assignmentSubmissionStore, pool reviewerPool, audit auditLogger, locks *SubmissionLocks, cfg config.ReviewConfig, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewSubmissionLocks()
	}
	return &AssignmentService{
		assignments: assignments,
		subs:        subs,
		pool:        pool,
		audit:       audit,
		locks:       locks,
		policy:      reviewPolicy{cfg: cfg},
		logger:      logger,
	}
}

// Assign upserts the reviewer set for the current revision cycle. Existing
// bindings get their due date refreshed, new reviewers are inserted. The first
// successful assignment moves the submission to UNDER_REVIEW.
func (s *AssignmentService) Assign(ctx context.Context, submissionID string, req dto.AssignReviewersRequest, actor *models.JWTClaims) (*dto.AssignReviewersResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	unlock := s.locks.Lock(submissionID)
	defer unlock()

	sub, err := s.subs.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if sub.Status != models.StatusAwaitingAssignment && sub.Status != models.StatusUnderReview {
		return nil, appErrors.ErrInvalidTransition
	}

	seen := make(map[string]struct{}, len(req.ReviewerIDs))
	for _, id := range req.ReviewerIDs {
		if _, dup := seen[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate reviewer in assignment set")
		}
		seen[id] = struct{}{}
	}
	if _, conflicted := seen[sub.ResearcherID]; conflicted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "researcher cannot review their own submission")
	}

	pool, err := s.pool.Pool(ctx)
	if err != nil {
		return nil, err
	}
	poolIDs := make(map[string]struct{}, len(pool))
	for _, u := range pool {
		poolIDs[u.ID] = struct{}{}
	}
	for id := range seen {
		if _, ok := poolIDs[id]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("user %s is not an active reviewer", id))
		}
	}

	if err := s.policy.CheckQuorum(sub.Category, len(req.ReviewerIDs), len(pool)); err != nil {
		return nil, err
	}

	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = time.Now().UTC().Add(s.policy.DueOffset(sub.Category))
	}

	resp := &dto.AssignReviewersResponse{PastReviewerIDs: s.pastReviewers(ctx, submissionID, sub.Revision)}
	for _, reviewerID := range req.ReviewerIDs {
		existing, err := s.assignments.FindByReviewer(ctx, submissionID, reviewerID, sub.Revision)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
			}
			assignment := &models.ReviewerAssignment{
				SubmissionID: submissionID,
				ReviewerID:   reviewerID,
				Revision:     sub.Revision,
				Status:       models.AssignmentStatusAssigned,
				DueDate:      dueDate,
			}
			if err := s.assignments.Create(ctx, assignment); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
			}
			resp.Inserted++
			continue
		}
		if err := s.assignments.UpdateDueDate(ctx, existing.ID, dueDate); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
		}
		resp.Updated++
	}

	if sub.Status == models.StatusAwaitingAssignment {
		if err := s.subs.UpdateStatus(ctx, submissionID, models.StatusAwaitingAssignment, models.StatusUnderReview); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrInvalidTransition
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission status")
		}
	}

	s.emitAudit(ctx, actor, submissionID, req.ReviewerIDs, dueDate)
	return resp, nil
}

// ListForSubmission returns current-cycle assignments for a submission.
func (s *AssignmentService) ListForSubmission(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.ReviewerAssignment, error) {
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
	assignments, err := s.assignments.ListBySubmission(ctx, submissionID, sub.Revision)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// ListForReviewer returns the acting reviewer's open workload.
func (s *AssignmentService) ListForReviewer(ctx context.Context, actor *models.JWTClaims) ([]models.ReviewerAssignment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	assignments, err := s.assignments.ListByReviewer(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// pastReviewers lists reviewers bound in earlier revision cycles so the
// secretariat can keep the panel consistent across revisions. Best effort.
func (s *AssignmentService) pastReviewers(ctx context.Context, submissionID string, revision int) []string {
	all, err := s.assignments.ListAllBySubmission(ctx, submissionID)
	if err != nil {
		s.logger.Warn("failed to list prior assignments", zap.Error(err))
		return nil
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, a := range all {
		if a.Revision >= revision {
			continue
		}
		if _, dup := seen[a.ReviewerID]; dup {
			continue
		}
		seen[a.ReviewerID] = struct{}{}
		ids = append(ids, a.ReviewerID)
	}
	return ids
}

func (s *AssignmentService) emitAudit(ctx context.Context, actor *models.JWTClaims, submissionID string, reviewerIDs []string, dueDate time.Time) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"reviewer_ids": reviewerIDs,
		"due_date":     dueDate,
	})
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionAssignReviewers,
		Resource:   "submission",
		ResourceID: &submissionID,
		NewValues:  payload,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", models.AuditActionAssignReviewers), zap.Error(err))
	}
}
