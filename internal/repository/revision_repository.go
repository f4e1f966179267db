package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rec-workflow-api/internal/models"
)

// RevisionRepository provides database access for revision requests.
type RevisionRepository struct {
	db *sqlx.DB
}

// NewRevisionRepository creates a new instance of RevisionRepository.
func NewRevisionRepository(db *sqlx.DB) *RevisionRepository {
	return &RevisionRepository{db: db}
}

// Create inserts a revision request. The checklist is stored as JSON.
func (r *RevisionRepository) Create(ctx context.Context, req *models.RevisionRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(req.Checklist)
	if err != nil {
		return fmt.Errorf("marshal revision checklist: %w", err)
	}
	req.ChecklistRaw = raw

	const query = `INSERT INTO revision_requests (id, submission_id, revision, checklist, comment, requested_by, requested_at) VALUES (:id, :submission_id, :revision, :checklist, :comment, :requested_by, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create revision request: %w", err)
	}
	return nil
}

// FindOpenBySubmission returns the unresolved revision request, if any.
func (r *RevisionRepository) FindOpenBySubmission(ctx context.Context, submissionID string) (*models.RevisionRequest, error) {
	const query = `SELECT id, submission_id, revision, checklist, comment, requested_by, requested_at, resolved_at FROM revision_requests WHERE submission_id = $1 AND resolved_at IS NULL LIMIT 1`
	var req models.RevisionRequest
	if err := r.db.GetContext(ctx, &req, query, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find open revision request: %w", err)
	}
	if err := decodeChecklist(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListBySubmission returns every revision request for a submission, oldest
// first. Used for the history timeline.
func (r *RevisionRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.RevisionRequest, error) {
	const query = `SELECT id, submission_id, revision, checklist, comment, requested_by, requested_at, resolved_at FROM revision_requests WHERE submission_id = $1 ORDER BY requested_at ASC`
	var reqs []models.RevisionRequest
	if err := r.db.SelectContext(ctx, &reqs, query, submissionID); err != nil {
		return nil, fmt.Errorf("list revision requests: %w", err)
	}
	for i := range reqs {
		if err := decodeChecklist(&reqs[i]); err != nil {
			return nil, err
		}
	}
	return reqs, nil
}

// Resolve closes a revision request at resubmission time.
func (r *RevisionRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE revision_requests SET resolved_at = $2 WHERE id = $1 AND resolved_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("resolve revision request: %w", err)
	}
	return nil
}

func decodeChecklist(req *models.RevisionRequest) error {
	if len(req.ChecklistRaw) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.ChecklistRaw, &req.Checklist); err != nil {
		return fmt.Errorf("decode revision checklist: %w", err)
	}
	return nil
}
