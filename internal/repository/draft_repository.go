package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rec-workflow-api/internal/models"
)

// DraftRepository provides database access for draft submissions.
type DraftRepository struct {
	db *sqlx.DB
}

// NewDraftRepository creates a new instance of DraftRepository.
func NewDraftRepository(db *sqlx.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Create inserts a new draft.
func (r *DraftRepository) Create(ctx context.Context, draft *models.DraftSubmission) error {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}
	draft.UpdatedAt = now
	if len(draft.StepsRaw) == 0 {
		draft.StepsRaw = []byte(`{}`)
	}
	const query = `INSERT INTO drafts (id, researcher_id, title, steps, created_at, updated_at) VALUES (:id, :researcher_id, :title, :steps, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, draft); err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	return nil
}

// FindByID returns a draft by identifier.
func (r *DraftRepository) FindByID(ctx context.Context, id string) (*models.DraftSubmission, error) {
	const query = `SELECT id, researcher_id, title, steps, submission_id, created_at, updated_at FROM drafts WHERE id = $1 LIMIT 1`
	var draft models.DraftSubmission
	if err := r.db.GetContext(ctx, &draft, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find draft by id: %w", err)
	}
	return &draft, nil
}

// ListByResearcher returns a researcher's drafts, newest first.
func (r *DraftRepository) ListByResearcher(ctx context.Context, researcherID string) ([]models.DraftSubmission, error) {
	const query = `SELECT id, researcher_id, title, steps, submission_id, created_at, updated_at FROM drafts WHERE researcher_id = $1 ORDER BY updated_at DESC`
	var drafts []models.DraftSubmission
	if err := r.db.SelectContext(ctx, &drafts, query, researcherID); err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	return drafts, nil
}

// UpdateSteps replaces the serialized step payload.
func (r *DraftRepository) UpdateSteps(ctx context.Context, id string, stepsRaw []byte, updatedAt time.Time) error {
	const query = `UPDATE drafts SET steps = $2, updated_at = $3 WHERE id = $1 AND submission_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, stepsRaw, updatedAt)
	if err != nil {
		return fmt.Errorf("update draft steps: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update draft steps: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkSubmitted links the draft to the submission it was committed into. The
// condition on submission_id makes a double commit fail with sql.ErrNoRows.
// It runs through the given executor so the claim shares the commit
// transaction with the submission and document inserts.
func (r *DraftRepository) MarkSubmitted(ctx context.Context, exec sqlx.ExtContext, id, submissionID string, at time.Time) error {
	const query = `UPDATE drafts SET submission_id = $2, updated_at = $3 WHERE id = $1 AND submission_id IS NULL`
	res, err := exec.ExecContext(ctx, query, id, submissionID, at)
	if err != nil {
		return fmt.Errorf("mark draft submitted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark draft submitted: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
