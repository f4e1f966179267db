package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rec-workflow-api/internal/models"
)

const submissionColumns = `id, tracking_code, title, researcher_id, status, category, decision, verified_by, classified_by, created_at, submitted_at, verified_at, classified_at, reviewed_at, decided_at, revision`

// SubmissionRepository provides database access for submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository creates a new instance of SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a new submission.
func (r *SubmissionRepository) Create(ctx context.Context, sub *models.Submission) error {
	return r.CreateTx(ctx, r.db, sub)
}

// CreateTx inserts a new submission through the given executor so the insert
// can share a transaction with other writes.
func (r *SubmissionRepository) CreateTx(ctx context.Context, exec sqlx.ExtContext, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submissions (id, tracking_code, title, researcher_id, status, category, created_at, submitted_at, revision) VALUES (:id, :tracking_code, :title, :researcher_id, :status, :category, :created_at, :submitted_at, :revision)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, sub); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// FindByID returns a submission by identifier.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 LIMIT 1`
	var sub models.Submission
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission by id: %w", err)
	}
	return &sub, nil
}

// FindByTrackingCode returns a submission by its tracking code.
func (r *SubmissionRepository) FindByTrackingCode(ctx context.Context, code string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE tracking_code = $1 LIMIT 1`
	var sub models.Submission
	if err := r.db.GetContext(ctx, &sub, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission by tracking code: %w", err)
	}
	return &sub, nil
}

// List returns submissions matching the filter plus the unpaginated total.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	idx := 1

	if len(filter.Status) > 0 {
		placeholders := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			placeholders = append(placeholders, fmt.Sprintf("$%d", idx))
			args = append(args, status)
			idx++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", idx))
		args = append(args, filter.Category)
		idx++
	}
	if filter.ResearcherID != "" {
		conditions = append(conditions, fmt.Sprintf("researcher_id = $%d", idx))
		args = append(args, filter.ResearcherID)
		idx++
	}
	where := strings.Join(conditions, " AND ")

	countQuery := `SELECT COUNT(*) FROM submissions WHERE ` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	listQuery := fmt.Sprintf(`SELECT %s FROM submissions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, submissionColumns, where, idx, idx+1)
	args = append(args, limit, filter.Offset)

	var subs []models.Submission
	if err := r.db.SelectContext(ctx, &subs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	return subs, total, nil
}

// UpdateStatus moves a submission between statuses. The update is conditional
// on the expected current status so concurrent writers cannot double-apply a
// transition; sql.ErrNoRows is returned when the row was not in that status.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id string, from, to models.SubmissionStatus) error {
	const query = `UPDATE submissions SET status = $3 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetVerified stamps the verification metadata.
func (r *SubmissionRepository) SetVerified(ctx context.Context, id, verifiedBy string, at time.Time) error {
	const query = `UPDATE submissions SET verified_by = $2, verified_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, verifiedBy, at); err != nil {
		return fmt.Errorf("set submission verified: %w", err)
	}
	return nil
}

// SetClassified stamps the classification metadata.
func (r *SubmissionRepository) SetClassified(ctx context.Context, id string, category models.ReviewCategory, classifiedBy string, at time.Time) error {
	const query = `UPDATE submissions SET category = $2, classified_by = $3, classified_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, category, classifiedBy, at); err != nil {
		return fmt.Errorf("set submission classified: %w", err)
	}
	return nil
}

// SetReviewed stamps the quorum-reached timestamp.
func (r *SubmissionRepository) SetReviewed(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE submissions SET reviewed_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("set submission reviewed: %w", err)
	}
	return nil
}

// SetDecision stamps the final decision.
func (r *SubmissionRepository) SetDecision(ctx context.Context, id, decision string, at time.Time) error {
	const query = `UPDATE submissions SET decision = $2, decided_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, decision, at); err != nil {
		return fmt.Errorf("set submission decision: %w", err)
	}
	return nil
}

// IncrementRevision bumps the revision counter and clears verification and
// review stamps for the new cycle.
func (r *SubmissionRepository) IncrementRevision(ctx context.Context, id string) error {
	const query = `UPDATE submissions SET revision = revision + 1, verified_by = NULL, verified_at = NULL, reviewed_at = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("increment submission revision: %w", err)
	}
	return nil
}
