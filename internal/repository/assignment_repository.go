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

const assignmentColumns = `id, submission_id, reviewer_id, revision, status, assigned_at, due_date, completed_at`

// AssignmentRepository provides database access for reviewer assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new instance of AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, a *models.ReviewerAssignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reviewer_assignments (id, submission_id, reviewer_id, revision, status, assigned_at, due_date) VALUES (:id, :submission_id, :reviewer_id, :revision, :status, :assigned_at, :due_date)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// FindByID returns an assignment by identifier.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.ReviewerAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM reviewer_assignments WHERE id = $1 LIMIT 1`
	var a models.ReviewerAssignment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment by id: %w", err)
	}
	return &a, nil
}

// FindByReviewer returns the assignment binding one reviewer to a submission
// for a given revision cycle.
func (r *AssignmentRepository) FindByReviewer(ctx context.Context, submissionID, reviewerID string, revision int) (*models.ReviewerAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM reviewer_assignments WHERE submission_id = $1 AND reviewer_id = $2 AND revision = $3 LIMIT 1`
	var a models.ReviewerAssignment
	if err := r.db.GetContext(ctx, &a, query, submissionID, reviewerID, revision); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment by reviewer: %w", err)
	}
	return &a, nil
}

// ListBySubmission returns assignments for one submission and revision cycle.
func (r *AssignmentRepository) ListBySubmission(ctx context.Context, submissionID string, revision int) ([]models.ReviewerAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM reviewer_assignments WHERE submission_id = $1 AND revision = $2 ORDER BY assigned_at ASC`
	var assignments []models.ReviewerAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, submissionID, revision); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// ListAllBySubmission returns assignments across all revision cycles, oldest
// first. Used for the history timeline.
func (r *AssignmentRepository) ListAllBySubmission(ctx context.Context, submissionID string) ([]models.ReviewerAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM reviewer_assignments WHERE submission_id = $1 ORDER BY revision ASC, assigned_at ASC`
	var assignments []models.ReviewerAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, submissionID); err != nil {
		return nil, fmt.Errorf("list all assignments: %w", err)
	}
	return assignments, nil
}

// ListByReviewer returns a reviewer's open assignments, soonest due first.
func (r *AssignmentRepository) ListByReviewer(ctx context.Context, reviewerID string) ([]models.ReviewerAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM reviewer_assignments WHERE reviewer_id = $1 AND status != $2 ORDER BY due_date ASC`
	var assignments []models.ReviewerAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, reviewerID, models.AssignmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("list assignments by reviewer: %w", err)
	}
	return assignments, nil
}

// UpdateDueDate adjusts the deadline on an existing assignment.
func (r *AssignmentRepository) UpdateDueDate(ctx context.Context, id string, dueDate time.Time) error {
	const query = `UPDATE reviewer_assignments SET due_date = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, dueDate); err != nil {
		return fmt.Errorf("update assignment due date: %w", err)
	}
	return nil
}

// UpdateStatus moves an assignment between statuses.
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus, completedAt *time.Time) error {
	const query = `UPDATE reviewer_assignments SET status = $2, completed_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, completedAt); err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	return nil
}

// CountBySubmission returns completed and total assignment counts for one
// revision cycle.
func (r *AssignmentRepository) CountBySubmission(ctx context.Context, submissionID string, revision int) (completed, total int, err error) {
	const query = `SELECT COUNT(*) FILTER (WHERE status = $3) AS completed, COUNT(*) AS total FROM reviewer_assignments WHERE submission_id = $1 AND revision = $2`
	row := r.db.QueryRowxContext(ctx, query, submissionID, revision, models.AssignmentStatusCompleted)
	if err := row.Scan(&completed, &total); err != nil {
		return 0, 0, fmt.Errorf("count assignments: %w", err)
	}
	return completed, total, nil
}
