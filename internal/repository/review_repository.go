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

// ReviewRepository provides database access for sealed reviews.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository creates a new instance of ReviewRepository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review. The assignment_id column carries a unique
// constraint so a second review for the same assignment fails at the database
// even if two requests race past the service-level check.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.SubmittedAt.IsZero() {
		review.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reviews (id, assignment_id, submission_id, recommendation, remarks, submitted_at) VALUES (:id, :assignment_id, :submission_id, :recommendation, :remarks, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, review); err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// FindByAssignment returns the review sealed for one assignment, if any.
func (r *ReviewRepository) FindByAssignment(ctx context.Context, assignmentID string) (*models.Review, error) {
	const query = `SELECT id, assignment_id, submission_id, recommendation, remarks, submitted_at FROM reviews WHERE assignment_id = $1 LIMIT 1`
	var review models.Review
	if err := r.db.GetContext(ctx, &review, query, assignmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find review by assignment: %w", err)
	}
	return &review, nil
}

// ListBySubmission returns all reviews for a submission, oldest first.
func (r *ReviewRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.Review, error) {
	const query = `SELECT id, assignment_id, submission_id, recommendation, remarks, submitted_at FROM reviews WHERE submission_id = $1 ORDER BY submitted_at ASC`
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, submissionID); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}
