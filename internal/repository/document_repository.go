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

const documentColumns = `id, submission_id, kind, version, blob_ref, size_bytes, page_count, uploaded_at, superseded_at, is_verified, comment, prev_is_verified, prev_comment, has_prior_state`

// DocumentRepository provides database access for submission documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new instance of DocumentRepository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document row.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	return r.CreateTx(ctx, r.db, doc)
}

// CreateTx inserts a document row through the given executor so callers can
// batch document writes into one transaction.
func (r *DocumentRepository) CreateTx(ctx context.Context, exec sqlx.ExtContext, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents (id, submission_id, kind, version, blob_ref, size_bytes, page_count, uploaded_at, is_verified, comment, has_prior_state) VALUES (:id, :submission_id, :kind, :version, :blob_ref, :size_bytes, :page_count, :uploaded_at, :is_verified, :comment, :has_prior_state)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// FindByID returns a document by identifier.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find document by id: %w", err)
	}
	return &doc, nil
}

// ListBySubmission returns all active documents for a submission, ordered by
// kind and version. Superseded rows are included when includeSuperseded is set.
func (r *DocumentRepository) ListBySubmission(ctx context.Context, submissionID string, includeSuperseded bool) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE submission_id = $1`
	if !includeSuperseded {
		query += ` AND superseded_at IS NULL`
	}
	query += ` ORDER BY kind ASC, version ASC`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, submissionID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// FindActiveByKind returns the live (non-superseded) document of one kind.
func (r *DocumentRepository) FindActiveByKind(ctx context.Context, submissionID string, kind models.DocumentKind) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE submission_id = $1 AND kind = $2 AND superseded_at IS NULL LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, submissionID, kind); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active document: %w", err)
	}
	return &doc, nil
}

// NextVersion returns the next version number for a document kind within a
// submission. Returns 1 when no row of that kind exists yet.
func (r *DocumentRepository) NextVersion(ctx context.Context, submissionID string, kind models.DocumentKind) (int, error) {
	const query = `SELECT COALESCE(MAX(version), 0) + 1 FROM documents WHERE submission_id = $1 AND kind = $2`
	var next int
	if err := r.db.GetContext(ctx, &next, query, submissionID, kind); err != nil {
		return 0, fmt.Errorf("next document version: %w", err)
	}
	return next, nil
}

// UpdateVerification writes the verification decision together with the undo
// snapshot columns.
func (r *DocumentRepository) UpdateVerification(ctx context.Context, doc *models.Document) error {
	const query = `UPDATE documents SET is_verified = :is_verified, comment = :comment, prev_is_verified = :prev_is_verified, prev_comment = :prev_comment, has_prior_state = :has_prior_state WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("update document verification: %w", err)
	}
	return nil
}

// Supersede retires a document row, keeping it for the audit trail.
func (r *DocumentRepository) Supersede(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE documents SET superseded_at = $2 WHERE id = $1 AND superseded_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("supersede document: %w", err)
	}
	return nil
}

// SupersedeActiveByKind retires the live document of one kind, if any.
func (r *DocumentRepository) SupersedeActiveByKind(ctx context.Context, submissionID string, kind models.DocumentKind, at time.Time) error {
	const query = `UPDATE documents SET superseded_at = $3 WHERE submission_id = $1 AND kind = $2 AND superseded_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, submissionID, kind, at); err != nil {
		return fmt.Errorf("supersede document by kind: %w", err)
	}
	return nil
}
