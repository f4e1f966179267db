package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rec-workflow-api/internal/models"
)

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "submission_id", "kind", "version", "blob_ref", "size_bytes", "page_count", "uploaded_at", "superseded_at", "is_verified", "comment", "prev_is_verified", "prev_comment", "has_prior_state"})
}

func TestDocumentRepositoryCreateAndListActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.Document{
		SubmissionID: "sub-1",
		Kind:         models.KindResearchProtocol,
		Version:      1,
		BlobRef:      "sub-1/research_protocol/v1.pdf",
		SizeBytes:    2048,
	}
	require.NoError(t, repo.Create(context.Background(), doc))

	rows := documentRows().
		AddRow(doc.ID, "sub-1", "research_protocol", 1, doc.BlobRef, int64(2048), nil, time.Now(), nil, nil, "", nil, "", false)
	mock.ExpectQuery(regexp.QuoteMeta("AND superseded_at IS NULL")).
		WithArgs("sub-1").
		WillReturnRows(rows)

	docs, err := repo.ListBySubmission(context.Background(), "sub-1", false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Nil(t, docs[0].IsVerified)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryNextVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(MAX(version), 0) + 1")).
		WithArgs("sub-1", models.KindConsentForm).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))

	next, err := repo.NextVersion(context.Background(), "sub-1", models.KindConsentForm)
	require.NoError(t, err)
	require.Equal(t, 3, next)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryUpdateVerificationSnapshot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	approved := true
	doc := &models.Document{
		ID:            "doc-1",
		IsVerified:    &approved,
		Comment:       "legible and complete",
		HasPriorState: true,
	}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET is_verified")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateVerification(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}
