package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rec-workflow-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func submissionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "tracking_code", "title", "researcher_id", "status", "category", "decision", "verified_by", "classified_by", "created_at", "submitted_at", "verified_at", "classified_at", "reviewed_at", "decided_at", "revision"})
}

func TestSubmissionRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sub := &models.Submission{
		TrackingCode: "REC-1700000000",
		Title:        "Cohort Study",
		ResearcherID: "user-1",
		Status:       models.StatusPendingVerification,
		Category:     models.CategoryUnclassified,
	}
	require.NoError(t, repo.Create(context.Background(), sub))
	require.NotEmpty(t, sub.ID)

	rows := submissionRows().
		AddRow(sub.ID, "REC-1700000000", "Cohort Study", "user-1", "PENDING_VERIFICATION", "UNCLASSIFIED", nil, nil, nil, time.Now(), nil, nil, nil, nil, nil, 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tracking_code, title")).
		WithArgs(sub.ID).
		WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingVerification, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpdateStatusGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status")).
		WithArgs("sub-1", models.StatusPendingVerification, models.StatusVerified).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "sub-1", models.StatusPendingVerification, models.StatusVerified))

	// Second apply sees a row no longer in the expected status.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status")).
		WithArgs("sub-1", models.StatusPendingVerification, models.StatusVerified).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateStatus(context.Background(), "sub-1", models.StatusPendingVerification, models.StatusVerified)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM submissions")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	rows := submissionRows().
		AddRow("sub-1", "REC-1", "Study", "user-1", "UNDER_REVIEW", "EXPEDITED", nil, nil, nil, time.Now(), nil, nil, nil, nil, nil, 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tracking_code, title")).
		WillReturnRows(rows)

	subs, total, err := repo.List(context.Background(), models.SubmissionFilter{
		Status:   []models.SubmissionStatus{models.StatusUnderReview},
		Category: models.CategoryExpedited,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, subs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
