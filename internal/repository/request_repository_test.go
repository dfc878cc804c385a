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

	"github.com/opencoe/exam-paper-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := &models.Request{
		SetterID:      "jsmith",
		SubjectCode:   "CS301",
		Syllabus:      "syllabus/CS301.pdf",
		QPattern:      "patterns/CS301.pdf",
		PaperDeadline: time.Now().Add(48 * time.Hour),
		ExamTime:      time.Now().Add(96 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), req))
	require.NotEmpty(t, req.ID)
	require.Equal(t, models.RequestPending, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAccept(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status = $4")).
		WithArgs("req-1", "jsmith", now, string(models.RequestAccepted), string(models.RequestPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Accept(context.Background(), "req-1", "jsmith", now))

	// a second accept observes no matching Pending row
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status = $4")).
		WithArgs("req-1", "jsmith", now, string(models.RequestAccepted), string(models.RequestPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Accept(context.Background(), "req-1", "jsmith", now), sql.ErrNoRows)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAttachUpload(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	keyPath := "TEA-3_private_key.pem"
	encPath := "CS301.pdf.encrypted"
	req := &models.Request{
		ID:               "req-1",
		SetterID:         "jsmith",
		WrappedContentID: []byte{0x01},
		WrappedKey:       []byte{0x02},
		WrappedSetterID:  []byte{0x03},
		PrivateKeyPath:   &keyPath,
		EncryptedPath:    &encPath,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AttachUpload(context.Background(), req))
	require.Equal(t, models.RequestPendingFinalization, req.Status)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.AttachUpload(context.Background(), req), sql.ErrNoRows)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListBySetter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "setter_id", "subject_code", "syllabus_path", "q_pattern_path",
		"paper_deadline", "exam_time", "status", "wrapped_content_id", "wrapped_key",
		"wrapped_setter_id", "private_key_path", "encrypted_path", "created_at", "updated_at",
	}).AddRow("req-1", "jsmith", "CS301", "s.pdf", "q.pdf", now, now, "Pending", nil, nil, nil, nil, nil, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, setter_id, subject_code")).
		WithArgs("jsmith", string(models.RequestPending)).
		WillReturnRows(rows)

	requests, err := repo.ListBySetter(context.Background(), "jsmith", true)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.Equal(t, "req-1", requests[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryOverview(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	rows := sqlmock.NewRows([]string{"id", "setter_name", "status"}).
		AddRow("req-1", "Jane Smith", "PendingFinalization").
		AddRow("req-2", "bob", "Pending")

	mock.ExpectQuery("SELECT r.id, COALESCE").WillReturnRows(rows)

	overview, err := repo.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, overview, 2)
	require.Equal(t, "Jane Smith", overview[0].SetterName)
	require.NoError(t, mock.ExpectationsWereMet())
}
