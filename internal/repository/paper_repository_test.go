package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/opencoe/exam-paper-api/internal/models"
)

func TestPaperRepositoryCreateWithFinalization(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaperRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finalized_papers")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	paper := &models.FinalizedPaper{
		RequestID:   "req-1",
		SubjectCode: "CS301",
		Course:      "B.E.",
		Semester:    "VI",
		Branch:      "CSE",
		Subject:     "Compiler Design",
		PaperPath:   "CS301.pdf",
		ContentID:   "QmHash",
	}
	require.NoError(t, repo.CreateWithFinalization(context.Background(), paper))
	require.NotEmpty(t, paper.ID)
	require.Equal(t, models.LedgerUnrecorded, paper.LedgerStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaperRepositoryCreateWithFinalizationAlreadyFinalized(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaperRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	paper := &models.FinalizedPaper{RequestID: "req-1"}
	require.ErrorIs(t, repo.CreateWithFinalization(context.Background(), paper), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaperRepositoryClaimDownload(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaperRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE finalized_papers SET downloaded = TRUE")).
		WithArgs("paper-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.ClaimDownload(context.Background(), "paper-1"))

	// concurrent second claim loses the conditional update
	mock.ExpectExec(regexp.QuoteMeta("UPDATE finalized_papers SET downloaded = TRUE")).
		WithArgs("paper-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.ClaimDownload(context.Background(), "paper-1"), sql.ErrNoRows)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaperRepositorySetLedgerRecord(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaperRepository(db)
	txHash := "0xdeadbeef"
	ledgerID := int64(9)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE finalized_papers SET ledger_status = $2")).
		WithArgs("paper-1", string(models.LedgerRecorded), &txHash, &ledgerID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetLedgerRecord(context.Background(), "paper-1", models.LedgerRecorded, &txHash, &ledgerID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaperRepositoryGetWithExamTime(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaperRepository(db)
	examTime := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "request_id", "subject_code", "course", "semester", "branch", "subject",
		"paper_path", "content_id", "ledger_paper_id", "ledger_status", "upload_tx_hash",
		"download_tx_hash", "downloaded", "created_at", "exam_time",
	}).AddRow("paper-1", "req-1", "CS301", "B.E.", "VI", "CSE", "Compiler Design",
		"CS301.pdf", "QmHash", 9, "Recorded", "0xaaa", nil, false, time.Now(), examTime)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT p.id, p.request_id")).
		WithArgs("paper-1").
		WillReturnRows(rows)

	paper, err := repo.GetWithExamTime(context.Background(), "paper-1")
	require.NoError(t, err)
	require.Equal(t, examTime, paper.ExamTime)
	require.False(t, paper.Downloaded)
	require.NoError(t, mock.ExpectationsWereMet())
}
