package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencoe/exam-paper-api/internal/models"
)

const paperColumns = `id, request_id, subject_code, course, semester, branch, subject,
       paper_path, content_id, ledger_paper_id, ledger_status, upload_tx_hash, download_tx_hash,
       downloaded, created_at`

// PaperRepository handles finalized-paper persistence.
type PaperRepository struct {
	db *sqlx.DB
}

// NewPaperRepository constructs the repository.
func NewPaperRepository(db *sqlx.DB) *PaperRepository {
	return &PaperRepository{db: db}
}

// CreateWithFinalization inserts the paper and flips its request from
// PendingFinalization to Finalized in a single transaction. If the request
// is no longer PendingFinalization the transaction rolls back and
// sql.ErrNoRows is returned, so concurrent finalize attempts produce exactly
// one paper.
func (r *PaperRepository) CreateWithFinalization(ctx context.Context, paper *models.FinalizedPaper) error {
	if paper.ID == "" {
		paper.ID = uuid.NewString()
	}
	if paper.CreatedAt.IsZero() {
		paper.CreatedAt = time.Now().UTC()
	}
	if paper.LedgerStatus == "" {
		paper.LedgerStatus = models.LedgerUnrecorded
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		paper.RequestID, models.RequestFinalized, time.Now().UTC(), models.RequestPendingFinalization)
	if err != nil {
		return fmt.Errorf("finalize request status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check finalize rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	const insert = `INSERT INTO finalized_papers
	(id, request_id, subject_code, course, semester, branch, subject, paper_path, content_id, ledger_status, downloaded, created_at)
	VALUES (:id, :request_id, :subject_code, :course, :semester, :branch, :subject, :paper_path, :content_id, :ledger_status, :downloaded, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, paper); err != nil {
		return fmt.Errorf("create finalized paper: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize tx: %w", err)
	}
	return nil
}

// GetByID retrieves one finalized paper.
func (r *PaperRepository) GetByID(ctx context.Context, id string) (*models.FinalizedPaper, error) {
	query := fmt.Sprintf(`SELECT %s FROM finalized_papers WHERE id = $1`, paperColumns)
	var paper models.FinalizedPaper
	if err := r.db.GetContext(ctx, &paper, query, id); err != nil {
		return nil, err
	}
	return &paper, nil
}

// ListWithExamTime returns all finalized papers joined to the exam time of
// their originating (and by construction Finalized) request.
func (r *PaperRepository) ListWithExamTime(ctx context.Context) ([]models.FinalizedPaperWithExam, error) {
	const query = `SELECT p.id, p.request_id, p.subject_code, p.course, p.semester, p.branch, p.subject,
       p.paper_path, p.content_id, p.ledger_paper_id, p.ledger_status, p.upload_tx_hash, p.download_tx_hash,
       p.downloaded, p.created_at, r.exam_time
	FROM finalized_papers p
	JOIN requests r ON r.id = p.request_id
	ORDER BY r.exam_time ASC`
	var papers []models.FinalizedPaperWithExam
	if err := r.db.SelectContext(ctx, &papers, query); err != nil {
		return nil, fmt.Errorf("list finalized papers: %w", err)
	}
	return papers, nil
}

// GetWithExamTime returns one paper joined to its request's exam time.
func (r *PaperRepository) GetWithExamTime(ctx context.Context, id string) (*models.FinalizedPaperWithExam, error) {
	const query = `SELECT p.id, p.request_id, p.subject_code, p.course, p.semester, p.branch, p.subject,
       p.paper_path, p.content_id, p.ledger_paper_id, p.ledger_status, p.upload_tx_hash, p.download_tx_hash,
       p.downloaded, p.created_at, r.exam_time
	FROM finalized_papers p
	JOIN requests r ON r.id = p.request_id
	WHERE p.id = $1`
	var paper models.FinalizedPaperWithExam
	if err := r.db.GetContext(ctx, &paper, query, id); err != nil {
		return nil, err
	}
	return &paper, nil
}

// SetLedgerRecord stores the outcome of the upload ledger transaction.
func (r *PaperRepository) SetLedgerRecord(ctx context.Context, id string, status models.LedgerStatus, txHash *string, ledgerPaperID *int64) error {
	const query = `UPDATE finalized_papers SET ledger_status = $2, upload_tx_hash = $3, ledger_paper_id = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, txHash, ledgerPaperID); err != nil {
		return fmt.Errorf("set ledger record: %w", err)
	}
	return nil
}

// ClaimDownload atomically flips downloaded from false to true. Exactly one
// of any concurrent claims for the same paper succeeds; the rest observe
// sql.ErrNoRows.
func (r *PaperRepository) ClaimDownload(ctx context.Context, id string) error {
	const query = `UPDATE finalized_papers SET downloaded = TRUE WHERE id = $1 AND downloaded = FALSE`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("claim download: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check claim rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReleaseDownloadClaim reverts a claim whose ledger record failed, so the
// download can be retried.
func (r *PaperRepository) ReleaseDownloadClaim(ctx context.Context, id string) error {
	const query = `UPDATE finalized_papers SET downloaded = FALSE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("release download claim: %w", err)
	}
	return nil
}

// SetDownloadRecord stores the download transaction hash.
func (r *PaperRepository) SetDownloadRecord(ctx context.Context, id, txHash string) error {
	const query = `UPDATE finalized_papers SET download_tx_hash = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, txHash); err != nil {
		return fmt.Errorf("set download record: %w", err)
	}
	return nil
}
