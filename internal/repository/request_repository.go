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

const requestColumns = `id, setter_id, subject_code, syllabus_path, q_pattern_path,
       paper_deadline, exam_time, status, wrapped_content_id, wrapped_key, wrapped_setter_id,
       private_key_path, encrypted_path, created_at, updated_at`

// RequestRepository handles paper-request persistence. Status transitions
// are conditional on the persisted status so concurrent callers cannot
// double-process a request.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create stores a new request in Pending.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.RequestPending
	}
	const query = `INSERT INTO requests
	(id, setter_id, subject_code, syllabus_path, q_pattern_path, paper_deadline, exam_time, status, created_at, updated_at)
	VALUES (:id, :setter_id, :subject_code, :syllabus_path, :q_pattern_path, :paper_deadline, :exam_time, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetByID retrieves one request row.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE id = $1`, requestColumns)
	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListBySetter returns the setter's requests filtered by pending flag:
// pending=true yields the inbox, pending=false everything already acted on.
func (r *RequestRepository) ListBySetter(ctx context.Context, setterID string, pending bool) ([]models.Request, error) {
	op := "!="
	if pending {
		op = "="
	}
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE setter_id = $1 AND status %s $2 ORDER BY created_at DESC`, requestColumns, op)
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, setterID, models.RequestPending); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// Overview returns the COE dashboard rows of all requests with setter names.
func (r *RequestRepository) Overview(ctx context.Context) ([]models.RequestOverview, error) {
	const query = `SELECT r.id, COALESCE(NULLIF(u.full_name, ''), r.setter_id) AS setter_name, r.status
	FROM requests r
	LEFT JOIN users u ON u.username = r.setter_id
	ORDER BY r.created_at DESC`
	var rows []models.RequestOverview
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("request overview: %w", err)
	}
	return rows, nil
}

// Accept transitions Pending to Accepted for the setter of record. Only one
// of any concurrent accept attempts observes an affected row.
func (r *RequestRepository) Accept(ctx context.Context, id, setterID string, ts time.Time) error {
	const query = `UPDATE requests SET status = $4, updated_at = $3
	WHERE id = $1 AND setter_id = $2 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, setterID, ts, models.RequestAccepted, models.RequestPending)
	if err != nil {
		return fmt.Errorf("accept request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check accept rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AttachUpload persists the upload side effects and moves Accepted to
// PendingFinalization in one conditional write.
func (r *RequestRepository) AttachUpload(ctx context.Context, req *models.Request) error {
	const query = `UPDATE requests SET
		status = :status,
		wrapped_content_id = :wrapped_content_id,
		wrapped_key = :wrapped_key,
		wrapped_setter_id = :wrapped_setter_id,
		private_key_path = :private_key_path,
		encrypted_path = :encrypted_path,
		updated_at = :updated_at
	WHERE id = :id AND setter_id = :setter_id AND status = 'Accepted'`
	req.Status = models.RequestPendingFinalization
	req.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, query, req)
	if err != nil {
		return fmt.Errorf("attach upload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check upload rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearEncryptedPath drops the local ciphertext reference after cleanup.
func (r *RequestRepository) ClearEncryptedPath(ctx context.Context, id string) error {
	const query = `UPDATE requests SET encrypted_path = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear encrypted path: %w", err)
	}
	return nil
}
