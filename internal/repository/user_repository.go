package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opencoe/exam-paper-api/internal/models"
)

const userColumns = `id, username, password_hash, full_name, role, teacher_id, course, semester, branch, subject, active, last_login, created_at, updated_at`

// UserRepository handles user persistence.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByUsername retrieves one user row by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID retrieves one user row by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin stamps a successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// GetProfile returns the snapshot fields of a setter.
func (r *UserRepository) GetProfile(ctx context.Context, username string) (*models.TeacherProfile, error) {
	const query = `SELECT course, semester, branch, subject FROM users WHERE username = $1`
	var profile models.TeacherProfile
	if err := r.db.GetContext(ctx, &profile, query, username); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListEligibleSetters returns teachers matching the profile filter that have
// no request currently in flight.
func (r *UserRepository) ListEligibleSetters(ctx context.Context, filter models.SetterFilter) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users
	WHERE role = $1 AND active AND course = $2 AND semester = $3 AND branch = $4 AND subject = $5
	AND username NOT IN (
		SELECT setter_id FROM requests WHERE status IN ($6, $7, $8)
	)
	ORDER BY username`, userColumns)

	var users []models.User
	err := r.db.SelectContext(ctx, &users, query,
		models.RoleTeacher,
		filter.Course, filter.Semester, filter.Branch, filter.Subject,
		models.RequestPending, models.RequestAccepted, models.RequestPendingFinalization,
	)
	if err != nil {
		return nil, fmt.Errorf("list eligible setters: %w", err)
	}
	return users, nil
}
