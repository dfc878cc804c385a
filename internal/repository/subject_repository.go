package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/opencoe/exam-paper-api/internal/models"
)

// SubjectRepository resolves subject codes from the registry table.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// FindBySubject returns the registered code for a subject name.
func (r *SubjectRepository) FindBySubject(ctx context.Context, subject string) (*models.Subject, error) {
	const query = `SELECT code, subject FROM subjects WHERE subject = $1`
	var record models.Subject
	if err := r.db.GetContext(ctx, &record, query, subject); err != nil {
		return nil, err
	}
	return &record, nil
}
