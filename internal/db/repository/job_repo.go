package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// DefaultListLimit caps history queries that do not pass a limit
const DefaultListLimit = 50

// JobRepository stores finished print jobs
type JobRepository interface {
	Record(ctx context.Context, record models.JobRecord) error
	ListByPrinter(ctx context.Context, printer string, limit int) ([]models.JobRecord, error)
}

// PostgresJobRepository handles job history data access
type PostgresJobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *sqlx.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

// Record inserts a finished job. Recording the same event twice is a no-op.
func (r *PostgresJobRepository) Record(ctx context.Context, record models.JobRecord) error {
	query := `
		INSERT INTO job_records (id, printer, job_id, file, outcome, has_snapshot, started_at, finished_at)
		VALUES (:id, :printer, :job_id, :file, :outcome, :has_snapshot, :started_at, :finished_at)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}
	return nil
}

// ListByPrinter returns the most recent jobs of a printer, newest first
func (r *PostgresJobRepository) ListByPrinter(ctx context.Context, printer string, limit int) ([]models.JobRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, printer, job_id, file, outcome, has_snapshot, started_at, finished_at, created_at
		FROM job_records
		WHERE printer = $1
		ORDER BY finished_at DESC
		LIMIT $2
	`

	records := []models.JobRecord{}
	if err := r.db.SelectContext(ctx, &records, query, printer, limit); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return records, nil
}
