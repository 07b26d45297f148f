package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ramsalab/survey-api/internal/models"
)

const exportJobColumns = `id, survey_name, status, include_media, file_path, error, created_at, completed_at`

// ExportRepository tracks asynchronous export jobs.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs an ExportRepository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts a pending job record.
func (r *ExportRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusPending
	}
	query := `INSERT INTO export_jobs (id, survey_name, status, include_media, created_at)
        VALUES (:id, :survey_name, :status, :include_media, NOW())`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// GetByID returns one job, or nil when absent.
func (r *ExportRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	var job models.ExportJob
	query := fmt.Sprintf("SELECT %s FROM export_jobs WHERE id = $1", exportJobColumns)
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return &job, nil
}

// List returns the most recent jobs, newest first.
func (r *ExportRepository) List(ctx context.Context, limit int) ([]models.ExportJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var jobs []models.ExportJob
	query := fmt.Sprintf("SELECT %s FROM export_jobs ORDER BY created_at DESC LIMIT %d", exportJobColumns, limit)
	if err := r.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	return jobs, nil
}

// MarkRunning flips a pending job to RUNNING.
func (r *ExportRepository) MarkRunning(ctx context.Context, id string) error {
	query := "UPDATE export_jobs SET status = $2 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusRunning); err != nil {
		return fmt.Errorf("mark export job running: %w", err)
	}
	return nil
}

// MarkCompleted records the artifact path and completion time.
func (r *ExportRepository) MarkCompleted(ctx context.Context, id, filePath string) error {
	query := "UPDATE export_jobs SET status = $2, file_path = $3, completed_at = NOW() WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusCompleted, filePath); err != nil {
		return fmt.Errorf("mark export job completed: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason and completion time.
func (r *ExportRepository) MarkFailed(ctx context.Context, id, reason string) error {
	query := "UPDATE export_jobs SET status = $2, error = $3, completed_at = NOW() WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusFailed, reason); err != nil {
		return fmt.Errorf("mark export job failed: %w", err)
	}
	return nil
}
