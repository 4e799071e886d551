package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/classroom-insights/internal/models"
)

// RunRepository persists analysis run metadata.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs the repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run row with generated defaults.
func (r *RunRepository) Create(ctx context.Context, run *models.AnalysisRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO analysis_runs (id, params, status, progress, result_url, created_by, created_at, finished_at, error_message)
VALUES (:id, :params, :status, :progress, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create analysis run: %w", err)
	}
	return nil
}

// GetByID returns a run row by its identifier.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.AnalysisRun, error) {
	const query = `SELECT id, params, status, progress, result_url, created_by, created_at, finished_at, error_message
FROM analysis_runs WHERE id = $1`
	var run models.AnalysisRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get analysis run: %w", err)
	}
	return &run, nil
}

// List returns recent runs newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]models.AnalysisRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, params, status, progress, result_url, created_by, created_at, finished_at, error_message
FROM analysis_runs ORDER BY created_at DESC LIMIT $1`
	var runs []models.AnalysisRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list analysis runs: %w", err)
	}
	return runs, nil
}

// UpdateRunParams defines the mutable fields of a run row.
type UpdateRunParams struct {
	Status       *models.RunStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a run row.
func (r *RunRepository) Update(ctx context.Context, id string, params UpdateRunParams) error {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Progress != nil {
		set = append(set, fmt.Sprintf("progress = $%d", argPos))
		args = append(args, *params.Progress)
		argPos++
	}
	if params.ResultURL != nil {
		set = append(set, fmt.Sprintf("result_url = $%d", argPos))
		args = append(args, *params.ResultURL)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE analysis_runs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update analysis run: %w", err)
	}
	return nil
}

// ListQueued fetches queued runs (used for cold start recovery).
func (r *RunRepository) ListQueued(ctx context.Context, limit int) ([]models.AnalysisRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, params, status, progress, result_url, created_by, created_at, finished_at, error_message
FROM analysis_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var runs []models.AnalysisRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued analysis runs: %w", err)
	}
	return runs, nil
}

// ListFinishedBefore retrieves completed runs prior to cutoff that still
// hold a result link. Cleanup clears the link after deleting the file, so
// processed rows drop out of subsequent pages.
func (r *RunRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, params, status, progress, result_url, created_by, created_at, finished_at, error_message
FROM analysis_runs WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 AND COALESCE(result_url, '') <> '' ORDER BY finished_at ASC LIMIT $2`
	var runs []models.AnalysisRun
	if err := r.db.SelectContext(ctx, &runs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished analysis runs: %w", err)
	}
	return runs, nil
}
