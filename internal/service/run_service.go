package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights/internal/dto"
	"github.com/noah-isme/classroom-insights/internal/models"
	"github.com/noah-isme/classroom-insights/internal/repository"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
	"github.com/noah-isme/classroom-insights/pkg/jobs"
)

type classroomSource interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListStudents(ctx context.Context, courseID string) ([]models.Student, error)
	ListCoursework(ctx context.Context, courseID string, start, end *time.Time) ([]models.CourseworkItem, error)
	ListSubmissions(ctx context.Context, courseID, courseworkID string) ([]models.Submission, error)
}

type runStore interface {
	Create(ctx context.Context, run *models.AnalysisRun) error
	GetByID(ctx context.Context, id string) (*models.AnalysisRun, error)
	List(ctx context.Context, limit int) ([]models.AnalysisRun, error)
	Update(ctx context.Context, id string, params repository.UpdateRunParams) error
	ListQueued(ctx context.Context, limit int) ([]models.AnalysisRun, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.AnalysisRun, error)
}

type studentReportStore interface {
	SaveAll(ctx context.Context, reports []models.StudentReport) error
	ListByRun(ctx context.Context, runID string) ([]models.StudentReport, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// RunServiceConfig governs queue recovery and cleanup.
type RunServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.SummaryFormat
	ExpiresAt time.Time
}

// RunService manages the analysis run lifecycle: creation, queueing,
// status, downloads, recovery, and cleanup of expired result files.
type RunService struct {
	repo     runStore
	queue    jobDispatcher
	exporter *ExportService
	logger   *zap.Logger
	cfg      RunServiceConfig
}

// NewRunService constructs the run service.
func NewRunService(repo runStore, queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg RunServiceConfig) *RunService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &RunService{
		repo:     repo,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateRun validates the request, persists the run, and enqueues it.
func (s *RunService) CreateRun(ctx context.Context, req dto.RunRequest, actorEmail string) (*dto.RunResponse, error) {
	includeReports := true
	if req.IncludeReports != nil {
		includeReports = *req.IncludeReports
	}
	format := req.SummaryFormat
	if format == "" {
		format = models.SummaryFormatCSV
	}

	params := models.RunParams{
		Mode:              req.Mode,
		CourseID:          req.CourseID,
		StudentID:         req.StudentID,
		AdditionalContext: req.AdditionalContext,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		Model:             req.Model,
		SummaryFormat:     format,
		IncludeReports:    includeReports,
	}
	if err := ValidateRunParams(params); err != nil {
		return nil, err
	}

	run := &models.AnalysisRun{
		Params:    params,
		Status:    models.RunStatusQueued,
		Progress:  0,
		CreatedBy: actorEmail,
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create analysis run")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: string(run.Params.Mode)}); err != nil {
		status := models.RunStatusFailed
		msg := "failed to enqueue run"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, run.ID, repository.UpdateRunParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue analysis run")
	}

	return &dto.RunResponse{ID: run.ID, Status: run.Status, Progress: run.Progress}, nil
}

// GetStatus exposes run metadata to clients.
func (s *RunService) GetStatus(ctx context.Context, id string) (*dto.RunStatusResponse, error) {
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load analysis run")
	}
	resp := &dto.RunStatusResponse{
		ID:       run.ID,
		Status:   run.Status,
		Progress: run.Progress,
	}
	if run.ResultURL != nil {
		resp.ResultURL = run.ResultURL
	}
	if run.ErrorMessage != nil && *run.ErrorMessage != "" {
		resp.Error = run.ErrorMessage
	}
	return resp, nil
}

// ListRuns returns recent runs for the dashboard listing.
func (s *RunService) ListRuns(ctx context.Context, limit int) ([]dto.RunSummary, error) {
	runs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list analysis runs")
	}
	summaries := make([]dto.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, dto.RunSummary{
			ID:         run.ID,
			Mode:       run.Params.Mode,
			Status:     run.Status,
			Progress:   run.Progress,
			CreatedBy:  run.CreatedBy,
			CreatedAt:  run.CreatedAt,
			FinishedAt: run.FinishedAt,
		})
	}
	return summaries, nil
}

// ResolveDownload validates a token and opens the stored summary file.
func (s *RunService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	runID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load analysis run")
	}
	if run.ResultURL == nil || !strings.HasSuffix(*run.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if run.Status != models.RunStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "run not finished")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open summary file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    run.Params.SummaryFormat,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingRuns replays queued runs (e.g. after process restart).
func (s *RunService) RecoverPendingRuns(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued runs", "error", err)
		return
	}
	for _, run := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: string(run.Params.Mode)}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending run", "run_id", run.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired result files.
func (s *RunService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *RunService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	for {
		if ctx.Err() != nil {
			return
		}
		runs, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Sugar().Warnw("cleanup list failed", "error", err)
			return
		}
		if len(runs) == 0 {
			break
		}
		for _, run := range runs {
			if run.ResultURL != nil {
				if token := extractToken(*run.ResultURL); token != "" {
					if _, relPath, _, err := s.exporter.ParseToken(token, true); err == nil {
						if err := s.exporter.Delete(relPath); err != nil {
							s.logger.Sugar().Warnw("cleanup delete failed", "run_id", run.ID, "error", err)
						}
					}
				}
			}
			// Clearing the link retires the row from the next page; a
			// failed update would refetch the same rows forever.
			cleared := ""
			if err := s.repo.Update(ctx, run.ID, repository.UpdateRunParams{ResultURL: &cleared}); err != nil {
				s.logger.Sugar().Warnw("cleanup update failed", "run_id", run.ID, "error", err)
				return
			}
		}
		if len(runs) < 100 {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

// ValidateRunParams rejects parameter combinations the worker cannot
// execute. Callers that build params outside the HTTP layer must run it
// before handing the run to a worker.
func ValidateRunParams(p models.RunParams) error {
	switch p.Mode {
	case models.RunModeAllCourses:
	case models.RunModeSingleCourse, models.RunModeSingleStudent:
		if p.CourseID == nil || *p.CourseID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "courseId is required for this mode")
		}
		if p.Mode == models.RunModeSingleStudent && (p.StudentID == nil || *p.StudentID == "") {
			return appErrors.Clone(appErrors.ErrValidation, "studentId is required for single student runs")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported run mode")
	}
	if p.SummaryFormat != "" && p.SummaryFormat != models.SummaryFormatCSV && p.SummaryFormat != models.SummaryFormatPDF {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported summary format")
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "endDate must not precede startDate")
	}
	return nil
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}
