package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/classroom-insights/internal/classroom"
	"github.com/noah-isme/classroom-insights/internal/llm"
	"github.com/noah-isme/classroom-insights/internal/models"
	"github.com/noah-isme/classroom-insights/internal/repository"
	"github.com/noah-isme/classroom-insights/internal/service"
	"github.com/noah-isme/classroom-insights/pkg/config"
	"github.com/noah-isme/classroom-insights/pkg/jobs"
	"github.com/noah-isme/classroom-insights/pkg/logger"
	"github.com/noah-isme/classroom-insights/pkg/storage"
)

// run-analysis executes one analysis run from the command line and
// writes the report files without requiring the API server or a
// database.

func main() {
	mode := flag.String("mode", string(models.RunModeAllCourses), "run scope: all_courses, single_course, single_student")
	courseID := flag.String("course", "", "course id (single_course and single_student modes)")
	studentID := flag.String("student", "", "student id (single_student mode)")
	additionalContext := flag.String("context", "", "free-text context forwarded to the classifier (single_student mode)")
	startDate := flag.String("start", "", "coursework window start (YYYY-MM-DD)")
	endDate := flag.String("end", "", "coursework window end (YYYY-MM-DD)")
	model := flag.String("model", "", "generation model override")
	format := flag.String("format", string(models.SummaryFormatCSV), "summary format: csv or pdf")
	includeReports := flag.Bool("include-reports", true, "include generated teacher reports in course files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	params := models.RunParams{
		Mode:              models.RunMode(*mode),
		AdditionalContext: *additionalContext,
		Model:             *model,
		SummaryFormat:     models.SummaryFormat(*format),
		IncludeReports:    *includeReports,
	}
	if *courseID != "" {
		params.CourseID = courseID
	}
	if *studentID != "" {
		params.StudentID = studentID
	}
	if ts, ok := parseDate(*startDate); ok {
		params.StartDate = &ts
	}
	if ts, ok := parseDate(*endDate); ok {
		params.EndDate = &ts
	}
	if err := service.ValidateRunParams(params); err != nil {
		log.Fatalf("invalid run parameters: %v", err)
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare reports directory", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exporter := service.NewExportService(store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.ResultTTL,
	}, logr, nil, nil)

	classroomClient := classroom.NewClient(cfg.Classroom, logr)
	llmClient := llm.NewClient(cfg.Ollama, logr)

	categories := make([]models.Category, 0, len(cfg.Classifier.Categories))
	for _, c := range cfg.Classifier.Categories {
		categories = append(categories, models.Category(c))
	}

	classifier := service.NewClassificationService(llmClient, service.ClassificationConfig{
		BatchSize:   cfg.Classifier.BatchSize,
		MaxRetries:  cfg.Classifier.MaxRetries,
		BackoffBase: cfg.Classifier.BackoffBase,
		BackoffCap:  cfg.Classifier.BackoffCap,
		Categories:  categories,
		Logger:      logr,
	})

	runs := newMemoryRunStore()
	reports := &memoryReportStore{}
	worker := service.NewRunWorker(runs, reports, classroomClient,
		service.NewAnalysisService(logr), classifier, service.NewReportAssembler(logr),
		exporter, nil, 1, logr)

	run := &models.AnalysisRun{
		ID:        uuid.NewString(),
		Params:    params,
		Status:    models.RunStatusQueued,
		CreatedBy: "cli",
		CreatedAt: time.Now().UTC(),
	}
	if err := runs.Create(context.Background(), run); err != nil {
		logr.Sugar().Fatalw("failed to register run", "error", err)
	}

	if err := worker.Handle(context.Background(), jobs.Job{ID: run.ID, Attempt: 1}); err != nil {
		logr.Sugar().Errorw("analysis run failed", "error", err)
		os.Exit(1)
	}

	final, _ := runs.GetByID(context.Background(), run.ID)
	if final != nil && final.ResultURL != nil {
		fmt.Printf("analysis finished, reports in %s\n", cfg.Reports.StorageDir)
		fmt.Printf("summary download path: %s\n", *final.ResultURL)
	}
}

func parseDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		log.Fatalf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return ts, true
}

// memoryRunStore keeps run state in process for one-shot execution.
type memoryRunStore struct {
	mu   sync.Mutex
	runs map[string]*models.AnalysisRun
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{runs: map[string]*models.AnalysisRun{}}
}

func (m *memoryRunStore) Create(_ context.Context, run *models.AnalysisRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *memoryRunStore) GetByID(_ context.Context, id string) (*models.AnalysisRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *run
	return &copied, nil
}

func (m *memoryRunStore) List(_ context.Context, _ int) ([]models.AnalysisRun, error) {
	return nil, nil
}

func (m *memoryRunStore) Update(_ context.Context, id string, params repository.UpdateRunParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		run.Status = *params.Status
	}
	if params.Progress != nil {
		run.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		run.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		run.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		run.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *memoryRunStore) ListQueued(_ context.Context, _ int) ([]models.AnalysisRun, error) {
	return nil, nil
}

func (m *memoryRunStore) ListFinishedBefore(_ context.Context, _ time.Time, _ int) ([]models.AnalysisRun, error) {
	return nil, nil
}

// memoryReportStore discards persistence; the files on disk are the
// CLI's output.
type memoryReportStore struct {
	mu    sync.Mutex
	saved []models.StudentReport
}

func (m *memoryReportStore) SaveAll(_ context.Context, reports []models.StudentReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, reports...)
	return nil
}

func (m *memoryReportStore) ListByRun(_ context.Context, runID string) ([]models.StudentReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.StudentReport, 0)
	for _, r := range m.saved {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}
