package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights/internal/models"
	"github.com/noah-isme/classroom-insights/internal/repository"
	"github.com/noah-isme/classroom-insights/pkg/jobs"
)

// RunWorker executes queued analysis runs: fetch, metrics,
// classification, assembly, persistence, and report files. Courses are
// processed one at a time, ordered by name.
type RunWorker struct {
	runs       runStore
	reports    studentReportStore
	source     classroomSource
	analysis   *AnalysisService
	classifier *ClassificationService
	assembler  *ReportAssembler
	exporter   *ExportService
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewRunWorker constructs a worker.
func NewRunWorker(runs runStore, reports studentReportStore, source classroomSource, analysis *AnalysisService, classifier *ClassificationService, assembler *ReportAssembler, exporter *ExportService, metrics *MetricsService, maxRetries int, logger *zap.Logger) *RunWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &RunWorker{
		runs:       runs,
		reports:    reports,
		source:     source,
		analysis:   analysis,
		classifier: classifier,
		assembler:  assembler,
		exporter:   exporter,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes one queued run.
func (w *RunWorker) Handle(ctx context.Context, job jobs.Job) error {
	run, err := w.runs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}

	processing := models.RunStatusProcessing
	progress := 5
	if err := w.runs.Update(ctx, job.ID, repository.UpdateRunParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	started := time.Now()
	result, err := w.execute(ctx, run)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.RunStatusFailed
			progress = 100
			now := time.Now().UTC()
			if updateErr := w.runs.Update(ctx, job.ID, repository.UpdateRunParams{
				Status:       &failed,
				Progress:     &progress,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark run failed", "run_id", job.ID, "error", updateErr)
			}
		} else {
			queued := models.RunStatusQueued
			reset := 0
			if updateErr := w.runs.Update(ctx, job.ID, repository.UpdateRunParams{
				Status:       &queued,
				Progress:     &reset,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark run queued", "run_id", job.ID, "error", updateErr)
			}
		}
		return err
	}

	w.metrics.ObserveRun(time.Since(started))

	finished := models.RunStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := result.URL
	clear := ""
	if err := w.runs.Update(ctx, job.ID, repository.UpdateRunParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark run finished", "run_id", job.ID, "error", err)
		return err
	}
	return nil
}

// execute runs the full pipeline and returns the summary export.
func (w *RunWorker) execute(ctx context.Context, run *models.AnalysisRun) (*ExportResult, error) {
	courses, err := w.resolveCourses(ctx, run.Params)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, fmt.Errorf("no courses matched the run parameters")
	}

	allReports := make([]models.StudentReport, 0)

	for i, course := range courses {
		reports, err := w.processCourse(ctx, run, course)
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", course.ID, err)
		}
		allReports = append(allReports, reports...)

		// Reserve the final 10% for the summary export.
		progress := 5 + (i+1)*90/len(courses)
		_ = w.runs.Update(ctx, run.ID, repository.UpdateRunParams{Progress: &progress})
	}

	return w.exporter.GenerateSummary(run, allReports)
}

// processCourse runs fetch, metrics, classification, and assembly for
// one course and persists the results.
func (w *RunWorker) processCourse(ctx context.Context, run *models.AnalysisRun, course models.Course) ([]models.StudentReport, error) {
	students, err := w.source.ListStudents(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	if run.Params.Mode == models.RunModeSingleStudent {
		if run.Params.StudentID == nil || *run.Params.StudentID == "" {
			return nil, fmt.Errorf("single student mode requires a student id")
		}
		students = filterStudent(students, *run.Params.StudentID)
		if len(students) == 0 {
			return nil, fmt.Errorf("student %s not found in course", *run.Params.StudentID)
		}
	}

	coursework, err := w.source.ListCoursework(ctx, course.ID, run.Params.StartDate, run.Params.EndDate)
	if err != nil {
		return nil, fmt.Errorf("list coursework: %w", err)
	}

	index := w.fetchSubmissions(ctx, course.ID, coursework)

	additionalContext := ""
	if run.Params.Mode == models.RunModeSingleStudent {
		additionalContext = run.Params.AdditionalContext
	}

	analyses := w.analysis.Analyze(students, coursework, index, additionalContext)

	w.logger.Info("course analyzed",
		zap.String("course_id", course.ID),
		zap.Int("students", len(analyses)),
		zap.Int("coursework", len(coursework)),
		zap.Int("submissions", index.Len()))

	classifications := w.classifier.Classify(ctx, run.Params.Model, analyses)

	reports, groups := w.assembler.Assemble(run.ID, course.ID, analyses, classifications)

	if err := w.reports.SaveAll(ctx, reports); err != nil {
		return nil, fmt.Errorf("persist reports: %w", err)
	}
	if _, err := w.exporter.WriteCourseFiles(course, reports, groups, run.Params.IncludeReports); err != nil {
		return nil, fmt.Errorf("write course files: %w", err)
	}

	return reports, nil
}

// fetchSubmissions collects submissions item by item. A failure for
// one coursework item degrades to "no submissions" for that item
// instead of aborting the run.
func (w *RunWorker) fetchSubmissions(ctx context.Context, courseID string, coursework []models.CourseworkItem) *SubmissionIndex {
	all := make([]models.Submission, 0)
	for _, item := range coursework {
		subs, err := w.source.ListSubmissions(ctx, courseID, item.ID)
		if err != nil {
			w.logger.Warn("failed to fetch submissions for coursework item",
				zap.String("course_id", courseID),
				zap.String("coursework_id", item.ID),
				zap.Error(err))
			continue
		}
		all = append(all, subs...)
	}
	return BuildSubmissionIndex(all)
}

func (w *RunWorker) resolveCourses(ctx context.Context, params models.RunParams) ([]models.Course, error) {
	courses, err := w.source.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	if params.Mode == models.RunModeAllCourses {
		sorted := make([]models.Course, len(courses))
		copy(sorted, courses)
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].Name != sorted[j].Name {
				return sorted[i].Name < sorted[j].Name
			}
			return sorted[i].ID < sorted[j].ID
		})
		return sorted, nil
	}
	if params.CourseID == nil || *params.CourseID == "" {
		return nil, fmt.Errorf("mode %s requires a course id", params.Mode)
	}
	for _, course := range courses {
		if course.ID == *params.CourseID {
			return []models.Course{course}, nil
		}
	}
	return nil, fmt.Errorf("course %s not found", *params.CourseID)
}

func filterStudent(students []models.Student, studentID string) []models.Student {
	for _, s := range students {
		if s.ID == studentID {
			return []models.Student{s}
		}
	}
	return nil
}
