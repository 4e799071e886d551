package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights/internal/dto"
	"github.com/noah-isme/classroom-insights/internal/models"
	"github.com/noah-isme/classroom-insights/internal/repository"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
	"github.com/noah-isme/classroom-insights/pkg/jobs"
)

func strPtr(v string) *string { return &v }

func ptrTime(v time.Time) *time.Time { return &v }

type runStoreStub struct {
	runs         map[string]*models.AnalysisRun
	updates      []repository.UpdateRunParams
	created      int
	listFinished int
}

func newRunStoreStub() *runStoreStub {
	return &runStoreStub{runs: map[string]*models.AnalysisRun{}}
}

func (r *runStoreStub) Create(_ context.Context, run *models.AnalysisRun) error {
	r.created++
	if run.ID == "" {
		run.ID = fmt.Sprintf("run-%d", r.created)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	r.runs[run.ID] = run
	return nil
}

func (r *runStoreStub) GetByID(_ context.Context, id string) (*models.AnalysisRun, error) {
	run, ok := r.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *run
	return &copied, nil
}

func (r *runStoreStub) List(_ context.Context, _ int) ([]models.AnalysisRun, error) {
	out := make([]models.AnalysisRun, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, *run)
	}
	return out, nil
}

func (r *runStoreStub) Update(_ context.Context, id string, params repository.UpdateRunParams) error {
	run, ok := r.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.updates = append(r.updates, params)
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

func (r *runStoreStub) ListQueued(_ context.Context, _ int) ([]models.AnalysisRun, error) {
	out := make([]models.AnalysisRun, 0)
	for _, run := range r.runs {
		if run.Status == models.RunStatusQueued {
			out = append(out, *run)
		}
	}
	return out, nil
}

// ListFinishedBefore mirrors the repository query: only finished runs
// that still carry a result link, capped at limit.
func (r *runStoreStub) ListFinishedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.AnalysisRun, error) {
	r.listFinished++
	out := make([]models.AnalysisRun, 0)
	for _, run := range r.runs {
		if run.Status != models.RunStatusFinished || run.FinishedAt == nil || !run.FinishedAt.Before(cutoff) {
			continue
		}
		if run.ResultURL == nil || *run.ResultURL == "" {
			continue
		}
		out = append(out, *run)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type queueStub struct {
	enqueued []jobs.Job
	err      error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, job)
	return nil
}

func newRunServiceForTest(t *testing.T) (*RunService, *runStoreStub, *queueStub, *ExportService) {
	t.Helper()
	store := newRunStoreStub()
	queue := &queueStub{}
	exporter, _ := newExportServiceForTest(t)
	svc := NewRunService(store, queue, exporter, nil, RunServiceConfig{ResultTTL: time.Hour})
	return svc, store, queue, exporter
}

func TestCreateRunEnqueuesQueuedRun(t *testing.T) {
	svc, store, queue, _ := newRunServiceForTest(t)

	resp, err := svc.CreateRun(context.Background(), dto.RunRequest{
		Mode:     models.RunModeSingleCourse,
		CourseID: strPtr("c-1"),
	}, "teacher@example.com")

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, resp.Status)
	assert.Equal(t, 0, resp.Progress)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp.ID, queue.enqueued[0].ID)

	run := store.runs[resp.ID]
	require.NotNil(t, run)
	assert.Equal(t, "teacher@example.com", run.CreatedBy)
	assert.Equal(t, models.SummaryFormatCSV, run.Params.SummaryFormat)
	assert.True(t, run.Params.IncludeReports)
}

func TestCreateRunValidation(t *testing.T) {
	svc, _, _, _ := newRunServiceForTest(t)
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(-24 * time.Hour)

	cases := []struct {
		name string
		req  dto.RunRequest
	}{
		{name: "unknown mode", req: dto.RunRequest{Mode: "everything"}},
		{name: "single course without course", req: dto.RunRequest{Mode: models.RunModeSingleCourse}},
		{name: "single student without student", req: dto.RunRequest{Mode: models.RunModeSingleStudent, CourseID: strPtr("c-1")}},
		{name: "bad summary format", req: dto.RunRequest{Mode: models.RunModeAllCourses, SummaryFormat: "docx"}},
		{name: "inverted date window", req: dto.RunRequest{Mode: models.RunModeAllCourses, StartDate: ptrTime(start), EndDate: ptrTime(end)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRun(context.Background(), tc.req, "teacher@example.com")
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
}

func TestValidateRunParamsRejectsIncompleteModes(t *testing.T) {
	cases := []struct {
		name   string
		params models.RunParams
	}{
		{name: "single course without course", params: models.RunParams{Mode: models.RunModeSingleCourse}},
		{name: "single student without course", params: models.RunParams{Mode: models.RunModeSingleStudent, StudentID: strPtr("s-1")}},
		{name: "single student without student", params: models.RunParams{Mode: models.RunModeSingleStudent, CourseID: strPtr("c-1")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRunParams(tc.params)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestCleanupExpiredClearsLinksAndTerminates(t *testing.T) {
	svc, store, _, _ := newRunServiceForTest(t)

	finishedAt := time.Now().Add(-48 * time.Hour)
	for i := 0; i < 250; i++ {
		id := fmt.Sprintf("run-%d", i)
		url := fmt.Sprintf("/api/v1/export/token-%d", i)
		store.runs[id] = &models.AnalysisRun{
			ID:         id,
			Status:     models.RunStatusFinished,
			ResultURL:  &url,
			FinishedAt: &finishedAt,
		}
	}

	svc.cleanupExpired(context.Background())

	for id, run := range store.runs {
		require.NotNil(t, run.ResultURL, id)
		assert.Empty(t, *run.ResultURL, id)
	}
	// Two full pages of 100 plus the final short one.
	assert.Equal(t, 3, store.listFinished)
}

func TestCreateRunEnqueueFailureMarksRunFailed(t *testing.T) {
	store := newRunStoreStub()
	queue := &queueStub{err: errors.New("queue closed")}
	exporter, _ := newExportServiceForTest(t)
	svc := NewRunService(store, queue, exporter, nil, RunServiceConfig{})

	_, err := svc.CreateRun(context.Background(), dto.RunRequest{Mode: models.RunModeAllCourses}, "teacher@example.com")
	require.Error(t, err)

	require.Len(t, store.runs, 1)
	for _, run := range store.runs {
		assert.Equal(t, models.RunStatusFailed, run.Status)
		require.NotNil(t, run.ErrorMessage)
	}
}

func TestGetStatusNotFound(t *testing.T) {
	svc, _, _, _ := newRunServiceForTest(t)

	_, err := svc.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestResolveDownloadRoundTrip(t *testing.T) {
	svc, store, _, exporter := newRunServiceForTest(t)

	run := &models.AnalysisRun{
		Params:    models.RunParams{Mode: models.RunModeAllCourses, SummaryFormat: models.SummaryFormatCSV},
		Status:    models.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(context.Background(), run))

	result, err := exporter.GenerateSummary(run, reportFixture())
	require.NoError(t, err)

	finished := models.RunStatusFinished
	require.NoError(t, store.Update(context.Background(), run.ID, repository.UpdateRunParams{
		Status:    &finished,
		ResultURL: &result.URL,
	}))

	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.SummaryFormatCSV, download.Format)
	assert.Contains(t, download.Filename, "summary_")
}

func TestResolveDownloadRejectsUnfinishedRun(t *testing.T) {
	svc, store, _, exporter := newRunServiceForTest(t)

	run := &models.AnalysisRun{
		Params:    models.RunParams{Mode: models.RunModeAllCourses},
		Status:    models.RunStatusProcessing,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(context.Background(), run))

	result, err := exporter.GenerateSummary(run, nil)
	require.NoError(t, err)
	require.NoError(t, store.Update(context.Background(), run.ID, repository.UpdateRunParams{ResultURL: &result.URL}))

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestResolveDownloadRejectsGarbageToken(t *testing.T) {
	svc, _, _, _ := newRunServiceForTest(t)

	_, err := svc.ResolveDownload(context.Background(), "not-a-token")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRecoverPendingRunsRequeues(t *testing.T) {
	svc, store, queue, _ := newRunServiceForTest(t)

	require.NoError(t, store.Create(context.Background(), &models.AnalysisRun{
		Params: models.RunParams{Mode: models.RunModeAllCourses},
		Status: models.RunStatusQueued,
	}))
	require.NoError(t, store.Create(context.Background(), &models.AnalysisRun{
		Params: models.RunParams{Mode: models.RunModeAllCourses},
		Status: models.RunStatusFinished,
	}))

	svc.RecoverPendingRuns(context.Background())

	require.Len(t, queue.enqueued, 1)
}
