package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights/internal/models"
	"github.com/noah-isme/classroom-insights/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, nil, nil, nil)
	return svc, dir
}

func reportFixture() []models.StudentReport {
	return []models.StudentReport{
		{
			RunID: "run-1", CourseID: "c-1", StudentID: "s1", FullName: "Alice",
			Category: models.CategoryHighPerformer,
			Report:   "Category: High Performer\nTeacher Report: Excellent work.",
			Metrics:  models.StudentMetrics{TotalAssignments: 4, GradedCount: 4, AverageSubmitted: 95, AverageAll: 95},
			Details: models.DetailRows{
				{CourseworkID: "w1", Title: "Quiz 1", Status: models.StatusSubmitted, Score: "28/30", CreationTime: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
			},
		},
		{
			RunID: "run-1", CourseID: "c-1", StudentID: "s2", FullName: "Bob",
			Category: models.CategoryAtRisk,
			Report:   "Category: At Risk\nTeacher Report: Multiple missing assignments.",
			Metrics:  models.StudentMetrics{TotalAssignments: 4, Missing: 3, AverageAll: 20},
		},
	}
}

func TestWriteCourseFiles(t *testing.T) {
	svc, dir := newExportServiceForTest(t)
	course := models.Course{ID: "c-1", Name: "Algebra I"}
	groups := []models.CategoryGroup{
		{Category: models.CategoryHighPerformer, Students: []string{"Alice"}},
		{Category: models.CategoryAtRisk, Students: []string{"Bob"}},
	}

	paths, err := svc.WriteCourseFiles(course, reportFixture(), groups, true)
	require.NoError(t, err)
	require.Equal(t, []string{"Algebra_I_c-1.txt", "Algebra_I_c-1_categories.txt"}, paths)

	report, err := os.ReadFile(filepath.Join(dir, paths[0]))
	require.NoError(t, err)
	text := string(report)
	assert.Contains(t, text, "Reports for Course: Algebra I (c-1)")
	assert.Contains(t, text, "Student: Alice")
	assert.Contains(t, text, "Teacher Report:\nCategory: High Performer")
	assert.Contains(t, text, "Total Assigned      : 4")
	assert.Contains(t, text, "Quiz 1")
	assert.Contains(t, text, "28/30")

	categories, err := os.ReadFile(filepath.Join(dir, paths[1]))
	require.NoError(t, err)
	assert.Contains(t, string(categories), "High Performer:\n - Alice")
	assert.Contains(t, string(categories), "At Risk:\n - Bob")
}

func TestWriteCourseFilesWithoutReports(t *testing.T) {
	svc, dir := newExportServiceForTest(t)
	course := models.Course{ID: "c-1", Name: "Algebra I"}

	paths, err := svc.WriteCourseFiles(course, reportFixture(), nil, false)
	require.NoError(t, err)

	report, err := os.ReadFile(filepath.Join(dir, paths[0]))
	require.NoError(t, err)
	assert.NotContains(t, string(report), "Teacher Report:")
	assert.Contains(t, string(report), "Submission Summary Table:")
}

func TestWriteCourseFilesTruncatesMultiByteTitles(t *testing.T) {
	svc, dir := newExportServiceForTest(t)
	course := models.Course{ID: "c-1", Name: "Algebra I"}
	reports := []models.StudentReport{
		{
			RunID: "run-1", CourseID: "c-1", StudentID: "s1", FullName: "Alice",
			Category: models.CategoryAverage,
			Details: models.DetailRows{
				{
					CourseworkID: "w1",
					Title:        strings.Repeat("数", 40),
					Status:       models.StatusSubmitted,
					Score:        "10/10",
					CreationTime: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
				},
			},
		},
	}

	paths, err := svc.WriteCourseFiles(course, reports, nil, false)
	require.NoError(t, err)

	report, err := os.ReadFile(filepath.Join(dir, paths[0]))
	require.NoError(t, err)
	text := string(report)
	assert.True(t, utf8.ValidString(text))
	assert.Contains(t, text, strings.Repeat("数", 32))
	assert.NotContains(t, text, strings.Repeat("数", 33))
}

func TestGenerateSummaryCSV(t *testing.T) {
	svc, dir := newExportServiceForTest(t)
	run := &models.AnalysisRun{
		ID:        "run-1",
		Params:    models.RunParams{SummaryFormat: models.SummaryFormatCSV},
		CreatedAt: time.Now().UTC(),
	}

	// Deliberately unsorted input; the summary sorts by student name.
	reports := reportFixture()
	reports[0], reports[1] = reports[1], reports[0]

	result, err := svc.GenerateSummary(run, reports)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryFormatCSV, result.Format)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/export/"))
	assert.True(t, strings.HasSuffix(result.RelativePath, ".csv"))

	runID, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	assert.Equal(t, result.RelativePath, relPath)

	payload, err := os.ReadFile(filepath.Join(dir, result.RelativePath))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student Name,Course ID,Total Assigned,Missing,Late,Graded Count,Avg Submitted,Avg All,Category", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Alice,"))
	assert.True(t, strings.HasPrefix(lines[2], "Bob,"))
	assert.Contains(t, lines[2], "At Risk")
}

func TestGenerateSummaryPDF(t *testing.T) {
	svc, dir := newExportServiceForTest(t)
	run := &models.AnalysisRun{
		ID:        "run-1",
		Params:    models.RunParams{SummaryFormat: models.SummaryFormatPDF},
		CreatedAt: time.Now().UTC(),
	}

	result, err := svc.GenerateSummary(run, reportFixture())
	require.NoError(t, err)
	assert.Equal(t, models.SummaryFormatPDF, result.Format)
	assert.True(t, strings.HasSuffix(result.RelativePath, ".pdf"))

	info, err := os.Stat(filepath.Join(dir, result.RelativePath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestGenerateSummaryRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	run := &models.AnalysisRun{
		ID:     "run-1",
		Params: models.RunParams{SummaryFormat: "docx"},
	}

	_, err := svc.GenerateSummary(run, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported summary format")
}

func TestCleanupRemovesExpiredFiles(t *testing.T) {
	svc, dir := newExportServiceForTest(t)
	course := models.Course{ID: "c-1", Name: "Algebra I"}
	paths, err := svc.WriteCourseFiles(course, reportFixture(), nil, false)
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	for _, p := range paths {
		require.NoError(t, os.Chtimes(filepath.Join(dir, p), old, old))
	}

	removed, err := svc.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	_, err = os.Stat(filepath.Join(dir, paths[0]))
	assert.True(t, os.IsNotExist(err))
}
