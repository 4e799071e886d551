package service

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights/internal/models"
	"github.com/noah-isme/classroom-insights/pkg/export"
	"github.com/noah-isme/classroom-insights/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.SummaryFormat
	ExpiresAt    time.Time
}

// ExportService renders analysis results into report files: a
// per-course detailed text report, a per-course category grouping, and
// a run-level summary table in CSV or PDF with a signed download URL.
type ExportService struct {
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// WriteCourseFiles persists the detailed per-student report file and
// the category grouping file for one course. Repeated runs overwrite
// so old data never mixes in. Returns the relative paths written.
func (s *ExportService) WriteCourseFiles(course models.Course, reports []models.StudentReport, groups []models.CategoryGroup, includeReports bool) ([]string, error) {
	base := courseFileBase(course)

	reportPath := base + ".txt"
	if _, err := s.storage.Save(reportPath, []byte(renderCourseReport(course, reports, includeReports))); err != nil {
		return nil, fmt.Errorf("write course report: %w", err)
	}

	categoriesPath := base + "_categories.txt"
	if _, err := s.storage.Save(categoriesPath, []byte(renderCategoryGroups(course, groups))); err != nil {
		return nil, fmt.Errorf("write category grouping: %w", err)
	}

	s.logger.Info("course report files written",
		zap.String("course_id", course.ID),
		zap.String("report", reportPath),
		zap.String("categories", categoriesPath))

	return []string{reportPath, categoriesPath}, nil
}

// GenerateSummary renders the run-level summary table and returns the
// stored file plus a signed download URL.
func (s *ExportService) GenerateSummary(run *models.AnalysisRun, reports []models.StudentReport) (*ExportResult, error) {
	if run == nil {
		return nil, fmt.Errorf("run nil")
	}

	format := run.Params.SummaryFormat
	if format == "" {
		format = models.SummaryFormatCSV
	}

	dataset := summaryDataset(reports)
	title := fmt.Sprintf("Student Performance Summary %s", run.CreatedAt.UTC().Format("2006-01-02"))

	var payload []byte
	var err error
	switch format {
	case models.SummaryFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.SummaryFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported summary format %s", format)
	}
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	filename := fmt.Sprintf("summary_%s_%s.%s", sanitizeFilename(run.ID), timestamp, format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(run.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (runID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored report file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func courseFileBase(course models.Course) string {
	name := course.Name
	if name == "" {
		name = "course"
	}
	return fmt.Sprintf("%s_%s", sanitizeFilename(name), sanitizeFilename(course.ID))
}

func renderCourseReport(course models.Course, reports []models.StudentReport, includeReports bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reports for Course: %s (%s)\n", course.Name, course.ID)
	b.WriteString(strings.Repeat("=", 50) + "\n")

	for _, r := range reports {
		fmt.Fprintf(&b, "Student: %s\n", r.FullName)
		fmt.Fprintf(&b, "Student ID: %s\n", r.StudentID)
		if includeReports && r.Report != "" {
			fmt.Fprintf(&b, "Teacher Report:\n%s\n", r.Report)
		}

		b.WriteString("\nSubmission Summary Table:\n")
		fmt.Fprintf(&b, "  Total Assigned      : %d\n", r.Metrics.TotalAssignments)
		fmt.Fprintf(&b, "  Missing             : %d\n", r.Metrics.Missing)
		fmt.Fprintf(&b, "  Late                : %d\n", r.Metrics.Late)
		fmt.Fprintf(&b, "  Graded Count        : %d\n", r.Metrics.GradedCount)
		fmt.Fprintf(&b, "  Average (submitted) : %.2f%%\n", r.Metrics.AverageSubmitted)
		fmt.Fprintf(&b, "  Average (all)       : %.2f%%\n", r.Metrics.AverageAll)

		b.WriteString("\nDetailed Submission Table:\n")
		b.WriteString(strings.Repeat("=", 90) + "\n")
		fmt.Fprintf(&b, "%-32s | %-16s | %-10s | %-10s | %s\n", "Title", "ID", "Status", "Score", "Created")
		b.WriteString(strings.Repeat("-", 90) + "\n")
		for _, d := range r.Details {
			title := d.Title
			// Truncate on rune boundaries so multi-byte titles stay
			// valid UTF-8.
			if runes := []rune(title); len(runes) > 32 {
				title = string(runes[:32])
			}
			fmt.Fprintf(&b, "%-32s | %-16s | %-10s | %-10s | %s\n",
				title, d.CourseworkID, string(d.Status), d.Score, d.CreationTime.UTC().Format(time.RFC3339))
		}
		b.WriteString(strings.Repeat("-", 90) + "\n\n")
		b.WriteString(strings.Repeat("-", 50) + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

func renderCategoryGroups(course models.Course, groups []models.CategoryGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s (%s)\n", course.Name, course.ID)
	b.WriteString(strings.Repeat("=", 40) + "\n")
	for _, group := range groups {
		fmt.Fprintf(&b, "%s:\n", group.Category)
		for _, name := range group.Students {
			fmt.Fprintf(&b, " - %s\n", name)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func summaryDataset(reports []models.StudentReport) export.Dataset {
	sorted := make([]models.StudentReport, len(reports))
	copy(sorted, reports)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].FullName != sorted[j].FullName {
			return sorted[i].FullName < sorted[j].FullName
		}
		return sorted[i].CourseID < sorted[j].CourseID
	})

	rows := make([]map[string]string, 0, len(sorted))
	for _, r := range sorted {
		rows = append(rows, map[string]string{
			"Student Name":   r.FullName,
			"Course ID":      r.CourseID,
			"Total Assigned": fmt.Sprintf("%d", r.Metrics.TotalAssignments),
			"Missing":        fmt.Sprintf("%d", r.Metrics.Missing),
			"Late":           fmt.Sprintf("%d", r.Metrics.Late),
			"Graded Count":   fmt.Sprintf("%d", r.Metrics.GradedCount),
			"Avg Submitted":  fmt.Sprintf("%.2f", r.Metrics.AverageSubmitted),
			"Avg All":        fmt.Sprintf("%.2f", r.Metrics.AverageAll),
			"Category":       string(r.Category),
		})
	}

	return export.Dataset{
		Headers: []string{"Student Name", "Course ID", "Total Assigned", "Missing", "Late", "Graded Count", "Avg Submitted", "Avg All", "Category"},
		Rows:    rows,
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if runes := []rune(result); len(runes) > 100 {
		return string(runes[:100])
	}
	return result
}
