package service

import (
	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights/internal/models"
)

// ReportAssembler merges metrics, detail rows, and classification text
// into per-student report records and groups students by resolved
// category. Pure data transformation; no I/O.
type ReportAssembler struct {
	logger *zap.Logger
}

// NewReportAssembler constructs the assembler.
func NewReportAssembler(logger *zap.Logger) *ReportAssembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportAssembler{logger: logger}
}

// Assemble produces one report record per analyzed student plus the
// category grouping. Students keep their processing order, both in the
// record list and inside each category bucket; categories appear in
// first-seen order. A student whose classification is somehow absent
// is still emitted, bucketed under Needs Review.
func (a *ReportAssembler) Assemble(runID, courseID string, analyses []StudentAnalysis, classifications map[string]models.Classification) ([]models.StudentReport, []models.CategoryGroup) {
	reports := make([]models.StudentReport, 0, len(analyses))
	groupIndex := make(map[models.Category]int)
	groups := make([]models.CategoryGroup, 0)

	for _, st := range analyses {
		cls, ok := classifications[st.Student.ID]
		if !ok {
			a.logger.Warn("student missing classification, assigning fallback",
				zap.String("student_id", st.Student.ID))
			cls = models.Classification{
				Category: models.CategoryNeedsReview,
				Report:   "Category: Needs Review\nTeacher Report: No classification was produced for this student. Please review the metrics manually.",
			}
		}

		reports = append(reports, models.StudentReport{
			RunID:     runID,
			CourseID:  courseID,
			StudentID: st.Student.ID,
			FullName:  st.Student.DisplayName(),
			Category:  cls.Category,
			Report:    cls.Report,
			Metrics:   st.Metrics,
			Details:   st.Details,
		})

		idx, seen := groupIndex[cls.Category]
		if !seen {
			idx = len(groups)
			groupIndex[cls.Category] = idx
			groups = append(groups, models.CategoryGroup{Category: cls.Category})
		}
		groups[idx].Students = append(groups[idx].Students, st.Student.DisplayName())
	}

	return reports, groups
}
