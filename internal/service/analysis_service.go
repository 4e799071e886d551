package service

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights/internal/models"
)

// scorePlaceholder marks absent or zeroed scores in detail rows.
const scorePlaceholder = "—"

type submissionKey struct {
	courseworkID string
	studentID    string
}

// SubmissionIndex provides O(1) lookup of a student's submission for a
// coursework item. The last submission wins if the upstream ever
// returns duplicates for the same (item, student) pair.
type SubmissionIndex struct {
	byKey map[submissionKey]models.Submission
}

// BuildSubmissionIndex indexes raw submissions by (coursework, student).
func BuildSubmissionIndex(submissions []models.Submission) *SubmissionIndex {
	idx := &SubmissionIndex{byKey: make(map[submissionKey]models.Submission, len(submissions))}
	for _, sub := range submissions {
		idx.byKey[submissionKey{courseworkID: sub.CourseworkID, studentID: sub.StudentID}] = sub
	}
	return idx
}

// Lookup returns the submission for the given pair, if any.
func (i *SubmissionIndex) Lookup(courseworkID, studentID string) (models.Submission, bool) {
	if i == nil || i.byKey == nil {
		return models.Submission{}, false
	}
	sub, ok := i.byKey[submissionKey{courseworkID: courseworkID, studentID: studentID}]
	return sub, ok
}

// Len returns the number of indexed submissions.
func (i *SubmissionIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.byKey)
}

// StudentAnalysis is the computed state for one student prior to
// classification.
type StudentAnalysis struct {
	Student models.Student
	Metrics models.StudentMetrics
	Details []models.DetailRow
}

// AnalysisService derives per-student metrics and detail rows from a
// course's coursework and submission index.
type AnalysisService struct {
	logger *zap.Logger
}

// NewAnalysisService constructs the metrics calculator.
func NewAnalysisService(logger *zap.Logger) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisService{logger: logger}
}

// Analyze computes metrics for every student in roster order. The
// additional context is attached to each student's metrics; callers
// pass it only for single-student runs.
func (s *AnalysisService) Analyze(students []models.Student, coursework []models.CourseworkItem, index *SubmissionIndex, additionalContext string) []StudentAnalysis {
	results := make([]StudentAnalysis, 0, len(students))
	for _, student := range students {
		metrics, details := s.ComputeStudent(student, coursework, index)
		metrics.AdditionalContext = additionalContext
		results = append(results, StudentAnalysis{Student: student, Metrics: metrics, Details: details})
	}
	return results
}

// ComputeStudent produces one student's metrics plus an ordered detail
// row per coursework item.
//
// A coursework item counts as missing when the submission is absent,
// never turned in, or carries a nil/zero grade. The checks overlap but
// each item increments the missing count at most once. Lateness is
// tracked independently of grading, so an item can be both late and
// missing. Items without a positive maximum are excluded from both
// averages but still count toward the assignment total.
func (s *AnalysisService) ComputeStudent(student models.Student, coursework []models.CourseworkItem, index *SubmissionIndex) (models.StudentMetrics, []models.DetailRow) {
	var (
		totalPossibleAll       float64
		totalEarnedAll         float64
		totalPossibleSubmitted float64
		totalEarnedSubmitted   float64
		missing                int
		late                   int
		graded                 int
	)

	details := make([]models.DetailRow, 0, len(coursework))

	for _, item := range coursework {
		sub, found := index.Lookup(item.ID, student.ID)

		var grade *float64
		if found {
			grade = sub.AssignedGrade
		}

		itemMissing := !found || sub.State.NotTurnedIn() || grade == nil || *grade == 0
		if itemMissing {
			missing++
		}
		if found && sub.Late {
			late++
		}

		if item.Gradable() {
			max := *item.MaxPoints
			totalPossibleAll += max
			if grade != nil && *grade > 0 {
				// Extra credit counts as full marks so averages stay
				// within 0..100.
				earned := *grade
				if earned > max {
					earned = max
				}
				totalEarnedAll += earned
				graded++
				totalPossibleSubmitted += max
				totalEarnedSubmitted += earned
			}
		}

		details = append(details, detailRow(item, sub, found))
	}

	metrics := models.StudentMetrics{
		TotalAssignments: len(coursework),
		Missing:          missing,
		Late:             late,
		GradedCount:      graded,
		AverageSubmitted: percentage(totalEarnedSubmitted, totalPossibleSubmitted),
		AverageAll:       percentage(totalEarnedAll, totalPossibleAll),
	}

	s.logger.Debug("computed student metrics",
		zap.String("student_id", student.ID),
		zap.Int("total", metrics.TotalAssignments),
		zap.Int("missing", metrics.Missing),
		zap.Float64("average_all", metrics.AverageAll))

	return metrics, details
}

// detailRow derives the display status and score string for one item.
// A zero grade overrides any earlier status back to Missing.
func detailRow(item models.CourseworkItem, sub models.Submission, found bool) models.DetailRow {
	row := models.DetailRow{
		CourseworkID: item.ID,
		Title:        item.Title,
		Score:        scorePlaceholder,
		CreationTime: item.CreationTime,
	}

	if !found {
		row.Status = models.StatusMissing
		return row
	}

	switch {
	case sub.State.NotTurnedIn():
		row.Status = models.StatusMissing
	case sub.Late:
		row.Status = models.StatusLate
	default:
		row.Status = models.StatusSubmitted
	}

	if sub.AssignedGrade != nil {
		if *sub.AssignedGrade == 0 {
			row.Status = models.StatusMissing
		} else if item.MaxPoints != nil {
			row.Score = formatPoints(*sub.AssignedGrade) + "/" + formatPoints(*item.MaxPoints)
		} else {
			row.Score = formatPoints(*sub.AssignedGrade)
		}
	}

	return row
}

func percentage(earned, possible float64) float64 {
	if possible <= 0 {
		return 0.0
	}
	return 100 * earned / possible
}

func formatPoints(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
