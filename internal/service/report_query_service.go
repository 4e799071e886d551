package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights/internal/dto"
	"github.com/noah-isme/classroom-insights/internal/models"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
)

type reportReader interface {
	ListByRun(ctx context.Context, runID string) ([]models.StudentReport, error)
	ListByCourse(ctx context.Context, runID, courseID string) ([]models.StudentReport, error)
}

// ReportQueryService serves stored per-student reports to API clients.
type ReportQueryService struct {
	reports reportReader
	logger  *zap.Logger
}

// NewReportQueryService constructs the query service.
func NewReportQueryService(reports reportReader, logger *zap.Logger) *ReportQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportQueryService{reports: reports, logger: logger}
}

// List returns the reports of a run, optionally scoped to one course.
func (s *ReportQueryService) List(ctx context.Context, runID, courseID string) ([]dto.StudentReportResponse, error) {
	if runID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "runId is required")
	}

	var (
		reports []models.StudentReport
		err     error
	)
	if courseID != "" {
		reports, err = s.reports.ListByCourse(ctx, runID, courseID)
	} else {
		reports, err = s.reports.ListByRun(ctx, runID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports")
	}
	if len(reports) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no reports stored for this run")
	}

	out := make([]dto.StudentReportResponse, 0, len(reports))
	for _, r := range reports {
		out = append(out, dto.StudentReportResponse{
			CourseID:  r.CourseID,
			StudentID: r.StudentID,
			FullName:  r.FullName,
			Category:  r.Category,
			Report:    r.Report,
			Metrics:   r.Metrics,
			Details:   r.Details,
		})
	}
	return out, nil
}

// Categories rebuilds the category grouping of a run from the stored
// reports. Categories keep first-seen order, students keep the order
// they were processed in.
func (s *ReportQueryService) Categories(ctx context.Context, runID string) ([]models.CategoryGroup, error) {
	if runID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "runId is required")
	}

	reports, err := s.reports.ListByRun(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports")
	}
	if len(reports) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no reports stored for this run")
	}

	groupIndex := make(map[models.Category]int)
	groups := make([]models.CategoryGroup, 0)
	for _, r := range reports {
		idx, seen := groupIndex[r.Category]
		if !seen {
			idx = len(groups)
			groupIndex[r.Category] = idx
			groups = append(groups, models.CategoryGroup{Category: r.Category})
		}
		groups[idx].Students = append(groups[idx].Students, r.FullName)
	}
	return groups, nil
}
