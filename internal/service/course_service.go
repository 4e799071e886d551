package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights/internal/models"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
)

type rosterSource interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListStudents(ctx context.Context, courseID string) ([]models.Student, error)
}

type modelSource interface {
	ListModels(ctx context.Context) ([]string, error)
	DefaultModel() string
}

// CourseService exposes the classroom catalog (courses, rosters) and
// the available model identifiers, caching upstream responses.
type CourseService struct {
	source   rosterSource
	llm      modelSource
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCourseService constructs the catalog service.
func NewCourseService(source rosterSource, llm modelSource, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &CourseService{
		source:   source,
		llm:      llm,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// ListCourses returns active courses plus whether the response came
// from cache.
func (s *CourseService) ListCourses(ctx context.Context) ([]models.Course, bool, error) {
	const key = "catalog:courses"

	var cached []models.Course
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, true, nil
	}

	courses, err := s.source.ListCourses(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to list courses")
	}

	if err := s.cache.Set(ctx, key, courses, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache course list", zap.Error(err))
	}
	return courses, false, nil
}

// ListStudents returns the roster of a course plus whether the
// response came from cache.
func (s *CourseService) ListStudents(ctx context.Context, courseID string) ([]models.Student, bool, error) {
	if courseID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "courseId is required")
	}
	key := fmt.Sprintf("catalog:students:%s", courseID)

	var cached []models.Student
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, true, nil
	}

	students, err := s.source.ListStudents(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to list students")
	}

	if err := s.cache.Set(ctx, key, students, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache student roster", zap.Error(err))
	}
	return students, false, nil
}

// ListModels returns the model identifiers offered by the generation
// endpoint, with the configured default first when present.
func (s *CourseService) ListModels(ctx context.Context) ([]string, string, error) {
	names, err := s.llm.ListModels(ctx)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to list models")
	}
	return names, s.llm.DefaultModel(), nil
}

// InvalidateCatalog drops cached catalog entries, forcing a refetch.
func (s *CourseService) InvalidateCatalog(ctx context.Context) error {
	return s.cache.Invalidate(ctx, "catalog:*")
}
