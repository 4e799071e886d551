package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-insights/internal/llm"
	"github.com/noah-isme/classroom-insights/internal/models"
)

// categoryPrefix opens the line carrying the resolved label in each
// response fragment.
const categoryPrefix = "Category:"

// generationClient is the black-box classification call. Transport
// failures surface as errors and are absorbed by the retry policy.
type generationClient interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ClassificationConfig tunes the batch classifier.
type ClassificationConfig struct {
	BatchSize   int
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Categories  []models.Category
	Logger      *zap.Logger
	Metrics     *MetricsService
}

// ClassificationService partitions students into fixed-size batches,
// sends one prompt per batch, validates the delimited response, and
// retries failed students individually with exponential backoff. Its
// contract is total: every student ends with exactly one
// classification, falling back to Needs Review when the model never
// produces a valid one.
type ClassificationService struct {
	client      generationClient
	batchSize   int
	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
	categories  []models.Category
	logger      *zap.Logger
	metrics     *MetricsService

	sleep func(ctx context.Context, d time.Duration) bool
}

// NewClassificationService constructs the classifier. Zero-value
// config fields fall back to safe defaults; MaxRetries <= 0 means
// retry indefinitely.
func NewClassificationService(client generationClient, cfg ClassificationConfig) *ClassificationService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = models.DefaultCategories()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &ClassificationService{
		client:      client,
		batchSize:   cfg.BatchSize,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		categories:  cfg.Categories,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		sleep:       sleepContext,
	}
}

// Categories returns the configured allowed label set.
func (s *ClassificationService) Categories() []models.Category {
	return s.categories
}

// Classify resolves a classification for every analyzed student.
// Batches are sliced from the input in order, processed sequentially,
// and the returned map always holds one entry per input student.
func (s *ClassificationService) Classify(ctx context.Context, model string, analyses []StudentAnalysis) map[string]models.Classification {
	results := make(map[string]models.Classification, len(analyses))

	for start := 0; start < len(analyses); start += s.batchSize {
		end := start + s.batchSize
		if end > len(analyses) {
			end = len(analyses)
		}
		batch := analyses[start:end]

		s.logger.Info("classifying batch",
			zap.Int("from", start+1), zap.Int("to", end), zap.Int("total", len(analyses)))

		fragments, err := s.requestBatch(ctx, model, batch, false)
		if err != nil {
			s.logger.Warn("batch classification failed, retrying students individually",
				zap.Int("batch_size", len(batch)), zap.Error(err))
			for _, a := range batch {
				results[a.Student.ID] = s.retryStudent(ctx, model, a)
			}
			continue
		}

		for i, a := range batch {
			cls, err := s.validateFragment(fragments[i])
			if err != nil {
				s.logger.Warn("invalid fragment, retrying student",
					zap.String("student_id", a.Student.ID), zap.Error(err))
				cls = s.retryStudent(ctx, model, a)
			}
			results[a.Student.ID] = cls
		}
	}

	return results
}

// requestBatch issues one prompt for the batch and returns exactly one
// fragment per student. A fragment count mismatch fails the whole
// batch.
func (s *ClassificationService) requestBatch(ctx context.Context, model string, batch []StudentAnalysis, retry bool) ([]string, error) {
	prompts := make([]llm.StudentPrompt, 0, len(batch))
	for _, a := range batch {
		prompts = append(prompts, llm.StudentPrompt{
			Name:    a.Student.DisplayName(),
			Metrics: a.Metrics,
			Details: a.Details,
		})
	}

	s.metrics.ObserveClassificationCall(retry)

	raw, err := s.client.Generate(ctx, model, llm.BuildClassifyPrompt(prompts, s.categories))
	if err != nil {
		return nil, fmt.Errorf("classification call: %w", err)
	}

	fragments := splitFragments(raw)
	if len(fragments) != len(batch) {
		return nil, fmt.Errorf("expected %d fragments, got %d", len(batch), len(fragments))
	}
	return fragments, nil
}

// retryStudent re-classifies one student in isolation until success,
// until the attempt budget is spent, or until the context ends.
// Backoff doubles from the base between attempts and never exceeds the
// cap. The return value is always a valid classification.
func (s *ClassificationService) retryStudent(ctx context.Context, model string, a StudentAnalysis) models.Classification {
	for attempt := 1; ; attempt++ {
		fragments, err := s.requestBatch(ctx, model, []StudentAnalysis{a}, true)
		if err == nil {
			cls, vErr := s.validateFragment(fragments[0])
			if vErr == nil {
				return cls
			}
			err = vErr
		}

		s.logger.Warn("classification attempt failed",
			zap.String("student_id", a.Student.ID), zap.Int("attempt", attempt), zap.Error(err))

		if s.maxRetries > 0 && attempt >= s.maxRetries {
			s.logger.Warn("retries exhausted, assigning fallback",
				zap.String("student_id", a.Student.ID), zap.Int("attempts", attempt))
			return s.fallback(a)
		}

		if !s.sleep(ctx, s.backoffDelay(attempt)) {
			s.logger.Warn("classification cancelled, assigning fallback",
				zap.String("student_id", a.Student.ID))
			return s.fallback(a)
		}
	}
}

// backoffDelay doubles per attempt starting from the base, capped.
func (s *ClassificationService) backoffDelay(attempt int) time.Duration {
	delay := s.backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.backoffCap {
			return s.backoffCap
		}
	}
	if delay > s.backoffCap {
		return s.backoffCap
	}
	return delay
}

// validateFragment checks one response fragment for a category line
// carrying an allowed label and returns the cleaned classification.
func (s *ClassificationService) validateFragment(fragment string) (models.Classification, error) {
	var categoryLine string
	for _, line := range strings.Split(fragment, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), categoryPrefix) {
			categoryLine = strings.TrimSpace(line)
			break
		}
	}
	if categoryLine == "" {
		return models.Classification{}, fmt.Errorf("fragment has no category line")
	}

	label := strings.TrimSpace(strings.TrimPrefix(categoryLine, categoryPrefix))
	category, err := models.ParseCategory(label, s.categories)
	if err != nil {
		return models.Classification{}, err
	}

	return models.Classification{
		Category: category,
		Report:   stripBold(fragment),
	}, nil
}

// fallback builds the terminal Needs Review classification, embedding
// the raw metrics so a teacher can follow up manually.
func (s *ClassificationService) fallback(a StudentAnalysis) models.Classification {
	s.metrics.ObserveFallback()
	report := fmt.Sprintf("%s %s\nTeacher Report: Unable to categorize %s automatically. Please review student metrics manually: %s",
		categoryPrefix, models.CategoryNeedsReview, a.Student.DisplayName(), llm.MetricsJSON(a.Metrics))
	return models.Classification{
		Category: models.CategoryNeedsReview,
		Report:   report,
	}
}

// splitFragments breaks a raw response on the delimiter, trimming
// whitespace and discarding empty parts.
func splitFragments(raw string) []string {
	parts := strings.Split(raw, llm.FragmentDelimiter)
	fragments := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			fragments = append(fragments, trimmed)
		}
	}
	return fragments
}

// stripBold removes markdown bold markers from accepted text.
func stripBold(text string) string {
	return strings.ReplaceAll(text, "**", "")
}

// sleepContext waits for the duration unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
