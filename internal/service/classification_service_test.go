package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights/internal/models"
)

// generationStub replays scripted responses and records every prompt.
type generationStub struct {
	prompts   []string
	responses []string
	errs      []error
}

func (g *generationStub) Generate(_ context.Context, _ string, prompt string) (string, error) {
	idx := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	if idx < len(g.errs) && g.errs[idx] != nil {
		return "", g.errs[idx]
	}
	if idx < len(g.responses) {
		return g.responses[idx], nil
	}
	return "", errors.New("unscripted call")
}

func analysisFixture(names ...string) []StudentAnalysis {
	analyses := make([]StudentAnalysis, 0, len(names))
	for i, name := range names {
		analyses = append(analyses, StudentAnalysis{
			Student: models.Student{ID: fmt.Sprintf("s%d", i+1), FullName: name},
			Metrics: models.StudentMetrics{TotalAssignments: 4, GradedCount: 3, AverageAll: 70},
		})
	}
	return analyses
}

func validFragment(category models.Category, name string) string {
	return fmt.Sprintf("Category: %s\nTeacher Report: %s keeps a steady pace.", category, name)
}

func newClassifierForTest(client generationClient, cfg ClassificationConfig) *ClassificationService {
	svc := NewClassificationService(client, cfg)
	svc.sleep = func(context.Context, time.Duration) bool { return true }
	return svc
}

func TestClassifyBatchesInOrder(t *testing.T) {
	stub := &generationStub{responses: []string{
		validFragment(models.CategoryHighPerformer, "Alice") + "\n---\n" + validFragment(models.CategoryAtRisk, "Bob"),
		validFragment(models.CategoryAverage, "Cara"),
	}}
	svc := newClassifierForTest(stub, ClassificationConfig{BatchSize: 2, MaxRetries: 1})

	results := svc.Classify(context.Background(), "m", analysisFixture("Alice", "Bob", "Cara"))

	require.Len(t, stub.prompts, 2)
	assert.Contains(t, stub.prompts[0], "Student: Alice")
	assert.Contains(t, stub.prompts[0], "Student: Bob")
	assert.NotContains(t, stub.prompts[0], "Student: Cara")
	assert.Contains(t, stub.prompts[1], "Student: Cara")

	require.Len(t, results, 3)
	assert.Equal(t, models.CategoryHighPerformer, results["s1"].Category)
	assert.Equal(t, models.CategoryAtRisk, results["s2"].Category)
	assert.Equal(t, models.CategoryAverage, results["s3"].Category)
}

func TestClassifyFragmentCountMismatchRetriesWholeBatch(t *testing.T) {
	// The first call answers a batch of two with a single fragment, so
	// both students go through individual retries.
	stub := &generationStub{responses: []string{
		validFragment(models.CategoryAverage, "Alice"),
		validFragment(models.CategoryHighPerformer, "Alice"),
		validFragment(models.CategoryAtRisk, "Bob"),
	}}
	svc := newClassifierForTest(stub, ClassificationConfig{BatchSize: 2, MaxRetries: 3})

	results := svc.Classify(context.Background(), "m", analysisFixture("Alice", "Bob"))

	require.Len(t, stub.prompts, 3)
	assert.Equal(t, 1, strings.Count(stub.prompts[1], "Student: "))
	assert.Equal(t, 1, strings.Count(stub.prompts[2], "Student: "))
	assert.Equal(t, models.CategoryHighPerformer, results["s1"].Category)
	assert.Equal(t, models.CategoryAtRisk, results["s2"].Category)
}

func TestClassifyRejectsUnknownAndMiscasedCategories(t *testing.T) {
	stub := &generationStub{responses: []string{
		"Category: HIGH PERFORMER\nTeacher Report: shouting",
		validFragment(models.CategoryHighPerformer, "Alice"),
	}}
	svc := newClassifierForTest(stub, ClassificationConfig{BatchSize: 5, MaxRetries: 2})

	results := svc.Classify(context.Background(), "m", analysisFixture("Alice"))

	// The miscased label fails validation and triggers one retry.
	require.Len(t, stub.prompts, 2)
	assert.Equal(t, models.CategoryHighPerformer, results["s1"].Category)
}

func TestClassifyExhaustsRetriesThenFallsBack(t *testing.T) {
	stub := &generationStub{responses: []string{
		"no category here", "still nothing", "nope", "nope again",
	}}
	var delays []time.Duration
	svc := NewClassificationService(stub, ClassificationConfig{BatchSize: 5, MaxRetries: 3})
	svc.sleep = func(_ context.Context, d time.Duration) bool {
		delays = append(delays, d)
		return true
	}

	results := svc.Classify(context.Background(), "m", analysisFixture("Alice"))

	// One batch call plus exactly three individual attempts.
	require.Len(t, stub.prompts, 4)
	// Backoff runs between attempts only, never after the last one.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)

	cls := results["s1"]
	assert.Equal(t, models.CategoryNeedsReview, cls.Category)
	assert.Contains(t, cls.Report, "Unable to categorize Alice automatically")
	assert.Contains(t, cls.Report, `"total_assignments":4`)
}

func TestClassifyTransportErrorsAreRetried(t *testing.T) {
	stub := &generationStub{
		responses: []string{"", "", validFragment(models.CategoryImproving, "Alice")},
		errs:      []error{errors.New("boom"), errors.New("boom")},
	}
	svc := newClassifierForTest(stub, ClassificationConfig{BatchSize: 1, MaxRetries: 5})

	results := svc.Classify(context.Background(), "m", analysisFixture("Alice"))

	require.Len(t, stub.prompts, 3)
	assert.Equal(t, models.CategoryImproving, results["s1"].Category)
}

func TestClassifyCancelledBackoffFallsBack(t *testing.T) {
	stub := &generationStub{responses: []string{"garbage", "garbage"}}
	svc := NewClassificationService(stub, ClassificationConfig{BatchSize: 1, MaxRetries: 10})
	svc.sleep = func(context.Context, time.Duration) bool { return false }

	results := svc.Classify(context.Background(), "m", analysisFixture("Alice"))

	// Batch call, one retry attempt, then the cancelled backoff ends it.
	require.Len(t, stub.prompts, 2)
	assert.Equal(t, models.CategoryNeedsReview, results["s1"].Category)
}

func TestClassifyAlwaysCoversEveryStudent(t *testing.T) {
	stub := &generationStub{}
	svc := newClassifierForTest(stub, ClassificationConfig{BatchSize: 2, MaxRetries: 1})

	analyses := analysisFixture("Alice", "Bob", "Cara", "Dan", "Eve")
	results := svc.Classify(context.Background(), "m", analyses)

	require.Len(t, results, len(analyses))
	for _, a := range analyses {
		cls, ok := results[a.Student.ID]
		require.True(t, ok)
		assert.Equal(t, models.CategoryNeedsReview, cls.Category)
	}
}

func TestClassifyStripsBoldMarkers(t *testing.T) {
	stub := &generationStub{responses: []string{
		"Category: Average\nTeacher Report: **Bob** shows **steady** work.",
	}}
	svc := newClassifierForTest(stub, ClassificationConfig{BatchSize: 1, MaxRetries: 1})

	results := svc.Classify(context.Background(), "m", analysisFixture("Bob"))

	assert.Equal(t, "Category: Average\nTeacher Report: Bob shows steady work.", results["s1"].Report)
}

func TestClassifyEmptyInput(t *testing.T) {
	stub := &generationStub{}
	svc := newClassifierForTest(stub, ClassificationConfig{})

	results := svc.Classify(context.Background(), "m", nil)

	assert.Empty(t, results)
	assert.Empty(t, stub.prompts)
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	svc := NewClassificationService(nil, ClassificationConfig{
		BackoffBase: time.Second,
		BackoffCap:  30 * time.Second,
	})

	assert.Equal(t, time.Second, svc.backoffDelay(1))
	assert.Equal(t, 2*time.Second, svc.backoffDelay(2))
	assert.Equal(t, 16*time.Second, svc.backoffDelay(5))
	assert.Equal(t, 30*time.Second, svc.backoffDelay(6))
	assert.Equal(t, 30*time.Second, svc.backoffDelay(12))
}
