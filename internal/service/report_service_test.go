package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights/internal/models"
)

func TestAssembleGroupsByFirstSeenCategory(t *testing.T) {
	asm := NewReportAssembler(nil)
	analyses := analysisFixture("Alice", "Bob", "Cara", "Dan")
	classifications := map[string]models.Classification{
		"s1": {Category: models.CategoryAverage, Report: "r1"},
		"s2": {Category: models.CategoryHighPerformer, Report: "r2"},
		"s3": {Category: models.CategoryAverage, Report: "r3"},
		"s4": {Category: models.CategoryAtRisk, Report: "r4"},
	}

	reports, groups := asm.Assemble("run-1", "course-1", analyses, classifications)

	require.Len(t, reports, 4)
	assert.Equal(t, "run-1", reports[0].RunID)
	assert.Equal(t, "course-1", reports[0].CourseID)
	assert.Equal(t, "Alice", reports[0].FullName)
	assert.Equal(t, "r1", reports[0].Report)

	require.Len(t, groups, 3)
	assert.Equal(t, models.CategoryAverage, groups[0].Category)
	assert.Equal(t, []string{"Alice", "Cara"}, groups[0].Students)
	assert.Equal(t, models.CategoryHighPerformer, groups[1].Category)
	assert.Equal(t, []string{"Bob"}, groups[1].Students)
	assert.Equal(t, models.CategoryAtRisk, groups[2].Category)
	assert.Equal(t, []string{"Dan"}, groups[2].Students)
}

func TestAssembleMissingClassificationFallsBack(t *testing.T) {
	asm := NewReportAssembler(nil)
	analyses := analysisFixture("Alice", "Bob")
	classifications := map[string]models.Classification{
		"s1": {Category: models.CategoryEmerging, Report: "r1"},
	}

	reports, groups := asm.Assemble("run-1", "course-1", analyses, classifications)

	require.Len(t, reports, 2)
	assert.Equal(t, models.CategoryNeedsReview, reports[1].Category)
	assert.Contains(t, reports[1].Report, "No classification was produced")

	require.Len(t, groups, 2)
	assert.Equal(t, models.CategoryNeedsReview, groups[1].Category)
	assert.Equal(t, []string{"Bob"}, groups[1].Students)
}

func TestAssembleEmptyInputs(t *testing.T) {
	asm := NewReportAssembler(nil)

	reports, groups := asm.Assemble("run-1", "course-1", nil, nil)

	assert.Empty(t, reports)
	assert.Empty(t, groups)
}
