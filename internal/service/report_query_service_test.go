package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights/internal/models"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
)

type reportReaderStub struct {
	byRun    map[string][]models.StudentReport
	byCourse map[string][]models.StudentReport
	err      error
}

func (s *reportReaderStub) ListByRun(_ context.Context, runID string) ([]models.StudentReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byRun[runID], nil
}

func (s *reportReaderStub) ListByCourse(_ context.Context, runID, courseID string) ([]models.StudentReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byCourse[runID+"/"+courseID], nil
}

func TestReportQueryListByRun(t *testing.T) {
	stub := &reportReaderStub{byRun: map[string][]models.StudentReport{
		"run-1": {
			{RunID: "run-1", CourseID: "c-1", StudentID: "s1", FullName: "Alice Doe", Category: models.CategoryHighPerformer, Report: "Alice is doing well."},
			{RunID: "run-1", CourseID: "c-2", StudentID: "s2", FullName: "Bob Roe", Category: models.CategoryAtRisk},
		},
	}}
	svc := NewReportQueryService(stub, nil)

	out, err := svc.List(context.Background(), "run-1", "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Alice Doe", out[0].FullName)
	assert.Equal(t, models.CategoryHighPerformer, out[0].Category)
	assert.Equal(t, "c-2", out[1].CourseID)
}

func TestReportQueryListFiltersByCourse(t *testing.T) {
	stub := &reportReaderStub{byCourse: map[string][]models.StudentReport{
		"run-1/c-2": {
			{RunID: "run-1", CourseID: "c-2", StudentID: "s2", FullName: "Bob Roe", Category: models.CategoryAtRisk},
		},
	}}
	svc := NewReportQueryService(stub, nil)

	out, err := svc.List(context.Background(), "run-1", "c-2")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "s2", out[0].StudentID)
}

func TestReportQueryListRequiresRunID(t *testing.T) {
	svc := NewReportQueryService(&reportReaderStub{}, nil)

	_, err := svc.List(context.Background(), "", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReportQueryListNotFound(t *testing.T) {
	svc := NewReportQueryService(&reportReaderStub{}, nil)

	_, err := svc.List(context.Background(), "run-404", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReportQueryCategoriesGroupsFirstSeen(t *testing.T) {
	stub := &reportReaderStub{byRun: map[string][]models.StudentReport{
		"run-1": {
			{RunID: "run-1", StudentID: "s1", FullName: "Alice", Category: models.CategoryHighPerformer},
			{RunID: "run-1", StudentID: "s2", FullName: "Bob", Category: models.CategoryAtRisk},
			{RunID: "run-1", StudentID: "s3", FullName: "Cara", Category: models.CategoryHighPerformer},
		},
	}}
	svc := NewReportQueryService(stub, nil)

	groups, err := svc.Categories(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, models.CategoryHighPerformer, groups[0].Category)
	assert.Equal(t, []string{"Alice", "Cara"}, groups[0].Students)
	assert.Equal(t, []string{"Bob"}, groups[1].Students)
}

func TestReportQueryCategoriesNotFound(t *testing.T) {
	svc := NewReportQueryService(&reportReaderStub{}, nil)

	_, err := svc.Categories(context.Background(), "run-404")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReportQueryListStoreFailure(t *testing.T) {
	svc := NewReportQueryService(&reportReaderStub{err: errors.New("boom")}, nil)

	_, err := svc.List(context.Background(), "run-1", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
