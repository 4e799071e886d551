package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights/internal/models"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
)

type rosterStub struct {
	courses     []models.Course
	students    map[string][]models.Student
	courseCalls int
	rosterCalls int
	err         error
}

func (r *rosterStub) ListCourses(_ context.Context) ([]models.Course, error) {
	r.courseCalls++
	if r.err != nil {
		return nil, r.err
	}
	return r.courses, nil
}

func (r *rosterStub) ListStudents(_ context.Context, courseID string) ([]models.Student, error) {
	r.rosterCalls++
	if r.err != nil {
		return nil, r.err
	}
	return r.students[courseID], nil
}

type modelStub struct {
	names []string
	def   string
	err   error
}

func (m *modelStub) ListModels(_ context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.names, nil
}

func (m *modelStub) DefaultModel() string { return m.def }

func newCourseServiceForTest(source *rosterStub, llm *modelStub) (*CourseService, *memoryCacheRepo) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	return NewCourseService(source, llm, cache, time.Minute, nil), repo
}

func TestListCoursesCached(t *testing.T) {
	source := &rosterStub{courses: []models.Course{{ID: "c-1", Name: "Algebra I"}}}
	svc, _ := newCourseServiceForTest(source, &modelStub{})

	first, cached, err := svc.ListCourses(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	second, cached, err := svc.ListCourses(context.Background())
	require.NoError(t, err)
	assert.True(t, cached)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.courseCalls)
}

func TestListStudentsCachedPerCourse(t *testing.T) {
	source := &rosterStub{students: map[string][]models.Student{
		"c-1": {{ID: "s1", FullName: "Alice"}},
		"c-2": {{ID: "s2", FullName: "Bob"}},
	}}
	svc, _ := newCourseServiceForTest(source, &modelStub{})

	_, _, err := svc.ListStudents(context.Background(), "c-1")
	require.NoError(t, err)
	_, cached, err := svc.ListStudents(context.Background(), "c-1")
	require.NoError(t, err)
	assert.True(t, cached)
	other, _, err := svc.ListStudents(context.Background(), "c-2")
	require.NoError(t, err)

	assert.Equal(t, 2, source.rosterCalls)
	require.Len(t, other, 1)
	assert.Equal(t, "Bob", other[0].FullName)
}

func TestListStudentsRequiresCourseID(t *testing.T) {
	svc, _ := newCourseServiceForTest(&rosterStub{}, &modelStub{})

	_, _, err := svc.ListStudents(context.Background(), "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestListCoursesUpstreamError(t *testing.T) {
	source := &rosterStub{err: errors.New("token rejected")}
	svc, _ := newCourseServiceForTest(source, &modelStub{})

	_, _, err := svc.ListCourses(context.Background())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUpstream.Code, appErr.Code)
}

func TestListModels(t *testing.T) {
	svc, _ := newCourseServiceForTest(&rosterStub{}, &modelStub{
		names: []string{"gpt-oss:20b", "llama3"},
		def:   "gpt-oss:20b",
	})

	names, def, err := svc.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-oss:20b", "llama3"}, names)
	assert.Equal(t, "gpt-oss:20b", def)
}

func TestInvalidateCatalogForcesRefetch(t *testing.T) {
	source := &rosterStub{courses: []models.Course{{ID: "c-1"}}}
	svc, _ := newCourseServiceForTest(source, &modelStub{})

	_, _, err := svc.ListCourses(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.InvalidateCatalog(context.Background()))
	_, cached, err := svc.ListCourses(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)

	assert.Equal(t, 2, source.courseCalls)
}
