package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights/internal/models"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
)

// memoryCacheRepo is an in-process CacheRepository for tests.
type memoryCacheRepo struct {
	data map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{data: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

func newChatServiceForTest(t *testing.T, reports *reportStoreStub, gen generationClient) (*ChatService, *memoryCacheRepo) {
	t.Helper()
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc := NewChatService(reports, gen, cache, ChatConfig{MaxTurns: 2, MemoryTTL: time.Minute}, nil)
	return svc, repo
}

func chatReportFixture() *reportStoreStub {
	return &reportStoreStub{saved: []models.StudentReport{
		{RunID: "run-1", CourseID: "c-1", StudentID: "s1", FullName: "Alice",
			Category: models.CategoryHighPerformer, Report: "Alice is doing great."},
	}}
}

func TestChatAskAnswersFromReports(t *testing.T) {
	gen := &generationStub{responses: []string{"Alice has no missing work."}}
	svc, _ := newChatServiceForTest(t, chatReportFixture(), gen)

	answer, err := svc.Ask(context.Background(), "run-1", "sess", "m", "How is Alice doing?")
	require.NoError(t, err)
	assert.Equal(t, "Alice has no missing work.", answer)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Alice is doing great.")
	assert.Contains(t, gen.prompts[0], "Teacher: How is Alice doing?")
}

func TestChatAskCarriesConversationMemory(t *testing.T) {
	gen := &generationStub{responses: []string{"First answer.", "Second answer."}}
	svc, _ := newChatServiceForTest(t, chatReportFixture(), gen)

	_, err := svc.Ask(context.Background(), "run-1", "sess", "m", "First question?")
	require.NoError(t, err)
	_, err = svc.Ask(context.Background(), "run-1", "sess", "m", "Second question?")
	require.NoError(t, err)

	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[1], "Teacher: First question?")
	assert.Contains(t, gen.prompts[1], "Assistant: First answer.")
}

func TestChatMemoryTrimmedToMaxTurns(t *testing.T) {
	gen := &generationStub{responses: []string{"a1", "a2", "a3"}}
	svc, repo := newChatServiceForTest(t, chatReportFixture(), gen)

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := svc.Ask(context.Background(), "run-1", "sess", "m", q)
		require.NoError(t, err)
	}

	raw, ok := repo.data["chat:run-1:sess"]
	require.True(t, ok)
	var history []struct {
		Question string `json:"question"`
	}
	require.NoError(t, json.Unmarshal(raw, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "q2", history[0].Question)
	assert.Equal(t, "q3", history[1].Question)
}

func TestChatAskUnknownRun(t *testing.T) {
	svc, _ := newChatServiceForTest(t, &reportStoreStub{}, &generationStub{})

	_, err := svc.Ask(context.Background(), "run-404", "sess", "m", "anyone there?")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestChatAskValidation(t *testing.T) {
	svc, _ := newChatServiceForTest(t, chatReportFixture(), &generationStub{})

	_, err := svc.Ask(context.Background(), "run-1", "sess", "m", "   ")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	_, err = svc.Ask(context.Background(), "", "sess", "m", "hello?")
	require.Error(t, err)
}

func TestChatResetClearsMemory(t *testing.T) {
	gen := &generationStub{responses: []string{"a1", "a2"}}
	svc, repo := newChatServiceForTest(t, chatReportFixture(), gen)

	_, err := svc.Ask(context.Background(), "run-1", "sess", "m", "q1")
	require.NoError(t, err)
	require.Contains(t, repo.data, "chat:run-1:sess")

	require.NoError(t, svc.Reset(context.Background(), "run-1", "sess"))
	assert.NotContains(t, repo.data, "chat:run-1:sess")

	_, err = svc.Ask(context.Background(), "run-1", "sess", "m", "q2")
	require.NoError(t, err)
	assert.NotContains(t, gen.prompts[1], "Conversation so far:")
}
