package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-insights/internal/models"
	"github.com/noah-isme/classroom-insights/pkg/config"
)

func newTestLLM(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.OllamaConfig{BaseURL: server.URL, Model: "test-model"}, nil)
}

func TestGenerateAccumulatesStream(t *testing.T) {
	client := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(
			`{"response":"Category: "}` + "\n" +
				`not-json` + "\n" +
				`{"response":"Average"}` + "\n" +
				`{"response":"","done":true}` + "\n" +
				`{"response":"ignored after done"}` + "\n"))
	})

	got, err := client.Generate(context.Background(), "", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Category: Average", got)
}

func TestGenerateRejectsErrorStatus(t *testing.T) {
	client := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Generate(context.Background(), "", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestListModels(t *testing.T) {
	client := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"gpt-oss:20b"},{"name":"llama3"}]}`))
	})

	names, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-oss:20b", "llama3"}, names)
}

func TestBuildClassifyPromptStructure(t *testing.T) {
	students := []StudentPrompt{
		{Name: "Alice", Metrics: models.StudentMetrics{TotalAssignments: 3, AverageAll: 88.5}},
		{Name: "Bob", Metrics: models.StudentMetrics{Missing: 2, AdditionalContext: "new to the school"}},
	}
	prompt := BuildClassifyPrompt(students, models.DefaultCategories())

	assert.Contains(t, prompt, "High Performer, At Risk, Average, Improving, Emerging, Needs Review")
	assert.Contains(t, prompt, "Student: Alice")
	assert.Contains(t, prompt, "Student: Bob")
	assert.Contains(t, prompt, "Additional Context: new to the school")
	assert.Contains(t, prompt, "Category: <category>")

	// One delimiter between the two student blocks, one in the format
	// instructions.
	assert.Equal(t, 2, strings.Count(prompt, FragmentDelimiter))
}

func TestBuildChatPromptIncludesHistory(t *testing.T) {
	history := []ChatTurn{{Question: "Who is at risk?", Answer: "Bob."}}
	prompt := BuildChatPrompt("Report for Bob: struggling", history, "Why?")

	assert.Contains(t, prompt, "Report for Bob: struggling")
	assert.Contains(t, prompt, "Teacher: Who is at risk?")
	assert.Contains(t, prompt, "Assistant: Bob.")
	assert.True(t, strings.HasSuffix(prompt, "Teacher: Why?\nAssistant:"))
}
