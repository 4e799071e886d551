package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/classroom-insights/internal/models"
)

// FragmentDelimiter separates per-student blocks in batch prompts and
// in the model's response. The same literal is used on both sides.
const FragmentDelimiter = "---"

// StudentPrompt is one student's slice of a batch classification
// request.
type StudentPrompt struct {
	Name    string
	Metrics models.StudentMetrics
	Details []models.DetailRow
}

// BuildClassifyPrompt renders the batch classification request. The
// model is asked for exactly one delimited block per student, each
// opening with a category line drawn from the allowed set.
func BuildClassifyPrompt(students []StudentPrompt, categories []models.Category) string {
	labels := make([]string, len(categories))
	for i, c := range categories {
		labels[i] = string(c)
	}

	blocks := make([]string, 0, len(students))
	for _, s := range students {
		blocks = append(blocks, studentBlock(s))
	}
	joined := strings.Join(blocks, "\n\n"+FragmentDelimiter+"\n\n")

	var b strings.Builder
	fmt.Fprintf(&b, "Classify each student below into one of the following categories: %s.\n\n", strings.Join(labels, ", "))
	b.WriteString(`Write a detailed report for the TEACHER.
- Analyze the student's metrics (total assignments, missing, late, average score, graded count) and additional context to determine the category.
- Treat a score of 0 out of the maximum points as a non-submission, equivalent to a missing assignment, when evaluating performance.
- Use the following guidelines for categorization:
  - High Performer: Average score >=90%, no missing or late assignments, and consistent high performance across assignments.
  - Average: Average score >=75% but <90%, with minimal missing (<=1) or late assignments, showing consistent but not exceptional performance.
  - Improving: Average score >=65% but <75%, with signs of progress or additional context indicating improvement.
  - Emerging: Average score >=50% but <65%, with inconsistent performance but some potential shown in specific assignments.
  - At Risk: Average score <50%, multiple missing (>=2) or late assignments, or significant issues with no other strong performance.
  - Needs Review: Insufficient data (e.g., no graded assignments) or ambiguous metrics requiring manual teacher review.
- A single missing critical assessment should not automatically place a student in 'At Risk' if their average score is >=75% and other metrics show consistency.
- Highlight inconsistencies in performance, such as high completion rates but low scores, and consider additional context when relevant.
- Explain clearly why the student falls into the chosen category, referencing specific metrics and context.
- Identify risks, learning gaps, and performance patterns that require teacher attention.
- Suggest concrete teaching strategies, interventions, or follow-up actions tailored to the student's needs.
- Keep the tone professional, objective, and focused on classroom management and academic improvement.

For each student, output in this exact format:
Category: <category>
Teacher Report: <detailed multi-paragraph report for teacher use>

Separate each student's classification with `)
	b.WriteString(FragmentDelimiter)
	b.WriteString("\n\nStudents:\n")
	b.WriteString(joined)

	return strings.TrimSpace(b.String())
}

func studentBlock(s StudentPrompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Student: %s\n", s.Name)
	fmt.Fprintf(&b, "Metrics: %s\n", MetricsJSON(s.Metrics))
	fmt.Fprintf(&b, "Additional Context: %s", s.Metrics.AdditionalContext)
	if len(s.Details) > 0 {
		b.WriteString("\nSubmissions:")
		for _, d := range s.Details {
			fmt.Fprintf(&b, "\n- %s: %s (%s)", d.Title, string(d.Status), d.Score)
		}
	}
	return b.String()
}

// MetricsJSON renders metrics for prompt embedding, leaving the
// free-text context out so it appears only on its own line.
func MetricsJSON(m models.StudentMetrics) string {
	payload := map[string]interface{}{
		"total_assignments": m.TotalAssignments,
		"missing":           m.Missing,
		"late":              m.Late,
		"graded_count":      m.GradedCount,
		"average_submitted": m.AverageSubmitted,
		"average_all":       m.AverageAll,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// BuildChatPrompt renders a question about previously generated
// reports, together with the recent conversation turns.
func BuildChatPrompt(reportContext string, history []ChatTurn, question string) string {
	var b strings.Builder
	b.WriteString("You are an assistant helping a teacher interpret student performance reports.\n")
	b.WriteString("Answer using only the report content below. If the reports do not contain the answer, say so.\n\n")
	b.WriteString("Reports:\n")
	b.WriteString(reportContext)
	b.WriteString("\n\n")
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "Teacher: %s\nAssistant: %s\n", turn.Question, turn.Answer)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Teacher: %s\nAssistant:", question)
	return b.String()
}

// ChatTurn is one prior question/answer exchange.
type ChatTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
