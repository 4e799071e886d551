package dto

// ChatRequest captures a question about the reports of a finished run.
type ChatRequest struct {
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId,omitempty"`
	Model     string `json:"model,omitempty"`
	Question  string `json:"question"`
}

// ChatResponse returns the assistant's answer.
type ChatResponse struct {
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId"`
	Answer    string `json:"answer"`
}
