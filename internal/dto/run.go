package dto

import (
	"time"

	"github.com/noah-isme/classroom-insights/internal/models"
)

// RunRequest captures POST /runs payload.
type RunRequest struct {
	Mode              models.RunMode       `json:"mode"`
	CourseID          *string              `json:"courseId,omitempty"`
	StudentID         *string              `json:"studentId,omitempty"`
	AdditionalContext string               `json:"additionalContext,omitempty"`
	StartDate         *time.Time           `json:"startDate,omitempty"`
	EndDate           *time.Time           `json:"endDate,omitempty"`
	Model             string               `json:"model,omitempty"`
	SummaryFormat     models.SummaryFormat `json:"summaryFormat,omitempty"`
	IncludeReports    *bool                `json:"includeReports,omitempty"`
}

// RunResponse is returned after enqueueing a run.
type RunResponse struct {
	ID       string           `json:"id"`
	Status   models.RunStatus `json:"status"`
	Progress int              `json:"progress"`
}

// RunStatusResponse exposes run progress metadata.
type RunStatusResponse struct {
	ID        string           `json:"id"`
	Status    models.RunStatus `json:"status"`
	Progress  int              `json:"progress"`
	ResultURL *string          `json:"resultUrl,omitempty"`
	Error     *string          `json:"error,omitempty"`
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID         string           `json:"id"`
	Mode       models.RunMode   `json:"mode"`
	Status     models.RunStatus `json:"status"`
	Progress   int              `json:"progress"`
	CreatedBy  string           `json:"createdBy"`
	CreatedAt  time.Time        `json:"createdAt"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
}

// StudentReportResponse exposes one stored report record.
type StudentReportResponse struct {
	CourseID  string                `json:"courseId"`
	StudentID string                `json:"studentId"`
	FullName  string                `json:"fullName"`
	Category  models.Category       `json:"category"`
	Report    string                `json:"report"`
	Metrics   models.StudentMetrics `json:"metrics"`
	Details   []models.DetailRow    `json:"details"`
}
