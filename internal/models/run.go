package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RunMode selects the analysis scope, mirroring the operator choices.
type RunMode string

const (
	RunModeAllCourses    RunMode = "all_courses"
	RunModeSingleCourse  RunMode = "single_course"
	RunModeSingleStudent RunMode = "single_student"
)

// RunStatus captures the analysis run lifecycle.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "QUEUED"
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusFinished   RunStatus = "FINISHED"
	RunStatusFailed     RunStatus = "FAILED"
)

// SummaryFormat enumerates supported summary export formats.
type SummaryFormat string

const (
	SummaryFormatCSV SummaryFormat = "csv"
	SummaryFormatPDF SummaryFormat = "pdf"
)

// AnalysisRun is one persisted pipeline execution.
type AnalysisRun struct {
	ID           string     `db:"id" json:"id"`
	Params       RunParams  `db:"params" json:"params"`
	Status       RunStatus  `db:"status" json:"status"`
	Progress     int        `db:"progress" json:"progress"`
	ResultURL    *string    `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string     `db:"created_by" json:"created_by"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
}

// RunParams stores request-scoped options persisted as JSONB.
type RunParams struct {
	Mode              RunMode       `json:"mode"`
	CourseID          *string       `json:"courseId,omitempty"`
	StudentID         *string       `json:"studentId,omitempty"`
	AdditionalContext string        `json:"additionalContext,omitempty"`
	StartDate         *time.Time    `json:"startDate,omitempty"`
	EndDate           *time.Time    `json:"endDate,omitempty"`
	Model             string        `json:"model,omitempty"`
	SummaryFormat     SummaryFormat `json:"summaryFormat,omitempty"`
	IncludeReports    bool          `json:"includeReports"`
}

// Value marshals params to JSON for persistence.
func (p RunParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal run params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *RunParams) Scan(value interface{}) error {
	return scanJSON(value, p, "RunParams")
}
