package models

import "time"

// SubmissionState enumerates the upstream submission lifecycle states.
type SubmissionState string

const (
	SubmissionStateNew       SubmissionState = "NEW"
	SubmissionStateCreated   SubmissionState = "CREATED"
	SubmissionStateTurnedIn  SubmissionState = "TURNED_IN"
	SubmissionStateReturned  SubmissionState = "RETURNED"
	SubmissionStateReclaimed SubmissionState = "RECLAIMED_BY_STUDENT"
)

// NotTurnedIn reports whether the state means the student never handed
// the work in.
func (s SubmissionState) NotTurnedIn() bool {
	return s == SubmissionStateNew || s == SubmissionStateCreated
}

// CourseworkItem is one gradable assignment within a course. Items
// without a positive MaxPoints are excluded from averaging but still
// count toward the assignment total.
type CourseworkItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreationTime time.Time `json:"creation_time"`
	MaxPoints    *float64  `json:"max_points,omitempty"`
}

// Gradable reports whether the item carries a usable maximum.
func (c CourseworkItem) Gradable() bool {
	return c.MaxPoints != nil && *c.MaxPoints > 0
}

// Submission is one student's response to one coursework item. A nil
// AssignedGrade means the work was never graded; a zero grade is
// treated as equivalent to a non-submission throughout the pipeline.
type Submission struct {
	CourseworkID  string          `json:"coursework_id"`
	StudentID     string          `json:"student_id"`
	State         SubmissionState `json:"state"`
	Late          bool            `json:"late"`
	AssignedGrade *float64        `json:"assigned_grade,omitempty"`
}

// SubmissionStatus is the derived per-item display status.
type SubmissionStatus string

const (
	StatusMissing   SubmissionStatus = "Missing"
	StatusLate      SubmissionStatus = "Late"
	StatusSubmitted SubmissionStatus = "Submitted"
)

// DetailRow is one line of the per-student detailed submission table,
// ordered the same way as the coursework list.
type DetailRow struct {
	CourseworkID string           `json:"coursework_id"`
	Title        string           `json:"title"`
	Status       SubmissionStatus `json:"status"`
	Score        string           `json:"score"`
	CreationTime time.Time        `json:"creation_time"`
}
