package models

// StudentMetrics summarises one student's standing across a course's
// coursework. AverageSubmitted only considers graded items with a
// strictly positive grade and a positive maximum; AverageAll spreads
// earned points over every gradable item, treating missing work as
// zero. Both are percentages in [0,100] and default to 0 when no item
// qualifies.
type StudentMetrics struct {
	TotalAssignments int     `json:"total_assignments"`
	Missing          int     `json:"missing"`
	Late             int     `json:"late"`
	GradedCount      int     `json:"graded_count"`
	AverageSubmitted float64 `json:"average_submitted"`
	AverageAll       float64 `json:"average_all"`

	// AdditionalContext carries operator-supplied free text and is only
	// populated for single-student runs.
	AdditionalContext string `json:"additional_context,omitempty"`
}
