package dto

import "github.com/noah-isme/classroom-insights/internal/models"

// CourseListResponse wraps the active course catalog.
type CourseListResponse struct {
	Courses []models.Course `json:"courses"`
}

// StudentListResponse wraps one course roster.
type StudentListResponse struct {
	CourseID string           `json:"courseId"`
	Students []models.Student `json:"students"`
}

// ModelListResponse lists the generation models offered by the
// inference endpoint.
type ModelListResponse struct {
	Models  []string `json:"models"`
	Default string   `json:"default,omitempty"`
}
