package models

// Course represents one class pulled from the classroom service.
type Course struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Section string `json:"section,omitempty"`
	State   string `json:"state,omitempty"`
}

// Student represents a learner enrolled in a course.
type Student struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
}

// DisplayName returns the student's name, falling back to the ID when
// the roster entry carries no usable profile name.
func (s Student) DisplayName() string {
	if s.FullName != "" {
		return s.FullName
	}
	return s.ID
}
