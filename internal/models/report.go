package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DetailRows is a JSONB-persisted list of detail rows.
type DetailRows []DetailRow

// Value marshals the rows to JSON for persistence.
func (d DetailRows) Value() (driver.Value, error) {
	if d == nil {
		d = DetailRows{}
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal detail rows: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the row list.
func (d *DetailRows) Scan(value interface{}) error {
	return scanJSON(value, d, "DetailRows")
}

// Value marshals metrics to JSON for persistence.
func (m StudentMetrics) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal student metrics: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the metrics struct.
func (m *StudentMetrics) Scan(value interface{}) error {
	return scanJSON(value, m, "StudentMetrics")
}

func scanJSON(value, dest interface{}, name string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, name)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

// StudentReport is the unified per-student output record: metrics,
// detail rows, and the resolved classification.
type StudentReport struct {
	RunID     string         `db:"run_id" json:"run_id"`
	CourseID  string         `db:"course_id" json:"course_id"`
	StudentID string         `db:"student_id" json:"student_id"`
	FullName  string         `db:"full_name" json:"full_name"`
	Category  Category       `db:"category" json:"category"`
	Report    string         `db:"report" json:"report"`
	Metrics   StudentMetrics `db:"metrics" json:"metrics"`
	Details   DetailRows     `db:"details" json:"details"`
}

// CategoryGroup buckets student display names under their resolved
// category. Names appear in processing order.
type CategoryGroup struct {
	Category Category `json:"category"`
	Students []string `json:"students"`
}
