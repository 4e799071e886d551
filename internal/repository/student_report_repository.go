package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/classroom-insights/internal/models"
)

// StudentReportRepository persists the per-student output records of
// an analysis run.
type StudentReportRepository struct {
	db *sqlx.DB
}

// NewStudentReportRepository constructs the repository.
func NewStudentReportRepository(db *sqlx.DB) *StudentReportRepository {
	return &StudentReportRepository{db: db}
}

// SaveAll stores every report of a run in one transaction. Replays of
// the same (run, course, student) triple overwrite the previous row.
func (r *StudentReportRepository) SaveAll(ctx context.Context, reports []models.StudentReport) error {
	if len(reports) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save reports: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO student_reports (run_id, course_id, student_id, full_name, category, report, metrics, details)
VALUES (:run_id, :course_id, :student_id, :full_name, :category, :report, :metrics, :details)
ON CONFLICT (run_id, course_id, student_id) DO UPDATE
SET full_name = EXCLUDED.full_name, category = EXCLUDED.category, report = EXCLUDED.report, metrics = EXCLUDED.metrics, details = EXCLUDED.details`

	for _, report := range reports {
		if _, err := tx.NamedExecContext(ctx, query, report); err != nil {
			return fmt.Errorf("save student report %s/%s: %w", report.CourseID, report.StudentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save reports: %w", err)
	}
	return nil
}

// ListByRun returns every report of a run, grouped by course and kept
// in insertion order within a course.
func (r *StudentReportRepository) ListByRun(ctx context.Context, runID string) ([]models.StudentReport, error) {
	const query = `SELECT run_id, course_id, student_id, full_name, category, report, metrics, details
FROM student_reports WHERE run_id = $1 ORDER BY course_id, student_id`
	var reports []models.StudentReport
	if err := r.db.SelectContext(ctx, &reports, query, runID); err != nil {
		return nil, fmt.Errorf("list reports for run: %w", err)
	}
	return reports, nil
}

// ListByCourse returns the reports of one course within a run.
func (r *StudentReportRepository) ListByCourse(ctx context.Context, runID, courseID string) ([]models.StudentReport, error) {
	const query = `SELECT run_id, course_id, student_id, full_name, category, report, metrics, details
FROM student_reports WHERE run_id = $1 AND course_id = $2 ORDER BY student_id`
	var reports []models.StudentReport
	if err := r.db.SelectContext(ctx, &reports, query, runID, courseID); err != nil {
		return nil, fmt.Errorf("list reports for course: %w", err)
	}
	return reports, nil
}

// DeleteByRun removes every stored report of a run.
func (r *StudentReportRepository) DeleteByRun(ctx context.Context, runID string) error {
	const query = `DELETE FROM student_reports WHERE run_id = $1`
	if _, err := r.db.ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("delete reports for run: %w", err)
	}
	return nil
}
