package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cvglobal/aula/internal/model"
)

// ListGradeRows returns every grade joined with its course, newest first.
// Grades whose course was deleted carry an empty course name.
func (s *Store) ListGradeRows(ctx context.Context) ([]model.GradeRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.email, COALESCE(c.name, ''), g.value, g.created_at
		 FROM grades g LEFT JOIN courses c ON c.id = g.course_id
		 ORDER BY g.created_at DESC, g.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.GradeRow
	for rows.Next() {
		var r model.GradeRow
		if err := rows.Scan(&r.Email, &r.CourseName, &r.Value, &r.At); err != nil {
			return nil, err
		}
		r.Approved = r.Value >= model.PassingGrade
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListAttendanceRows returns every attendance record joined with its course, newest first.
func (s *Store) ListAttendanceRows(ctx context.Context) ([]model.AttendanceRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.email, COALESCE(c.name, ''), a.created_at
		 FROM attendance a LEFT JOIN courses c ON c.id = a.course_id
		 ORDER BY a.created_at DESC, a.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttendanceRow
	for rows.Next() {
		var r model.AttendanceRow
		if err := rows.Scan(&r.Email, &r.CourseName, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Report builds the grade and attendance report.
func (s *Store) Report(ctx context.Context) (model.ReportExport, error) {
	grades, err := s.ListGradeRows(ctx)
	if err != nil {
		return model.ReportExport{}, fmt.Errorf("list grades: %w", err)
	}
	attendance, err := s.ListAttendanceRows(ctx)
	if err != nil {
		return model.ReportExport{}, fmt.Errorf("list attendance: %w", err)
	}
	return model.ReportExport{
		GeneratedAt: time.Now().UTC(),
		PassingMark: model.PassingGrade,
		Grades:      grades,
		Attendance:  attendance,
	}, nil
}
