package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cvglobal/aula/internal/model"
)

const courseColumns = `id, name, url_material, url_video, url_attendance, url_survey, url_exam,
	url_effectiveness, active, created_at`

func scanCourse(row interface{ Scan(...any) error }) (model.Course, error) {
	var c model.Course
	err := row.Scan(&c.ID, &c.Name, &c.MaterialURL, &c.VideoURL, &c.AttendanceURL, &c.SurveyURL,
		&c.ExamURL, &c.EffectivenessURL, &c.Active, &c.CreatedAt)
	return c, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCourse(ctx context.Context, db execer, c model.Course) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO courses (name, url_material, url_video, url_attendance, url_survey, url_exam,
			url_effectiveness, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.MaterialURL, c.VideoURL, c.AttendanceURL, c.SurveyURL, c.ExamURL,
		c.EffectivenessURL, c.Active, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateCourse inserts a course and returns its ID.
func (s *Store) CreateCourse(ctx context.Context, c model.Course) (int64, error) {
	return insertCourse(ctx, s.db, c)
}

// ImportCourses inserts courses and records the source hash in one
// transaction, so a failed import can be retried.
func (s *Store) ImportCourses(ctx context.Context, source, hash string, courses []model.Course) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range courses {
		if _, err := insertCourse(ctx, tx, c); err != nil {
			return fmt.Errorf("insert course %q: %w", c.Name, err)
		}
	}
	if err := setImportedFileHash(ctx, tx, source, hash); err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return tx.Commit()
}

// ListCourses returns courses ordered by name; activeOnly hides inactive ones.
func (s *Store) ListCourses(ctx context.Context, activeOnly bool) ([]model.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// GetCourse returns a course by ID, or nil if it does not exist.
func (s *Store) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	c, err := scanCourse(s.db.QueryRowContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ToggleCourseActive flips the active flag on a course.
func (s *Store) ToggleCourseActive(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE courses SET active = NOT active WHERE id = ?`, id)
	return err
}

// CourseCount returns the number of courses.
func (s *Store) CourseCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses`).Scan(&count)
	return count, err
}
