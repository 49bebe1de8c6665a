package store

import (
	"context"
	"time"

	"github.com/cvglobal/aula/internal/model"
)

// RecordAttendance appends an attendance row.
func (s *Store) RecordAttendance(ctx context.Context, a model.Attendance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance (email, course_id, created_at) VALUES (?, ?, ?)`,
		a.Email, a.CourseID, time.Now(),
	)
	return err
}

// SubmitGrade appends a grade row. Duplicates are allowed.
func (s *Store) SubmitGrade(ctx context.Context, g model.Grade) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO grades (email, course_id, value, created_at) VALUES (?, ?, ?, ?)`,
		g.Email, g.CourseID, g.Value, time.Now(),
	)
	return err
}

// RecordFormCompletion appends a form completion attestation.
func (s *Store) RecordFormCompletion(ctx context.Context, fc model.FormCompletion) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO form_completions (email, course_id, step, form_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		fc.Email, fc.CourseID, fc.Step, fc.FormURL, time.Now(),
	)
	return err
}

// RecordCertificate stores a delivered certificate and returns the row with
// its ID and timestamp filled in.
func (s *Store) RecordCertificate(ctx context.Context, rec model.CertificateRecord) (model.CertificateRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO certificates (email, course_name, grade, certificate_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Email, rec.CourseName, rec.Grade, rec.CertificateURL, rec.CreatedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.ID, err = res.LastInsertId()
	return rec, err
}

// ListGrades returns all grades for an email, newest first.
func (s *Store) ListGrades(ctx context.Context, email string) ([]model.Grade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, course_id, value, created_at FROM grades WHERE email = ? ORDER BY created_at DESC, id DESC`,
		email,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grades []model.Grade
	for rows.Next() {
		var g model.Grade
		if err := rows.Scan(&g.ID, &g.Email, &g.CourseID, &g.Value, &g.CreatedAt); err != nil {
			return nil, err
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}

// ListCertificates returns delivered certificates, newest first.
func (s *Store) ListCertificates(ctx context.Context) ([]model.CertificateRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, course_name, grade, certificate_url, created_at FROM certificates ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []model.CertificateRecord
	for rows.Next() {
		var r model.CertificateRecord
		if err := rows.Scan(&r.ID, &r.Email, &r.CourseName, &r.Grade, &r.CertificateURL, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
