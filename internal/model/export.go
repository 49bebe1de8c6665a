package model

import "time"

// ReportExport is the top-level JSON structure for the grade report export.
type ReportExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	PassingMark float64         `json:"passing_mark"`
	Grades      []GradeRow      `json:"grades"`
	Attendance  []AttendanceRow `json:"attendance"`
}

// GradeRow is a grade joined with its course name for reporting.
type GradeRow struct {
	Email      string    `json:"email"`
	CourseName string    `json:"course_name"`
	Value      float64   `json:"grade"`
	Approved   bool      `json:"approved"`
	At         time.Time `json:"at"`
}

// AttendanceRow is an attendance record joined with its course name.
type AttendanceRow struct {
	Email      string    `json:"email"`
	CourseName string    `json:"course_name"`
	At         time.Time `json:"at"`
}
