package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a learner taking courses.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin manages users, courses and reports.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user. Email doubles as the login name.
type User struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// IsAdmin reports whether the user may access the admin panel.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PasswordReset is a single-use token mailed to a user.
type PasswordReset struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type sessionCtxKey struct{}

// ContextWithSessionID stores the auth session token in context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, id)
}

// SessionIDFromContext retrieves the auth session token (empty string if not set).
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionCtxKey{}).(string)
	return id
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// StepKind identifies one stage of the course wizard.
type StepKind string

const (
	StepMaterial      StepKind = "material"
	StepVideo         StepKind = "video"
	StepAttendance    StepKind = "attendance"
	StepSurvey        StepKind = "survey"
	StepExam          StepKind = "exam"
	StepEffectiveness StepKind = "effectiveness"
)

var stepOrder = [...]StepKind{
	StepMaterial,
	StepVideo,
	StepAttendance,
	StepSurvey,
	StepExam,
	StepEffectiveness,
}

// StepOrder returns the fixed wizard step sequence. The returned slice is a copy.
func StepOrder() []StepKind {
	out := make([]StepKind, len(stepOrder))
	copy(out, stepOrder[:])
	return out
}

// StepCount is the number of wizard steps.
const StepCount = len(stepOrder)

// StepAt returns the step kind at position i of the step order.
func StepAt(i int) StepKind {
	return stepOrder[i]
}

// IsForm reports whether the step embeds an external form.
func (k StepKind) IsForm() bool {
	switch k {
	case StepAttendance, StepSurvey, StepExam, StepEffectiveness:
		return true
	}
	return false
}

// TitleID is the translation message ID for the step's display title.
func (k StepKind) TitleID() string {
	switch k {
	case StepMaterial:
		return "StepMaterial"
	case StepVideo:
		return "StepVideo"
	case StepAttendance:
		return "StepAttendance"
	case StepSurvey:
		return "StepSurvey"
	case StepExam:
		return "StepExam"
	case StepEffectiveness:
		return "StepEffectiveness"
	}
	return "StepGeneric"
}

// Course is a unit of training with one content URL per wizard step.
// An empty URL means the step has no content for this course.
type Course struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	MaterialURL      string    `json:"url_material"`
	VideoURL         string    `json:"url_video"`
	AttendanceURL    string    `json:"url_attendance"`
	SurveyURL        string    `json:"url_survey"`
	ExamURL          string    `json:"url_exam"`
	EffectivenessURL string    `json:"url_effectiveness"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

// URLFor returns the content URL configured for a step.
func (c Course) URLFor(k StepKind) string {
	switch k {
	case StepMaterial:
		return c.MaterialURL
	case StepVideo:
		return c.VideoURL
	case StepAttendance:
		return c.AttendanceURL
	case StepSurvey:
		return c.SurveyURL
	case StepExam:
		return c.ExamURL
	case StepEffectiveness:
		return c.EffectivenessURL
	}
	return ""
}

// CourseImport is used for seeding courses from JSON files.
type CourseImport struct {
	Name             string `json:"name" validate:"required"`
	MaterialURL      string `json:"url_material" validate:"omitempty,url"`
	VideoURL         string `json:"url_video" validate:"omitempty,url"`
	AttendanceURL    string `json:"url_attendance" validate:"omitempty,url"`
	SurveyURL        string `json:"url_survey" validate:"omitempty,url"`
	ExamURL          string `json:"url_exam" validate:"omitempty,url"`
	EffectivenessURL string `json:"url_effectiveness" validate:"omitempty,url"`
	Active           *bool  `json:"active"`
}

// Course converts an import entry into a course; entries are active unless stated otherwise.
func (ci CourseImport) Course() Course {
	active := true
	if ci.Active != nil {
		active = *ci.Active
	}
	return Course{
		Name:             ci.Name,
		MaterialURL:      ci.MaterialURL,
		VideoURL:         ci.VideoURL,
		AttendanceURL:    ci.AttendanceURL,
		SurveyURL:        ci.SurveyURL,
		ExamURL:          ci.ExamURL,
		EffectivenessURL: ci.EffectivenessURL,
		Active:           active,
	}
}

// Attendance is an append-only record that a user opened a course.
type Attendance struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CourseID  int64     `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Grade scale and pass mark.
const (
	MinGrade     = 0.0
	MaxGrade     = 20.0
	PassingGrade = 14.0
)

// Grade is a submitted course grade. Every submission is a new row.
type Grade struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CourseID  int64     `json:"course_id"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Passed reports whether the grade meets the pass mark.
func (g Grade) Passed() bool {
	return g.Value >= PassingGrade
}

// FormCompletion records a user's claim to have completed an external form.
type FormCompletion struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CourseID  int64     `json:"course_id"`
	Step      StepKind  `json:"step"`
	FormURL   string    `json:"form_url"`
	CreatedAt time.Time `json:"created_at"`
}

// CertificateRecord is the log entry written after a certificate was mailed.
type CertificateRecord struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	CourseName     string    `json:"course_name"`
	Grade          float64   `json:"grade"`
	CertificateURL string    `json:"certificate_url"`
	CreatedAt      time.Time `json:"created_at"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath         string // URL prefix for sub-path deployments (e.g. "/aula")
	SecureCookies    bool   // Set Secure flag on cookies (disable for local dev)
	GateForms        bool   // Block "next" on Microsoft Forms steps until attested
	ResetRedirectURL string // Page the password reset link points to
	FilesDir         string // Served under /files/ when set (local object storage)
}
