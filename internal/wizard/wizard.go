// Package wizard drives a learner through the fixed sequence of course steps.
//
// A Controller is stateless apart from its collaborators; each learner owns a
// State that is passed by pointer to every transition. Backend writes made
// during a transition are best effort: a failure becomes a Notice on the
// State and is logged, but never blocks or reverses the transition itself.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cvglobal/aula/internal/content"
	"github.com/cvglobal/aula/internal/model"
)

var (
	ErrNotAuthenticated  = errors.New("user not authenticated")
	ErrNoCourse          = errors.New("no course selected")
	ErrInvalidGrade      = errors.New("grade must be a number between 0 and 20")
	ErrGradeUnavailable  = errors.New("grades are submitted at the last step")
	ErrStepIncomplete    = errors.New("form must be completed before continuing")
	ErrCertificateLocked = errors.New("a passing grade is required for the certificate")
)

// Backend is the persistence surface the wizard needs.
type Backend interface {
	ListCourses(ctx context.Context, activeOnly bool) ([]model.Course, error)
	RecordAttendance(ctx context.Context, a model.Attendance) error
	SubmitGrade(ctx context.Context, g model.Grade) error
	RecordFormCompletion(ctx context.Context, fc model.FormCompletion) error
}

// CertificateIssuer produces, stores and delivers a certificate.
type CertificateIssuer interface {
	Issue(ctx context.Context, email string, course model.Course, grade float64) (model.CertificateRecord, error)
}

// Options toggles behaviour that differed between revisions of the course page.
type Options struct {
	// GateOnCompletion disables "next" on Microsoft Forms steps until the
	// learner attests that the form was submitted. Other form hosts are never
	// gated, and the attestation itself is not verified.
	GateOnCompletion bool
}

// Controller implements the wizard transitions.
type Controller struct {
	backend Backend
	issuer  CertificateIssuer
	opts    Options
}

// New creates a Controller.
func New(b Backend, issuer CertificateIssuer, opts Options) *Controller {
	return &Controller{backend: b, issuer: issuer, opts: opts}
}

// State is one learner's position in the wizard.
type State struct {
	Course *model.Course
	Cursor int

	finished     bool
	attested     map[model.StepKind]bool
	grade        *float64
	certUnlocked bool
	certURL      string
	notices      []Notice
}

// Active reports whether a course is selected.
func (st *State) Active() bool {
	return st.Course != nil
}

// Grade returns the last accepted grade for the selected course, if any.
func (st *State) Grade() (float64, bool) {
	if st.grade == nil {
		return 0, false
	}
	return *st.grade, true
}

// NoticeKind classifies a notice for display.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a message queued for the learner. MsgID is a translation key;
// Detail carries the raw backend message, if any.
type Notice struct {
	Kind   NoticeKind
	MsgID  string
	Detail string
}

func (st *State) notify(kind NoticeKind, msgID string, err error) {
	n := Notice{Kind: kind, MsgID: msgID}
	if err != nil {
		n.Detail = err.Error()
	}
	st.notices = append(st.notices, n)
}

// TakeNotices returns and clears the queued notices.
func (st *State) TakeNotices() []Notice {
	n := st.notices
	st.notices = nil
	return n
}

// Courses lists the courses a learner can pick.
func (c *Controller) Courses(ctx context.Context) ([]model.Course, error) {
	courses, err := c.backend.ListCourses(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// SelectCourse makes course the active one, rewinds to the first step and
// records attendance for user.
func (c *Controller) SelectCourse(ctx context.Context, st *State, user *model.User, course model.Course) View {
	st.Course = &course
	st.Cursor = 0
	st.finished = false
	st.attested = nil
	st.grade = nil
	st.certUnlocked = false
	st.certURL = ""

	if user != nil {
		err := c.backend.RecordAttendance(ctx, model.Attendance{Email: user.Email, CourseID: course.ID})
		if err != nil {
			slog.Warn("failed to record attendance", "email", user.Email, "course_id", course.ID, "error", err)
			st.notify(NoticeError, "AttendanceFailed", err)
		} else {
			slog.Info("attendance recorded", "email", user.Email, "course_id", course.ID)
		}
	}

	return c.Render(st)
}

// Reset discards the selected course.
func (c *Controller) Reset(st *State) {
	*st = State{notices: st.notices}
}

// Next advances one step. On the last step it reveals grade submission
// instead and leaves the cursor where it is.
func (c *Controller) Next(ctx context.Context, st *State) (View, error) {
	if !st.Active() {
		return View{}, ErrNoCourse
	}
	if c.gated(st) {
		st.notify(NoticeError, "StepIncomplete", nil)
		return c.Render(st), ErrStepIncomplete
	}
	if st.Cursor < model.StepCount-1 {
		st.Cursor++
	} else {
		st.finished = true
	}
	return c.Render(st), nil
}

// Previous goes back one step; it is a no-op on the first step.
func (c *Controller) Previous(_ context.Context, st *State) (View, error) {
	if !st.Active() {
		return View{}, ErrNoCourse
	}
	if st.Cursor > 0 {
		st.Cursor--
	}
	return c.Render(st), nil
}

// Attest records the learner's claim that the current step's form was
// submitted and lifts gating for that step.
func (c *Controller) Attest(ctx context.Context, st *State, user *model.User) error {
	if user == nil {
		return ErrNotAuthenticated
	}
	if !st.Active() {
		return ErrNoCourse
	}
	step := model.StepAt(st.Cursor)
	formURL := st.Course.URLFor(step)
	if !step.IsForm() || formURL == "" {
		return nil
	}

	if st.attested == nil {
		st.attested = make(map[model.StepKind]bool)
	}
	st.attested[step] = true

	err := c.backend.RecordFormCompletion(ctx, model.FormCompletion{
		Email:    user.Email,
		CourseID: st.Course.ID,
		Step:     step,
		FormURL:  formURL,
	})
	if err != nil {
		slog.Warn("failed to record form completion", "email", user.Email, "step", step, "error", err)
		st.notify(NoticeError, "FormCompletionFailed", err)
	}
	return nil
}

func (c *Controller) gated(st *State) bool {
	if !c.opts.GateOnCompletion {
		return false
	}
	step := model.StepAt(st.Cursor)
	if !step.IsForm() || st.attested[step] {
		return false
	}
	return content.IsMicrosoftForm(st.Course.URLFor(step))
}
