package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cvglobal/aula/internal/model"
)

// GradeOutcome is the result of an accepted grade submission.
type GradeOutcome struct {
	Value  float64
	Passed bool
}

var decimalGrade = regexp.MustCompile(`^[+-]?\d+([.,]\d+)?$`)

// ParseGrade converts user input into a grade on the 0..20 scale. Only plain
// decimal notation is accepted, with either a point or a comma.
func ParseGrade(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if !decimalGrade.MatchString(raw) {
		return 0, ErrInvalidGrade
	}
	raw = strings.ReplaceAll(raw, ",", ".")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidGrade
	}
	if v < model.MinGrade || v > model.MaxGrade {
		return 0, ErrInvalidGrade
	}
	return v, nil
}

// SubmitGrade validates raw and appends a grade for the selected course.
// Grades are only taken at the last step, and validation happens before any
// backend call. A passing grade unlocks the certificate; resubmitting simply
// appends another record.
func (c *Controller) SubmitGrade(ctx context.Context, st *State, user *model.User, raw string) (GradeOutcome, error) {
	if user == nil {
		st.notify(NoticeError, "NotAuthenticated", nil)
		return GradeOutcome{}, ErrNotAuthenticated
	}
	if !st.Active() {
		st.notify(NoticeError, "SelectCourseFirst", nil)
		return GradeOutcome{}, ErrNoCourse
	}
	if st.Cursor != model.StepCount-1 {
		st.notify(NoticeError, "GradeNotAvailable", nil)
		return GradeOutcome{}, ErrGradeUnavailable
	}
	value, err := ParseGrade(raw)
	if err != nil {
		st.notify(NoticeError, "GradeInvalid", nil)
		return GradeOutcome{}, err
	}

	g := model.Grade{Email: user.Email, CourseID: st.Course.ID, Value: value}
	if err := c.backend.SubmitGrade(ctx, g); err != nil {
		slog.Error("failed to save grade", "email", user.Email, "course_id", st.Course.ID, "error", err)
		st.notify(NoticeError, "GradeSaveFailed", err)
		return GradeOutcome{}, fmt.Errorf("submit grade: %w", err)
	}

	st.grade = &value
	out := GradeOutcome{Value: value, Passed: g.Passed()}
	if out.Passed {
		st.certUnlocked = true
		st.notify(NoticeSuccess, "GradePassed", nil)
	} else {
		st.certUnlocked = false
		st.notify(NoticeInfo, "GradeRetry", nil)
	}
	slog.Info("grade submitted", "email", user.Email, "course_id", st.Course.ID, "grade", value, "passed", out.Passed)
	return out, nil
}

// IssueCertificate hands the learner's passing grade to the certificate
// issuer. Partial failures are reported as they come; nothing is rolled back.
func (c *Controller) IssueCertificate(ctx context.Context, st *State, user *model.User) (model.CertificateRecord, error) {
	if user == nil {
		st.notify(NoticeError, "NotAuthenticated", nil)
		return model.CertificateRecord{}, ErrNotAuthenticated
	}
	if !st.Active() {
		st.notify(NoticeError, "SelectCourseFirst", nil)
		return model.CertificateRecord{}, ErrNoCourse
	}
	grade, ok := st.Grade()
	if !st.certUnlocked || !ok {
		st.notify(NoticeError, "CertificateLocked", nil)
		return model.CertificateRecord{}, ErrCertificateLocked
	}

	rec, err := c.issuer.Issue(ctx, user.Email, *st.Course, grade)
	if rec.CertificateURL != "" {
		st.certURL = rec.CertificateURL
	}
	if err != nil {
		slog.Error("certificate issuance failed", "email", user.Email, "course_id", st.Course.ID, "error", err)
		st.notify(NoticeError, certificateFailureMsg(err), err)
		return rec, err
	}
	st.notify(NoticeSuccess, "CertificateIssued", nil)
	return rec, nil
}

// stepFailure is satisfied by errors that name the issuance step that failed.
type stepFailure interface {
	FailedStep() string
}

func certificateFailureMsg(err error) string {
	var sf stepFailure
	if errors.As(err, &sf) && sf.FailedStep() == "record" {
		return "CertificateNotRecorded"
	}
	return "CertificateFailed"
}
