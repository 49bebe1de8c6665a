// Package certificate renders completion certificates, publishes them and
// notifies the learner.
package certificate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cvglobal/aula/internal/mail"
	"github.com/cvglobal/aula/internal/model"
	"github.com/cvglobal/aula/internal/storage"
)

// Issuance steps, in order.
const (
	StepRender = "render"
	StepUpload = "upload"
	StepNotify = "notify"
	StepRecord = "record"
)

// StepError reports which issuance step failed. Earlier steps are not
// undone: an upload that succeeded stays published.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("certificate %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep names the step that failed.
func (e *StepError) FailedStep() string { return e.Step }

// Notifier delivers the certificate link to the learner.
type Notifier interface {
	NotifyCertificate(ctx context.Context, n mail.CertificateNotice) error
}

// Recorder persists the issued certificate.
type Recorder interface {
	RecordCertificate(ctx context.Context, rec model.CertificateRecord) (model.CertificateRecord, error)
}

// Issuer runs render, upload, notify and record in sequence.
type Issuer struct {
	store    storage.ObjectStore
	notifier Notifier
	records  Recorder
	now      func() time.Time
}

// New creates an Issuer.
func New(store storage.ObjectStore, notifier Notifier, records Recorder) *Issuer {
	return &Issuer{store: store, notifier: notifier, records: records, now: time.Now}
}

// FileName is the object name for a certificate issued at t.
func FileName(courseID int64, t time.Time) string {
	return fmt.Sprintf("certificado_%d_%d.pdf", courseID, t.UnixMilli())
}

// Issue produces the certificate for email and course. On a failure after
// upload the returned record still carries the public URL.
func (i *Issuer) Issue(ctx context.Context, email string, course model.Course, grade float64) (model.CertificateRecord, error) {
	issuedAt := i.now()
	rec := model.CertificateRecord{
		Email:      email,
		CourseName: course.Name,
		Grade:      grade,
		CreatedAt:  issuedAt,
	}

	data, err := Render(ctx, Document{Email: email, CourseName: course.Name, Grade: grade, IssuedAt: issuedAt})
	if err != nil {
		return rec, &StepError{Step: StepRender, Err: err}
	}

	name := FileName(course.ID, issuedAt)
	if err := i.store.Put(ctx, name, data, "application/pdf"); err != nil {
		return rec, &StepError{Step: StepUpload, Err: err}
	}
	rec.CertificateURL = i.store.PublicURL(name)
	slog.Info("certificate uploaded", "email", email, "course_id", course.ID, "url", rec.CertificateURL)

	err = i.notifier.NotifyCertificate(ctx, mail.CertificateNotice{
		Email:          email,
		CourseName:     course.Name,
		CertificateURL: rec.CertificateURL,
	})
	if err != nil {
		return rec, &StepError{Step: StepNotify, Err: err}
	}

	saved, err := i.records.RecordCertificate(ctx, rec)
	if err != nil {
		return rec, &StepError{Step: StepRecord, Err: err}
	}
	return saved, nil
}
