package certificate

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cvglobal/aula/internal/mail"
	"github.com/cvglobal/aula/internal/model"
)

type memStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (m *memStore) Put(_ context.Context, name string, data []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.types = map[string]string{}
	}
	m.objects[name] = data
	m.types[name] = contentType
	return nil
}

func (m *memStore) PublicURL(name string) string {
	return "https://files.test/" + name
}

type fakeNotifier struct {
	got []mail.CertificateNotice
	err error
}

func (f *fakeNotifier) NotifyCertificate(_ context.Context, n mail.CertificateNotice) error {
	f.got = append(f.got, n)
	return f.err
}

type fakeRecorder struct {
	got []model.CertificateRecord
	err error
}

func (f *fakeRecorder) RecordCertificate(_ context.Context, rec model.CertificateRecord) (model.CertificateRecord, error) {
	if f.err != nil {
		return rec, f.err
	}
	rec.ID = int64(len(f.got) + 1)
	f.got = append(f.got, rec)
	return rec, nil
}

var (
	testCourse = model.Course{ID: 3, Name: "Seguridad en altura"}
	fixedNow   = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
)

func newTestIssuer(st *memStore, n *fakeNotifier, r *fakeRecorder) *Issuer {
	i := New(st, n, r)
	i.now = func() time.Time { return fixedNow }
	return i
}

func TestFileName(t *testing.T) {
	got := FileName(3, fixedNow)
	want := "certificado_3_1773484200000.pdf"
	if got != want {
		t.Errorf("FileName = %q, want %q", got, want)
	}
}

func TestIssueSuccess(t *testing.T) {
	st, n, r := &memStore{}, &fakeNotifier{}, &fakeRecorder{}
	rec, err := newTestIssuer(st, n, r).Issue(context.Background(), "ana@example.com", testCourse, 16.5)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	name := FileName(testCourse.ID, fixedNow)
	data, ok := st.objects[name]
	if !ok {
		t.Fatalf("object %s not stored; have %v", name, st.objects)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("stored object is not a PDF")
	}
	if st.types[name] != "application/pdf" {
		t.Errorf("content type = %q", st.types[name])
	}

	wantURL := "https://files.test/" + name
	if len(n.got) != 1 || n.got[0].CertificateURL != wantURL || n.got[0].CourseName != testCourse.Name || n.got[0].Email != "ana@example.com" {
		t.Errorf("notices = %+v", n.got)
	}
	if rec.ID != 1 || rec.CertificateURL != wantURL || rec.Grade != 16.5 || !rec.CreatedAt.Equal(fixedNow) {
		t.Errorf("record = %+v", rec)
	}
}

func TestIssueFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name       string
		st         *memStore
		n          *fakeNotifier
		r          *fakeRecorder
		wantStep   string
		wantNotify int
		wantURL    bool
	}{
		{"upload", &memStore{err: boom}, &fakeNotifier{}, &fakeRecorder{}, StepUpload, 0, false},
		{"notify", &memStore{}, &fakeNotifier{err: boom}, &fakeRecorder{}, StepNotify, 1, true},
		{"record", &memStore{}, &fakeNotifier{}, &fakeRecorder{err: boom}, StepRecord, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := newTestIssuer(tt.st, tt.n, tt.r).Issue(context.Background(), "ana@example.com", testCourse, 15)
			var se *StepError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *StepError", err)
			}
			if se.FailedStep() != tt.wantStep {
				t.Errorf("step = %q, want %q", se.FailedStep(), tt.wantStep)
			}
			if !errors.Is(err, boom) {
				t.Errorf("err does not wrap cause: %v", err)
			}
			if len(tt.n.got) != tt.wantNotify {
				t.Errorf("notify calls = %d, want %d", len(tt.n.got), tt.wantNotify)
			}
			if (rec.CertificateURL != "") != tt.wantURL {
				t.Errorf("record URL = %q, want present=%v", rec.CertificateURL, tt.wantURL)
			}
		})
	}
}

func TestRenderWithAccents(t *testing.T) {
	data, err := Render(context.Background(), Document{
		Email:      "josé@example.com",
		CourseName: "Prevención de riesgos",
		Grade:      14,
		IssuedAt:   fixedNow,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) || len(data) < 500 {
		t.Errorf("unexpected output (%d bytes)", len(data))
	}
}
