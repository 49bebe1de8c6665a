package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/cvglobal/aula/internal/model"
)

type fakeBackend struct {
	courses     []model.Course
	attendance  []model.Attendance
	grades      []model.Grade
	completions []model.FormCompletion

	attendanceErr error
	gradeErr      error
	completionErr error
}

func (f *fakeBackend) ListCourses(_ context.Context, _ bool) ([]model.Course, error) {
	return f.courses, nil
}

func (f *fakeBackend) RecordAttendance(_ context.Context, a model.Attendance) error {
	if f.attendanceErr != nil {
		return f.attendanceErr
	}
	f.attendance = append(f.attendance, a)
	return nil
}

func (f *fakeBackend) SubmitGrade(_ context.Context, g model.Grade) error {
	if f.gradeErr != nil {
		return f.gradeErr
	}
	f.grades = append(f.grades, g)
	return nil
}

func (f *fakeBackend) RecordFormCompletion(_ context.Context, fc model.FormCompletion) error {
	if f.completionErr != nil {
		return f.completionErr
	}
	f.completions = append(f.completions, fc)
	return nil
}

type fakeIssuer struct {
	calls int
	grade float64
	err   error
}

func (f *fakeIssuer) Issue(_ context.Context, email string, course model.Course, grade float64) (model.CertificateRecord, error) {
	f.calls++
	f.grade = grade
	if f.err != nil {
		return model.CertificateRecord{}, f.err
	}
	return model.CertificateRecord{Email: email, CourseName: course.Name, Grade: grade, CertificateURL: "https://files.test/c.pdf"}, nil
}

var testUser = &model.User{ID: 7, Email: "ana@example.com", Role: model.UserRoleStudent, Active: true}

func fullCourse() model.Course {
	return model.Course{
		ID:               3,
		Name:             "Safety 101",
		MaterialURL:      "https://1drv.ms/b/abc",
		VideoURL:         "https://youtube.com/watch?v=XYZ",
		AttendanceURL:    "https://forms.office.com/r/att",
		SurveyURL:        "https://docs.google.com/forms/d/e/survey/viewform",
		ExamURL:          "https://forms.office.com/r/exam",
		EffectivenessURL: "https://forms.office.com/r/eff",
		Active:           true,
	}
}

func newTestController(opts Options) (*Controller, *fakeBackend, *fakeIssuer) {
	b := &fakeBackend{}
	iss := &fakeIssuer{}
	return New(b, iss, opts), b, iss
}

func TestSelectCourseResetsCursor(t *testing.T) {
	c, b, _ := newTestController(Options{})
	ctx := context.Background()

	for start := 0; start < model.StepCount; start++ {
		st := &State{}
		c.SelectCourse(ctx, st, testUser, fullCourse())
		st.Cursor = start

		v := c.SelectCourse(ctx, st, testUser, fullCourse())
		if st.Cursor != 0 {
			t.Errorf("from cursor %d: cursor = %d after select, want 0", start, st.Cursor)
		}
		if v.Step != model.StepMaterial {
			t.Errorf("from cursor %d: step = %q, want material", start, v.Step)
		}
	}
	if len(b.attendance) != 2*model.StepCount {
		t.Errorf("attendance records = %d, want %d", len(b.attendance), 2*model.StepCount)
	}
	if got := b.attendance[0]; got.Email != testUser.Email || got.CourseID != 3 {
		t.Errorf("attendance = %+v", got)
	}
}

func TestSelectCourseAttendanceFailureDoesNotBlock(t *testing.T) {
	c, b, _ := newTestController(Options{})
	b.attendanceErr = errors.New("insert failed: permission denied")
	st := &State{}

	v := c.SelectCourse(context.Background(), st, testUser, fullCourse())
	if !st.Active() || st.Cursor != 0 {
		t.Fatalf("state not updated: active=%v cursor=%d", st.Active(), st.Cursor)
	}
	if v.Step != model.StepMaterial {
		t.Errorf("step = %q, want material", v.Step)
	}
	notices := st.TakeNotices()
	if len(notices) != 1 || notices[0].MsgID != "AttendanceFailed" || notices[0].Detail != "insert failed: permission denied" {
		t.Errorf("notices = %+v", notices)
	}
	if len(st.TakeNotices()) != 0 {
		t.Error("TakeNotices should clear the queue")
	}
}

func TestNextAndPrevious(t *testing.T) {
	c, _, _ := newTestController(Options{})
	ctx := context.Background()

	for cur := 0; cur < model.StepCount; cur++ {
		st := &State{}
		c.SelectCourse(ctx, st, testUser, fullCourse())
		st.Cursor = cur

		if _, err := c.Previous(ctx, st); err != nil {
			t.Fatalf("Previous: %v", err)
		}
		wantPrev := cur - 1
		if cur == 0 {
			wantPrev = 0
		}
		if st.Cursor != wantPrev {
			t.Errorf("Previous from %d: cursor = %d, want %d", cur, st.Cursor, wantPrev)
		}

		st.Cursor = cur
		v, err := c.Next(ctx, st)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		last := model.StepCount - 1
		if cur == last {
			if st.Cursor != last {
				t.Errorf("Next at last step moved cursor to %d", st.Cursor)
			}
			if !v.ShowGrade || !v.Finished {
				t.Errorf("Next at last step should reveal grade: %+v", v)
			}
		} else if st.Cursor != cur+1 {
			t.Errorf("Next from %d: cursor = %d, want %d", cur, st.Cursor, cur+1)
		}
	}
}

func TestNextAtLastStepIsIdempotent(t *testing.T) {
	c, _, _ := newTestController(Options{})
	ctx := context.Background()
	st := &State{}
	c.SelectCourse(ctx, st, testUser, fullCourse())
	st.Cursor = model.StepCount - 1

	for i := 0; i < 3; i++ {
		v, err := c.Next(ctx, st)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if st.Cursor != model.StepCount-1 || !v.ShowGrade {
			t.Fatalf("call %d: cursor=%d showGrade=%v", i, st.Cursor, v.ShowGrade)
		}
	}
}

func TestGradeHiddenAfterLeavingLastStep(t *testing.T) {
	c, _, _ := newTestController(Options{})
	ctx := context.Background()
	st := &State{}
	c.SelectCourse(ctx, st, testUser, fullCourse())
	st.Cursor = model.StepCount - 1

	if v, err := c.Next(ctx, st); err != nil || !v.ShowGrade {
		t.Fatalf("Next at last step: showGrade=%v err=%v", v.ShowGrade, err)
	}
	v, err := c.Previous(ctx, st)
	if err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if st.Cursor != model.StepCount-2 {
		t.Fatalf("cursor = %d, want %d", st.Cursor, model.StepCount-2)
	}
	if v.ShowGrade {
		t.Error("grade form shown before the last step")
	}
	if !v.Finished {
		t.Error("finished flag lost when going back")
	}

	v, _ = c.Next(ctx, st)
	if !v.ShowGrade {
		t.Error("grade form hidden on returning to the last step")
	}
}

func TestTransitionsWithoutCourse(t *testing.T) {
	c, _, _ := newTestController(Options{})
	st := &State{}
	if _, err := c.Next(context.Background(), st); !errors.Is(err, ErrNoCourse) {
		t.Errorf("Next err = %v, want ErrNoCourse", err)
	}
	if _, err := c.Previous(context.Background(), st); !errors.Is(err, ErrNoCourse) {
		t.Errorf("Previous err = %v, want ErrNoCourse", err)
	}
}

func TestRenderNavigation(t *testing.T) {
	c, _, _ := newTestController(Options{})
	st := &State{}
	c.SelectCourse(context.Background(), st, testUser, fullCourse())

	for cur := 0; cur < model.StepCount; cur++ {
		st.Cursor = cur
		v := c.Render(st)
		if v.Nav.PrevDisabled != (cur == 0) {
			t.Errorf("cursor %d: PrevDisabled = %v", cur, v.Nav.PrevDisabled)
		}
		if v.Nav.NextDisabled {
			t.Errorf("cursor %d: NextDisabled without gating", cur)
		}
		if v.Nav.IsLast != (cur == model.StepCount-1) {
			t.Errorf("cursor %d: IsLast = %v", cur, v.Nav.IsLast)
		}
		if v.ShowGrade != (cur == model.StepCount-1) {
			t.Errorf("cursor %d: ShowGrade = %v", cur, v.ShowGrade)
		}
		if v.Number() != cur+1 || v.Total != model.StepCount {
			t.Errorf("cursor %d: position %d of %d", cur, v.Number(), v.Total)
		}
	}
}

func TestRenderContent(t *testing.T) {
	c, _, _ := newTestController(Options{})
	st := &State{}
	c.SelectCourse(context.Background(), st, testUser, fullCourse())

	tests := []struct {
		cursor  int
		kind    ContentKind
		url     string
		warning bool
	}{
		{0, ContentDocument, "https://view.officeapps.live.com/op/embed.aspx?src=https%3A%2F%2F1drv.ms%2Fb%2Fabc", false},
		{1, ContentVideoEmbed, "https://youtube.com/embed/XYZ", false},
		{2, ContentForm, "https://forms.office.com/r/att", true},
		{3, ContentForm, "https://docs.google.com/forms/d/e/survey/viewform", true},
	}
	for _, tt := range tests {
		st.Cursor = tt.cursor
		v := c.Render(st)
		if v.Content.Kind != tt.kind {
			t.Errorf("cursor %d: kind = %q, want %q", tt.cursor, v.Content.Kind, tt.kind)
		}
		if v.Content.URL != tt.url {
			t.Errorf("cursor %d: url = %q, want %q", tt.cursor, v.Content.URL, tt.url)
		}
		if v.Content.Warning != tt.warning {
			t.Errorf("cursor %d: warning = %v", tt.cursor, v.Content.Warning)
		}
	}
}

func TestRenderEmptyVideoShowsPlaceholder(t *testing.T) {
	c, _, _ := newTestController(Options{})
	course := fullCourse()
	course.VideoURL = ""
	st := &State{}
	c.SelectCourse(context.Background(), st, testUser, course)
	st.Cursor = 1

	v := c.Render(st)
	if v.Content.Kind != ContentUnavailable {
		t.Errorf("kind = %q, want unavailable", v.Content.Kind)
	}
	if v.TitleID != "StepVideo" {
		t.Errorf("title = %q, want StepVideo", v.TitleID)
	}
}

func TestRenderVideoFile(t *testing.T) {
	c, _, _ := newTestController(Options{})
	course := fullCourse()
	course.VideoURL = "https://cdn.example.com/intro.mp4"
	st := &State{}
	c.SelectCourse(context.Background(), st, testUser, course)
	st.Cursor = 1

	v := c.Render(st)
	if v.Content.Kind != ContentVideoFile || v.Content.URL != course.VideoURL {
		t.Errorf("content = %+v", v.Content)
	}
}

func TestFormGating(t *testing.T) {
	c, b, _ := newTestController(Options{GateOnCompletion: true})
	ctx := context.Background()
	st := &State{}
	c.SelectCourse(ctx, st, testUser, fullCourse())
	st.Cursor = 2 // attendance, a Microsoft form

	v := c.Render(st)
	if !v.Nav.NextDisabled || !v.NeedsAttestation {
		t.Fatalf("expected gated step: %+v", v.Nav)
	}
	if _, err := c.Next(ctx, st); !errors.Is(err, ErrStepIncomplete) {
		t.Fatalf("Next err = %v, want ErrStepIncomplete", err)
	}
	if st.Cursor != 2 {
		t.Fatalf("cursor moved to %d while gated", st.Cursor)
	}

	if err := c.Attest(ctx, st, testUser); err != nil {
		t.Fatalf("Attest: %v", err)
	}
	if len(b.completions) != 1 || b.completions[0].Step != model.StepAttendance {
		t.Fatalf("completions = %+v", b.completions)
	}
	if _, err := c.Next(ctx, st); err != nil {
		t.Fatalf("Next after attest: %v", err)
	}
	if st.Cursor != 3 {
		t.Fatalf("cursor = %d, want 3", st.Cursor)
	}

	// Survey is not a Microsoft form and is never gated.
	if v := c.Render(st); v.Nav.NextDisabled {
		t.Error("non-Microsoft form should not be gated")
	}
}

func TestAttestFailureStillUnlocks(t *testing.T) {
	c, b, _ := newTestController(Options{GateOnCompletion: true})
	b.completionErr = errors.New("db down")
	ctx := context.Background()
	st := &State{}
	c.SelectCourse(ctx, st, testUser, fullCourse())
	st.Cursor = 4

	if err := c.Attest(ctx, st, testUser); err != nil {
		t.Fatalf("Attest: %v", err)
	}
	if v := c.Render(st); v.Nav.NextDisabled {
		t.Error("step should be unlocked after attestation")
	}
	if n := st.TakeNotices(); len(n) != 1 || n[0].MsgID != "FormCompletionFailed" {
		t.Errorf("notices = %+v", n)
	}
}

func TestGatingDisabledByDefault(t *testing.T) {
	c, _, _ := newTestController(Options{})
	st := &State{}
	c.SelectCourse(context.Background(), st, testUser, fullCourse())
	st.Cursor = 2
	if _, err := c.Next(context.Background(), st); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if st.Cursor != 3 {
		t.Errorf("cursor = %d, want 3", st.Cursor)
	}
}

func TestResetDiscardsSelection(t *testing.T) {
	c, _, _ := newTestController(Options{})
	st := &State{}
	c.SelectCourse(context.Background(), st, testUser, fullCourse())
	st.Cursor = 4
	c.Reset(st)
	if st.Active() || st.Cursor != 0 {
		t.Errorf("state after reset: active=%v cursor=%d", st.Active(), st.Cursor)
	}
}
