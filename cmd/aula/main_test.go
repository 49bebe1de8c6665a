package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/cvglobal/aula/internal/model"
	"github.com/cvglobal/aula/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNormalizeBasePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"/", ""},
		{"aula", "/aula"},
		{"/aula/", "/aula"},
		{" /cursos ", "/cursos"},
	}
	for _, tt := range tests {
		if got := normalizeBasePath(tt.in); got != tt.want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := seedAdmin(ctx, s, "admin@test", ""); err == nil {
		t.Fatal("expected error without password")
	}
	if err := seedAdmin(ctx, s, "admin@test", "s3cret"); err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
	u, err := s.GetUserByEmail(ctx, "admin@test")
	if err != nil || u == nil {
		t.Fatalf("GetUserByEmail = %v, %v", u, err)
	}
	if !u.IsAdmin() || !u.Active {
		t.Errorf("seeded user = %+v", u)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret")) != nil {
		t.Error("password hash does not match")
	}

	// A second run is a no-op once any user exists.
	if err := seedAdmin(ctx, s, "other@test", ""); err != nil {
		t.Fatalf("second seedAdmin: %v", err)
	}
	if n, _ := s.UserCount(ctx); n != 1 {
		t.Errorf("UserCount = %d, want 1", n)
	}
}

func TestLoadCourses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	v := validator.New(validator.WithRequiredStructEnabled())

	path := filepath.Join(t.TempDir(), "courses.json")
	data := `[{"name":"Safety 101","url_material":"https://example.com/m.pdf","url_video":"https://youtu.be/xyz"},
	          {"name":"Archived","active":false}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := loadCourses(ctx, s, v, []string{path}); err != nil {
		t.Fatalf("loadCourses: %v", err)
	}
	if n, _ := s.CourseCount(ctx); n != 2 {
		t.Fatalf("CourseCount = %d, want 2", n)
	}

	// Re-running with the same file, or a changed one, imports nothing.
	if err := loadCourses(ctx, s, v, []string{path}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := os.WriteFile(path, []byte(`[{"name":"New"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := loadCourses(ctx, s, v, []string{path}); err != nil {
		t.Fatalf("changed file: %v", err)
	}
	if n, _ := s.CourseCount(ctx); n != 2 {
		t.Errorf("CourseCount = %d, want 2", n)
	}

	if err := loadCourses(ctx, s, v, []string{filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCreateUserDefaultsName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := createUser(ctx, s, "ana@test", "", "12345678", model.UserRoleStudent); err != nil {
		t.Fatalf("createUser: %v", err)
	}
	u, _ := s.GetUserByEmail(ctx, "ana@test")
	if u == nil || u.DisplayName != "ana@test" || u.Role != model.UserRoleStudent {
		t.Errorf("user = %+v", u)
	}
	if _, err := createUser(ctx, s, "ana@test", "Ana", "12345678", model.UserRoleStudent); err == nil {
		t.Error("expected duplicate email error")
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	report := model.ReportExport{}
	if err := writeReport(&buf, report); err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
}
