package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/cvglobal/aula/internal/catalog"
	"github.com/cvglobal/aula/internal/model"
	"github.com/cvglobal/aula/internal/store"
)

// loadCourses imports each seed file once. A file whose content changed
// after import is skipped.
func loadCourses(ctx context.Context, db *store.Store, v *validator.Validate, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		n, err := catalog.Import(ctx, db, v, path, data)
		switch {
		case errors.Is(err, catalog.ErrAlreadyImported):
			slog.Info("courses file unchanged, skipping", "path", path)
		case errors.Is(err, catalog.ErrChanged):
			slog.Warn("courses file changed since last import, skipping", "path", path)
		case err != nil:
			return err
		default:
			slog.Info("imported courses", "path", path, "count", n)
		}
	}
	return nil
}

func createUser(ctx context.Context, db *store.Store, email, name, password string, role model.UserRole) (int64, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return 0, errors.New("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	if name == "" {
		name = email
	}
	id, err := db.CreateUser(ctx, model.User{
		Email:        email,
		DisplayName:  name,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", email, err)
	}
	return id, nil
}

func seedAdmin(ctx context.Context, db *store.Store, email, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or AULA_ADMIN_PASSWORD env var")
	}
	if _, err := createUser(ctx, db, email, "Administrator", password, model.UserRoleAdmin); err != nil {
		return err
	}

	slog.Info("seeded default admin user", "email", email)
	return nil
}

func writeReport(w io.Writer, report model.ReportExport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}
