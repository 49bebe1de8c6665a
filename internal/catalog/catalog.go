// Package catalog imports course definitions from JSON files.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/cvglobal/aula/internal/model"
)

var (
	// ErrAlreadyImported means the same content was imported under this source before.
	ErrAlreadyImported = errors.New("catalog: already imported")
	// ErrChanged means the source was imported before with different content.
	ErrChanged = errors.New("catalog: source changed since last import")
)

// Store is the persistence needed to import courses.
type Store interface {
	GetImportedFileHash(ctx context.Context, source string) (string, error)
	ImportCourses(ctx context.Context, source, hash string, courses []model.Course) error
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Decode parses a JSON array of courses and validates every entry.
func Decode(v *validator.Validate, data []byte) ([]model.Course, error) {
	var entries []model.CourseImport
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse courses: %w", err)
	}
	courses := make([]model.Course, 0, len(entries))
	for i, e := range entries {
		if err := v.Struct(e); err != nil {
			return nil, fmt.Errorf("course %d (%q): %w", i+1, e.Name, err)
		}
		courses = append(courses, e.Course())
	}
	return courses, nil
}

// Import decodes data and stores its courses once per source. Re-importing
// identical content returns ErrAlreadyImported; different content under a
// known source returns ErrChanged and imports nothing.
func Import(ctx context.Context, s Store, v *validator.Validate, source string, data []byte) (int, error) {
	hash := Hash(data)
	stored, err := s.GetImportedFileHash(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("check import status for %s: %w", source, err)
	}
	switch {
	case stored == hash:
		return 0, ErrAlreadyImported
	case stored != "":
		return 0, ErrChanged
	}

	courses, err := Decode(v, data)
	if err != nil {
		return 0, err
	}
	if err := s.ImportCourses(ctx, source, hash, courses); err != nil {
		return 0, fmt.Errorf("import %s: %w", source, err)
	}
	return len(courses), nil
}
