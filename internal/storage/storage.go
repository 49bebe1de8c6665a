// Package storage publishes generated files at a public URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore writes a named object and reports where it can be downloaded.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	PublicURL(name string) string
}

var ErrInvalidName = errors.New("storage: invalid object name")

// ValidName reports whether name is a plain file name.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

func publicURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(name)
}

// Local stores objects in a directory served by the application itself.
type Local struct {
	Dir     string
	BaseURL string
}

var _ ObjectStore = (*Local)(nil)

// NewLocal creates dir if needed.
func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &Local{Dir: dir, BaseURL: baseURL}, nil
}

// Put writes data to a temporary file and renames it into place.
func (l *Local) Put(ctx context.Context, name string, data []byte, _ string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.Dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("storage: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("storage: chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.Dir, name)); err != nil {
		return fmt.Errorf("storage: rename %s: %w", name, err)
	}
	return nil
}

func (l *Local) PublicURL(name string) string {
	return publicURL(l.BaseURL, name)
}
