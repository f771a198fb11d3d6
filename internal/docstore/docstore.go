// Package docstore stages uploaded files until their indexing job finishes.
package docstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ragportal/internal/util"
)

// Store is a per-user staging area keyed by (user, filename). Files are
// written on upload, fetched by the indexing job and removed once the job
// reaches a terminal state.
type Store interface {
	// Save persists the upload under the user's staging namespace.
	Save(ctx context.Context, user, filename string, r io.Reader, size int64) error
	// Fetch makes the staged file available on the local filesystem and
	// returns its path plus a cleanup for any temporary copy.
	Fetch(ctx context.Context, user, filename string) (path string, cleanup func(), err error)
	// Remove deletes the staged file. Removing a missing file is not an error.
	Remove(ctx context.Context, user, filename string) error
}

// Local stages files on disk under basePath/<user-slug>/<filename>.
type Local struct {
	basePath string
}

// NewLocal creates the base directory if missing.
func NewLocal(basePath string) (*Local, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("staging base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Local{basePath: basePath}, nil
}

// Save writes an uploaded file under the user's folder.
func (l *Local) Save(ctx context.Context, user, filename string, r io.Reader, size int64) error {
	targetDir := filepath.Join(l.basePath, util.UserSlug(user))
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}
	target := filepath.Join(targetDir, SafeFilename(filename))

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Fetch returns the staged path directly; nothing temporary to clean up.
func (l *Local) Fetch(ctx context.Context, user, filename string) (string, func(), error) {
	path := filepath.Join(l.basePath, util.UserSlug(user), SafeFilename(filename))
	if _, err := os.Stat(path); err != nil {
		return "", nil, fmt.Errorf("stat staged file: %w", err)
	}
	return path, func() {}, nil
}

// Remove deletes the staged file if present.
func (l *Local) Remove(ctx context.Context, user, filename string) error {
	path := filepath.Join(l.basePath, util.UserSlug(user), SafeFilename(filename))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// SafeFilename strips any path components from an uploaded filename.
func SafeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == string(os.PathSeparator) {
		return "upload"
	}
	return name
}
