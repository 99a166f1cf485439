package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend stores each document as a file in baseDir.
//
// Writes go to a temporary file in the same directory which is synced and then
// renamed over the target, so concurrent readers never see a truncated file.
type FileBackend struct {
	baseDir string
}

// NewFileBackend creates baseDir if needed and returns a backend rooted there.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	absDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return &FileBackend{baseDir: filepath.Clean(absDir)}, nil
}

func (f *FileBackend) Name() string { return "file" }

// Dir returns the absolute data directory.
func (f *FileBackend) Dir() string { return f.baseDir }

// safePath resolves name inside baseDir and rejects anything that escapes it.
func (f *FileBackend) safePath(name string) (string, error) {
	resolved := filepath.Clean(filepath.Join(f.baseDir, filepath.Clean(name)))
	if resolved == f.baseDir || !strings.HasPrefix(resolved, f.baseDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	return resolved, nil
}

func (f *FileBackend) Read(ctx context.Context, name string) ([]byte, error) {
	path, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}

func (f *FileBackend) Write(ctx context.Context, name string, data []byte) (err error) {
	path, err := f.safePath(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func (f *FileBackend) Ping(ctx context.Context) error {
	info, err := os.Stat(f.baseDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", f.baseDir)
	}
	return nil
}

func (f *FileBackend) Close() error {
	return nil
}
