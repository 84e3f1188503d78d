package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// LocalStorage keeps every path as a file below a base directory.
type LocalStorage struct {
	base string
	mu   sync.RWMutex
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{base: abs}, nil
}

// file maps a slash separated storage path to a file below the base
// directory. Empty paths and paths that would leave it are rejected.
func (s *LocalStorage) file(p string) (string, error) {
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", fmt.Errorf("%q: %w", p, ErrInvalidPath)
	}
	return filepath.Join(s.base, filepath.FromSlash(clean)), nil
}

func (s *LocalStorage) Read(_ context.Context, p string) ([]byte, error) {
	full, err := s.file(p)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// Write replaces the file through a temporary sibling and a rename, so
// readers never observe a partial document.
func (s *LocalStorage) Write(_ context.Context, p string, data []byte) error {
	full, err := s.file(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", p, err)
	}
	_, werr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(werr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename temp file for %s: %w", p, err)
	}
	return nil
}

func (s *LocalStorage) Delete(_ context.Context, p string) error {
	full, err := s.file(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

// List returns the files directly below prefix as storage paths, sorted.
// Temporary files from in-flight writes are skipped.
func (s *LocalStorage) List(_ context.Context, prefix string) ([]string, error) {
	dir := s.base
	if prefix != "" {
		var err error
		if dir, err = s.file(prefix); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, strings.TrimPrefix(path.Join(prefix, e.Name()), "/"))
	}
	slices.Sort(paths)
	return paths, nil
}

func (s *LocalStorage) Exists(_ context.Context, p string) (bool, error) {
	full, err := s.file(p)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return true, nil
}
