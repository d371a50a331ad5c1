// Package security confines export and import files to one directory.
package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes export directory")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// ExportFilePerm is the mode of every file written through a PathValidator.
const ExportFilePerm = 0600

// PathValidator performs file operations confined to a base directory
// using the os.Root API.
type PathValidator struct {
	root    *os.Root
	absPath string
}

// New opens dir as the confinement root, creating it if needed.
func New(dir string) (*PathValidator, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open export directory: %w", err)
	}

	return &PathValidator{root: root, absPath: absPath}, nil
}

// Close releases the directory handle.
func (pv *PathValidator) Close() error {
	if pv.root != nil {
		return pv.root.Close()
	}
	return nil
}

// Dir returns the absolute confinement directory.
func (pv *PathValidator) Dir() string {
	return pv.absPath
}

// ValidateAndNormalize returns name as a clean slash-separated path relative
// to the base directory. Empty, absolute and escaping paths are rejected.
func (pv *PathValidator) ValidateAndNormalize(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyPath
	}

	if !filepath.IsLocal(name) {
		if filepath.IsAbs(name) {
			return "", fmt.Errorf("%w: %s", ErrAbsolutePath, name)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, name)
	}

	cleanPath := filepath.Clean(name)
	relPath, err := filepath.Rel(pv.absPath, filepath.Join(pv.absPath, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, name)
	}

	return filepath.ToSlash(relPath), nil
}

// Abs returns the absolute path of a validated name, for display.
func (pv *PathValidator) Abs(name string) (string, error) {
	rel, err := pv.ValidateAndNormalize(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(pv.absPath, filepath.FromSlash(rel)), nil
}

// Create truncates or creates name for writing with ExportFilePerm.
func (pv *PathValidator) Create(name string) (*os.File, error) {
	rel, err := pv.ValidateAndNormalize(name)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.OpenFile(filepath.FromSlash(rel), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, ExportFilePerm)
}

// Open opens name for reading.
func (pv *PathValidator) Open(name string) (*os.File, error) {
	rel, err := pv.ValidateAndNormalize(name)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Open(filepath.FromSlash(rel))
}

// WriteFile writes data to name inside the base directory.
func (pv *PathValidator) WriteFile(name string, data []byte) error {
	f, err := pv.Create(name)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads name from the base directory.
func (pv *PathValidator) ReadFile(name string) ([]byte, error) {
	f, err := pv.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Stat stats name inside the base directory.
func (pv *PathValidator) Stat(name string) (os.FileInfo, error) {
	rel, err := pv.ValidateAndNormalize(name)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Stat(filepath.FromSlash(rel))
}
