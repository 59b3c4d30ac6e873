// Package fs is the file access used by the canvas file adapter. Paths are
// relative to a vault root; writes are atomic.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// ErrOutsideVault is returned for paths that resolve outside the root.
var ErrOutsideVault = errors.New("path escapes the vault")

// FileInfo represents file metadata
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// FileSystem is an abstraction over filesystem operations
type FileSystem interface {
	// ReadFile reads the entire file
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// WriteFile replaces the file with data, creating parent directories
	WriteFile(ctx context.Context, path string, data []byte) error
	// Stat returns file information
	Stat(ctx context.Context, path string) (*FileInfo, error)
	// Exists checks if a file exists
	Exists(ctx context.Context, path string) (bool, error)
	// MkdirAll creates a directory and all parent directories
	MkdirAll(ctx context.Context, path string, perm os.FileMode) error
}

// DiskFS is a FileSystem rooted at a directory on disk.
type DiskFS struct {
	baseDir string
}

// NewDiskFS creates a filesystem rooted at baseDir.
func NewDiskFS(baseDir string) (*DiskFS, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	return &DiskFS{baseDir: abs}, nil
}

// Root returns the absolute vault root.
func (d *DiskFS) Root() string {
	return d.baseDir
}

func (d *DiskFS) absPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		path = filepath.Clean(path)
	} else {
		path = filepath.Join(d.baseDir, path)
	}
	rel, err := filepath.Rel(d.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, path)
	}
	return path, nil
}

func (d *DiskFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := d.absPath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// WriteFile writes to a temporary file next to path and renames it over
// path, so readers never observe a partial file.
func (d *DiskFS) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := d.absPath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := atomic.WriteFile(abs, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (d *DiskFS) Stat(ctx context.Context, path string) (*FileInfo, error) {
	abs, err := d.absPath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	return &FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}, nil
}

func (d *DiskFS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := d.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (d *DiskFS) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	abs, err := d.absPath(path)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, perm)
}

// MockFS is a mock filesystem for testing
type MockFS struct {
	mu      sync.RWMutex
	files   map[string][]byte
	modTime map[string]time.Time
	dirs    map[string]bool
}

func NewMockFS() *MockFS {
	return &MockFS{
		files:   make(map[string][]byte),
		modTime: make(map[string]time.Time),
		dirs:    map[string]bool{".": true},
	}
}

func (m *MockFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MockFS) WriteFile(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	m.files[path] = append([]byte(nil), data...)
	m.modTime[path] = time.Now()
	for dir := filepath.Dir(path); dir != "." && dir != "/" && dir != ""; dir = filepath.Dir(dir) {
		m.dirs[dir] = true
	}
	return nil
}

func (m *MockFS) Stat(ctx context.Context, path string) (*FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path = filepath.Clean(path)
	if m.dirs[path] {
		return &FileInfo{Path: path, IsDir: true}, nil
	}
	data, ok := m.files[path]
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}
	return &FileInfo{Path: path, Size: int64(len(data)), ModTime: m.modTime[path]}, nil
}

func (m *MockFS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := m.Stat(ctx, path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *MockFS) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for dir := filepath.Clean(path); dir != "." && dir != "/" && dir != ""; dir = filepath.Dir(dir) {
		m.dirs[dir] = true
	}
	return nil
}

// Files lists the stored file paths, sorted.
func (m *MockFS) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for path := range m.files {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

var (
	_ FileSystem = (*DiskFS)(nil)
	_ FileSystem = (*MockFS)(nil)
)
