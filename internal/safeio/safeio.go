package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	// ErrOutsideRoot is returned when a path resolves outside the bound root.
	ErrOutsideRoot = errors.New("safeio: path resolves outside root")
	// ErrReadOnly is returned by write operations on a read-only SafeFS.
	ErrReadOnly = errors.New("safeio: filesystem is read-only")
)

// SafeFS confines file access to one directory tree. The generator reads the
// corpus through a read-only SafeFS and writes its destination tree through
// a writable one, so neither side can touch files it does not own.
type SafeFS struct {
	absRoot  string // absolute root with symlinks resolved
	readOnly bool
}

// NewSafeFS binds a writable SafeFS to root, which must be an existing
// directory.
func NewSafeFS(root string) (*SafeFS, error) {
	abs, err := canonicalDir(root)
	if err != nil {
		return nil, err
	}
	return &SafeFS{absRoot: abs}, nil
}

// NewReadOnly binds a SafeFS to root that rejects every write with
// ErrReadOnly.
func NewReadOnly(root string) (*SafeFS, error) {
	abs, err := canonicalDir(root)
	if err != nil {
		return nil, err
	}
	return &SafeFS{absRoot: abs, readOnly: true}, nil
}

func canonicalDir(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err == nil {
		abs, err = filepath.EvalSymlinks(abs)
	}
	if err != nil {
		return "", fmt.Errorf("safeio: root %s: %w", root, err)
	}
	if info, err := os.Stat(abs); err != nil {
		return "", err
	} else if !info.IsDir() {
		return "", fmt.Errorf("safeio: root %s is not a directory", root)
	}
	return abs, nil
}

// Root returns the canonical root directory.
func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// ReadFile reads a regular file below the root. Symlinks are followed but
// their target must stay below the root.
func (s *SafeFS) ReadFile(userPath string) ([]byte, error) {
	p, err := s.resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("safeio: %s is not a regular file", userPath)
	}
	return os.ReadFile(p)
}

// MkdirAll creates a directory (and parents) under the root. Existing
// directories are not an error.
func (s *SafeFS) MkdirAll(userPath string) error {
	p, err := s.resolveForWrite(userPath)
	if err != nil {
		return err
	}
	return os.MkdirAll(p, 0o755)
}

// WriteFile writes content to a file under the root, creating parent
// directories as needed.
func (s *SafeFS) WriteFile(userPath string, content []byte) error {
	p, err := s.resolveForWrite(userPath)
	if err != nil {
		return err
	}
	if p == s.absRoot {
		return errors.New("safeio: cannot write to root")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, content, 0o644)
}

// RemoveAll deletes a path and everything below it. The root itself can
// not be removed. A missing path is not an error.
func (s *SafeFS) RemoveAll(userPath string) error {
	p, err := s.resolveForWrite(userPath)
	if err != nil {
		return err
	}
	if p == s.absRoot {
		return errors.New("safeio: refusing to remove root")
	}
	return os.RemoveAll(p)
}

func (s *SafeFS) join(userPath string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	if userPath == "" {
		return "", errors.New("safeio: empty path")
	}
	clean := filepath.Clean(userPath)
	if filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "") {
		return clean, nil
	}
	if !filepath.IsLocal(clean) && clean != "." {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, userPath)
	}
	return filepath.Join(s.absRoot, clean), nil
}

func (s *SafeFS) resolve(userPath string) (string, error) {
	joined, err := s.join(userPath)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", err
	}
	if !within(s.absRoot, resolved) {
		return "", fmt.Errorf("%w (root=%s, path=%s)", ErrOutsideRoot, s.absRoot, resolved)
	}
	return resolved, nil
}

// resolveForWrite accepts paths that do not exist yet. The deepest existing
// ancestor is symlink-resolved and must stay under the root.
func (s *SafeFS) resolveForWrite(userPath string) (string, error) {
	if s != nil && s.readOnly {
		return "", fmt.Errorf("%w: %s", ErrReadOnly, userPath)
	}
	joined, err := s.join(userPath)
	if err != nil {
		return "", err
	}

	existing := joined
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	if !within(s.absRoot, resolved) {
		return "", fmt.Errorf("%w (root=%s, path=%s)", ErrOutsideRoot, s.absRoot, resolved)
	}
	return filepath.Join(append([]string{resolved}, rest...)...), nil
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}
