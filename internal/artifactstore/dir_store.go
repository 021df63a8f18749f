package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirStore serves archives from a local mirror directory laid out as
// <root>/<sha1>. Useful for offline builds.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("mirror dir is required")
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) Fetch(_ context.Context, key string, w io.Writer) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Put stores content under key, used to seed a mirror.
func (s *DirStore) Put(_ context.Context, key string, r io.Reader) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *DirStore) pathFor(key string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("artifact store is not configured")
	}
	name, err := objectKey("", key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}
