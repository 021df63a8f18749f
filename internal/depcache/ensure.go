package depcache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrChecksumMismatch is returned when fetched content does not hash to the
// manifest checksum.
var ErrChecksumMismatch = errors.New("depcache: checksum mismatch")

// Fetcher retrieves the object stored under a content checksum.
type Fetcher interface {
	Fetch(ctx context.Context, key string, w io.Writer) error
}

// Status reports what Ensure did.
type Status int

const (
	StatusFresh Status = iota
	StatusFetched
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusFetched:
		return "fetched"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

const archiveMode = 0o644

// Ensurer keeps cached artifacts current with their manifests.
type Ensurer struct {
	store     Fetcher
	manifests *manifestCache
	log       *slog.Logger
	now       func() time.Time
}

// NewEnsurer returns an Ensurer fetching from store.
func NewEnsurer(store Fetcher, logger *slog.Logger) (*Ensurer, error) {
	if store == nil {
		return nil, errors.New("depcache: store is nil")
	}
	mc, err := newManifestCache(64)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ensurer{
		store:     store,
		manifests: mc,
		log:       logger.With("component", "depcache"),
		now:       time.Now,
	}, nil
}

// Ensure fetches a when it is missing or older than its manifest. A fresh
// artifact is left untouched.
func (e *Ensurer) Ensure(ctx context.Context, a Artifact) (Status, error) {
	if err := a.Validate(); err != nil {
		return StatusFresh, err
	}
	fresh, err := IsFresh(a)
	if err != nil {
		return StatusFresh, err
	}
	if fresh {
		e.log.Info("artifact present", "artifact", a.Name, "archive", a.Archive)
		return StatusFresh, nil
	}

	sum, err := e.manifests.read(a.Manifest)
	if err != nil {
		return StatusFresh, fmt.Errorf("depcache: %s: %w", a.Name, err)
	}
	e.log.Info("fetching artifact", "artifact", a.Name, "sha1", sum, "archive", a.Archive)
	if err := e.install(ctx, a, sum); err != nil {
		return StatusFresh, fmt.Errorf("depcache: %s: %w", a.Name, err)
	}
	if err := e.touch(a); err != nil {
		return StatusFresh, fmt.Errorf("depcache: %s: touch: %w", a.Name, err)
	}
	return StatusFetched, nil
}

// EnsureAll ensures each artifact in order and stops at the first failure.
func (e *Ensurer) EnsureAll(ctx context.Context, artifacts ...Artifact) error {
	for _, a := range artifacts {
		if _, err := e.Ensure(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// install fetches sum into a temp file next to the archive, verifies and
// extracts it, and only then renames it over the archive. Any failure leaves
// the previous archive in place.
func (e *Ensurer) install(ctx context.Context, a Artifact, sum string) error {
	dir := filepath.Dir(a.Archive)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".fetch-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	h := sha1.New()
	if err := e.store.Fetch(ctx, sum, io.MultiWriter(tmp, h)); err != nil {
		tmp.Close()
		return fmt.Errorf("fetch %s: %w", sum, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != sum {
		return fmt.Errorf("%w: want %s, got %s", ErrChecksumMismatch, sum, got)
	}
	if a.Extract {
		if err := extractFile(tmpName, a.Dir); err != nil {
			return fmt.Errorf("extract: %w", err)
		}
	}
	if err := os.Chmod(tmpName, archiveMode); err != nil {
		return err
	}
	return os.Rename(tmpName, a.Archive)
}

// touch moves the archive mtime to now, or to the manifest mtime when that
// lies in the future, so the next freshness check passes.
func (e *Ensurer) touch(a Artifact) error {
	ts := e.now()
	if mi, err := os.Stat(a.Manifest); err == nil && mi.ModTime().After(ts) {
		ts = mi.ModTime()
	}
	return os.Chtimes(a.Archive, ts, ts)
}

func extractFile(archive, dir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()
	return ExtractTarGz(f, dir)
}
