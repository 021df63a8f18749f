package depcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Artifact is one external tool package kept in the local cache.
type Artifact struct {
	// Name is used in diagnostics and to select artifacts on the command line.
	Name string `yaml:"name"`
	// Dir receives the extracted archive contents.
	Dir string `yaml:"dir"`
	// Archive is the cached package, e.g. third_party/gradle/gradle.tar.gz.
	Archive string `yaml:"archive"`
	// Manifest is the checksum sidecar, e.g. gradle.tar.gz.sha1.
	Manifest string `yaml:"manifest"`
	// Sentinel, when set, must exist for the cache to count as fresh
	// (typically the extracted tool binary).
	Sentinel string `yaml:"sentinel"`
	// Extract unpacks the archive into Dir after each fetch.
	Extract bool `yaml:"extract"`
}

// TarGz describes the conventional <dir>/<base>.tar.gz + .sha1 layout.
func TarGz(name, dir, base string) Artifact {
	archive := filepath.Join(dir, base+".tar.gz")
	return Artifact{
		Name:     name,
		Dir:      dir,
		Archive:  archive,
		Manifest: archive + ".sha1",
		Extract:  true,
	}
}

// Validate reports missing required fields.
func (a Artifact) Validate() error {
	switch {
	case a.Name == "":
		return errors.New("depcache: artifact name is required")
	case a.Archive == "":
		return fmt.Errorf("depcache: %s: archive path is required", a.Name)
	case a.Manifest == "":
		return fmt.Errorf("depcache: %s: manifest path is required", a.Name)
	case a.Extract && a.Dir == "":
		return fmt.Errorf("depcache: %s: extraction dir is required", a.Name)
	}
	return nil
}

// IsFresh reports whether the archive exists and is not older than its
// manifest. A configured sentinel must exist as well. A missing manifest is
// an error: without it there is nothing to fetch.
func IsFresh(a Artifact) (bool, error) {
	mi, err := os.Stat(a.Manifest)
	if err != nil {
		return false, fmt.Errorf("depcache: %s: manifest: %w", a.Name, err)
	}
	ai, err := os.Stat(a.Archive)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("depcache: %s: archive: %w", a.Name, err)
	}
	if ai.ModTime().Before(mi.ModTime()) {
		return false, nil
	}
	if a.Sentinel != "" {
		if _, err := os.Stat(a.Sentinel); err != nil {
			return false, nil
		}
	}
	return true, nil
}
