package depcache

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrBadManifest is returned for a sidecar that does not hold a SHA-1.
var ErrBadManifest = errors.New("depcache: manifest does not contain a sha1 checksum")

var reSHA1 = regexp.MustCompile(`^[0-9a-f]{40}$`)

type manifestEntry struct {
	modTime time.Time
	size    int64
	sum     string
}

// manifestCache memoizes parsed manifests. Entries are keyed by path and
// revalidated against the file's mtime and size on every lookup.
type manifestCache struct {
	entries *lru.Cache[string, manifestEntry]
}

func newManifestCache(size int) (*manifestCache, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, manifestEntry](size)
	if err != nil {
		return nil, err
	}
	return &manifestCache{entries: c}, nil
}

func (c *manifestCache) read(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if e, ok := c.entries.Get(path); ok && e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
		return e.sum, nil
	}
	sum, err := ReadManifest(path)
	if err != nil {
		return "", err
	}
	c.entries.Add(path, manifestEntry{modTime: info.ModTime(), size: info.Size(), sum: sum})
	return sum, nil
}

// ReadManifest returns the lowercase hex SHA-1 stored in a .sha1 sidecar.
func ReadManifest(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := strings.ToLower(strings.TrimSpace(string(b)))
	if fields := strings.Fields(sum); len(fields) > 0 {
		sum = fields[0]
	}
	if !reSHA1.MatchString(sum) {
		return "", fmt.Errorf("%w: %s", ErrBadManifest, path)
	}
	return sum, nil
}
