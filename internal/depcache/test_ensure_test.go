package depcache

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	objects map[string][]byte
	calls   []string
	err     error
}

func (f *fakeStore) Fetch(_ context.Context, key string, w io.Writer) error {
	f.calls = append(f.calls, key)
	if f.err != nil {
		return f.err
	}
	b, ok := f.objects[key]
	if !ok {
		return errors.New("no such object")
	}
	_, err := w.Write(b)
	return err
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o755,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func newTestEnsurer(t *testing.T, store Fetcher) *Ensurer {
	t.Helper()
	e, err := NewEnsurer(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return e
}

// setup lays out <dir>/gradle.tar.gz.sha1 for payload and returns the artifact.
func setup(t *testing.T, payload []byte) (Artifact, *fakeStore) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "gradle")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	a := TarGz("gradle", dir, "gradle")
	sum := sha1Hex(payload)
	require.NoError(t, os.WriteFile(a.Manifest, []byte(sum+"\n"), 0o644))
	return a, &fakeStore{objects: map[string][]byte{sum: payload}}
}

func setMtime(t *testing.T, path string, ts time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func mtime(t *testing.T, path string) time.Time {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi.ModTime()
}

func TestEnsure_MissingArchiveFetchesAndExtracts(t *testing.T) {
	payload := tarGz(t, map[string]string{"gradle/bin/gradle": "#!/bin/sh\n"})
	a, store := setup(t, payload)
	a.Sentinel = filepath.Join(a.Dir, "gradle", "bin", "gradle")

	status, err := newTestEnsurer(t, store).Ensure(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, status)
	assert.Len(t, store.calls, 1)

	got, err := os.ReadFile(a.Archive)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.FileExists(t, a.Sentinel)

	fresh, err := IsFresh(a)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestEnsure_StaleArchiveFetchesOnceAndTouches(t *testing.T) {
	payload := tarGz(t, map[string]string{"gradle/README": "v2"})
	a, store := setup(t, payload)
	require.NoError(t, os.WriteFile(a.Archive, []byte("old"), 0o644))

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	setMtime(t, a.Archive, base)
	setMtime(t, a.Manifest, base.Add(10*time.Minute))

	e := newTestEnsurer(t, store)
	status, err := e.Ensure(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, status)
	assert.Equal(t, []string{sha1Hex(payload)}, store.calls)
	assert.False(t, mtime(t, a.Archive).Before(mtime(t, a.Manifest)))

	// Second call is a no-op.
	status, err = e.Ensure(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, StatusFresh, status)
	assert.Len(t, store.calls, 1)
}

func TestEnsure_FreshArchiveIsNoop(t *testing.T) {
	a, store := setup(t, []byte("payload"))
	require.NoError(t, os.WriteFile(a.Archive, []byte("cached"), 0o644))
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	setMtime(t, a.Manifest, base)
	setMtime(t, a.Archive, base.Add(time.Minute))

	status, err := newTestEnsurer(t, store).Ensure(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, StatusFresh, status)
	assert.Empty(t, store.calls)
	assert.True(t, base.Add(time.Minute).Equal(mtime(t, a.Archive)))
}

func TestEnsure_EqualMtimesAreFresh(t *testing.T) {
	a, store := setup(t, []byte("payload"))
	require.NoError(t, os.WriteFile(a.Archive, []byte("cached"), 0o644))
	ts := time.Now().Add(-time.Hour).Truncate(time.Second)
	setMtime(t, a.Manifest, ts)
	setMtime(t, a.Archive, ts)

	_, err := newTestEnsurer(t, store).Ensure(context.Background(), a)
	require.NoError(t, err)
	assert.Empty(t, store.calls)
}

func TestEnsure_FutureManifestMtime(t *testing.T) {
	payload := tarGz(t, map[string]string{"x": "y"})
	a, store := setup(t, payload)
	future := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	setMtime(t, a.Manifest, future)

	_, err := newTestEnsurer(t, store).Ensure(context.Background(), a)
	require.NoError(t, err)
	fresh, err := IsFresh(a)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestEnsure_MissingSentinelRefetches(t *testing.T) {
	payload := tarGz(t, map[string]string{"shadow/shadow-2.0.1.jar": "jar"})
	a, store := setup(t, payload)
	require.NoError(t, os.WriteFile(a.Archive, payload, 0o644))
	a.Sentinel = filepath.Join(a.Dir, "shadow", "shadow-2.0.1.jar")

	_, err := newTestEnsurer(t, store).Ensure(context.Background(), a)
	require.NoError(t, err)
	assert.Len(t, store.calls, 1)
	assert.FileExists(t, a.Sentinel)
}

func TestEnsure_FetchFailureIsFatal(t *testing.T) {
	a, store := setup(t, []byte("payload"))
	store.err = errors.New("bucket unreachable")

	_, err := newTestEnsurer(t, store).Ensure(context.Background(), a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
	assert.NoFileExists(t, a.Archive)
}

func TestEnsure_ChecksumMismatch(t *testing.T) {
	a, store := setup(t, []byte("payload"))
	sum := sha1Hex([]byte("payload"))
	store.objects[sum] = []byte("tampered")

	_, err := newTestEnsurer(t, store).Ensure(context.Background(), a)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.NoFileExists(t, a.Archive)
}

func TestEnsure_ExtractFailureLeavesArchiveStale(t *testing.T) {
	payload := []byte("not a gzip stream")
	a, store := setup(t, payload)
	require.NoError(t, os.WriteFile(a.Archive, []byte("old"), 0o644))
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	setMtime(t, a.Archive, base)
	setMtime(t, a.Manifest, base.Add(time.Minute))

	e := newTestEnsurer(t, store)
	_, err := e.Ensure(context.Background(), a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract")

	got, err := os.ReadFile(a.Archive)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	fresh, err := IsFresh(a)
	require.NoError(t, err)
	assert.False(t, fresh)

	_, err = e.Ensure(context.Background(), a)
	require.Error(t, err)
	assert.Len(t, store.calls, 2)
}

func TestEnsure_ExtractFailureWithoutPriorArchive(t *testing.T) {
	a, store := setup(t, []byte("not a gzip stream"))

	_, err := newTestEnsurer(t, store).Ensure(context.Background(), a)
	require.Error(t, err)
	assert.NoFileExists(t, a.Archive)

	entries, err := os.ReadDir(a.Dir)
	require.NoError(t, err)
	for _, ent := range entries {
		assert.NotContains(t, ent.Name(), ".fetch-")
	}
}

func TestEnsure_ArchiveIsWorldReadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	payload := tarGz(t, map[string]string{"gradle/README": "v1"})
	a, store := setup(t, payload)

	_, err := newTestEnsurer(t, store).Ensure(context.Background(), a)
	require.NoError(t, err)
	fi, err := os.Stat(a.Archive)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())
}

func TestEnsure_MissingManifest(t *testing.T) {
	dir := t.TempDir()
	a := TarGz("shadow", dir, "shadow")

	_, err := newTestEnsurer(t, &fakeStore{}).Ensure(context.Background(), a)
	assert.Error(t, err)
}

func TestEnsureAll_StopsAtFirstFailure(t *testing.T) {
	good, store := setup(t, tarGz(t, map[string]string{"a": "b"}))
	bad := TarGz("broken", t.TempDir(), "broken")
	require.NoError(t, os.WriteFile(bad.Manifest, []byte("not-a-sum"), 0o644))
	never := TarGz("never", t.TempDir(), "never")

	err := newTestEnsurer(t, store).EnsureAll(context.Background(), good, bad, never)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadManifest)
	assert.Len(t, store.calls, 1)
}

func TestArtifactValidate(t *testing.T) {
	assert.Error(t, Artifact{}.Validate())
	assert.Error(t, Artifact{Name: "x", Manifest: "m"}.Validate())
	assert.Error(t, Artifact{Name: "x", Archive: "a"}.Validate())
	assert.Error(t, Artifact{Name: "x", Archive: "a", Manifest: "m", Extract: true}.Validate())
	assert.NoError(t, TarGz("gradle", "third_party/gradle", "gradle").Validate())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "fresh", StatusFresh.String())
	assert.Equal(t, "fetched", StatusFetched.String())
}
