package safeio

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeFSAllowsAbsoluteUnderRoot(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))

	fs, err := NewSafeFS(dir)
	require.NoError(t, err)

	got, err := fs.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestSafeFSRejectsTraversal(t *testing.T) {
	fs, err := NewSafeFS(t.TempDir())
	require.NoError(t, err)

	_, err = fs.ReadFile("../etc/passwd")
	assert.Error(t, err)
	assert.Error(t, fs.WriteFile("../escape.txt", []byte("x")))
	assert.Error(t, fs.MkdirAll(filepath.Join("..", "escape")))
}

func TestSafeFSRejectsAbsoluteOutsideRoot(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	fs, err := NewSafeFS(root)
	require.NoError(t, err)

	err = fs.WriteFile(filepath.Join(other, "x.txt"), []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutsideRoot))
	assert.NoFileExists(t, filepath.Join(other, "x.txt"))
}

func TestSafeFSWriteCreatesParents(t *testing.T) {
	root := t.TempDir()
	fs, err := NewSafeFS(root)
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile(filepath.Join("d8", "util", "Foo.java"), []byte("class Foo {}")))
	b, err := os.ReadFile(filepath.Join(root, "d8", "util", "Foo.java"))
	require.NoError(t, err)
	assert.Equal(t, "class Foo {}", string(b))

	// Creating an existing directory again is fine.
	require.NoError(t, fs.MkdirAll(filepath.Join("d8", "util")))
}

func TestSafeFSRemoveAll(t *testing.T) {
	root := t.TempDir()
	fs, err := NewSafeFS(root)
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile(filepath.Join("r8cf", "a", "B.java"), []byte("b")))
	require.NoError(t, fs.RemoveAll("r8cf"))
	assert.NoDirExists(t, filepath.Join(root, "r8cf"))

	// Missing paths are not an error, the root itself is off limits.
	require.NoError(t, fs.RemoveAll("missing"))
	assert.Error(t, fs.RemoveAll("."))
	assert.DirExists(t, root)
}

func TestSafeFSRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	fs, err := NewSafeFS(root)
	require.NoError(t, err)

	err = fs.WriteFile(filepath.Join("link", "x.txt"), []byte("x"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(outside, "x.txt"))
}

func TestNewSafeFSRejectsFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(p, nil, 0o644))

	_, err := NewSafeFS(p)
	assert.Error(t, err)

	_, err = NewSafeFS("")
	assert.Error(t, err)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Foo.java"), []byte("x"), 0o644))
	fs, err := NewReadOnly(root)
	require.NoError(t, err)

	got, err := fs.ReadFile("Foo.java")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))

	assert.ErrorIs(t, fs.WriteFile("Bar.java", []byte("y")), ErrReadOnly)
	assert.ErrorIs(t, fs.MkdirAll("sub"), ErrReadOnly)
	assert.ErrorIs(t, fs.RemoveAll("Foo.java"), ErrReadOnly)
	assert.FileExists(t, filepath.Join(root, "Foo.java"))
	assert.NoFileExists(t, filepath.Join(root, "Bar.java"))
}

func TestReadFileRejectsDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "util"), 0o755))
	fs, err := NewReadOnly(root)
	require.NoError(t, err)

	_, err = fs.ReadFile("util")
	assert.Error(t, err)
}

func TestReadFileRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	secret := filepath.Join(t.TempDir(), "secret.java")
	require.NoError(t, os.WriteFile(secret, []byte("s"), 0o644))
	require.NoError(t, os.Symlink(secret, filepath.Join(root, "Link.java")))

	fs, err := NewReadOnly(root)
	require.NoError(t, err)
	_, err = fs.ReadFile("Link.java")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestWithin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "repo", "out")
	assert.True(t, within(root, root))
	assert.True(t, within(root, filepath.Join(root, "d8", "Foo.java")))
	assert.False(t, within(root, filepath.Join(string(filepath.Separator), "repo", "outside")))
	assert.False(t, within(root, filepath.Join(string(filepath.Separator), "repo")))
}
