// Package gradle runs the pinned Gradle distribution after making sure it
// and the libraries the build needs are present in the local cache.
package gradle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"buildsupport/internal/depcache"
)

// ExcludeDepsFlag tells the build to skip its own dependency downloads.
const ExcludeDepsFlag = "-Pexclude_deps"

// ErrFailed is returned when gradle exits non-zero.
var ErrFailed = errors.New("failed to execute gradle")

// DepsEnsurer brings cached artifacts up to date.
type DepsEnsurer interface {
	EnsureAll(ctx context.Context, artifacts ...depcache.Artifact) error
}

// Runner invokes gradle from a fixed working directory.
type Runner struct {
	Binary  string
	WorkDir string
	Ensurer DepsEnsurer
	Deps    []depcache.Artifact
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *slog.Logger
}

// BinaryPath returns the launcher inside an extracted distribution.
func BinaryPath(distDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(distDir, "gradle", "bin", "gradle.bat")
	}
	return filepath.Join(distDir, "gradle", "bin", "gradle")
}

// EnsureDeps fetches stale or missing artifacts.
func (r *Runner) EnsureDeps(ctx context.Context) error {
	if r.Ensurer == nil || len(r.Deps) == 0 {
		return nil
	}
	return r.Ensurer.EnsureAll(ctx, r.Deps...)
}

// Run executes gradle with args and returns its exit code. A non-zero exit
// is an error unless throwOnFailure is false.
func (r *Runner) Run(ctx context.Context, args []string, throwOnFailure bool) (int, error) {
	if err := r.EnsureDeps(ctx); err != nil {
		return -1, err
	}
	cmd := r.command(ctx, args)
	cmd.Stdout = writerOr(r.Stdout, os.Stdout)
	cmd.Stderr = writerOr(r.Stderr, os.Stderr)

	err := cmd.Run()
	code, err := exitCode(err)
	if err != nil {
		return code, err
	}
	if code != 0 && throwOnFailure {
		return code, fmt.Errorf("%w: exit status %d", ErrFailed, code)
	}
	return code, nil
}

// RunExcludeDeps is Run with the exclude-deps property set.
func (r *Runner) RunExcludeDeps(ctx context.Context, args []string, throwOnFailure bool) (int, error) {
	withFlag := append(append([]string(nil), args...), ExcludeDepsFlag)
	return r.Run(ctx, withFlag, throwOnFailure)
}

// Output executes gradle and returns its stdout. Any non-zero exit is an
// error.
func (r *Runner) Output(ctx context.Context, args []string) ([]byte, error) {
	if err := r.EnsureDeps(ctx); err != nil {
		return nil, err
	}
	var stdout bytes.Buffer
	cmd := r.command(ctx, args)
	cmd.Stdout = &stdout
	cmd.Stderr = writerOr(r.Stderr, os.Stderr)

	code, err := exitCode(cmd.Run())
	if err != nil {
		return stdout.Bytes(), err
	}
	if code != 0 {
		return stdout.Bytes(), fmt.Errorf("%w: exit status %d", ErrFailed, code)
	}
	return stdout.Bytes(), nil
}

func (r *Runner) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = r.WorkDir
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("running", "cmd", strings.Join(append([]string{r.Binary}, args...), " "), "dir", r.WorkDir)
	return cmd
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("gradle: %w", err)
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
