package scan

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// FileVisit carries per-entry metadata to callers.
type FileVisit struct {
	// Root-relative path using forward slashes (e.g., "java/util/Foo.java").
	Path string
	// Absolute filesystem path.
	AbsPath string
	// Extension (e.g., ".java"), lowercased unless the walk is case-sensitive;
	// empty for files without one.
	Ext string
	// File size in bytes; 0 when stat fails.
	Size int64
}

// Options controls which files a walk yields.
type Options struct {
	// Extensions restricts results to files with one of these extensions.
	// With or without the leading dot. Empty means all files.
	Extensions []string
	// CaseSensitive matches Extensions exactly; ".JAVA" is then not ".java".
	CaseSensitive bool
	// IgnoreDirs lists directory base names that are not descended into.
	IgnoreDirs []string
}

// Walk lazily yields every regular file below root in lexical order.
// The walk stops at the first error, which is yielded once with a zero
// FileVisit. Breaking out of the loop stops the walk.
func Walk(root string, opts Options) iter.Seq2[FileVisit, error] {
	allowed := normalizeExts(opts.Extensions, opts.CaseSensitive)
	ignored := make(map[string]struct{}, len(opts.IgnoreDirs))
	for _, d := range opts.IgnoreDirs {
		if d = strings.TrimSpace(d); d != "" {
			ignored[d] = struct{}{}
		}
	}

	return func(yield func(FileVisit, error) bool) {
		stopped := false
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if _, skip := ignored[d.Name()]; skip && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			ext := filepath.Ext(path)
			if !opts.CaseSensitive {
				ext = strings.ToLower(ext)
			}
			if len(allowed) > 0 {
				if _, ok := allowed[ext]; !ok {
					return nil
				}
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			abs, absErr := filepath.Abs(path)
			if absErr != nil {
				abs = path
			}
			var size int64
			if info, e := d.Info(); e == nil {
				size = info.Size()
			}
			if !yield(FileVisit{Path: filepath.ToSlash(rel), AbsPath: abs, Ext: ext, Size: size}, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield(FileVisit{}, err)
		}
	}
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func normalizeExts(exts []string, caseSensitive bool) map[string]struct{} {
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if !caseSensitive {
			ext = strings.ToLower(ext)
		}
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return allowed
}
