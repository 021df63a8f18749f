package jctf

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrCorpusNotFound is returned when the corpus root does not exist.
	ErrCorpusNotFound = errors.New("jctf: corpus root not found")
	// ErrHyphenatedClassName marks a candidate whose file stem is not a usable class name.
	ErrHyphenatedClassName = errors.New("class name must not contain '-'")
	// ErrMissingPackage marks a candidate without a package declaration.
	ErrMissingPackage = errors.New("can't find package statement in java file")
	// ErrMissingNamespaceMarker marks a package name that lacks the namespace marker.
	ErrMissingNamespaceMarker = errors.New("package name lacks namespace marker")
)

// CorpusError reports a malformed corpus file. It always aborts the run.
type CorpusError struct {
	Path string
	Err  error
}

func (e *CorpusError) Error() string {
	return fmt.Sprintf("jctf: %s: %v", e.Path, e.Err)
}

func (e *CorpusError) Unwrap() error { return e.Err }

var rePackage = regexp.MustCompile(`^\s*package\s+([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*)\s*;`)

// Candidate is a corpus file accepted for generation.
type Candidate struct {
	Path            string
	ClassName       string
	Package         string
	RelativePackage string
}

// ContainsMarker reports whether content holds the test marker token.
func ContainsMarker(content, marker string) bool {
	return marker != "" && strings.Contains(content, marker)
}

// ParsePackage returns the dotted name of the first package declaration line.
// A leading byte order mark is ignored.
func ParsePackage(content string) (string, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	for line := range strings.Lines(content) {
		if m := rePackage.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
	}
	return "", ErrMissingPackage
}

// RelativePackage returns the part of pkg that follows marker.
func RelativePackage(pkg, marker string) (string, error) {
	idx := strings.Index(pkg, marker)
	if marker == "" || idx < 0 {
		return "", fmt.Errorf("%w: %q not in %q", ErrMissingNamespaceMarker, marker, pkg)
	}
	rel := pkg[idx+len(marker):]
	if rel == "" {
		return "", fmt.Errorf("%w: nothing follows %q in %q", ErrMissingNamespaceMarker, marker, pkg)
	}
	return rel, nil
}

// ClassNameFromPath returns the file stem of path.
func ClassNameFromPath(path string) (string, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.Contains(name, "-") {
		return "", fmt.Errorf("%w: %q", ErrHyphenatedClassName, name)
	}
	return name, nil
}

// ParseCandidate runs the two parse stages over already-read content. It
// returns ok=false for files without the test marker. Any other failure is a
// *CorpusError.
func ParseCandidate(path, content string, opts Options) (Candidate, bool, error) {
	if !ContainsMarker(content, opts.TestMarker) {
		return Candidate{}, false, nil
	}
	className, err := ClassNameFromPath(path)
	if err != nil {
		return Candidate{}, true, &CorpusError{Path: path, Err: err}
	}
	pkg, err := ParsePackage(content)
	if err != nil {
		return Candidate{}, true, &CorpusError{Path: path, Err: err}
	}
	rel, err := RelativePackage(pkg, opts.NamespaceMarker)
	if err != nil {
		return Candidate{}, true, &CorpusError{Path: path, Err: err}
	}
	return Candidate{
		Path:            path,
		ClassName:       className,
		Package:         pkg,
		RelativePackage: rel,
	}, true, nil
}
