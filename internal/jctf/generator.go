package jctf

import (
	"fmt"
	"log/slog"
	"os"

	"buildsupport/internal/safeio"
	"buildsupport/internal/scan"
)

// Generator renders one test source per (corpus test, variant) pair into a
// destination tree it owns exclusively.
type Generator struct {
	opts     Options
	renderer *Renderer
	log      *slog.Logger
}

// Result summarizes a generation run.
type Result struct {
	// Scanned counts files with the corpus extension.
	Scanned int
	// Candidates counts files carrying the test marker.
	Candidates int
	// Files lists written paths relative to the destination root, in write order.
	Files []string
}

// New validates opts and prepares the template.
func New(opts Options, logger *slog.Logger) (*Generator, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	r, err := NewRenderer(opts.Template)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{opts: opts, renderer: r, log: logger.With("component", "jctf")}, nil
}

// GenerateAll regenerates the whole destination tree. Variant subtrees are
// wiped first. Every candidate is parsed and rendered before the first file
// is written, so a malformed corpus file leaves the subtrees empty.
func (g *Generator) GenerateAll() (Result, error) {
	var res Result
	if !scan.IsDir(g.opts.CorpusRoot) {
		return res, fmt.Errorf("%w: %s", ErrCorpusNotFound, g.opts.CorpusRoot)
	}
	if err := os.MkdirAll(g.opts.DestRoot, 0o755); err != nil {
		return res, fmt.Errorf("jctf: create destination root: %w", err)
	}
	dest, err := safeio.NewSafeFS(g.opts.DestRoot)
	if err != nil {
		return res, fmt.Errorf("jctf: destination root: %w", err)
	}
	corpus, err := safeio.NewReadOnly(g.opts.CorpusRoot)
	if err != nil {
		return res, fmt.Errorf("jctf: corpus root: %w", err)
	}

	if err := g.reset(dest); err != nil {
		return res, err
	}

	candidates, scanned, err := g.discover(corpus)
	res.Scanned = scanned
	if err != nil {
		return res, err
	}
	res.Candidates = len(candidates)

	type rendered struct {
		path    string
		content []byte
	}
	outputs := make([]rendered, 0, len(candidates)*len(g.opts.Variants))
	for _, c := range candidates {
		for _, v := range g.opts.Variants {
			id := NewIdentity(c, v, g.opts)
			content, err := g.renderer.Render(id)
			if err != nil {
				return res, err
			}
			outputs = append(outputs, rendered{path: id.OutputPath, content: content})
		}
	}

	for _, out := range outputs {
		if err := dest.WriteFile(out.path, out.content); err != nil {
			return res, fmt.Errorf("jctf: write %s: %w", out.path, err)
		}
		res.Files = append(res.Files, out.path)
		g.log.Debug("generated test", "path", out.path)
	}

	g.log.Info("jctf tests generated",
		"scanned", res.Scanned,
		"candidates", res.Candidates,
		"variants", len(g.opts.Variants),
		"files", len(res.Files),
		"dest", dest.Root())
	return res, nil
}

func (g *Generator) reset(dest *safeio.SafeFS) error {
	for _, v := range g.opts.Variants {
		if err := dest.RemoveAll(v.Tag); err != nil {
			return fmt.Errorf("jctf: clear %s: %w", v.Tag, err)
		}
		if err := dest.MkdirAll(v.Tag); err != nil {
			return fmt.Errorf("jctf: create %s: %w", v.Tag, err)
		}
	}
	return nil
}

// discover walks the corpus and parses every file carrying the test marker.
// The first malformed candidate aborts discovery.
func (g *Generator) discover(corpus *safeio.SafeFS) ([]Candidate, int, error) {
	var (
		candidates []Candidate
		scanned    int
	)
	walk := scan.Options{
		Extensions:    []string{g.opts.Extension},
		CaseSensitive: true,
		IgnoreDirs:    g.opts.IgnoreDirs,
	}
	for fv, err := range scan.Walk(corpus.Root(), walk) {
		if err != nil {
			return nil, scanned, fmt.Errorf("jctf: walk corpus: %w", err)
		}
		scanned++
		b, err := corpus.ReadFile(fv.Path)
		if err != nil {
			return nil, scanned, fmt.Errorf("jctf: read %s: %w", fv.AbsPath, err)
		}
		c, ok, err := ParseCandidate(fv.AbsPath, string(b), g.opts)
		if err != nil {
			return nil, scanned, err
		}
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, scanned, nil
}
