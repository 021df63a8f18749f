package jctf

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed templates/jctf_test.java.tmpl
var defaultTemplate string

// Renderer substitutes identity values into a fixed template.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses text. Placeholders are written {{.name}}; referencing a
// key that is not a known placeholder fails at render time.
func NewRenderer(text string) (*Renderer, error) {
	if text == "" {
		text = defaultTemplate
	}
	tmpl, err := template.New("jctf").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("jctf: parse template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the generated source for id.
func (r *Renderer) Render(id Identity) ([]byte, error) {
	values := id.placeholders()
	for k, v := range values {
		if v == "" {
			return nil, fmt.Errorf("jctf: render %s: placeholder %q is empty", id.OutputPath, k)
		}
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, values); err != nil {
		return nil, fmt.Errorf("jctf: render %s: %w", id.OutputPath, err)
	}
	return buf.Bytes(), nil
}
