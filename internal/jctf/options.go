package jctf

import (
	"errors"
	"fmt"
	"strings"
)

// Variant is one compiler backend a test is generated for.
type Variant struct {
	// Tag names the output subtree and the generated package segment.
	Tag string `yaml:"tag"`
	// Enum is the CompilerUnderTest constant passed to the test helper.
	Enum string `yaml:"enum"`
}

// DefaultVariants are the backends the jctf suite runs against.
var DefaultVariants = []Variant{
	{Tag: "d8", Enum: "R8_AFTER_D8"},
	{Tag: "r8cf", Enum: "R8CF"},
}

const (
	DefaultPackagePrefix   = "com.google.jctf.test.lib.java."
	DefaultNamespaceMarker = ".java."
	DefaultTestMarker      = "@Test"
	DefaultExtension       = ".java"
)

// Options configures a Generator.
type Options struct {
	CorpusRoot      string
	DestRoot        string
	PackagePrefix   string
	NamespaceMarker string
	TestMarker      string
	// Extension is matched case-sensitively.
	Extension string
	// IgnoreDirs names corpus directories that are not descended into.
	IgnoreDirs []string
	Variants   []Variant
	// Template is the text/template source rendered per (test, variant).
	// Empty selects the built-in template.
	Template string
}

func (o Options) withDefaults() Options {
	if o.PackagePrefix == "" {
		o.PackagePrefix = DefaultPackagePrefix
	}
	if o.NamespaceMarker == "" {
		o.NamespaceMarker = DefaultNamespaceMarker
	}
	if o.TestMarker == "" {
		o.TestMarker = DefaultTestMarker
	}
	if o.Extension == "" {
		o.Extension = DefaultExtension
	}
	if !strings.HasPrefix(o.Extension, ".") {
		o.Extension = "." + o.Extension
	}
	if len(o.Variants) == 0 {
		o.Variants = append([]Variant(nil), DefaultVariants...)
	}
	if o.Template == "" {
		o.Template = defaultTemplate
	}
	return o
}

// Validate reports configuration errors.
func (o Options) Validate() error {
	if strings.TrimSpace(o.CorpusRoot) == "" {
		return errors.New("jctf: corpus root is required")
	}
	if strings.TrimSpace(o.DestRoot) == "" {
		return errors.New("jctf: destination root is required")
	}
	seen := make(map[string]struct{}, len(o.Variants))
	for _, v := range o.Variants {
		if v.Tag == "" || v.Enum == "" {
			return fmt.Errorf("jctf: variant %+v needs both tag and enum", v)
		}
		if strings.ContainsAny(v.Tag, `/\.`) {
			return fmt.Errorf("jctf: variant tag %q must be a single path segment", v.Tag)
		}
		if _, dup := seen[v.Tag]; dup {
			return fmt.Errorf("jctf: duplicate variant tag %q", v.Tag)
		}
		seen[v.Tag] = struct{}{}
	}
	return nil
}
