package jctf

import (
	"path/filepath"
	"strings"
)

// Identity is everything derived for one (candidate, variant) pair.
type Identity struct {
	Variant         Variant
	ClassName       string
	RelativePackage string
	// FullName is the fully-qualified name of the original test class.
	FullName string
	// ClassFile is FullName as a slash-separated .class path.
	ClassFile string
	// NameWithoutPrefix is FullName without the package prefix.
	NameWithoutPrefix string
	// OutputPath is relative to the destination root.
	OutputPath string
}

// NewIdentity derives the generated test identity of c for variant v.
func NewIdentity(c Candidate, v Variant, opts Options) Identity {
	opts = opts.withDefaults()
	short := c.RelativePackage + "." + c.ClassName
	full := opts.PackagePrefix + short
	pkgPath := filepath.FromSlash(strings.ReplaceAll(c.RelativePackage, ".", "/"))
	return Identity{
		Variant:           v,
		ClassName:         c.ClassName,
		RelativePackage:   c.RelativePackage,
		FullName:          full,
		ClassFile:         strings.ReplaceAll(full, ".", "/") + ".class",
		NameWithoutPrefix: short,
		OutputPath:        filepath.Join(v.Tag, pkgPath, c.ClassName+opts.Extension),
	}
}

// placeholders maps template keys to identity values.
func (id Identity) placeholders() map[string]string {
	return map[string]string{
		"compilerUnderTest":        id.Variant.Tag,
		"relativePackage":          id.RelativePackage,
		"name":                     id.FullName,
		"testClassName":            id.ClassName,
		"compilerUnderTestEnum":    id.Variant.Enum,
		"classFile":                id.ClassFile,
		"nameWithoutPackagePrefix": id.NameWithoutPrefix,
	}
}
