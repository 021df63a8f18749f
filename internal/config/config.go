package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"buildsupport/internal/artifactstore"
	"buildsupport/internal/depcache"
	"buildsupport/internal/gradle"
	"buildsupport/internal/jctf"
)

// DefaultFile is looked up in the repo root when no config path is given.
const DefaultFile = "buildsupport.yaml"

type Config struct {
	RepoRoot  string               `yaml:"repo_root"`
	Generator GeneratorConfig      `yaml:"generator"`
	Artifacts []depcache.Artifact  `yaml:"artifacts"`
	Store     artifactstore.Config `yaml:"store"`
	Gradle    GradleConfig         `yaml:"gradle"`
}

type GeneratorConfig struct {
	CorpusRoot      string         `yaml:"corpus_root"`
	DestRoot        string         `yaml:"dest_root"`
	PackagePrefix   string         `yaml:"package_prefix"`
	NamespaceMarker string         `yaml:"namespace_marker"`
	TestMarker      string         `yaml:"test_marker"`
	Extension       string         `yaml:"extension"`
	IgnoreDirs      []string       `yaml:"ignore_dirs"`
	Variants        []jctf.Variant `yaml:"variants"`
	TemplatePath    string         `yaml:"template_path"`
}

type GradleConfig struct {
	Binary  string `yaml:"binary"`
	WorkDir string `yaml:"work_dir"`
	// Deps names the artifacts ensured before every gradle run.
	Deps []string `yaml:"deps"`
}

// Load reads .env, the YAML file at path (or DefaultFile under the repo root
// when path is empty and the file exists) and environment overrides.
// Relative paths are resolved against the repo root.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	root := firstNonEmpty(strings.TrimSpace(os.Getenv("BUILDSUPPORT_REPO_ROOT")), ".")
	cfg := Defaults()
	cfg.RepoRoot = root

	if path == "" {
		if candidate := filepath.Join(root, DefaultFile); fileExists(candidate) {
			path = candidate
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if env := strings.TrimSpace(os.Getenv("BUILDSUPPORT_REPO_ROOT")); env != "" {
			cfg.RepoRoot = env
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults mirrors the layout of the R8 checkout, relative to the repo root.
func Defaults() *Config {
	gradleDir := filepath.Join("third_party", "gradle")
	gradleArtifact := depcache.TarGz("gradle", gradleDir, "gradle")
	gradleArtifact.Sentinel = gradle.BinaryPath(gradleDir)

	thirdParty := "third_party"
	shadow := depcache.TarGz("shadow", thirdParty, "shadow")
	shadow.Sentinel = filepath.Join(thirdParty, "shadow", "shadow-2.0.1.jar")

	return &Config{
		RepoRoot: ".",
		Generator: GeneratorConfig{
			CorpusRoot:      filepath.Join("third_party", "jctf", "LibTests", "src", "com", "google", "jctf", "test", "lib", "java"),
			DestRoot:        filepath.Join("build", "generated", "test", "java", "com", "android", "tools", "r8", "jctf"),
			PackagePrefix:   jctf.DefaultPackagePrefix,
			NamespaceMarker: jctf.DefaultNamespaceMarker,
			TestMarker:      jctf.DefaultTestMarker,
			Extension:       jctf.DefaultExtension,
			Variants:        append([]jctf.Variant(nil), jctf.DefaultVariants...),
		},
		Artifacts: []depcache.Artifact{gradleArtifact, shadow},
		Store: artifactstore.Config{
			Backend: artifactstore.BackendGCS,
			Bucket:  artifactstore.DefaultGCSBucket,
		},
		Gradle: GradleConfig{
			Binary: gradle.BinaryPath(gradleDir),
			Deps:   []string{"gradle", "shadow"},
		},
	}
}

func applyEnv(cfg *Config) error {
	g := &cfg.Generator
	g.CorpusRoot = firstNonEmpty(strings.TrimSpace(os.Getenv("JCTF_ROOT")), g.CorpusRoot)
	g.DestRoot = firstNonEmpty(strings.TrimSpace(os.Getenv("JCTF_DEST")), g.DestRoot)
	g.TemplatePath = firstNonEmpty(strings.TrimSpace(os.Getenv("JCTF_TEMPLATE")), g.TemplatePath)
	if raw := strings.TrimSpace(os.Getenv("JCTF_IGNORE_DIRS")); raw != "" {
		g.IgnoreDirs = splitList(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("JCTF_VARIANTS")); raw != "" {
		variants, err := ParseVariants(raw)
		if err != nil {
			return err
		}
		g.Variants = variants
	}

	s := &cfg.Store
	s.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_BACKEND")), s.Backend)
	s.Bucket = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_BUCKET")), s.Bucket)
	s.Prefix = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_PREFIX")), s.Prefix)
	s.Endpoint = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT")), s.Endpoint)
	s.Region = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), s.Region)
	s.AccessKey = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), s.AccessKey)
	s.SecretKey = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), s.SecretKey)
	s.CredentialsFile = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_GCS_CREDENTIALS")), s.CredentialsFile)
	s.Dir = firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_MIRROR_DIR")), s.Dir)
	if raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("ARTIFACT_S3_USE_SSL: %w", err)
		}
		s.UseSSL = v
	}
	return nil
}

// ParseVariants reads "tag:ENUM,tag:ENUM".
func ParseVariants(raw string) ([]jctf.Variant, error) {
	var out []jctf.Variant
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tag, enum, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(tag) == "" || strings.TrimSpace(enum) == "" {
			return nil, fmt.Errorf("invalid variant %q, want tag:ENUM", part)
		}
		out = append(out, jctf.Variant{Tag: strings.TrimSpace(tag), Enum: strings.TrimSpace(enum)})
	}
	if len(out) == 0 {
		return nil, errors.New("no variants given")
	}
	return out, nil
}

func (c *Config) resolvePaths() {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.RepoRoot, p)
	}
	c.Generator.CorpusRoot = abs(c.Generator.CorpusRoot)
	c.Generator.DestRoot = abs(c.Generator.DestRoot)
	c.Generator.TemplatePath = abs(c.Generator.TemplatePath)
	for i := range c.Artifacts {
		a := &c.Artifacts[i]
		a.Dir = abs(a.Dir)
		a.Archive = abs(a.Archive)
		a.Manifest = abs(a.Manifest)
		a.Sentinel = abs(a.Sentinel)
	}
	c.Gradle.Binary = abs(c.Gradle.Binary)
	c.Gradle.WorkDir = firstNonEmpty(abs(c.Gradle.WorkDir), c.RepoRoot)
	if strings.EqualFold(strings.TrimSpace(c.Store.Backend), artifactstore.BackendDir) {
		c.Store.Dir = abs(c.Store.Dir)
	}
}

// Validate reports inconsistent settings.
func (c *Config) Validate() error {
	if len(c.Generator.Variants) == 0 {
		return errors.New("config: at least one variant is required")
	}
	seen := map[string]bool{}
	for _, v := range c.Generator.Variants {
		if seen[v.Tag] {
			return fmt.Errorf("config: duplicate variant tag %q", v.Tag)
		}
		seen[v.Tag] = true
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Backend)) {
	case artifactstore.BackendGCS, artifactstore.BackendS3, artifactstore.BackendDir:
	default:
		return fmt.Errorf("config: unknown artifact backend %q", c.Store.Backend)
	}
	names := map[string]bool{}
	for _, a := range c.Artifacts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if names[a.Name] {
			return fmt.Errorf("config: duplicate artifact %q", a.Name)
		}
		names[a.Name] = true
	}
	for _, d := range c.Gradle.Deps {
		if !names[d] {
			return fmt.Errorf("config: gradle dep %q is not a configured artifact", d)
		}
	}
	return nil
}

// Artifact looks up a configured artifact by name.
func (c *Config) Artifact(name string) (depcache.Artifact, bool) {
	for _, a := range c.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return depcache.Artifact{}, false
}

// GradleDeps returns the artifacts ensured before gradle runs.
func (c *Config) GradleDeps() []depcache.Artifact {
	out := make([]depcache.Artifact, 0, len(c.Gradle.Deps))
	for _, name := range c.Gradle.Deps {
		if a, ok := c.Artifact(name); ok {
			out = append(out, a)
		}
	}
	return out
}

// GeneratorOptions converts the generator section, loading the template file
// when one is configured.
func (c *Config) GeneratorOptions() (jctf.Options, error) {
	g := c.Generator
	opts := jctf.Options{
		CorpusRoot:      g.CorpusRoot,
		DestRoot:        g.DestRoot,
		PackagePrefix:   g.PackagePrefix,
		NamespaceMarker: g.NamespaceMarker,
		TestMarker:      g.TestMarker,
		Extension:       g.Extension,
		IgnoreDirs:      g.IgnoreDirs,
		Variants:        g.Variants,
	}
	if g.TemplatePath != "" {
		b, err := os.ReadFile(g.TemplatePath)
		if err != nil {
			return opts, fmt.Errorf("read template: %w", err)
		}
		opts.Template = string(b)
	}
	return opts, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
