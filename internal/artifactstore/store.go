package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Store fetches cached-tool archives by content checksum.
type Store interface {
	Fetch(ctx context.Context, key string, w io.Writer) error
}

var ErrNotFound = errors.New("artifact not found")

const (
	BackendGCS = "gcs"
	BackendS3  = "s3"
	BackendDir = "dir"
)

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend"`
	// Bucket holds objects named <Prefix><sha1>.
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	// GCS
	CredentialsFile string `yaml:"credentials_file"`

	// S3-compatible
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`

	// Local mirror
	Dir string `yaml:"dir"`
}

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendGCS, "":
		s, err := NewGCSStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendS3:
		s, err := NewS3Store(S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendDir:
		s, err := NewDirStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}

func objectKey(prefix, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key: %s", key)
	}
	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	return prefix + key, nil
}
