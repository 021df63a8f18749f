package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// DefaultGCSBucket is the public bucket holding third_party archives.
const DefaultGCSBucket = "r8-deps"

// GCSStore reads archives from a Google Cloud Storage bucket.
type GCSStore struct {
	storageClient *storage.Client
	bucketName    string
	prefix        string
}

// NewGCSStore creates a GCS client. Without a credentials file the client
// falls back to application default credentials, or anonymous access when
// none are configured.
func NewGCSStore(ctx context.Context, cfg Config) (*GCSStore, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = DefaultGCSBucket
	}

	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", path)
		}
		opts = append(opts, option.WithCredentialsFile(path))
	} else if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{storageClient: client, bucketName: bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) Fetch(ctx context.Context, key string, w io.Writer) error {
	if s == nil || s.storageClient == nil {
		return fmt.Errorf("store is nil")
	}
	name, err := objectKey(s.prefix, key)
	if err != nil {
		return err
	}
	r, err := s.storageClient.Bucket(s.bucketName).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: gs://%s/%s", ErrNotFound, s.bucketName, name)
	}
	if err != nil {
		return fmt.Errorf("failed to open gs://%s/%s: %w", s.bucketName, name, err)
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("failed to download gs://%s/%s: %w", s.bucketName, name, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	if s == nil || s.storageClient == nil {
		return nil
	}
	return s.storageClient.Close()
}
