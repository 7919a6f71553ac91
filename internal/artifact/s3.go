package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the connection settings for the release bundle bucket.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Validate checks the settings before a client is built.
func (c S3Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.AccessKey == "" {
		return errors.New("access key is required")
	}
	if c.SecretKey == "" {
		return errors.New("secret key is required")
	}
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// S3Mirror syncs releases from an S3-compatible bucket into a local
// ReleaseStore root before verification. Object keys mirror the store
// layout: {app_id}/{release_id}/{bundle.tar.gz,manifest.json,SHA256SUMS}.
type S3Mirror struct {
	client *minio.Client
	bucket string
	store  *ReleaseStore
}

// NewS3Mirror creates a mirror writing into the given local store.
func NewS3Mirror(cfg S3Config, local *ReleaseStore) (*S3Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &S3Mirror{client: client, bucket: cfg.Bucket, store: local}, nil
}

// EnsureLocal makes sure the release is present in the local store,
// downloading any missing files from the bucket. Already-present files are
// left alone; releases are immutable once published.
func (m *S3Mirror) EnsureLocal(ctx context.Context, appID, releaseID string) error {
	dir := m.store.releaseDir(appID, releaseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create release dir %s: %w", dir, err)
	}

	for _, name := range []string{manifestFileName, sumsFileName, bundleFileName} {
		local := filepath.Join(dir, name)
		if _, err := os.Stat(local); err == nil {
			continue
		}
		key := fmt.Sprintf("%s/%s/%s", appID, releaseID, name)
		if err := m.client.FGetObject(ctx, m.bucket, key, local, minio.GetObjectOptions{}); err != nil {
			resp := minio.ToErrorResponse(err)
			if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
				return fmt.Errorf("%w: s3://%s/%s", ErrBundleNotFound, m.bucket, key)
			}
			return fmt.Errorf("failed to fetch s3://%s/%s: %w", m.bucket, key, err)
		}
	}
	return nil
}
