package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bryan-buckman/podhost/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore stores blobs in a MinIO/S3-compatible bucket.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// Ensure MinioStore implements Store interface.
var _ Store = (*MinioStore)(nil)

// NewMinio creates a store from the storage configuration.
func NewMinio(cfg config.Storage) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("storage endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	return &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Put uploads a blob with a public-read ACL so podcast clients can fetch it
// directly.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		// Recognized amz header, forwarded as the canned ACL.
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes a blob.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ACL reports whether a stored blob is publicly readable.
func (s *MinioStore) ACL(ctx context.Context, key string) (string, error) {
	info, err := s.client.GetObjectACL(ctx, s.bucket, key)
	if err != nil {
		return "", fmt.Errorf("get acl %s: %w", key, err)
	}
	for _, grant := range info.Grant {
		if strings.HasSuffix(grant.Grantee.URI, "AllUsers") && grant.Permission == "READ" {
			return "public-read", nil
		}
	}
	return "private", nil
}

// URL returns the public URL for a key.
func (s *MinioStore) URL(key string) string {
	return s.baseURL + "/" + key
}
