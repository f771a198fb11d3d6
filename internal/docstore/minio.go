package docstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ragportal/internal/util"
)

// Minio stages uploads in a MinIO/S3 bucket under <user-slug>/<filename>.
// Indexing jobs download the object to a temporary file before parsing.
type Minio struct {
	client *minio.Client
	bucket string
}

// MinioConfig configures the object-storage staging backend.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinio connects to MinIO and ensures the bucket exists.
func NewMinio(cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

func (m *Minio) key(user, filename string) string {
	return util.UserSlug(user) + "/" + SafeFilename(filename)
}

// Save uploads the staged object.
func (m *Minio) Save(ctx context.Context, user, filename string, r io.Reader, size int64) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.key(user, filename), r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Fetch downloads the staged object to a temporary file and returns its
// path. The cleanup removes the temporary copy.
func (m *Minio) Fetch(ctx context.Context, user, filename string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "ragportal-stage-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	path := filepath.Join(dir, SafeFilename(filename))
	if err := m.client.FGetObject(ctx, m.bucket, m.key(user, filename), path, minio.GetObjectOptions{}); err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, fmt.Errorf("get object: %w", err)
	}
	return path, func() { _ = os.RemoveAll(dir) }, nil
}

// Remove deletes the staged object.
func (m *Minio) Remove(ctx context.Context, user, filename string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, m.key(user, filename), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
