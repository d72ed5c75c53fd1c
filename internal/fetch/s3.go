package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config addresses an S3-compatible endpoint. Empty keys mean anonymous
// access, which is enough for public buckets.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// StatusError carries the HTTP status an object store answered with.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string { return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err) }
func (e *StatusError) Unwrap() error { return e.Err }

// MinIOStore implements ObjectStore with minio-go.
type MinIOStore struct {
	client *minio.Client
}

// NewMinIOStore creates the client; no request is made until first use.
func NewMinIOStore(cfg S3Config) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &MinIOStore{client: client}, nil
}

func (m *MinIOStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, statusErr(err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, statusErr(err)
	}
	return obj, info.Size, nil
}

func (m *MinIOStore) StatObject(ctx context.Context, bucket, key string) (int64, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, statusErr(err)
	}
	return info.Size, nil
}

func statusErr(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 && resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Err: err}
	}
	return err
}
