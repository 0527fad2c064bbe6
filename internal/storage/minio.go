package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"doc-intake-service/internal/config"
)

type MinIO struct {
	client *minio.Client
	bucket string
}

// NewMinIO connects to an S3-compatible endpoint and creates the bucket if missing.
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return &MinIO{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinIO) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = ContentTypeForKey(k)
	}
	_, err = m.client.PutObject(ctx, m.bucket, k, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", m.bucket, k), nil
}

func (m *MinIO) Download(ctx context.Context, key string) ([]byte, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, k, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.wrap("get object", k, err)
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.wrap("read object", k, err)
	}
	return b, nil
}

func (m *MinIO) GetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, k, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

func (m *MinIO) Delete(ctx context.Context, key string) (bool, error) {
	k, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	if _, err := m.client.StatObject(ctx, m.bucket, k, minio.StatObjectOptions{}); err != nil {
		if isMinIONotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, k, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("failed to delete from MinIO: %w", err)
	}
	return true, nil
}

func (m *MinIO) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	for info := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", info.Err)
		}
		out = append(out, Object{Key: info.Key, Size: info.Size, ModTime: info.LastModified})
	}
	return out, nil
}

func (m *MinIO) wrap(op, key string, err error) error {
	if isMinIONotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("minio %s %s: %w", op, key, err)
}

func isMinIONotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
