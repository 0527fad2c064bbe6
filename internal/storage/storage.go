// Package storage stores uploaded documents under opaque keys. The Local,
// MinIO and GCS variants are interchangeable behind Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"doc-intake-service/internal/config"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

type Storage interface {
	// Upload writes data under key and returns its location.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Download returns ErrNotFound when key does not exist.
	Download(ctx context.Context, key string) ([]byte, error)
	GetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Delete reports whether an object was removed. A missing key is not an error.
	Delete(ctx context.Context, key string) (bool, error)
}

type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Lister enumerates stored objects for the orphan sweep.
type Lister interface {
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Localizer is implemented by backends whose objects are already files on disk.
type Localizer interface {
	LocalPath(key string) (string, bool)
}

type Backend interface {
	Storage
	Lister
}

// New builds the backend selected by cfg.StorageType.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StorageType {
	case "local":
		return NewLocal(cfg.LocalStoragePath)
	case "minio":
		return NewMinIO(ctx, cfg.MinIO)
	case "gcs":
		return NewGCS(ctx, cfg.GCSBucket, cfg.GCSCredentials)
	default:
		return nil, &config.Error{Key: "STORAGE_TYPE", Reason: fmt.Sprintf("unknown storage type %q", cfg.StorageType)}
	}
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", ErrInvalidKey
	}
	c := path.Clean("/" + key)[1:]
	if c == "" || c != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return c, nil
}

// ContentTypeForKey guesses a MIME type from the key's extension.
func ContentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
