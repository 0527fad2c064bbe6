package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCS struct {
	client *gcs.Client
	bucket string
}

// NewGCS opens a Cloud Storage client. creds may be a file path or inline JSON;
// empty falls back to application default credentials.
func NewGCS(ctx context.Context, bucket, creds string) (*GCS, error) {
	opts := GoogleClientOptions(creds)
	opts = append(opts, option.WithScopes(gcs.ScopeReadWrite))
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// GoogleClientOptions builds Google API client options from a credentials file path
// or inline JSON.
func GoogleClientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(k).NewWriter(ctx)
	if contentType == "" {
		contentType = ContentTypeForKey(k)
	}
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, k), nil
}

func (g *GCS) Download(ctx context.Context, key string) ([]byte, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := g.client.Bucket(g.bucket).Object(k).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %q: %w", k, err)
	}
	return b, nil
}

func (g *GCS) GetURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	u, err := g.client.Bucket(g.bucket).SignedURL(k, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign GCS url: %w", err)
	}
	return u, nil
}

func (g *GCS) Delete(ctx context.Context, key string) (bool, error) {
	k, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err = g.client.Bucket(g.bucket).Object(k).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", k, g.bucket, err)
	}
	return true, nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]Object, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var out []Object
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		out = append(out, Object{Key: attrs.Name, Size: attrs.Size, ModTime: attrs.Updated})
	}
	return out, nil
}
