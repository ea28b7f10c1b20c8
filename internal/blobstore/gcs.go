package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore issues V4 signed URLs against a Google Cloud Storage bucket.
// Credentials come from the ambient service account; the signed URL
// carries response-header overrides so the browser honours the requested
// disposition without the object metadata changing.
type GCSStore struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewGCSStore opens a storage client for the configured bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("blobstore: gcs bucket is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("blobstore: create gcs client: %w", err)
	}

	return &GCSStore{client: client, bucket: bucket, now: time.Now}, nil
}

// Presign returns a V4 signed GET URL for the object.
func (s *GCSStore) Presign(ctx context.Context, key string, opts PresignOptions) (string, error) {
	if key == "" {
		return "", errors.New("blobstore: storage key is required")
	}

	query := url.Values{}
	query.Set("response-content-disposition", ContentDisposition(opts.Disposition, opts.Filename))
	if opts.ContentType != "" {
		query.Set("response-content-type", opts.ContentType)
	}

	signed, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:          storage.SigningSchemeV4,
		Method:          http.MethodGet,
		Expires:         s.now().Add(ClampTTL(opts.TTL)),
		QueryParameters: query,
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: sign gcs url for %s: %w", key, err)
	}

	return signed, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
