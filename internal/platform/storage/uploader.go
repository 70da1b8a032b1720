package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"

	"github.com/hanko-field/storefront/internal/services"
)

const defaultPublicBaseURL = "https://storage.googleapis.com"

var (
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
)

// Uploader writes return evidence images to a Cloud Storage bucket and reports their public URL.
type Uploader struct {
	bucket    string
	baseURL   string
	newWriter func(ctx context.Context, object, contentType string) io.WriteCloser
}

var _ services.EvidenceUploader = (*Uploader)(nil)

// NewUploader constructs an Uploader for bucket. publicBaseURL overrides the URL prefix, e.g. a CDN
// fronting the bucket; objects are then served at {publicBaseURL}/{object}.
func NewUploader(client *gcs.Client, bucket, publicBaseURL string) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	handle := client.Bucket(bucket)
	return &Uploader{
		bucket:  bucket,
		baseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		newWriter: func(ctx context.Context, object, contentType string) io.WriteCloser {
			w := handle.Object(object).NewWriter(ctx)
			w.ContentType = contentType
			w.CacheControl = "public, max-age=86400"
			return w
		},
	}, nil
}

// Upload stores data under object. The object is committed only when the writer closes cleanly.
func (u *Uploader) Upload(ctx context.Context, object, contentType string, data []byte) (string, error) {
	if u == nil || u.newWriter == nil {
		return "", errors.New("storage: uploader not initialised")
	}
	object = strings.TrimLeft(strings.TrimSpace(object), "/")
	if object == "" {
		return "", errInvalidObject
	}

	w := u.newWriter(ctx, object, contentType)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: commit %s: %w", object, err)
	}
	return u.PublicURL(object), nil
}

// PublicURL returns the address clients use to fetch object.
func (u *Uploader) PublicURL(object string) string {
	segments := strings.Split(object, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	escaped := strings.Join(segments, "/")
	if u.baseURL != "" {
		return u.baseURL + "/" + escaped
	}
	return defaultPublicBaseURL + "/" + u.bucket + "/" + escaped
}
