// Package blobstore provides object storage for case attachments. It defines
// the ObjectStore interface, an in-memory implementation for development and
// tests, an S3 implementation, and an Echo handler that serves objects held
// by the in-memory store.
package blobstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")
	ErrInvalidPath    = errors.New("invalid object path")
)

// Object describes a stored object.
type Object struct {
	Bucket      string    `json:"bucket"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ObjectStore is the storage contract the uploader and the case document
// readers depend on. Put never overwrites: writing an existing path returns
// ErrObjectExists.
type ObjectStore interface {
	Put(ctx context.Context, bucket, path, contentType string, body io.Reader, size int64) (*Object, error)
	Get(ctx context.Context, bucket, path string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, bucket, path string) error
	PublicURL(bucket, path string) string
	SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

// validPath rejects empty keys and keys that could escape their prefix.
func validPath(bucket, path string) error {
	if bucket == "" || path == "" {
		return ErrInvalidPath
	}
	if strings.HasPrefix(path, "/") {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}

// escapePath escapes each path segment, keeping the separators.
func escapePath(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
