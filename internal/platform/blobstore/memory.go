package blobstore

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

type storedObject struct {
	object  Object
	content []byte
}

// MemoryStore is a thread-safe, in-memory ObjectStore for development and
// tests. URLs point at the Handler mounted under baseURL; signed URLs carry
// an HMAC over bucket, path and expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*storedObject
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewMemoryStore returns a store whose URLs are rooted at baseURL, e.g.
// "http://localhost:8000/storage". secret signs time-limited URLs.
func NewMemoryStore(baseURL string, secret []byte) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*storedObject),
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}
}

func key(bucket, path string) string { return bucket + "/" + path }

// Put reads the content, computes a SHA-256 hash and stores the object.
func (s *MemoryStore) Put(ctx context.Context, bucket, path, contentType string, body io.Reader, _ int64) (*Object, error) {
	if err := validPath(bucket, path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	h := sha256.Sum256(data)

	obj := Object{
		Bucket:      bucket,
		Path:        path,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hex.EncodeToString(h[:]),
		CreatedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key(bucket, path)]; ok {
		return nil, ErrObjectExists
	}
	s.objects[key(bucket, path)] = &storedObject{object: obj, content: data}

	out := obj
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, bucket, path string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key(bucket, path)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrObjectNotFound
	}

	meta := obj.object
	return io.NopCloser(bytes.NewReader(obj.content)), &meta, nil
}

func (s *MemoryStore) Delete(_ context.Context, bucket, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key(bucket, path)]; !ok {
		return ErrObjectNotFound
	}
	delete(s.objects, key(bucket, path))
	return nil
}

func (s *MemoryStore) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, bucket, escapePath(path))
}

func (s *MemoryStore) SignedURL(_ context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if err := validPath(bucket, path); err != nil {
		return "", err
	}
	s.mu.RLock()
	_, ok := s.objects[key(bucket, path)]
	s.mu.RUnlock()
	if !ok {
		return "", ErrObjectNotFound
	}

	expires := s.now().Add(ttl).Unix()
	return fmt.Sprintf("%s?expires=%d&signature=%s",
		s.PublicURL(bucket, path), expires, s.sign(bucket, path, expires)), nil
}

// Verify checks a signature produced by SignedURL and that it has not
// expired.
func (s *MemoryStore) Verify(bucket, path, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return false
	}
	want := s.sign(bucket, path, exp)
	return hmac.Equal([]byte(want), []byte(signature))
}

func (s *MemoryStore) sign(bucket, path string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", bucket, path, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
