package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore("http://localhost:8000/storage", []byte("test-secret"))
}

func seedObject(t *testing.T, s ObjectStore, bucket, path, content string) *Object {
	t.Helper()
	obj, err := s.Put(context.Background(), bucket, path, "image/png", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("seedObject: %v", err)
	}
	return obj
}

func TestMemoryStore_Put(t *testing.T) {
	store := newTestStore()
	content := "png bytes"

	obj := seedObject(t, store, "blood-tests", "user-1/case-1/1_abc123_cbc.png", content)

	if obj.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), obj.Size)
	}
	wantHash := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
	if obj.Hash != wantHash {
		t.Errorf("expected hash %s, got %s", wantHash, obj.Hash)
	}
	if obj.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 object, got %d", store.Len())
	}
}

func TestMemoryStore_PutNeverOverwrites(t *testing.T) {
	store := newTestStore()
	seedObject(t, store, "blood-tests", "u/a.png", "first")

	_, err := store.Put(context.Background(), "blood-tests", "u/a.png", "image/png", strings.NewReader("second"), 6)
	if !errors.Is(err, ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}

	rc, _, err := store.Get(context.Background(), "blood-tests", "u/a.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "first" {
		t.Errorf("expected original content, got %q", data)
	}
}

func TestMemoryStore_PutRejectsBadPaths(t *testing.T) {
	store := newTestStore()
	tests := []struct {
		name   string
		bucket string
		path   string
	}{
		{"empty bucket", "", "u/a.png"},
		{"empty path", "blood-tests", ""},
		{"absolute", "blood-tests", "/etc/passwd"},
		{"traversal", "blood-tests", "u/../../a.png"},
		{"empty segment", "blood-tests", "u//a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Put(context.Background(), tt.bucket, tt.path, "image/png", strings.NewReader("x"), 1)
			if !errors.Is(err, ErrInvalidPath) {
				t.Errorf("expected ErrInvalidPath, got %v", err)
			}
		})
	}
}

func TestMemoryStore_PutCancelledContext(t *testing.T) {
	store := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Put(ctx, "blood-tests", "u/a.png", "image/png", strings.NewReader("x"), 1); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := newTestStore()
	if _, _, err := store.Get(context.Background(), "blood-tests", "missing.png"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := newTestStore()
	seedObject(t, store, "medical-records", "u/report.pdf", "pdf")

	if err := store.Delete(context.Background(), "medical-records", "u/report.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(context.Background(), "medical-records", "u/report.pdf"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound on second delete, got %v", err)
	}
}

func TestMemoryStore_PublicURL(t *testing.T) {
	store := newTestStore()
	got := store.PublicURL("blood-tests", "u/c/1_abc_my file.png")
	want := "http://localhost:8000/storage/blood-tests/u/c/1_abc_my%20file.png"
	if got != want {
		t.Errorf("PublicURL = %s, want %s", got, want)
	}
}

func TestMemoryStore_SignedURL(t *testing.T) {
	store := newTestStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	seedObject(t, store, "medical-records", "u/c/report.pdf", "pdf")

	raw, err := store.SignedURL(context.Background(), "medical-records", "u/c/report.pdf", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("expires") != fmt.Sprint(now.Add(time.Hour).Unix()) {
		t.Errorf("unexpected expires %s", q.Get("expires"))
	}
	if !store.Verify("medical-records", "u/c/report.pdf", q.Get("expires"), q.Get("signature")) {
		t.Error("expected signature to verify")
	}
	if store.Verify("medical-records", "u/c/other.pdf", q.Get("expires"), q.Get("signature")) {
		t.Error("signature must be bound to the path")
	}

	now = now.Add(2 * time.Hour)
	if store.Verify("medical-records", "u/c/report.pdf", q.Get("expires"), q.Get("signature")) {
		t.Error("expected expired signature to fail")
	}
}

func TestMemoryStore_SignedURLMissingObject(t *testing.T) {
	store := newTestStore()
	if _, err := store.SignedURL(context.Background(), "blood-tests", "nope.png", time.Hour); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryStore_ConcurrentPuts(t *testing.T) {
	store := newTestStore()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Put(context.Background(), "blood-tests", "u/same.png", "image/png", strings.NewReader("x"), 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrObjectExists) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful put, got %d", ok)
	}
}

func serve(t *testing.T, store *MemoryStore, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	NewHandler(store).RegisterRoutes(e.Group("/storage"))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ServesPublicObject(t *testing.T) {
	store := newTestStore()
	seedObject(t, store, "blood-tests", "u/c/cbc.png", "image-bytes")

	rec := serve(t, store, "/storage/blood-tests/u/c/cbc.png")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "image-bytes" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("unexpected content type %s", rec.Header().Get("Content-Type"))
	}
}

func TestHandler_ServesSignedObject(t *testing.T) {
	store := newTestStore()
	seedObject(t, store, "medical-records", "u/c/report.pdf", "pdf")

	raw, err := store.SignedURL(context.Background(), "medical-records", "u/c/report.pdf", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	u, _ := url.Parse(raw)

	rec := serve(t, store, u.RequestURI())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_RejectsTamperedSignature(t *testing.T) {
	store := newTestStore()
	seedObject(t, store, "medical-records", "u/c/report.pdf", "pdf")

	rec := serve(t, store, "/storage/medical-records/u/c/report.pdf?expires=9999999999&signature=deadbeef")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandler_NotFound(t *testing.T) {
	rec := serve(t, newTestStore(), "/storage/blood-tests/u/missing.png")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
