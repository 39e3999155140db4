package attachment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vetref/vetref/internal/platform/auth"
	"github.com/vetref/vetref/internal/platform/blobstore"
)

type part struct {
	name, contentType, content string
}

func multipartBody(t *testing.T, caseID string, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if caseID != "" {
		w.WriteField("case_id", caseID)
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, p.name))
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		pw.Write([]byte(p.content))
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func newUploadEcho(store blobstore.ObjectStore, actor auth.Actor) *echo.Echo {
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !actor.IsZero() {
				c.SetRequest(c.Request().WithContext(auth.WithActor(c.Request().Context(), actor)))
			}
			return next(c)
		}
	})
	NewHandler(NewUploader(store, zerolog.Nop())).RegisterRoutes(api)
	return e
}

func TestHandler_Upload(t *testing.T) {
	store := memStore()
	actor := auth.Actor{ID: uuid.New(), Roles: []string{auth.RoleReferringVet}}
	e := newUploadEcho(store, actor)

	body, ct := multipartBody(t, uuid.NewString(),
		part{"cbc.png", "image/png", "png"},
		part{"notes.pdf", "application/pdf", "pdf"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/blood-tests", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var batch Batch
	if err := json.Unmarshal(rec.Body.Bytes(), &batch); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(batch.Results) != 1 || !batch.Results[0].Success {
		t.Errorf("expected one successful upload, got %+v", batch.Results)
	}
	if len(batch.Rejected) != 1 || batch.Rejected[0].Name != "notes.pdf" {
		t.Errorf("expected notes.pdf rejected, got %+v", batch.Rejected)
	}
	if !OwnedBy(batch.Results[0].Path, actor.ID) {
		t.Errorf("expected path under actor, got %s", batch.Results[0].Path)
	}
}

func TestHandler_Upload_AllRejected(t *testing.T) {
	e := newUploadEcho(memStore(), auth.Actor{ID: uuid.New()})

	body, ct := multipartBody(t, "", part{"virus.exe", "application/x-msdownload", "MZ"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/medical-records", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestHandler_Upload_Errors(t *testing.T) {
	tests := []struct {
		name   string
		actor  auth.Actor
		path   string
		caseID string
		parts  []part
		want   int
	}{
		{"no actor", auth.Actor{}, "/api/v1/uploads/blood-tests", "", []part{{"a.png", "image/png", "x"}}, http.StatusUnauthorized},
		{"unknown bucket", auth.Actor{ID: uuid.New()}, "/api/v1/uploads/avatars", "", []part{{"a.png", "image/png", "x"}}, http.StatusNotFound},
		{"bad case id", auth.Actor{ID: uuid.New()}, "/api/v1/uploads/blood-tests", "case-1", []part{{"a.png", "image/png", "x"}}, http.StatusBadRequest},
		{"no files", auth.Actor{ID: uuid.New()}, "/api/v1/uploads/blood-tests", "", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newUploadEcho(memStore(), tt.actor)
			body, ct := multipartBody(t, tt.caseID, tt.parts...)
			req := httptest.NewRequest(http.MethodPost, tt.path, body)
			req.Header.Set(echo.HeaderContentType, ct)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_ListPolicies(t *testing.T) {
	e := newUploadEcho(memStore(), auth.Actor{ID: uuid.New()})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads/policies", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []policyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].MaxSizeLabel != "10 MB" || got[1].MaxSizeLabel != "50 MB" {
		t.Errorf("unexpected policies %+v", got)
	}
}

func TestHandler_Delete(t *testing.T) {
	store := memStore()
	owner := auth.Actor{ID: uuid.New()}
	u := NewUploader(store, zerolog.Nop())
	res := u.Upload(context.Background(), file("a.png", "image/png", "x"), "blood-tests", owner.ID, nil)

	other := newUploadEcho(store, auth.Actor{ID: uuid.New()})
	rec := httptest.NewRecorder()
	other.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/blood-tests/"+res.Path, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's file, got %d", rec.Code)
	}

	e := newUploadEcho(store, owner)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/blood-tests/"+res.Path, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/blood-tests/"+res.Path, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}
