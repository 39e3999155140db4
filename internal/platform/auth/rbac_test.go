package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		allowed bool
	}{
		{"matching role", []string{RoleSpecialist}, true},
		{"admin bypass", []string{RoleAdmin}, true},
		{"other role", []string{RoleReferringVet}, false},
		{"no roles", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, tt.roles))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := RequireRole(RoleSpecialist)(okHandler)(c)
			if tt.allowed && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
			if !tt.allowed {
				httpErr, ok := err.(*echo.HTTPError)
				if !ok || httpErr.Code != http.StatusForbidden {
					t.Errorf("expected 403, got %v", err)
				}
			}
		})
	}
}

func TestRequireActor(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	err := RequireActor()(okHandler)(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithActor(req.Context(), Actor{ID: uuid.New()}))
	c = e.NewContext(req, httptest.NewRecorder())
	if err := RequireActor()(okHandler)(c); err != nil {
		t.Fatalf("expected actor to pass, got %v", err)
	}
}

func TestActorFromContext_RejectsNonUUIDSubject(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "dev-user")
	if _, err := ActorFromContext(ctx); err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
