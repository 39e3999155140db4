package blobstore

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

// Handler serves objects held by a MemoryStore so that the URLs it hands
// out resolve in development. Requests carrying expires/signature are
// checked; unsigned requests are treated as public reads.
type Handler struct {
	store *MemoryStore
}

// NewHandler is for development only: unsigned reads are public, so signed
// URLs protect nothing here. config.Validate refuses the memory backend in
// production.
func NewHandler(store *MemoryStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts GET /:bucket/* on the supplied group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/:bucket/*", h.handleGet)
}

func (h *Handler) handleGet(c echo.Context) error {
	bucket := c.Param("bucket")
	path, err := url.PathUnescape(c.Param("*"))
	if err != nil || validPath(bucket, path) != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid object path")
	}

	if sig := c.QueryParam("signature"); sig != "" || c.QueryParam("expires") != "" {
		if !h.store.Verify(bucket, path, c.QueryParam("expires"), sig) {
			return echo.NewHTTPError(http.StatusForbidden, "signature invalid or expired")
		}
	}

	rc, obj, err := h.store.Get(c.Request().Context(), bucket, path)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()

	c.Response().Header().Set("Cache-Control", "private, no-store")
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, lastSegment(path)))
	ct := obj.ContentType
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, ct, rc)
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
