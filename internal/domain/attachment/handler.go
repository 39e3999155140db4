package attachment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vetref/vetref/internal/platform/auth"
	"github.com/vetref/vetref/internal/platform/blobstore"
)

type Handler struct {
	uploader *Uploader
}

func NewHandler(uploader *Uploader) *Handler {
	return &Handler{uploader: uploader}
}

// RegisterRoutes mounts the upload endpoints. :bucket is a policy bucket
// name ("blood-tests" or "medical-records").
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/uploads", auth.RequireActor())
	g.GET("/policies", h.ListPolicies)
	g.POST("/:bucket", h.Upload)
	g.DELETE("/:bucket/*", h.Delete)
}

type policyResponse struct {
	Category     Category `json:"category"`
	Bucket       string   `json:"bucket"`
	MaxSize      int64    `json:"max_size"`
	MaxSizeLabel string   `json:"max_size_label"`
	AllowedTypes []string `json:"allowed_types"`
	Description  string   `json:"description"`
}

func (h *Handler) ListPolicies(c echo.Context) error {
	out := make([]policyResponse, 0, len(Policies))
	for _, p := range Policies {
		out = append(out, policyResponse{
			Category:     p.Category,
			Bucket:       p.Bucket,
			MaxSize:      p.MaxSize,
			MaxSizeLabel: FormatFileSize(p.MaxSize),
			AllowedTypes: p.AllowedTypes,
			Description:  p.Description,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// Upload accepts multipart form field "files" (repeated) and an optional
// "case_id". Files failing the bucket's policy are reported under
// "rejected" without being stored. Responds 201 when at least one file was
// stored, 422 otherwise.
func (h *Handler) Upload(c echo.Context) error {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	policy, ok := PolicyForBucket(c.Param("bucket"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown upload category")
	}

	var caseID *uuid.UUID
	if v := c.FormValue("case_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid case_id")
		}
		caseID = &id
	}

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one file is required")
	}

	files := make([]File, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed to read uploaded file")
		}
		defer src.Close()
		files = append(files, File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        src,
		})
	}

	batch := h.uploader.ValidateAndUpload(c.Request().Context(), policy, files, actor.ID, caseID, nil)
	status := http.StatusCreated
	if len(batch.Successful()) == 0 {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, batch)
}

// Delete removes one of the caller's own files. Admins may remove any file.
func (h *Handler) Delete(c echo.Context) error {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	policy, ok := PolicyForBucket(c.Param("bucket"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown upload category")
	}
	path := c.Param("*")
	if !OwnedBy(path, actor.ID) && !actor.HasRole(auth.RoleAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, ErrForbiddenPath.Error())
	}

	if err := h.uploader.Delete(c.Request().Context(), policy.Bucket, path); err != nil {
		if errors.Is(err, blobstore.ErrObjectNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
