package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	fallbackBodyLimit   = 1 << 20
	fallbackUploadLimit = 256 << 20
)

// BodyLimit caps request bodies. Multipart requests carry case files and are
// held to uploadLimit; everything else is held to defaultLimit. Sizes that do
// not parse fall back to 1M and 256M.
func BodyLimit(defaultLimit, uploadLimit string) echo.MiddlewareFunc {
	jsonMax := sizeOr(defaultLimit, fallbackBodyLimit)
	uploadMax := sizeOr(uploadLimit, fallbackUploadLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := jsonMax
			if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
				limit = uploadMax
			}
			if req.ContentLength > limit {
				return tooLarge(limit)
			}

			req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)
			err := next(c)
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return tooLarge(limit)
			}
			return err
		}
	}
}

func tooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit))
}

// ParseSize converts "512K", "10M", "1GB" or a plain byte count to bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")

	var shift uint
	switch {
	case strings.HasSuffix(s, "K"):
		shift = 10
	case strings.HasSuffix(s, "M"):
		shift = 20
	case strings.HasSuffix(s, "G"):
		shift = 30
	}
	if shift > 0 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n << shift, nil
}

func sizeOr(s string, fallback int64) int64 {
	if n, err := ParseSize(s); err == nil {
		return n
	}
	return fallback
}
