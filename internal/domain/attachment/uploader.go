package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetref/vetref/internal/platform/blobstore"
)

// File is one candidate upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (f File) Info() FileInfo {
	return FileInfo{Name: f.Name, ContentType: f.ContentType, Size: f.Size}
}

// Result is the outcome of one upload attempt. URL and Path are set iff
// Success; Error is set iff not.
type Result struct {
	Success     bool   `json:"success"`
	URL         string `json:"url,omitempty"`
	Path        string `json:"path,omitempty"`
	Bucket      string `json:"bucket,omitempty"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	Error       string `json:"error,omitempty"`
}

// ProgressFunc is called after each file of a batch with the number of files
// finished so far and the batch size.
type ProgressFunc func(completed, total int)

// Batch is the outcome of ValidateAndUpload. Rejected files failed policy
// validation and were never sent to storage.
type Batch struct {
	Results  []Result `json:"results"`
	Rejected []Result `json:"rejected"`
}

// Successful returns the uploads that succeeded, in order.
func (b Batch) Successful() []Result {
	var out []Result
	for _, r := range b.Results {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

// Failed counts rejected files plus failed uploads.
func (b Batch) Failed() int {
	n := len(b.Rejected)
	for _, r := range b.Results {
		if !r.Success {
			n++
		}
	}
	return n
}

// Uploader writes attachments to object storage. It never returns an error
// for a single file: every failure, including a panic inside the store, is
// turned into a failed Result.
type Uploader struct {
	store  blobstore.ObjectStore
	logger zerolog.Logger
	now    func() time.Time
	suffix func() string
}

func NewUploader(store blobstore.ObjectStore, logger zerolog.Logger) *Uploader {
	return &Uploader{
		store:  store,
		logger: logger,
		now:    time.Now,
		suffix: randomSuffix,
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// CleanFileName replaces every character outside [a-zA-Z0-9.-] with "_", so
// a user-supplied name cannot add path segments.
func CleanFileName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// FilePath builds {owner}/{case}/{unixMillis}_{suffix}_{clean name}; the
// case segment is left out when caseID is nil.
func (u *Uploader) FilePath(ownerID uuid.UUID, name string, caseID *uuid.UUID) string {
	leaf := fmt.Sprintf("%d_%s_%s", u.now().UnixMilli(), u.suffix(), CleanFileName(name))
	if caseID != nil {
		return fmt.Sprintf("%s/%s/%s", ownerID, *caseID, leaf)
	}
	return fmt.Sprintf("%s/%s", ownerID, leaf)
}

// Upload stores one file. Existing objects are never overwritten.
func (u *Uploader) Upload(ctx context.Context, f File, bucket string, ownerID uuid.UUID, caseID *uuid.UUID) (res Result) {
	if ownerID == uuid.Nil || f.Name == "" || bucket == "" {
		owner := ""
		if ownerID != uuid.Nil {
			owner = ownerID.String()
		}
		return Result{
			Name:  f.Name,
			Size:  f.Size,
			Error: fmt.Sprintf("Invalid parameters: userId=%s, fileName=%s, bucket=%s", owner, f.Name, bucket),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			u.logger.Error().Str("bucket", bucket).Str("file", f.Name).Interface("panic", r).Msg("upload panicked")
			res = Result{Name: f.Name, Size: f.Size, Error: fmt.Sprintf("Upload failed: %v", r)}
		}
	}()

	path := u.FilePath(ownerID, f.Name, caseID)
	obj, err := u.store.Put(ctx, bucket, path, f.ContentType, f.Body, f.Size)
	if err != nil {
		u.logger.Warn().Err(err).Str("bucket", bucket).Str("path", path).Msg("upload failed")
		return Result{Name: f.Name, Size: f.Size, Error: fmt.Sprintf("Upload failed: %s", err)}
	}

	size := f.Size
	if obj.Size > 0 {
		size = obj.Size
	}
	return Result{
		Success:     true,
		URL:         u.store.PublicURL(bucket, path),
		Path:        path,
		Bucket:      bucket,
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        size,
	}
}

// UploadMany uploads files one after another, reporting progress after
// each. A failure never stops the batch; the returned slice always has one
// Result per input file.
func (u *Uploader) UploadMany(ctx context.Context, files []File, bucket string, ownerID uuid.UUID, caseID *uuid.UUID, onProgress ProgressFunc) []Result {
	results := make([]Result, 0, len(files))
	for i, f := range files {
		results = append(results, u.Upload(ctx, f, bucket, ownerID, caseID))
		if onProgress != nil {
			onProgress(i+1, len(files))
		}
	}
	return results
}

// ValidateAndUpload checks each file against p and uploads only the ones
// that pass. Progress counts the accepted files.
func (u *Uploader) ValidateAndUpload(ctx context.Context, p Policy, files []File, ownerID uuid.UUID, caseID *uuid.UUID, onProgress ProgressFunc) Batch {
	var accepted []File
	batch := Batch{Results: []Result{}, Rejected: []Result{}}
	for _, f := range files {
		if v := p.Validate(f.Info()); !v.Valid {
			batch.Rejected = append(batch.Rejected, Result{Name: f.Name, ContentType: f.ContentType, Size: f.Size, Error: v.Reason})
			continue
		}
		accepted = append(accepted, f)
	}
	batch.Results = append(batch.Results, u.UploadMany(ctx, accepted, p.Bucket, ownerID, caseID, onProgress)...)
	return batch
}

var ErrForbiddenPath = errors.New("path does not belong to the caller")

// Delete removes a stored file.
func (u *Uploader) Delete(ctx context.Context, bucket, path string) error {
	if err := u.store.Delete(ctx, bucket, path); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, path, err)
	}
	return nil
}

// OwnedBy reports whether path was generated for ownerID.
func OwnedBy(path string, ownerID uuid.UUID) bool {
	return strings.HasPrefix(path, ownerID.String()+"/")
}
