package attachment

import (
	"fmt"
	"math"
	"strconv"
)

// Category tags a linked case document with the policy it was accepted
// under.
type Category string

const (
	CategoryBloodTest     Category = "blood_test_image"
	CategoryMedicalRecord Category = "medical_record"
)

const mb = 1024 * 1024

// Policy is the acceptance rule for one category of attachment. Validation
// trusts the declared MIME type and never inspects file contents.
type Policy struct {
	Category     Category
	Bucket       string
	MaxSize      int64
	AllowedTypes []string
	Description  string
}

var imageTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/heic",
	"image/webp",
}

var BloodTests = Policy{
	Category:     CategoryBloodTest,
	Bucket:       "blood-tests",
	MaxSize:      10 * mb,
	AllowedTypes: imageTypes,
	Description:  "Blood test images (JPEG, PNG, GIF, BMP, TIFF, HEIC, WEBP)",
}

var MedicalRecords = Policy{
	Category: CategoryMedicalRecord,
	Bucket:   "medical-records",
	MaxSize:  50 * mb,
	AllowedTypes: concat(
		[]string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"text/plain",
			"application/rtf",
			"application/vnd.oasis.opendocument.text",
		},
		imageTypes,
		[]string{
			"video/mp4",
			"video/quicktime",
			"video/avi",
			"video/x-msvideo",
			"video/x-ms-wmv",
			"video/x-matroska",
			"video/webm",
		},
	),
	Description: "Documents, images, and videos (PDF, DOC, DOCX, TXT, RTF, ODT, JPEG, PNG, MP4, MOV, AVI, etc.)",
}

// Policies lists every known policy.
var Policies = []Policy{BloodTests, MedicalRecords}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// PolicyForBucket returns the policy whose bucket is name.
func PolicyForBucket(name string) (Policy, bool) {
	for _, p := range Policies {
		if p.Bucket == name {
			return p, true
		}
	}
	return Policy{}, false
}

// PolicyFor returns the policy for a category.
func PolicyFor(c Category) (Policy, bool) {
	for _, p := range Policies {
		if p.Category == c {
			return p, true
		}
	}
	return Policy{}, false
}

// FileInfo is what the validator looks at: the declared name, MIME type and
// size.
type FileInfo struct {
	Name        string
	ContentType string
	Size        int64
}

type Validation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Allows reports whether contentType is in the allowed set. The match is
// exact.
func (p Policy) Allows(contentType string) bool {
	for _, t := range p.AllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// Validate checks size first, then type.
func (p Policy) Validate(f FileInfo) Validation {
	if f.Size > p.MaxSize {
		return Validation{Reason: fmt.Sprintf(
			"File size must be less than %dMB. Current size: %sMB",
			int64(math.Round(float64(p.MaxSize)/mb)), oneDecimal(float64(f.Size)/mb),
		)}
	}
	if !p.Allows(f.ContentType) {
		return Validation{Reason: fmt.Sprintf(
			"File type %q is not supported. Allowed types: %s", f.ContentType, p.Description,
		)}
	}
	return Validation{Valid: true}
}

// oneDecimal rounds to one decimal place and drops a trailing ".0".
func oneDecimal(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}
