package domain

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

type FileStatus string

const (
	StatusUploading FileStatus = "uploading"
	StatusUploaded  FileStatus = "uploaded"
	StatusFailed    FileStatus = "failed"
)

func (s FileStatus) Valid() bool {
	switch s {
	case StatusUploading, StatusUploaded, StatusFailed:
		return true
	}
	return false
}

// IsConfirmOutcome reports whether s may be sent to confirm an upload.
func (s FileStatus) IsConfirmOutcome() bool {
	return s == StatusUploaded || s == StatusFailed
}

type FileRecord struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name"`
	StoragePath string     `json:"storage_path"`
	SizeBytes   int64      `json:"size_bytes"`
	ContentType string     `json:"content_type"`
	Status      FileStatus `json:"status"`
	Deleted     bool       `json:"is_deleted"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StoragePath is the object key for a record. It is computed once at creation.
func StoragePath(ownerID, fileID, name string) string {
	return ownerID + "/" + fileID + "/" + name
}

type UploadGrant struct {
	FileID      string `json:"file_id"`
	UploadURL   string `json:"upload_url"`
	StoragePath string `json:"storage_path"`
}

type ConfirmResult struct {
	FileID string     `json:"file_id"`
	Status FileStatus `json:"status"`
}

type DownloadGrant struct {
	FileID      string `json:"file_id"`
	DownloadURL string `json:"download_url"`
	ExpiresIn   int    `json:"expires_in"`
}

type FileList struct {
	Files []FileRecord `json:"files"`
	Total int          `json:"total"`
	Skip  int          `json:"skip"`
	Limit int          `json:"limit"`
}

const (
	DefaultMaxFileSizeBytes int64 = 10 * 1024 * 1024
	MaxNameLength                 = 255
	DownloadURLTTL                = time.Hour
	DefaultPageLimit              = 20
	DefaultMaxPageLimit           = 100
)

var DefaultAllowedContentTypes = []string{
	"text/plain",
	"image/jpeg",
	"image/png",
	"application/json",
	"application/pdf",
}

type DeleteMode string

const (
	DeleteSoft DeleteMode = "soft"
	DeleteHard DeleteMode = "hard"
)

// Policy holds the upload rules and paging bounds.
type Policy struct {
	MaxFileSizeBytes    int64
	AllowedContentTypes []string
	DefaultPageLimit    int
	MaxPageLimit        int
	DeleteMode          DeleteMode
}

func DefaultPolicy() Policy {
	return Policy{
		MaxFileSizeBytes:    DefaultMaxFileSizeBytes,
		AllowedContentTypes: append([]string(nil), DefaultAllowedContentTypes...),
		DefaultPageLimit:    DefaultPageLimit,
		MaxPageLimit:        DefaultMaxPageLimit,
		DeleteMode:          DeleteSoft,
	}
}

func (p Policy) ValidateUpload(name string, sizeBytes int64, contentType string) error {
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxNameLength {
		return Validationf("name must be between 1 and %d characters", MaxNameLength)
	}
	if strings.TrimSpace(name) != name {
		return Validationf("name must not start or end with whitespace")
	}
	if strings.ContainsAny(name, "/\x00") {
		return Validationf("name must not contain '/' or NUL characters")
	}
	if sizeBytes <= 0 {
		return Validationf("size_bytes must be greater than zero")
	}
	if sizeBytes > p.MaxFileSizeBytes {
		return Validationf("file size (%d bytes) exceeds the maximum allowed size of %d bytes", sizeBytes, p.MaxFileSizeBytes)
	}
	if !slices.Contains(p.AllowedContentTypes, contentType) {
		return Validationf("unsupported content type %q; allowed: %s", contentType, strings.Join(p.AllowedContentTypes, ", "))
	}
	return nil
}

// PageWindow resolves a requested page. A zero limit means the default page size.
func (p Policy) PageWindow(skip, limit int) (int, int, error) {
	if skip < 0 {
		return 0, 0, Validationf("skip must be zero or greater")
	}
	if limit == 0 {
		limit = p.DefaultPageLimit
	}
	if limit < 1 || limit > p.MaxPageLimit {
		return 0, 0, Validationf("limit must be between 1 and %d", p.MaxPageLimit)
	}
	return skip, limit, nil
}
