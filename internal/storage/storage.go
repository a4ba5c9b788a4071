// Package storage persists report photos in an object store.
//
// Two backends implement Storage: LocalStorage writes to disk for
// development, R2Storage talks to Cloudflare R2 through the S3 API.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage is an object store addressed by slash-separated keys.
type Storage interface {
	// Put stores data at key. Unless opts.Overwrite is set an existing key
	// yields ErrKeyExists.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// URL returns an address for key. With expires == 0 a permanent public
	// URL is returned when the backend has one.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// PutOptions configures a single Put.
type PutOptions struct {
	ContentType string
	MaxSize     int64 // 0 means unlimited
	Overwrite   bool
	Public      bool
}

// =============================================================================
// Configuration Types
// =============================================================================

const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

type LocalConfig struct {
	BasePath string // e.g. "./storage"
	BaseURL  string // e.g. "http://localhost:8080/files"
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string // custom domain; presigned URLs are used when empty
	Region          string // defaults to "auto"
}

// =============================================================================
// Report Media Keys
// =============================================================================

// MediaKey builds the object key for a report photo:
// {reporterID}/{reportID}/{unix millis}-{filename}.
func MediaKey(reporterID, reportID uuid.UUID, at time.Time, filename string) string {
	return fmt.Sprintf("%s/%s/%d-%s", reporterID, reportID, at.UnixMilli(), sanitizeFilename(filename))
}

// sanitizeFilename keeps a filename safe to embed in a key: no directory
// parts, no path traversal, only letters, digits, '.', '-' and '_'.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimLeft(name, ".")

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		case unicode.IsSpace(r):
			return '_'
		}
		return -1
	}, name)

	if cleaned == "" || cleaned == "." {
		return "photo"
	}
	return cleaned
}

// =============================================================================
// Uploader
// =============================================================================

// Uploader stores prepared report photos publicly and hands back their URL.
type Uploader struct {
	store   Storage
	maxSize int64
}

// NewUploader wraps store. maxSize bounds a single object; 0 disables the
// check.
func NewUploader(store Storage, maxSize int64) *Uploader {
	return &Uploader{store: store, maxSize: maxSize}
}

// Upload stores data at key and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	opts := PutOptions{
		ContentType: DetectContentType(contentType, key, nil),
		MaxSize:     u.maxSize,
		Public:      true,
	}
	if err := u.store.Put(ctx, key, bytes.NewReader(data), opts); err != nil {
		return "", err
	}
	return u.store.URL(ctx, key, 0)
}

// Delete removes an uploaded object.
func (u *Uploader) Delete(ctx context.Context, key string) error {
	return u.store.Delete(ctx, key)
}
