package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectContentType picks a MIME type: the provided one, else by file
// extension, else by sniffing data, else application/octet-stream.
func DetectContentType(providedType, filename string, data io.Reader) string {
	if providedType != "" {
		return providedType
	}

	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}

	if data != nil {
		buf := make([]byte, 512)
		n, err := io.ReadFull(data, buf)
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return http.DetectContentType(buf[:n])
		}
	}

	return "application/octet-stream"
}

// allowedPhotoTypes are the formats accepted as report photos.
var allowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/heic": true,
	"image/heif": true,
}

// IsAllowedImageType reports whether contentType is an accepted photo format.
// Parameters such as charset are ignored.
func IsAllowedImageType(contentType string) bool {
	base, _, _ := strings.Cut(contentType, ";")
	return allowedPhotoTypes[strings.TrimSpace(strings.ToLower(base))]
}
