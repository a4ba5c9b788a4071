package domain

// =============================================================================
// Media Constants
// =============================================================================

const (
	// MaxMediaBytes is the target upper bound for a prepared photo (1MB).
	MaxMediaBytes = 1024 * 1024

	// MaxMediaDimension is the maximum width or height of a prepared photo.
	MaxMediaDimension = 1920

	// CaptureJPEGQuality is the fixed quality used to encode a frozen
	// camera still.
	CaptureJPEGQuality = 92

	// MaxUploadSize caps a single photo accepted from a form before
	// preparation (20MB).
	MaxUploadSize = 20 * 1024 * 1024
)

// Blob is binary image data with its name and MIME type.
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size returns the blob size in bytes.
func (b Blob) Size() int64 {
	return int64(len(b.Data))
}

// PreparedMedia is a photo ready to upload, paired with a local preview
// reference that must be revoked when the item leaves the pending list.
type PreparedMedia struct {
	Blob       Blob
	PreviewURI string
	Compressed bool // False when the original was kept as-is or as a fallback

	// OriginalFilename is the name the reporter picked. Compression may
	// rename Blob to .jpg.
	OriginalFilename string
}

// DisplayName is the filename to show the reporter.
func (m PreparedMedia) DisplayName() string {
	if m.OriginalFilename != "" {
		return m.OriginalFilename
	}
	return m.Blob.Filename
}
