// Package media prepares photos for upload and tracks their local previews.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/DukeRupert/pinreport/internal/domain"
	"github.com/DukeRupert/pinreport/internal/metrics"
)

// qualityLadder is tried in order until the encoded photo fits MaxBytes.
var qualityLadder = []int{85, 75, 65, 55, 45, 40}

// Preparer shrinks photos to upload limits. It never rejects a photo: if
// the image cannot be decoded or re-encoded the original bytes are used.
type Preparer struct {
	MaxBytes     int
	MaxDimension int

	previews *PreviewRegistry
	logger   *slog.Logger
}

// NewPreparer creates a Preparer with the default size limits.
func NewPreparer(previews *PreviewRegistry, logger *slog.Logger) *Preparer {
	return &Preparer{
		MaxBytes:     domain.MaxMediaBytes,
		MaxDimension: domain.MaxMediaDimension,
		previews:     previews,
		logger:       logger,
	}
}

// Prepare returns an uploadable copy of blob with a registered preview.
func (p *Preparer) Prepare(ctx context.Context, blob domain.Blob) domain.PreparedMedia {
	out, compressed, err := p.compress(ctx, blob)
	switch {
	case err != nil:
		p.logger.Warn("photo compression failed, using original",
			"filename", blob.Filename,
			"size", blob.Size(),
			"error", err,
		)
		metrics.MediaCompressions.WithLabelValues("fallback").Inc()
		out, compressed = blob, false
	case compressed:
		p.logger.Debug("photo compressed",
			"filename", blob.Filename,
			"original_size", blob.Size(),
			"compressed_size", out.Size(),
		)
		metrics.MediaCompressions.WithLabelValues("compressed").Inc()
	default:
		metrics.MediaCompressions.WithLabelValues("passthrough").Inc()
	}

	return domain.PreparedMedia{
		Blob:       out,
		PreviewURI: p.previews.Create(out),
		Compressed: compressed,

		OriginalFilename: blob.Filename,
	}
}

func (p *Preparer) compress(ctx context.Context, blob domain.Blob) (domain.Blob, bool, error) {
	img, err := imaging.Decode(bytes.NewReader(blob.Data), imaging.AutoOrientation(true))
	if err != nil {
		return blob, false, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	oversized := bounds.Dx() > p.MaxDimension || bounds.Dy() > p.MaxDimension
	if !oversized && len(blob.Data) <= p.MaxBytes {
		return blob, false, nil
	}

	if oversized {
		img = imaging.Fit(img, p.MaxDimension, p.MaxDimension, imaging.Lanczos)
	}

	data, err := p.encodeWithinLimit(ctx, img)
	if err != nil {
		return blob, false, err
	}

	return domain.Blob{
		Filename:    jpegName(blob.Filename),
		ContentType: "image/jpeg",
		Data:        data,
	}, true, nil
}

func (p *Preparer) encodeWithinLimit(ctx context.Context, img image.Image) ([]byte, error) {
	var smallest []byte
	for _, q := range qualityLadder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		if buf.Len() <= p.MaxBytes {
			return buf.Bytes(), nil
		}
		if smallest == nil || buf.Len() < len(smallest) {
			smallest = buf.Bytes()
		}
	}

	// Lowest quality still over the limit; the smaller file is still better
	// than the original.
	return smallest, nil
}

func jpegName(name string) string {
	if name == "" {
		return "photo.jpg"
	}
	ext := filepath.Ext(name)
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return name
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}
