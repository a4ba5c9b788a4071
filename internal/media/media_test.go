package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/pinreport/internal/domain"
)

func newTestPreparer() (*Preparer, *PreviewRegistry) {
	reg := NewPreviewRegistry()
	return NewPreparer(reg, slog.New(slog.NewTextHandler(io.Discard, nil))), reg
}

func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrepare_CorruptInputReturnsOriginal(t *testing.T) {
	p, reg := newTestPreparer()
	in := domain.Blob{Filename: "broken.heic", ContentType: "image/heic", Data: []byte("definitely not an image")}

	out := p.Prepare(context.Background(), in)

	assert.Equal(t, in, out.Blob)
	assert.False(t, out.Compressed)
	assert.NotEmpty(t, out.PreviewURI)
	assert.Equal(t, 1, reg.Outstanding())
}

func TestPrepare_SmallImagePassesThrough(t *testing.T) {
	p, _ := newTestPreparer()
	data := gradientPNG(t, 200, 100)
	in := domain.Blob{Filename: "pothole.png", ContentType: "image/png", Data: data}

	out := p.Prepare(context.Background(), in)

	assert.Equal(t, in, out.Blob)
	assert.False(t, out.Compressed)
}

func TestPrepare_LargeImageIsResized(t *testing.T) {
	p, _ := newTestPreparer()
	in := domain.Blob{Filename: "flood.png", ContentType: "image/png", Data: gradientPNG(t, 3000, 2000)}

	out := p.Prepare(context.Background(), in)

	require.True(t, out.Compressed)
	assert.Equal(t, "flood.jpg", out.Blob.Filename)
	assert.Equal(t, "flood.png", out.OriginalFilename)
	assert.Equal(t, "flood.png", out.DisplayName())
	assert.Equal(t, "image/jpeg", out.Blob.ContentType)
	assert.LessOrEqual(t, len(out.Blob.Data), domain.MaxMediaBytes)

	img, err := imaging.Decode(bytes.NewReader(out.Blob.Data))
	require.NoError(t, err)
	assert.Equal(t, 1920, img.Bounds().Dx())
	assert.Equal(t, 1280, img.Bounds().Dy())
}

func TestPrepare_OverweightImageIsReencoded(t *testing.T) {
	p, _ := newTestPreparer()
	data := noisePNG(t, 400, 300)
	p.MaxBytes = len(data) - 1

	out := p.Prepare(context.Background(), domain.Blob{Filename: "a.png", ContentType: "image/png", Data: data})

	assert.True(t, out.Compressed)
	assert.Less(t, len(out.Blob.Data), len(data))
}

func TestJPEGName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"photo.png", "photo.jpg"},
		{"IMG_0001.JPEG", "IMG_0001.JPEG"},
		{"scan.jpg", "scan.jpg"},
		{"noext", "noext.jpg"},
		{"", "photo.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, jpegName(tt.in), tt.in)
	}
}

func TestPendingList_RevokesPreviews(t *testing.T) {
	reg := NewPreviewRegistry()
	list := NewPendingList(reg)

	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		b := domain.Blob{Filename: name, Data: []byte{1}}
		list.Add(domain.PreparedMedia{Blob: b, PreviewURI: reg.Create(b)})
	}
	require.Equal(t, 3, reg.Outstanding())

	require.NoError(t, list.Remove(1))
	assert.Equal(t, 2, list.Len())
	assert.Equal(t, 2, reg.Outstanding())
	assert.Equal(t, "c.jpg", list.Items()[1].Blob.Filename)

	assert.Error(t, list.Remove(5))
	assert.Error(t, list.Remove(-1))

	list.Clear()
	assert.Equal(t, 0, list.Len())
	assert.Equal(t, 0, reg.Outstanding())
}

func TestPreviewRegistry_RevokeUnknown(t *testing.T) {
	reg := NewPreviewRegistry()
	uri := reg.Create(domain.Blob{Data: []byte{1, 2}})

	assert.True(t, reg.Revoke(uri))
	assert.False(t, reg.Revoke(uri))
	assert.False(t, reg.Revoke("https://example.com/x.jpg"))
}
