package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// encodePNG renders a solid-ish test image with a gradient so JPEG encoding
// has something to chew on.
func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / width),
				G: uint8(y * 255 / height),
				B: 90,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestTransform_DownscalesWideImages(t *testing.T) {
	t.Parallel()

	tr := NewTransformer(Config{MaxWidth: 100, JPEGQuality: 85}, zap.NewNop())
	res := tr.Transform(encodePNG(t, 300, 150))

	require.True(t, res.Reencoded)
	require.Equal(t, "image/jpeg", res.ContentType)
	require.Equal(t, "jpg", res.Ext)

	w, h := decodeDims(t, res.Data)
	require.Equal(t, 100, w)
	require.InDelta(t, 50, h, 1, "aspect ratio preserved within 1px")
}

func TestTransform_NeverUpscalesNarrowImages(t *testing.T) {
	t.Parallel()

	tr := NewTransformer(Config{MaxWidth: 1920, JPEGQuality: 85}, zap.NewNop())
	res := tr.Transform(encodePNG(t, 640, 480))

	require.True(t, res.Reencoded)
	w, h := decodeDims(t, res.Data)
	require.Equal(t, 640, w)
	require.Equal(t, 480, h)
}

func TestTransform_ExactWidthIsLeftAlone(t *testing.T) {
	t.Parallel()

	tr := NewTransformer(Config{MaxWidth: 200, JPEGQuality: 85}, zap.NewNop())
	res := tr.Transform(encodePNG(t, 200, 120))

	w, _ := decodeDims(t, res.Data)
	require.Equal(t, 200, w)
}

func TestTransform_UndecodableBytesPassThrough(t *testing.T) {
	t.Parallel()

	junk := []byte("<html>this is definitely not an image payload</html>")
	tr := NewTransformer(Config{}, zap.NewNop())
	res := tr.Transform(junk)

	require.False(t, res.Reencoded)
	require.Equal(t, junk, res.Data)
	require.NotEqual(t, "image/jpeg", res.ContentType)
}

func TestTransform_SniffsPassthroughContentType(t *testing.T) {
	t.Parallel()

	// Truncated PNG header: sniffable as image/png but not decodable.
	data := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	tr := NewTransformer(Config{}, zap.NewNop())
	res := tr.Transform(data)

	require.False(t, res.Reencoded)
	require.Equal(t, "image/png", res.ContentType)
	require.Equal(t, "png", res.Ext)
}
