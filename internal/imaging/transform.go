// Package imaging re-encodes downloaded images: downscaling to a width cap,
// normalizing to JPEG, and optionally overlaying a text watermark.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"net/http"

	// Register decoders for the formats candidates arrive in.
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"go.uber.org/zap"
)

// Config controls re-encoding.
type Config struct {
	// MaxWidth is the output width cap in pixels. Wider inputs are scaled
	// down preserving aspect ratio; narrower inputs are never upscaled.
	MaxWidth int
	// JPEGQuality is the encoder quality (1..100).
	JPEGQuality int
}

func (c Config) withDefaults() Config {
	if c.MaxWidth <= 0 {
		c.MaxWidth = 1920
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = 85
	}
	return c
}

// Result is the outcome of a transform. When Reencoded is false the input
// bytes were kept verbatim (decode or encode failed) and ContentType/Ext are
// sniffed from the payload.
type Result struct {
	Data        []byte
	ContentType string
	Ext         string
	Width       int
	Height      int
	Reencoded   bool
}

// Transformer decodes, resizes, and re-encodes image payloads.
type Transformer struct {
	cfg    Config
	logger *zap.Logger
}

// NewTransformer builds a Transformer.
func NewTransformer(cfg Config, logger *zap.Logger) *Transformer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{cfg: cfg.withDefaults(), logger: logger}
}

// Transform re-encodes data to JPEG, downscaling to the width cap first. It
// never fails: undecodable or unencodable payloads are passed through
// unmodified so an odd format does not cost the candidate.
func (t *Transformer) Transform(data []byte) Result {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.logger.Debug("decode failed, keeping original bytes", zap.Error(err))
		return passthrough(data)
	}

	img = t.downscale(img)
	bounds := img.Bounds()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: t.cfg.JPEGQuality}); err != nil {
		t.logger.Debug("encode failed, keeping original bytes",
			zap.String("format", format),
			zap.Error(err),
		)
		return passthrough(data)
	}

	return Result{
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
		Ext:         "jpg",
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Reencoded:   true,
	}
}

// downscale shrinks img to the width cap preserving aspect ratio. Narrower
// images are returned untouched.
func (t *Transformer) downscale(img image.Image) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= t.cfg.MaxWidth {
		return img
	}
	ratio := float64(t.cfg.MaxWidth) / float64(bounds.Dx())
	height := int(float64(bounds.Dy())*ratio + 0.5)
	if height < 1 {
		height = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, t.cfg.MaxWidth, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

func passthrough(data []byte) Result {
	contentType := http.DetectContentType(data)
	return Result{
		Data:        data,
		ContentType: contentType,
		Ext:         extForContentType(contentType),
	}
}

func extForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/bmp":
		return "bmp"
	default:
		return "bin"
	}
}

// String implements fmt.Stringer for log readability.
func (r Result) String() string {
	return fmt.Sprintf("%dx%d %s (%d bytes, reencoded=%t)", r.Width, r.Height, r.ContentType, len(r.Data), r.Reencoded)
}
