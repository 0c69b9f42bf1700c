package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	watermarkFont     *opentype.Font
	watermarkFontErr  error
	watermarkFontOnce sync.Once
)

func loadWatermarkFont() (*opentype.Font, error) {
	watermarkFontOnce.Do(func() {
		watermarkFont, watermarkFontErr = opentype.Parse(goregular.TTF)
	})
	if watermarkFontErr != nil {
		return nil, fmt.Errorf("parse watermark font: %w", watermarkFontErr)
	}
	return watermarkFont, nil
}

// Watermark overlays text at five fixed anchors (corners plus center) with a
// semi-transparent fill and a dark outline, then re-encodes to JPEG. The
// font size scales with the image width, floored at 20px. Callers should
// fall back to the input bytes when an error is returned.
func (t *Transformer) Watermark(data []byte, text string) ([]byte, error) {
	if text == "" {
		return data, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for watermark: %w", err)
	}

	bounds := src.Bounds()
	canvas := image.NewNRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	size := bounds.Dx() / 25
	if size < 20 {
		size = 20
	}

	fnt, err := loadWatermarkFont()
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build watermark face: %w", err)
	}
	defer face.Close()

	for _, at := range anchorPoints(bounds, face, text, size) {
		drawOutlinedText(canvas, face, text, at, size)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: t.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode watermarked image: %w", err)
	}
	return buf.Bytes(), nil
}

// anchorPoints returns the text baseline origins for the five anchors.
func anchorPoints(bounds image.Rectangle, face font.Face, text string, size int) []fixed.Point26_6 {
	margin := size / 2
	if margin < 8 {
		margin = 8
	}
	textWidth := font.MeasureString(face, text).Ceil()
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	descent := metrics.Descent.Ceil()

	w, h := bounds.Dx(), bounds.Dy()
	left := bounds.Min.X + margin
	right := bounds.Min.X + w - margin - textWidth
	top := bounds.Min.Y + margin + ascent
	bottom := bounds.Min.Y + h - margin - descent
	centerX := bounds.Min.X + (w-textWidth)/2
	centerY := bounds.Min.Y + (h+ascent)/2

	return []fixed.Point26_6{
		fixed.P(left, top),
		fixed.P(right, top),
		fixed.P(centerX, centerY),
		fixed.P(left, bottom),
		fixed.P(right, bottom),
	}
}

// drawOutlinedText draws text with a dark outline under a semi-transparent
// light fill so the mark stays legible on any background.
func drawOutlinedText(dst draw.Image, face font.Face, text string, at fixed.Point26_6, size int) {
	stroke := size / 16
	if stroke < 1 {
		stroke = 1
	}
	outline := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{R: 0, G: 0, B: 0, A: 220}),
		Face: face,
	}
	for dx := -stroke; dx <= stroke; dx += stroke {
		for dy := -stroke; dy <= stroke; dy += stroke {
			if dx == 0 && dy == 0 {
				continue
			}
			outline.Dot = fixed.Point26_6{
				X: at.X + fixed.I(dx),
				Y: at.Y + fixed.I(dy),
			}
			outline.DrawString(text)
		}
	}

	fill := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 170}),
		Face: face,
		Dot:  at,
	}
	fill.DrawString(text)
}
