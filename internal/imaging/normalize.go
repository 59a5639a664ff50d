package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WEBP decoder
)

// DecodeError indicates the uploaded bytes could not be rasterized.
// It is surfaced distinctly so callers never proceed to request
// submission with a substituted default image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Normalized is the result of running an uploaded image through the
// intake pipeline: an opaque PNG re-encoding plus the canonical ratio
// bucket derived from the source dimensions.
type Normalized struct {
	PNG    []byte
	Width  int
	Height int
	Bucket RatioBucket
}

// MimeType returns the encoding of the normalized bytes.
func (n *Normalized) MimeType() string { return "image/png" }

// Normalize decodes raw image bytes, flattens any transparency onto a
// white background and re-encodes the result as PNG. The buffer is
// sized exactly to the source dimensions; no scaling happens here.
//
// Line-art exports commonly carry an alpha channel, and the image model
// expects opaque input, so the buffer is filled white before the source
// is composited over it.
func Normalize(raw []byte) (*Normalized, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 1 || h < 1 {
		return nil, &DecodeError{Err: fmt.Errorf("image has no pixels (%dx%d)", w, h)}
	}

	flat := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), src, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, flat); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	return &Normalized{
		PNG:    buf.Bytes(),
		Width:  w,
		Height: h,
		Bucket: ClassifyRatio(w, h),
	}, nil
}
