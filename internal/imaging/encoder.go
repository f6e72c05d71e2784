// Package imaging turns raw RGB24 sensor frames into grayscale JPEG images.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/cjeanneret/scancam/internal/hw/camera"
)

var (
	ErrEncode      = errors.New("imaging: encode")
	ErrOutputWrite = errors.New("imaging: write output")
)

// EncodedImage is a finished single-channel JPEG. It is not modified after creation.
type EncodedImage struct {
	Data       []byte
	Resolution camera.Resolution
	Quality    int
	// Path is set when the image has been persisted.
	Path string
}

// Len returns the encoded size in bytes.
func (e *EncodedImage) Len() int {
	return len(e.Data)
}

// Contiguous returns f unchanged when its rows are packed, otherwise a packed copy.
// The luminance conversion indexes the buffer linearly and requires this.
func Contiguous(f *camera.Frame) *camera.Frame {
	if f.Contiguous() {
		return f
	}
	out := camera.NewFrame(f.Resolution)
	row := f.Width * 3
	for y := 0; y < f.Height; y++ {
		copy(out.Pix[y*row:(y+1)*row], f.Pix[y*f.Stride:y*f.Stride+row])
	}
	return out
}

// ToGray converts an RGB24 frame to 8-bit luminance using BT.601 weights,
// the same weights as image/color's Gray model.
func ToGray(f *camera.Frame) (*image.Gray, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	src := Contiguous(f)

	gray := image.NewGray(image.Rect(0, 0, src.Width, src.Height))
	pix := src.Pix
	for i := range gray.Pix {
		r := uint32(pix[3*i])
		g := uint32(pix[3*i+1])
		b := uint32(pix[3*i+2])
		gray.Pix[i] = uint8((299*r + 587*g + 114*b + 500) / 1000)
	}
	return gray, nil
}

// Compress encodes g as a baseline JPEG. Quality must be 0-100; 0 yields the
// encoder's lowest setting.
func Compress(g *image.Gray, quality int) (*EncodedImage, error) {
	if quality < 0 || quality > 100 {
		return nil, fmt.Errorf("%w: quality %d outside 0-100", ErrEncode, quality)
	}
	b := g.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrEncode)
	}

	q := max(quality, 1)
	var buf bytes.Buffer
	buf.Grow(b.Dx() * b.Dy() / 4)
	if err := jpeg.Encode(&buf, g, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return &EncodedImage{
		Data:       buf.Bytes(),
		Resolution: camera.Resolution{Width: b.Dx(), Height: b.Dy()},
		Quality:    quality,
	}, nil
}

// Encode is ToGray followed by Compress.
func Encode(f *camera.Frame, quality int) (*EncodedImage, error) {
	gray, err := ToGray(f)
	if err != nil {
		return nil, err
	}
	return Compress(gray, quality)
}
