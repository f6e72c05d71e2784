package camera

import (
	"errors"
	"fmt"
)

// Capture stage failures. AcquireFrame wraps every device error with one of
// these so callers can tell where the session broke down.
var (
	ErrDeviceOpen      = errors.New("camera: open device")
	ErrDeviceConfigure = errors.New("camera: configure device")
	ErrDeviceStart     = errors.New("camera: start streaming")
	ErrFrameRead       = errors.New("camera: read frame")
)

// PixelFormat identifies a sensor output layout.
type PixelFormat int

const (
	// PixelFormatRGB24 is packed 8-bit R, G, B per pixel, no padding between pixels.
	PixelFormatRGB24 PixelFormat = iota + 1
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGB24:
		return "RGB24"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(p))
	}
}

// BytesPerPixel returns the packed size of one pixel.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatRGB24:
		return 3
	default:
		return 0
	}
}

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Frame is one raw RGB24 image read from the sensor.
// Row y starts at Pix[y*Stride]; Stride may exceed Width*3 when the driver pads rows.
type Frame struct {
	Resolution
	Stride int
	Pix    []byte
}

// NewFrame allocates a packed RGB24 frame.
func NewFrame(res Resolution) *Frame {
	stride := res.Width * PixelFormatRGB24.BytesPerPixel()
	return &Frame{
		Resolution: res,
		Stride:     stride,
		Pix:        make([]byte, stride*res.Height),
	}
}

// Contiguous reports whether rows are packed back to back with no padding
// and the buffer holds exactly Width*Height pixels.
func (f *Frame) Contiguous() bool {
	return f.Stride == f.Width*3 && len(f.Pix) == f.Stride*f.Height
}

// Validate checks that the buffer is large enough for the declared geometry.
func (f *Frame) Validate() error {
	if !f.Resolution.Valid() {
		return fmt.Errorf("invalid frame size %s", f.Resolution)
	}
	if f.Stride < f.Width*3 {
		return fmt.Errorf("stride %d shorter than row of %d pixels", f.Stride, f.Width)
	}
	if need := f.Stride*(f.Height-1) + f.Width*3; len(f.Pix) < need {
		return fmt.Errorf("buffer holds %d bytes, %s frame needs %d", len(f.Pix), f.Resolution, need)
	}
	return nil
}

// Device is the single physical camera. Open hands out exclusive control;
// callers must serialize Open through Close themselves.
type Device interface {
	Name() string
	Open() (Handle, error)
}

// Handle is an open camera. AcquireFrame drives it through
// Configure -> Start -> ReadFrame -> Stop -> Close.
type Handle interface {
	Configure(res Resolution, format PixelFormat) error
	Start() error
	ReadFrame() (*Frame, error)
	Stop() error
	Close() error
}
