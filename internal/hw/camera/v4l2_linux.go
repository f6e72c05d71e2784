//go:build linux

package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/blackjack/webcam"

	"github.com/cjeanneret/scancam/internal/debug"
)

// v4l2RGB24 is V4L2_PIX_FMT_RGB24, fourcc 'RGB3'.
const v4l2RGB24 = webcam.PixelFormat(uint32('R') | uint32('G')<<8 | uint32('B')<<16 | uint32('3')<<24)

// v4l2Buffers is the number of mmap buffers queued at stream-on.
const v4l2Buffers = 2

// maxStaleFrames bounds the drain loop in ReadFrame.
const maxStaleFrames = 4 * v4l2Buffers

// v4l2Stream is the part of *webcam.Webcam the handle uses.
type v4l2Stream interface {
	GetSupportedFormats() map[webcam.PixelFormat]string
	SetImageFormat(f webcam.PixelFormat, width, height uint32) (webcam.PixelFormat, uint32, uint32, error)
	SetBufferCount(count uint32) error
	SetAutoWhiteBalance(auto bool) error
	StartStreaming() error
	WaitForFrame(timeout uint32) error
	GetFrame() ([]byte, uint32, error)
	ReleaseFrame(index uint32) error
	StopStreaming() error
	Close() error
}

var _ v4l2Stream = (*webcam.Webcam)(nil)

// V4L2Device is a camera exposed through a Video4Linux2 node such as /dev/video0
// (USB webcams, or the Pi camera through the libcamera V4L2 bridge).
type V4L2Device struct {
	Path        string
	ReadTimeout time.Duration
}

// NewV4L2Device returns a device for the node at path.
func NewV4L2Device(path string, readTimeout time.Duration) *V4L2Device {
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	return &V4L2Device{Path: path, ReadTimeout: readTimeout}
}

func (d *V4L2Device) Name() string { return d.Path }

func (d *V4L2Device) Open() (Handle, error) {
	cam, err := webcam.Open(d.Path)
	if err != nil {
		return nil, err
	}
	return &v4l2Handle{cam: cam, timeout: d.ReadTimeout}, nil
}

type v4l2Handle struct {
	cam     v4l2Stream
	timeout time.Duration
	res     Resolution
}

func (h *v4l2Handle) Configure(res Resolution, format PixelFormat) error {
	if format != PixelFormatRGB24 {
		return fmt.Errorf("unsupported pixel format %s", format)
	}
	if _, ok := h.cam.GetSupportedFormats()[v4l2RGB24]; !ok {
		return errors.New("device does not offer RGB24 output")
	}

	got, w, ht, err := h.cam.SetImageFormat(v4l2RGB24, uint32(res.Width), uint32(res.Height))
	if err != nil {
		return err
	}
	if got != v4l2RGB24 {
		return fmt.Errorf("driver switched pixel format to %#x", uint32(got))
	}
	if int(w) != res.Width || int(ht) != res.Height {
		return fmt.Errorf("driver offered %dx%d instead of %s", w, ht, res)
	}

	if err := h.cam.SetBufferCount(v4l2Buffers); err != nil {
		return err
	}
	// Not every sensor has the control; the warm-up still helps AE.
	if err := h.cam.SetAutoWhiteBalance(true); err != nil {
		debug.Errorf("V4L2: enable auto white balance: %v", err)
	}
	h.res = res
	debug.Verbose("V4L2: configured %s RGB24", res)
	return nil
}

func (h *v4l2Handle) Start() error {
	return h.cam.StartStreaming()
}

// timeoutSeconds rounds the read timeout up to whole seconds, at least one.
func (h *v4l2Handle) timeoutSeconds() uint32 {
	secs := uint32((h.timeout + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// ReadFrame returns the first frame that completes after the call. Buffers
// the driver filled during warm-up hold pre-AE/AWB exposures and are released
// unread.
func (h *v4l2Handle) ReadFrame() (*Frame, error) {
	stale, err := h.drain()
	if err != nil {
		return nil, err
	}
	if stale > 0 {
		debug.Trace("V4L2: dropped %d frame(s) captured during warm-up", stale)
	}

	if err := h.cam.WaitForFrame(h.timeoutSeconds()); err != nil {
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			return nil, fmt.Errorf("no frame within %v", h.timeout)
		}
		return nil, err
	}

	buf, index, err := h.cam.GetFrame()
	if err != nil {
		return nil, err
	}
	// The mmap'd buffer goes back to the driver, so keep our own copy.
	defer h.cam.ReleaseFrame(index)

	frame, err := frameFromBuffer(h.res, buf)
	if err != nil {
		return nil, err
	}
	debug.Trace("V4L2: read %d byte frame (buffer %d, stride %d)", len(buf), index, frame.Stride)
	return frame, nil
}

// drain releases every buffer that is already filled, without blocking.
func (h *v4l2Handle) drain() (int, error) {
	for n := 0; n < maxStaleFrames; n++ {
		err := h.cam.WaitForFrame(0)
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		_, index, err := h.cam.GetFrame()
		if err != nil {
			return n, err
		}
		if err := h.cam.ReleaseFrame(index); err != nil {
			return n, err
		}
	}
	return maxStaleFrames, nil
}

// frameFromBuffer copies a driver buffer into a Frame. The driver does not
// report bytesperline, so a buffer that divides evenly into rows longer than
// Width*3 is taken as padded.
func frameFromBuffer(res Resolution, buf []byte) (*Frame, error) {
	packed := res.Width * 3
	need := packed * res.Height
	if len(buf) < need {
		return nil, fmt.Errorf("short frame: %d bytes, want %d", len(buf), need)
	}

	stride := packed
	if len(buf)%res.Height == 0 {
		stride = len(buf) / res.Height
	}
	pix := make([]byte, stride*res.Height)
	copy(pix, buf)
	return &Frame{Resolution: res, Stride: stride, Pix: pix}, nil
}

func (h *v4l2Handle) Stop() error {
	return h.cam.StopStreaming()
}

func (h *v4l2Handle) Close() error {
	return h.cam.Close()
}
