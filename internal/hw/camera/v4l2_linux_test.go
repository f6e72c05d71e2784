//go:build linux

package camera

import (
	"errors"
	"testing"
	"time"

	"github.com/blackjack/webcam"
)

// fakeStream models the driver queue: ready holds filled buffers in dequeue
// order, arriving is what completes while WaitForFrame blocks.
type fakeStream struct {
	ready    [][]byte
	arriving []byte
	awbErr   error

	awb      bool
	waits    []uint32
	released []uint32
	next     uint32
	out      map[uint32]bool
}

func (f *fakeStream) GetSupportedFormats() map[webcam.PixelFormat]string {
	return map[webcam.PixelFormat]string{v4l2RGB24: "RGB3"}
}

func (f *fakeStream) SetImageFormat(p webcam.PixelFormat, w, h uint32) (webcam.PixelFormat, uint32, uint32, error) {
	return p, w, h, nil
}

func (f *fakeStream) SetBufferCount(uint32) error { return nil }

func (f *fakeStream) SetAutoWhiteBalance(auto bool) error {
	f.awb = auto
	return f.awbErr
}

func (f *fakeStream) StartStreaming() error { return nil }

func (f *fakeStream) WaitForFrame(timeout uint32) error {
	f.waits = append(f.waits, timeout)
	if len(f.ready) > 0 {
		return nil
	}
	if timeout > 0 && f.arriving != nil {
		f.ready = append(f.ready, f.arriving)
		f.arriving = nil
		return nil
	}
	return &webcam.Timeout{}
}

func (f *fakeStream) GetFrame() ([]byte, uint32, error) {
	if len(f.ready) == 0 {
		return nil, 0, errors.New("no buffer")
	}
	buf := f.ready[0]
	f.ready = f.ready[1:]
	idx := f.next
	f.next++
	if f.out == nil {
		f.out = map[uint32]bool{}
	}
	f.out[idx] = true
	return buf, idx, nil
}

func (f *fakeStream) ReleaseFrame(index uint32) error {
	delete(f.out, index)
	f.released = append(f.released, index)
	return nil
}

func (f *fakeStream) StopStreaming() error { return nil }
func (f *fakeStream) Close() error         { return nil }

func filled(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func newFakeHandle(t *testing.T, fs *fakeStream, res Resolution) *v4l2Handle {
	t.Helper()
	h := &v4l2Handle{cam: fs, timeout: 5 * time.Second}
	if err := h.Configure(res, PixelFormatRGB24); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	return h
}

// ---------- warm-up frames ----------

func TestV4L2ReadFrame_DropsFramesQueuedDuringWarmup(t *testing.T) {
	res := Resolution{Width: 4, Height: 2}
	fs := &fakeStream{
		ready:    [][]byte{filled(24, 1), filled(24, 2)},
		arriving: filled(24, 9),
	}
	h := newFakeHandle(t, fs, res)

	f, err := h.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.Pix[0] != 9 {
		t.Errorf("got frame with value %d, want the post warm-up frame 9", f.Pix[0])
	}
	if len(fs.released) != 3 {
		t.Errorf("released %v, want both stale buffers and the returned one", fs.released)
	}
	if len(fs.out) != 0 {
		t.Errorf("buffers still held by the handle: %v", fs.out)
	}
}

func TestV4L2ReadFrame_NothingQueued(t *testing.T) {
	fs := &fakeStream{arriving: filled(6, 7)}
	h := newFakeHandle(t, fs, Resolution{Width: 1, Height: 2})

	f, err := h.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.Pix[0] != 7 {
		t.Errorf("Pix[0] = %d, want 7", f.Pix[0])
	}
	if fs.waits[0] != 0 {
		t.Errorf("first wait = %d, want a non-blocking poll", fs.waits[0])
	}
}

func TestV4L2ReadFrame_Timeout(t *testing.T) {
	fs := &fakeStream{}
	h := newFakeHandle(t, fs, Resolution{Width: 1, Height: 1})

	if _, err := h.ReadFrame(); err == nil {
		t.Fatal("expected timeout error")
	}
	if last := fs.waits[len(fs.waits)-1]; last != 5 {
		t.Errorf("blocking wait = %ds, want 5s", last)
	}
}

// ---------- configuration ----------

func TestV4L2Configure_AutoWhiteBalance(t *testing.T) {
	fs := &fakeStream{awbErr: errors.New("control not supported")}
	newFakeHandle(t, fs, Resolution{Width: 2, Height: 2})
	if !fs.awb {
		t.Error("auto white balance not requested")
	}
}

func TestV4L2TimeoutSeconds(t *testing.T) {
	cases := []struct {
		timeout time.Duration
		want    uint32
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{5 * time.Second, 5},
	}
	for _, tc := range cases {
		h := &v4l2Handle{timeout: tc.timeout}
		if got := h.timeoutSeconds(); got != tc.want {
			t.Errorf("timeoutSeconds(%v) = %d, want %d", tc.timeout, got, tc.want)
		}
	}
}

// ---------- row padding ----------

func TestFrameFromBuffer(t *testing.T) {
	res := Resolution{Width: 3, Height: 2} // 9 bytes per packed row

	cases := []struct {
		name       string
		buf        []byte
		wantStride int
		wantErr    bool
	}{
		{"packed", filled(18, 1), 9, false},
		{"padded rows", filled(24, 1), 12, false},
		{"trailing bytes", filled(19, 1), 9, false},
		{"short", filled(17, 1), 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := frameFromBuffer(res, tc.buf)
			if tc.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("frameFromBuffer() error = %v", err)
			}
			if f.Stride != tc.wantStride {
				t.Errorf("Stride = %d, want %d", f.Stride, tc.wantStride)
			}
			if err := f.Validate(); err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestV4L2ReadFrame_PaddedBuffer(t *testing.T) {
	res := Resolution{Width: 2, Height: 2}
	// rows of 6 pixel bytes + 2 padding bytes
	buf := []byte{
		10, 11, 12, 13, 14, 15, 0xEE, 0xEE,
		20, 21, 22, 23, 24, 25, 0xEE, 0xEE,
	}
	fs := &fakeStream{arriving: buf}
	h := newFakeHandle(t, fs, res)

	f, err := h.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.Stride != 8 || f.Contiguous() {
		t.Fatalf("Stride = %d, Contiguous = %v, want padded stride 8", f.Stride, f.Contiguous())
	}
	if got := f.Pix[f.Stride]; got != 20 {
		t.Errorf("second row starts with %d, want 20", got)
	}
}
