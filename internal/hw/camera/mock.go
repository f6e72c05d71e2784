package camera

import (
	"errors"
	"sync"
	"time"

	"github.com/cjeanneret/scancam/internal/debug"
)

// Interval is the span during which one handle was held open.
type Interval struct {
	Opened time.Time
	Closed time.Time
}

// Overlaps reports whether two handle lifetimes intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Opened.Before(other.Closed) && other.Opened.Before(iv.Closed)
}

// MockDevice is a software camera. It serves synthetic frames on development
// hosts without a sensor, and lets tests inject faults and observe the handle
// lifecycle.
type MockDevice struct {
	// Fill is the value of every channel of every pixel, unless Pattern is set.
	Fill byte
	// Pattern, when set, produces the RGB value of each pixel.
	Pattern func(x, y int) (r, g, b byte)
	// Padding adds bytes at the end of every row to emulate drivers with padded strides.
	Padding int
	// ReadDelay is slept inside ReadFrame to emulate exposure time.
	ReadDelay time.Duration

	OpenErr      error
	ConfigureErr error
	StartErr     error
	ReadErr      error
	CloseErr     error

	mu        sync.Mutex
	live      int
	maxLive   int
	opens     int
	closes    int
	stops     int
	intervals []Interval
}

// GradientPattern is a diagonal test chart, handy for eyeballing orientation.
func GradientPattern(width, height int) func(x, y int) (byte, byte, byte) {
	return func(x, y int) (byte, byte, byte) {
		r := byte(x * 255 / max(width-1, 1))
		g := byte(y * 255 / max(height-1, 1))
		return r, g, byte((int(r) + int(g)) / 2)
	}
}

func (m *MockDevice) Name() string { return "mock" }

func (m *MockDevice) Open() (Handle, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.mu.Lock()
	m.opens++
	m.live++
	if m.live > m.maxLive {
		m.maxLive = m.live
	}
	m.intervals = append(m.intervals, Interval{Opened: time.Now()})
	idx := len(m.intervals) - 1
	m.mu.Unlock()
	return &mockHandle{dev: m, idx: idx}, nil
}

// Opens returns the number of successful Open calls.
func (m *MockDevice) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Closes returns the number of Close calls on handles of this device.
func (m *MockDevice) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Stops returns the number of Stop calls on handles of this device.
func (m *MockDevice) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// MaxConcurrentOpen returns the highest number of handles that were open at once.
func (m *MockDevice) MaxConcurrentOpen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxLive
}

// Intervals returns a copy of the open/close intervals recorded so far.
func (m *MockDevice) Intervals() []Interval {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Interval, len(m.intervals))
	copy(out, m.intervals)
	return out
}

type mockHandle struct {
	dev    *MockDevice
	idx    int
	res    Resolution
	closed bool
}

func (h *mockHandle) Configure(res Resolution, format PixelFormat) error {
	if h.dev.ConfigureErr != nil {
		return h.dev.ConfigureErr
	}
	if format != PixelFormatRGB24 {
		return errors.New("mock camera only produces RGB24")
	}
	if !res.Valid() {
		return errors.New("invalid resolution " + res.String())
	}
	h.res = res
	return nil
}

func (h *mockHandle) Start() error {
	return h.dev.StartErr
}

func (h *mockHandle) ReadFrame() (*Frame, error) {
	if h.dev.ReadDelay > 0 {
		time.Sleep(h.dev.ReadDelay)
	}
	if h.dev.ReadErr != nil {
		return nil, h.dev.ReadErr
	}

	stride := h.res.Width*3 + h.dev.Padding
	f := &Frame{Resolution: h.res, Stride: stride, Pix: make([]byte, stride*h.res.Height)}
	for y := 0; y < h.res.Height; y++ {
		row := f.Pix[y*stride:]
		for x := 0; x < h.res.Width; x++ {
			r, g, b := h.dev.Fill, h.dev.Fill, h.dev.Fill
			if h.dev.Pattern != nil {
				r, g, b = h.dev.Pattern(x, y)
			}
			row[x*3], row[x*3+1], row[x*3+2] = r, g, b
		}
	}
	debug.Trace("mock camera: produced %s frame, stride %d", h.res, stride)
	return f, nil
}

func (h *mockHandle) Stop() error {
	h.dev.mu.Lock()
	h.dev.stops++
	h.dev.mu.Unlock()
	return nil
}

func (h *mockHandle) Close() error {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	h.dev.closes++
	if !h.closed {
		h.closed = true
		h.dev.live--
		h.dev.intervals[h.idx].Closed = time.Now()
	}
	return h.dev.CloseErr
}
