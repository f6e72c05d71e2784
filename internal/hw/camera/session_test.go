package camera

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/scancam/internal/debug"
	"github.com/cjeanneret/scancam/internal/hw/gpio"
)

// ---------- AcquireFrame ----------

func TestAcquireFrame_Success(t *testing.T) {
	dev := &MockDevice{Fill: 200}
	res := Resolution{Width: 100, Height: 100}

	frame, err := AcquireFrame(dev, res, time.Millisecond)
	if err != nil {
		t.Fatalf("AcquireFrame: %v", err)
	}
	if frame.Resolution != res {
		t.Errorf("frame resolution = %s, want %s", frame.Resolution, res)
	}
	if !frame.Contiguous() {
		t.Error("mock frame without padding should be contiguous")
	}
	for i, v := range frame.Pix {
		if v != 200 {
			t.Fatalf("Pix[%d] = %d, want 200", i, v)
		}
	}
	if dev.Opens() != 1 || dev.Closes() != 1 {
		t.Errorf("opens=%d closes=%d, want 1/1", dev.Opens(), dev.Closes())
	}
	if dev.Stops() != 1 {
		t.Errorf("stops = %d, want 1", dev.Stops())
	}
}

func TestAcquireFrame_FailureStages(t *testing.T) {
	fault := errors.New("injected fault")
	cases := []struct {
		name      string
		dev       *MockDevice
		want      error
		wantOpen  int
		wantStops int
	}{
		{"open", &MockDevice{OpenErr: fault}, ErrDeviceOpen, 0, 0},
		{"configure", &MockDevice{ConfigureErr: fault}, ErrDeviceConfigure, 1, 0},
		{"start", &MockDevice{StartErr: fault}, ErrDeviceStart, 1, 0},
		{"read", &MockDevice{ReadErr: fault}, ErrFrameRead, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := AcquireFrame(tc.dev, Resolution{Width: 8, Height: 8}, 0)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if frame != nil {
				t.Error("frame should be nil on failure")
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("error %v does not match %v", err, tc.want)
			}
			if !errors.Is(err, fault) {
				t.Errorf("error %v should wrap the underlying cause", err)
			}
			if tc.dev.Opens() != tc.wantOpen {
				t.Errorf("opens = %d, want %d", tc.dev.Opens(), tc.wantOpen)
			}
			// Every opened handle is closed exactly once.
			if tc.dev.Closes() != tc.wantOpen {
				t.Errorf("closes = %d, want %d", tc.dev.Closes(), tc.wantOpen)
			}
			if tc.dev.Stops() != tc.wantStops {
				t.Errorf("stops = %d, want %d", tc.dev.Stops(), tc.wantStops)
			}
		})
	}
}

func TestAcquireFrame_CloseErrorAfterReadKeepsFrame(t *testing.T) {
	dev := &MockDevice{Fill: 10, CloseErr: errors.New("close failed")}
	frame, err := AcquireFrame(dev, Resolution{Width: 4, Height: 4}, 0)
	if err != nil {
		t.Fatalf("close failure after a complete read should not fail the capture: %v", err)
	}
	if frame == nil {
		t.Fatal("expected frame")
	}
	if dev.Closes() != 1 {
		t.Errorf("closes = %d, want 1", dev.Closes())
	}
}

func TestAcquireFrame_WarmupIsWaited(t *testing.T) {
	dev := &MockDevice{}
	warmup := 30 * time.Millisecond
	start := time.Now()
	if _, err := AcquireFrame(dev, Resolution{Width: 2, Height: 2}, warmup); err != nil {
		t.Fatalf("AcquireFrame: %v", err)
	}
	if elapsed := time.Since(start); elapsed < warmup {
		t.Errorf("AcquireFrame returned after %v, before warm-up of %v", elapsed, warmup)
	}
}

// panicDevice hands out a handle whose ReadFrame panics.
type panicDevice struct {
	closed int
}

func (d *panicDevice) Name() string          { return "panic" }
func (d *panicDevice) Open() (Handle, error) { return &panicHandle{dev: d}, nil }

type panicHandle struct{ dev *panicDevice }

func (h *panicHandle) Configure(Resolution, PixelFormat) error { return nil }
func (h *panicHandle) Start() error                            { return nil }
func (h *panicHandle) ReadFrame() (*Frame, error)              { panic("driver bug") }
func (h *panicHandle) Stop() error                             { return nil }
func (h *panicHandle) Close() error                            { h.dev.closed++; return nil }

func TestAcquireFrame_PanicStillCloses(t *testing.T) {
	dev := &panicDevice{}
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_, _ = AcquireFrame(dev, Resolution{Width: 2, Height: 2}, 0)
	}()
	if dev.closed != 1 {
		t.Errorf("closed = %d, want 1", dev.closed)
	}
}

// wrongSizeDevice returns frames that ignore the configured resolution.
type wrongSizeDevice struct{ MockDevice }

func (d *wrongSizeDevice) Open() (Handle, error) {
	h, err := d.MockDevice.Open()
	if err != nil {
		return nil, err
	}
	return &wrongSizeHandle{Handle: h}, nil
}

type wrongSizeHandle struct{ Handle }

func (h *wrongSizeHandle) Configure(res Resolution, format PixelFormat) error {
	return h.Handle.Configure(Resolution{Width: res.Width / 2, Height: res.Height / 2}, format)
}

func TestAcquireFrame_ResolutionMismatch(t *testing.T) {
	dev := &wrongSizeDevice{}
	_, err := AcquireFrame(dev, Resolution{Width: 8, Height: 8}, 0)
	if !errors.Is(err, ErrFrameRead) {
		t.Fatalf("error = %v, want ErrFrameRead", err)
	}
	if dev.Closes() != 1 {
		t.Errorf("closes = %d, want 1", dev.Closes())
	}
}

// ---------- Frame ----------

func TestFrame_Contiguous(t *testing.T) {
	cases := []struct {
		name  string
		frame Frame
		want  bool
	}{
		{"packed", *NewFrame(Resolution{Width: 4, Height: 3}), true},
		{"padded", Frame{Resolution: Resolution{Width: 4, Height: 3}, Stride: 16, Pix: make([]byte, 48)}, false},
		{"oversized buffer", Frame{Resolution: Resolution{Width: 4, Height: 3}, Stride: 12, Pix: make([]byte, 40)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.frame.Contiguous(); got != tc.want {
				t.Errorf("Contiguous() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFrame_Validate(t *testing.T) {
	cases := []struct {
		name    string
		frame   Frame
		wantErr bool
	}{
		{"ok", *NewFrame(Resolution{Width: 2, Height: 2}), false},
		{"zero size", Frame{}, true},
		{"short stride", Frame{Resolution: Resolution{Width: 2, Height: 2}, Stride: 5, Pix: make([]byte, 12)}, true},
		{"short buffer", Frame{Resolution: Resolution{Width: 2, Height: 2}, Stride: 6, Pix: make([]byte, 11)}, true},
		{"last row unpadded", Frame{Resolution: Resolution{Width: 2, Height: 2}, Stride: 8, Pix: make([]byte, 14)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.frame.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// ---------- MockDevice ----------

func TestMockDevice_PaddingAndPattern(t *testing.T) {
	dev := &MockDevice{Padding: 5, Pattern: GradientPattern(10, 10)}
	frame, err := AcquireFrame(dev, Resolution{Width: 10, Height: 10}, 0)
	if err != nil {
		t.Fatalf("AcquireFrame: %v", err)
	}
	if frame.Stride != 35 {
		t.Errorf("stride = %d, want 35", frame.Stride)
	}
	if frame.Contiguous() {
		t.Error("padded frame should not be contiguous")
	}
	last := frame.Pix[9*frame.Stride+9*3:]
	if last[0] != 255 || last[1] != 255 {
		t.Errorf("bottom-right pixel = %v, want R=255 G=255", last[:3])
	}
}

func TestInterval_Overlaps(t *testing.T) {
	t0 := time.Now()
	a := Interval{Opened: t0, Closed: t0.Add(10 * time.Millisecond)}
	b := Interval{Opened: t0.Add(5 * time.Millisecond), Closed: t0.Add(20 * time.Millisecond)}
	c := Interval{Opened: t0.Add(10 * time.Millisecond), Closed: t0.Add(30 * time.Millisecond)}
	if !a.Overlaps(b) {
		t.Error("a and b should overlap")
	}
	if a.Overlaps(c) {
		t.Error("a and c only touch and should not overlap")
	}
}

// ---------- IndicatorDevice ----------

func TestIndicatorDevice_LightsWhileOpen(t *testing.T) {
	drv := gpio.NewMockDriver()
	dev := NewIndicatorDevice(&MockDevice{}, drv, 18)

	if lvl, _ := drv.ReadPin(18); lvl != gpio.Low {
		t.Fatalf("indicator should start LOW, got %v", lvl)
	}

	h, err := dev.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if lvl, _ := drv.ReadPin(18); lvl != gpio.High {
		t.Errorf("indicator should be HIGH while open, got %v", lvl)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if lvl, _ := drv.ReadPin(18); lvl != gpio.Low {
		t.Errorf("indicator should be LOW after close, got %v", lvl)
	}
}

func TestIndicatorDevice_OpenFailureLeavesLEDOff(t *testing.T) {
	drv := gpio.NewMockDriver()
	dev := NewIndicatorDevice(&MockDevice{OpenErr: errors.New("busy")}, drv, 18)

	if _, err := AcquireFrame(dev, Resolution{Width: 2, Height: 2}, 0); !errors.Is(err, ErrDeviceOpen) {
		t.Fatalf("error = %v, want ErrDeviceOpen", err)
	}
	if lvl, _ := drv.ReadPin(18); lvl != gpio.Low {
		t.Errorf("indicator = %v after failed open, want LOW", lvl)
	}
}

func TestIndicatorDevice_ImplementsDevice(t *testing.T) {
	var _ Device = NewIndicatorDevice(&MockDevice{}, gpio.NewMockDriver(), 1)
}

// brokenPinDriver fails every pin operation, like an unexported /dev/gpiomem.
type brokenPinDriver struct{}

func (brokenPinDriver) SetupPin(int, gpio.PinMode) error { return errors.New("gpiomem: permission denied") }
func (brokenPinDriver) WritePin(int, gpio.Level) error { return errors.New("gpiomem: permission denied") }
func (brokenPinDriver) ReadPin(int) (gpio.Level, error) { return gpio.Low, errors.New("gpiomem: permission denied") }
func (brokenPinDriver) Close() error { return nil }

func TestIndicatorDevice_SetupErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	debug.SetOutput(&buf)
	debug.Init(debug.LevelInfo)
	t.Cleanup(func() {
		debug.Init(debug.LevelOff)
		debug.SetOutput(os.Stdout)
	})

	dev := NewIndicatorDevice(&MockDevice{Fill: 1}, brokenPinDriver{}, 18)

	out := buf.String()
	if strings.Count(out, "[ERROR] indicator pin 18") != 2 {
		t.Errorf("expected setup and initial write errors logged, got %q", out)
	}

	// a broken LED must not stop captures
	if _, err := AcquireFrame(dev, Resolution{Width: 2, Height: 2}, 0); err != nil {
		t.Errorf("AcquireFrame() error = %v", err)
	}
}
