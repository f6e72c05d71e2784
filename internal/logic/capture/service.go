package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cjeanneret/scancam/internal/debug"
	"github.com/cjeanneret/scancam/internal/hw/camera"
	"github.com/cjeanneret/scancam/internal/imaging"
	"github.com/cjeanneret/scancam/internal/metrics"
)

// Mode selects a capture profile.
type Mode string

const (
	ModeHighQuality  Mode = "high_quality"
	ModeQuickPreview Mode = "quick_preview"
)

// Profile is the resolution / latency / quality trade-off of one capture mode.
type Profile struct {
	Resolution camera.Resolution
	Warmup     time.Duration // AE/AWB settle time before the frame is read
	Quality    int           // JPEG quality 0-100
}

// DefaultHighQuality is an A4 page at roughly 300 dpi.
func DefaultHighQuality() Profile {
	return Profile{
		Resolution: camera.Resolution{Width: 2480, Height: 3508},
		Warmup:     time.Second,
		Quality:    85,
	}
}

// DefaultQuickPreview is a quarter of the high quality size in each dimension.
func DefaultQuickPreview() Profile {
	return Profile{
		Resolution: camera.Resolution{Width: 620, Height: 877},
		Warmup:     100 * time.Millisecond,
		Quality:    60,
	}
}

func (p Profile) Validate() error {
	if !p.Resolution.Valid() {
		return fmt.Errorf("resolution must be positive, got %s", p.Resolution)
	}
	if p.Quality < 0 || p.Quality > 100 {
		return fmt.Errorf("quality must be between 0 and 100, got %d", p.Quality)
	}
	if p.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative, got %v", p.Warmup)
	}
	return nil
}

// ValidateProfiles checks both profiles and that the still capture waits
// longer for exposure to settle than the preview does.
func ValidateProfiles(highQuality, preview Profile) error {
	if err := highQuality.Validate(); err != nil {
		return fmt.Errorf("high quality profile: %w", err)
	}
	if err := preview.Validate(); err != nil {
		return fmt.Errorf("quick preview profile: %w", err)
	}
	if highQuality.Warmup <= preview.Warmup {
		return fmt.Errorf("high quality warmup (%v) must be longer than preview warmup (%v)", highQuality.Warmup, preview.Warmup)
	}
	return nil
}

// Service runs the two capture modes against one camera. Both modes share
// a single Gate, so captures never interleave.
type Service struct {
	device      camera.Device
	gate        *Gate
	highQuality Profile
	preview     Profile
	tracer      trace.Tracer
}

// NewService validates the profiles and returns a service using gate for exclusion.
func NewService(dev camera.Device, gate *Gate, highQuality, preview Profile) (*Service, error) {
	if err := ValidateProfiles(highQuality, preview); err != nil {
		return nil, err
	}
	return &Service{
		device:      dev,
		gate:        gate,
		highQuality: highQuality,
		preview:     preview,
		tracer:      otel.Tracer("scancam/capture"),
	}, nil
}

// Profile returns the profile used for mode.
func (s *Service) Profile(mode Mode) Profile {
	if mode == ModeHighQuality {
		return s.highQuality
	}
	return s.preview
}

// HighQualityCapture takes a full resolution still and stores it at outputPath,
// replacing any previous image there.
func (s *Service) HighQualityCapture(ctx context.Context, outputPath string) (*imaging.EncodedImage, error) {
	if outputPath == "" {
		return nil, &Error{Mode: ModeHighQuality, Err: fmt.Errorf("%w: empty output path", imaging.ErrOutputWrite)}
	}
	return s.run(ctx, ModeHighQuality, outputPath)
}

// QuickPreviewCapture takes a low resolution frame for the viewfinder and
// returns it in memory.
func (s *Service) QuickPreviewCapture(ctx context.Context) (*imaging.EncodedImage, error) {
	return s.run(ctx, ModeQuickPreview, "")
}

func (s *Service) run(ctx context.Context, mode Mode, outputPath string) (*imaging.EncodedImage, error) {
	p := s.Profile(mode)
	ctx, span := s.tracer.Start(ctx, "capture."+string(mode), trace.WithAttributes(
		attribute.String("capture.mode", string(mode)),
		attribute.String("capture.resolution", p.Resolution.String()),
		attribute.Int("capture.quality", p.Quality),
	))
	defer span.End()

	requested := time.Now()
	var img *imaging.EncodedImage
	err := s.gate.Do(ctx, func() error {
		acquired := time.Now()
		metrics.GateWait.WithLabelValues(string(mode)).Observe(acquired.Sub(requested).Seconds())
		span.AddEvent("gate acquired")

		var err error
		img, err = s.capture(ctx, p, outputPath)

		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.CaptureDuration.WithLabelValues(string(mode), status).Observe(time.Since(acquired).Seconds())
		return err
	})
	if err != nil {
		cerr := &Error{Mode: mode, Err: err}
		metrics.CaptureFailures.WithLabelValues(string(mode), cerr.Stage()).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, cerr.Stage())
		return nil, cerr
	}

	metrics.ImageBytes.WithLabelValues(string(mode)).Observe(float64(img.Len()))
	span.SetAttributes(attribute.Int("capture.bytes", img.Len()))
	debug.Capture(string(mode), img.Resolution.Width, img.Resolution.Height, img.Len(), time.Since(requested))
	return img, nil
}

// capture runs with the gate held.
func (s *Service) capture(ctx context.Context, p Profile, outputPath string) (*imaging.EncodedImage, error) {
	_, span := s.tracer.Start(ctx, "camera.acquire")
	frame, err := camera.AcquireFrame(s.device, p.Resolution, p.Warmup)
	span.End()
	if err != nil {
		return nil, err
	}

	_, span = s.tracer.Start(ctx, "imaging.encode")
	img, err := imaging.Encode(frame, p.Quality)
	span.End()
	if err != nil {
		return nil, err
	}

	if outputPath != "" {
		_, span = s.tracer.Start(ctx, "imaging.write", trace.WithAttributes(attribute.String("file.path", outputPath)))
		err = imaging.WriteFile(img, outputPath)
		span.End()
		if err != nil {
			return nil, err
		}
		img.Path = outputPath
	}
	return img, nil
}

// ErrCaptureFailed matches every *Error with errors.Is.
var ErrCaptureFailed = errors.New("capture failed")

// Error is returned by both capture modes. It unwraps to the device,
// encoder, output or gate error that caused it.
type Error struct {
	Mode Mode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s capture failed: %v", e.Mode, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrCaptureFailed }

// Stage names the step that failed, for metrics and logs.
func (e *Error) Stage() string {
	switch {
	case errors.Is(e.Err, ErrGateTimeout):
		return "gate"
	case errors.Is(e.Err, camera.ErrDeviceOpen):
		return "open"
	case errors.Is(e.Err, camera.ErrDeviceConfigure):
		return "configure"
	case errors.Is(e.Err, camera.ErrDeviceStart):
		return "start"
	case errors.Is(e.Err, camera.ErrFrameRead):
		return "read"
	case errors.Is(e.Err, imaging.ErrEncode):
		return "encode"
	case errors.Is(e.Err, imaging.ErrOutputWrite):
		return "write"
	default:
		return "unknown"
	}
}
