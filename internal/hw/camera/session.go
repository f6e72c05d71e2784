package camera

import (
	"fmt"
	"time"

	"github.com/cjeanneret/scancam/internal/debug"
)

// AcquireFrame opens dev, configures it for res in RGB24, lets auto exposure
// and white balance settle for warmup, reads exactly one frame and releases
// the device. The handle is stopped (if started) and closed before return on
// every path, including panics inside the driver.
//
// AcquireFrame does no locking: the caller must hold the camera gate.
func AcquireFrame(dev Device, res Resolution, warmup time.Duration) (frame *Frame, err error) {
	debug.Device("open", dev.Name())
	h, err := dev.Open()
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDeviceOpen, dev.Name(), err)
	}

	started := false
	defer func() {
		if started {
			debug.Device("stop", dev.Name())
			if stopErr := h.Stop(); stopErr != nil {
				debug.Errorf("camera %s: stop streaming: %v", dev.Name(), stopErr)
			}
		}
		debug.Device("close", dev.Name())
		if closeErr := h.Close(); closeErr != nil {
			debug.Errorf("camera %s: close: %v", dev.Name(), closeErr)
		}
	}()

	debug.Device("configure "+res.String(), dev.Name())
	if err := h.Configure(res, PixelFormatRGB24); err != nil {
		return nil, fmt.Errorf("%w %s to %s: %w", ErrDeviceConfigure, dev.Name(), res, err)
	}

	debug.Device("start", dev.Name())
	if err := h.Start(); err != nil {
		return nil, fmt.Errorf("%w on %s: %w", ErrDeviceStart, dev.Name(), err)
	}
	started = true

	if warmup > 0 {
		debug.Verbose("Camera: warming up AE/AWB for %v", warmup)
		time.Sleep(warmup)
	}

	debug.Device("read", dev.Name())
	frame, err = h.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrFrameRead, dev.Name(), err)
	}
	if frame == nil {
		return nil, fmt.Errorf("%w from %s: driver returned no frame", ErrFrameRead, dev.Name())
	}
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrFrameRead, dev.Name(), err)
	}
	if frame.Resolution != res {
		return nil, fmt.Errorf("%w from %s: got %s frame, configured %s", ErrFrameRead, dev.Name(), frame.Resolution, res)
	}
	return frame, nil
}
