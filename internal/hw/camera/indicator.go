package camera

import (
	"github.com/cjeanneret/scancam/internal/debug"
	"github.com/cjeanneret/scancam/internal/hw/gpio"
)

// IndicatorDevice lights an LED on a GPIO pin for as long as the wrapped
// device is open.
type IndicatorDevice struct {
	Device
	gpio gpio.Driver
	pin  int
}

// NewIndicatorDevice wraps dev so that pin goes HIGH on Open and LOW on Close.
func NewIndicatorDevice(dev Device, g gpio.Driver, pin int) *IndicatorDevice {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		debug.Errorf("indicator pin %d: setup: %v", pin, err)
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		debug.Errorf("indicator pin %d: %v", pin, err)
	}
	return &IndicatorDevice{Device: dev, gpio: g, pin: pin}
}

func (d *IndicatorDevice) Open() (Handle, error) {
	h, err := d.Device.Open()
	if err != nil {
		return nil, err
	}
	if err := d.gpio.WritePin(d.pin, gpio.High); err != nil {
		debug.Errorf("indicator pin %d: %v", d.pin, err)
	}
	return &indicatorHandle{Handle: h, dev: d}, nil
}

type indicatorHandle struct {
	Handle
	dev *IndicatorDevice
}

func (h *indicatorHandle) Close() error {
	err := h.Handle.Close()
	if werr := h.dev.gpio.WritePin(h.dev.pin, gpio.Low); werr != nil {
		debug.Errorf("indicator pin %d: %v", h.dev.pin, werr)
	}
	return err
}
