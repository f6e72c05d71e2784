//go:build !linux

package camera

import (
	"errors"
	"time"
)

// V4L2Device is only functional on Linux; elsewhere Open always fails.
type V4L2Device struct {
	Path        string
	ReadTimeout time.Duration
}

func NewV4L2Device(path string, readTimeout time.Duration) *V4L2Device {
	return &V4L2Device{Path: path, ReadTimeout: readTimeout}
}

func (d *V4L2Device) Name() string { return d.Path }

func (d *V4L2Device) Open() (Handle, error) {
	return nil, errors.New("V4L2 capture requires Linux")
}
