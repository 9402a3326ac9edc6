//go:build !gocv

package capture

import (
	"context"
)

// DeviceSupported reports whether this build can open local cameras.
const DeviceSupported = false

// Device is unavailable in this build.
type Device struct{}

// OpenDevice always fails without the gocv build tag.
func OpenDevice(id int, cfg Config) (*Device, error) {
	return nil, ErrDeviceUnsupported
}

// Next always fails.
func (d *Device) Next(ctx context.Context) (Frame, error) {
	return Frame{}, ErrDeviceUnsupported
}

// Close is a no-op.
func (d *Device) Close() error { return nil }
