// Package capture supplies webcam frames to the frame pipeline.
//
// A Source is a lazy, unbounded sequence paced by the adapter. Frames are
// pushed by browsers into a Mailbox, pulled from a remote websocket feed by
// Remote, or read from a local camera by Device. Throttle enforces a minimum
// cadence on any of them.
package capture

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed ends a frame sequence.
	ErrClosed = errors.New("capture: source closed")

	// ErrDeviceUnsupported is returned when the binary was built without gocv.
	ErrDeviceUnsupported = errors.New("capture: local camera support requires the gocv build tag")
)

// Frame is one encoded image.
type Frame struct {
	Data       []byte
	MimeType   string // defaults to image/jpeg
	Width      int
	Height     int
	Seq        uint64
	CapturedAt time.Time
	Origin     string // "browser", "remote", "device"
}

// Source yields frames until it is closed.
type Source interface {
	// Next blocks until a frame is available, the context is done or the
	// source is closed (ErrClosed).
	Next(ctx context.Context) (Frame, error)

	// Close releases the source. Pending and future Next calls return
	// ErrClosed.
	Close() error
}
