//go:build gocv

package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Device reads frames from a local camera through OpenCV.
type Device struct {
	cfg Config

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
	seq    uint64
}

// DeviceSupported reports whether this build can open local cameras.
const DeviceSupported = true

// OpenDevice opens camera index id with the resolution from cfg.
func OpenDevice(id int, cfg Config) (*Device, error) {
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("capture: open device %d: %w", id, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	return &Device{cfg: cfg, cap: vc, mat: gocv.NewMat()}, nil
}

// Next grabs and JPEG-encodes one frame. The read itself cannot be
// interrupted, so cancellation is observed between frames.
func (d *Device) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Frame{}, ErrClosed
	}
	if ok := d.cap.Read(&d.mat); !ok || d.mat.Empty() {
		return Frame{}, fmt.Errorf("capture: device read failed")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, d.mat, []int{gocv.IMWriteJpegQuality, d.cfg.Quality})
	if err != nil {
		return Frame{}, fmt.Errorf("capture: encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	d.seq++
	return Frame{
		Data:       data,
		MimeType:   "image/jpeg",
		Width:      d.mat.Cols(),
		Height:     d.mat.Rows(),
		Seq:        d.seq,
		CapturedAt: time.Now(),
		Origin:     "device",
	}, nil
}

// Close releases the camera.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.mat.Close()
	return d.cap.Close()
}
