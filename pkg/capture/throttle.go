package capture

import (
	"context"
	"time"
)

// Throttle limits an underlying source to one frame per interval. It waits
// before pulling, so a Mailbox behind it yields the freshest frame once the
// interval has elapsed.
type Throttle struct {
	src      Source
	interval time.Duration
	last     time.Time
}

// NewThrottle wraps src. A non-positive interval disables throttling.
func NewThrottle(src Source, interval time.Duration) *Throttle {
	return &Throttle{src: src, interval: interval}
}

// Next waits out the remaining interval, then reads from the wrapped source.
func (t *Throttle) Next(ctx context.Context) (Frame, error) {
	if t.interval > 0 && !t.last.IsZero() {
		if wait := t.interval - time.Since(t.last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Frame{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	f, err := t.src.Next(ctx)
	if err != nil {
		return Frame{}, err
	}
	t.last = time.Now()
	return f, nil
}

// Close closes the wrapped source.
func (t *Throttle) Close() error {
	return t.src.Close()
}
