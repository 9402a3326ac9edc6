package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Mailbox is a single-slot frame buffer. Publish overwrites any frame that
// has not been consumed yet, so Next always returns the freshest frame and a
// slow consumer never builds a backlog.
type Mailbox struct {
	mu     sync.Mutex
	frame  *Frame
	closed bool

	ready chan struct{} // capacity 1, signalled on publish
	done  chan struct{}

	seq       atomic.Uint64
	published atomic.Uint64
	overwrite atomic.Uint64
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Publish stores f as the latest frame, assigning Seq and CapturedAt when
// unset. It returns false once the mailbox is closed.
func (m *Mailbox) Publish(f Frame) bool {
	if f.Seq == 0 {
		f.Seq = m.seq.Add(1)
	}
	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if m.frame != nil {
		m.overwrite.Add(1)
	}
	m.frame = &f
	m.mu.Unlock()

	m.published.Add(1)
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// Next returns the latest unconsumed frame, waiting for one if necessary.
func (m *Mailbox) Next(ctx context.Context) (Frame, error) {
	for {
		m.mu.Lock()
		if m.frame != nil {
			f := *m.frame
			m.frame = nil
			m.mu.Unlock()
			return f, nil
		}
		if m.closed {
			m.mu.Unlock()
			return Frame{}, ErrClosed
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-m.done:
		case <-m.ready:
		}
	}
}

// Close wakes pending readers; later calls are no-ops.
func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.frame = nil
		close(m.done)
	}
	return nil
}

// Published returns the number of frames accepted.
func (m *Mailbox) Published() uint64 { return m.published.Load() }

// Overwritten returns the number of frames replaced before being read.
func (m *Mailbox) Overwritten() uint64 { return m.overwrite.Load() }
