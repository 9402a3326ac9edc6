// Package pipeline drives frames from a capture source through the
// inference gateway into the session machine.
//
// At most one inference is in flight: a frame that arrives while the session
// is busy (or not yet active) is dropped rather than queued. Failed calls are
// logged and release the slot; they are never retried. Results that arrive
// after a logout are discarded by the machine and counted as stale.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/pulseai/pkg/capture"
	"github.com/teslashibe/pulseai/pkg/gateway"
	"github.com/teslashibe/pulseai/pkg/profile"
	"github.com/teslashibe/pulseai/pkg/session"
)

// Defaults
const (
	DefaultTimeout     = 20 * time.Second
	DefaultSourceRetry = 2 * time.Second
)

// Interpreter turns a frame into an interaction log.
type Interpreter interface {
	Interpret(ctx context.Context, f capture.Frame, c gateway.Context) (profile.InteractionLog, error)
}

// Stats counts what happened to frames.
type Stats struct {
	FramesSeen    uint64 `json:"framesSeen"`
	FramesDropped uint64 `json:"framesDropped"`
	Applied       uint64 `json:"applied"`
	Failed        uint64 `json:"failed"`
	Stale         uint64 `json:"stale"`
	SourceErrors  uint64 `json:"sourceErrors"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds each inference call.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithSourceRetry sets how long to wait after a capture error before
// reading again.
func WithSourceRetry(d time.Duration) Option {
	return func(r *Runner) { r.sourceRetry = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// Runner connects a source, an interpreter and a session machine.
type Runner struct {
	src     capture.Source
	interp  Interpreter
	machine *session.Machine

	timeout     time.Duration
	sourceRetry time.Duration
	logger      *slog.Logger

	wg sync.WaitGroup

	seen, dropped, applied, failed, stale, sourceErrs atomic.Uint64
}

// New creates a runner.
func New(src capture.Source, interp Interpreter, machine *session.Machine, opts ...Option) *Runner {
	r := &Runner{
		src:         src,
		interp:      interp,
		machine:     machine,
		timeout:     DefaultTimeout,
		sourceRetry: DefaultSourceRetry,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "pipeline")
	return r
}

// Run pulls frames until the source is closed or ctx is done, then waits
// for the in-flight inference to settle. A closed source returns nil.
func (r *Runner) Run(ctx context.Context) error {
	defer r.wg.Wait()

	for {
		f, err := r.src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, capture.ErrClosed):
				r.logger.Info("capture source closed")
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			}
			r.sourceErrs.Add(1)
			r.logger.Warn("capture failed", "error", err)
			if !sleep(ctx, r.sourceRetry) {
				return ctx.Err()
			}
			continue
		}
		r.seen.Add(1)

		ticket, err := r.machine.BeginInference()
		if err != nil {
			r.dropped.Add(1)
			r.logger.Debug("frame dropped", "frame", f.Seq, "reason", err)
			continue
		}

		r.wg.Add(1)
		go r.process(ctx, ticket, f)
	}
}

// process runs one reserved inference to completion.
func (r *Runner) process(ctx context.Context, t session.Ticket, f capture.Frame) {
	defer r.wg.Done()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log, err := r.interp.Interpret(callCtx, f, gateway.ContextFrom(t.Context))
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("inference failed", "frame", f.Seq, "error", err)
		if err := r.machine.AbortInference(t); errors.Is(err, session.ErrStaleResult) {
			r.stale.Add(1)
		}
		return
	}

	if err := r.machine.RecordInteraction(t, log); err != nil {
		if errors.Is(err, session.ErrStaleResult) {
			r.stale.Add(1)
			r.logger.Debug("discarding stale result", "frame", f.Seq)
			return
		}
		r.logger.Warn("result not recorded", "frame", f.Seq, "error", err)
		return
	}
	r.applied.Add(1)
}

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() Stats {
	return Stats{
		FramesSeen:    r.seen.Load(),
		FramesDropped: r.dropped.Load(),
		Applied:       r.applied.Load(),
		Failed:        r.failed.Load(),
		Stale:         r.stale.Load(),
		SourceErrors:  r.sourceErrs.Load(),
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
