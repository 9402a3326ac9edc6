package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/pulseai/internal/log"
	"github.com/teslashibe/pulseai/pkg/capture"
	"github.com/teslashibe/pulseai/pkg/gateway"
	"github.com/teslashibe/pulseai/pkg/profile"
	"github.com/teslashibe/pulseai/pkg/session"
)

// gatedInterpreter blocks each call until release is signalled.
type gatedInterpreter struct {
	mu       sync.Mutex
	calls    int
	contexts []gateway.Context
	started  chan struct{}
	release  chan struct{}
	result   profile.InteractionLog
	err      error
}

func newGated(result profile.InteractionLog, err error) *gatedInterpreter {
	return &gatedInterpreter{
		started: make(chan struct{}, 16),
		release: make(chan struct{}, 16),
		result:  result,
		err:     err,
	}
}

func (g *gatedInterpreter) Interpret(ctx context.Context, f capture.Frame, c gateway.Context) (profile.InteractionLog, error) {
	g.mu.Lock()
	g.calls++
	g.contexts = append(g.contexts, c)
	g.mu.Unlock()

	g.started <- struct{}{}
	select {
	case <-ctx.Done():
		return profile.InteractionLog{}, ctx.Err()
	case <-g.release:
	}
	return g.result, g.err
}

func (g *gatedInterpreter) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func liveMachine(t *testing.T) *session.Machine {
	t.Helper()
	m := session.New(session.WithLogger(log.Discard()))
	m.Login(profile.MockUser())
	m.ToggleMode(profile.ModeWave)
	if err := m.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return m
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitStarted(t *testing.T, g *gatedInterpreter) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("interpreter was not called")
	}
}

func startRunner(t *testing.T, r *Runner) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func frame(data string) capture.Frame {
	return capture.Frame{Data: []byte(data), MimeType: "image/jpeg"}
}

func TestDropsFramesWhileBusy(t *testing.T) {
	m := liveMachine(t)
	mb := capture.NewMailbox()
	g := newGated(profile.InteractionLog{SystemMessage: "Wave detected", Confidence: 90}, nil)
	r := New(mb, g, m, WithLogger(log.Discard()))
	startRunner(t, r)

	mb.Publish(frame("1"))
	waitStarted(t, g)

	mb.Publish(frame("2"))
	mb.Publish(frame("3"))
	eventually(t, "busy frames to be dropped", func() bool { return r.Stats().FramesDropped >= 1 })

	if !m.Snapshot().IsProcessing {
		t.Error("session should be processing")
	}

	g.release <- struct{}{}
	eventually(t, "result to be applied", func() bool { return r.Stats().Applied == 1 })

	if g.callCount() != 1 {
		t.Errorf("interpreter called %d times, want 1", g.callCount())
	}
	snap := m.Snapshot()
	if snap.IsProcessing || snap.LastLog == nil || snap.LastLog.SystemMessage != "Wave detected" {
		t.Errorf("unexpected snapshot after apply: %+v", snap)
	}
	if snap.TutorialStep != 1 {
		t.Errorf("TutorialStep = %d, want 1 after a calibration result", snap.TutorialStep)
	}
}

func TestStaleResultAfterLogout(t *testing.T) {
	m := liveMachine(t)
	mb := capture.NewMailbox()
	g := newGated(profile.InteractionLog{SystemMessage: "late"}, nil)
	r := New(mb, g, m, WithLogger(log.Discard()))
	startRunner(t, r)

	mb.Publish(frame("1"))
	waitStarted(t, g)

	m.Logout()
	g.release <- struct{}{}
	eventually(t, "stale result", func() bool { return r.Stats().Stale == 1 })

	snap := m.Snapshot()
	if snap.LastLog != nil || snap.IsAuthenticated {
		t.Errorf("stale result leaked into state: %+v", snap)
	}
	if r.Stats().Applied != 0 {
		t.Error("stale result must not count as applied")
	}
}

func TestFailureReleasesSlot(t *testing.T) {
	m := liveMachine(t)
	mb := capture.NewMailbox()
	g := newGated(profile.InteractionLog{}, errors.New("upstream 503"))
	r := New(mb, g, m, WithLogger(log.Discard()))
	startRunner(t, r)

	mb.Publish(frame("1"))
	waitStarted(t, g)
	g.release <- struct{}{}
	eventually(t, "failure", func() bool { return r.Stats().Failed == 1 })
	eventually(t, "slot release", func() bool { return !m.Snapshot().IsProcessing })

	mb.Publish(frame("2"))
	waitStarted(t, g)
	g.release <- struct{}{}
	eventually(t, "second failure", func() bool { return r.Stats().Failed == 2 })

	if g.callCount() != 2 {
		t.Errorf("calls = %d, want 2 (no retries, one per frame)", g.callCount())
	}
	if m.Snapshot().LastLog != nil {
		t.Error("failures must not record a log")
	}
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	m := liveMachine(t)
	mb := capture.NewMailbox()
	g := newGated(profile.InteractionLog{SystemMessage: "never"}, nil)
	r := New(mb, g, m, WithLogger(log.Discard()), WithTimeout(20*time.Millisecond))
	startRunner(t, r)

	mb.Publish(frame("1"))
	waitStarted(t, g)
	eventually(t, "timeout", func() bool { return r.Stats().Failed == 1 })
	eventually(t, "slot release", func() bool { return !m.Snapshot().IsProcessing })
}

func TestInactiveSessionDropsFrames(t *testing.T) {
	m := session.New(session.WithLogger(log.Discard()))
	mb := capture.NewMailbox()
	g := newGated(profile.InteractionLog{}, nil)
	r := New(mb, g, m, WithLogger(log.Discard()))
	startRunner(t, r)

	mb.Publish(frame("1"))
	eventually(t, "drop", func() bool { return r.Stats().FramesDropped == 1 })
	if g.callCount() != 0 {
		t.Error("no inference should run before the session starts")
	}
}

func TestContextPassedToInterpreter(t *testing.T) {
	m := liveMachine(t)
	mb := capture.NewMailbox()
	g := newGated(profile.InteractionLog{SystemMessage: "ok"}, nil)
	r := New(mb, g, m, WithLogger(log.Discard()))
	startRunner(t, r)

	mb.Publish(frame("1"))
	waitStarted(t, g)
	g.release <- struct{}{}

	g.mu.Lock()
	c := g.contexts[0]
	g.mu.Unlock()
	if !c.Calibrating || c.Sensitivity != 7 || len(c.Modes) != 1 || c.Modes[0] != profile.ModeWave {
		t.Errorf("unexpected gateway context %+v", c)
	}
}

func TestRunReturnsWhenSourceCloses(t *testing.T) {
	m := liveMachine(t)
	mb := capture.NewMailbox()
	r := New(mb, newGated(profile.InteractionLog{}, nil), m, WithLogger(log.Discard()))
	_, done := startRunner(t, r)

	mb.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil on closed source", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	m := liveMachine(t)
	r := New(capture.NewMailbox(), newGated(profile.InteractionLog{}, nil), m, WithLogger(log.Discard()))
	cancel, done := startRunner(t, r)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

// flakySource fails once, then yields frames from a mailbox.
type flakySource struct {
	*capture.Mailbox
	once sync.Once
}

func (f *flakySource) Next(ctx context.Context) (capture.Frame, error) {
	var failed bool
	f.once.Do(func() { failed = true })
	if failed {
		return capture.Frame{}, errors.New("camera unplugged")
	}
	return f.Mailbox.Next(ctx)
}

func TestSourceErrorIsRetried(t *testing.T) {
	m := liveMachine(t)
	src := &flakySource{Mailbox: capture.NewMailbox()}
	g := newGated(profile.InteractionLog{SystemMessage: "ok"}, nil)
	r := New(src, g, m, WithLogger(log.Discard()), WithSourceRetry(5*time.Millisecond))
	startRunner(t, r)

	src.Publish(frame("1"))
	waitStarted(t, g)
	g.release <- struct{}{}
	eventually(t, "apply after source error", func() bool { return r.Stats().Applied == 1 })

	if r.Stats().SourceErrors != 1 {
		t.Errorf("SourceErrors = %d, want 1", r.Stats().SourceErrors)
	}
}
