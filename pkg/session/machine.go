// Package session implements the operator session state machine.
//
// Phases run Unauthenticated → ModeSelection → (Calibrating | Live). Every
// transition runs to completion under the machine's lock and then publishes
// a Snapshot to subscribers, in transition order. The safety alert is a pure
// projection of the last interaction log and cannot be set directly.
//
// Inference results are delivered in two steps: BeginInference reserves the
// single in-flight slot and returns a Ticket; RecordInteraction or
// AbortInference release it. A ticket issued before a Logout is stale and is
// never applied.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/pulseai/pkg/profile"
)

// Ticket identifies one reserved inference.
type Ticket struct {
	epoch uint64
	seq   uint64

	// Context is the session as it was when the inference was reserved.
	Context Snapshot
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithClock overrides the clock used to timestamp logs.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator overrides how log IDs are generated.
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) { m.newID = gen }
}

// Machine owns the session state.
type Machine struct {
	mu      sync.Mutex
	state   State
	epoch   uint64 // advanced by Logout
	seq     uint64
	pending uint64 // seq of the in-flight inference, 0 if none

	// notifyMu is taken before mu is released so subscribers observe
	// snapshots in transition order.
	notifyMu sync.Mutex
	subsMu   sync.RWMutex
	subs     map[int]func(Snapshot)
	nextSub  int

	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a machine in the initial state.
func New(opts ...Option) *Machine {
	m := &Machine{
		state:  initialState(),
		subs:   make(map[int]func(Snapshot)),
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.snapshot()
}

// Subscribe registers fn to receive a snapshot after every transition.
// fn runs synchronously on the transitioning goroutine and must not call
// back into transitions. The returned func unsubscribes.
func (m *Machine) Subscribe(fn func(Snapshot)) func() {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

// commit publishes the current state and releases mu. Callers hold mu.
func (m *Machine) commit() {
	snap := m.state.snapshot()
	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	m.subsMu.RLock()
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Login binds p and moves to mode selection. It is a no-op when already
// authenticated or when p is nil.
func (m *Machine) Login(p *profile.UserProfile) bool {
	m.mu.Lock()
	if m.state.IsAuthenticated || p == nil {
		m.mu.Unlock()
		return false
	}

	user := p.Clone()
	user.SensitivityLevel = profile.ClampSensitivity(user.SensitivityLevel)
	if user.InteractionHistory == nil {
		user.InteractionHistory = []profile.InteractionLog{}
	}
	if user.PreferredGestures == nil {
		user.PreferredGestures = []string{}
	}

	m.state.IsAuthenticated = true
	m.state.CurrentUser = user
	m.logger.Info("operator logged in", "user_id", user.ID)
	m.commit()
	return true
}

// ToggleMode adds mode to the selection if absent and removes it otherwise.
// It only applies during mode selection.
func (m *Machine) ToggleMode(mode profile.Mode) bool {
	m.mu.Lock()
	if m.state.Phase() != PhaseModeSelection || mode == "" {
		m.mu.Unlock()
		return false
	}

	if m.state.HasMode(mode) {
		delete(m.state.SelectedModes, mode)
	} else {
		m.state.SelectedModes[mode] = struct{}{}
	}
	m.commit()
	return true
}

// StartSession enters calibration. It fails with ErrNoModesSelected when the
// selection is empty and with ErrWrongPhase outside mode selection; in both
// cases nothing changes.
func (m *Machine) StartSession() error {
	m.mu.Lock()
	if len(m.state.SelectedModes) == 0 {
		m.mu.Unlock()
		return ErrNoModesSelected
	}
	if m.state.Phase() != PhaseModeSelection {
		m.mu.Unlock()
		return ErrWrongPhase
	}

	m.state.Started = true
	m.state.IsCalibrating = true
	m.state.TutorialStep = 0
	m.logger.Info("session started", "modes", len(m.state.SelectedModes))
	m.commit()
	return nil
}

// ToggleCalibration flips calibration on a started session.
func (m *Machine) ToggleCalibration() bool {
	m.mu.Lock()
	return m.setCalibrating(!m.state.IsCalibrating)
}

// FinishCalibration leaves calibration on a started session.
func (m *Machine) FinishCalibration() bool {
	m.mu.Lock()
	return m.setCalibrating(false)
}

// setCalibrating is the single calibration transition. Callers hold mu.
// The last log is kept either way.
func (m *Machine) setCalibrating(on bool) bool {
	if !m.state.Started {
		m.mu.Unlock()
		return false
	}
	if m.state.IsCalibrating == on {
		m.mu.Unlock()
		return true
	}

	m.state.IsCalibrating = on
	if on {
		m.state.TutorialStep = 0
	}
	m.logger.Debug("calibration changed", "calibrating", on)
	m.commit()
	return true
}

// BeginInference reserves the in-flight slot. It fails with ErrInactive
// outside Calibrating and Live, and ErrBusy while another inference is
// pending.
func (m *Machine) BeginInference() (Ticket, error) {
	m.mu.Lock()
	switch m.state.Phase() {
	case PhaseCalibrating, PhaseLive:
	default:
		m.mu.Unlock()
		return Ticket{}, ErrInactive
	}
	if m.state.IsProcessing {
		m.mu.Unlock()
		return Ticket{}, ErrBusy
	}

	m.seq++
	m.pending = m.seq
	m.state.IsProcessing = true
	t := Ticket{epoch: m.epoch, seq: m.seq, Context: m.state.snapshot()}
	m.commit()
	return t, nil
}

// checkTicket validates t. Callers hold mu.
func (m *Machine) checkTicket(t Ticket) error {
	if t.epoch != m.epoch {
		return ErrStaleResult
	}
	if t.seq == 0 || t.seq != m.pending {
		return ErrNotPending
	}
	return nil
}

// RecordInteraction applies the result of the inference reserved by t: the
// log becomes current, is appended to the user's history and the slot is
// released. While calibrating the tutorial advances one step.
func (m *Machine) RecordInteraction(t Ticket, log profile.InteractionLog) error {
	m.mu.Lock()
	if err := m.checkTicket(t); err != nil {
		m.mu.Unlock()
		return err
	}

	if log.ID == "" {
		log.ID = m.newID()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = m.now()
	}
	log.Confidence = profile.ClampConfidence(log.Confidence)

	m.state.LastLog = &log
	if m.state.CurrentUser != nil {
		m.state.CurrentUser.InteractionHistory = append(m.state.CurrentUser.InteractionHistory, log)
	}
	if m.state.IsCalibrating {
		m.state.TutorialStep++
	}
	m.state.IsProcessing = false
	m.pending = 0

	if m.state.SafetyAlert() {
		m.logger.Warn("safety advisory", "message", log.SystemMessage, "confidence", log.Confidence)
	}
	m.commit()
	return nil
}

// AbortInference releases the slot reserved by t without recording anything.
func (m *Machine) AbortInference(t Ticket) error {
	m.mu.Lock()
	if err := m.checkTicket(t); err != nil {
		m.mu.Unlock()
		return err
	}

	m.state.IsProcessing = false
	m.pending = 0
	m.commit()
	return nil
}

// Logout resets everything to the initial state. Outstanding tickets become
// stale.
func (m *Machine) Logout() {
	m.mu.Lock()
	m.state = initialState()
	m.epoch++
	m.pending = 0
	m.logger.Info("operator logged out")
	m.commit()
}
