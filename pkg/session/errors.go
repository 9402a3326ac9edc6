package session

import "errors"

// Sentinel errors returned by transitions. None of them change state.
var (
	// ErrNoModesSelected is returned by StartSession with an empty selection.
	ErrNoModesSelected = errors.New("session: no interaction mode selected")

	// ErrWrongPhase is returned when a transition is attempted outside its phase.
	ErrWrongPhase = errors.New("session: transition not valid in current phase")

	// ErrInactive is returned by BeginInference outside Calibrating or Live.
	ErrInactive = errors.New("session: no active session")

	// ErrBusy is returned by BeginInference while an inference is pending.
	ErrBusy = errors.New("session: inference already in flight")

	// ErrStaleResult is returned when a result belongs to a session that has
	// since been logged out.
	ErrStaleResult = errors.New("session: stale inference result")

	// ErrNotPending is returned when a ticket does not match the pending inference.
	ErrNotPending = errors.New("session: ticket is not pending")
)

// Notice returns the operator-facing text for a transition error, or "" if
// the error is not meant to be shown.
func Notice(err error) string {
	switch {
	case errors.Is(err, ErrNoModesSelected):
		return "Please select at least one interaction mode."
	case errors.Is(err, ErrWrongPhase):
		return "That action is not available right now."
	}
	return ""
}
