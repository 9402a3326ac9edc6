package session

import (
	"sort"
	"strings"

	"github.com/teslashibe/pulseai/pkg/profile"
)

// Phase is the coarse position of the session in its lifecycle.
type Phase string

const (
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseModeSelection   Phase = "mode_selection"
	PhaseCalibrating     Phase = "calibrating"
	PhaseLive            Phase = "live"
)

// View is the screen a presentation layer should render.
type View string

const (
	ViewAuth        View = "auth"
	ViewModeSelect  View = "mode_select"
	ViewCalibration View = "calibration"
	ViewDashboard   View = "dashboard"
)

// Advisory keywords. Matching is case-insensitive substring containment.
var advisoryKeywords = []string{"safety", "risky"}

// IsSafetyAdvisory reports whether an interpreted message should raise the
// safety alert.
func IsSafetyAdvisory(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range advisoryKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// State is the aggregate root. It is only mutated by Machine transitions.
type State struct {
	IsAuthenticated bool
	IsCalibrating   bool
	Started         bool
	SelectedModes   map[profile.Mode]struct{}
	CurrentUser     *profile.UserProfile
	LastLog         *profile.InteractionLog
	IsProcessing    bool
	TutorialStep    int
}

func initialState() State {
	return State{SelectedModes: make(map[profile.Mode]struct{})}
}

// SafetyAlert is derived from the last log and never stored.
func (s *State) SafetyAlert() bool {
	return s.LastLog != nil && IsSafetyAdvisory(s.LastLog.SystemMessage)
}

// HasMode reports whether m is selected.
func (s *State) HasMode(m profile.Mode) bool {
	_, ok := s.SelectedModes[m]
	return ok
}

// Phase derives the lifecycle phase.
func (s *State) Phase() Phase {
	switch {
	case !s.IsAuthenticated:
		return PhaseUnauthenticated
	case !s.Started:
		return PhaseModeSelection
	case s.IsCalibrating:
		return PhaseCalibrating
	default:
		return PhaseLive
	}
}

// View derives the screen to render. The dashboard requires authentication,
// a non-empty selection and either a finished calibration or a first log.
func (s *State) View() View {
	switch {
	case !s.IsAuthenticated:
		return ViewAuth
	case !s.Started || len(s.SelectedModes) == 0:
		return ViewModeSelect
	case s.IsCalibrating && s.LastLog == nil:
		return ViewCalibration
	default:
		return ViewDashboard
	}
}

// modes returns the selection in catalog order.
func (s *State) modes() []profile.Mode {
	out := make([]profile.Mode, 0, len(s.SelectedModes))
	for m := range s.SelectedModes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := profile.Rank(out[i]), profile.Rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

// Snapshot is an immutable copy of the state with derived fields filled in.
type Snapshot struct {
	Phase               Phase                   `json:"phase"`
	View                View                    `json:"view"`
	IsAuthenticated     bool                    `json:"isAuthenticated"`
	IsCalibrating       bool                    `json:"isCalibrating"`
	Started             bool                    `json:"started"`
	SelectedModes       []profile.Mode          `json:"selectedModes"`
	CurrentUser         *profile.UserProfile    `json:"currentUser"`
	LastLog             *profile.InteractionLog `json:"lastLog"`
	IsProcessing        bool                    `json:"isProcessing"`
	IsSafetyAlertActive bool                    `json:"isSafetyAlertActive"`
	TutorialStep        int                     `json:"tutorialStep"`
}

func (s *State) snapshot() Snapshot {
	snap := Snapshot{
		Phase:               s.Phase(),
		View:                s.View(),
		IsAuthenticated:     s.IsAuthenticated,
		IsCalibrating:       s.IsCalibrating,
		Started:             s.Started,
		SelectedModes:       s.modes(),
		CurrentUser:         s.CurrentUser.Clone(),
		IsProcessing:        s.IsProcessing,
		IsSafetyAlertActive: s.SafetyAlert(),
		TutorialStep:        s.TutorialStep,
	}
	if s.LastLog != nil {
		l := *s.LastLog
		snap.LastLog = &l
	}
	return snap
}

// Sensitivity returns the bound user's sensitivity, or the midpoint.
func (s Snapshot) Sensitivity() int {
	if s.CurrentUser == nil {
		return profile.ClampSensitivity(0)
	}
	return profile.ClampSensitivity(s.CurrentUser.SensitivityLevel)
}

// History returns the bound user's interaction history, newest last.
func (s Snapshot) History() []profile.InteractionLog {
	if s.CurrentUser == nil {
		return []profile.InteractionLog{}
	}
	return s.CurrentUser.InteractionHistory
}
