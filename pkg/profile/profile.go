// Package profile holds the seed data and value types shared by the session,
// the inference gateway and the web layer.
package profile

import (
	"time"
)

// Sensitivity bounds.
const (
	MinSensitivity = 1
	MaxSensitivity = 10
)

// Mode is a named capability the system interprets frames for.
type Mode string

// Interaction modes offered on the selection screen.
const (
	ModeGesture    Mode = "gesture"
	ModePosture    Mode = "posture"
	ModeWave       Mode = "wave"
	ModeExpression Mode = "expression"
	ModeFatigue    Mode = "fatigue"
)

// ModeInfo describes a mode for the selection screen.
type ModeInfo struct {
	Mode        Mode   `json:"mode"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

var catalog = []ModeInfo{
	{Mode: ModeGesture, Label: "Gesture Control", Description: "Hand gestures such as thumbs up, open palm and pointing"},
	{Mode: ModePosture, Label: "Posture Analysis", Description: "Seated and standing posture, slouching and leaning"},
	{Mode: ModeWave, Label: "Wave Detection", Description: "Greeting and attention waves"},
	{Mode: ModeExpression, Label: "Facial Expression", Description: "Smiles, frowns and surprise"},
	{Mode: ModeFatigue, Label: "Fatigue Monitor", Description: "Drowsiness, yawning and eye closure"},
}

// Modes returns the mode catalog in display order.
func Modes() []ModeInfo {
	out := make([]ModeInfo, len(catalog))
	copy(out, catalog)
	return out
}

// LookupMode returns the catalog entry for m.
func LookupMode(m Mode) (ModeInfo, bool) {
	for _, info := range catalog {
		if info.Mode == m {
			return info, true
		}
	}
	return ModeInfo{}, false
}

// Rank returns the catalog position of m, or len(catalog) for unknown modes
// so they sort last.
func Rank(m Mode) int {
	for i, info := range catalog {
		if info.Mode == m {
			return i
		}
	}
	return len(catalog)
}

// InteractionLog is one interpreted frame. It is never modified after it is
// recorded.
type InteractionLog struct {
	ID              string    `json:"id,omitempty"`
	SystemMessage   string    `json:"systemMessage"`
	Confidence      int       `json:"confidence"`
	DetectedGesture string    `json:"detectedGesture,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// UserProfile is the operator bound to a session.
type UserProfile struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	SensitivityLevel   int              `json:"sensitivityLevel"`
	PreferredGestures  []string         `json:"preferredGestures"`
	InteractionHistory []InteractionLog `json:"interactionHistory"`
}

// Clone returns a deep copy of p.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	if p.PreferredGestures != nil {
		c.PreferredGestures = append([]string(nil), p.PreferredGestures...)
	}
	if p.InteractionHistory != nil {
		c.InteractionHistory = append([]InteractionLog(nil), p.InteractionHistory...)
	}
	return &c
}

// ClampSensitivity bounds level to [MinSensitivity, MaxSensitivity].
// Zero means "unset" and maps to the midpoint.
func ClampSensitivity(level int) int {
	switch {
	case level == 0:
		return (MinSensitivity + MaxSensitivity) / 2
	case level < MinSensitivity:
		return MinSensitivity
	case level > MaxSensitivity:
		return MaxSensitivity
	}
	return level
}

// ClampConfidence bounds a confidence score to 0..100.
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// MockUser returns the demo operator.
func MockUser() *UserProfile {
	return &UserProfile{
		ID:                 "USR-7721-X",
		Name:               "Alex Rivera",
		SensitivityLevel:   7,
		PreferredGestures:  []string{"wave", "thumbs_up", "open_palm"},
		InteractionHistory: []InteractionLog{},
	}
}
