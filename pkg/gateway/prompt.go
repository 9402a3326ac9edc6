package gateway

import (
	"fmt"
	"strings"

	"github.com/teslashibe/pulseai/pkg/profile"
)

const systemPrompt = `You are PulseAI, a vision-based interaction monitor watching one operator through a webcam.
Reply with a single JSON object and nothing else:
{"systemMessage": string, "confidence": number, "detectedGesture": string}
- systemMessage: one short sentence addressed to the operator.
- confidence: 0 to 100, how sure you are of the observation.
- detectedGesture: a snake_case label such as "wave" or "thumbs_up", or "" if none.
If the operator's posture, fatigue or surroundings look unsafe, systemMessage must include the word "safety" or "risky".
Otherwise never use those words.`

// calibrationSteps guide the operator through the tutorial, one per
// recorded interaction.
var calibrationSteps = []string{
	"Ask the operator to face the camera and hold still.",
	"Ask the operator to raise an open palm.",
	"Ask the operator to wave.",
	"Ask the operator to give a thumbs up.",
	"Tell the operator calibration is complete and they can finish.",
}

// buildPrompt renders the per-frame instructions for c.
func buildPrompt(c Context) string {
	var sb strings.Builder

	sb.WriteString("Active interaction modes:\n")
	if len(c.Modes) == 0 {
		sb.WriteString("- none (describe what you see)\n")
	}
	for _, m := range c.Modes {
		if info, ok := profile.LookupMode(m); ok {
			fmt.Fprintf(&sb, "- %s: %s\n", info.Label, info.Description)
		} else {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
	}

	fmt.Fprintf(&sb, "\nSensitivity: %d of %d. ", profile.ClampSensitivity(c.Sensitivity), profile.MaxSensitivity)
	switch s := profile.ClampSensitivity(c.Sensitivity); {
	case s >= 8:
		sb.WriteString("Report subtle cues.\n")
	case s <= 3:
		sb.WriteString("Only report clear, deliberate cues.\n")
	default:
		sb.WriteString("Report clear cues and obvious changes.\n")
	}

	if len(c.PreferredGestures) > 0 {
		fmt.Fprintf(&sb, "Preferred gestures: %s.\n", strings.Join(c.PreferredGestures, ", "))
	}

	if c.Calibrating {
		step := c.TutorialStep
		if step >= len(calibrationSteps) {
			step = len(calibrationSteps) - 1
		}
		if step < 0 {
			step = 0
		}
		fmt.Fprintf(&sb, "\nCalibration step %d of %d. %s Confirm whether the operator did it.\n",
			step+1, len(calibrationSteps), calibrationSteps[step])
	} else {
		sb.WriteString("\nInterpret the frame for the active modes.\n")
	}

	return sb.String()
}
