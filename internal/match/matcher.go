package match

import (
	"math"

	"dubber/internal/config"
)

// Action is the kind of decision the matcher returns.
type Action int

const (
	// ActionAccept keeps the synthesized audio as-is.
	ActionAccept Action = iota
	// ActionAdjustSpeed re-synthesizes at Decision.Speed.
	ActionAdjustSpeed
	// ActionAdjustText rewrites the text toward Decision.TargetChars before
	// re-synthesizing.
	ActionAdjustText
	// ActionReject stops correcting: the inputs are invalid or the round
	// budget is exhausted. The caller keeps the closest take it already has,
	// or fails the segment when none was ever produced.
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionAdjustSpeed:
		return "adjust_speed"
	case ActionAdjustText:
		return "adjust_text"
	case ActionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Direction selects whether a text rewrite should shorten or lengthen.
type Direction string

const (
	Shorten  Direction = "shorten"
	Lengthen Direction = "lengthen"
)

// State carries the correction history of one segment through the loop.
type State struct {
	Speed       float64
	SpeedRounds int
	TextRounds  int
}

// Rounds returns the total corrections applied so far.
func (s State) Rounds() int {
	return s.SpeedRounds + s.TextRounds
}

// Decision is the matcher verdict for one synthesized take.
type Decision struct {
	Action    Action
	Speed     float64
	Direction Direction
	Reason    string
}

// speedRoundBump is added to the proposed speed on each successive speed
// round; the first proposal alone tends to undershoot because providers do
// not scale duration perfectly linearly with speed.
const speedRoundBump = 0.2

// lengthenThreshold triggers a text expansion when the audio fills less
// than this share of the cue window.
const lengthenThreshold = 0.5

// Matcher evaluates synthesized durations against cue windows.
type Matcher struct {
	tolerance float64 // fraction, e.g. 0.08
	maxSpeed  float64
	maxRounds int
}

// New builds a Matcher from config thresholds.
func New(cfg config.Matcher) *Matcher {
	tolerance := cfg.TolerancePercent / 100
	if tolerance <= 0 {
		tolerance = 0.08
	}
	maxSpeed := cfg.MaxSpeed
	if maxSpeed < 1.0 {
		maxSpeed = 2.0
	}
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}
	return &Matcher{tolerance: tolerance, maxSpeed: maxSpeed, maxRounds: maxRounds}
}

// Evaluate compares the actual audio duration against the cue window and
// returns the next correction to apply. Both durations are in milliseconds.
//
// Audio that fits the window (or deviates within tolerance) is accepted.
// Short audio first sheds any earlier speed-up, then triggers a lengthening
// rewrite when it fills under half the window; what remains short is padded
// with silence at assembly time. Overruns escalate from speed increases to
// text shortening. Every correction is bounded by the round budget.
func (m *Matcher) Evaluate(targetMS, actualMS int64, state State) Decision {
	if targetMS <= 0 || actualMS <= 0 {
		return Decision{Action: ActionReject, Reason: "invalid durations"}
	}

	ratio := float64(actualMS) / float64(targetMS)

	if ratio <= 1+m.tolerance {
		if ratio < 1-m.tolerance && state.Rounds() < m.maxRounds {
			// Short audio at raised speed slows back down toward base speed
			// before any rewrite is considered.
			if state.Speed > 1.0 {
				proposed := math.Max(1.0, state.Speed*ratio)
				if proposed < state.Speed {
					return Decision{
						Action: ActionAdjustSpeed,
						Speed:  roundSpeed(proposed),
						Reason: "audio underruns the cue window",
					}
				}
			}
			if ratio < lengthenThreshold && state.TextRounds == 0 {
				return Decision{
					Action:    ActionAdjustText,
					Direction: Lengthen,
					Reason:    "audio fills under half the cue window",
				}
			}
		}
		return Decision{Action: ActionAccept}
	}

	if state.Rounds() >= m.maxRounds {
		return Decision{Action: ActionReject, Reason: "correction rounds exhausted"}
	}

	currentSpeed := state.Speed
	if currentSpeed < 1.0 {
		currentSpeed = 1.0
	}
	if currentSpeed < m.maxSpeed {
		proposed := currentSpeed * ratio
		proposed += speedRoundBump * float64(state.SpeedRounds)
		proposed = math.Min(proposed, m.maxSpeed)
		if proposed > currentSpeed {
			return Decision{
				Action: ActionAdjustSpeed,
				Speed:  roundSpeed(proposed),
				Reason: "audio overruns the cue window",
			}
		}
	}

	if state.TextRounds < m.maxRounds {
		return Decision{
			Action:    ActionAdjustText,
			Direction: Shorten,
			Reason:    "speed ceiling reached, text still too long",
		}
	}

	return Decision{Action: ActionReject, Reason: "no correction left to apply"}
}

// TextTarget computes the character budget for a rewrite: proportional to
// the duration ratio when shortening, a fixed 20% expansion when lengthening.
func TextTarget(currentChars int, targetMS, actualMS int64, direction Direction) int {
	if currentChars <= 0 {
		return 1
	}
	var target int
	switch direction {
	case Lengthen:
		target = int(math.Round(float64(currentChars) * 1.2))
	default:
		if actualMS <= 0 {
			return currentChars
		}
		target = int(math.Round(float64(currentChars) * float64(targetMS) / float64(actualMS)))
	}
	if target < 1 {
		target = 1
	}
	return target
}

func roundSpeed(speed float64) float64 {
	return math.Round(speed*100) / 100
}
