// Package therapy classifies the filtered tilt angle into protocol phases and
// decides when voice guidance should be spoken.
package therapy

import (
	"errors"
	"fmt"
	"time"
)

// ErrSensorUnavailable is returned by Start while no tilt sensor is usable.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// Phase is the protocol phase of a measurement run.
type Phase int

const (
	Ready Phase = iota
	Preparing
	Horizontal
	Therapy
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "ready"
	case Preparing:
		return "preparing"
	case Horizontal:
		return "horizontal"
	case Therapy:
		return "therapy"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase by name in JSON and logs.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{Ready, Preparing, Horizontal, Therapy} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Protocol constants.
const (
	HorizontalMin = 0.0
	HorizontalMax = 2.0
	TherapyMin    = -15.0
	TherapyMax    = -1.0

	DwellTime           = 2 * time.Second
	InitialGateDelay    = 8 * time.Second
	HorizontalGateDelay = 10 * time.Second
)

// InHorizontalRange reports whether angle lies in [0, 2] degrees.
func InHorizontalRange(angle float64) bool {
	return angle >= HorizontalMin && angle <= HorizontalMax
}

// InTherapyRange reports whether angle lies in [-15, -1] degrees.
func InTherapyRange(angle float64) bool {
	return angle >= TherapyMin && angle <= TherapyMax
}

// State is the mutable bundle threaded through every tick of a run. Zero
// time values mean the timer is not armed.
type State struct {
	Phase Phase

	HorizontalEntryAt time.Time

	LastAnnouncedAngle float64
	HasLastAnnounced   bool
	AngleHoldStartAt   time.Time
	HoldAngle          float64

	InitialGateOpenAt    time.Time
	HorizontalGateOpenAt time.Time

	InitialHorizontalAnnounced bool
	LevelAnnounced             bool
}

// Transition records a phase change and the tick it happened on.
type Transition struct {
	From Phase     `json:"from"`
	To   Phase     `json:"to"`
	At   time.Time `json:"at"`
}
