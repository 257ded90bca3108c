// Package sensor provides tilt readings to the measurement loop.
package sensor

import (
	"math"
	"time"
)

// Reading is the most recent conditioned tilt angle.
type Reading struct {
	Degrees float64   `json:"degrees"`
	At      time.Time `json:"at"`
}

// Source is anything that can report the latest tilt angle.
type Source interface {
	// Latest returns the newest reading; ok is false before the first one.
	Latest() (r Reading, ok bool)
	// Available reports whether readings are fresh enough to measure with.
	Available() bool
	Close() error
}

// Conditioner maps device pitch onto the therapy angle convention: raising
// the foot end reads negative.
type Conditioner struct {
	Invert bool
	Offset float64
}

// Apply inverts, offsets and clamps raw to [-90, 90].
func (c Conditioner) Apply(raw float64) float64 {
	v := raw
	if c.Invert {
		v = -v
	}
	v += c.Offset
	return math.Max(-90, math.Min(90, v))
}

// PitchFromAccel computes pitch in degrees from accelerometer axes:
// atan2(-ax, sqrt(ay² + az²)).
func PitchFromAccel(ax, ay, az float64) float64 {
	return math.Atan2(-ax, math.Sqrt(ay*ay+az*az)) * 180 / math.Pi
}
