// Package smoothing filters the raw tilt signal into a stable angle.
package smoothing

import "math"

// WindowSize is the number of raw samples averaged into one filtered angle.
const WindowSize = 5

// Smoother keeps a moving-average window over the most recent raw angles.
// It is not safe for concurrent use; the tick loop owns it.
type Smoother struct {
	buf      [WindowSize]float64
	start    int
	n        int
	filtered float64
}

// New returns an empty smoother whose filtered angle is 0.
func New() *Smoother {
	return &Smoother{}
}

// Ingest appends a raw angle, evicting the oldest sample once the window is
// full, and returns the window mean rounded to one decimal place.
func (s *Smoother) Ingest(raw float64) float64 {
	if s.n < WindowSize {
		s.buf[(s.start+s.n)%WindowSize] = raw
		s.n++
	} else {
		s.buf[s.start] = raw
		s.start = (s.start + 1) % WindowSize
	}

	var sum float64
	for i := 0; i < s.n; i++ {
		sum += s.buf[(s.start+i)%WindowSize]
	}
	s.filtered = RoundTenths(sum / float64(s.n))
	return s.filtered
}

// Filtered returns the last filtered angle, or 0 before any sample.
func (s *Smoother) Filtered() float64 {
	return s.filtered
}

// Len returns the number of samples currently in the window.
func (s *Smoother) Len() int {
	return s.n
}

// Window returns the buffered samples, oldest first.
func (s *Smoother) Window() []float64 {
	out := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.buf[(s.start+i)%WindowSize]
	}
	return out
}

// Reset drops all buffered samples.
func (s *Smoother) Reset() {
	*s = Smoother{}
}

// RoundTenths rounds to one decimal place with halves toward +Inf.
func RoundTenths(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

// RoundDegrees rounds to the nearest whole degree with halves toward +Inf,
// so -4.5 becomes -4 and 4.5 becomes 5.
func RoundDegrees(v float64) float64 {
	return math.Floor(v + 0.5)
}
