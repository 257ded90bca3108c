package sensor

import (
	"math"
	"time"
)

// MockSource produces a demo angle of -5 + 3·sin(t) degrees so the station
// can be exercised without hardware.
type MockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a demo source starting at now().
func NewMockSource(now func() time.Time) *MockSource {
	if now == nil {
		now = time.Now
	}
	return &MockSource{start: now(), now: now}
}

func (m *MockSource) Latest() (Reading, bool) {
	at := m.now()
	elapsed := at.Sub(m.start).Seconds()
	return Reading{Degrees: -5 + 3*math.Sin(elapsed), At: at}, true
}

func (m *MockSource) Available() bool { return true }

func (m *MockSource) Close() error { return nil }
