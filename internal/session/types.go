package session

import (
	"fmt"
	"time"
)

// Segment is one contiguous interval of therapy-range tilt held at a single
// whole-degree angle.
type Segment struct {
	UserID    string
	HoldAngle float64
	Start     time.Time
	End       time.Time // zero while the segment is open
}

// Duration returns End - Start, or 0 for an open segment.
func (s Segment) Duration() time.Duration {
	if s.End.IsZero() {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Key identifies a segment for idempotent commits.
func (s Segment) Key() string {
	return fmt.Sprintf("%s:%d:%g", s.UserID, s.Start.UnixMilli(), s.HoldAngle)
}

// Committer receives segments that passed the minimum duration rule.
// Commit must not block the caller.
type Committer interface {
	Commit(seg Segment)
}

// Outcome reports what happened to a segment when it was closed.
type Outcome struct {
	Segment   Segment
	Committed bool
}
