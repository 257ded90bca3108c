// Package session segments therapy-phase tilt into committed sessions.
package session

import (
	"time"

	"github.com/goodtune/gravityease/internal/smoothing"
	"github.com/rs/zerolog"
)

// MinSegmentDuration is the shortest segment handed to the committer.
const MinSegmentDuration = 10 * time.Second

// Aggregator tracks the open segment of a measurement run. It is owned by the
// tick loop and is not safe for concurrent use.
type Aggregator struct {
	userID      string
	committer   Committer
	minDuration time.Duration
	open        *Segment
	logger      zerolog.Logger
}

// NewAggregator creates an aggregator that hands segments to committer.
func NewAggregator(userID string, committer Committer, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		userID:      userID,
		committer:   committer,
		minDuration: MinSegmentDuration,
		logger:      logger.With().Str("component", "session-aggregator").Logger(),
	}
}

// Observe is called once per tick. While active, a change of the rounded
// angle closes the open segment and opens a new one at now. When inactive any
// open segment is closed.
func (a *Aggregator) Observe(active bool, filtered float64, now time.Time) []Outcome {
	if !active {
		return a.Close(now)
	}

	angle := smoothing.RoundDegrees(filtered)
	if a.open != nil && a.open.HoldAngle == angle {
		return nil
	}

	outcomes := a.Close(now)
	a.open = &Segment{
		UserID:    a.userID,
		HoldAngle: angle,
		Start:     now,
	}

	a.logger.Debug().
		Float64("angle", angle).
		Time("start", now).
		Msg("Opened segment")

	return outcomes
}

// Close ends the open segment at now and commits it when it lasted at least
// MinSegmentDuration.
func (a *Aggregator) Close(now time.Time) []Outcome {
	if a.open == nil {
		return nil
	}

	seg := *a.open
	seg.End = now
	a.open = nil

	if seg.Duration() < a.minDuration {
		a.logger.Debug().
			Float64("angle", seg.HoldAngle).
			Dur("duration", seg.Duration()).
			Dur("min_duration", a.minDuration).
			Msg("Segment too short, discarding")
		return []Outcome{{Segment: seg}}
	}

	if a.committer != nil {
		a.committer.Commit(seg)
	}

	a.logger.Info().
		Str("user_id", seg.UserID).
		Float64("angle", seg.HoldAngle).
		Dur("duration", seg.Duration()).
		Msg("Committed segment")

	return []Outcome{{Segment: seg, Committed: true}}
}

// Open returns the currently open segment.
func (a *Aggregator) Open() (Segment, bool) {
	if a.open == nil {
		return Segment{}, false
	}
	return *a.open, true
}

// Elapsed returns how long the open segment has been held at now.
func (a *Aggregator) Elapsed(now time.Time) time.Duration {
	if a.open == nil {
		return 0
	}
	return now.Sub(a.open.Start)
}

// UserID returns the user segments are attributed to.
func (a *Aggregator) UserID() string {
	return a.userID
}
