package therapy

import (
	"time"

	"github.com/goodtune/gravityease/internal/smoothing"
)

// AnnouncementKind selects the line a phrasebook renders.
type AnnouncementKind int

const (
	AnnounceTherapyStart AnnouncementKind = iota
	AnnounceHorizontalReached
	AnnounceLevel
	AnnouncePositive
	AnnounceNegative
)

func (k AnnouncementKind) String() string {
	switch k {
	case AnnounceTherapyStart:
		return "therapy_start"
	case AnnounceHorizontalReached:
		return "horizontal_reached"
	case AnnounceLevel:
		return "level"
	case AnnouncePositive:
		return "positive"
	case AnnounceNegative:
		return "negative"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name.
func (k AnnouncementKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Announcement is a request for the voice output to speak one line.
type Announcement struct {
	Kind    AnnouncementKind `json:"kind"`
	Degrees int              `json:"degrees"`
	Danger  bool             `json:"danger"`
	Force   bool             `json:"force"`
}

// Gate decides when angle announcements are spoken. Like Machine it keeps
// its timers in State.
type Gate struct{}

// ShouldAnnounce returns the angle announcement due at now, or nil. It must
// run after Machine.Advance for the same tick.
func (Gate) ShouldAnnounce(st *State, filtered float64, now time.Time) *Announcement {
	if st.Phase == Ready {
		return nil
	}
	// Reaching therapy range opens the gate regardless of the opening line.
	if st.Phase == Preparing && now.Before(st.InitialGateOpenAt) {
		return nil
	}
	inHorizontalPhase := st.Phase == Horizontal || st.Phase == Therapy
	if inHorizontalPhase && now.Before(st.HorizontalGateOpenAt) {
		return nil
	}

	angle := smoothing.RoundDegrees(filtered)
	if st.HasLastAnnounced && angle == st.LastAnnouncedAngle {
		st.AngleHoldStartAt = time.Time{}
		return nil
	}
	if st.AngleHoldStartAt.IsZero() || angle != st.HoldAngle {
		st.AngleHoldStartAt = now
		st.HoldAngle = angle
		return nil
	}
	if now.Sub(st.AngleHoldStartAt) < DwellTime {
		return nil
	}

	st.AngleHoldStartAt = time.Time{}
	st.LastAnnouncedAngle = angle
	st.HasLastAnnounced = true

	level := InHorizontalRange(angle)
	if level && inHorizontalPhase {
		return nil
	}

	a := &Announcement{Degrees: int(angle)}
	switch {
	case level && !st.LevelAnnounced && !st.InitialHorizontalAnnounced:
		a.Kind = AnnounceLevel
		st.LevelAnnounced = true
	case angle < 0:
		a.Kind = AnnounceNegative
	default:
		a.Kind = AnnouncePositive
	}
	a.Danger = filtered < TherapyMin && (inHorizontalPhase || st.InitialHorizontalAnnounced)

	return a
}
