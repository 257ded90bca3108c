package therapy

import "time"

// Machine advances the protocol phase from the filtered angle. It holds no
// state of its own; everything lives in State.
type Machine struct{}

// Start moves a Ready run into Preparing and arms the opening gate. It
// returns false if the run was already started.
func (Machine) Start(st *State, now time.Time) (Transition, bool) {
	if st.Phase != Ready {
		return Transition{}, false
	}
	*st = State{
		Phase:             Preparing,
		InitialGateOpenAt: now.Add(InitialGateDelay),
	}
	return Transition{From: Ready, To: Preparing, At: now}, true
}

// Stop clears every timer and returns the run to Ready.
func (Machine) Stop(st *State, now time.Time) (Transition, bool) {
	if st.Phase == Ready {
		return Transition{}, false
	}
	from := st.Phase
	*st = State{}
	return Transition{From: from, To: Ready, At: now}, true
}

// Advance evaluates one tick. It returns the transition taken, if any, and
// whether the horizontal-reached line should be requested.
//
// The Preparing dwell counts from the first tick inside [0, 2] and resets only
// when the angle leaves that range; moving within it keeps the timer running.
func (Machine) Advance(st *State, angle float64, now time.Time) (*Transition, bool) {
	from := st.Phase

	switch st.Phase {
	case Preparing:
		if !InHorizontalRange(angle) {
			st.HorizontalEntryAt = time.Time{}
			return nil, false
		}
		if st.HorizontalEntryAt.IsZero() {
			st.HorizontalEntryAt = now
		}
		if now.Sub(st.HorizontalEntryAt) < DwellTime {
			return nil, false
		}
		st.Phase = Horizontal
		st.HorizontalGateOpenAt = now.Add(HorizontalGateDelay)
		st.InitialHorizontalAnnounced = true
		return &Transition{From: from, To: Horizontal, At: now}, true

	case Horizontal:
		switch {
		case InTherapyRange(angle):
			st.Phase = Therapy
			st.HorizontalGateOpenAt = time.Time{}
		case angle > HorizontalMax:
			st.Phase = Preparing
			st.HorizontalEntryAt = time.Time{}
		default:
			return nil, false
		}

	case Therapy:
		if InTherapyRange(angle) {
			return nil, false
		}
		st.HorizontalEntryAt = time.Time{}
		if InHorizontalRange(angle) {
			st.Phase = Horizontal
		} else {
			st.Phase = Preparing
		}

	default:
		return nil, false
	}

	return &Transition{From: from, To: st.Phase, At: now}, false
}
