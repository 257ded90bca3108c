package therapy

import (
	"math"
	"time"

	"github.com/goodtune/gravityease/internal/session"
	"github.com/goodtune/gravityease/internal/smoothing"
	"github.com/rs/zerolog"
)

// Input is one of the control messages an Engine accepts between ticks.
type Input interface {
	isInput()
}

// StartInput begins a measurement run.
type StartInput struct{}

// StopInput ends the run, evaluating any open segment.
type StopInput struct{}

// SampleInput carries the latest raw tilt reading in degrees.
type SampleInput struct {
	Degrees float64
}

// SensorStatusInput reports whether the tilt sensor can be used.
type SensorStatusInput struct {
	Available bool
}

func (StartInput) isInput()        {}
func (StopInput) isInput()         {}
func (SampleInput) isInput()       {}
func (SensorStatusInput) isInput() {}

// Snapshot is the per-tick record published for display.
type Snapshot struct {
	At              time.Time `json:"at"`
	Phase           Phase     `json:"phase"`
	RawAngle        float64   `json:"raw_angle"`
	FilteredAngle   float64   `json:"filtered_angle"`
	InTherapyRange  bool      `json:"in_therapy_range"`
	SegmentOpen     bool      `json:"segment_open"`
	SegmentAngle    float64   `json:"segment_angle"`
	SegmentElapsed  float64   `json:"segment_elapsed_seconds"`
	SensorAvailable bool      `json:"sensor_available"`
}

// Output collects everything a tick or command produced.
type Output struct {
	Snapshot      Snapshot
	Transitions   []Transition
	Announcements []Announcement
	Segments      []session.Outcome
	StopSpeaking  bool
}

// Engine owns the state of one therapy station and evaluates it tick by
// tick. All methods must be called from a single goroutine.
type Engine struct {
	smoother *smoothing.Smoother
	machine  Machine
	gate     Gate
	state    State
	agg      *session.Aggregator

	raw             float64
	malformed       bool
	sensorAvailable bool

	logger zerolog.Logger
}

// NewEngine creates an engine in the Ready phase. The sensor is assumed
// available until a SensorStatusInput says otherwise.
func NewEngine(agg *session.Aggregator, logger zerolog.Logger) *Engine {
	return &Engine{
		smoother:        smoothing.New(),
		agg:             agg,
		sensorAvailable: true,
		logger:          logger.With().Str("component", "therapy-engine").Logger(),
	}
}

// Handle applies a control input at now.
func (e *Engine) Handle(now time.Time, in Input) (Output, error) {
	var out Output

	switch in := in.(type) {
	case SampleInput:
		if math.IsNaN(in.Degrees) || math.IsInf(in.Degrees, 0) {
			e.malformed = true
			break
		}
		e.raw = in.Degrees
		e.malformed = false

	case SensorStatusInput:
		if e.sensorAvailable != in.Available {
			e.logger.Info().Bool("available", in.Available).Msg("Sensor availability changed")
		}
		e.sensorAvailable = in.Available

	case StartInput:
		if !e.sensorAvailable {
			return e.output(now, out), ErrSensorUnavailable
		}
		tr, ok := e.machine.Start(&e.state, now)
		if !ok {
			break
		}
		e.smoother.Reset()
		out.Transitions = append(out.Transitions, tr)
		out.Announcements = append(out.Announcements, Announcement{Kind: AnnounceTherapyStart, Force: true})
		e.logTransition(tr)

	case StopInput:
		if e.state.Phase == Ready {
			break
		}
		out.Segments = e.agg.Close(now)
		tr, _ := e.machine.Stop(&e.state, now)
		e.smoother.Reset()
		out.Transitions = append(out.Transitions, tr)
		out.StopSpeaking = true
		e.logTransition(tr)
	}

	return e.output(now, out), nil
}

// Tick evaluates one period: smoothing, phase, announcements, then segments.
// A tick following a malformed sample changes nothing.
func (e *Engine) Tick(now time.Time) Output {
	var out Output

	if e.malformed {
		return e.output(now, out)
	}

	filtered := e.smoother.Ingest(e.raw)
	if e.state.Phase == Ready {
		return e.output(now, out)
	}

	tr, reached := e.machine.Advance(&e.state, filtered, now)
	if tr != nil {
		out.Transitions = append(out.Transitions, *tr)
		e.logTransition(*tr)
	}
	if reached {
		out.Announcements = append(out.Announcements, Announcement{Kind: AnnounceHorizontalReached})
	}

	if a := e.gate.ShouldAnnounce(&e.state, filtered, now); a != nil {
		out.Announcements = append(out.Announcements, *a)
		e.logger.Debug().
			Stringer("kind", a.Kind).
			Int("degrees", a.Degrees).
			Bool("danger", a.Danger).
			Msg("Announcement due")
	}

	out.Segments = e.agg.Observe(e.state.Phase == Therapy, filtered, now)

	return e.output(now, out)
}

// State returns a copy of the current phase state.
func (e *Engine) State() State {
	return e.state
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	return e.state.Phase
}

// Snapshot describes the engine at now without advancing it.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		At:              now,
		Phase:           e.state.Phase,
		RawAngle:        e.raw,
		FilteredAngle:   e.smoother.Filtered(),
		InTherapyRange:  e.state.Phase == Therapy,
		SensorAvailable: e.sensorAvailable,
	}
	if seg, ok := e.agg.Open(); ok {
		snap.SegmentOpen = true
		snap.SegmentAngle = seg.HoldAngle
		snap.SegmentElapsed = e.agg.Elapsed(now).Seconds()
	}
	return snap
}

func (e *Engine) output(now time.Time, out Output) Output {
	out.Snapshot = e.Snapshot(now)
	return out
}

func (e *Engine) logTransition(tr Transition) {
	e.logger.Info().
		Stringer("from", tr.From).
		Stringer("to", tr.To).
		Time("at", tr.At).
		Msg("Phase transition")
}
