package therapy

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/goodtune/gravityease/internal/session"
	"github.com/rs/zerolog"
)

const tick = 100 * time.Millisecond

type recorder struct {
	segments []session.Segment
}

func (r *recorder) Commit(seg session.Segment) {
	r.segments = append(r.segments, seg)
}

type harness struct {
	t         *testing.T
	clock     *TestClock
	engine    *Engine
	committed *recorder

	transitions   []Transition
	announcements []Announcement
	outcomes      []session.Outcome
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &recorder{}
	agg := session.NewAggregator("tester", rec, zerolog.Nop())
	return &harness{
		t:         t,
		clock:     &TestClock{CurrentTime: t0},
		engine:    NewEngine(agg, zerolog.Nop()),
		committed: rec,
	}
}

func (h *harness) collect(out Output) {
	h.transitions = append(h.transitions, out.Transitions...)
	h.announcements = append(h.announcements, out.Announcements...)
	h.outcomes = append(h.outcomes, out.Segments...)
}

func (h *harness) handle(in Input) (Output, error) {
	out, err := h.engine.Handle(h.clock.Now(), in)
	h.collect(out)
	return out, err
}

// feed delivers raw at every tick for d.
func (h *harness) feed(raw float64, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += tick {
		now := h.clock.Advance(tick)
		if _, err := h.engine.Handle(now, SampleInput{Degrees: raw}); err != nil {
			h.t.Fatalf("sample: %v", err)
		}
		h.collect(h.engine.Tick(now))
	}
}

func (h *harness) countAnnouncements(kind AnnouncementKind) int {
	n := 0
	for _, a := range h.announcements {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func TestEngineFullRun(t *testing.T) {
	h := newHarness(t)

	out, err := h.handle(StartInput{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(out.Announcements) != 1 || out.Announcements[0].Kind != AnnounceTherapyStart || !out.Announcements[0].Force {
		t.Fatalf("start announcements = %+v", out.Announcements)
	}

	h.feed(1, 2100*time.Millisecond)
	if h.engine.Phase() != Horizontal {
		t.Fatalf("phase after 2.1s level = %v, want horizontal", h.engine.Phase())
	}
	if n := h.countAnnouncements(AnnounceHorizontalReached); n != 1 {
		t.Errorf("horizontal-reached requested %d times, want 1", n)
	}

	h.feed(-5, 500*time.Millisecond)
	if h.engine.Phase() != Therapy {
		t.Fatalf("phase after lowering = %v, want therapy", h.engine.Phase())
	}
	snap := h.engine.Snapshot(h.clock.Now())
	if !snap.SegmentOpen || snap.SegmentAngle != -5 {
		t.Fatalf("snapshot = %+v, want open segment at -5", snap)
	}

	h.feed(-5, 12*time.Second)

	out, err = h.handle(StopInput{})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !out.StopSpeaking {
		t.Error("stop should silence speech")
	}
	if h.engine.Phase() != Ready || h.engine.State() != (State{}) {
		t.Errorf("state after stop = %+v", h.engine.State())
	}

	if len(h.committed.segments) != 1 {
		t.Fatalf("committed %d segments, want 1: %+v", len(h.committed.segments), h.committed.segments)
	}
	seg := h.committed.segments[0]
	if seg.HoldAngle != -5 {
		t.Errorf("committed angle = %v, want -5", seg.HoldAngle)
	}
	if d := seg.Duration(); d < 11900*time.Millisecond || d > 12100*time.Millisecond {
		t.Errorf("committed duration = %v, want about 12s", d)
	}

	for _, o := range h.outcomes {
		if o.Committed && o.Segment.Duration() < session.MinSegmentDuration {
			t.Errorf("short segment committed: %+v", o.Segment)
		}
	}

	if n := h.countAnnouncements(AnnounceNegative); n != 1 {
		t.Errorf("negative announcements = %d, want 1", n)
	}
}

func TestEngineTherapyFeedbackBeforeOpeningGate(t *testing.T) {
	h := newHarness(t)
	h.handle(StartInput{})
	h.feed(1, 2100*time.Millisecond)
	h.feed(-5, 3500*time.Millisecond)

	if h.engine.Phase() != Therapy {
		t.Fatalf("phase = %v, want therapy", h.engine.Phase())
	}
	if elapsed := h.clock.Now().Sub(t0); elapsed >= InitialGateDelay {
		t.Fatalf("elapsed %v, want inside the opening window", elapsed)
	}

	var got []Announcement
	for _, a := range h.announcements {
		if a.Kind == AnnounceNegative {
			got = append(got, a)
		}
	}
	if len(got) != 1 || got[0].Degrees != -5 {
		t.Fatalf("negative announcements = %+v, want one at -5", got)
	}
}

func TestEngineNoiseRejection(t *testing.T) {
	h := newHarness(t)
	h.handle(StartInput{})
	h.feed(1, 2100*time.Millisecond)
	h.feed(-5, 20*time.Second)
	h.feed(-6, 1500*time.Millisecond)
	h.feed(-5, 15*time.Second)
	h.handle(StopInput{})

	if len(h.committed.segments) != 2 {
		t.Fatalf("committed %d segments, want 2: %+v", len(h.committed.segments), h.committed.segments)
	}
	for _, seg := range h.committed.segments {
		if seg.HoldAngle != -5 {
			t.Errorf("committed segment at %v, flicker should not be recorded", seg.HoldAngle)
		}
	}
}

func TestEngineDangerousAngle(t *testing.T) {
	h := newHarness(t)
	h.handle(StartInput{})
	h.feed(1, 2100*time.Millisecond)
	h.feed(-5, 12*time.Second)
	h.feed(-16, 3*time.Second)

	var found bool
	for _, a := range h.announcements {
		if a.Danger {
			found = true
			if a.Degrees != -16 {
				t.Errorf("danger announcement degrees = %d, want -16", a.Degrees)
			}
		}
	}
	if !found {
		t.Fatalf("no safety warning requested: %+v", h.announcements)
	}
}

func TestEngineStartRequiresSensor(t *testing.T) {
	h := newHarness(t)
	h.handle(SensorStatusInput{Available: false})

	_, err := h.handle(StartInput{})
	if !errors.Is(err, ErrSensorUnavailable) {
		t.Fatalf("start error = %v, want ErrSensorUnavailable", err)
	}
	if h.engine.Phase() != Ready {
		t.Fatalf("phase = %v, want ready", h.engine.Phase())
	}

	h.handle(SensorStatusInput{Available: true})
	if _, err := h.handle(StartInput{}); err != nil {
		t.Fatalf("start after sensor recovered: %v", err)
	}
	out, _ := h.handle(StartInput{})
	if len(out.Transitions) != 0 || len(out.Announcements) != 0 {
		t.Errorf("second start produced output: %+v", out)
	}
}

func TestEngineStopInReadyIsNoop(t *testing.T) {
	h := newHarness(t)
	out, err := h.handle(StopInput{})
	if err != nil || out.StopSpeaking || len(out.Transitions) != 0 {
		t.Fatalf("stop in ready = %+v, %v", out, err)
	}
}

func TestEngineMalformedSampleFreezesTick(t *testing.T) {
	h := newHarness(t)
	h.handle(StartInput{})
	h.feed(1, time.Second)

	before := h.engine.State()
	filtered := h.engine.Snapshot(h.clock.Now()).FilteredAngle

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		h.feed(bad, 3*time.Second)
	}

	if h.engine.State() != before {
		t.Errorf("state changed on malformed samples: %+v vs %+v", h.engine.State(), before)
	}
	if got := h.engine.Snapshot(h.clock.Now()).FilteredAngle; got != filtered {
		t.Errorf("filtered angle changed: %v -> %v", filtered, got)
	}

	h.feed(1, 1100*time.Millisecond)
	if h.engine.Phase() != Horizontal {
		t.Errorf("phase = %v, want horizontal once valid samples resume", h.engine.Phase())
	}
}

func TestEngineSnapshotInReady(t *testing.T) {
	h := newHarness(t)
	h.feed(3, 500*time.Millisecond)

	snap := h.engine.Snapshot(h.clock.Now())
	if snap.Phase != Ready || snap.FilteredAngle != 3 || snap.RawAngle != 3 || snap.SegmentOpen {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(h.transitions) != 0 || len(h.announcements) != 0 {
		t.Error("ready phase produced events")
	}
}
