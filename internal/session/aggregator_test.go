package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingCommitter struct {
	segments []Segment
}

func (r *recordingCommitter) Commit(seg Segment) {
	r.segments = append(r.segments, seg)
}

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time {
	return t0.Add(d)
}

func TestObserveOpensSegmentAtRoundedAngle(t *testing.T) {
	rc := &recordingCommitter{}
	agg := NewAggregator("alice", rc, zerolog.Nop())

	if out := agg.Observe(true, -4.6, t0); len(out) != 0 {
		t.Fatalf("expected no outcomes when opening first segment, got %v", out)
	}

	seg, ok := agg.Open()
	if !ok {
		t.Fatal("expected open segment")
	}
	if seg.HoldAngle != -5 {
		t.Errorf("HoldAngle = %v, want -5", seg.HoldAngle)
	}
	if seg.UserID != "alice" || !seg.Start.Equal(t0) {
		t.Errorf("unexpected segment %+v", seg)
	}

	// same rounded angle keeps the segment
	agg.Observe(true, -5.4, at(time.Second))
	if seg2, _ := agg.Open(); !seg2.Start.Equal(t0) {
		t.Errorf("segment restarted on unchanged rounded angle")
	}
	if got := agg.Elapsed(at(3 * time.Second)); got != 3*time.Second {
		t.Errorf("Elapsed = %v, want 3s", got)
	}
}

func TestSegmentDiscardLaw(t *testing.T) {
	tests := []struct {
		name      string
		held      time.Duration
		committed bool
	}{
		{"just under minimum", MinSegmentDuration - time.Millisecond, false},
		{"exactly minimum", MinSegmentDuration, true},
		{"long hold", 45 * time.Second, true},
		{"transient", 300 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &recordingCommitter{}
			agg := NewAggregator("u", rc, zerolog.Nop())

			agg.Observe(true, -7, t0)
			out := agg.Observe(false, 1, at(tt.held))

			if len(out) != 1 {
				t.Fatalf("expected one outcome, got %d", len(out))
			}
			if out[0].Committed != tt.committed {
				t.Errorf("Committed = %v, want %v", out[0].Committed, tt.committed)
			}
			if tt.committed != (len(rc.segments) == 1) {
				t.Errorf("committer received %d segments", len(rc.segments))
			}
			for _, s := range rc.segments {
				if s.Duration() < MinSegmentDuration {
					t.Errorf("committed segment shorter than minimum: %v", s.Duration())
				}
			}
			if _, ok := agg.Open(); ok {
				t.Error("segment still open after inactive tick")
			}
		})
	}
}

func TestFlickerOpensNewSegment(t *testing.T) {
	rc := &recordingCommitter{}
	agg := NewAggregator("u", rc, zerolog.Nop())

	tick := 100 * time.Millisecond
	now := t0
	feed := func(angle float64, d time.Duration) {
		for end := now.Add(d); now.Before(end); now = now.Add(tick) {
			agg.Observe(true, angle, now)
		}
	}

	feed(-5, 20*time.Second)
	feed(-6, 1500*time.Millisecond)
	feed(-5, 12*time.Second)
	agg.Close(now)

	if len(rc.segments) != 2 {
		t.Fatalf("expected 2 committed segments, got %d: %+v", len(rc.segments), rc.segments)
	}
	for i, s := range rc.segments {
		if s.HoldAngle != -5 {
			t.Errorf("segment %d angle = %v, want -5", i, s.HoldAngle)
		}
	}
	if d := rc.segments[0].Duration(); d != 20*time.Second {
		t.Errorf("first segment duration = %v, want 20s", d)
	}
	if d := rc.segments[1].Duration(); d != 12*time.Second {
		t.Errorf("second segment duration = %v, want 12s", d)
	}
}

func TestCloseWithoutOpenSegment(t *testing.T) {
	agg := NewAggregator("u", nil, zerolog.Nop())
	if out := agg.Close(t0); out != nil {
		t.Errorf("expected nil, got %v", out)
	}
	if agg.Elapsed(t0) != 0 {
		t.Error("expected zero elapsed")
	}
}

func TestSegmentKeyStable(t *testing.T) {
	a := Segment{UserID: "u", HoldAngle: -5, Start: t0, End: at(12 * time.Second)}
	b := a
	b.End = at(30 * time.Second)
	if a.Key() != b.Key() {
		t.Errorf("key depends on end time: %q vs %q", a.Key(), b.Key())
	}
	b.HoldAngle = -6
	if a.Key() == b.Key() {
		t.Error("key ignores angle")
	}
}
