package therapy

import (
	"testing"
	"time"
)

// announceAfterHold drives the gate with a constant angle for dwell+tick and
// returns the first announcement.
func announceAfterHold(g Gate, st *State, angle float64, from int) (*Announcement, int) {
	for n := from; n <= from+int(DwellTime/time.Millisecond); n += 100 {
		if a := g.ShouldAnnounce(st, angle, ms(n)); a != nil {
			return a, n
		}
	}
	return nil, -1
}

func TestGateInitialWindowBlocks(t *testing.T) {
	var g Gate
	st := State{Phase: Preparing, InitialGateOpenAt: ms(8000)}

	for n := 0; n < 8000; n += 100 {
		if a := g.ShouldAnnounce(&st, -5, ms(n)); a != nil {
			t.Fatalf("announcement at %dms inside initial gate", n)
		}
	}
	if !st.AngleHoldStartAt.IsZero() {
		t.Error("hold timer armed while gate closed")
	}

	a, n := announceAfterHold(g, &st, -5, 8000)
	if a == nil {
		t.Fatal("expected announcement after gate opened")
	}
	if n != 10000 {
		t.Errorf("announced at %dms, want 10000", n)
	}
	if a.Kind != AnnounceNegative || a.Degrees != -5 || a.Danger {
		t.Errorf("unexpected announcement %+v", a)
	}
}

func TestGateNoRepeatForUnchangedAngle(t *testing.T) {
	var g Gate
	st := State{Phase: Preparing}

	if a, _ := announceAfterHold(g, &st, 5.2, 0); a == nil {
		t.Fatal("expected first announcement")
	}
	for n := 2100; n < 20000; n += 100 {
		if a := g.ShouldAnnounce(&st, 4.8, ms(n)); a != nil {
			t.Fatalf("repeat announcement at %dms: %+v", n, a)
		}
	}
}

func TestGateHoldRestartsOnChange(t *testing.T) {
	var g Gate
	st := State{Phase: Preparing}

	g.ShouldAnnounce(&st, 5, ms(0))
	g.ShouldAnnounce(&st, 5, ms(1500))
	g.ShouldAnnounce(&st, 7, ms(1600))
	if a := g.ShouldAnnounce(&st, 7, ms(2100)); a != nil {
		t.Fatal("announcement fired from a hold that changed angle")
	}
	a := g.ShouldAnnounce(&st, 7, ms(3600))
	if a == nil || a.Degrees != 7 {
		t.Fatalf("expected 7 degrees announcement, got %+v", a)
	}
}

func TestGateLevelPhrasing(t *testing.T) {
	var g Gate
	st := State{Phase: Preparing}

	a, n := announceAfterHold(g, &st, 1.2, 0)
	if a == nil || a.Kind != AnnounceLevel {
		t.Fatalf("first level announcement = %+v", a)
	}

	a, n = announceAfterHold(g, &st, 6, n+100)
	if a == nil || a.Kind != AnnouncePositive || a.Degrees != 6 {
		t.Fatalf("positive announcement = %+v", a)
	}

	a, _ = announceAfterHold(g, &st, 1, n+100)
	if a == nil || a.Kind != AnnouncePositive || a.Degrees != 1 {
		t.Fatalf("level angle after first level line = %+v, want plain degrees", a)
	}
}

func TestGateSilentAtLevelWhileHorizontal(t *testing.T) {
	var g Gate
	st := State{Phase: Horizontal, InitialHorizontalAnnounced: true}

	if a, _ := announceAfterHold(g, &st, 0.8, 0); a != nil {
		t.Fatalf("level angle narrated in horizontal phase: %+v", a)
	}
	if !st.HasLastAnnounced || st.LastAnnouncedAngle != 1 {
		t.Errorf("level angle not recorded as last announced: %+v", st)
	}
}

func TestGateHorizontalWindow(t *testing.T) {
	var g Gate
	st := State{Phase: Horizontal, HorizontalGateOpenAt: ms(10000), InitialHorizontalAnnounced: true}

	for n := 0; n < 10000; n += 100 {
		if a := g.ShouldAnnounce(&st, -0.6, ms(n)); a != nil {
			t.Fatalf("announcement at %dms inside horizontal gate", n)
		}
	}

	// therapy with the gate cleared is narrated straight away
	st = State{Phase: Therapy, InitialHorizontalAnnounced: true}
	if a, n := announceAfterHold(g, &st, -3, 0); a == nil || n != 2000 {
		t.Fatalf("therapy announcement = %+v at %dms", a, n)
	}
}

func TestGateDangerFlag(t *testing.T) {
	tests := []struct {
		name   string
		st     State
		angle  float64
		danger bool
	}{
		{"therapy below range", State{Phase: Therapy, InitialHorizontalAnnounced: true}, -16, true},
		{"horizontal below range", State{Phase: Horizontal, InitialHorizontalAnnounced: true}, -20, true},
		{"dropped back to preparing", State{Phase: Preparing, InitialHorizontalAnnounced: true}, -16, true},
		{"never reached horizontal", State{Phase: Preparing}, -16, false},
		{"at range floor", State{Phase: Therapy, InitialHorizontalAnnounced: true}, -15, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var g Gate
			st := tt.st
			a, _ := announceAfterHold(g, &st, tt.angle, 0)
			if a == nil {
				t.Fatal("expected announcement")
			}
			if a.Danger != tt.danger {
				t.Errorf("Danger = %v, want %v", a.Danger, tt.danger)
			}
			if a.Kind != AnnounceNegative {
				t.Errorf("Kind = %v, want negative", a.Kind)
			}
		})
	}
}

func TestGateTherapyIgnoresOpeningWindow(t *testing.T) {
	var g Gate
	st := State{Phase: Therapy, InitialGateOpenAt: ms(8000), InitialHorizontalAnnounced: true}

	a, n := announceAfterHold(g, &st, -5, 3000)
	if a == nil {
		t.Fatal("expected therapy announcement before the opening window closed")
	}
	if n != 5000 {
		t.Errorf("announced at %dms, want 5000", n)
	}
	if a.Kind != AnnounceNegative || a.Degrees != -5 {
		t.Errorf("unexpected announcement %+v", a)
	}
}
