package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/gravityease/internal/persist"
	"github.com/goodtune/gravityease/internal/sensor"
	"github.com/goodtune/gravityease/internal/session"
	"github.com/goodtune/gravityease/internal/storage"
	"github.com/goodtune/gravityease/internal/storage/bolt"
	"github.com/goodtune/gravityease/internal/therapy"
	"github.com/goodtune/gravityease/internal/ui"
	"github.com/rs/zerolog"
)

const tick = 100 * time.Millisecond

var t0 = time.Date(2026, 3, 14, 21, 0, 0, 0, time.Local)

type fakeSource struct {
	mu        sync.Mutex
	degrees   float64
	available bool
}

func (f *fakeSource) set(degrees float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.degrees = degrees
}

func (f *fakeSource) Latest() (sensor.Reading, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sensor.Reading{Degrees: f.degrees}, f.available
}

func (f *fakeSource) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeSource) Close() error { return nil }

type spoken struct {
	text  string
	force bool
}

type fakeSpeaker struct {
	mu      sync.Mutex
	lines   []spoken
	stops   int
	enabled bool
}

func (f *fakeSpeaker) Speak(text string, force bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, spoken{text, force})
}

func (f *fakeSpeaker) StopSpeaking() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSpeaker) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

func (f *fakeSpeaker) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeSpeaker) last() spoken {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lines) == 0 {
		return spoken{}
	}
	return f.lines[len(f.lines)-1]
}

func (f *fakeSpeaker) said(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.lines {
		if l.text == text {
			return true
		}
	}
	return false
}

type fakePublisher struct {
	mu    sync.Mutex
	types map[string]int
}

func (f *fakePublisher) Broadcast(msgType string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.types == nil {
		f.types = make(map[string]int)
	}
	f.types[msgType]++
}

func (f *fakePublisher) count(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.types[msgType]
}

type fixture struct {
	daemon    *Daemon
	clock     *therapy.TestClock
	source    *fakeSource
	speaker   *fakeSpeaker
	publisher *fakePublisher
	sessions  storage.SessionStore
	phrases   therapy.Phrasebook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	worker, err := persist.NewWorker(db.Sessions(), persist.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	worker.Start()
	t.Cleanup(worker.Stop)

	phrases, err := therapy.PhrasebookFor("ko")
	if err != nil {
		t.Fatalf("phrasebook: %v", err)
	}

	f := &fixture{
		clock:     &therapy.TestClock{CurrentTime: t0},
		source:    &fakeSource{available: true},
		speaker:   &fakeSpeaker{enabled: true},
		publisher: &fakePublisher{},
		sessions:  db.Sessions(),
		phrases:   phrases,
	}

	agg := session.NewAggregator("alice", worker, zerolog.Nop())
	d, err := New(Config{UserID: "alice"}, Deps{
		Engine:    therapy.NewEngine(agg, zerolog.Nop()),
		Source:    f.source,
		Speaker:   f.speaker,
		Phrases:   phrases,
		Sessions:  db.Sessions(),
		Flusher:   worker,
		Publisher: f.publisher,
		Clock:     f.clock,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	f.daemon = d
	return f
}

// feed holds the sensor at degrees and ticks for d.
func (f *fixture) feed(degrees float64, d time.Duration) {
	f.source.set(degrees)
	for elapsed := time.Duration(0); elapsed < d; elapsed += tick {
		f.daemon.tick(f.clock.Advance(tick))
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}, Deps{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without collaborators")
	}
}

func TestTherapyRun(t *testing.T) {
	f := newFixture(t)

	res := f.daemon.handle(command{kind: cmdStart})
	if res.err != nil {
		t.Fatalf("start: %v", res.err)
	}
	if res.snapshot.Phase != therapy.Preparing {
		t.Fatalf("expected preparing, got %v", res.snapshot.Phase)
	}
	startLine := f.phrases.Line(therapy.Announcement{Kind: therapy.AnnounceTherapyStart})
	if got := f.speaker.last(); got.text != startLine || !got.force {
		t.Errorf("expected forced start line, got %+v", got)
	}

	f.feed(1, 3*time.Second)
	if phase := f.daemon.Engine.Phase(); phase != therapy.Horizontal {
		t.Fatalf("expected horizontal, got %v", phase)
	}
	if !f.speaker.said(f.phrases.Line(therapy.Announcement{Kind: therapy.AnnounceHorizontalReached})) {
		t.Error("expected horizontal-reached line")
	}

	f.feed(-5, 15*time.Second)
	if phase := f.daemon.Engine.Phase(); phase != therapy.Therapy {
		t.Fatalf("expected therapy, got %v", phase)
	}

	res = f.daemon.handle(command{kind: cmdStop})
	if res.snapshot.Phase != therapy.Ready {
		t.Fatalf("expected ready after stop, got %v", res.snapshot.Phase)
	}
	f.daemon.wg.Wait()

	f.speaker.mu.Lock()
	stops := f.speaker.stops
	f.speaker.mu.Unlock()
	if stops != 1 {
		t.Errorf("expected playback to be interrupted once, got %d", stops)
	}

	agg, err := f.sessions.GetDailyAggregate(context.Background(), "alice", t0.Format(storage.DateFormat))
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if agg.SessionCount != 1 || agg.AverageAngle != -5 {
		t.Errorf("unexpected aggregate %+v", agg)
	}
	if agg.TotalDurationSeconds < 10 {
		t.Errorf("expected at least 10s committed, got %d", agg.TotalDurationSeconds)
	}

	summary := f.speaker.last()
	if summary.text != f.phrases.Summary(agg.Total()) || !summary.force {
		t.Errorf("expected forced summary, got %+v", summary)
	}
	if f.publisher.count(ui.MessageSummary) != 1 {
		t.Error("expected summary to be published")
	}
	if f.publisher.count(ui.MessageSnapshot) == 0 {
		t.Error("expected snapshots to be published")
	}
}

func TestStartWithoutSensor(t *testing.T) {
	f := newFixture(t)
	f.source.available = false

	res := f.daemon.handle(command{kind: cmdStart})
	if !errors.Is(res.err, therapy.ErrSensorUnavailable) {
		t.Fatalf("expected ErrSensorUnavailable, got %v", res.err)
	}
	if res.snapshot.Phase != therapy.Ready {
		t.Errorf("expected ready, got %v", res.snapshot.Phase)
	}
	if len(f.speaker.lines) != 0 {
		t.Errorf("expected silence, got %+v", f.speaker.lines)
	}
}

func TestStopWhileReadyHasNoSummary(t *testing.T) {
	f := newFixture(t)

	f.daemon.handle(command{kind: cmdStop})
	f.daemon.wg.Wait()

	if f.publisher.count(ui.MessageSummary) != 0 {
		t.Error("stop while ready should not summarize")
	}
}

func TestVoiceToggle(t *testing.T) {
	f := newFixture(t)

	res := f.daemon.handle(command{kind: cmdVoice, enabled: false})
	if res.enabled {
		t.Fatal("expected voice disabled")
	}
	got := f.speaker.last()
	if got.text != f.phrases.VoiceToggled(false) || !got.force {
		t.Errorf("expected forced toggle line, got %+v", got)
	}
}

func TestDispatchDangerWarning(t *testing.T) {
	f := newFixture(t)

	f.daemon.dispatch(therapy.Output{
		Announcements: []therapy.Announcement{{Kind: therapy.AnnounceNegative, Degrees: -16, Danger: true}},
	})

	f.speaker.mu.Lock()
	lines := append([]spoken(nil), f.speaker.lines...)
	f.speaker.mu.Unlock()

	if len(lines) != 2 {
		t.Fatalf("expected angle and warning, got %+v", lines)
	}
	if lines[0].text != "마이너스 16도입니다" {
		t.Errorf("unexpected angle line %q", lines[0].text)
	}
	if lines[1].text != f.phrases.DangerWarning() {
		t.Errorf("unexpected warning %q", lines[1].text)
	}
	if f.publisher.count(ui.MessageAnnouncement) != 1 {
		t.Error("expected announcement to be published")
	}
}

func TestControlThroughLoop(t *testing.T) {
	f := newFixture(t)
	f.daemon.cfg.TickInterval = 10 * time.Millisecond
	f.daemon.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := f.daemon.StartTherapy(ctx)
	if err != nil {
		t.Fatalf("start therapy: %v", err)
	}
	if snap.Phase != therapy.Preparing {
		t.Errorf("expected preparing, got %v", snap.Phase)
	}

	snap, err = f.daemon.StopTherapy(ctx)
	if err != nil {
		t.Fatalf("stop therapy: %v", err)
	}
	if snap.Phase != therapy.Ready {
		t.Errorf("expected ready, got %v", snap.Phase)
	}

	f.daemon.Stop()

	if _, err := f.daemon.Snapshot(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning after stop, got %v", err)
	}
}
