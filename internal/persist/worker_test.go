package persist

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/gravityease/internal/session"
	"github.com/goodtune/gravityease/internal/storage"
	"github.com/goodtune/gravityease/internal/storage/bolt"
	"github.com/rs/zerolog"
)

var base = time.Date(2026, 3, 14, 21, 0, 0, 0, time.Local)

func segment(angle float64, offset, d time.Duration) session.Segment {
	start := base.Add(offset)
	return session.Segment{UserID: "alice", HoldAngle: angle, Start: start, End: start.Add(d)}
}

// countingStore wraps a SessionStore, failing the first failures commits.
type countingStore struct {
	storage.SessionStore

	mu       sync.Mutex
	failures int
	calls    int
}

func (c *countingStore) CommitSession(ctx context.Context, rec storage.SessionRecord) (bool, error) {
	c.mu.Lock()
	c.calls++
	if c.failures > 0 {
		c.failures--
		c.mu.Unlock()
		return false, errors.New("storage unavailable")
	}
	c.mu.Unlock()
	return c.SessionStore.CommitSession(ctx, rec)
}

func (c *countingStore) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func openBolt(t *testing.T) storage.SessionStore {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store.Sessions()
}

func newTestWorker(t *testing.T, store storage.SessionStore, cfg Config) *Worker {
	t.Helper()
	w, err := NewWorker(store, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w
}

func flush(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestWorkerPersistsSegments(t *testing.T) {
	sessions := openBolt(t)
	w := newTestWorker(t, sessions, Config{})
	w.Start()
	defer w.Stop()

	w.Commit(segment(-5, 0, 30*time.Second))
	w.Commit(segment(-8, time.Minute, 15*time.Second))
	flush(t, w)

	date := base.Format(storage.DateFormat)
	agg, err := sessions.GetDailyAggregate(context.Background(), "alice", date)
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if agg.SessionCount != 2 || agg.TotalDurationSeconds != 45 {
		t.Errorf("unexpected aggregate %+v", agg)
	}
	if agg.AverageAngle != -6 {
		t.Errorf("expected average -6, got %v", agg.AverageAngle)
	}
}

func TestWorkerRetriesFailedWrites(t *testing.T) {
	store := &countingStore{SessionStore: openBolt(t), failures: 2}
	w := newTestWorker(t, store, Config{MaxRetryTime: 30 * time.Second})
	w.Start()
	defer w.Stop()

	seg := segment(-5, 0, 20*time.Second)
	w.Commit(seg)
	flush(t, w)

	if calls := store.Calls(); calls != 3 {
		t.Errorf("expected 3 commit attempts, got %d", calls)
	}

	rec := storage.NewSessionRecord(seg.UserID, seg.HoldAngle, seg.Start, seg.End)
	if _, err := store.GetSession(context.Background(), rec.ID); err != nil {
		t.Errorf("expected record after retries: %v", err)
	}
}

func TestWorkerSkipsRecentlyWrittenSegments(t *testing.T) {
	store := &countingStore{SessionStore: openBolt(t)}
	w := newTestWorker(t, store, Config{})
	w.Start()
	defer w.Stop()

	seg := segment(-5, 0, 20*time.Second)
	w.Commit(seg)
	flush(t, w)
	w.Commit(seg)
	flush(t, w)

	if calls := store.Calls(); calls != 1 {
		t.Errorf("expected a single write, got %d", calls)
	}
}

func TestWorkerDropsWhenQueueFull(t *testing.T) {
	sessions := openBolt(t)
	w := newTestWorker(t, sessions, Config{QueueSize: 1})

	// Not started yet, so the second commit finds the queue full.
	w.Commit(segment(-5, 0, 20*time.Second))
	w.Commit(segment(-6, time.Minute, 20*time.Second))

	w.Start()
	defer w.Stop()
	flush(t, w)

	records, err := sessions.ListSessions(context.Background(), "alice", base.Format(storage.DateFormat))
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(records) != 1 || records[0].Angle != -5 {
		t.Errorf("expected only the first segment, got %+v", records)
	}
}

func TestWorkerStopDrainsQueue(t *testing.T) {
	sessions := openBolt(t)
	w := newTestWorker(t, sessions, Config{})
	w.Commit(segment(-3, 0, 12*time.Second))
	w.Start()
	w.Stop()

	records, err := sessions.ListSessions(context.Background(), "alice", base.Format(storage.DateFormat))
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected queued segment to be written on stop, got %d", len(records))
	}
}

func TestFlushHonoursContext(t *testing.T) {
	w := newTestWorker(t, openBolt(t), Config{QueueSize: 1})
	w.Commit(segment(-5, 0, 20*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
