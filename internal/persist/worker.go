// Package persist writes committed segments to storage off the tick loop.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goodtune/gravityease/internal/metrics"
	"github.com/goodtune/gravityease/internal/session"
	"github.com/goodtune/gravityease/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// ErrQueueFull is logged when a segment arrives while the queue is full.
var ErrQueueFull = errors.New("persist: queue full")

const (
	// DefaultQueueSize is the number of segments buffered ahead of storage.
	DefaultQueueSize = 64

	// DefaultMaxRetryTime bounds retries of one failing write.
	DefaultMaxRetryTime = 2 * time.Minute

	recentKeys = 256
)

// Config holds worker configuration
type Config struct {
	QueueSize    int
	MaxRetryTime time.Duration
}

type job struct {
	seg     session.Segment
	flushed chan struct{} // set on flush markers only
}

// Worker implements session.Committer by queueing segments for a single
// writer goroutine.
type Worker struct {
	store    storage.SessionStore
	jobs     chan job
	recent   *lru.Cache[string, struct{}]
	maxRetry time.Duration
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker writing to store.
func NewWorker(store storage.SessionStore, cfg Config, logger zerolog.Logger) (*Worker, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxRetryTime <= 0 {
		cfg.MaxRetryTime = DefaultMaxRetryTime
	}

	recent, err := lru.New[string, struct{}](recentKeys)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:    store,
		jobs:     make(chan job, cfg.QueueSize),
		recent:   recent,
		maxRetry: cfg.MaxRetryTime,
		logger:   logger.With().Str("component", "persist").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start launches the writer goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info().Int("queue_size", cap(w.jobs)).Msg("Persist worker started")
}

// Stop cancels pending retries, writes whatever is still queued once, and
// waits for the writer to exit.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.logger.Info().Msg("Persist worker stopped")
}

// Commit queues seg without blocking. Segments already written recently are
// ignored.
func (w *Worker) Commit(seg session.Segment) {
	if w.recent.Contains(seg.Key()) {
		w.logger.Debug().Str("key", seg.Key()).Msg("Segment already written, skipping")
		return
	}

	select {
	case w.jobs <- job{seg: seg}:
		metrics.CommitQueueDepth.Set(float64(len(w.jobs)))
	default:
		metrics.CommitsTotal.WithLabelValues("dropped").Inc()
		w.logger.Error().
			Err(ErrQueueFull).
			Float64("angle", seg.HoldAngle).
			Dur("duration", seg.Duration()).
			Msg("Dropping segment")
	}
}

// Flush waits until every segment queued before the call has been handled.
func (w *Worker) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case w.jobs <- job{flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case j := <-w.jobs:
			w.handle(j)
		case <-w.ctx.Done():
			w.drain()
			return
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case j := <-w.jobs:
			w.handle(j)
		default:
			return
		}
	}
}

func (w *Worker) handle(j job) {
	metrics.CommitQueueDepth.Set(float64(len(w.jobs)))

	if j.flushed != nil {
		close(j.flushed)
		return
	}

	rec := storage.NewSessionRecord(j.seg.UserID, j.seg.HoldAngle, j.seg.Start, j.seg.End)
	created, err := w.write(rec)
	if err != nil {
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		w.logger.Error().
			Err(err).
			Str("id", rec.ID).
			Float64("angle", rec.Angle).
			Int64("duration_seconds", rec.DurationSeconds).
			Msg("Failed to persist session")
		return
	}

	w.recent.Add(j.seg.Key(), struct{}{})
	if !created {
		metrics.CommitsTotal.WithLabelValues("duplicate").Inc()
		w.logger.Debug().Str("id", rec.ID).Msg("Session already stored")
		return
	}

	metrics.CommitsTotal.WithLabelValues("ok").Inc()
	metrics.SessionSecondsCommitted.Add(float64(rec.DurationSeconds))
	w.logger.Info().
		Str("id", rec.ID).
		Str("user_id", rec.UserID).
		Float64("angle", rec.Angle).
		Int64("duration_seconds", rec.DurationSeconds).
		Str("date", rec.SessionDate).
		Msg("Session persisted")
}

func (w *Worker) write(rec storage.SessionRecord) (bool, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = w.maxRetry

	var created bool
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var err error
		created, err = w.store.CommitSession(ctx, rec)
		if err != nil {
			w.logger.Warn().Err(err).Int("attempt", attempt).Str("id", rec.ID).Msg("Commit attempt failed")
		}
		return err
	}, backoff.WithContext(b, w.ctx))
	return created, err
}
