// Package retention prunes stored therapy records older than a fixed number
// of days.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/gravityease/internal/storage"
	"github.com/rs/zerolog"
)

// Scheduler runs a daily cleanup of old session records
type Scheduler struct {
	store       storage.SessionStore
	days        int
	cleanupTime time.Time // Time of day to run (only hour and minute are used)
	now         func() time.Time
	logger      zerolog.Logger
	stopChan    chan struct{}
}

// NewScheduler creates a cleanup scheduler. days <= 0 keeps records forever;
// Start is then a no-op.
func NewScheduler(store storage.SessionStore, days int, cleanupTime string, logger zerolog.Logger) (*Scheduler, error) {
	parsedTime, err := time.Parse("15:04", cleanupTime)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup time %q: %w", cleanupTime, err)
	}

	return &Scheduler{
		store:       store,
		days:        days,
		cleanupTime: parsedTime,
		now:         time.Now,
		logger:      logger.With().Str("component", "retention").Logger(),
		stopChan:    make(chan struct{}),
	}, nil
}

// Start begins the scheduler
func (s *Scheduler) Start() {
	if s.days <= 0 {
		s.logger.Info().Msg("Retention disabled, records kept indefinitely")
		return
	}
	go s.run()
	s.logger.Info().
		Int("days", s.days).
		Str("cleanup_time", s.cleanupTime.Format("15:04")).
		Msg("Retention scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.logger.Info().Msg("Retention scheduler stopped")
}

func (s *Scheduler) run() {
	for {
		next := s.calculateNext()
		wait := next.Sub(s.now())

		s.logger.Debug().
			Time("next_cleanup", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next cleanup")

		select {
		case <-time.After(wait):
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := s.Cleanup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Failed to clean up old sessions")
			}
			cancel()
		case <-s.stopChan:
			return
		}
	}
}

// calculateNext returns the next cleanup instant at or after now.
func (s *Scheduler) calculateNext() time.Time {
	now := s.now()

	today := time.Date(
		now.Year(), now.Month(), now.Day(),
		s.cleanupTime.Hour(), s.cleanupTime.Minute(), 0, 0,
		now.Location(),
	)

	if now.After(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

// Cutoff returns the first date that is kept.
func (s *Scheduler) Cutoff() string {
	return s.now().AddDate(0, 0, -s.days).Format(storage.DateFormat)
}

// Cleanup deletes records dated before the cutoff.
func (s *Scheduler) Cleanup(ctx context.Context) (int, error) {
	cutoff := s.Cutoff()
	deleted, err := s.store.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Int("sessions_deleted", deleted).
		Str("cutoff_date", cutoff).
		Msg("Old sessions cleaned up")
	return deleted, nil
}
