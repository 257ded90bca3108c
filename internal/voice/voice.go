// Package voice renders announcements through a pluggable output without
// blocking the measurement loop.
package voice

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/goodtune/gravityease/internal/metrics"
	"github.com/rs/zerolog"
)

// Speaker is the voice collaborator the measurement loop talks to. Neither
// method may block.
type Speaker interface {
	Speak(text string, force bool)
	StopSpeaking()
}

// Output renders one utterance. Say may block until playback ends.
type Output interface {
	Say(ctx context.Context, text string) error
	Stop() error
}

type utterance struct {
	text string
}

// AsyncSpeaker queues utterances for a single playback goroutine. Lines
// spoken while muted are dropped unless forced; a forced line discards
// anything still queued.
type AsyncSpeaker struct {
	out     Output
	queue   chan utterance
	enabled atomic.Bool
	logger  zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAsyncSpeaker creates a speaker with room for queueSize pending lines.
func NewAsyncSpeaker(out Output, queueSize int, enabled bool, logger zerolog.Logger) *AsyncSpeaker {
	if queueSize <= 0 {
		queueSize = 16
	}
	s := &AsyncSpeaker{
		out:    out,
		queue:  make(chan utterance, queueSize),
		logger: logger.With().Str("component", "voice").Logger(),
	}
	s.enabled.Store(enabled)
	return s
}

// Start launches the playback goroutine.
func (s *AsyncSpeaker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info().Bool("enabled", s.Enabled()).Msg("Voice output started")
}

// Stop ends playback and waits for the goroutine to exit.
func (s *AsyncSpeaker) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("Voice output stopped")
}

func (s *AsyncSpeaker) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.queue:
			if err := s.out.Say(ctx, u.text); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Str("text", u.text).Msg("Failed to speak")
			}
		}
	}
}

// Speak queues text for playback.
func (s *AsyncSpeaker) Speak(text string, force bool) {
	if !force && !s.Enabled() {
		s.logger.Debug().Str("text", text).Msg("Voice muted, dropping line")
		return
	}
	if force {
		s.drain()
	}

	select {
	case s.queue <- utterance{text: text}:
	default:
		metrics.UtterancesDropped.Inc()
		s.logger.Warn().Str("text", text).Msg("Voice queue full, dropping line")
	}
}

// StopSpeaking discards queued lines and interrupts current playback.
func (s *AsyncSpeaker) StopSpeaking() {
	s.drain()
	if err := s.out.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to stop playback")
	}
}

// SetEnabled mutes or unmutes non-forced lines.
func (s *AsyncSpeaker) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
	s.logger.Info().Bool("enabled", enabled).Msg("Voice guidance toggled")
}

// Enabled reports whether non-forced lines are spoken.
func (s *AsyncSpeaker) Enabled() bool {
	return s.enabled.Load()
}

func (s *AsyncSpeaker) drain() {
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}
