// Package daemon runs the measurement loop of one therapy station: it reads
// the tilt sensor on a fixed period, drives the therapy engine and fans the
// results out to voice, storage and display clients.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goodtune/gravityease/internal/metrics"
	"github.com/goodtune/gravityease/internal/sensor"
	"github.com/goodtune/gravityease/internal/storage"
	"github.com/goodtune/gravityease/internal/therapy"
	"github.com/goodtune/gravityease/internal/ui"
	"github.com/rs/zerolog"
)

// ErrNotRunning is returned by control calls after the loop has exited.
var ErrNotRunning = errors.New("daemon not running")

// DefaultTickInterval is the sampling period.
const DefaultTickInterval = 100 * time.Millisecond

// Speaker is the voice surface the loop needs.
type Speaker interface {
	Speak(text string, force bool)
	StopSpeaking()
	SetEnabled(enabled bool)
	Enabled() bool
}

// Flusher waits for queued session commits to reach storage.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Publisher pushes messages to display clients.
type Publisher interface {
	Broadcast(msgType string, data interface{})
}

// Config holds daemon configuration
type Config struct {
	UserID         string
	TickInterval   time.Duration
	SummaryTimeout time.Duration
}

// Deps bundles the collaborators of a Daemon.
type Deps struct {
	Engine    *therapy.Engine
	Source    sensor.Source
	Speaker   Speaker
	Phrases   therapy.Phrasebook
	Sessions  storage.SessionStore
	Flusher   Flusher
	Publisher Publisher
	Clock     therapy.Clock
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdVoice
	cmdSnapshot
)

type command struct {
	kind    commandKind
	enabled bool
	reply   chan result
}

type result struct {
	snapshot therapy.Snapshot
	enabled  bool
	err      error
}

// Daemon owns the engine. Every engine call happens on the loop goroutine;
// other goroutines reach it through commands.
type Daemon struct {
	cfg Config
	Deps

	commands chan command
	stopChan chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

// New creates a daemon. Call Start to begin sampling.
func New(cfg Config, deps Deps, logger zerolog.Logger) (*Daemon, error) {
	if deps.Engine == nil || deps.Source == nil || deps.Speaker == nil || deps.Phrases == nil {
		return nil, errors.New("daemon: engine, source, speaker and phrasebook are required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = 10 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = therapy.RealClock{}
	}

	return &Daemon{
		cfg:      cfg,
		Deps:     deps,
		commands: make(chan command),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// Start launches the measurement loop.
func (d *Daemon) Start() {
	go d.run()
	d.logger.Info().
		Str("user_id", d.cfg.UserID).
		Dur("tick_interval", d.cfg.TickInterval).
		Msg("Measurement loop started")
}

// Stop ends the loop, closing any open segment, and waits for pending
// summaries.
func (d *Daemon) Stop() {
	close(d.stopChan)
	<-d.done
	d.wg.Wait()
	d.logger.Info().Msg("Measurement loop stopped")
}

func (d *Daemon) run() {
	defer close(d.done)

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.tick(d.Clock.Now())
		case cmd := <-d.commands:
			cmd.reply <- d.handle(cmd)
		case <-d.stopChan:
			// Shutting down mid-run still keeps the segment in progress.
			if d.Engine.Phase() != therapy.Ready {
				out, _ := d.Engine.Handle(d.Clock.Now(), therapy.StopInput{})
				d.dispatch(out)
			}
			return
		}
	}
}

// tick samples the sensor and advances the engine one period.
func (d *Daemon) tick(now time.Time) {
	start := time.Now()

	available := d.Source.Available()
	_, _ = d.Engine.Handle(now, therapy.SensorStatusInput{Available: available})
	if r, ok := d.Source.Latest(); ok && available {
		_, _ = d.Engine.Handle(now, therapy.SampleInput{Degrees: r.Degrees})
	}

	out := d.Engine.Tick(now)
	d.dispatch(out)

	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
}

func (d *Daemon) handle(cmd command) result {
	now := d.Clock.Now()

	switch cmd.kind {
	case cmdStart:
		_, _ = d.Engine.Handle(now, therapy.SensorStatusInput{Available: d.Source.Available()})
		out, err := d.Engine.Handle(now, therapy.StartInput{})
		d.dispatch(out)
		return result{snapshot: out.Snapshot, err: err}

	case cmdStop:
		out, _ := d.Engine.Handle(now, therapy.StopInput{})
		d.dispatch(out)
		if len(out.Transitions) > 0 {
			d.wg.Add(1)
			go d.summarize(now)
		}
		return result{snapshot: out.Snapshot}

	case cmdVoice:
		d.Speaker.SetEnabled(cmd.enabled)
		d.Speaker.Speak(d.Phrases.VoiceToggled(cmd.enabled), true)
		return result{snapshot: d.Engine.Snapshot(now), enabled: d.Speaker.Enabled()}

	default:
		return result{snapshot: d.Engine.Snapshot(now)}
	}
}

// announcementEvent is the display form of an announcement.
type announcementEvent struct {
	therapy.Announcement
	Text string `json:"text"`
}

func (d *Daemon) dispatch(out therapy.Output) {
	for _, tr := range out.Transitions {
		metrics.PhaseTransitions.WithLabelValues(tr.From.String(), tr.To.String()).Inc()
	}
	metrics.Phase.Set(float64(out.Snapshot.Phase))
	metrics.FilteredAngle.Set(out.Snapshot.FilteredAngle)
	if out.Snapshot.SensorAvailable {
		metrics.SensorAvailable.Set(1)
	} else {
		metrics.SensorAvailable.Set(0)
	}

	if out.StopSpeaking {
		d.Speaker.StopSpeaking()
	}

	for _, a := range out.Announcements {
		text := d.Phrases.Line(a)
		d.Speaker.Speak(text, a.Force)
		if a.Danger {
			d.Speaker.Speak(d.Phrases.DangerWarning(), false)
		}
		metrics.AnnouncementsTotal.WithLabelValues(a.Kind.String()).Inc()
		d.publish(ui.MessageAnnouncement, announcementEvent{Announcement: a, Text: text})
	}

	for _, o := range out.Segments {
		if o.Committed {
			metrics.SegmentsTotal.WithLabelValues("committed").Inc()
		} else {
			metrics.SegmentsTotal.WithLabelValues("discarded").Inc()
		}
	}

	d.publish(ui.MessageSnapshot, out.Snapshot)
}

func (d *Daemon) publish(msgType string, data interface{}) {
	if d.Publisher != nil {
		d.Publisher.Broadcast(msgType, data)
	}
}

// summarize speaks today's running total once the stopped run's segments
// have been written.
func (d *Daemon) summarize(at time.Time) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SummaryTimeout)
	defer cancel()

	if d.Flusher != nil {
		if err := d.Flusher.Flush(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Timed out waiting for session commits")
		}
	}

	date := at.Format(storage.DateFormat)
	agg := &storage.DailyAggregate{Date: date, UserID: d.cfg.UserID}
	if d.Sessions != nil {
		stored, err := d.Sessions.GetDailyAggregate(ctx, d.cfg.UserID, date)
		switch {
		case err == nil:
			agg = stored
		case !errors.Is(err, storage.ErrNotFound):
			d.logger.Error().Err(err).Str("date", date).Msg("Failed to read daily total")
		}
	}

	d.Speaker.Speak(d.Phrases.Summary(agg.Total()), true)
	d.publish(ui.MessageSummary, agg)

	d.logger.Info().
		Str("date", date).
		Int64("total_seconds", agg.TotalDurationSeconds).
		Int64("sessions", agg.SessionCount).
		Float64("average_angle", agg.AverageAngle).
		Msg("Therapy stopped")
}

func (d *Daemon) call(ctx context.Context, cmd command) (result, error) {
	cmd.reply = make(chan result, 1)

	select {
	case d.commands <- cmd:
	case <-d.done:
		return result{}, ErrNotRunning
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// StartTherapy begins a therapy run. It fails with therapy.ErrSensorUnavailable
// when no sensor is connected.
func (d *Daemon) StartTherapy(ctx context.Context) (therapy.Snapshot, error) {
	res, err := d.call(ctx, command{kind: cmdStart})
	if err != nil {
		return therapy.Snapshot{}, err
	}
	return res.snapshot, res.err
}

// StopTherapy ends the run and commits the segment in progress.
func (d *Daemon) StopTherapy(ctx context.Context) (therapy.Snapshot, error) {
	res, err := d.call(ctx, command{kind: cmdStop})
	return res.snapshot, err
}

// SetVoice toggles voice guidance and returns the new setting.
func (d *Daemon) SetVoice(ctx context.Context, enabled bool) (bool, error) {
	res, err := d.call(ctx, command{kind: cmdVoice, enabled: enabled})
	return res.enabled, err
}

// Snapshot returns the current display state.
func (d *Daemon) Snapshot(ctx context.Context) (therapy.Snapshot, error) {
	res, err := d.call(ctx, command{kind: cmdSnapshot})
	return res.snapshot, err
}

// VoiceEnabled reports whether voice guidance is on.
func (d *Daemon) VoiceEnabled() bool {
	return d.Speaker.Enabled()
}
