package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/gravityease/internal/broker"
	"github.com/goodtune/gravityease/internal/config"
	"github.com/goodtune/gravityease/internal/daemon"
	"github.com/goodtune/gravityease/internal/metrics"
	"github.com/goodtune/gravityease/internal/persist"
	"github.com/goodtune/gravityease/internal/retention"
	"github.com/goodtune/gravityease/internal/sensor"
	"github.com/goodtune/gravityease/internal/session"
	"github.com/goodtune/gravityease/internal/storage"
	"github.com/goodtune/gravityease/internal/storage/bolt"
	"github.com/goodtune/gravityease/internal/storage/redis"
	"github.com/goodtune/gravityease/internal/systemd"
	"github.com/goodtune/gravityease/internal/therapy"
	"github.com/goodtune/gravityease/internal/ui"
	"github.com/goodtune/gravityease/internal/voice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the therapy station",
	Long:  `Start the measurement loop, voice guidance, display server and metrics endpoint.`,
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("user_id", cfg.Therapy.UserID).
		Msg("Starting GravityEase")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Msg("Storage initialized")

	phrases, err := therapy.PhrasebookFor(cfg.Voice.Language)
	if err != nil {
		return err
	}

	// Session commits
	worker, err := persist.NewWorker(store.Sessions(), persist.Config{
		QueueSize:    cfg.Persist.QueueSize,
		MaxRetryTime: config.Duration(cfg.Persist.MaxRetryTime, persist.DefaultMaxRetryTime),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize persist worker: %w", err)
	}

	// Retention
	cleaner, err := retention.NewScheduler(store.Sessions(), cfg.Retention.Days, cfg.Retention.CleanupTime, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize retention: %w", err)
	}

	// Tilt sensor
	source, err := openSensor(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sensor: %w", err)
	}

	// Voice guidance
	output, closeOutput, err := openVoiceOutput(cfg, logger)
	if err != nil {
		_ = source.Close()
		return fmt.Errorf("failed to initialize voice output: %w", err)
	}
	speaker := voice.NewAsyncSpeaker(output, cfg.Voice.QueueSize, cfg.Voice.Enabled, logger)

	// Measurement loop
	agg := session.NewAggregator(cfg.Therapy.UserID, worker, logger)
	hub := ui.NewHub(logger)
	station, err := daemon.New(daemon.Config{
		UserID:       cfg.Therapy.UserID,
		TickInterval: config.Duration(cfg.Therapy.TickInterval, daemon.DefaultTickInterval),
	}, daemon.Deps{
		Engine:    therapy.NewEngine(agg, logger),
		Source:    source,
		Speaker:   speaker,
		Phrases:   phrases,
		Sessions:  store.Sessions(),
		Flusher:   worker,
		Publisher: hub,
		Clock:     therapy.RealClock{},
	}, logger)
	if err != nil {
		closeOutput()
		_ = source.Close()
		return err
	}

	worker.Start()
	speaker.Start()
	station.Start()
	cleaner.Start()

	// stopServices unwinds everything started above. Stopping the loop
	// closes the segment in progress before the worker drains.
	stopServices := func() {
		station.Stop()
		cleaner.Stop()
		worker.Stop()
		speaker.Stop()
		closeOutput()

		if err := source.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing sensor")
		}
	}

	// Display server
	uiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	uiServer := ui.NewServer(ui.Config{
		ListenAddr: uiAddr,
		UserID:     cfg.Therapy.UserID,
	}, station, store.Sessions(), hub, logger)
	if sdListeners.Activated && sdListeners.HTTP != nil {
		uiServer.SetListener(sdListeners.HTTP)
	}
	if err := uiServer.Start(); err != nil {
		stopServices()
		return fmt.Errorf("failed to start UI server: %w", err)
	}

	// Metrics
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)
		metricsServer.SetHealthCheck(func() error {
			if !source.Available() {
				return errors.New("tilt sensor unavailable")
			}
			return nil
		})
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			_ = uiServer.Stop()
			stopServices()
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
	}

	logger.Info().Msg("GravityEase startup complete")
	logger.Info().Msgf("Display: http://%s", uiAddr)
	if metricsServer != nil {
		logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	}

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	stopWatchdog := startWatchdog(logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan

		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, reloading configuration...")
			reload(station, logger)
			continue
		}

		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}
	close(stopWatchdog)

	if err := uiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping UI server")
	}

	stopServices()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("GravityEase stopped")

	return nil
}

// reload applies the settings that can change without a restart: log level
// and whether voice guidance is on.
func reload(station *daemon.Daemon, logger zerolog.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reload configuration")
		return
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Logging.Level))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if station.VoiceEnabled() != cfg.Voice.Enabled {
		if _, err := station.SetVoice(ctx, cfg.Voice.Enabled); err != nil {
			logger.Error().Err(err).Msg("Failed to apply voice setting")
			return
		}
	}

	logger.Info().
		Str("level", cfg.Logging.Level).
		Bool("voice", cfg.Voice.Enabled).
		Msg("Configuration reloaded")
}

func startWatchdog(logger zerolog.Logger) chan struct{} {
	stop := make(chan struct{})
	interval := systemd.WatchdogInterval()
	if interval <= 0 {
		return stop
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := systemd.NotifyWatchdog(); err != nil {
					logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
				}
			case <-stop:
				return
			}
		}
	}()

	logger.Debug().Dur("interval", interval).Msg("Systemd watchdog enabled")
	return stop
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func openSensor(cfg *config.Config, logger zerolog.Logger) (sensor.Source, error) {
	switch cfg.Sensor.Source {
	case "mqtt":
		src := sensor.NewMQTTSource(sensor.MQTTOptions{
			Topic: cfg.Sensor.Topic,
			Conditioner: sensor.Conditioner{
				Invert: cfg.Sensor.Invert,
				Offset: cfg.Sensor.CalibrationOffset,
			},
			StaleAfter: config.Duration(cfg.Sensor.StaleAfter, 2*time.Second),
		}, logger)
		if _, err := broker.Dial(cfg.MQTT, "sensor", src.Subscribe, logger); err != nil {
			return nil, err
		}
		return src, nil
	default:
		logger.Warn().Msg("Using simulated tilt sensor")
		return sensor.NewMockSource(time.Now), nil
	}
}

func openVoiceOutput(cfg *config.Config, logger zerolog.Logger) (voice.Output, func(), error) {
	switch cfg.Voice.Output {
	case "mqtt":
		client, err := broker.Dial(cfg.MQTT, "voice", nil, logger)
		if err != nil {
			return nil, nil, err
		}
		out := voice.NewMQTTOutput(client, cfg.Voice.Topic, cfg.Voice.Language)
		return out, out.Close, nil
	default:
		return voice.NewLogOutput(logger), func() {}, nil
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
