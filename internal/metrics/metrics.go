package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tick loop metrics
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gravityease_ticks_total",
			Help: "Total measurement ticks evaluated",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gravityease_tick_duration_seconds",
			Help:    "Time spent evaluating one tick",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01},
		},
	)

	// Protocol metrics
	Phase = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravityease_phase",
			Help: "Current protocol phase (0=ready, 1=preparing, 2=horizontal, 3=therapy)",
		},
	)

	PhaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gravityease_phase_transitions_total",
			Help: "Total phase transitions",
		},
		[]string{"from", "to"},
	)

	FilteredAngle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravityease_filtered_angle_degrees",
			Help: "Most recent filtered tilt angle",
		},
	)

	SensorAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravityease_sensor_available",
			Help: "Whether the tilt sensor is delivering fresh readings",
		},
	)

	// Voice metrics
	AnnouncementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gravityease_announcements_total",
			Help: "Total announcements requested",
		},
		[]string{"kind"},
	)

	UtterancesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gravityease_utterances_dropped_total",
			Help: "Utterances dropped because the voice queue was full",
		},
	)

	// Session metrics
	SegmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gravityease_segments_total",
			Help: "Closed session segments by outcome",
		},
		[]string{"outcome"},
	)

	SessionSecondsCommitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gravityease_session_seconds_committed_total",
			Help: "Total therapy seconds handed to storage",
		},
	)

	// Persistence metrics
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gravityease_commits_total",
			Help: "Storage commit attempts by result",
		},
		[]string{"result"},
	)

	CommitQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravityease_commit_queue_depth",
			Help: "Segments waiting to be written",
		},
	)

	// UI metrics
	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravityease_websocket_clients",
			Help: "Connected websocket display clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TickDuration,
		Phase,
		PhaseTransitions,
		FilteredAngle,
		SensorAvailable,
		AnnouncementsTotal,
		UtterancesDropped,
		SegmentsTotal,
		SessionSecondsCommitted,
		CommitsTotal,
		CommitQueueDepth,
		WebsocketClients,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // systemd socket activation
	health   func() error
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	s := &Server{
		logger: logger.With().Str("component", "metrics").Logger(),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// SetHealthCheck installs a check consulted by /health.
func (s *Server) SetHealthCheck(check func() error) {
	s.health = check
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
