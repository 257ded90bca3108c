// Package ui serves the station's display: a JSON API for control and
// history, and a websocket stream of live tilt snapshots.
package ui

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/gravityease/internal/storage"
	"github.com/goodtune/gravityease/internal/therapy"
	"github.com/goodtune/gravityease/web"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Controller is the daemon surface the API drives.
type Controller interface {
	StartTherapy(ctx context.Context) (therapy.Snapshot, error)
	StopTherapy(ctx context.Context) (therapy.Snapshot, error)
	SetVoice(ctx context.Context, enabled bool) (bool, error)
	Snapshot(ctx context.Context) (therapy.Snapshot, error)
	VoiceEnabled() bool
}

// Config holds the UI server configuration.
type Config struct {
	ListenAddr string
	UserID     string
}

// Server represents the display HTTP server.
type Server struct {
	config   Config
	ctrl     Controller
	sessions storage.SessionStore
	hub      *Hub
	server   *http.Server
	router   *mux.Router
	listener net.Listener // systemd socket activation
	now      func() time.Time
	logger   zerolog.Logger
}

// NewServer creates a new UI server.
func NewServer(cfg Config, ctrl Controller, sessions storage.SessionStore, hub *Hub, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		config:   cfg,
		ctrl:     ctrl,
		sessions: sessions,
		hub:      hub,
		router:   router,
		now:      time.Now,
		logger:   logger.With().Str("component", "ui").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/ws", s.handleWebsocket).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/start", s.handleStart).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/voice", s.handleGetVoice).Methods("GET")
	api.HandleFunc("/voice", s.handleSetVoice).Methods("PUT")
	api.HandleFunc("/daily/{date}", s.handleDaily).Methods("GET")
	api.HandleFunc("/records/{date}", s.handleRecords).Methods("GET")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")

	s.router.PathPrefix("/").Handler(web.Handler())
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the UI HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting UI server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated HTTP listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("UI server error")
		}
	}()

	return nil
}

// Stop gracefully stops the UI server and disconnects display clients.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping UI server")

	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("ui server shutdown: %w", err)
	}

	return nil
}
