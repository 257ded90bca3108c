package ui

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goodtune/gravityease/internal/storage"
	"github.com/goodtune/gravityease/internal/therapy"
	"github.com/gorilla/mux"
)

const defaultHistoryDays = 30

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Snapshot(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read state")
		writeError(w, http.StatusServiceUnavailable, "Station is not running")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.StartTherapy(r.Context())
	if err != nil {
		if errors.Is(err, therapy.ErrSensorUnavailable) {
			writeError(w, http.StatusConflict, "Tilt sensor is not available")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to start therapy")
		writeError(w, http.StatusServiceUnavailable, "Failed to start therapy")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.StopTherapy(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to stop therapy")
		writeError(w, http.StatusServiceUnavailable, "Failed to stop therapy")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetVoice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VoiceResponse{Enabled: s.ctrl.VoiceEnabled()})
}

func (s *Server) handleSetVoice(w http.ResponseWriter, r *http.Request) {
	var req VoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	enabled, err := s.ctrl.SetVoice(r.Context(), *req.Enabled)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to toggle voice")
		writeError(w, http.StatusServiceUnavailable, "Failed to toggle voice")
		return
	}
	writeJSON(w, http.StatusOK, VoiceResponse{Enabled: enabled})
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}

	agg, err := s.sessions.GetDailyAggregate(r.Context(), s.config.UserID, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusOK, storage.DailyAggregate{Date: date, UserID: s.config.UserID})
			return
		}
		s.logger.Error().Err(err).Str("date", date).Msg("Failed to get daily aggregate")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve daily total")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}

	records, err := s.sessions.ListSessions(r.Context(), s.config.UserID, date)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve records")
		return
	}
	if records == nil {
		records = []storage.SessionRecord{}
	}

	writeJSON(w, http.StatusOK, RecordsResponse{
		Date:    date,
		Records: records,
		Count:   len(records),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryDays
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	days, err := s.sessions.ListDailyAggregates(r.Context(), s.config.UserID, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list daily aggregates")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}
	if days == nil {
		days = []storage.DailyAggregate{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{Days: days, Count: len(days)})
}

// dateParam resolves {date}, accepting "today" for the current local date.
func (s *Server) dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := mux.Vars(r)["date"]
	if date == "today" {
		return s.now().Format(storage.DateFormat), true
	}
	if _, err := time.Parse(storage.DateFormat, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD or today")
		return "", false
	}
	return date, true
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	var initial []byte
	if snap, err := s.ctrl.Snapshot(r.Context()); err == nil {
		initial, _ = encodeMessage(MessageSnapshot, snap)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	s.hub.Register(conn, initial)
}
