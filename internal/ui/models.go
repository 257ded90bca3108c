package ui

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/goodtune/gravityease/internal/storage"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// VoiceRequest toggles voice guidance.
type VoiceRequest struct {
	Enabled *bool `json:"enabled"`
}

// VoiceResponse reports whether voice guidance is on.
type VoiceResponse struct {
	Enabled bool `json:"enabled"`
}

// RecordsResponse lists one day's sessions.
type RecordsResponse struct {
	Date    string                  `json:"date"`
	Records []storage.SessionRecord `json:"records"`
	Count   int                     `json:"count"`
}

// HistoryResponse lists daily totals, newest first.
type HistoryResponse struct {
	Days  []storage.DailyAggregate `json:"days"`
	Count int                      `json:"count"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
