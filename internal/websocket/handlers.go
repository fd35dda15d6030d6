package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/raihanakbr/daily-audio-transcription/internal/storage"
)

// RecordingLister lists the daily recordings on disk
type RecordingLister interface {
	List() ([]storage.Recording, error)
}

// Handler serves the websocket endpoint and the read-only REST API
type Handler struct {
	ctx        context.Context
	hub        *Hub
	uploads    UploadHandler
	history    *TranscriptHistory
	recordings RecordingLister
	logger     logrus.FieldLogger
	upgrader   websocket.Upgrader
}

// NewHandler creates the HTTP handlers. ctx is handed to every upload and
// should be cancelled only on shutdown.
func NewHandler(ctx context.Context, hub *Hub, uploads UploadHandler, history *TranscriptHistory, recordings RecordingLister, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		ctx:        ctx,
		hub:        hub,
		uploads:    uploads,
		history:    history,
		recordings: recordings,
		logger:     logger,
		// Browsers connect from any origin
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Routes registers all endpoints on a dedicated mux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocketConnection)
	mux.HandleFunc("/api/transcripts", h.GetTranscriptsHandler)
	mux.HandleFunc("/api/recordings", h.GetRecordingsHandler)
	mux.HandleFunc("/healthz", h.HealthHandler)
	return mux
}

// HandleWebSocketConnection handles a new WebSocket connection from a client
func (h *Handler) HandleWebSocketConnection(w http.ResponseWriter, r *http.Request) {
	clientWS, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	connectionID := r.URL.Query().Get("connection_id")

	client := NewClientConnection(h.ctx, clientWS, connectionID, h.uploads, h.hub, h.logger)
	h.hub.Register(client)
	h.logger.WithFields(logrus.Fields{
		"client_id": client.ID,
		"remote":    r.RemoteAddr,
		"clients":   h.hub.Count(),
	}).Info("New client connected")

	go client.Listen()
}

// API endpoint handlers

// GetTranscriptsHandler returns the most recent broadcast transcriptions
func (h *Handler) GetTranscriptsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	transcripts := h.history.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transcripts": transcripts,
		"count":       len(transcripts),
	})
}

// GetRecordingsHandler lists the daily recordings with their sizes
func (h *Handler) GetRecordingsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recordings, err := h.recordings.List()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list recordings")
		http.Error(w, "Failed to list recordings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recordings": recordings,
		"count":      len(recordings),
	})
}

// HealthHandler reports liveness and the number of connected clients
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": h.hub.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
