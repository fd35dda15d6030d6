package websocket

import (
	"encoding/json"
	"sync"

	"github.com/raihanakbr/daily-audio-transcription/internal/ingest"
)

// Envelope is a named event received from a client
type Envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UploadAudioData is the payload of an uploadAudio event. FileBuffer is nil
// when the field is missing or null and empty when it is "".
type UploadAudioData struct {
	FileBuffer []byte `json:"fileBuffer"`
}

// OutboundMessage is a named event sent to a client
type OutboundMessage struct {
	Event string      `json:"event"`
	ID    string      `json:"id,omitempty"`
	Data  interface{} `json:"data"`
}

// TranscriptHistory keeps the most recent broadcast events, oldest first
type TranscriptHistory struct {
	mu     sync.RWMutex
	size   int
	events []ingest.BroadcastEvent
}

// NewTranscriptHistory creates a history bounded to size events
func NewTranscriptHistory(size int) *TranscriptHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &TranscriptHistory{
		size:   size,
		events: make([]ingest.BroadcastEvent, 0, size),
	}
}

// Add records a broadcast event, evicting the oldest one when full
func (h *TranscriptHistory) Add(event ingest.BroadcastEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.events) == h.size {
		copy(h.events, h.events[1:])
		h.events = h.events[:h.size-1]
	}
	h.events = append(h.events, event)
}

// Snapshot returns a copy of the recorded events
func (h *TranscriptHistory) Snapshot() []ingest.BroadcastEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	eventsCopy := make([]ingest.BroadcastEvent, len(h.events))
	copy(eventsCopy, h.events)
	return eventsCopy
}
