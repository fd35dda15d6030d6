package websocket

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raihanakbr/daily-audio-transcription/internal/ingest"
)

// Hub tracks connected clients and pushes broadcast events to all of them
type Hub struct {
	logger    logrus.FieldLogger
	writeWait time.Duration
	clients   sync.Map // map[string]*ClientConnection
}

// HubOption customises a Hub
type HubOption func(*Hub)

// WithBroadcastWriteWait bounds each broadcast write to one client
func WithBroadcastWriteWait(wait time.Duration) HubOption {
	return func(h *Hub) {
		if wait > 0 {
			h.writeWait = wait
		}
	}
}

// NewHub creates an empty hub
func NewHub(logger logrus.FieldLogger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Hub{logger: logger, writeWait: BroadcastWriteWait}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a client to the broadcast set
func (h *Hub) Register(client *ClientConnection) {
	if client == nil {
		return
	}
	h.clients.Store(client.ID, client)
}

// Unregister removes a client from the broadcast set
func (h *Hub) Unregister(client *ClientConnection) {
	if client == nil {
		return
	}
	h.clients.CompareAndDelete(client.ID, client)
}

// Broadcast sends an audioResponse event to every registered client. A client
// whose write fails is dropped; the others still receive the event.
//
// Clients are written one after another and the event bus holds its lock
// for the whole call, so a listener that stopped reading delays every
// pending broadcast and the uploader's ack by up to the broadcast write wait.
func (h *Hub) Broadcast(event ingest.BroadcastEvent) {
	msg := OutboundMessage{Event: EventAudioResponse, Data: event}

	sent := 0
	h.clients.Range(func(key, value any) bool {
		client := value.(*ClientConnection)
		if err := client.sendWithin(msg, h.writeWait); err != nil {
			h.logger.WithError(err).WithField("client_id", client.ID).Warn("Dropping client after failed broadcast")
			h.clients.CompareAndDelete(key, client)
			client.Close()
			return true
		}
		sent++
		return true
	})

	h.logger.WithField("listeners", sent).Debug("Broadcast audio response")
}

// Count returns the number of registered clients
func (h *Hub) Count() int {
	count := 0
	h.clients.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// CloseAll closes and removes every client
func (h *Hub) CloseAll() {
	h.clients.Range(func(key, value any) bool {
		h.clients.Delete(key)
		value.(*ClientConnection).Close()
		return true
	})
}
