package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/raihanakbr/daily-audio-transcription/internal/ingest"
)

// UploadHandler processes one uploaded audio chunk and returns the ack for
// the sender
type UploadHandler interface {
	HandleUpload(ctx context.Context, payload []byte) ingest.Ack
}

// ClientConnection represents a client connected to our server
type ClientConnection struct {
	ID        string
	ClientWS  *websocket.Conn
	Mutex     sync.Mutex
	Done      chan struct{}
	StartTime time.Time

	ctx     context.Context
	uploads UploadHandler
	hub     *Hub
	logger  logrus.FieldLogger

	// guarded by Mutex
	closed   bool
	received int
}

// NewClientConnection creates a new client connection. ctx bounds the
// uploads started by this client; it is not cancelled when the client goes
// away, so an in-flight transcription still reaches the other listeners.
func NewClientConnection(ctx context.Context, clientWS *websocket.Conn, connectionID string, uploads UploadHandler, hub *Hub, logger logrus.FieldLogger) *ClientConnection {
	if connectionID == "" {
		connectionID = ulid.Make().String()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &ClientConnection{
		ID:        connectionID,
		ClientWS:  clientWS,
		Done:      make(chan struct{}),
		StartTime: time.Now(),
		ctx:       ctx,
		uploads:   uploads,
		hub:       hub,
		logger:    logger.WithField("client_id", connectionID),
	}
}

// Listen reads events from the client until the connection fails or is
// closed. Events from one client are handled one at a time.
func (cc *ClientConnection) Listen() {
	defer cc.Close()

	cc.ClientWS.SetReadLimit(MaxMessageSize)

	for {
		messageType, data, err := cc.ClientWS.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cc.logger.WithError(err).Warn("Error reading from client")
			} else {
				cc.logger.WithError(err).Debug("Client connection ended")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			// A bare binary frame is an uploadAudio event without an ack id
			if data == nil {
				data = []byte{}
			}
			cc.handleUpload("", data)
		case websocket.TextMessage:
			cc.handleEnvelope(data)
		default:
			cc.logger.WithField("message_type", messageType).Warn("Received unknown message type from client")
		}
	}
}

func (cc *ClientConnection) handleEnvelope(message []byte) {
	var envelope Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		cc.reply(EventError, "", ingest.Ack{
			Status:  ingest.StatusError,
			Message: fmt.Sprintf("invalid message: %v", err),
		})
		return
	}

	switch envelope.Event {
	case EventUploadAudio:
		payload, err := decodeUpload(envelope.Data)
		if err != nil {
			cc.reply(EventUploadAudio, envelope.ID, ingest.Ack{Status: ingest.StatusError, Message: err.Error()})
			return
		}
		cc.handleUpload(envelope.ID, payload)
	default:
		cc.reply(EventError, envelope.ID, ingest.Ack{
			Status:  ingest.StatusError,
			Message: fmt.Sprintf("unknown event %q", envelope.Event),
		})
	}
}

// decodeUpload extracts the chunk bytes, returning nil when the event has
// no fileBuffer at all
func decodeUpload(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var data UploadAudioData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %v", EventUploadAudio, err)
	}
	return data.FileBuffer, nil
}

func (cc *ClientConnection) handleUpload(id string, payload []byte) {
	cc.Mutex.Lock()
	cc.received++
	cc.Mutex.Unlock()

	start := time.Now()
	ack := cc.uploads.HandleUpload(cc.ctx, payload)

	log := cc.logger.WithFields(logrus.Fields{
		"bytes":      len(payload),
		"status":     ack.Status,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	if ack.Status == ingest.StatusError {
		log.WithField("message", ack.Message).Warn("Upload failed")
	} else {
		log.Info("Upload processed")
	}

	cc.reply(EventUploadAudio, id, ack)
}

func (cc *ClientConnection) reply(event, id string, ack ingest.Ack) {
	if err := cc.Send(OutboundMessage{Event: event, ID: id, Data: ack}); err != nil {
		cc.logger.WithError(err).Warn("Error sending to client")
	}
}

// Send writes one JSON message to the client. Writes are serialized per
// connection.
func (cc *ClientConnection) Send(msg OutboundMessage) error {
	return cc.sendWithin(msg, WriteWait)
}

func (cc *ClientConnection) sendWithin(msg OutboundMessage, wait time.Duration) error {
	cc.Mutex.Lock()
	defer cc.Mutex.Unlock()

	if cc.closed {
		return fmt.Errorf("connection %s already closed", cc.ID)
	}

	if err := cc.ClientWS.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return cc.ClientWS.WriteJSON(msg)
}

// Close closes the client connection. It is safe to call more than once.
func (cc *ClientConnection) Close() {
	cc.Mutex.Lock()
	defer cc.Mutex.Unlock()

	if cc.closed {
		return
	}
	cc.closed = true
	close(cc.Done)

	if cc.hub != nil {
		cc.hub.Unregister(cc)
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = cc.ClientWS.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(CloseGrace))
	cc.ClientWS.Close()

	cc.logger.WithFields(logrus.Fields{
		"uploads":    cc.received,
		"duration_s": time.Since(cc.StartTime).Seconds(),
	}).Info("Closed connection for client")
}
