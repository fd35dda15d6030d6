package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raihanakbr/daily-audio-transcription/internal/storage"
	"github.com/raihanakbr/daily-audio-transcription/internal/transcription"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrMissingPayload is returned when an upload event carries no audio field
// at all. An audio field holding zero bytes is rejected by the chunk store.
var ErrMissingPayload = errors.New("no audio data received")

// ChunkStore persists an audio chunk and returns the recording it was
// appended to.
type ChunkStore interface {
	Persist(chunk []byte, at time.Time) (string, error)
}

// Broadcaster delivers an event to every connected listener.
type Broadcaster interface {
	Broadcast(event BroadcastEvent)
}

// Recorder observes pipeline outcomes. Outcome labels come from Outcome.
type Recorder interface {
	RecordUpload(outcome string, chunkBytes int)
	RecordTranscription(outcome string, elapsed time.Duration)
	RecordBroadcast()
}

type nopRecorder struct{}

func (nopRecorder) RecordUpload(string, int)                  {}
func (nopRecorder) RecordTranscription(string, time.Duration) {}
func (nopRecorder) RecordBroadcast()                          {}

// Outcome labels
const (
	OutcomeSuccess        = "success"
	OutcomeMissingPayload = "missing_payload"
	OutcomeEmptyChunk     = "empty_chunk"
	OutcomeStorageError   = "storage_error"
	OutcomeEmptyAudio     = "empty_audio"
	OutcomeLowConfidence  = "low_confidence"
	OutcomeProviderError  = "provider_error"
	OutcomeTransportError = "transport_error"
	OutcomeUnknownError   = "unknown_error"
)

// Outcome classifies an error returned by Process.
func Outcome(err error) string {
	var (
		storageErr   *storage.StorageError
		providerErr  *transcription.ProviderError
		transportErr *transcription.TransportError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrMissingPayload):
		return OutcomeMissingPayload
	case errors.Is(err, storage.ErrEmptyChunk):
		return OutcomeEmptyChunk
	case errors.As(err, &storageErr):
		return OutcomeStorageError
	case errors.Is(err, transcription.ErrEmptyAudio):
		return OutcomeEmptyAudio
	case errors.Is(err, transcription.ErrLowConfidence):
		return OutcomeLowConfidence
	case errors.As(err, &providerErr):
		return OutcomeProviderError
	case errors.As(err, &transportErr):
		return OutcomeTransportError
	default:
		return OutcomeUnknownError
	}
}

// BroadcastEvent is pushed to all listeners after a successful transcription.
type BroadcastEvent struct {
	Status        string          `json:"status"`
	Transcription string          `json:"transcription"`
	Segments      json.RawMessage `json:"segments"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Ack is returned to the client that sent the chunk.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Coordinator runs one upload through persist, transcribe and broadcast.
// It holds no per-upload state; the recordings on disk are the only state
// shared between calls.
type Coordinator struct {
	store       ChunkStore
	transcriber transcription.Transcriber
	broadcaster Broadcaster
	logger      logrus.FieldLogger
	recorder    Recorder
	now         func() time.Time
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the time source used to key recordings and stamp events.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithRecorder reports every upload and transcription to r.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// NewCoordinator wires the pipeline stages together.
func NewCoordinator(store ChunkStore, transcriber transcription.Transcriber, broadcaster Broadcaster, logger logrus.FieldLogger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Coordinator{
		store:       store,
		transcriber: transcriber,
		broadcaster: broadcaster,
		logger:      logger,
		recorder:    nopRecorder{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleUpload processes one chunk. A nil payload means the audio field was
// missing. Failures are reported only through the returned Ack; the chunk
// stays on disk even when transcription fails.
func (c *Coordinator) HandleUpload(ctx context.Context, payload []byte) Ack {
	event, err := c.Process(ctx, payload)
	c.recorder.RecordUpload(Outcome(err), len(payload))
	if err != nil {
		return Ack{Status: StatusError, Message: err.Error()}
	}
	c.broadcaster.Broadcast(*event)
	c.recorder.RecordBroadcast()
	return Ack{Status: StatusSuccess}
}

// Process persists and transcribes payload and returns the event to
// broadcast. It does not broadcast.
func (c *Coordinator) Process(ctx context.Context, payload []byte) (*BroadcastEvent, error) {
	if payload == nil {
		c.logger.Error("Empty fileBuffer received")
		return nil, ErrMissingPayload
	}

	startedAt := c.now().UTC()
	log := c.logger.WithField("bytes", len(payload))

	path, err := c.store.Persist(payload, startedAt)
	if err != nil {
		log.WithError(err).Error("Error uploading file")
		return nil, err
	}
	log = log.WithField("path", path)

	// The whole day's recording is transcribed, not just this chunk.
	began := time.Now()
	result, err := c.transcriber.Transcribe(ctx, path)
	c.recorder.RecordTranscription(Outcome(err), time.Since(began))
	if err != nil {
		log.WithError(err).Error("Error transcribing audio")
		return nil, err
	}

	log.Debug("Broadcasting transcription")
	return &BroadcastEvent{
		Status:        StatusSuccess,
		Transcription: result.Text,
		Segments:      result.Segments,
		Timestamp:     startedAt,
	}, nil
}
