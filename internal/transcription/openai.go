package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const transcriptionsPath = "/audio/transcriptions"

// OpenAIClient makes the same provider call as Client through the go-openai
// SDK. Segments are re-encoded from the SDK's typed response, so fields the
// SDK does not know about are dropped.
type OpenAIClient struct {
	config    Config
	reader    AudioReader
	client    *openai.Client
	logger    logrus.FieldLogger
	requestID func() string
}

// NewOpenAIClient creates an SDK-backed transcriber. The SDK base URL is the
// configured endpoint without its /audio/transcriptions suffix.
func NewOpenAIClient(config Config, reader AudioReader, logger logrus.FieldLogger) (*OpenAIClient, error) {
	if err := config.check(); err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, fmt.Errorf("audio reader cannot be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = BaseURL(config.Endpoint)
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &OpenAIClient{
		config:    config,
		reader:    reader,
		client:    openai.NewClientWithConfig(clientConfig),
		logger:    logger,
		requestID: func() string { return ulid.Make().String() },
	}, nil
}

// BaseURL strips the transcription route from an endpoint URL.
func BaseURL(endpoint string) string {
	return strings.TrimSuffix(strings.TrimRight(endpoint, "/"), transcriptionsPath)
}

// Transcribe sends the whole current recording at path to the provider.
func (c *OpenAIClient) Transcribe(ctx context.Context, path string) (*Result, error) {
	audio, err := c.reader.ReadRecording(path)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	start := time.Now()
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.Model,
		FilePath: fmt.Sprintf("recording_%s.wav", c.requestID()),
		Reader:   bytes.NewReader(audio),
		Language: c.config.Language,
		Format:   openai.AudioResponseFormat(c.config.ResponseFormat),
	})

	log := c.logger.WithFields(logrus.Fields{
		"path":        path,
		"audio_bytes": len(audio),
		"latency_ms":  time.Since(start).Milliseconds(),
	})
	if err != nil {
		mapped := c.mapError(err)
		log.WithError(mapped).Error("Provider call failed")
		return nil, mapped
	}

	segments, err := json.Marshal(resp.Segments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode segments: %w", err)
	}

	text := resp.Text
	if !ValidText(text) {
		log.WithField("text", text).Warn("Discarding low-confidence transcript")
		return nil, ErrLowConfidence
	}

	log.WithField("chars", len(text)).Info("Transcription completed")
	return &Result{Text: text, Segments: normalizeSegments(segments)}, nil
}

func (c *OpenAIClient) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = unknownError
		}
		return &ProviderError{Status: apiErr.HTTPStatusCode, Message: message, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Status: reqErr.HTTPStatusCode, Message: unknownError, Err: err}
	}

	// Failures inside Do never produced a response
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &TransportError{Endpoint: c.config.Endpoint, Err: err}
	}

	// The SDK decodes a 2xx body with json.Decoder, which reports a
	// truncated or empty body as EOF rather than a syntax error
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &ProviderError{Status: http.StatusOK, Message: "malformed response body", Err: err}
	}

	return &TransportError{Endpoint: c.config.Endpoint, Err: err}
}
