package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 30 * time.Second
	audioMIMEType  = "audio/wav"
	unknownError   = "Unknown error"
)

// Transcriber turns the recording at path into a validated transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (*Result, error)
}

// AudioReader loads the full contents of a recording.
type AudioReader interface {
	ReadRecording(path string) ([]byte, error)
}

// ReaderFunc adapts a plain function to AudioReader.
type ReaderFunc func(path string) ([]byte, error)

func (f ReaderFunc) ReadRecording(path string) ([]byte, error) {
	return f(path)
}

// Config contains the provider call settings. Model, Language and
// ResponseFormat are sent unchanged with every request.
type Config struct {
	Endpoint       string
	APIKey         string
	Model          string
	Language       string
	ResponseFormat string
	Timeout        time.Duration
}

// Result is a transcript that passed validation.
type Result struct {
	Text string `json:"text"`
	// Segments is the provider's segment list, untouched.
	Segments json.RawMessage `json:"segments"`
}

// providerResponse covers both the success and the error payloads so the
// body is decoded exactly once.
type providerResponse struct {
	Text     *string         `json:"text"`
	Segments json.RawMessage `json:"segments"`
	Error    *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client posts recordings to a speech-to-text endpoint as multipart forms.
// It never retries; every failure is returned to the caller as is.
type Client struct {
	config     Config
	reader     AudioReader
	httpClient *http.Client
	logger     logrus.FieldLogger
	requestID  func() string
}

// NewClient creates a transcription client. The HTTP timeout bounds the whole
// exchange, including reading the response body.
func NewClient(config Config, reader AudioReader, logger logrus.FieldLogger) (*Client, error) {
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

	return &Client{
		config: config,
		reader: reader,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:    logger,
		requestID: func() string { return ulid.Make().String() },
	}, nil
}

func (c Config) check() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	return nil
}

// Transcribe sends the whole current recording at path to the provider.
func (c *Client) Transcribe(ctx context.Context, path string) (*Result, error) {
	audio, err := c.reader.ReadRecording(path)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	filename := fmt.Sprintf("recording_%s.wav", c.requestID())
	body, contentType, err := c.createMultipartRequest(audio, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Endpoint: c.config.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: c.config.Endpoint, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	log := c.logger.WithFields(logrus.Fields{
		"path":        path,
		"audio_bytes": len(audio),
		"status":      resp.StatusCode,
		"latency_ms":  time.Since(start).Milliseconds(),
	})

	var parsed providerResponse
	parseErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := unknownError
		if parseErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		log.WithField("message", message).Error("Provider returned an error")
		return nil, &ProviderError{Status: resp.StatusCode, Message: message}
	}

	if parseErr != nil {
		log.WithError(parseErr).Error("Provider returned a malformed body")
		return nil, &ProviderError{Status: resp.StatusCode, Message: "malformed response body", Err: parseErr}
	}

	return c.accept(log, parsed.Text, parsed.Segments)
}

func (c *Client) accept(log logrus.FieldLogger, text *string, segments json.RawMessage) (*Result, error) {
	if !Validate(text) {
		if text != nil {
			log = log.WithField("text", *text)
		}
		log.Warn("Discarding low-confidence transcript")
		return nil, ErrLowConfidence
	}

	segments = normalizeSegments(segments)
	log.WithField("chars", len(*text)).Info("Transcription completed")
	return &Result{Text: *text, Segments: segments}, nil
}

// createMultipartRequest creates the multipart/form-data request body.
func (c *Client) createMultipartRequest(audio []byte, filename string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", audioMIMEType)
	fileWriter, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := []struct{ key, value string }{
		{"model", c.config.Model},
		{"language", c.config.Language},
		{"response_format", c.config.ResponseFormat},
	}
	for _, field := range fields {
		if err := writer.WriteField(field.key, field.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", field.key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

func normalizeSegments(segments json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(segments)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]")
	}
	return segments
}
