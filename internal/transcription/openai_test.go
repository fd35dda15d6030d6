package transcription

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAIClient(t *testing.T, endpoint string) *OpenAIClient {
	t.Helper()
	logger, _ := test.NewNullLogger()
	client, err := NewOpenAIClient(testConfig(endpoint), ReaderFunc(os.ReadFile), logger)
	require.NoError(t, err)
	return client
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.whisper.ai/v1", BaseURL("https://api.whisper.ai/v1/audio/transcriptions"))
	assert.Equal(t, "https://api.whisper.ai/v1", BaseURL("https://api.whisper.ai/v1/audio/transcriptions/"))
	assert.Equal(t, "http://localhost:9000/v1", BaseURL("http://localhost:9000/v1"))
}

func TestOpenAIClient_Success(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK,
		`{"task":"transcribe","language":"english","duration":1.5,"text":"hello world","segments":[{"id":0,"start":0,"end":1.5,"text":"hello world"}]}`)
	client := newTestOpenAIClient(t, provider.URL+"/v1/audio/transcriptions")
	audio := []byte("RIFF-fake-wave-bytes")

	result, err := client.Transcribe(context.Background(), writeRecording(t, audio))
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Text)
	assert.Contains(t, string(result.Segments), `"text":"hello world"`)

	req := provider.last(t)
	assert.Equal(t, "/v1/audio/transcriptions", req.path)
	assert.Equal(t, "Bearer test-key", req.authorization)
	assert.Equal(t, "whisper-1", req.fields["model"])
	assert.Equal(t, "en", req.fields["language"])
	assert.Equal(t, "verbose_json", req.fields["response_format"])
	assert.True(t, strings.HasPrefix(req.filename, "recording_"), req.filename)
	assert.Equal(t, audio, req.audio)
}

func TestOpenAIClient_EmptyFileSkipsProvider(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, `{"text":"hello"}`)
	client := newTestOpenAIClient(t, provider.URL+"/v1/audio/transcriptions")

	_, err := client.Transcribe(context.Background(), writeRecording(t, nil))
	assert.ErrorIs(t, err, ErrEmptyAudio)
	assert.Zero(t, provider.calls.Load())
}

func TestOpenAIClient_ProviderError(t *testing.T) {
	provider := newFakeProvider(t, http.StatusUnauthorized,
		`{"error":{"message":"Invalid API key","type":"invalid_request_error"}}`)
	client := newTestOpenAIClient(t, provider.URL+"/v1/audio/transcriptions")

	_, err := client.Transcribe(context.Background(), writeRecording(t, []byte("audio")))

	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, providerErr.Status)
	assert.Equal(t, "Invalid API key", providerErr.Message)
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAIClient_NonJSONError(t *testing.T) {
	provider := newFakeProvider(t, http.StatusBadGateway, `bad gateway`)
	client := newTestOpenAIClient(t, provider.URL+"/v1/audio/transcriptions")

	_, err := client.Transcribe(context.Background(), writeRecording(t, []byte("audio")))

	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, providerErr.Status)
}

func TestOpenAIClient_MalformedSuccessBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "truncated", body: `{"text":`},
		{name: "not json", body: `not json`},
		{name: "empty", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider(t, http.StatusOK, tt.body)
			client := newTestOpenAIClient(t, provider.URL+"/v1/audio/transcriptions")

			_, err := client.Transcribe(context.Background(), writeRecording(t, []byte("audio")))

			var providerErr *ProviderError
			require.True(t, errors.As(err, &providerErr), "got %T: %v", err, err)
			assert.Equal(t, http.StatusOK, providerErr.Status)
			assert.Equal(t, "malformed response body", providerErr.Message)

			var transportErr *TransportError
			assert.False(t, errors.As(err, &transportErr))
		})
	}
}

func TestOpenAIClient_LowConfidence(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, `{"text":"?","segments":[]}`)
	client := newTestOpenAIClient(t, provider.URL+"/v1/audio/transcriptions")

	_, err := client.Transcribe(context.Background(), writeRecording(t, []byte("audio")))
	assert.ErrorIs(t, err, ErrLowConfidence)
}

func TestOpenAIClient_Unreachable(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, `{"text":"hello"}`)
	endpoint := provider.URL + "/v1/audio/transcriptions"
	provider.Close()

	logger, _ := test.NewNullLogger()
	config := testConfig(endpoint)
	config.Timeout = 500 * time.Millisecond
	client, err := NewOpenAIClient(config, ReaderFunc(os.ReadFile), logger)
	require.NoError(t, err)

	_, err = client.Transcribe(context.Background(), writeRecording(t, []byte("audio")))
	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr), "got %v", err)
}
