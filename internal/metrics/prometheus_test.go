package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordUpload(t *testing.T) {
	m := New(nil)

	m.RecordUpload("success", 2048)
	m.RecordUpload("success", 4096)
	m.RecordUpload("missing_payload", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Uploads.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Uploads.WithLabelValues("missing_payload")))
	// Only uploads that carried audio are observed
	var metric dto.Metric
	require.NoError(t, m.ChunkSize.Write(&metric))
	assert.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
}

func TestRecordTranscriptionAndBroadcast(t *testing.T) {
	m := New(nil)

	m.RecordTranscription("success", 250*time.Millisecond)
	m.RecordTranscription("provider_error", time.Second)
	m.RecordBroadcast()

	assert.Equal(t, 2, testutil.CollectAndCount(m.TranscriptionDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Broadcasts))
}

func TestHandler_ExposesRegistry(t *testing.T) {
	clients := 3
	m := New(func() int { return clients })
	m.RecordUpload("success", 1024)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `audio_transcription_uploads_total{outcome="success"} 1`)
	assert.Contains(t, string(body), "audio_transcription_connected_clients 3")
}

func TestNew_IndependentRegistries(t *testing.T) {
	// Separate instances must not collide on registration
	a := New(nil)
	b := New(nil)
	a.RecordBroadcast()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Broadcasts))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Broadcasts))
}
