package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raihanakbr/daily-audio-transcription/internal/ingest"
)

// newHubServer registers every upgraded connection with hub without reading
// from it, so only the hub writes to the server side.
func newHubServer(t *testing.T, hub *Hub) string {
	t.Helper()
	logger, _ := test.NewNullLogger()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(NewClientConnection(context.Background(), ws, r.URL.Query().Get("connection_id"), nil, hub, logger))
	}))
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHubBroadcast_StalledListenerIsDroppedQuickly(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger, WithBroadcastWriteWait(time.Second))
	url := newHubServer(t, hub)

	stalled, _, err := websocket.DefaultDialer.Dial(url+"?connection_id=stalled", nil)
	require.NoError(t, err)
	defer stalled.Close()
	healthy, _, err := websocket.DefaultDialer.Dial(url+"?connection_id=healthy", nil)
	require.NoError(t, err)
	defer healthy.Close()
	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	received := make(chan inbound, 1)
	go func() {
		var msg inbound
		_ = healthy.SetReadDeadline(time.Now().Add(10 * time.Second))
		if err := healthy.ReadJSON(&msg); err == nil {
			received <- msg
		}
	}()

	// Large enough to fill the socket buffers of a peer that never reads
	event := ingest.BroadcastEvent{
		Status:        ingest.StatusSuccess,
		Transcription: strings.Repeat("a", 32<<20),
		Timestamp:     time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC),
	}

	start := time.Now()
	hub.Broadcast(event)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, WriteWait/2, "a stalled listener held the broadcast for %s", elapsed)
	assert.Equal(t, 1, hub.Count())

	select {
	case msg := <-received:
		assert.Equal(t, EventAudioResponse, msg.Event)
	case <-time.After(5 * time.Second):
		t.Fatal("healthy listener did not receive the broadcast")
	}
}

func TestNewHub_BroadcastWriteWait(t *testing.T) {
	assert.Equal(t, BroadcastWriteWait, NewHub(nil).writeWait)
	assert.Equal(t, time.Second, NewHub(nil, WithBroadcastWriteWait(time.Second)).writeWait)
	assert.Equal(t, BroadcastWriteWait, NewHub(nil, WithBroadcastWriteWait(0)).writeWait)
	assert.Less(t, BroadcastWriteWait, WriteWait)
}
