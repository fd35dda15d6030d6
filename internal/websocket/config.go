package websocket

import "time"

// Event names exchanged with clients
const (
	EventUploadAudio   = "uploadAudio"
	EventAudioResponse = "audioResponse"
	EventError         = "error"
)

// Connection configuration constants
const (
	// Maximum size of one inbound frame; a base64 chunk is ~4/3 of its audio
	MaxMessageSize = 16 << 20
	WriteWait      = 10 * time.Second
	CloseGrace     = 100 * time.Millisecond

	// Broadcast writes hold up every other listener, so they give up sooner
	BroadcastWriteWait = 2 * time.Second

	DefaultHistorySize = 100
)
