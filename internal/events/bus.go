package events

import (
	evbus "github.com/asaskevich/EventBus"

	"github.com/raihanakbr/daily-audio-transcription/internal/ingest"
)

// TopicAudioResponse carries successful transcriptions.
const TopicAudioResponse = "audioResponse"

// Bus fans a transcription out to every subscriber. Handlers run
// synchronously in Publish order; two broadcasts never overlap.
type Bus struct {
	bus evbus.Bus
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// Broadcast implements ingest.Broadcaster.
func (b *Bus) Broadcast(event ingest.BroadcastEvent) {
	b.bus.Publish(TopicAudioResponse, event)
}

// Subscribe registers fn for every future broadcast. fn must not subscribe or
// unsubscribe from inside the callback.
func (b *Bus) Subscribe(fn func(ingest.BroadcastEvent)) error {
	return b.bus.Subscribe(TopicAudioResponse, fn)
}
