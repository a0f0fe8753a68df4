package trainlocation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventKind int

const (
	// A poll succeeded and the fleet was replaced.
	FleetUpdated EventKind = iota

	// A poll failed. The fleet is unchanged.
	PollFailed

	// Metadata for a train was stored in the cache.
	MetadataCached

	// A metadata fetch failed or the train was unknown to the feed.
	MetadataFailed

	// The selected train, or its view, changed.
	SelectionChanged
)

func (k EventKind) String() string {
	switch k {
	case FleetUpdated:
		return "fleet_updated"
	case PollFailed:
		return "poll_failed"
	case MetadataCached:
		return "metadata_cached"
	case MetadataFailed:
		return "metadata_failed"
	case SelectionChanged:
		return "selection_changed"
	}
	return "unknown"
}

type Event struct {
	Kind        EventKind
	At          time.Time
	TrainNumber int
	SnapshotID  uuid.UUID
	Err         error
}

// Fans out events to subscribers. Delivery never blocks; a
// subscriber whose buffer is full misses the event.
type eventBus struct {
	mutex  sync.Mutex
	subs   map[chan Event]struct{}
	buffer int
	closed bool
}

func newEventBus(buffer int) *eventBus {
	return &eventBus{
		subs:   map[chan Event]struct{}{},
		buffer: buffer,
	}
}

// Returns a channel of events and a function that cancels the
// subscription. The channel is closed when either the subscription
// is cancelled or the bus is closed.
func (b *eventBus) subscribe() (<-chan Event, func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	return ch, func() {
		b.mutex.Lock()
		defer b.mutex.Unlock()
		if _, found := b.subs[ch]; found {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

func (b *eventBus) publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *eventBus) close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = map[chan Event]struct{}{}
}
