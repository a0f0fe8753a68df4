package trainlocation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBusFanOut(t *testing.T) {
	bus := newEventBus(4)

	a, cancelA := bus.subscribe()
	b, cancelB := bus.subscribe()
	defer cancelB()

	bus.publish(Event{Kind: FleetUpdated})
	bus.publish(Event{Kind: PollFailed, Err: errors.New("timeout")})

	for _, ch := range []<-chan Event{a, b} {
		e := <-ch
		assert.Equal(t, FleetUpdated, e.Kind)
		assert.False(t, e.At.IsZero())
		e = <-ch
		assert.Equal(t, PollFailed, e.Kind)
		assert.EqualError(t, e.Err, "timeout")
	}

	cancelA()
	_, ok := <-a
	assert.False(t, ok)

	// Cancelling twice is fine
	cancelA()
}

func TestEventBusDropsForSlowSubscribers(t *testing.T) {
	bus := newEventBus(2)
	ch, cancel := bus.subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		bus.publish(Event{Kind: MetadataCached, TrainNumber: i})
	}

	assert.Equal(t, 0, (<-ch).TrainNumber)
	assert.Equal(t, 1, (<-ch).TrainNumber)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

func TestEventBusClose(t *testing.T) {
	bus := newEventBus(2)
	ch, cancel := bus.subscribe()

	bus.close()
	_, ok := <-ch
	assert.False(t, ok)

	// No panics after close
	cancel()
	bus.publish(Event{Kind: FleetUpdated})
	bus.close()

	late, _ := bus.subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "fleet_updated", FleetUpdated.String())
	assert.Equal(t, "selection_changed", SelectionChanged.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}
