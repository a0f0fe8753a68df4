package trainlocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tidbyt.dev/trainlocation/model"
	"tidbyt.dev/trainlocation/testutil"
)

func feedFixture(t *testing.T) *testutil.MockFeedServer {
	return testutil.NewMockFeedServer(t)
}

func positionFeed(server *testutil.MockFeedServer) *PositionFeed {
	return NewPositionFeed(server.PositionsURL())
}

func metadataFeed(server *testutil.MockFeedServer) *MetadataFeed {
	return NewMetadataFeed(server.MetadataURL(), time.UTC)
}

type positionsFunc func(ctx context.Context) ([]model.TrainPosition, error)

func (f positionsFunc) FetchPositions(ctx context.Context) ([]model.TrainPosition, error) {
	return f(ctx)
}

type metadataFunc func(ctx context.Context, trainNumber int) (*model.TrainMetadata, error)

func (f metadataFunc) FetchMetadata(ctx context.Context, trainNumber int) (*model.TrainMetadata, error) {
	return f(ctx, trainNumber)
}

func ptr(v float64) *float64 {
	return &v
}

func position(number int, lat, lon, speed float64) model.TrainPosition {
	return model.TrainPosition{
		TrainNumber: number,
		Latitude:    ptr(lat),
		Longitude:   ptr(lon),
		Speed:       speed,
	}
}

// Waits for an event of the given kind, failing the test on timeout.
func waitEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-events:
			require.True(t, ok, "event channel closed waiting for %s", kind)
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for event", kind.String())
		}
	}
}
