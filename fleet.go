package trainlocation

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tidbyt.dev/trainlocation/model"
)

// Holds the most recent snapshot of the fleet. Snapshots are never
// modified after creation; a poll replaces the whole thing.
type Fleet struct {
	mutex    sync.RWMutex
	snapshot model.Snapshot
}

func NewFleet() *Fleet {
	return &Fleet{
		snapshot: model.Snapshot{
			Trains: map[int]model.TrainPosition{},
		},
	}
}

// Builds a new snapshot from positions and swaps it in. If a train
// number occurs more than once, the last row wins.
func (f *Fleet) Replace(positions []model.TrainPosition, polledAt time.Time) model.Snapshot {
	trains := make(map[int]model.TrainPosition, len(positions))
	for _, p := range positions {
		trains[p.TrainNumber] = p
	}

	snapshot := model.Snapshot{
		ID:       uuid.New(),
		PolledAt: polledAt,
		Trains:   trains,
	}

	f.mutex.Lock()
	f.snapshot = snapshot
	f.mutex.Unlock()

	return snapshot
}

// The current snapshot. Its Trains map must not be modified.
func (f *Fleet) Snapshot() model.Snapshot {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.snapshot
}

func (f *Fleet) Get(trainNumber int) (model.TrainPosition, bool) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	p, found := f.snapshot.Trains[trainNumber]
	return p, found
}

func (f *Fleet) Len() int {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return len(f.snapshot.Trains)
}

// All trains, sorted by train number.
func (f *Fleet) Trains() []model.TrainPosition {
	return sortedTrains(f.Snapshot(), nil)
}

// Trains that can be placed on a map, sorted by train number.
func (f *Fleet) Placeable() []model.TrainPosition {
	return sortedTrains(f.Snapshot(), model.TrainPosition.HasLocation)
}

// Up to limit placeable trains, closest to the given point first. A
// limit of 0 or less returns all of them.
func (f *Fleet) Nearby(lat, lon float64, limit int) []model.TrainPosition {
	trains := f.Placeable()

	sort.SliceStable(trains, func(i, j int) bool {
		return trains[i].DistanceTo(lat, lon) < trains[j].DistanceTo(lat, lon)
	})

	if limit > 0 && len(trains) > limit {
		trains = trains[:limit]
	}
	return trains
}

func sortedTrains(snapshot model.Snapshot, keep func(model.TrainPosition) bool) []model.TrainPosition {
	trains := make([]model.TrainPosition, 0, len(snapshot.Trains))
	for _, p := range snapshot.Trains {
		if keep != nil && !keep(p) {
			continue
		}
		trains = append(trains, p)
	}
	sort.Slice(trains, func(i, j int) bool {
		return trains[i].TrainNumber < trains[j].TrainNumber
	})
	return trains
}
