package trainlocation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"tidbyt.dev/trainlocation/model"
)

func TestFleetInitiallyEmpty(t *testing.T) {
	f := NewFleet()

	snapshot := f.Snapshot()
	assert.Equal(t, uuid.Nil, snapshot.ID)
	assert.True(t, snapshot.PolledAt.IsZero())
	assert.Empty(t, snapshot.Trains)
	assert.Empty(t, f.Trains())
	assert.Equal(t, 0, f.Len())
}

func TestFleetReplace(t *testing.T) {
	f := NewFleet()
	t0 := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)

	first := f.Replace([]model.TrainPosition{
		position(1, 60.1, 24.9, 10),
		position(2, 61.1, 23.9, 0),
	}, t0)

	assert.Equal(t, 2, f.Len())
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, t0, first.PolledAt)

	// Every replace drops trains that weren't in the latest poll
	second := f.Replace([]model.TrainPosition{
		position(2, 61.2, 23.8, 20),
		position(3, 62.1, 22.9, 30),
	}, t0.Add(10*time.Second))

	assert.NotEqual(t, first.ID, second.ID)
	_, found := f.Get(1)
	assert.False(t, found)

	p, found := f.Get(2)
	assert.True(t, found)
	assert.Equal(t, 20.0, p.Speed)

	assert.Equal(t, []int{2, 3}, trainNumbers(f.Trains()))

	// The earlier snapshot is untouched
	assert.Len(t, first.Trains, 2)
	assert.Equal(t, 0.0, first.Trains[2].Speed)
}

func TestFleetReplaceWithEmpty(t *testing.T) {
	f := NewFleet()
	f.Replace([]model.TrainPosition{position(1, 60.1, 24.9, 10)}, time.Now())
	f.Replace([]model.TrainPosition{}, time.Now())
	assert.Equal(t, 0, f.Len())
}

func TestFleetDuplicateTrainNumbers(t *testing.T) {
	f := NewFleet()
	f.Replace([]model.TrainPosition{
		position(1, 60.1, 24.9, 10),
		position(1, 60.2, 24.8, 15),
	}, time.Now())

	assert.Equal(t, 1, f.Len())
	p, _ := f.Get(1)
	assert.Equal(t, 15.0, p.Speed)
}

func TestFleetPlaceable(t *testing.T) {
	f := NewFleet()
	f.Replace([]model.TrainPosition{
		position(5, 60.1, 24.9, 10),
		{TrainNumber: 4, Speed: 12},
		position(3, 0, 0, 0),
		position(2, 61.5, 23.8, 0),
	}, time.Now())

	// Trains without location are still tracked
	assert.Equal(t, []int{2, 3, 4, 5}, trainNumbers(f.Trains()))
	assert.Equal(t, []int{2, 5}, trainNumbers(f.Placeable()))
}

func TestFleetNearby(t *testing.T) {
	f := NewFleet()
	f.Replace([]model.TrainPosition{
		position(1, 65.01, 25.48, 0), // Oulu
		position(2, 61.50, 23.77, 0), // Tampere
		position(3, 60.17, 24.94, 0), // Helsinki
		{TrainNumber: 4},
	}, time.Now())

	// From Pasila
	assert.Equal(t, []int{3, 2, 1}, trainNumbers(f.Nearby(60.199, 24.934, 0)))
	assert.Equal(t, []int{3, 2}, trainNumbers(f.Nearby(60.199, 24.934, 2)))

	// From Rovaniemi
	assert.Equal(t, []int{1}, trainNumbers(f.Nearby(66.5, 25.7, 1)))
}

func trainNumbers(trains []model.TrainPosition) []int {
	numbers := []int{}
	for _, p := range trains {
		numbers = append(numbers, p.TrainNumber)
	}
	return numbers
}
