package trainlocation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tidbyt.dev/trainlocation/model"
)

var (
	ErrTrainNotFound   = errors.New("train not found")
	ErrSelectionClosed = errors.New("selection closed")

	// Returned by Select when another train was selected before
	// metadata for this one arrived.
	ErrSelectionChanged = errors.New("selection changed")
)

// Anything that can resolve metadata for a train, typically a
// MetadataCache.
type MetadataResolver interface {
	GetOrFetch(ctx context.Context, trainNumber int) (*model.TrainMetadata, error)
}

// Tracks the selected train and keeps its view in sync with both the
// fleet and the metadata cache.
//
// The view of the selected train is only ever updated with results
// for that same train. A metadata fetch completing after the user has
// moved on to another train, or after Close, is dropped.
type Selection struct {
	Logger zerolog.Logger

	// Called with a copy of the view whenever it changes, or with
	// nil on deselect. Invoked while the selection is locked, so it
	// must not call back into the Selection.
	OnChange func(trainNumber int, view *model.SelectedTrainView)

	fleet    *Fleet
	resolver MetadataResolver

	mutex    sync.Mutex
	selected int
	view     *model.SelectedTrainView
	closed   bool
}

func NewSelection(fleet *Fleet, resolver MetadataResolver) *Selection {
	return &Selection{
		Logger:   log.Logger,
		fleet:    fleet,
		resolver: resolver,
	}
}

// Selects a train. Returns ErrTrainNotFound, without changing
// anything, if the train isn't in the fleet.
//
// A view built from the live position is published immediately, then
// metadata is resolved and merged in. The returned view is the one in
// place once Select is done; if another train was selected in the
// meantime, the result is discarded and ErrSelectionChanged is
// returned.
func (s *Selection) Select(ctx context.Context, trainNumber int) (*model.SelectedTrainView, error) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil, ErrSelectionClosed
	}

	pos, found := s.fleet.Get(trainNumber)
	if !found {
		s.mutex.Unlock()
		return nil, ErrTrainNotFound
	}

	if s.view == nil || s.selected != trainNumber {
		placeholder := &model.SelectedTrainView{}
		placeholder.ApplyPosition(pos)
		s.selected = trainNumber
		s.setView(placeholder)
	}
	s.mutex.Unlock()

	meta, err := s.resolver.GetOrFetch(ctx, trainNumber)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil, ErrSelectionClosed
	}
	if s.view == nil || s.selected != trainNumber {
		s.Logger.Debug().Int("train", trainNumber).Msg("selection changed during metadata fetch")
		return nil, ErrSelectionChanged
	}

	if err != nil || meta == nil {
		// Metadata is treated as absent. The view keeps its live
		// fields only.
		return s.view.Clone(), nil
	}

	live, found := s.fleet.Get(trainNumber)
	if !found {
		live = lastKnown(trainNumber, s.view)
	}

	view, err := mergeView(meta, live)
	if err != nil {
		return nil, err
	}
	s.setView(view)

	return view.Clone(), nil
}

// Patches the live fields of the selected train's view from a new
// snapshot. Metadata is untouched. If the train is missing from the
// snapshot the view keeps its last known position.
func (s *Selection) FleetUpdated(snapshot model.Snapshot) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed || s.view == nil {
		return
	}

	pos, found := snapshot.Trains[s.selected]
	if !found || !s.view.LiveDiffers(pos) {
		return
	}

	view := s.view.Clone()
	view.ApplyPosition(pos)
	s.setView(view)
}

func (s *Selection) Deselect() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed || s.view == nil {
		return
	}

	number := s.selected
	s.selected = 0
	s.view = nil
	if s.OnChange != nil {
		s.OnChange(number, nil)
	}
}

// The current view, or false if nothing is selected.
func (s *Selection) Current() (*model.SelectedTrainView, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.view == nil {
		return nil, false
	}
	return s.view.Clone(), true
}

// Stops all further updates. Metadata fetches completing after Close
// are discarded.
func (s *Selection) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
}

func (s *Selection) setView(view *model.SelectedTrainView) {
	s.view = view
	if s.OnChange != nil {
		s.OnChange(s.selected, view.Clone())
	}
}

// Metadata forms the base of the view; live fields take precedence.
func mergeView(meta *model.TrainMetadata, live model.TrainPosition) (*model.SelectedTrainView, error) {
	view := &model.SelectedTrainView{}
	err := copier.CopyWithOption(view, meta, copier.Option{DeepCopy: true})
	if err != nil {
		return nil, fmt.Errorf("merging metadata: %w", err)
	}
	view.ApplyPosition(live)
	view.MetadataLoaded = true
	return view, nil
}

func lastKnown(trainNumber int, view *model.SelectedTrainView) model.TrainPosition {
	return model.TrainPosition{
		TrainNumber: trainNumber,
		Latitude:    view.Latitude,
		Longitude:   view.Longitude,
		Speed:       view.Speed,
	}
}
