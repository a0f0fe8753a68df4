package trainlocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"tidbyt.dev/trainlocation/model"
	"tidbyt.dev/trainlocation/storage"
)

const (
	DefaultPrefetchConcurrency = 4
	DefaultEventBuffer         = 64
)

var (
	ErrNotStarted = errors.New("manager not started")
	ErrStopped    = errors.New("manager stopped")

	// Returned by PollOnce while the background poller is running.
	ErrPolling = errors.New("manager is polling")
)

// Manager wires together the fleet, the poller, the metadata cache
// and the selection, and is what presentation layers talk to.
//
// Tunables must be set before Start.
type Manager struct {
	PollInterval        time.Duration
	PrefetchConcurrency int
	Logger              zerolog.Logger

	fleet     *Fleet
	poller    *Poller
	cache     *MetadataCache
	selection *Selection
	events    *eventBus

	mutex     sync.Mutex
	started   bool
	stopped   bool
	ready     chan struct{}
	readyOnce sync.Once
}

// Creates a new Manager on top of the given sources. If store is nil,
// metadata is cached in memory.
func NewManager(positions PositionSource, metadata MetadataSource, store storage.MetadataStore) *Manager {
	m := &Manager{
		PollInterval:        DefaultPollInterval,
		PrefetchConcurrency: DefaultPrefetchConcurrency,
		Logger:              log.Logger,

		fleet:  NewFleet(),
		events: newEventBus(DefaultEventBuffer),
		ready:  make(chan struct{}),
	}

	m.cache = NewMetadataCache(metadata, store)
	m.cache.OnCached = func(trainNumber int) {
		m.events.publish(Event{Kind: MetadataCached, TrainNumber: trainNumber})
	}
	m.cache.OnFailed = func(trainNumber int, err error) {
		m.events.publish(Event{Kind: MetadataFailed, TrainNumber: trainNumber, Err: err})
	}

	m.selection = NewSelection(m.fleet, m.cache)
	m.selection.OnChange = func(trainNumber int, view *model.SelectedTrainView) {
		m.events.publish(Event{Kind: SelectionChanged, TrainNumber: trainNumber})
	}

	m.poller = NewPoller(positions, m.fleet)
	m.poller.OnUpdate = func(snapshot model.Snapshot) {
		m.readyOnce.Do(func() { close(m.ready) })
		m.selection.FleetUpdated(snapshot)
		m.events.publish(Event{Kind: FleetUpdated, SnapshotID: snapshot.ID})
	}
	m.poller.OnError = func(err error) {
		m.events.publish(Event{Kind: PollFailed, Err: err})
	}

	return m
}

func (m *Manager) configure() {
	m.poller.Interval = m.PollInterval
	m.poller.Logger = m.Logger.With().Str("component", "poller").Logger()
	m.cache.Logger = m.Logger.With().Str("component", "metadata").Logger()
	m.selection.Logger = m.Logger.With().Str("component", "selection").Logger()
}

// Starts polling. The first poll is issued right away. A stopped
// Manager can't be restarted.
func (m *Manager) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.stopped {
		return ErrStopped
	}

	m.configure()

	err := m.poller.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting poller: %w", err)
	}
	m.started = true

	m.Logger.Info().Dur("interval", m.PollInterval).Msg("tracking trains")
	return nil
}

// Stops polling and closes the selection and all subscriptions. No
// state changes after Stop returns.
func (m *Manager) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.poller.Stop()
	m.selection.Close()
	m.events.close()
	m.started = false
	m.stopped = true
}

// Polls the positions feed once, without starting the background
// poller. Fails with ErrPolling once Start has been called, and with
// ErrStopped after Stop.
func (m *Manager) PollOnce(ctx context.Context) (model.Snapshot, error) {
	m.mutex.Lock()
	if m.stopped {
		m.mutex.Unlock()
		return model.Snapshot{}, ErrStopped
	}
	if m.started {
		m.mutex.Unlock()
		return model.Snapshot{}, ErrPolling
	}
	m.configure()
	m.mutex.Unlock()

	return m.poller.PollOnce(ctx)
}

// Reports whether at least one poll has succeeded.
func (m *Manager) Ready() bool {
	select {
	case <-m.ready:
		return true
	default:
		return false
	}
}

// Blocks until the first successful poll, or ctx is done. Returns
// ErrNotStarted if the manager isn't polling and has no data.
func (m *Manager) WaitReady(ctx context.Context) error {
	if m.Ready() {
		return nil
	}

	m.mutex.Lock()
	started := m.started
	m.mutex.Unlock()
	if !started {
		return ErrNotStarted
	}

	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) Snapshot() model.Snapshot {
	return m.fleet.Snapshot()
}

// All trains in the current snapshot, sorted by number.
func (m *Manager) Trains() []model.TrainPosition {
	return m.fleet.Trains()
}

// Trains with a usable location, sorted by number.
func (m *Manager) PlaceableTrains() []model.TrainPosition {
	return m.fleet.Placeable()
}

func (m *Manager) Train(trainNumber int) (model.TrainPosition, bool) {
	return m.fleet.Get(trainNumber)
}

// Up to limit placeable trains nearest to a point.
func (m *Manager) NearbyTrains(lat, lon float64, limit int) []model.TrainPosition {
	return m.fleet.Nearby(lat, lon, limit)
}

// Selects a train. See Selection.Select.
func (m *Manager) Select(ctx context.Context, trainNumber int) (*model.SelectedTrainView, error) {
	return m.selection.Select(ctx, trainNumber)
}

// The view of the selected train, if any.
func (m *Manager) Selected() (*model.SelectedTrainView, bool) {
	return m.selection.Current()
}

func (m *Manager) Deselect() {
	m.selection.Deselect()
}

// Cached metadata for a train. Never fetches.
func (m *Manager) CachedMetadata(trainNumber int) (*model.TrainMetadata, bool) {
	return m.cache.Lookup(trainNumber)
}

// Returns metadata for a train, fetching it if not cached. Returns
// nil, nil if the feed doesn't know the train.
func (m *Manager) RequestMetadata(ctx context.Context, trainNumber int) (*model.TrainMetadata, error) {
	return m.cache.GetOrFetch(ctx, trainNumber)
}

// Popup summary for a train in the fleet. Category and type come
// from cache only and are placeholders until fetched.
func (m *Manager) Summary(trainNumber int) (model.TrainSummary, error) {
	pos, found := m.fleet.Get(trainNumber)
	if !found {
		return model.TrainSummary{}, ErrTrainNotFound
	}
	meta, _ := m.cache.Lookup(trainNumber)
	return model.NewTrainSummary(pos, meta), nil
}

// Fetches metadata for several trains, at most PrefetchConcurrency at
// a time. Trains without metadata are left out of the result.
func (m *Manager) PrefetchMetadata(ctx context.Context, trainNumbers []int) map[int]*model.TrainMetadata {
	concurrency := m.PrefetchConcurrency
	if concurrency <= 0 {
		concurrency = DefaultPrefetchConcurrency
	}

	p := pool.NewWithResults[*model.TrainMetadata]().WithMaxGoroutines(concurrency)
	for _, n := range trainNumbers {
		n := n
		p.Go(func() *model.TrainMetadata {
			meta, err := m.cache.GetOrFetch(ctx, n)
			if err != nil {
				return nil
			}
			return meta
		})
	}

	result := map[int]*model.TrainMetadata{}
	for _, meta := range p.Wait() {
		if meta != nil {
			result[meta.TrainNumber] = meta
		}
	}
	return result
}

// Subscribes to events. Call the returned function to unsubscribe.
// Events are dropped for subscribers that don't keep up.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.events.subscribe()
}
