package trainlocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"tidbyt.dev/trainlocation/model"
)

const DefaultPollInterval = 10 * time.Second

var (
	errPollerRunning = errors.New("poller already running")
	errPollerStopped = errors.New("poller stopped")
)

// Periodically fetches positions and replaces the fleet. Polls never
// overlap, whether issued by the background loop or by PollOnce; ticks
// that fire while a poll is in flight are dropped.
type Poller struct {
	Interval time.Duration
	Logger   zerolog.Logger

	// Called after every successful replace, on the polling
	// goroutine.
	OnUpdate func(model.Snapshot)

	// Called after every failed poll.
	OnError func(error)

	source PositionSource
	fleet  *Fleet
	now    func() time.Time

	mutex  sync.Mutex
	cancel context.CancelFunc
	wg     *conc.WaitGroup

	// Held for the duration of every poll.
	pollMutex sync.Mutex

	// Cancelled by Stop. A stopped poller never touches the fleet
	// again.
	stopCtx context.Context
	stop    context.CancelFunc
}

func NewPoller(source PositionSource, fleet *Fleet) *Poller {
	stopCtx, stop := context.WithCancel(context.Background())
	return &Poller{
		Interval: DefaultPollInterval,
		Logger:   log.Logger,
		source:   source,
		fleet:    fleet,
		now:      time.Now,
		stopCtx:  stopCtx,
		stop:     stop,
	}
}

// Starts polling in the background. The first poll is issued
// immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stopCtx.Err() != nil {
		return errPollerStopped
	}
	if p.cancel != nil {
		return errPollerRunning
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg = &conc.WaitGroup{}
	p.wg.Go(func() {
		p.loop(ctx, interval)
	})

	return nil
}

// Stops polling and waits for any poll in flight to finish. Once Stop
// returns, the fleet will not be touched by this poller again, and it
// can't be restarted.
func (p *Poller) Stop() {
	p.mutex.Lock()
	p.stop()
	cancel, wg := p.cancel, p.wg
	p.cancel, p.wg = nil, nil
	p.mutex.Unlock()

	if cancel != nil {
		cancel()
		wg.Wait()
	}

	// Wait out a PollOnce issued from elsewhere
	p.pollMutex.Lock()
	p.pollMutex.Unlock()
}

func (p *Poller) Running() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.cancel != nil
}

func (p *Poller) loop(ctx context.Context, interval time.Duration) {
	p.Logger.Debug().Dur("interval", interval).Msg("poller started")
	defer p.Logger.Debug().Msg("poller stopped")

	p.poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	_, err := p.PollOnce(ctx)
	if err != nil && ctx.Err() == nil {
		p.Logger.Warn().Err(err).Msg("polling positions")
	}
}

// Fetches positions once and, on success, replaces the fleet. On
// failure the fleet is left as is. A result arriving after ctx is
// cancelled, or after Stop, is discarded. Waits for any poll already
// in flight before fetching.
func (p *Poller) PollOnce(ctx context.Context) (model.Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unregister := context.AfterFunc(p.stopCtx, cancel)
	defer unregister()

	p.pollMutex.Lock()
	defer p.pollMutex.Unlock()

	if p.stopCtx.Err() != nil {
		return model.Snapshot{}, errPollerStopped
	}

	positions, err := p.source.FetchPositions(ctx)
	if p.stopCtx.Err() != nil {
		return model.Snapshot{}, errPollerStopped
	}
	if ctx.Err() != nil {
		return model.Snapshot{}, ctx.Err()
	}
	if err != nil {
		err = fmt.Errorf("fetching positions: %w", err)
		if p.OnError != nil {
			p.OnError(err)
		}
		return model.Snapshot{}, err
	}

	snapshot := p.fleet.Replace(positions, p.now().UTC())

	p.Logger.Debug().
		Int("trains", len(snapshot.Trains)).
		Str("snapshot", snapshot.ID.String()).
		Msg("fleet replaced")

	if p.OnUpdate != nil {
		p.OnUpdate(snapshot)
	}

	return snapshot, nil
}
