package trainlocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"tidbyt.dev/trainlocation/model"
	"tidbyt.dev/trainlocation/storage"
)

// Caches train metadata for the lifetime of the process. Entries are
// added on first successful fetch and never evicted. A train the feed
// doesn't know about is not cached, so it will be fetched again on
// the next request.
type MetadataCache struct {
	Logger zerolog.Logger

	// Collapse concurrent fetches of the same train into one
	// request.
	Dedupe bool

	OnCached func(trainNumber int)
	OnFailed func(trainNumber int, err error)

	source MetadataSource
	store  storage.MetadataStore
	group  singleflight.Group
}

func NewMetadataCache(source MetadataSource, store storage.MetadataStore) *MetadataCache {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &MetadataCache{
		Logger: log.Logger,
		Dedupe: true,
		source: source,
		store:  store,
	}
}

// Returns cached metadata for a train, if present. Never fetches.
func (c *MetadataCache) Lookup(trainNumber int) (*model.TrainMetadata, bool) {
	meta, err := c.store.GetMetadata(context.Background(), trainNumber)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.Logger.Warn().Err(err).Int("train", trainNumber).Msg("reading metadata store")
		}
		return nil, false
	}
	return meta, true
}

// Returns metadata for a train, fetching it on a cache miss. A valid
// result is stored before it's returned. Returns nil, nil if the feed
// has no record of the train.
//
// With Dedupe set, concurrent callers share a single fetch. A caller
// whose ctx is done stops waiting; the shared fetch carries on for the
// others, bounded by the source's own timeout.
func (c *MetadataCache) GetOrFetch(ctx context.Context, trainNumber int) (*model.TrainMetadata, error) {
	if meta, found := c.Lookup(trainNumber); found {
		return meta, nil
	}

	if !c.Dedupe {
		return c.fetch(ctx, trainNumber)
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.Itoa(trainNumber), func() (interface{}, error) {
		// Someone else may have completed a fetch since the
		// lookup above.
		if meta, found := c.Lookup(trainNumber); found {
			return meta, nil
		}
		return c.fetch(detached, trainNumber)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		meta, _ := res.Val.(*model.TrainMetadata)
		return meta.Clone(), nil
	}
}

func (c *MetadataCache) fetch(ctx context.Context, trainNumber int) (*model.TrainMetadata, error) {
	meta, err := c.source.FetchMetadata(ctx, trainNumber)
	if err != nil {
		err = fmt.Errorf("fetching metadata: %w", err)
		c.Logger.Warn().Err(err).Int("train", trainNumber).Msg("metadata unavailable")
		if c.OnFailed != nil {
			c.OnFailed(trainNumber, err)
		}
		return nil, err
	}

	if meta == nil {
		c.Logger.Debug().Int("train", trainNumber).Msg("no metadata for train")
		if c.OnFailed != nil {
			c.OnFailed(trainNumber, nil)
		}
		return nil, nil
	}

	// Entries are keyed by the requested number.
	if meta.TrainNumber != trainNumber {
		if meta.TrainNumber != 0 {
			c.Logger.Warn().Int("train", trainNumber).Int("got", meta.TrainNumber).Msg("metadata for another train")
		}
		meta.TrainNumber = trainNumber
	}

	err = c.store.WriteMetadata(ctx, meta)
	if err != nil {
		// The caller still gets the result; the next request
		// will fetch again.
		c.Logger.Warn().Err(err).Int("train", trainNumber).Msg("writing metadata store")
		return meta, nil
	}

	if c.OnCached != nil {
		c.OnCached(trainNumber)
	}

	return meta, nil
}
