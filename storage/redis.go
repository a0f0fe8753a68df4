package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tidbyt.dev/trainlocation/model"
)

// Keeps metadata in Redis. Keys carry a per-instance session ID, so a
// restarted process never sees what a previous one wrote.
type RedisStore struct {
	client  *redis.Client
	cache   *cache.Cache[string]
	prefix  string
	ownsCli bool
}

// Connects to the Redis server at the given URL, e.g.
// redis://localhost:6379/0.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	err = client.Ping(context.Background()).Err()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	s := NewRedisStore(client)
	s.ownsCli = true
	return s, nil
}

// Creates a store on top of an existing client. The client is not
// closed by Close().
func NewRedisStore(client *redis.Client) *RedisStore {
	redisStore := redisstore.NewRedis(client)

	return &RedisStore{
		client: client,
		cache:  cache.New[string](redisStore),
		prefix: fmt.Sprintf("trainlocation:%s:metadata", uuid.New().String()),
	}
}

func (s *RedisStore) key(trainNumber int) string {
	return fmt.Sprintf("%s:%d", s.prefix, trainNumber)
}

func (s *RedisStore) GetMetadata(ctx context.Context, trainNumber int) (*model.TrainMetadata, error) {
	body, err := s.cache.Get(ctx, s.key(trainNumber))
	if errors.Is(err, store.NotFound{}) || errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting metadata: %w", err)
	}

	return decodeMetadata([]byte(body))
}

func (s *RedisStore) WriteMetadata(ctx context.Context, meta *model.TrainMetadata) error {
	body, err := encodeMetadata(meta)
	if err != nil {
		return err
	}

	err = s.cache.Set(ctx, s.key(meta.TrainNumber), string(body))
	if err != nil {
		return fmt.Errorf("setting metadata: %w", err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	if !s.ownsCli {
		return nil
	}
	return s.client.Close()
}
