package storage

import (
	"context"
	"sync"

	"tidbyt.dev/trainlocation/model"
)

// In memory implementation of MetadataStore. Entries are copied on
// the way in and out, like the other backends.

type MemoryStore struct {
	mutex    sync.RWMutex
	Metadata map[int]*model.TrainMetadata
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Metadata: map[int]*model.TrainMetadata{},
	}
}

func (s *MemoryStore) GetMetadata(ctx context.Context, trainNumber int) (*model.TrainMetadata, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	meta, found := s.Metadata[trainNumber]
	if !found {
		return nil, ErrNotFound
	}
	return meta.Clone(), nil
}

func (s *MemoryStore) WriteMetadata(ctx context.Context, meta *model.TrainMetadata) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Metadata[meta.TrainNumber] = meta.Clone()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
