package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tidbyt.dev/trainlocation/model"
)

var ErrNotFound = errors.New("metadata not found")

// Holds train metadata for the lifetime of a session. Entries are
// only ever added; nothing is evicted.
//
// None of the implementations keep data across restarts: sqlite runs
// in memory by default, postgres tables are recreated on open, and
// redis keys are namespaced per store instance.
type MetadataStore interface {
	// Retrieves metadata for a train. Returns ErrNotFound if
	// nothing has been written for it.
	GetMetadata(ctx context.Context, trainNumber int) (*model.TrainMetadata, error)

	// Writes metadata, keyed by its train number. An existing
	// record for the same train is replaced.
	WriteMetadata(ctx context.Context, meta *model.TrainMetadata) error

	Close() error
}

func encodeMetadata(meta *model.TrainMetadata) ([]byte, error) {
	buf, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return buf, nil
}

func decodeMetadata(buf []byte) (*model.TrainMetadata, error) {
	meta := &model.TrainMetadata{}
	err := json.Unmarshal(buf, meta)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return meta, nil
}
