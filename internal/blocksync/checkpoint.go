package blocksync

import (
	"context"
	"errors"
	"fmt"

	"blocksync/internal/domain"
)

// EpochCheckpoint is the start point for an empty store.
const EpochCheckpoint = "1970-01-01T00:00:00Z"

// ErrStore marks failures of the durable store (checkpoint query or insert).
var ErrStore = errors.New("blocksync: store failure")

type CheckpointStore interface {
	MaxTimestamp(ctx context.Context) (string, bool, error)
}

type Store interface {
	CheckpointStore
	InsertIgnore(ctx context.Context, record domain.BlockRecord) (bool, error)
}

// ResolveCheckpoint returns the lower bound for the next fetch. The bound is
// inclusive, so the record at exactly that timestamp may be delivered again.
func ResolveCheckpoint(ctx context.Context, store CheckpointStore) (string, error) {
	ts, ok, err := store.MaxTimestamp(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: resolve checkpoint: %w", ErrStore, err)
	}
	if !ok {
		return EpochCheckpoint, nil
	}
	return ts, nil
}
