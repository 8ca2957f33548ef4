package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"blocksync/internal/blocksync"
)

const syncFlightKey = "block-sync"

// SyncFunc performs one full sync run.
type SyncFunc func(ctx context.Context) (blocksync.Result, error)

// BlockSyncScheduler re-runs a sync on a fixed interval. Triggers that arrive
// while a run is in flight share that run instead of starting another one.
type BlockSyncScheduler struct {
	sync     SyncFunc
	interval time.Duration
	logger   *log.Logger
	flight   singleflight.Group
}

type SchedulerOption func(*BlockSyncScheduler)

func WithSchedulerLogger(l *log.Logger) SchedulerOption {
	return func(s *BlockSyncScheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewBlockSyncScheduler(sync SyncFunc, interval time.Duration, opts ...SchedulerOption) (*BlockSyncScheduler, error) {
	if sync == nil {
		return nil, errors.New("runtime: sync function cannot be nil")
	}
	if interval <= 0 {
		return nil, errors.New("runtime: sync interval must be positive")
	}

	s := &BlockSyncScheduler{
		sync:     sync,
		interval: interval,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Trigger runs a sync now, or joins the one already running. shared reports
// whether the result came from a run started by another caller.
func (s *BlockSyncScheduler) Trigger(ctx context.Context, reason string) (result blocksync.Result, shared bool, err error) {
	value, err, shared := s.flight.Do(syncFlightKey, func() (interface{}, error) {
		s.logger.Debug("Block sync triggered", "reason", reason)
		return s.sync(ctx)
	})
	if res, ok := value.(blocksync.Result); ok {
		result = res
	}
	return result, shared, err
}

// Start runs a sync immediately and then on every tick until ctx is done.
// Failed runs are logged; the next run resumes from whatever the failed one
// managed to persist.
func (s *BlockSyncScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.trigger(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, "scheduled")
		}
	}
}

// RunNow triggers a sync immediately, outside of the scheduled loop. It may
// be called concurrently with Start; an overlapping call joins the running sync.
func (s *BlockSyncScheduler) RunNow(ctx context.Context, reason string) {
	s.trigger(ctx, reason)
}

func (s *BlockSyncScheduler) trigger(ctx context.Context, reason string) {
	result, shared, err := s.Trigger(ctx, reason)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Info("Block sync canceled", "reason", reason)
		} else {
			s.logger.Error("Block sync failed", "reason", reason, "error", err)
		}
		return
	}
	if shared {
		return
	}

	s.logger.Info("Block sync completed",
		"reason", reason,
		"start", result.Start,
		"pages", result.Pages,
		"inserted", result.Inserted,
	)
}
