package blocksync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"blocksync/internal/feed"
	"blocksync/internal/metrics"
)

// Result summarises one run.
type Result struct {
	Start            string
	Pages            int
	Seen             int
	Accepted         int
	Inserted         int
	DroppedNoRange   int
	DroppedZeroStart int
}

// Driver runs the fetch/filter/persist loop against one feed and one store.
type Driver struct {
	fetcher feed.Fetcher
	store   Store
	logger  *log.Logger
}

type Option func(*Driver)

func WithLogger(l *log.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

func NewDriver(fetcher feed.Fetcher, store Store, opts ...Option) (*Driver, error) {
	if fetcher == nil {
		return nil, errors.New("blocksync: fetcher cannot be nil")
	}
	if store == nil {
		return nil, errors.New("blocksync: store cannot be nil")
	}

	d := &Driver{
		fetcher: fetcher,
		store:   store,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run syncs from the stored checkpoint to the head of the feed. The cursor is
// fixed for the whole run; only the continuation token changes between pages.
// Any fetch, decode or store failure aborts the run; records persisted before
// the failure stay, and the next run resumes from them.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	start, err := ResolveCheckpoint(ctx, d.store)
	if err != nil {
		return Result{}, err
	}

	result := Result{Start: start}
	d.logger.Info("Starting at timestamp", "start", start)
	if ts, err := time.Parse(time.RFC3339, start); err == nil {
		metrics.CheckpointTimestamp.Set(float64(ts.Unix()))
	}

	req := feed.Request{Start: start}
	for {
		page, err := d.fetcher.FetchPage(ctx, req)
		if err != nil {
			return result, fmt.Errorf("fetch page %d: %w", result.Pages+1, err)
		}
		result.Pages++
		metrics.PagesFetched.Inc()

		accepted, inserted, err := d.persistPage(ctx, page, &result)
		if err != nil {
			return result, err
		}

		d.logger.Info("Got block entries",
			"accepted", accepted,
			"inserted", inserted,
			"continuation", continuationLabel(req.Continue),
		)

		if page.Continue == nil {
			d.logger.Info("Done.",
				"pages", result.Pages,
				"accepted", result.Accepted,
				"inserted", result.Inserted,
			)
			return result, nil
		}

		req = feed.Request{Start: start, Continue: page.Continue}
	}
}

func (d *Driver) persistPage(ctx context.Context, page *feed.Page, result *Result) (accepted, inserted int, err error) {
	for _, block := range page.Blocks {
		result.Seen++

		record, reason, ok := ToRecord(block)
		if !ok {
			switch reason {
			case metrics.DropReasonNoRange:
				result.DroppedNoRange++
			case metrics.DropReasonZeroStart:
				result.DroppedZeroStart++
			}
			metrics.RecordsDropped.WithLabelValues(reason).Inc()
			continue
		}

		written, err := d.store.InsertIgnore(ctx, record)
		if err != nil {
			return accepted, inserted, fmt.Errorf("%w: insert block %d: %w", ErrStore, record.ID, err)
		}

		accepted++
		result.Accepted++
		metrics.RecordsAccepted.Inc()
		if written {
			inserted++
			result.Inserted++
			metrics.RecordsInserted.Inc()
		}
	}
	return accepted, inserted, nil
}

func continuationLabel(token *string) string {
	if token == nil {
		return "none"
	}
	return *token
}
