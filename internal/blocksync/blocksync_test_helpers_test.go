package blocksync

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"blocksync/internal/database"
	"blocksync/internal/domain"
	"blocksync/internal/feed"
)

// scriptedFetcher replays pages in order and records every request.
type scriptedFetcher struct {
	pages    []*feed.Page
	errs     map[int]error
	requests []feed.Request
}

func (f *scriptedFetcher) FetchPage(_ context.Context, req feed.Request) (*feed.Page, error) {
	call := len(f.requests)
	f.requests = append(f.requests, req)

	if err, ok := f.errs[call]; ok {
		return nil, err
	}
	if call >= len(f.pages) {
		return nil, fmt.Errorf("unexpected fetch #%d", call+1)
	}
	return f.pages[call], nil
}

type failingStore struct {
	maxErr    error
	insertErr error
}

func (s failingStore) MaxTimestamp(context.Context) (string, bool, error) {
	return "", false, s.maxErr
}

func (s failingStore) InsertIgnore(context.Context, domain.BlockRecord) (bool, error) {
	return false, s.insertErr
}

func newTestStore(t *testing.T) *database.BlockStore {
	t.Helper()

	db, err := database.SetupDB(filepath.Join(t.TempDir(), "blocks.db"))
	if err != nil {
		t.Fatalf("setup test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store, err := database.NewBlockStore(db)
	if err != nil {
		t.Fatalf("NewBlockStore: %v", err)
	}
	return store
}

func newTestDriver(t *testing.T, fetcher feed.Fetcher, store Store) *Driver {
	t.Helper()

	driver, err := NewDriver(fetcher, store, WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return driver
}

func addr(raw string) *netip.Addr {
	a := netip.MustParseAddr(raw)
	return &a
}

func token(s string) *string {
	return &s
}

func rangeBlock(id uint64, ts, start, end string) feed.Block {
	return feed.Block{
		ID:         id,
		Timestamp:  ts,
		Expiry:     "infinity",
		RangeStart: addr(start),
		RangeEnd:   addr(end),
	}
}
