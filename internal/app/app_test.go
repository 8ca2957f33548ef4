package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"blocksync/internal/config"
	"blocksync/internal/database"
	"blocksync/internal/feed"
)

const twoPageFeed = `{"continue":{"bkcontinue":"20200102000000|2","continue":"-||"},"query":{"blocks":[
	{"id":1,"timestamp":"2020-01-01T00:00:00Z","expiry":"infinity","rangestart":"0.0.0.1","rangeend":"0.0.0.5"},
	{"id":2,"timestamp":"2020-01-01T00:00:00Z","expiry":"infinity"}
]}}`

const lastPageFeed = `{"batchcomplete":"","query":{"blocks":[
	{"id":3,"timestamp":"2020-01-02T00:00:00Z","expiry":"2021-01-02T00:00:00Z","rangestart":"192.0.2.0","rangeend":"192.0.2.255"}
]}}`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"BLOCKSYNC_DB", "BLOCKSYNC_ENDPOINT", "BLOCKSYNC_INTERVAL", "REDIS_URL", "METRICS_LISTEN", "BLOCKSYNC_RPS"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestRunSyncsToHeadAndExits(t *testing.T) {
	clearEnv(t)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("bkcontinue") == "" {
			fmt.Fprint(w, twoPageFeed)
			return
		}
		fmt.Fprint(w, lastPageFeed)
	}))
	defer srv.Close()

	dbPath := filepath.Join(t.TempDir(), "blocks.db")
	if err := Run(context.Background(), []string{"--db", dbPath, "--endpoint", srv.URL}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("feed received %d requests, want 2", got)
	}

	db, err := database.SetupDB(dbPath)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer closeDB(db)

	store, err := database.NewBlockStore(db)
	if err != nil {
		t.Fatalf("NewBlockStore: %v", err)
	}
	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("Count = %d, want 2", count)
	}

	latest, ok, err := store.MaxTimestamp(context.Background())
	if err != nil || !ok || latest != "2020-01-02T00:00:00Z" {
		t.Fatalf("MaxTimestamp = (%q, %v, %v), want 2020-01-02T00:00:00Z", latest, ok, err)
	}
}

func TestRunRequiresDatabase(t *testing.T) {
	clearEnv(t)

	err := Run(context.Background(), nil)
	if !errors.Is(err, config.ErrMissingDatabase) {
		t.Fatalf("Run error = %v, want ErrMissingDatabase", err)
	}
}

func TestRunReportsFeedFailure(t *testing.T) {
	clearEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dbPath := filepath.Join(t.TempDir(), "blocks.db")
	err := Run(context.Background(), []string{"--db", dbPath, "--endpoint", srv.URL})
	if !errors.Is(err, feed.ErrTransport) {
		t.Fatalf("Run error = %v, want ErrTransport", err)
	}
}
