package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blocksync/internal/app/version"
	"blocksync/internal/blocksync"
	"blocksync/internal/support"
)

const shutdownTimeout = 5 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func getVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// SyncTrigger starts a sync or joins the one in flight. shared reports
// whether the result belongs to a run started by another caller.
type SyncTrigger func(reason string) (result blocksync.Result, shared bool, err error)

type syncResponse struct {
	Shared           bool   `json:"shared"`
	Start            string `json:"start"`
	Pages            int    `json:"pages"`
	Seen             int    `json:"seen"`
	Accepted         int    `json:"accepted"`
	Inserted         int    `json:"inserted"`
	DroppedNoRange   int    `json:"droppedNoRange"`
	DroppedZeroStart int    `json:"droppedZeroStart"`
}

func postSync(trigger SyncTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		result, shared, err := trigger("http")
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, support.ErrLockHeld) {
				status = http.StatusConflict
			}
			log.Warn("manual sync failed", "error", err)
			writeError(w, err.Error(), status)
			return
		}

		writeJSON(w, http.StatusOK, syncResponse{
			Shared:           shared,
			Start:            result.Start,
			Pages:            result.Pages,
			Seen:             result.Seen,
			Accepted:         result.Accepted,
			Inserted:         result.Inserted,
			DroppedNoRange:   result.DroppedNoRange,
			DroppedZeroStart: result.DroppedZeroStart,
		})
	}
}

// NewStatusRouter exposes Prometheus metrics alongside build and health info.
// With a non-nil trigger it also accepts POST /sync to run a sync on demand.
func NewStatusRouter(trigger SyncTrigger) http.Handler {
	router := http.NewServeMux()
	router.Handle("GET /metrics", promhttp.Handler())
	router.HandleFunc("GET /version", getVersion)
	router.HandleFunc("GET /healthz", getHealth)
	if trigger != nil {
		router.HandleFunc("POST /sync", postSync(trigger))
	}
	return router
}

// ServeStatus listens on addr until ctx is done, then shuts the server down.
func ServeStatus(ctx context.Context, addr string, trigger SyncTrigger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewStatusRouter(trigger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("status server shutdown failed", "error", err)
		}
	}()

	log.Info("Starting status server", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server failed: %w", err)
	}
	return nil
}
