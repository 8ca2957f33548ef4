package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"blocksync/internal/app/server"
	"blocksync/internal/app/version"
	"blocksync/internal/blocksync"
	"blocksync/internal/config"
	"blocksync/internal/database"
	"blocksync/internal/feed"
	"blocksync/internal/jobs/runtime"
	"blocksync/internal/metrics"
	"blocksync/internal/support"
)

// Run wires the store, feed client and driver from args and the
// environment, then syncs once or on the configured interval.
func Run(ctx context.Context, args []string) error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	log.SetLevel(cfg.Level())
	log.SetReportTimestamp(true)
	build := version.Get()
	log.Info("Starting blocksync", "release", build.Release, "revision", build.Revision, "endpoint", cfg.Endpoint)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.SetupDB(cfg.Database,
		database.WithLogger(database.QueryLogger(cfg.Level() == log.DebugLevel)),
	)
	if err != nil {
		return fmt.Errorf("%w: open store: %w", blocksync.ErrStore, err)
	}
	defer closeDB(db)

	store, err := database.NewBlockStore(db)
	if err != nil {
		return err
	}

	client, err := feed.NewClient(cfg.Endpoint,
		feed.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		feed.WithUserAgent(cfg.UserAgent),
		feed.WithRateLimit(cfg.RequestsPerSecond),
	)
	if err != nil {
		return err
	}

	driver, err := blocksync.NewDriver(client, store)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = support.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to get redis client: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()
	}

	syncOnce := newSyncFunc(driver, store, redisClient, cfg)

	if cfg.Interval <= 0 {
		startStatusServer(ctx, cfg.MetricsListen, nil)
		_, err := syncOnce(ctx)
		return err
	}

	scheduler, err := runtime.NewBlockSyncScheduler(syncOnce, cfg.Interval)
	if err != nil {
		return err
	}

	startStatusServer(ctx, cfg.MetricsListen, func(reason string) (blocksync.Result, bool, error) {
		return scheduler.Trigger(ctx, reason)
	})
	go runOnHangup(ctx, scheduler)

	log.Info("Running on schedule", "interval", cfg.Interval)
	scheduler.Start(ctx)
	log.Info("Scheduler stopped")
	return nil
}

func startStatusServer(ctx context.Context, addr string, trigger server.SyncTrigger) {
	if addr == "" {
		return
	}
	go func() {
		if err := server.ServeStatus(ctx, addr, trigger); err != nil {
			log.Error("status server terminated", "error", err)
		}
	}()
}

// newSyncFunc returns one full run: optionally under the Redis lock, with the
// outcome recorded in metrics and the store size logged on success.
func newSyncFunc(driver *blocksync.Driver, store *database.BlockStore, redisClient *redis.Client, cfg config.Config) runtime.SyncFunc {
	return func(ctx context.Context) (blocksync.Result, error) {
		var result blocksync.Result
		run := func(ctx context.Context) error {
			var err error
			result, err = driver.Run(ctx)
			return err
		}

		var err error
		if redisClient != nil {
			err = support.RunExclusive(ctx, redisClient, cfg.LockKey, cfg.LockTTL, run)
		} else {
			err = run(ctx)
		}
		metrics.ObserveRun(err)
		if err != nil {
			return result, err
		}

		if total, err := store.Count(ctx); err != nil {
			log.Warn("Failed to count stored records", "error", err)
		} else {
			log.Info("Store summary", "records", total)
		}
		return result, nil
	}
}

// runOnHangup starts an immediate sync for every SIGHUP until ctx is done.
// Each signal is handled in its own goroutine so it can join a running sync.
func runOnHangup(ctx context.Context, scheduler *runtime.BlockSyncScheduler) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			go scheduler.RunNow(ctx, "signal")
		}
	}
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("error closing database", "error", err)
	}
}
