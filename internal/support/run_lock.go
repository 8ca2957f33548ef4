package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLockTTL         = 45 * time.Second
	renewalTimeout         = 5 * time.Second
	minRenewalInterval     = time.Second
	defaultRenewalFraction = 3
)

// ErrLockHeld is returned when another process owns the run lock.
var ErrLockHeld = errors.New("support: run lock held by another process")

var (
	lockCounter atomic.Uint64

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// RunExclusive acquires the Redis lock stored under key and invokes run while
// it is held. The lock is renewed in the background; if renewal fails the
// context handed to run is cancelled. The lock is released when run returns.
// A lock already owned by someone else yields ErrLockHeld without waiting.
func RunExclusive(ctx context.Context, client *redis.Client, key string, ttl time.Duration, run func(context.Context) error) error {
	if run == nil {
		return errors.New("support: run function cannot be nil")
	}
	if client == nil {
		return errors.New("support: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	session, err := acquireLockSession(ctx, client, key, ttl)
	if err != nil {
		return err
	}
	defer session.Close()

	log.Debug("run lock: acquired", "key", key)
	err = run(session.ctx)
	log.Debug("run lock: released", "key", key)
	return err
}

type lockSession struct {
	client    *redis.Client
	key       string
	value     string
	ttl       time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	stopRenew chan struct{}
	closeOnce sync.Once
}

func acquireLockSession(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*lockSession, error) {
	value := generateLockID()

	ok, err := client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("support: acquire run lock %q: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	session := &lockSession{
		client:    client,
		key:       key,
		value:     value,
		ttl:       ttl,
		ctx:       sessionCtx,
		cancel:    cancel,
		stopRenew: make(chan struct{}),
	}
	go session.renewLoop()
	return session, nil
}

func (ls *lockSession) Close() {
	ls.closeOnce.Do(func() {
		close(ls.stopRenew)
		ls.cancel()
		if err := ls.releaseLock(); err != nil {
			log.Warn("run lock: release failed", "key", ls.key, "error", err)
		}
	})
}

func (ls *lockSession) renewLoop() {
	interval := ls.ttl / defaultRenewalFraction
	if interval < minRenewalInterval {
		interval = minRenewalInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ls.stopRenew:
			return
		case <-ls.ctx.Done():
			return
		case <-ticker.C:
			if err := ls.renewLock(); err != nil {
				log.Warn("run lock: renewal failed", "key", ls.key, "error", err)
				ls.cancel()
				return
			}
		}
	}
}

func (ls *lockSession) renewLock() error {
	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	res, err := renewScript.Run(ctx, ls.client, []string{ls.key}, ls.value, ls.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if updated, ok := res.(int64); ok && updated == 0 {
		return errors.New("lock lost")
	}
	return nil
}

func (ls *lockSession) releaseLock() error {
	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	_, err := releaseScript.Run(ctx, ls.client, []string{ls.key}, ls.value).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func generateLockID() string {
	host, _ := os.Hostname()
	counter := lockCounter.Add(1)
	return fmt.Sprintf("%s-%d-%d-%d", host, os.Getpid(), time.Now().UnixNano(), counter)
}
