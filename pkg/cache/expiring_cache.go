package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AccelByte/extend-questboard-common/pkg/common"
)

// DefaultTTL is the entry lifetime used when none is configured.
const DefaultTTL = 5 * time.Minute

type entry[T any] struct {
	data      T
	timestamp time.Time
}

// ExpiringCache is an in-memory Cache whose entries expire TTL after they were set.
// Reads never block each other and a write is visible to every read that follows it.
// Expired entries are dropped lazily on Get, or eagerly by the optional sweeper.
type ExpiringCache[T any] struct {
	entries map[string]entry[T]
	ttl     time.Duration
	clock   common.Clock
	mu      sync.RWMutex
	logger  *slog.Logger

	sweepMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewExpiringCache creates an empty cache.
//
// Parameters:
//   - ttl: Entry lifetime; non-positive values fall back to DefaultTTL
//   - clock: Time source, nil means the system clock
//   - logger: Structured logger for operational logging
func NewExpiringCache[T any](ttl time.Duration, clock common.Clock, logger *slog.Logger) *ExpiringCache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = common.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiringCache[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
		clock:   clock,
		logger:  logger,
	}
}

// TTL returns the configured entry lifetime.
func (c *ExpiringCache[T]) TTL() time.Duration {
	return c.ttl
}

// Get returns the value for key when now - storedAt <= TTL.
// An expired entry is removed and reported as absent.
func (c *ExpiringCache[T]) Get(key string) (T, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero T
		return zero, false
	}
	if c.expired(e, now) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have replaced the entry.
		if cur, still := c.entries[key]; still && c.expired(cur, now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()

		var zero T
		return zero, false
	}
	return e.data, true
}

// Set stores value under key with the current time.
func (c *ExpiringCache[T]) Set(key string, value T) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[T]{data: value, timestamp: now}
}

// Invalidate removes key.
func (c *ExpiringCache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// InvalidatePrefix removes every key that starts with prefix.
func (c *ExpiringCache[T]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included until they are purged.
func (c *ExpiringCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Purge removes every expired entry and returns how many were removed.
func (c *ExpiringCache[T]) Purge() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// StartSweeper launches a goroutine that purges expired entries every interval
// until ctx is cancelled or Stop is called. Calling it while a sweeper runs is a no-op.
func (c *ExpiringCache[T]) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	done := c.done

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Purge(); n > 0 {
					c.logger.Debug("Cache sweep purged expired entries", "purged", n)
				}
			}
		}
	}()
}

// Stop cancels the sweeper and waits for it to exit. Safe to call when no sweeper runs.
func (c *ExpiringCache[T]) Stop() {
	c.sweepMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.sweepMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *ExpiringCache[T]) expired(e entry[T], now time.Time) bool {
	return now.Sub(e.timestamp) > c.ttl
}
