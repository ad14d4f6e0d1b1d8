// Package realtime keeps cached collections current by applying change feed
// events to them as they arrive.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AccelByte/extend-questboard-common/pkg/cache"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/reconcile"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

var (
	// ErrAlreadySubscribed is returned by Subscribe on a subscription that is not idle.
	ErrAlreadySubscribed = errors.New("realtime: already subscribed")

	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("realtime: subscription closed")
)

// State is the lifecycle state of a Subscription.
type State int

const (
	StateIdle State = iota
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CollectionKey is the cache key of the collection kept for table and scope.
// It matches the keys the repositories read through: "quests", "messages:{questID}"
// and "notifications:{userID}".
func CollectionKey(table store.Table, scope string) string {
	if scope == "" {
		return string(table)
	}
	return string(table) + ":" + scope
}

// Listener receives the collection stored under key after each applied event.
// The slice is a copy owned by the listener.
type Listener[T any] func(key string, collection []T)

// Loader fetches the full collection. It seeds the cache on a miss.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Options configures a Subscription. Every field is optional.
// Without a Loader, changes are only applied while the collection is cached.
type Options[T any] struct {
	Loader   Loader[T]
	Reporter reconcile.Reporter
	Logger   *slog.Logger
}

type listenerEntry[T any] struct {
	id int
	fn Listener[T]
}

// Subscription applies the changes of one table and scope to a cached collection.
//
// Lifecycle is Idle, then Subscribed after Subscribe, then Closed. Events are
// applied one at a time in arrival order. Each event is applied in full, cache
// included, or not at all. Listeners run in registration order.
type Subscription[T domain.Identifiable] struct {
	feed     store.ChangeFeed
	table    store.Table
	scope    string
	key      string
	cache    cache.Cache[[]T]
	loader   Loader[T]
	reporter reconcile.Reporter
	logger   *slog.Logger

	mu        sync.RWMutex
	state     State
	listeners []listenerEntry[T]
	nextID    int
	sub       store.FeedSubscription
	cancel    context.CancelFunc
	started   bool
	done      chan struct{}

	// process serializes event application.
	process sync.Mutex

	closeOnce sync.Once
}

// New creates an idle subscription on table narrowed by scope, storing its
// collection in c under CollectionKey(table, scope).
func New[T domain.Identifiable](feed store.ChangeFeed, table store.Table, scope string, c cache.Cache[[]T], opts Options[T]) *Subscription[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = reconcile.NewLogReporter(logger)
	}
	return &Subscription[T]{
		feed:     feed,
		table:    table,
		scope:    scope,
		key:      CollectionKey(table, scope),
		cache:    c,
		loader:   opts.Loader,
		reporter: reporter,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Key returns the cache key of the collection.
func (s *Subscription[T]) Key() string {
	return s.key
}

// State returns the current lifecycle state.
func (s *Subscription[T]) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnChange registers l and returns a function that removes it.
func (s *Subscription[T]) OnChange(l Listener[T]) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry[T]{id: id, fn: l})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.listeners {
			if e.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a copy of the cached collection.
func (s *Subscription[T]) Snapshot() ([]T, bool) {
	coll, ok := s.cache.Get(s.key)
	if !ok {
		return nil, false
	}
	return append([]T{}, coll...), true
}

// Subscribe registers with the change feed and starts applying events.
//
// The feed is joined before the collection is seeded, so no committed change
// is missed; changes already reflected in the seed are absorbed by the
// reconciler's idempotent insert and delete. The subscription ends when ctx is
// cancelled or Close is called.
func (s *Subscription[T]) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSubscribed:
		return ErrAlreadySubscribed
	case StateClosed:
		return ErrClosed
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub, err := s.feed.Subscribe(runCtx, s.table, s.scope)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to %s changes: %w", s.table, err)
	}

	if _, ok := s.cache.Get(s.key); !ok && s.loader != nil {
		coll, err := s.loader(runCtx)
		if err != nil {
			cancel()
			_ = sub.Close()
			return fmt.Errorf("failed to seed %s: %w", s.key, err)
		}
		s.cache.Set(s.key, coll)
	}

	s.sub = sub
	s.cancel = cancel
	s.started = true
	s.state = StateSubscribed

	go s.run(runCtx, sub)

	s.logger.Info("Realtime subscription started", "key", s.key)
	return nil
}

// Close unregisters from the feed. No listener is invoked once Close has
// returned, apart from one already running. Calling Close again is a no-op.
func (s *Subscription[T]) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.state = StateClosed
		sub, cancel := s.sub, s.cancel
		s.mu.Unlock()

		if !started {
			close(s.done)
			return
		}
		cancel()
		_ = sub.Close()
		s.logger.Info("Realtime subscription closed", "key", s.key)
	})
	return nil
}

// Done is closed once the subscription has stopped processing events.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription[T]) run(ctx context.Context, sub store.FeedSubscription) {
	defer close(s.done)

	for change := range sub.Changes() {
		if s.State() != StateSubscribed {
			return
		}

		ev, err := store.Decode[T](change)
		if err != nil {
			s.logger.Warn("Dropping undecodable change",
				"key", s.key,
				"record_id", change.RecordID,
				"error", err,
			)
			continue
		}
		s.apply(ctx, ev)
	}

	s.mu.Lock()
	if s.state == StateSubscribed {
		s.state = StateClosed
		s.logger.Info("Realtime subscription ended by feed", "key", s.key)
	}
	s.mu.Unlock()
}

func (s *Subscription[T]) apply(ctx context.Context, ev domain.ChangeEvent[T]) {
	s.process.Lock()
	defer s.process.Unlock()

	coll, ok := s.cache.Get(s.key)
	if !ok {
		if s.loader == nil {
			// Without a base collection the result would be partial. Leave the key
			// absent so the next read-through fill loads it whole.
			s.logger.Debug("Collection not cached, skipping change",
				"key", s.key,
				"kind", ev.Kind,
				"record_id", ev.Record.GetID(),
			)
			return
		}
		loaded, err := s.loader(ctx)
		if err != nil {
			// Leave the entry absent so the next read-through fill loads it whole.
			s.logger.Error("Failed to reload collection, skipping change",
				"key", s.key,
				"record_id", ev.Record.GetID(),
				"error", err,
			)
			return
		}
		coll = loaded
	}

	next := reconcile.ApplyAndReport(s.reporter, s.key, coll, ev)
	s.cache.Set(s.key, next)

	s.mu.RLock()
	listeners := make([]listenerEntry[T], len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		if s.State() != StateSubscribed {
			return
		}
		l.fn(s.key, append([]T{}, next...))
	}
}
