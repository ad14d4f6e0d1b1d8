package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrFeedClosed is returned when subscribing to a closed feed.
var ErrFeedClosed = errors.New("store: change feed closed")

const subscriberBuffer = 64

// Broker is an in-process ChangeFeed. Publish never blocks: changes are queued and
// delivered by a single dispatcher goroutine, so every subscriber sees them in publish order.
type Broker struct {
	mu   sync.RWMutex
	subs map[*brokerSub]struct{}

	queueMu sync.Mutex
	queue   []Change
	signal  chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
	logger    *slog.Logger
}

// NewBroker creates a Broker and starts its dispatcher. Call Close to stop it.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		subs:   make(map[*brokerSub]struct{}),
		signal: make(chan struct{}, 1),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go b.dispatch()
	return b
}

// Publish queues c for delivery. Changes published after Close are dropped.
func (b *Broker) Publish(c Change) {
	select {
	case <-b.closed:
		return
	default:
	}

	b.queueMu.Lock()
	b.queue = append(b.queue, c)
	b.queueMu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Subscribe registers interest in table changes narrowed by scope.
// The subscription is closed when ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, table Table, scope string) (FeedSubscription, error) {
	sub := &brokerSub{
		broker: b,
		table:  table,
		scope:  scope,
		ch:     make(chan Change, subscriberBuffer),
		closed: make(chan struct{}),
	}

	b.mu.Lock()
	select {
	case <-b.closed:
		b.mu.Unlock()
		return nil, ErrFeedClosed
	default:
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	b.logger.Debug("Change feed subscription opened", "table", string(table), "scope", scope)

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.closed:
		}
	}()

	return sub, nil
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops the dispatcher and closes every subscription. Safe to call twice.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
		<-b.done

		b.mu.RLock()
		subs := make([]*brokerSub, 0, len(b.subs))
		for s := range b.subs {
			subs = append(subs, s)
		}
		b.mu.RUnlock()

		for _, s := range subs {
			_ = s.Close()
		}

		b.logger.Debug("Change feed closed", "subscriptions", len(subs))
	})
	return nil
}

func (b *Broker) dispatch() {
	defer close(b.done)

	for {
		select {
		case <-b.closed:
			return
		case <-b.signal:
		}

		b.queueMu.Lock()
		batch := b.queue
		b.queue = nil
		b.queueMu.Unlock()

		for _, c := range batch {
			b.deliver(c)
		}
	}
}

func (b *Broker) deliver(c Change) {
	b.mu.RLock()
	targets := make([]*brokerSub, 0, len(b.subs))
	for s := range b.subs {
		if c.Matches(s.table, s.scope) {
			s.inflight.Add(1)
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- c:
		case <-s.closed:
		case <-b.closed:
		}
		s.inflight.Done()
	}
}

type brokerSub struct {
	broker   *Broker
	table    Table
	scope    string
	ch       chan Change
	closed   chan struct{}
	once     sync.Once
	inflight sync.WaitGroup
}

func (s *brokerSub) Changes() <-chan Change {
	return s.ch
}

func (s *brokerSub) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()

		close(s.closed)
		s.inflight.Wait()
		close(s.ch)
	})
	return nil
}
