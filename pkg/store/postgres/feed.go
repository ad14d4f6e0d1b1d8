package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/AccelByte/extend-questboard-common/pkg/errors"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

const (
	minReconnectInterval = 100 * time.Millisecond
	maxReconnectInterval = 10 * time.Second
	listenerPingInterval = 90 * time.Second
)

// Feed is a store.ChangeFeed fed by the NOTIFY triggers of the schema.
// One LISTEN connection is shared by every subscription; fan-out happens in-process.
type Feed struct {
	listener *pq.Listener
	broker   *store.Broker
	logger   *slog.Logger

	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ store.ChangeFeed = (*Feed)(nil)

// NewFeed opens a LISTEN connection with dsn and starts relaying notifications.
func NewFeed(ctx context.Context, dsn string, logger *slog.Logger) (*Feed, error) {
	listener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			logger.Warn("Change listener disconnected", "error", err)
		case pq.ListenerEventReconnected:
			logger.Info("Change listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Error("Change listener connection attempt failed", "error", err)
		}
	})
	if err := listener.Listen(ChangeChannel); err != nil {
		_ = listener.Close()
		return nil, errors.ErrUpstreamUnavailable("listen for changes", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		listener: listener,
		broker:   store.NewBroker(logger),
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go f.run(ctx)

	logger.Info("Change listener started", "channel", ChangeChannel)
	return f, nil
}

// Subscribe implements store.ChangeFeed.
func (f *Feed) Subscribe(ctx context.Context, table store.Table, scope string) (store.FeedSubscription, error) {
	return f.broker.Subscribe(ctx, table, scope)
}

// Close stops listening and closes every subscription.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		f.cancel()
		<-f.done
		err = f.listener.Close()
		_ = f.broker.Close()
	})
	return err
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-f.listener.Notify:
			if n == nil {
				// Sent after a reconnect: notifications raised while disconnected are lost.
				f.logger.Warn("Change listener resumed, changes may have been missed")
				continue
			}
			f.handle(n.Extra)
		case <-ticker.C:
			if err := f.listener.Ping(); err != nil {
				f.logger.Warn("Change listener ping failed", "error", err)
			}
		}
	}
}

func (f *Feed) handle(payload string) {
	c, err := ParseNotification(payload)
	if err != nil {
		f.logger.Error("Failed to decode change notification", "error", err)
		return
	}
	f.broker.Publish(c)
}

// ParseNotification decodes the JSON payload emitted by the notify trigger.
func ParseNotification(payload string) (store.Change, error) {
	var c store.Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return store.Change{}, err
	}
	if !c.Table.IsValid() || !c.Kind.IsValid() || c.RecordID == "" {
		return store.Change{}, errors.ErrValidationFailed("notification", "missing table, kind or record id")
	}
	return c, nil
}
