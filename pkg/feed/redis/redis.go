// Package redis carries store change notifications between processes over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/AccelByte/extend-questboard-common/pkg/config"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

// Tables lists the tables carried over Redis.
var Tables = []store.Table{store.TableQuests, store.TableUsers, store.TableMessages, store.TableNotifications}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.ErrUpstreamUnavailable("connect to redis", err)
	}
	return client, nil
}

// Channel returns the pub/sub channel of a table.
func Channel(prefix string, table store.Table) string {
	return prefix + ":changes:" + string(table)
}

// Relay republishes every change of a local feed onto Redis.
type Relay struct {
	source store.ChangeFeed
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

// NewRelay creates a Relay. Call Run to start it.
func NewRelay(source store.ChangeFeed, client *goredis.Client, prefix string, logger *slog.Logger) *Relay {
	return &Relay{source: source, client: client, prefix: prefix, logger: logger}
}

// Run relays changes until ctx is cancelled or the source closes.
func (r *Relay) Run(ctx context.Context) error {
	merged := make(chan store.Change)
	var wg sync.WaitGroup

	for _, table := range Tables {
		sub, err := r.source.Subscribe(ctx, table, "")
		if err != nil {
			return errors.ErrUpstreamUnavailable("subscribe "+string(table), err)
		}
		wg.Add(1)
		go func(sub store.FeedSubscription) {
			defer wg.Done()
			defer func() { _ = sub.Close() }()
			for c := range sub.Changes() {
				select {
				case merged <- c:
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	r.logger.Info("Redis relay started", "prefix", r.prefix)

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-merged:
			if !ok {
				return nil
			}
			if err := r.publish(ctx, c); err != nil {
				r.logger.Error("Failed to relay change",
					"table", string(c.Table),
					"record_id", c.RecordID,
					"error", err,
				)
			}
		}
	}
}

func (r *Relay) publish(ctx context.Context, c store.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, Channel(r.prefix, c.Table), payload).Err()
}

// Feed is a store.ChangeFeed reading the channels a Relay publishes to.
type Feed struct {
	pubsub *goredis.PubSub
	broker *store.Broker
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

var _ store.ChangeFeed = (*Feed)(nil)

// NewFeed subscribes to every table channel under prefix.
func NewFeed(ctx context.Context, client *goredis.Client, prefix string, logger *slog.Logger) (*Feed, error) {
	channels := make([]string, len(Tables))
	for i, t := range Tables {
		channels[i] = Channel(prefix, t)
	}

	pubsub := client.Subscribe(ctx, channels...)
	// Wait for the subscription confirmation so no message published afterwards is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.ErrUpstreamUnavailable("subscribe to redis", err)
	}

	f := &Feed{
		pubsub: pubsub,
		broker: store.NewBroker(logger),
		logger: logger,
		done:   make(chan struct{}),
	}
	go f.run()
	return f, nil
}

// Subscribe implements store.ChangeFeed.
func (f *Feed) Subscribe(ctx context.Context, table store.Table, scope string) (store.FeedSubscription, error) {
	return f.broker.Subscribe(ctx, table, scope)
}

// Close unsubscribes from Redis and closes every subscription.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		err = f.pubsub.Close()
		<-f.done
		_ = f.broker.Close()
	})
	return err
}

func (f *Feed) run() {
	defer close(f.done)

	for msg := range f.pubsub.Channel() {
		var c store.Change
		if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
			f.logger.Error("Failed to decode relayed change", "channel", msg.Channel, "error", err)
			continue
		}
		f.broker.Publish(c)
	}
}
