// Package repository exposes the quest board's reads and mutations.
//
// Reads go through a per-record-type ExpiringCache. Mutations authorize
// against a fresh copy of the record, write to the record store, and
// invalidate cache entries from the confirmed result.
package repository

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AccelByte/extend-questboard-common/pkg/cache"
	"github.com/AccelByte/extend-questboard-common/pkg/common"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
	"github.com/AccelByte/extend-questboard-common/pkg/questlist"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

// Cache key helpers. List keys all start with questlist.CollectionKey.
func QuestKey(id string) string             { return "quest:" + id }
func UserKey(id string) string              { return "user:" + id }
func MessagesKey(questID string) string     { return "messages:" + questID }
func NotificationsKey(userID string) string { return "notifications:" + userID }

// Caches groups the read caches shared by the repositories and realtime subscriptions.
type Caches struct {
	QuestLists *cache.ExpiringCache[[]domain.Quest]
	Quests     *cache.ExpiringCache[domain.Quest]
	Users      *cache.ExpiringCache[domain.User]
	Messages   *cache.ExpiringCache[[]domain.Message]

	Notifications *cache.ExpiringCache[[]domain.Notification]
}

// NewCaches creates empty caches sharing one TTL and clock.
func NewCaches(ttl time.Duration, clock common.Clock, logger *slog.Logger) *Caches {
	return &Caches{
		QuestLists: cache.NewExpiringCache[[]domain.Quest](ttl, clock, logger),
		Quests:     cache.NewExpiringCache[domain.Quest](ttl, clock, logger),
		Users:      cache.NewExpiringCache[domain.User](ttl, clock, logger),
		Messages:   cache.NewExpiringCache[[]domain.Message](ttl, clock, logger),

		Notifications: cache.NewExpiringCache[[]domain.Notification](ttl, clock, logger),
	}
}

// StartSweepers purges expired entries of every cache each interval until ctx is done.
func (c *Caches) StartSweepers(ctx context.Context, interval time.Duration) {
	c.QuestLists.StartSweeper(ctx, interval)
	c.Quests.StartSweeper(ctx, interval)
	c.Users.StartSweeper(ctx, interval)
	c.Messages.StartSweeper(ctx, interval)
	c.Notifications.StartSweeper(ctx, interval)
}

// Stop halts every sweeper.
func (c *Caches) Stop() {
	c.QuestLists.Stop()
	c.Quests.Stop()
	c.Users.Stop()
	c.Messages.Stop()
	c.Notifications.Stop()
}

// invalidateQuest drops every list and the single-quest entry for id.
func (c *Caches) invalidateQuest(id string) {
	c.QuestLists.InvalidatePrefix(questlist.CollectionKey)
	c.Quests.Invalidate(QuestKey(id))
}

// readThrough returns the cached value for key or fills it from fetch.
// Concurrent misses on one key share a single fetch, so the committed entry is
// always one complete fetched value. Failed fetches are never cached.
// The shared fetch is detached from any one caller's cancellation; each caller
// stops waiting when its own ctx is done.
func readThrough[T any](
	ctx context.Context,
	c cache.Cache[T],
	group *singleflight.Group,
	key string,
	clone func(T) T,
	fetch func(context.Context) (T, error),
) (T, error) {
	var zero T
	if v, ok := c.Get(key); ok {
		return clone(v), nil
	}

	fill := context.WithoutCancel(ctx)
	ch := group.DoChan(key, func() (interface{}, error) {
		fetched, err := fetch(fill)
		if err != nil {
			return nil, err
		}
		c.Set(key, clone(fetched))
		return fetched, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return clone(res.Val.(T)), nil
	}
}

func cloneQuests(in []domain.Quest) []domain.Quest {
	out := make([]domain.Quest, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneQuest(q domain.Quest) domain.Quest { return q.Clone() }

func cloneUser(u domain.User) domain.User { return u.Clone() }

func cloneMessages(in []domain.Message) []domain.Message {
	return append([]domain.Message{}, in...)
}

func cloneNotifications(in []domain.Notification) []domain.Notification {
	return append([]domain.Notification{}, in...)
}

// conditionError turns a lost conditional write into a CONFLICT naming the record.
func conditionError(err error, recordID, reason string) error {
	if stderrors.Is(err, store.ErrConditionFailed) {
		return errors.ErrConflict(recordID, reason)
	}
	return err
}
