package repository

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/AccelByte/extend-questboard-common/pkg/authz"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

// NotificationRepository reads and acknowledges the notifications of a user.
type NotificationRepository struct {
	notifications store.NotificationStore
	caches        *Caches
	logger        *slog.Logger
	group         singleflight.Group
}

// NewNotificationRepository creates a notification repository.
func NewNotificationRepository(notifications store.NotificationStore, caches *Caches, logger *slog.Logger) *NotificationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationRepository{
		notifications: notifications,
		caches:        caches,
		logger:        logger,
	}
}

// GetNotifications returns the notifications of userID, newest first.
func (r *NotificationRepository) GetNotifications(ctx context.Context, actor domain.Identity, userID string) ([]domain.Notification, error) {
	if err := authz.CanReadNotifications(actor, userID); err != nil {
		return nil, err
	}
	return readThrough(ctx, r.caches.Notifications, &r.group, NotificationsKey(userID), cloneNotifications,
		func(ctx context.Context) ([]domain.Notification, error) {
			return r.notifications.ListNotifications(ctx, userID)
		})
}

// MarkRead flags one of the actor's own notifications as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, actor domain.Identity, id string) (*domain.Notification, error) {
	if err := authz.CanReadNotifications(actor, actor.UserID); err != nil {
		return nil, err
	}
	n, err := r.notifications.MarkNotificationRead(ctx, actor.UserID, id)
	if err != nil {
		return nil, err
	}
	r.caches.Notifications.Invalidate(NotificationsKey(actor.UserID))
	return n, nil
}

// notifyMessage records a message notification for its receiver.
func notifyMessage(ctx context.Context, notifications store.NotificationStore, q *domain.Quest, m *domain.Message) (*domain.Notification, error) {
	n := &domain.Notification{
		UserID:    m.ReceiverID,
		Type:      domain.NotificationMessage,
		Content:   fmt.Sprintf("New message on quest %q", q.Title),
		RelatedID: m.ID,
	}
	if err := notifications.InsertNotification(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}
