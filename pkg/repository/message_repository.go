package repository

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/AccelByte/extend-questboard-common/pkg/authz"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

// MessageRepository reads and sends the chat messages of a quest.
// Each sent message also notifies its receiver.
type MessageRepository struct {
	messages      store.MessageStore
	quests        store.QuestStore
	notifications store.NotificationStore
	caches        *Caches
	logger        *slog.Logger
	group         singleflight.Group
}

// NewMessageRepository creates a message repository.
func NewMessageRepository(messages store.MessageStore, quests store.QuestStore, notifications store.NotificationStore, caches *Caches, logger *slog.Logger) *MessageRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageRepository{
		messages:      messages,
		quests:        quests,
		notifications: notifications,
		caches:        caches,
		logger:        logger,
	}
}

// GetMessages returns the messages of a quest, oldest first.
func (r *MessageRepository) GetMessages(ctx context.Context, actor domain.Identity, questID string) ([]domain.Message, error) {
	q, err := r.quests.GetQuest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanReadMessages(actor, q); err != nil {
		return nil, err
	}

	return readThrough(ctx, r.caches.Messages, &r.group, MessagesKey(questID), cloneMessages,
		func(ctx context.Context) ([]domain.Message, error) {
			return r.messages.ListMessages(ctx, questID)
		})
}

// SendMessage posts content from the acting participant to the other participant of the quest.
func (r *MessageRepository) SendMessage(ctx context.Context, actor domain.Identity, questID, content string) (*domain.Message, error) {
	q, err := r.quests.GetQuest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanPostMessage(actor, q); err != nil {
		return nil, err
	}

	receiver := q.ClientID
	if actor.UserID == q.ClientID {
		if q.AdventurerID == nil {
			return nil, errors.ErrValidationFailed("receiver_id", "quest has no adventurer yet")
		}
		receiver = *q.AdventurerID
	}

	m := &domain.Message{
		QuestID:    questID,
		SenderID:   actor.UserID,
		ReceiverID: receiver,
		Content:    content,
	}
	if err := domain.ValidateMessage(m); err != nil {
		return nil, err
	}
	if err := r.messages.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	r.caches.Messages.Invalidate(MessagesKey(questID))

	// The message is committed either way; a lost notification is only logged.
	if _, err := notifyMessage(ctx, r.notifications, q, m); err != nil {
		r.logger.Warn("Failed to notify message receiver", "quest_id", questID, "message_id", m.ID, "receiver_id", receiver, "error", err)
	} else {
		r.caches.Notifications.Invalidate(NotificationsKey(receiver))
	}

	r.logger.Debug("Message sent", "quest_id", questID, "message_id", m.ID, "sender_id", m.SenderID)
	out := *m
	return &out, nil
}
