// Package store defines the record store the quest board reads from and writes to,
// along with its change feed.
package store

import (
	"context"
	"errors"

	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/questlist"
)

// ErrConditionFailed is returned by a conditional write whose condition no longer holds.
// Repositories translate it into a CONFLICT error.
var ErrConditionFailed = errors.New("store: write condition not met")

// QuestCondition guards a quest write. Zero fields impose no constraint.
type QuestCondition struct {
	Status     domain.QuestStatus // current status must equal this
	Unassigned bool               // adventurer_id must be NULL
	AssignedTo string             // adventurer_id must equal this
}

// IsZero returns true when the condition imposes nothing.
func (c QuestCondition) IsZero() bool {
	return c.Status == "" && !c.Unassigned && c.AssignedTo == ""
}

// Holds reports whether q satisfies the condition.
func (c QuestCondition) Holds(q *domain.Quest) bool {
	if c.Status != "" && q.Status != c.Status {
		return false
	}
	if c.Unassigned && q.AdventurerID != nil {
		return false
	}
	if c.AssignedTo != "" && !q.IsAssignedTo(c.AssignedTo) {
		return false
	}
	return true
}

// QuestStore persists quests.
// Missing records are reported as NOT_FOUND errors, driver failures as UPSTREAM_UNAVAILABLE.
type QuestStore interface {
	GetQuest(ctx context.Context, id string) (*domain.Quest, error)
	QueryQuests(ctx context.Context, filter questlist.FilterSpec) ([]domain.Quest, error)
	InsertQuest(ctx context.Context, q *domain.Quest) error

	// UpdateQuest applies patch atomically when cond holds and returns the stored result.
	// It returns ErrConditionFailed when the record exists but cond does not hold.
	UpdateQuest(ctx context.Context, id string, patch domain.QuestPatch, cond QuestCondition) (*domain.Quest, error)

	// DeleteQuest removes the quest when cond holds and returns the deleted record.
	DeleteQuest(ctx context.Context, id string, cond QuestCondition) (*domain.Quest, error)
}

// UserStore persists users.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	InsertUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error)

	// AddProgress atomically increments the progression counters of a user.
	AddProgress(ctx context.Context, id string, delta domain.ProgressDelta) (*domain.User, error)

	// ListUsers returns every user ordered by id.
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// StatsStore answers aggregate reads over users and quests.
type StatsStore interface {
	// CompletedRewards sums the reward of the quests adventurerID completed.
	CompletedRewards(ctx context.Context, adventurerID string) (float64, error)

	// Standing ranks userID among adventurers by experience, highest first.
	// It returns NOT_FOUND when userID is not an adventurer.
	Standing(ctx context.Context, userID string) (domain.Standing, error)

	// Leaderboard returns at most limit adventurers by experience, highest first.
	// Ties are broken by id.
	Leaderboard(ctx context.Context, limit int) ([]domain.User, error)
}

// MessageStore persists quest chat messages.
type MessageStore interface {
	ListMessages(ctx context.Context, questID string) ([]domain.Message, error)
	InsertMessage(ctx context.Context, m *domain.Message) error
}

// NotificationStore persists per-user notifications.
type NotificationStore interface {
	// ListNotifications returns the notifications of a user, newest first.
	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	InsertNotification(ctx context.Context, n *domain.Notification) error

	// MarkNotificationRead flags a notification of userID as read.
	// A notification owned by someone else is reported as NOT_FOUND.
	MarkNotificationRead(ctx context.Context, userID, id string) (*domain.Notification, error)
}

// ChangeFeed delivers change notifications for one table, optionally narrowed by scope.
// An empty scope receives every change of the table.
type ChangeFeed interface {
	Subscribe(ctx context.Context, table Table, scope string) (FeedSubscription, error)
}

// FeedSubscription is an open registration on a ChangeFeed.
// Changes arrive in the order the store committed them.
type FeedSubscription interface {
	Changes() <-chan Change
	Close() error
}
