// Package memory is an in-process record store. It backs tests and single-process
// deployments and honours the same conditional-write contract as the Postgres store.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/AccelByte/extend-questboard-common/pkg/common"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
	"github.com/AccelByte/extend-questboard-common/pkg/questlist"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

// Store keeps quests, users, messages and notifications in maps guarded by one RWMutex.
// Every committed write is published on the embedded change feed while the lock is held,
// so feed order equals commit order.
type Store struct {
	mu       sync.RWMutex
	quests   map[string]domain.Quest
	users    map[string]domain.User
	messages map[string][]domain.Message      // quest id -> messages, oldest first
	notices  map[string][]domain.Notification // user id -> notifications, oldest first

	feed   *store.Broker
	clock  common.Clock
	logger *slog.Logger
}

var (
	_ store.QuestStore   = (*Store)(nil)
	_ store.UserStore    = (*Store)(nil)
	_ store.MessageStore = (*Store)(nil)
	_ store.ChangeFeed   = (*Store)(nil)

	_ store.StatsStore        = (*Store)(nil)
	_ store.NotificationStore = (*Store)(nil)
)

// New creates an empty Store. clock may be nil.
func New(clock common.Clock, logger *slog.Logger) *Store {
	if clock == nil {
		clock = common.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		quests:   make(map[string]domain.Quest),
		users:    make(map[string]domain.User),
		messages: make(map[string][]domain.Message),
		notices:  make(map[string][]domain.Notification),
		feed:     store.NewBroker(logger),
		clock:    clock,
		logger:   logger,
	}
}

// Close shuts down the change feed.
func (s *Store) Close() error {
	return s.feed.Close()
}

// Subscribe implements store.ChangeFeed.
func (s *Store) Subscribe(ctx context.Context, table store.Table, scope string) (store.FeedSubscription, error) {
	return s.feed.Subscribe(ctx, table, scope)
}

// GetQuest returns a copy of the quest with the given id.
func (s *Store) GetQuest(ctx context.Context, id string) (*domain.Quest, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("get quest", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quests[id]
	if !ok {
		return nil, errors.ErrNotFound("quest", id)
	}
	out := q.Clone()
	return &out, nil
}

// QueryQuests returns matching quests, newest first.
func (s *Store) QueryQuests(ctx context.Context, filter questlist.FilterSpec) ([]domain.Quest, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("query quests", err)
	}

	s.mu.RLock()
	out := make([]domain.Quest, 0, len(s.quests))
	for _, q := range s.quests {
		if filter.Matches(&q) {
			out = append(out, q.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// InsertQuest stores q, assigning an id and timestamps when missing.
// q is updated in place with the stored values.
func (s *Store) InsertQuest(ctx context.Context, q *domain.Quest) error {
	if err := ctx.Err(); err != nil {
		return errors.ErrUpstreamUnavailable("insert quest", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if _, exists := s.quests[q.ID]; exists {
		return errors.ErrConflict(q.ID, "quest already exists")
	}
	now := s.clock.Now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now

	s.quests[q.ID] = q.Clone()
	s.publish(store.TableQuests, domain.ChangeInsert, q.Clone(), "")
	return nil
}

// UpdateQuest applies patch when cond holds.
func (s *Store) UpdateQuest(ctx context.Context, id string, patch domain.QuestPatch, cond store.QuestCondition) (*domain.Quest, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("update quest", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quests[id]
	if !ok {
		return nil, errors.ErrNotFound("quest", id)
	}
	if !cond.Holds(&q) {
		return nil, store.ErrConditionFailed
	}

	updated := patch.Apply(q)
	updated.UpdatedAt = s.clock.Now()
	s.quests[id] = updated

	s.publish(store.TableQuests, domain.ChangeUpdate, updated.Clone(), "")
	out := updated.Clone()
	return &out, nil
}

// DeleteQuest removes the quest and its messages when cond holds.
func (s *Store) DeleteQuest(ctx context.Context, id string, cond store.QuestCondition) (*domain.Quest, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("delete quest", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quests[id]
	if !ok {
		return nil, errors.ErrNotFound("quest", id)
	}
	if !cond.Holds(&q) {
		return nil, store.ErrConditionFailed
	}

	delete(s.quests, id)
	for _, m := range s.messages[id] {
		s.publish(store.TableMessages, domain.ChangeDelete, m, id)
	}
	delete(s.messages, id)

	s.publish(store.TableQuests, domain.ChangeDelete, q.Clone(), "")
	return &q, nil
}

// GetUser returns a copy of the user with the given id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("get user", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.ErrNotFound("user", id)
	}
	out := u.Clone()
	return &out, nil
}

// InsertUser stores u, assigning an id and timestamps when missing.
func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	if err := ctx.Err(); err != nil {
		return errors.ErrUpstreamUnavailable("insert user", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := s.users[u.ID]; exists {
		return errors.ErrConflict(u.ID, "user already exists")
	}
	now := s.clock.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	s.users[u.ID] = u.Clone()
	s.publish(store.TableUsers, domain.ChangeInsert, u.Clone(), "")
	return nil
}

// UpdateUser applies a profile patch.
func (s *Store) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("update user", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.ErrNotFound("user", id)
	}
	updated := patch.Apply(u)
	updated.UpdatedAt = s.clock.Now()
	s.users[id] = updated

	s.publish(store.TableUsers, domain.ChangeUpdate, updated.Clone(), "")
	out := updated.Clone()
	return &out, nil
}

// AddProgress increments progression counters.
func (s *Store) AddProgress(ctx context.Context, id string, delta domain.ProgressDelta) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("add progress", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.ErrNotFound("user", id)
	}
	u.Experience += delta.Experience
	u.CompletedQuests += delta.CompletedQuests
	u.AcceptedQuests += delta.AcceptedQuests
	u.UpdatedAt = s.clock.Now()
	s.users[id] = u

	s.publish(store.TableUsers, domain.ChangeUpdate, u.Clone(), "")
	out := u.Clone()
	return &out, nil
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("list users", err)
	}

	s.mu.RLock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CompletedRewards sums the reward of the quests adventurerID completed.
func (s *Store) CompletedRewards(ctx context.Context, adventurerID string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.ErrUpstreamUnavailable("sum rewards", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, q := range s.quests {
		if q.Status == domain.QuestStatusCompleted && q.IsAssignedTo(adventurerID) {
			total += q.Reward
		}
	}
	return total, nil
}

// Standing ranks userID among adventurers by experience.
func (s *Store) Standing(ctx context.Context, userID string) (domain.Standing, error) {
	if err := ctx.Err(); err != nil {
		return domain.Standing{}, errors.ErrUpstreamUnavailable("rank user", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok || u.Role != domain.RoleAdventurer {
		return domain.Standing{}, errors.ErrNotFound("adventurer", userID)
	}
	standing := domain.Standing{Position: 1}
	for _, other := range s.users {
		if other.Role != domain.RoleAdventurer {
			continue
		}
		standing.TotalAdventurers++
		if other.Experience > u.Experience {
			standing.Position++
		}
	}
	return standing, nil
}

// Leaderboard returns at most limit adventurers by experience, highest first.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("leaderboard", err)
	}

	s.mu.RLock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if u.Role == domain.RoleAdventurer {
			out = append(out, u.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Experience != out[j].Experience {
			return out[i].Experience > out[j].Experience
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListMessages returns the messages of a quest, oldest first.
func (s *Store) ListMessages(ctx context.Context, questID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("list messages", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Message{}, s.messages[questID]...), nil
}

// InsertMessage appends m to its quest.
func (s *Store) InsertMessage(ctx context.Context, m *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return errors.ErrUpstreamUnavailable("insert message", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quests[m.QuestID]; !ok {
		return errors.ErrNotFound("quest", m.QuestID)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock.Now()
	}

	s.messages[m.QuestID] = append(s.messages[m.QuestID], *m)
	s.publish(store.TableMessages, domain.ChangeInsert, *m, m.QuestID)
	return nil
}

// ListNotifications returns the notifications of a user, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("list notifications", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.notices[userID]
	out := make([]domain.Notification, len(stored))
	for i, n := range stored {
		out[len(stored)-1-i] = n
	}
	return out, nil
}

// InsertNotification appends n to its user.
func (s *Store) InsertNotification(ctx context.Context, n *domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return errors.ErrUpstreamUnavailable("insert notification", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[n.UserID]; !ok {
		return errors.ErrNotFound("user", n.UserID)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now()
	}

	s.notices[n.UserID] = append(s.notices[n.UserID], *n)
	s.publish(store.TableNotifications, domain.ChangeInsert, *n, n.UserID)
	return nil
}

// MarkNotificationRead flags a notification of userID as read.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) (*domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("mark notification", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notices[userID] {
		if n.ID != id {
			continue
		}
		n.Read = true
		s.notices[userID][i] = n
		s.publish(store.TableNotifications, domain.ChangeUpdate, n, userID)
		return &n, nil
	}
	return nil, errors.ErrNotFound("notification", id)
}

// publish must be called with s.mu held.
func (s *Store) publish(table store.Table, kind domain.ChangeKind, record domain.Identifiable, scope string) {
	c, err := store.NewChange(table, kind, record, scope)
	if err != nil {
		s.logger.Error("Failed to encode change", "table", string(table), "record_id", record.GetID(), "error", err)
		return
	}
	s.feed.Publish(c)
}
