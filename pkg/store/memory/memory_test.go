package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-questboard-common/pkg/common"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
	"github.com/AccelByte/extend-questboard-common/pkg/questlist"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

var epoch = time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, *common.ManualClock) {
	t.Helper()
	clock := common.NewManualClock(epoch)
	s := New(clock, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func seedQuest(t *testing.T, s *Store, id string) *domain.Quest {
	t.Helper()
	q := &domain.Quest{
		ID:             id,
		Title:          "Quest " + id,
		Description:    "Do the thing",
		Difficulty:     domain.DifficultyEasy,
		Reward:         100,
		Category:       "combat",
		RequiredSkills: []string{"sword"},
		Status:         domain.QuestStatusOpen,
		ClientID:       "client-1",
		Deadline:       epoch.Add(24 * time.Hour),
	}
	require.NoError(t, s.InsertQuest(context.Background(), q))
	return q
}

func TestStore_QuestCRUD(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()

	q := seedQuest(t, s, "q1")
	assert.Equal(t, epoch, q.CreatedAt)

	got, err := s.GetQuest(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "Quest q1", got.Title)

	got.RequiredSkills[0] = "mutated"
	again, _ := s.GetQuest(ctx, "q1")
	assert.Equal(t, "sword", again.RequiredSkills[0], "returned records must be copies")

	clock.Advance(time.Minute)
	title := "Renamed"
	updated, err := s.UpdateQuest(ctx, "q1", domain.QuestPatch{Title: &title}, store.QuestCondition{})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, epoch.Add(time.Minute), updated.UpdatedAt)

	deleted, err := s.DeleteQuest(ctx, "q1", store.QuestCondition{Status: domain.QuestStatusOpen})
	require.NoError(t, err)
	assert.Equal(t, "q1", deleted.ID)

	_, err = s.GetQuest(ctx, "q1")
	assert.True(t, errors.IsNotFound(err))
}

func TestStore_InsertDuplicateQuest(t *testing.T) {
	s, _ := newStore(t)
	seedQuest(t, s, "q1")

	err := s.InsertQuest(context.Background(), &domain.Quest{ID: "q1"})
	assert.True(t, errors.IsConflict(err))
}

func TestStore_InsertAssignsID(t *testing.T) {
	s, _ := newStore(t)
	q := &domain.Quest{Title: "no id", Status: domain.QuestStatusOpen}

	require.NoError(t, s.InsertQuest(context.Background(), q))
	assert.NotEmpty(t, q.ID)
}

func TestStore_QueryQuests(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()

	seedQuest(t, s, "a")
	clock.Advance(time.Second)
	seedQuest(t, s, "b")
	clock.Advance(time.Second)
	c := &domain.Quest{ID: "c", Category: "crafting", Status: domain.QuestStatusOpen, Reward: 50}
	require.NoError(t, s.InsertQuest(ctx, c))

	all, err := s.QueryQuests(ctx, questlist.FilterSpec{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")
	assert.Equal(t, "a", all[2].ID)

	category := "combat"
	combat, err := s.QueryQuests(ctx, questlist.FilterSpec{Category: &category})
	require.NoError(t, err)
	assert.Len(t, combat, 2)
}

func TestStore_ConditionalUpdate(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	seedQuest(t, s, "q1")

	inProgress := domain.QuestStatusInProgress
	adv := "adv-1"
	accept := domain.QuestPatch{Status: &inProgress, AdventurerID: &adv}
	cond := store.QuestCondition{Status: domain.QuestStatusOpen, Unassigned: true}

	_, err := s.UpdateQuest(ctx, "q1", accept, cond)
	require.NoError(t, err)

	_, err = s.UpdateQuest(ctx, "q1", accept, cond)
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	_, err = s.UpdateQuest(ctx, "missing", accept, cond)
	assert.True(t, errors.IsNotFound(err))

	_, err = s.DeleteQuest(ctx, "q1", store.QuestCondition{Status: domain.QuestStatusOpen})
	assert.ErrorIs(t, err, store.ErrConditionFailed)
}

func TestStore_AcceptRace(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	seedQuest(t, s, "q1")

	inProgress := domain.QuestStatusInProgress
	cond := store.QuestCondition{Status: domain.QuestStatusOpen, Unassigned: true}

	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			adv := "adv-" + string(rune('a'+i))
			_, err := s.UpdateQuest(ctx, "q1", domain.QuestPatch{Status: &inProgress, AdventurerID: &adv}, cond)
			if err == nil {
				wins.Add(1)
			} else if err == store.ErrConditionFailed {
				losses.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(19), losses.Load())
}

func TestStore_Users(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	u := &domain.User{ID: "u1", Name: "Aria", Role: domain.RoleAdventurer}
	require.NoError(t, s.InsertUser(ctx, u))
	assert.True(t, errors.IsConflict(s.InsertUser(ctx, &domain.User{ID: "u1"})))

	name := "Aria the Bold"
	updated, err := s.UpdateUser(ctx, "u1", domain.UserPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	progressed, err := s.AddProgress(ctx, "u1", domain.ProgressDelta{Experience: 250, CompletedQuests: 1})
	require.NoError(t, err)
	assert.Equal(t, 250, progressed.Experience)
	assert.Equal(t, 1, progressed.CompletedQuests)

	_, err = s.GetUser(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
	_, err = s.AddProgress(ctx, "missing", domain.ProgressDelta{})
	assert.True(t, errors.IsNotFound(err))
}

func TestStore_Messages(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	seedQuest(t, s, "q1")

	require.NoError(t, s.InsertMessage(ctx, &domain.Message{QuestID: "q1", SenderID: "a", ReceiverID: "b", Content: "one"}))
	require.NoError(t, s.InsertMessage(ctx, &domain.Message{QuestID: "q1", SenderID: "b", ReceiverID: "a", Content: "two"}))

	msgs, err := s.ListMessages(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content)

	err = s.InsertMessage(ctx, &domain.Message{QuestID: "missing", Content: "x"})
	assert.True(t, errors.IsNotFound(err))

	empty, err := s.ListMessages(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_Stats(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	for _, u := range []*domain.User{
		{ID: "a1", Role: domain.RoleAdventurer, Experience: 500},
		{ID: "a2", Role: domain.RoleAdventurer, Experience: 900},
		{ID: "a3", Role: domain.RoleAdventurer, Experience: 500},
		{ID: "client-1", Role: domain.RoleClient, Experience: 5000},
	} {
		require.NoError(t, s.InsertUser(ctx, u))
	}

	t.Run("standing shares position on ties", func(t *testing.T) {
		for id, want := range map[string]int{"a2": 1, "a1": 2, "a3": 2} {
			standing, err := s.Standing(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, domain.Standing{Position: want, TotalAdventurers: 3}, standing, id)
		}
		_, err := s.Standing(ctx, "client-1")
		assert.True(t, errors.IsNotFound(err))
		_, err = s.Standing(ctx, "missing")
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("leaderboard orders by experience then id", func(t *testing.T) {
		board, err := s.Leaderboard(ctx, 0)
		require.NoError(t, err)
		ids := make([]string, len(board))
		for i, u := range board {
			ids[i] = u.ID
		}
		assert.Equal(t, []string{"a2", "a1", "a3"}, ids)

		top, err := s.Leaderboard(ctx, 1)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, "a2", top[0].ID)
	})

	t.Run("completed rewards count only completed quests", func(t *testing.T) {
		done := seedQuest(t, s, "q-done")
		active := seedQuest(t, s, "q-active")
		adv := "a1"
		completed := domain.QuestStatusCompleted
		inProgress := domain.QuestStatusInProgress
		_, err := s.UpdateQuest(ctx, done.ID, domain.QuestPatch{Status: &completed, AdventurerID: &adv}, store.QuestCondition{})
		require.NoError(t, err)
		_, err = s.UpdateQuest(ctx, active.ID, domain.QuestPatch{Status: &inProgress, AdventurerID: &adv}, store.QuestCondition{})
		require.NoError(t, err)

		total, err := s.CompletedRewards(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, 100.0, total)

		total, err = s.CompletedRewards(ctx, "a2")
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 4)
	assert.Equal(t, "a1", users[0].ID)
}

func TestStore_Notifications(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertUser(ctx, &domain.User{ID: "u1", Role: domain.RoleAdventurer}))

	sub, err := s.Subscribe(ctx, store.TableNotifications, "u1")
	require.NoError(t, err)

	first := &domain.Notification{UserID: "u1", Type: domain.NotificationMessage, Content: "one", RelatedID: "m1"}
	require.NoError(t, s.InsertNotification(ctx, first))
	clock.Advance(time.Minute)
	second := &domain.Notification{UserID: "u1", Type: domain.NotificationMessage, Content: "two", RelatedID: "m2"}
	require.NoError(t, s.InsertNotification(ctx, second))

	err = s.InsertNotification(ctx, &domain.Notification{UserID: "missing", Type: domain.NotificationMessage})
	assert.True(t, errors.IsNotFound(err))

	list, err := s.ListNotifications(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[0].Content)
	assert.False(t, list[1].Read)

	_, err = s.MarkNotificationRead(ctx, "someone-else", first.ID)
	assert.True(t, errors.IsNotFound(err))
	read, err := s.MarkNotificationRead(ctx, "u1", first.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)

	kinds := make([]domain.ChangeKind, 0, 3)
	for len(kinds) < 3 {
		select {
		case c := <-sub.Changes():
			assert.Equal(t, "u1", c.Scope)
			kinds = append(kinds, c.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for change")
		}
	}
	assert.Equal(t, []domain.ChangeKind{domain.ChangeInsert, domain.ChangeInsert, domain.ChangeUpdate}, kinds)
}

func TestStore_ChangeFeed(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	quests, err := s.Subscribe(ctx, store.TableQuests, "")
	require.NoError(t, err)
	messages, err := s.Subscribe(ctx, store.TableMessages, "q1")
	require.NoError(t, err)

	seedQuest(t, s, "q1")
	title := "Updated"
	_, err = s.UpdateQuest(ctx, "q1", domain.QuestPatch{Title: &title}, store.QuestCondition{})
	require.NoError(t, err)
	require.NoError(t, s.InsertMessage(ctx, &domain.Message{ID: "m1", QuestID: "q1", Content: "hi"}))

	next := func(sub store.FeedSubscription) store.Change {
		select {
		case c := <-sub.Changes():
			return c
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for change")
			return store.Change{}
		}
	}

	first := next(quests)
	assert.Equal(t, domain.ChangeInsert, first.Kind)
	second := next(quests)
	assert.Equal(t, domain.ChangeUpdate, second.Kind)
	ev, err := store.Decode[domain.Quest](second)
	require.NoError(t, err)
	assert.Equal(t, "Updated", ev.Record.Title)

	msg := next(messages)
	assert.Equal(t, "m1", msg.RecordID)
	assert.Equal(t, "q1", msg.Scope)
}

func TestStore_CancelledContext(t *testing.T) {
	s, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetQuest(ctx, "q1")
	assert.True(t, errors.IsUpstreamUnavailable(err))
}
