package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"

	"github.com/AccelByte/extend-questboard-common/pkg/cache"
	"github.com/AccelByte/extend-questboard-common/pkg/client"
	"github.com/AccelByte/extend-questboard-common/pkg/common"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/progression"
	"github.com/AccelByte/extend-questboard-common/pkg/questlist"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
	"github.com/AccelByte/extend-questboard-common/pkg/store/memory"
)

var epoch = time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)

var (
	owner     = domain.Identity{UserID: "client-1", Role: domain.RoleClient}
	stranger  = domain.Identity{UserID: "client-2", Role: domain.RoleClient}
	admin     = domain.Identity{UserID: "admin-1", Role: domain.RoleAdmin}
	hero      = domain.Identity{UserID: "adv-1", Role: domain.RoleAdventurer}
	otherHero = domain.Identity{UserID: "adv-2", Role: domain.RoleAdventurer}
)

// countingQuestStore counts reads and can be told to fail them.
type countingQuestStore struct {
	store.QuestStore

	queries atomic.Int32
	gets    atomic.Int32

	mu      sync.Mutex
	failErr error
}

func (s *countingQuestStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *countingQuestStore) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failErr
}

func (s *countingQuestStore) QueryQuests(ctx context.Context, f questlist.FilterSpec) ([]domain.Quest, error) {
	s.queries.Add(1)
	if err := s.failure(); err != nil {
		return nil, err
	}
	return s.QuestStore.QueryQuests(ctx, f)
}

func (s *countingQuestStore) GetQuest(ctx context.Context, id string) (*domain.Quest, error) {
	s.gets.Add(1)
	if err := s.failure(); err != nil {
		return nil, err
	}
	return s.QuestStore.GetQuest(ctx, id)
}

type fixture struct {
	store     *memory.Store
	quests    *countingQuestStore
	clock     *common.ManualClock
	caches    *Caches
	payout    *client.MockPayoutClient
	questRepo *QuestRepository
	userRepo  *UserRepository
	msgRepo   *MessageRepository
	noteRepo  *NotificationRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := common.NewManualClock(epoch)
	mem := memory.New(clock, nil)
	t.Cleanup(func() { _ = mem.Close() })

	quests := &countingQuestStore{QuestStore: mem}
	caches := NewCaches(5*time.Minute, clock, nil)
	calc := progression.Default()
	payout := client.NewMockPayoutClient()

	f := &fixture{
		store:  mem,
		quests: quests,
		clock:  clock,
		caches: caches,
		payout: payout,
		questRepo: NewQuestRepository(quests, mem, caches, calc, payout, clock, nil).
			WithRetryPolicy(client.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}),
		userRepo: NewUserRepository(mem, mem, caches, calc, nil),
		msgRepo:  NewMessageRepository(mem, quests, mem, caches, nil),
		noteRepo: NewNotificationRepository(mem, caches, nil),
	}

	for _, id := range []domain.Identity{owner, stranger, admin, hero, otherHero} {
		f.seedUser(t, id)
	}
	return f
}

func (f *fixture) seedUser(t *testing.T, id domain.Identity) {
	t.Helper()
	u := &domain.User{ID: id.UserID, Email: id.UserID + "@guild.test", Name: id.UserID, Role: id.Role}
	require.NoError(t, f.store.InsertUser(context.Background(), u))
}

func (f *fixture) createQuest(t *testing.T, title string, difficulty domain.Difficulty, reward float64, deadline time.Duration) *domain.Quest {
	t.Helper()
	q, err := f.questRepo.CreateQuest(context.Background(), owner, &domain.Quest{
		Title:          title,
		Description:    "A task for brave souls",
		Difficulty:     difficulty,
		Reward:         reward,
		Category:       "combat",
		RequiredSkills: []string{"sword"},
		Deadline:       f.clock.Now().Add(deadline),
	})
	require.NoError(t, err)
	return q
}

func TestReadThrough_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c := cache.NewExpiringCache[string](time.Minute, nil, nil)
	var group singleflight.Group

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "board", nil
	}
	same := func(s string) string { return s }

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := readThrough(firstCtx, c, &group, "quests", same, fetch)
		firstErr <- err
	}()
	<-started

	type result struct {
		val string
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := readThrough(context.Background(), c, &group, "quests", same, fetch)
		second <- result{v, err}
	}()
	// Let the second caller join the in-flight fetch.
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "board", got.val)
	assert.Equal(t, int32(1), calls.Load())

	cached, ok := c.Get("quests")
	require.True(t, ok)
	assert.Equal(t, "board", cached)
}
