package repository

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AccelByte/extend-questboard-common/pkg/authz"
	"github.com/AccelByte/extend-questboard-common/pkg/client"
	"github.com/AccelByte/extend-questboard-common/pkg/common"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
	"github.com/AccelByte/extend-questboard-common/pkg/progression"
	"github.com/AccelByte/extend-questboard-common/pkg/questlist"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

// expireConcurrency bounds the number of in-flight expiry writes.
const expireConcurrency = 4

// CompletionResult describes the side effects of completing a quest.
// Awarded and Paid record which side effects have been applied, so a partial
// completion can be finished with ResumeCompletion.
type CompletionResult struct {
	Quest        *domain.Quest
	AdventurerID string
	Adventurer   *domain.User
	Experience   int
	Payout       float64
	Awarded      bool
	Paid         bool
}

// QuestRepository reads and mutates quests.
type QuestRepository struct {
	quests store.QuestStore
	users  store.UserStore
	caches *Caches
	calc   *progression.Calculator
	payout client.PayoutClient
	retry  client.RetryPolicy
	clock  common.Clock
	logger *slog.Logger
	group  singleflight.Group
}

// NewQuestRepository creates a quest repository.
//
// Parameters:
//   - quests, users: Record stores
//   - caches: Read caches, shared with UserRepository so completions refresh profiles
//   - calc: Progression tables for experience and reward scaling
//   - payout: Payout client for completed quests; nil disables payouts
//   - clock: Time source, nil means the system clock
//   - logger: Structured logger for operational logging
func NewQuestRepository(
	quests store.QuestStore,
	users store.UserStore,
	caches *Caches,
	calc *progression.Calculator,
	payout client.PayoutClient,
	clock common.Clock,
	logger *slog.Logger,
) *QuestRepository {
	if clock == nil {
		clock = common.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuestRepository{
		quests: quests,
		users:  users,
		caches: caches,
		calc:   calc,
		payout: payout,
		retry:  client.DefaultRetryPolicy,
		clock:  clock,
		logger: logger,
	}
}

// WithRetryPolicy overrides the payout retry policy.
func (r *QuestRepository) WithRetryPolicy(p client.RetryPolicy) *QuestRepository {
	r.retry = p
	return r
}

// GetQuests returns the quests matching filter, newest first.
func (r *QuestRepository) GetQuests(ctx context.Context, filter questlist.FilterSpec) ([]domain.Quest, error) {
	return readThrough(ctx, r.caches.QuestLists, &r.group, filter.CacheKey(), cloneQuests,
		func(ctx context.Context) ([]domain.Quest, error) {
			return r.quests.QueryQuests(ctx, filter)
		})
}

// GetQuest returns one quest or a NOT_FOUND error.
func (r *QuestRepository) GetQuest(ctx context.Context, id string) (*domain.Quest, error) {
	q, err := readThrough(ctx, r.caches.Quests, &r.group, QuestKey(id), cloneQuest,
		func(ctx context.Context) (domain.Quest, error) {
			q, err := r.quests.GetQuest(ctx, id)
			if err != nil {
				return domain.Quest{}, err
			}
			return *q, nil
		})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// SearchQuests filters, sorts and pages the quest board.
// An empty sort field keeps the store order.
func (r *QuestRepository) SearchQuests(ctx context.Context, filter questlist.FilterSpec, sort questlist.SortSpec, page, pageSize int) (questlist.SearchResult, error) {
	if sort.Field != "" && !sort.Field.IsValid() {
		return questlist.SearchResult{}, errors.ErrValidationFailed("sort", "unknown sort field '"+string(sort.Field)+"'")
	}

	quests, err := r.GetQuests(ctx, filter)
	if err != nil {
		return questlist.SearchResult{}, err
	}
	sorted := questlist.Sort(quests, sort.Field, sort.Direction)
	return questlist.Page(sorted, page, pageSize), nil
}

// CreateQuest posts a new open quest owned by the acting client.
// Identity, status and assignment fields of q are overwritten.
func (r *QuestRepository) CreateQuest(ctx context.Context, actor domain.Identity, q *domain.Quest) (*domain.Quest, error) {
	if err := authz.CanCreateQuest(actor); err != nil {
		return nil, err
	}

	q.ClientID = actor.UserID
	q.Status = domain.QuestStatusOpen
	q.AdventurerID = nil
	if err := domain.ValidateNewQuest(q, r.clock.Now()); err != nil {
		return nil, err
	}

	if err := r.quests.InsertQuest(ctx, q); err != nil {
		return nil, err
	}
	r.caches.invalidateQuest(q.ID)

	r.logger.Info("Quest created", "quest_id", q.ID, "client_id", q.ClientID)
	out := q.Clone()
	return &out, nil
}

// UpdateQuest edits the descriptive fields of a quest.
// The write is conditioned on the status the authorization saw.
func (r *QuestRepository) UpdateQuest(ctx context.Context, actor domain.Identity, id string, patch domain.QuestPatch) (*domain.Quest, error) {
	if err := domain.ValidateQuestPatch(patch); err != nil {
		return nil, err
	}

	current, err := r.quests.GetQuest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanEditQuest(actor, current); err != nil {
		return nil, err
	}

	updated, err := r.quests.UpdateQuest(ctx, id, patch, store.QuestCondition{Status: current.Status})
	if err != nil {
		return nil, conditionError(err, id, "quest changed while editing")
	}
	r.caches.invalidateQuest(id)
	return updated, nil
}

// DeleteQuest removes an open quest and its messages.
func (r *QuestRepository) DeleteQuest(ctx context.Context, actor domain.Identity, id string) error {
	current, err := r.quests.GetQuest(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.CanDeleteQuest(actor, current); err != nil {
		return err
	}

	cond := store.QuestCondition{Status: domain.QuestStatusOpen, Unassigned: true}
	if _, err := r.quests.DeleteQuest(ctx, id, cond); err != nil {
		return conditionError(err, id, "quest was accepted before it could be deleted")
	}
	r.caches.invalidateQuest(id)
	r.caches.Messages.Invalidate(MessagesKey(id))

	r.logger.Info("Quest deleted", "quest_id", id, "client_id", actor.UserID)
	return nil
}

// AcceptQuest assigns an open quest to the acting adventurer.
//
// The assignment is a compare-and-swap on status=open with no assignee, so
// among concurrent callers exactly one wins; the rest get a CONFLICT saying
// the quest is no longer available.
func (r *QuestRepository) AcceptQuest(ctx context.Context, actor domain.Identity, id string) (*domain.Quest, error) {
	current, err := r.quests.GetQuest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanAcceptQuest(actor, current); err != nil {
		return nil, err
	}

	status := domain.QuestStatusInProgress
	adventurer := actor.UserID
	patch := domain.QuestPatch{Status: &status, AdventurerID: &adventurer}
	cond := store.QuestCondition{Status: domain.QuestStatusOpen, Unassigned: true}

	updated, err := r.quests.UpdateQuest(ctx, id, patch, cond)
	if err != nil {
		if errors.IsConflict(conditionError(err, id, "")) {
			return nil, errors.ErrQuestNoLongerAvailable(id)
		}
		return nil, err
	}
	r.caches.invalidateQuest(id)

	if _, err := r.users.AddProgress(ctx, actor.UserID, domain.ProgressDelta{AcceptedQuests: 1}); err != nil {
		r.logger.Error("Failed to count accepted quest",
			"quest_id", id,
			"user_id", actor.UserID,
			"error", err,
		)
	}
	r.caches.Users.Invalidate(UserKey(actor.UserID))

	r.logger.Info("Quest accepted", "quest_id", id, "adventurer_id", actor.UserID)
	return updated, nil
}

// CompleteQuest finishes an in-progress quest, awards experience to the
// assigned adventurer and pays out the rank-scaled reward.
//
// Experience and payout are computed before the quest transition is committed.
// The side effects follow in order: progression, then payout. When one of them
// fails the returned result is still non-nil and the error is a
// PROGRESS_GRANT_FAILED or REWARD_GRANT_FAILED; ResumeCompletion retries the
// side effects that are still missing.
func (r *QuestRepository) CompleteQuest(ctx context.Context, actor domain.Identity, id string) (*CompletionResult, error) {
	current, err := r.quests.GetQuest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanCompleteQuest(actor, current); err != nil {
		return nil, err
	}
	if !r.calc.HasDifficulty(current.Difficulty) {
		return nil, errors.ErrConfigInvalid(fmt.Errorf("no multiplier for difficulty %q", current.Difficulty))
	}
	adventurerID := *current.AdventurerID

	adventurer, err := r.users.GetUser(ctx, adventurerID)
	if err != nil {
		return nil, err
	}

	minutes := common.MinutesBetween(current.UpdatedAt, r.clock.Now())
	xp := r.calc.ComputeExperience(current.Difficulty, minutes, r.calc.BaseExperience())
	rank := r.calc.ExperienceToRank(adventurer.Experience)
	payout := r.calc.ComputeReward(current.Reward, current.Difficulty, rank)

	status := domain.QuestStatusCompleted
	cond := store.QuestCondition{Status: domain.QuestStatusInProgress, AssignedTo: adventurerID}
	completed, err := r.quests.UpdateQuest(ctx, id, domain.QuestPatch{Status: &status}, cond)
	if err != nil {
		return nil, conditionError(err, id, "quest changed before it could be completed")
	}
	r.caches.invalidateQuest(id)

	r.logger.Info("Quest completed",
		"quest_id", id,
		"adventurer_id", adventurerID,
		"experience", xp,
		"rank", rank,
		"minutes", minutes,
	)

	return r.settle(ctx, &CompletionResult{
		Quest:        completed,
		AdventurerID: adventurerID,
		Experience:   xp,
		Payout:       payout,
	})
}

// ResumeCompletion applies the side effects a previous CompleteQuest could not.
// Side effects already recorded in res are not repeated.
func (r *QuestRepository) ResumeCompletion(ctx context.Context, res *CompletionResult) (*CompletionResult, error) {
	if res == nil || res.Quest == nil || res.AdventurerID == "" {
		return nil, errors.ErrValidationFailed("completion", "missing completion result")
	}
	if res.Quest.Status != domain.QuestStatusCompleted {
		return nil, errors.ErrInvalidTransition(res.Quest.ID, string(res.Quest.Status), string(domain.QuestStatusCompleted))
	}
	return r.settle(ctx, res)
}

func (r *QuestRepository) settle(ctx context.Context, res *CompletionResult) (*CompletionResult, error) {
	questID := res.Quest.ID

	if !res.Awarded {
		user, err := r.users.AddProgress(ctx, res.AdventurerID, domain.ProgressDelta{
			Experience:      res.Experience,
			CompletedQuests: 1,
		})
		r.caches.Users.Invalidate(UserKey(res.AdventurerID))
		if err != nil {
			r.logger.Error("Failed to award quest experience",
				"quest_id", questID,
				"adventurer_id", res.AdventurerID,
				"experience", res.Experience,
				"error", err,
			)
			return res, errors.ErrProgressGrantFailed(questID, res.AdventurerID, err)
		}
		res.Adventurer = user
		res.Awarded = true
	}

	if res.Paid || r.payout == nil || res.Payout <= 0 {
		return res, nil
	}
	if err := client.GrantWithRetry(ctx, r.payout, r.retry, res.AdventurerID, questID, res.Payout); err != nil {
		r.logger.Error("Failed to grant quest reward",
			"quest_id", questID,
			"adventurer_id", res.AdventurerID,
			"amount", res.Payout,
			"retryable", client.IsRetryableError(err),
			"error", err,
		)
		return res, errors.ErrRewardGrantFailed(questID, res.AdventurerID, err)
	}
	res.Paid = true
	return res, nil
}

// CancelQuest cancels an open or in-progress quest and releases its assignee.
func (r *QuestRepository) CancelQuest(ctx context.Context, actor domain.Identity, id string) (*domain.Quest, error) {
	current, err := r.quests.GetQuest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanCancelQuest(actor, current); err != nil {
		return nil, err
	}

	status := domain.QuestStatusCancelled
	patch := domain.QuestPatch{Status: &status, ClearAdventurer: true}
	updated, err := r.quests.UpdateQuest(ctx, id, patch, store.QuestCondition{Status: current.Status})
	if err != nil {
		return nil, conditionError(err, id, "quest changed before it could be cancelled")
	}
	r.caches.invalidateQuest(id)

	r.logger.Info("Quest cancelled", "quest_id", id, "by", actor.UserID)
	return updated, nil
}

// ExpireOverdue marks every open quest whose deadline has passed as expired.
// Quests accepted in the meantime are skipped. Returns how many were expired.
func (r *QuestRepository) ExpireOverdue(ctx context.Context) (int, error) {
	open := domain.QuestStatusOpen
	candidates, err := r.quests.QueryQuests(ctx, questlist.FilterSpec{Status: &open})
	if err != nil {
		return 0, err
	}

	now := r.clock.Now()
	expired := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(expireConcurrency)
	for i := range candidates {
		q := candidates[i]
		if !q.IsOverdue(now) {
			continue
		}
		g.Go(func() error {
			status := domain.QuestStatusExpired
			cond := store.QuestCondition{Status: domain.QuestStatusOpen, Unassigned: true}
			_, err := r.quests.UpdateQuest(gctx, q.ID, domain.QuestPatch{Status: &status}, cond)
			switch {
			case err == nil:
				expired[i] = true
				r.caches.invalidateQuest(q.ID)
				return nil
			case errors.IsConflict(conditionError(err, q.ID, "")), errors.IsNotFound(err):
				return nil
			default:
				return err
			}
		})
	}
	err = g.Wait()

	count := 0
	for _, ok := range expired {
		if ok {
			count++
		}
	}
	if count > 0 {
		r.logger.Info("Expired overdue quests", "count", count)
	}
	return count, err
}
