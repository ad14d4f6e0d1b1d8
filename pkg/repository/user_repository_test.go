package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
)

func TestSignUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.userRepo.SignUp(ctx, &domain.User{
		Email:      "aria@guild.test",
		Name:       "  Aria  ",
		Role:       domain.RoleAdventurer,
		Experience: 9000,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Aria", u.Name)
	assert.Zero(t, u.Experience, "progression starts from zero")

	tests := []struct {
		name  string
		user  domain.User
		field string
	}{
		{"bad email", domain.User{Email: "nope", Name: "Aria", Role: domain.RoleClient}, "email"},
		{"unknown role", domain.User{Email: "a@b.test", Name: "Aria", Role: "king"}, "role"},
		{"short name", domain.User{Email: "a@b.test", Name: "A", Role: domain.RoleClient}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			_, err := f.userRepo.SignUp(ctx, &u)
			var qe *errors.QuestError
			require.ErrorAs(t, err, &qe)
			assert.Equal(t, errors.ErrCodeValidationFailed, qe.Code)
			assert.Equal(t, tt.field, qe.Field)
		})
	}
}

func TestGetUserByID_ReadThroughAndInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.userRepo.GetUserByID(ctx, hero.UserID)
	require.NoError(t, err)
	assert.Equal(t, "adv-1", u.Name)

	// A write that bypasses the repository is not visible until the entry is invalidated.
	renamed := "Renamed elsewhere"
	_, err = f.store.UpdateUser(ctx, hero.UserID, domain.UserPatch{Name: &renamed})
	require.NoError(t, err)
	cached, err := f.userRepo.GetUserByID(ctx, hero.UserID)
	require.NoError(t, err)
	assert.Equal(t, "adv-1", cached.Name)

	name := "Sir Hero"
	_, err = f.userRepo.UpdateUser(ctx, hero, hero.UserID, domain.UserPatch{Name: &name})
	require.NoError(t, err)

	fresh, err := f.userRepo.GetUserByID(ctx, hero.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Sir Hero", fresh.Name)

	_, err = f.userRepo.GetUserByID(ctx, "ghost")
	assert.True(t, errors.IsNotFound(err))
}

func TestUpdateUser_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	name := "Impostor"

	_, err := f.userRepo.UpdateUser(ctx, otherHero, hero.UserID, domain.UserPatch{Name: &name})
	assert.True(t, errors.IsUnauthorized(err))

	_, err = f.userRepo.UpdateUser(ctx, admin, hero.UserID, domain.UserPatch{Name: &name})
	assert.NoError(t, err)

	tooMany := make([]domain.Skill, domain.MaxUserSkills+1)
	_, err = f.userRepo.UpdateUser(ctx, hero, hero.UserID, domain.UserPatch{Skills: tooMany})
	assert.True(t, errors.IsValidation(err))
}

func TestGetPublicProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.AddProgress(ctx, hero.UserID, domain.ProgressDelta{
		Experience:      7500,
		CompletedQuests: 3,
		AcceptedQuests:  4,
	})
	require.NoError(t, err)

	p, err := f.userRepo.GetPublicProfile(ctx, hero.UserID)
	require.NoError(t, err)
	assert.Equal(t, "C", p.Rank)
	assert.Equal(t, 4, p.Level)
	assert.Equal(t, 7500, p.ExperienceToNext)
	assert.Equal(t, 75, p.QuestCompletionRate)

	fresh, err := f.userRepo.GetPublicProfile(ctx, stranger.UserID)
	require.NoError(t, err)
	assert.Equal(t, "F", fresh.Rank)
	assert.Zero(t, fresh.QuestCompletionRate)
}

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.createQuest(t, "Slay the wyrm", domain.DifficultyHard, 300, 48*time.Hour)
	_, err := f.questRepo.AcceptQuest(ctx, hero, q.ID)
	require.NoError(t, err)
	f.payout.On("GrantReward", mock.Anything, hero.UserID, q.ID, mock.Anything).Return(nil)
	_, err = f.questRepo.CompleteQuest(ctx, hero, q.ID)
	require.NoError(t, err)

	stats, err := f.userRepo.GetStats(ctx, hero.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CompletedQuests)
	assert.Equal(t, 1, stats.AcceptedQuests)
	assert.Equal(t, 100, stats.CompletionRate)
	assert.Equal(t, 300.0, stats.TotalRewards, "the posted reward of completed quests")
	assert.Equal(t, domain.Standing{Position: 1, TotalAdventurers: 2}, stats.Ranking)

	rookie, err := f.userRepo.GetStats(ctx, otherHero.UserID)
	require.NoError(t, err)
	assert.Zero(t, rookie.TotalRewards)
	assert.Zero(t, rookie.CompletionRate)
	assert.Equal(t, domain.Standing{Position: 2, TotalAdventurers: 2}, rookie.Ranking)

	_, err = f.userRepo.GetStats(ctx, owner.UserID)
	assert.True(t, errors.IsValidation(err))
	_, err = f.userRepo.GetStats(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestGetLeaderboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.AddProgress(ctx, otherHero.UserID, domain.ProgressDelta{Experience: 1500})
	require.NoError(t, err)

	board, err := f.userRepo.GetLeaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 2, "clients and admins are not ranked")
	assert.Equal(t, otherHero.UserID, board[0].ID)
	assert.Equal(t, 2, board[0].Level)
	assert.Equal(t, hero.UserID, board[1].ID)

	top, err := f.userRepo.GetLeaderboard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, otherHero.UserID, top[0].ID)
}
