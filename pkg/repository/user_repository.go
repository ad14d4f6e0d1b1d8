package repository

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AccelByte/extend-questboard-common/pkg/authz"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
	"github.com/AccelByte/extend-questboard-common/pkg/progression"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

// UserRepository reads and updates user profiles and adventurer standings.
type UserRepository struct {
	users  store.UserStore
	stats  store.StatsStore
	caches *Caches
	calc   *progression.Calculator
	logger *slog.Logger
	group  singleflight.Group
}

// NewUserRepository creates a user repository.
func NewUserRepository(users store.UserStore, stats store.StatsStore, caches *Caches, calc *progression.Calculator, logger *slog.Logger) *UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepository{
		users:  users,
		stats:  stats,
		caches: caches,
		calc:   calc,
		logger: logger,
	}
}

// SignUp registers a new user with zeroed progression.
// It is the single place where role and profile fields are validated on creation.
func (r *UserRepository) SignUp(ctx context.Context, u *domain.User) (*domain.User, error) {
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return nil, errors.ErrValidationFailed("email", "must be a valid address")
	}
	if !u.Role.IsValid() {
		return nil, errors.ErrValidationFailed("role", "unknown role '"+string(u.Role)+"'")
	}
	name := strings.TrimSpace(u.Name)
	if err := domain.ValidateUserPatch(domain.UserPatch{Name: &name, Skills: u.Skills}); err != nil {
		return nil, err
	}

	u.Name = name
	u.Experience = 0
	u.CompletedQuests = 0
	u.AcceptedQuests = 0
	if err := r.users.InsertUser(ctx, u); err != nil {
		return nil, err
	}

	r.logger.Info("User signed up", "user_id", u.ID, "role", u.Role)
	out := u.Clone()
	return &out, nil
}

// GetUserByID returns a user or a NOT_FOUND error.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := readThrough(ctx, r.caches.Users, &r.group, UserKey(id), cloneUser,
		func(ctx context.Context) (domain.User, error) {
			u, err := r.users.GetUser(ctx, id)
			if err != nil {
				return domain.User{}, err
			}
			return *u, nil
		})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetPublicProfile returns the public view of a user with rank, level and completion rate.
func (r *UserRepository) GetPublicProfile(ctx context.Context, id string) (*domain.PublicProfile, error) {
	u, err := r.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := r.calc.Profile(*u)
	return &profile, nil
}

// UpdateUser applies a profile patch. Only the user or an admin may update a profile.
func (r *UserRepository) UpdateUser(ctx context.Context, actor domain.Identity, id string, patch domain.UserPatch) (*domain.User, error) {
	if err := authz.CanUpdateUser(actor, id); err != nil {
		return nil, err
	}
	if err := domain.ValidateUserPatch(patch); err != nil {
		return nil, err
	}

	updated, err := r.users.UpdateUser(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	r.caches.Users.Invalidate(UserKey(id))
	return updated, nil
}

// GetStats returns the track record of an adventurer: counters, completion rate,
// the summed reward of completed quests and the experience standing.
func (r *UserRepository) GetStats(ctx context.Context, userID string) (*domain.QuestStats, error) {
	u, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role != domain.RoleAdventurer {
		return nil, errors.ErrValidationFailed("role", "stats are kept for adventurers only")
	}

	stats := &domain.QuestStats{
		UserID:          u.ID,
		CompletedQuests: u.CompletedQuests,
		AcceptedQuests:  u.AcceptedQuests,
		CompletionRate:  progression.CompletionRate(u.CompletedQuests, u.AcceptedQuests),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := r.stats.CompletedRewards(gctx, userID)
		stats.TotalRewards = total
		return err
	})
	g.Go(func() error {
		standing, err := r.stats.Standing(gctx, userID)
		stats.Ranking = standing
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetLeaderboard returns the public profiles of the top adventurers by experience.
// A non-positive limit returns every adventurer.
func (r *UserRepository) GetLeaderboard(ctx context.Context, limit int) ([]domain.PublicProfile, error) {
	users, err := r.stats.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	profiles := make([]domain.PublicProfile, len(users))
	for i, u := range users {
		profiles[i] = r.calc.Profile(u)
	}
	return profiles, nil
}
