// Package postgres implements the record store on PostgreSQL using lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq" // PostgreSQL driver and array support

	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
	"github.com/AccelByte/extend-questboard-common/pkg/questlist"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
)

const questColumns = `id, title, description, difficulty, reward, deadline, category,
		       required_skills, status, client_id, adventurer_id, created_at, updated_at`

const userColumns = `id, email, name, avatar_url, role, experience, completed_quests,
		       accepted_quests, skills, created_at, updated_at`

const messageColumns = `id, quest_id, sender_id, receiver_id, content, created_at`

const notificationColumns = `id, user_id, type, content, related_id, read, created_at`

// Store implements the quest, user, message, stats and notification stores.
// Conditional writes are single UPDATE/DELETE statements whose WHERE clause carries
// the condition, so concurrent processes race on the database row, not on a local lock.
type Store struct {
	db *sql.DB
}

var (
	_ store.QuestStore   = (*Store)(nil)
	_ store.UserStore    = (*Store)(nil)
	_ store.MessageStore = (*Store)(nil)

	_ store.StatsStore        = (*Store)(nil)
	_ store.NotificationStore = (*Store)(nil)
)

// New creates a PostgreSQL-backed store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// GetQuest retrieves a single quest.
func (s *Store) GetQuest(ctx context.Context, id string) (*domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE id = $1`

	q, err := scanQuest(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound("quest", id)
	}
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable("get quest", err)
	}
	return q, nil
}

// QueryQuests retrieves matching quests, newest first.
func (s *Store) QueryQuests(ctx context.Context, filter questlist.FilterSpec) ([]domain.Quest, error) {
	where, args := buildQuestFilter(filter)

	query := `SELECT ` + questColumns + ` FROM quests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable("query quests", err)
	}
	defer func() { _ = rows.Close() }()

	quests := make([]domain.Quest, 0)
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, errors.ErrUpstreamUnavailable("scan quest", err)
		}
		quests = append(quests, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("iterate quests", err)
	}
	return quests, nil
}

// buildQuestFilter translates a FilterSpec into WHERE clauses with positional arguments.
func buildQuestFilter(f questlist.FilterSpec) ([]string, []any) {
	var where []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.Category != nil {
		add("category = $%d", *f.Category)
	}
	if f.Difficulty != nil {
		add("difficulty = $%d", string(*f.Difficulty))
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.MinReward != nil {
		add("reward >= $%d", *f.MinReward)
	}
	if f.MaxReward != nil {
		add("reward <= $%d", *f.MaxReward)
	}
	if len(f.RequiredSkills) > 0 {
		add("required_skills @> $%d", pq.Array(f.RequiredSkills))
	}
	if f.DeadlineBefore != nil {
		add("deadline < $%d", *f.DeadlineBefore)
	}
	if f.DeadlineAfter != nil {
		add("deadline > $%d", *f.DeadlineAfter)
	}
	if term := strings.TrimSpace(f.SearchTerm); term != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(term))+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(lower(title) LIKE $%d OR lower(description) LIKE $%d)", n, n))
	}
	return where, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// InsertQuest creates a quest and fills in its id and timestamps.
func (s *Store) InsertQuest(ctx context.Context, q *domain.Quest) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	query := `
		INSERT INTO quests (
			id, title, description, difficulty, reward, deadline, category,
			required_skills, status, client_id, adventurer_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		q.ID,
		q.Title,
		q.Description,
		string(q.Difficulty),
		q.Reward,
		q.Deadline,
		q.Category,
		pq.Array(q.RequiredSkills),
		string(q.Status),
		q.ClientID,
		q.AdventurerID,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	if isUniqueViolation(err) {
		return errors.ErrConflict(q.ID, "quest already exists")
	}
	if err != nil {
		return errors.ErrUpstreamUnavailable("insert quest", err)
	}
	return nil
}

// UpdateQuest applies patch in one conditional UPDATE.
// When no row is updated, a follow-up lookup tells NOT_FOUND apart from a lost condition.
func (s *Store) UpdateQuest(ctx context.Context, id string, patch domain.QuestPatch, cond store.QuestCondition) (*domain.Quest, error) {
	set, args := buildQuestPatch(patch)
	args = append(args, id)
	where := []string{fmt.Sprintf("id = $%d", len(args))}
	where, args = appendCondition(where, args, cond)

	// Safe: only column names and placeholders are formatted into the statement.
	// #nosec G201
	query := fmt.Sprintf(`UPDATE quests SET %s WHERE %s RETURNING %s`,
		strings.Join(set, ", "), strings.Join(where, " AND "), questColumns)

	q, err := scanQuest(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, s.missingOrConflict(ctx, id)
	}
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable("update quest", err)
	}
	return q, nil
}

// DeleteQuest removes a quest when cond holds. Messages go with it through ON DELETE CASCADE.
func (s *Store) DeleteQuest(ctx context.Context, id string, cond store.QuestCondition) (*domain.Quest, error) {
	args := []any{id}
	where := []string{"id = $1"}
	where, args = appendCondition(where, args, cond)

	// #nosec G201
	query := fmt.Sprintf(`DELETE FROM quests WHERE %s RETURNING %s`, strings.Join(where, " AND "), questColumns)

	q, err := scanQuest(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, s.missingOrConflict(ctx, id)
	}
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable("delete quest", err)
	}
	return q, nil
}

func buildQuestPatch(p domain.QuestPatch) ([]string, []any) {
	set := []string{"updated_at = NOW()"}
	var args []any
	add := func(column string, arg any) {
		args = append(args, arg)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Difficulty != nil {
		add("difficulty", string(*p.Difficulty))
	}
	if p.Reward != nil {
		add("reward", *p.Reward)
	}
	if p.Deadline != nil {
		add("deadline", *p.Deadline)
	}
	if p.Category != nil {
		add("category", *p.Category)
	}
	if p.RequiredSkills != nil {
		add("required_skills", pq.Array(p.RequiredSkills))
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.ClearAdventurer {
		set = append(set, "adventurer_id = NULL")
	} else if p.AdventurerID != nil {
		add("adventurer_id", *p.AdventurerID)
	}
	return set, args
}

func appendCondition(where []string, args []any, cond store.QuestCondition) ([]string, []any) {
	if cond.Status != "" {
		args = append(args, string(cond.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if cond.Unassigned {
		where = append(where, "adventurer_id IS NULL")
	}
	if cond.AssignedTo != "" {
		args = append(args, cond.AssignedTo)
		where = append(where, fmt.Sprintf("adventurer_id = $%d", len(args)))
	}
	return where, args
}

func (s *Store) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM quests WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return errors.ErrUpstreamUnavailable("check quest exists", err)
	}
	if !exists {
		return errors.ErrNotFound("quest", id)
	}
	return store.ErrConditionFailed
}

// GetUser retrieves a single user.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound("user", id)
	}
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable("get user", err)
	}
	return u, nil
}

// InsertUser creates a user and fills in its id and timestamps.
func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	skills, err := encodeSkills(u.Skills)
	if err != nil {
		return errors.ErrValidationFailed("skills", err.Error())
	}

	query := `
		INSERT INTO users (
			id, email, name, avatar_url, role, experience, completed_quests, accepted_quests, skills
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		u.ID,
		u.Email,
		u.Name,
		u.AvatarURL,
		string(u.Role),
		u.Experience,
		u.CompletedQuests,
		u.AcceptedQuests,
		skills,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return errors.ErrConflict(u.ID, "user already exists")
	}
	if err != nil {
		return errors.ErrUpstreamUnavailable("insert user", err)
	}
	return nil
}

// UpdateUser applies a profile patch.
func (s *Store) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	set := []string{"updated_at = NOW()"}
	var args []any
	if patch.Name != nil {
		args = append(args, *patch.Name)
		set = append(set, fmt.Sprintf("name = $%d", len(args)))
	}
	if patch.AvatarURL != nil {
		args = append(args, *patch.AvatarURL)
		set = append(set, fmt.Sprintf("avatar_url = $%d", len(args)))
	}
	if patch.Skills != nil {
		skills, err := encodeSkills(patch.Skills)
		if err != nil {
			return nil, errors.ErrValidationFailed("skills", err.Error())
		}
		args = append(args, skills)
		set = append(set, fmt.Sprintf("skills = $%d", len(args)))
	}
	args = append(args, id)

	// #nosec G201
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), userColumns)

	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound("user", id)
	}
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable("update user", err)
	}
	return u, nil
}

// AddProgress atomically increments progression counters in the database.
func (s *Store) AddProgress(ctx context.Context, id string, delta domain.ProgressDelta) (*domain.User, error) {
	query := `
		UPDATE users
		SET experience = experience + $2,
			completed_quests = completed_quests + $3,
			accepted_quests = accepted_quests + $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRowContext(ctx, query, id, delta.Experience, delta.CompletedQuests, delta.AcceptedQuests))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound("user", id)
	}
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable("add progress", err)
	}
	return u, nil
}

// ListUsers retrieves every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.queryUsers(ctx, "list users", `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
}

// CompletedRewards sums the reward of the quests adventurerID completed.
func (s *Store) CompletedRewards(ctx context.Context, adventurerID string) (float64, error) {
	query := `SELECT COALESCE(SUM(reward), 0) FROM quests WHERE adventurer_id = $1 AND status = $2`

	var total float64
	err := s.db.QueryRowContext(ctx, query, adventurerID, string(domain.QuestStatusCompleted)).Scan(&total)
	if err != nil {
		return 0, errors.ErrUpstreamUnavailable("sum rewards", err)
	}
	return total, nil
}

// Standing ranks userID among adventurers by experience in one statement.
func (s *Store) Standing(ctx context.Context, userID string) (domain.Standing, error) {
	query := `
		SELECT
			1 + (SELECT COUNT(*) FROM users o WHERE o.role = $2 AND o.experience > u.experience),
			(SELECT COUNT(*) FROM users o WHERE o.role = $2)
		FROM users u
		WHERE u.id = $1 AND u.role = $2
	`

	var standing domain.Standing
	err := s.db.QueryRowContext(ctx, query, userID, string(domain.RoleAdventurer)).
		Scan(&standing.Position, &standing.TotalAdventurers)
	if err == sql.ErrNoRows {
		return domain.Standing{}, errors.ErrNotFound("adventurer", userID)
	}
	if err != nil {
		return domain.Standing{}, errors.ErrUpstreamUnavailable("rank user", err)
	}
	return standing, nil
}

// Leaderboard retrieves at most limit adventurers by experience, highest first.
// A non-positive limit returns every adventurer.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.User, error) {
	query, args := leaderboardQuery(limit)
	return s.queryUsers(ctx, "leaderboard", query, args...)
}

func leaderboardQuery(limit int) (string, []any) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 ORDER BY experience DESC, id ASC`
	args := []any{string(domain.RoleAdventurer)}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *Store) queryUsers(ctx context.Context, op, query string, args ...any) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable(op, err)
	}
	defer func() { _ = rows.Close() }()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.ErrUpstreamUnavailable("scan user", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("iterate users", err)
	}
	return users, nil
}

// ListMessages retrieves the messages of a quest, oldest first.
func (s *Store) ListMessages(ctx context.Context, questID string) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE quest_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, questID)
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable("list messages", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.QuestID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt); err != nil {
			return nil, errors.ErrUpstreamUnavailable("scan message", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("iterate messages", err)
	}
	return messages, nil
}

// InsertMessage stores a message and fills in its id and creation time.
func (s *Store) InsertMessage(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	query := `
		INSERT INTO messages (id, quest_id, sender_id, receiver_id, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := s.db.QueryRowContext(ctx, query, m.ID, m.QuestID, m.SenderID, m.ReceiverID, m.Content).Scan(&m.CreatedAt)
	if isForeignKeyViolation(err) {
		return errors.ErrNotFound("quest", m.QuestID)
	}
	if err != nil {
		return errors.ErrUpstreamUnavailable("insert message", err)
	}
	return nil
}

// ListNotifications retrieves the notifications of a user, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable("list notifications", err)
	}
	defer func() { _ = rows.Close() }()

	notifications := make([]domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.ErrUpstreamUnavailable("scan notification", err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrUpstreamUnavailable("iterate notifications", err)
	}
	return notifications, nil
}

// InsertNotification stores a notification and fills in its id and creation time.
func (s *Store) InsertNotification(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	query := `
		INSERT INTO notifications (id, user_id, type, content, related_id, read)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := s.db.QueryRowContext(ctx, query, n.ID, n.UserID, string(n.Type), n.Content, n.RelatedID, n.Read).Scan(&n.CreatedAt)
	if isForeignKeyViolation(err) {
		return errors.ErrNotFound("user", n.UserID)
	}
	if err != nil {
		return errors.ErrUpstreamUnavailable("insert notification", err)
	}
	return nil
}

// MarkNotificationRead flags a notification of userID as read.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) (*domain.Notification, error) {
	query := `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2 RETURNING ` + notificationColumns

	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound("notification", id)
	}
	if err != nil {
		return nil, errors.ErrUpstreamUnavailable("mark notification", err)
	}
	return n, nil
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	var kind string
	if err := row.Scan(&n.ID, &n.UserID, &kind, &n.Content, &n.RelatedID, &n.Read, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Type = domain.NotificationType(kind)
	return &n, nil
}

func scanQuest(row rowScanner) (*domain.Quest, error) {
	var q domain.Quest
	var difficulty, status string
	err := row.Scan(
		&q.ID,
		&q.Title,
		&q.Description,
		&difficulty,
		&q.Reward,
		&q.Deadline,
		&q.Category,
		pq.Array(&q.RequiredSkills),
		&status,
		&q.ClientID,
		&q.AdventurerID,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.Difficulty = domain.Difficulty(difficulty)
	q.Status = domain.QuestStatus(status)
	return &q, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var role string
	var skills []byte
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.AvatarURL,
		&role,
		&u.Experience,
		&u.CompletedQuests,
		&u.AcceptedQuests,
		&skills,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	if len(skills) > 0 {
		if err := json.Unmarshal(skills, &u.Skills); err != nil {
			return nil, fmt.Errorf("failed to decode skills of user %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

func encodeSkills(skills []domain.Skill) ([]byte, error) {
	if skills == nil {
		skills = []domain.Skill{}
	}
	return json.Marshal(skills)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23503"
}
