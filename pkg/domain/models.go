package domain

import "time"

// Difficulty is the ordered difficulty tier of a quest.
type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyMedium    Difficulty = "medium"
	DifficultyHard      Difficulty = "hard"
	DifficultyExpert    Difficulty = "expert"
	DifficultyLegendary Difficulty = "legendary"
)

// Difficulties lists every tier from easiest to hardest.
var Difficulties = []Difficulty{
	DifficultyEasy,
	DifficultyMedium,
	DifficultyHard,
	DifficultyExpert,
	DifficultyLegendary,
}

// Ordinal returns the position of d in the tier ordering, or -1 if d is unknown.
func (d Difficulty) Ordinal() int {
	for i, known := range Difficulties {
		if known == d {
			return i
		}
	}
	return -1
}

// IsValid returns true if the difficulty is a known tier.
func (d Difficulty) IsValid() bool {
	return d.Ordinal() >= 0
}

// QuestStatus represents where a quest is in its lifecycle.
//
// Lifecycle:
//
//	open -> in_progress -> completed
//	open | in_progress -> cancelled
//	open -> expired
type QuestStatus string

const (
	QuestStatusOpen       QuestStatus = "open"
	QuestStatusInProgress QuestStatus = "in_progress"
	QuestStatusCompleted  QuestStatus = "completed"
	QuestStatusCancelled  QuestStatus = "cancelled"
	QuestStatusExpired    QuestStatus = "expired"
)

// IsValid returns true if the status is a valid quest status.
func (s QuestStatus) IsValid() bool {
	switch s {
	case QuestStatusOpen, QuestStatusInProgress, QuestStatusCompleted, QuestStatusCancelled, QuestStatusExpired:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once no further transition is possible.
func (s QuestStatus) IsTerminal() bool {
	return s == QuestStatusCompleted || s == QuestStatusCancelled || s == QuestStatusExpired
}

// CanTransitionTo reports whether moving from s to next respects the lifecycle.
func (s QuestStatus) CanTransitionTo(next QuestStatus) bool {
	switch s {
	case QuestStatusOpen:
		return next == QuestStatusInProgress || next == QuestStatusCancelled || next == QuestStatusExpired
	case QuestStatusInProgress:
		return next == QuestStatusCompleted || next == QuestStatusCancelled
	default:
		return false
	}
}

// Quest is a task posted by a client and accepted by at most one adventurer.
// AdventurerID is set only while the quest is in_progress or completed.
type Quest struct {
	ID             string      `json:"id" db:"id"`
	Title          string      `json:"title" db:"title"`
	Description    string      `json:"description" db:"description"`
	Difficulty     Difficulty  `json:"difficulty" db:"difficulty"`
	Reward         float64     `json:"reward" db:"reward"`
	Deadline       time.Time   `json:"deadline" db:"deadline"`
	Category       string      `json:"category" db:"category"`
	RequiredSkills []string    `json:"required_skills" db:"required_skills"`
	Status         QuestStatus `json:"status" db:"status"`
	ClientID       string      `json:"client_id" db:"client_id"`
	AdventurerID   *string     `json:"adventurer_id,omitempty" db:"adventurer_id"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// GetID returns the quest id.
func (q Quest) GetID() string { return q.ID }

// IsOpen returns true if the quest can still be accepted.
func (q *Quest) IsOpen() bool {
	return q.Status == QuestStatusOpen && q.AdventurerID == nil
}

// IsAssignedTo returns true if userID holds the quest.
func (q *Quest) IsAssignedTo(userID string) bool {
	return q.AdventurerID != nil && *q.AdventurerID == userID
}

// IsOverdue returns true if the deadline has passed while the quest was still open.
func (q *Quest) IsOverdue(now time.Time) bool {
	return q.Status == QuestStatusOpen && !q.Deadline.IsZero() && now.After(q.Deadline)
}

// HasSkills returns true if every skill in required is listed by the quest.
func (q *Quest) HasSkills(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range q.RequiredSkills {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so cached values are never shared with callers.
func (q Quest) Clone() Quest {
	out := q
	if q.RequiredSkills != nil {
		out.RequiredSkills = append([]string(nil), q.RequiredSkills...)
	}
	if q.AdventurerID != nil {
		id := *q.AdventurerID
		out.AdventurerID = &id
	}
	return out
}

// QuestPatch carries a partial quest update. Nil fields are left unchanged.
type QuestPatch struct {
	Title          *string      `json:"title,omitempty"`
	Description    *string      `json:"description,omitempty"`
	Difficulty     *Difficulty  `json:"difficulty,omitempty"`
	Reward         *float64     `json:"reward,omitempty"`
	Deadline       *time.Time   `json:"deadline,omitempty"`
	Category       *string      `json:"category,omitempty"`
	RequiredSkills []string     `json:"required_skills,omitempty"`
	Status         *QuestStatus `json:"status,omitempty"`
	AdventurerID   *string      `json:"adventurer_id,omitempty"`

	// ClearAdventurer unassigns the quest. It takes precedence over AdventurerID.
	ClearAdventurer bool `json:"clear_adventurer,omitempty"`
}

// Apply returns q with the patch applied.
func (p QuestPatch) Apply(q Quest) Quest {
	out := q.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Difficulty != nil {
		out.Difficulty = *p.Difficulty
	}
	if p.Reward != nil {
		out.Reward = *p.Reward
	}
	if p.Deadline != nil {
		out.Deadline = *p.Deadline
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.RequiredSkills != nil {
		out.RequiredSkills = append([]string(nil), p.RequiredSkills...)
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.AdventurerID != nil {
		id := *p.AdventurerID
		out.AdventurerID = &id
	}
	if p.ClearAdventurer {
		out.AdventurerID = nil
	}
	return out
}

// IsEmpty returns true when the patch changes nothing.
func (p QuestPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Difficulty == nil && p.Reward == nil &&
		p.Deadline == nil && p.Category == nil && p.RequiredSkills == nil && p.Status == nil &&
		p.AdventurerID == nil && !p.ClearAdventurer
}

// Role is the mutually exclusive role of a user.
type Role string

const (
	RoleAdventurer Role = "adventurer"
	RoleClient     Role = "client"
	RoleAdmin      Role = "admin"
)

// IsValid returns true if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdventurer, RoleClient, RoleAdmin:
		return true
	default:
		return false
	}
}

// Identity is the acting principal supplied by the caller. It is never authenticated here.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Skill is a named skill with a proficiency level.
type Skill struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// User is an adventurer, client or admin account.
// Level and rank are derived from Experience and are not stored.
type User struct {
	ID              string    `json:"id" db:"id"`
	Email           string    `json:"email" db:"email"`
	Name            string    `json:"name" db:"name"`
	AvatarURL       *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	Role            Role      `json:"role" db:"role"`
	Experience      int       `json:"experience" db:"experience"`
	CompletedQuests int       `json:"completed_quests" db:"completed_quests"`
	AcceptedQuests  int       `json:"accepted_quests" db:"accepted_quests"`
	Skills          []Skill   `json:"skills" db:"skills"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// GetID returns the user id.
func (u User) GetID() string { return u.ID }

// Clone returns a deep copy of the user.
func (u User) Clone() User {
	out := u
	if u.Skills != nil {
		out.Skills = append([]Skill(nil), u.Skills...)
	}
	if u.AvatarURL != nil {
		url := *u.AvatarURL
		out.AvatarURL = &url
	}
	return out
}

// UserPatch is a partial profile update.
// Experience and completed quests are only moved by quest completion.
type UserPatch struct {
	Name      *string `json:"name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Skills    []Skill `json:"skills,omitempty"`
}

// Apply returns u with the patch applied.
func (p UserPatch) Apply(u User) User {
	out := u.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.AvatarURL != nil {
		url := *p.AvatarURL
		out.AvatarURL = &url
	}
	if p.Skills != nil {
		out.Skills = append([]Skill(nil), p.Skills...)
	}
	return out
}

// ProgressDelta is the side effect of a quest completion on the adventurer.
type ProgressDelta struct {
	Experience      int `json:"experience"`
	CompletedQuests int `json:"completed_quests"`
	AcceptedQuests  int `json:"accepted_quests"`
}

// PublicProfile is the publicly visible view of a user with derived progression values.
type PublicProfile struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	AvatarURL           *string `json:"avatar_url,omitempty"`
	Level               int     `json:"level"`
	Rank                string  `json:"rank"`
	ExperienceToNext    int     `json:"experience_to_next"`
	Skills              []Skill `json:"skills"`
	QuestCompletionRate int     `json:"quest_completion_rate"`
}

// Message is a chat message exchanged between the client and the adventurer of a quest.
type Message struct {
	ID         string    `json:"id" db:"id"`
	QuestID    string    `json:"quest_id" db:"quest_id"`
	SenderID   string    `json:"sender_id" db:"sender_id"`
	ReceiverID string    `json:"receiver_id" db:"receiver_id"`
	Content    string    `json:"content" db:"content"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// GetID returns the message id.
func (m Message) GetID() string { return m.ID }

// NotificationType tells what a notification is about.
type NotificationType string

const (
	NotificationMessage NotificationType = "message"
)

// Notification is an unread-until-marked notice addressed to one user.
// RelatedID points at the record that triggered it, such as a message id.
type Notification struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Content   string           `json:"content" db:"content"`
	RelatedID string           `json:"related_id" db:"related_id"`
	Read      bool             `json:"read" db:"read"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// GetID returns the notification id.
func (n Notification) GetID() string { return n.ID }

// Standing is the position of an adventurer on the experience leaderboard.
// Position is 1-based and shared by adventurers with equal experience.
type Standing struct {
	Position         int `json:"position"`
	TotalAdventurers int `json:"total_adventurers"`
}

// QuestStats summarizes the track record of an adventurer.
// TotalRewards sums the posted reward of every quest the adventurer completed.
type QuestStats struct {
	UserID          string   `json:"user_id"`
	CompletedQuests int      `json:"completed_quests"`
	AcceptedQuests  int      `json:"accepted_quests"`
	CompletionRate  int      `json:"completion_rate"`
	TotalRewards    float64  `json:"total_rewards"`
	Ranking         Standing `json:"ranking"`
}
