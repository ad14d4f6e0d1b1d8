// Package questlist filters, sorts and pages quest collections.
package questlist

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/AccelByte/extend-questboard-common/pkg/domain"
)

// CollectionKey is the cache key of the unfiltered quest list and the prefix of every filtered one.
const CollectionKey = "quests"

// FilterSpec constrains a quest collection. Nil or empty fields impose no constraint.
// Present fields are combined with AND.
type FilterSpec struct {
	Category       *string             `json:"category,omitempty"`
	Difficulty     *domain.Difficulty  `json:"difficulty,omitempty"`
	Status         *domain.QuestStatus `json:"status,omitempty"`
	MinReward      *float64            `json:"min_reward,omitempty"`
	MaxReward      *float64            `json:"max_reward,omitempty"`
	RequiredSkills []string            `json:"required_skills,omitempty"`
	DeadlineBefore *time.Time          `json:"deadline_before,omitempty"`
	DeadlineAfter  *time.Time          `json:"deadline_after,omitempty"`
	SearchTerm     string              `json:"search_term,omitempty"`
}

// IsEmpty returns true when the filter matches every quest.
func (f FilterSpec) IsEmpty() bool {
	return f.Category == nil && f.Difficulty == nil && f.Status == nil && f.MinReward == nil &&
		f.MaxReward == nil && len(f.RequiredSkills) == 0 && f.DeadlineBefore == nil &&
		f.DeadlineAfter == nil && strings.TrimSpace(f.SearchTerm) == ""
}

// CacheKey returns the canonical encoding of the filter.
// Distinct filters never share a key and skill order does not matter.
func (f FilterSpec) CacheKey() string {
	if f.IsEmpty() {
		return CollectionKey
	}

	v := url.Values{}
	if f.Category != nil {
		v.Set("category", *f.Category)
	}
	if f.Difficulty != nil {
		v.Set("difficulty", string(*f.Difficulty))
	}
	if f.Status != nil {
		v.Set("status", string(*f.Status))
	}
	if f.MinReward != nil {
		v.Set("min_reward", strconv.FormatFloat(*f.MinReward, 'g', -1, 64))
	}
	if f.MaxReward != nil {
		v.Set("max_reward", strconv.FormatFloat(*f.MaxReward, 'g', -1, 64))
	}
	if len(f.RequiredSkills) > 0 {
		skills := append([]string(nil), f.RequiredSkills...)
		slices.Sort(skills)
		skills = slices.Compact(skills)
		v["required_skills"] = skills
	}
	if f.DeadlineBefore != nil {
		v.Set("deadline_before", f.DeadlineBefore.UTC().Format(time.RFC3339Nano))
	}
	if f.DeadlineAfter != nil {
		v.Set("deadline_after", f.DeadlineAfter.UTC().Format(time.RFC3339Nano))
	}
	if term := strings.ToLower(strings.TrimSpace(f.SearchTerm)); term != "" {
		v.Set("q", term)
	}
	// Encode sorts by key.
	return CollectionKey + "?" + v.Encode()
}

// Matches reports whether q satisfies every present constraint.
func (f FilterSpec) Matches(q *domain.Quest) bool {
	if f.Category != nil && q.Category != *f.Category {
		return false
	}
	if f.Difficulty != nil && q.Difficulty != *f.Difficulty {
		return false
	}
	if f.Status != nil && q.Status != *f.Status {
		return false
	}
	if f.MinReward != nil && q.Reward < *f.MinReward {
		return false
	}
	if f.MaxReward != nil && q.Reward > *f.MaxReward {
		return false
	}
	if len(f.RequiredSkills) > 0 && !q.HasSkills(f.RequiredSkills) {
		return false
	}
	if f.DeadlineBefore != nil && !q.Deadline.Before(*f.DeadlineBefore) {
		return false
	}
	if f.DeadlineAfter != nil && !q.Deadline.After(*f.DeadlineAfter) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.SearchTerm)); term != "" {
		if !strings.Contains(strings.ToLower(q.Title), term) &&
			!strings.Contains(strings.ToLower(q.Description), term) {
			return false
		}
	}
	return true
}

// SortField names the quest attribute to order by.
type SortField string

const (
	SortByReward     SortField = "reward"
	SortByDeadline   SortField = "deadline"
	SortByDifficulty SortField = "difficulty"
	SortByCreatedAt  SortField = "created_at"
)

// IsValid returns true if the field is sortable.
func (f SortField) IsValid() bool {
	switch f {
	case SortByReward, SortByDeadline, SortByDifficulty, SortByCreatedAt:
		return true
	default:
		return false
	}
}

// Direction is the sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortSpec is a sort field plus direction. The zero value keeps input order.
type SortSpec struct {
	Field     SortField `json:"field"`
	Direction Direction `json:"direction"`
}

// Filter returns the quests matching spec, preserving input order.
func Filter(quests []domain.Quest, spec FilterSpec) []domain.Quest {
	out := make([]domain.Quest, 0, len(quests))
	for i := range quests {
		if spec.Matches(&quests[i]) {
			out = append(out, quests[i])
		}
	}
	return out
}

// Sort returns a stably sorted copy of quests. The input is not modified.
// Difficulty is compared by tier ordinal. An empty field returns a plain copy.
func Sort(quests []domain.Quest, field SortField, dir Direction) []domain.Quest {
	out := append([]domain.Quest(nil), quests...)
	if field == "" {
		return out
	}

	cmp := comparator(field)
	slices.SortStableFunc(out, func(a, b domain.Quest) int {
		if dir == Desc {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
	return out
}

// Run applies filter then sort.
func Run(quests []domain.Quest, filter FilterSpec, sort SortSpec) []domain.Quest {
	return Sort(Filter(quests, filter), sort.Field, sort.Direction)
}

func comparator(field SortField) func(a, b domain.Quest) int {
	switch field {
	case SortByReward:
		return func(a, b domain.Quest) int { return compareFloat(a.Reward, b.Reward) }
	case SortByDeadline:
		return func(a, b domain.Quest) int { return a.Deadline.Compare(b.Deadline) }
	case SortByDifficulty:
		return func(a, b domain.Quest) int { return a.Difficulty.Ordinal() - b.Difficulty.Ordinal() }
	case SortByCreatedAt:
		return func(a, b domain.Quest) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		panic("questlist: unknown sort field " + string(field))
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
