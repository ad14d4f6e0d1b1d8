package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AccelByte/extend-questboard-common/pkg/errors"
)

// Field constraints shared by quest creation and editing.
const (
	TitleMaxLength       = 100
	DescriptionMaxLength = 1000
	MessageMaxLength     = 1000
	UserNameMinLength    = 2
	UserNameMaxLength    = 50
	MaxUserSkills        = 10
)

// ValidateNewQuest checks a quest about to be created. now is used for the deadline check.
// Returns the first violated constraint as a VALIDATION_FAILED error.
func ValidateNewQuest(q *Quest, now time.Time) error {
	if err := validateTitle(q.Title); err != nil {
		return err
	}
	if err := validateDescription(q.Description); err != nil {
		return err
	}
	if !q.Difficulty.IsValid() {
		return errors.ErrValidationFailed("difficulty", "unknown difficulty '"+string(q.Difficulty)+"'")
	}
	if q.Reward < 0 {
		return errors.ErrValidationFailed("reward", "must not be negative")
	}
	if strings.TrimSpace(q.Category) == "" {
		return errors.ErrValidationFailed("category", "cannot be empty")
	}
	if len(q.RequiredSkills) == 0 {
		return errors.ErrValidationFailed("required_skills", "at least one skill is required")
	}
	if err := validateSkillNames(q.RequiredSkills); err != nil {
		return err
	}
	if q.Deadline.IsZero() || !q.Deadline.After(now) {
		return errors.ErrValidationFailed("deadline", "must be in the future")
	}
	return nil
}

// ValidateQuestPatch checks the fields present in a partial quest update.
func ValidateQuestPatch(p QuestPatch) error {
	if p.IsEmpty() {
		return errors.ErrValidationFailed("patch", "no fields to update")
	}
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.Difficulty != nil && !p.Difficulty.IsValid() {
		return errors.ErrValidationFailed("difficulty", "unknown difficulty '"+string(*p.Difficulty)+"'")
	}
	if p.Reward != nil && *p.Reward < 0 {
		return errors.ErrValidationFailed("reward", "must not be negative")
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return errors.ErrValidationFailed("category", "cannot be empty")
	}
	if p.RequiredSkills != nil {
		if len(p.RequiredSkills) == 0 {
			return errors.ErrValidationFailed("required_skills", "at least one skill is required")
		}
		if err := validateSkillNames(p.RequiredSkills); err != nil {
			return err
		}
	}
	if p.Status != nil {
		return errors.ErrValidationFailed("status", "status changes go through accept, complete or cancel")
	}
	if p.AdventurerID != nil || p.ClearAdventurer {
		return errors.ErrValidationFailed("adventurer_id", "assignment goes through accept")
	}
	return nil
}

// ValidateUserPatch checks a profile update.
func ValidateUserPatch(p UserPatch) error {
	if p.Name != nil {
		n := utf8.RuneCountInString(strings.TrimSpace(*p.Name))
		if n < UserNameMinLength || n > UserNameMaxLength {
			return errors.ErrValidationFailed("name", "must be between 2 and 50 characters")
		}
	}
	if len(p.Skills) > MaxUserSkills {
		return errors.ErrValidationFailed("skills", "at most 10 skills are allowed")
	}
	for _, s := range p.Skills {
		if strings.TrimSpace(s.Name) == "" {
			return errors.ErrValidationFailed("skills", "skill name cannot be empty")
		}
		if s.Level < 0 {
			return errors.ErrValidationFailed("skills", "skill level must not be negative")
		}
	}
	return nil
}

// ValidateMessage checks a message about to be sent.
func ValidateMessage(m *Message) error {
	if m.QuestID == "" {
		return errors.ErrValidationFailed("quest_id", "cannot be empty")
	}
	if m.ReceiverID == "" {
		return errors.ErrValidationFailed("receiver_id", "cannot be empty")
	}
	n := utf8.RuneCountInString(m.Content)
	if strings.TrimSpace(m.Content) == "" || n > MessageMaxLength {
		return errors.ErrValidationFailed("content", "must be between 1 and 1000 characters")
	}
	return nil
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if strings.TrimSpace(title) == "" || n > TitleMaxLength {
		return errors.ErrValidationFailed("title", "must be between 1 and 100 characters")
	}
	return nil
}

func validateDescription(desc string) error {
	n := utf8.RuneCountInString(desc)
	if strings.TrimSpace(desc) == "" || n > DescriptionMaxLength {
		return errors.ErrValidationFailed("description", "must be between 1 and 1000 characters")
	}
	return nil
}

func validateSkillNames(skills []string) error {
	for _, s := range skills {
		if strings.TrimSpace(s) == "" {
			return errors.ErrValidationFailed("required_skills", "skill name cannot be empty")
		}
	}
	return nil
}
