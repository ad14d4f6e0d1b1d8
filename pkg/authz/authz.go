// Package authz holds one authorization predicate per mutation.
// Every entry point calls these instead of checking roles inline.
// Each predicate returns nil when allowed, or an UNAUTHORIZED QuestError naming the record.
package authz

import (
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
)

// CanCreateQuest allows clients and admins to post quests.
func CanCreateQuest(id domain.Identity) error {
	if err := requireIdentity(id, "create quest", ""); err != nil {
		return err
	}
	if id.Role != domain.RoleClient && id.Role != domain.RoleAdmin {
		return errors.ErrUnauthorized("create quest", "", "only clients can post quests")
	}
	return nil
}

// CanEditQuest allows the owning client or an admin to edit a quest that is not finished.
func CanEditQuest(id domain.Identity, q *domain.Quest) error {
	if err := requireIdentity(id, "edit", q.ID); err != nil {
		return err
	}
	if !isOwner(id, q) && id.Role != domain.RoleAdmin {
		return errors.ErrUnauthorized("edit", q.ID, "not the quest owner")
	}
	if q.Status.IsTerminal() {
		return errors.ErrUnauthorized("edit", q.ID, "quest is "+string(q.Status))
	}
	return nil
}

// CanDeleteQuest allows only the owning client to delete, and only while the quest is open.
func CanDeleteQuest(id domain.Identity, q *domain.Quest) error {
	if err := requireIdentity(id, "delete", q.ID); err != nil {
		return err
	}
	if !isOwner(id, q) {
		return errors.ErrUnauthorized("delete", q.ID, "not the quest owner")
	}
	if q.Status != domain.QuestStatusOpen {
		return errors.ErrUnauthorized("delete", q.ID, "only open quests can be deleted")
	}
	return nil
}

// CanAcceptQuest allows an adventurer other than the owner to accept an open, unassigned quest.
// The store re-checks openness atomically; this is the fast path.
func CanAcceptQuest(id domain.Identity, q *domain.Quest) error {
	if err := requireIdentity(id, "accept", q.ID); err != nil {
		return err
	}
	if id.Role != domain.RoleAdventurer {
		return errors.ErrUnauthorized("accept", q.ID, "only adventurers can accept quests")
	}
	if isOwner(id, q) {
		return errors.ErrUnauthorized("accept", q.ID, "cannot accept your own quest")
	}
	if !q.IsOpen() {
		return errors.ErrQuestNoLongerAvailable(q.ID)
	}
	return nil
}

// CanCompleteQuest allows the assigned adventurer or the owner to complete an in-progress quest.
func CanCompleteQuest(id domain.Identity, q *domain.Quest) error {
	if err := requireIdentity(id, "complete", q.ID); err != nil {
		return err
	}
	if !q.IsAssignedTo(id.UserID) && !isOwner(id, q) {
		return errors.ErrUnauthorized("complete", q.ID, "not the assignee or owner")
	}
	if q.Status != domain.QuestStatusInProgress {
		return errors.ErrInvalidTransition(q.ID, string(q.Status), string(domain.QuestStatusCompleted))
	}
	return nil
}

// CanCancelQuest allows the owner or an admin to cancel an open or in-progress quest.
func CanCancelQuest(id domain.Identity, q *domain.Quest) error {
	if err := requireIdentity(id, "cancel", q.ID); err != nil {
		return err
	}
	if !isOwner(id, q) && id.Role != domain.RoleAdmin {
		return errors.ErrUnauthorized("cancel", q.ID, "not the quest owner")
	}
	if !q.Status.CanTransitionTo(domain.QuestStatusCancelled) {
		return errors.ErrInvalidTransition(q.ID, string(q.Status), string(domain.QuestStatusCancelled))
	}
	return nil
}

// CanUpdateUser allows users to update their own profile, and admins any profile.
func CanUpdateUser(id domain.Identity, userID string) error {
	if err := requireIdentity(id, "update", userID); err != nil {
		return err
	}
	if id.UserID != userID && id.Role != domain.RoleAdmin {
		return errors.ErrUnauthorized("update", userID, "can only update your own profile")
	}
	return nil
}

// CanReadNotifications allows users to read their own notifications, and admins anyone's.
func CanReadNotifications(id domain.Identity, userID string) error {
	if err := requireIdentity(id, "read notifications of", userID); err != nil {
		return err
	}
	if id.UserID != userID && id.Role != domain.RoleAdmin {
		return errors.ErrUnauthorized("read notifications of", userID, "can only read your own notifications")
	}
	return nil
}

// CanPostMessage allows the quest owner and the assigned adventurer to talk on a quest.
func CanPostMessage(id domain.Identity, q *domain.Quest) error {
	if err := requireIdentity(id, "message on", q.ID); err != nil {
		return err
	}
	if !isOwner(id, q) && !q.IsAssignedTo(id.UserID) {
		return errors.ErrUnauthorized("message on", q.ID, "not a participant of the quest")
	}
	return nil
}

// CanReadMessages uses the same participant rule as CanPostMessage; admins may also read.
func CanReadMessages(id domain.Identity, q *domain.Quest) error {
	if id.Role == domain.RoleAdmin && id.UserID != "" {
		return nil
	}
	if err := CanPostMessage(id, q); err != nil {
		return errors.ErrUnauthorized("read messages of", q.ID, "not a participant of the quest")
	}
	return nil
}

func isOwner(id domain.Identity, q *domain.Quest) bool {
	return q.ClientID != "" && q.ClientID == id.UserID
}

func requireIdentity(id domain.Identity, action, recordID string) error {
	if id.UserID == "" || !id.Role.IsValid() {
		return errors.ErrUnauthorized(action, recordID, "missing or invalid identity")
	}
	return nil
}
