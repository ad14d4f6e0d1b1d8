package store

import (
	"encoding/json"
	"fmt"

	"github.com/AccelByte/extend-questboard-common/pkg/domain"
)

// Table names a record type in the store.
type Table string

const (
	TableQuests        Table = "quests"
	TableUsers         Table = "users"
	TableMessages      Table = "messages"
	TableNotifications Table = "notifications"
)

// IsValid returns true if the table is known.
func (t Table) IsValid() bool {
	switch t {
	case TableQuests, TableUsers, TableMessages, TableNotifications:
		return true
	default:
		return false
	}
}

// Change is a raw change notification as emitted by a store.
// Payload is the JSON encoding of the full record (the old row for deletes).
// Scope is the quest id for messages, the user id for notifications and empty otherwise.
type Change struct {
	Table    Table             `json:"table"`
	Kind     domain.ChangeKind `json:"kind"`
	RecordID string            `json:"record_id"`
	Scope    string            `json:"scope,omitempty"`
	Payload  json.RawMessage   `json:"payload"`
}

// Matches reports whether the change belongs to a subscription on table and scope.
func (c Change) Matches(table Table, scope string) bool {
	return c.Table == table && (scope == "" || c.Scope == scope)
}

// NewChange encodes record into a Change.
func NewChange(table Table, kind domain.ChangeKind, record domain.Identifiable, scope string) (Change, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return Change{}, fmt.Errorf("failed to encode %s change: %w", table, err)
	}
	return Change{
		Table:    table,
		Kind:     kind,
		RecordID: record.GetID(),
		Scope:    scope,
		Payload:  payload,
	}, nil
}

// Decode turns a raw change into a typed event.
func Decode[T domain.Identifiable](c Change) (domain.ChangeEvent[T], error) {
	var record T
	if err := json.Unmarshal(c.Payload, &record); err != nil {
		return domain.ChangeEvent[T]{}, fmt.Errorf("failed to decode %s change %s: %w", c.Table, c.RecordID, err)
	}
	if record.GetID() != c.RecordID {
		return domain.ChangeEvent[T]{}, fmt.Errorf("%s change %s carries record %s", c.Table, c.RecordID, record.GetID())
	}
	return domain.ChangeEvent[T]{Kind: c.Kind, Record: record}, nil
}
