package domain

// Identifiable is implemented by every record that can live in a reconciled collection.
type Identifiable interface {
	GetID() string
}

// ChangeKind is the kind of mutation carried by a change notification.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// IsValid returns true if the change kind is known.
func (k ChangeKind) IsValid() bool {
	switch k {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
		return true
	default:
		return false
	}
}

// ChangeEvent is a typed change notification. It is consumed once and not retained.
type ChangeEvent[T Identifiable] struct {
	Kind   ChangeKind `json:"kind"`
	Record T          `json:"record"`
}
