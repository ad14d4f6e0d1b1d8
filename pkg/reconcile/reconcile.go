// Package reconcile merges change notifications into cached collections.
package reconcile

import (
	"log/slog"

	"github.com/AccelByte/extend-questboard-common/pkg/domain"
)

// Anomaly describes an event that could not be applied as written.
// It never aborts the collection it was applied to.
type Anomaly struct {
	Kind     domain.ChangeKind
	RecordID string
	Reason   string
}

const (
	reasonUpdateMissing = "update for unknown record ignored"
	reasonDeleteMissing = "delete for unknown record ignored"
	reasonUnknownKind   = "unknown change kind ignored"
)

// Apply returns a new collection with ev merged in. The input slice is never modified
// and untouched elements keep their relative order.
//
//   - insert appends the record, or replaces the element with the same id
//   - update replaces the element with the same id, or is a no-op
//   - delete removes the element with the same id, or is a no-op
//
// The returned Anomaly is non-nil when an update or delete found no matching id,
// or when the kind is unknown.
func Apply[T domain.Identifiable](collection []T, ev domain.ChangeEvent[T]) ([]T, *Anomaly) {
	id := ev.Record.GetID()
	idx := indexOf(collection, id)

	switch ev.Kind {
	case domain.ChangeInsert:
		if idx >= 0 {
			return replaceAt(collection, idx, ev.Record), nil
		}
		out := make([]T, len(collection), len(collection)+1)
		copy(out, collection)
		return append(out, ev.Record), nil

	case domain.ChangeUpdate:
		if idx < 0 {
			return clone(collection), &Anomaly{Kind: ev.Kind, RecordID: id, Reason: reasonUpdateMissing}
		}
		return replaceAt(collection, idx, ev.Record), nil

	case domain.ChangeDelete:
		if idx < 0 {
			return clone(collection), &Anomaly{Kind: ev.Kind, RecordID: id, Reason: reasonDeleteMissing}
		}
		out := make([]T, 0, len(collection)-1)
		out = append(out, collection[:idx]...)
		return append(out, collection[idx+1:]...), nil

	default:
		return clone(collection), &Anomaly{Kind: ev.Kind, RecordID: id, Reason: reasonUnknownKind}
	}
}

// Reporter receives reconciliation anomalies for the collection stored under key.
type Reporter interface {
	Report(key string, a Anomaly)
}

// LogReporter reports anomalies as warnings.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs a at Warn level.
func (r *LogReporter) Report(key string, a Anomaly) {
	r.logger.Warn("Reconciliation anomaly",
		"key", key,
		"kind", string(a.Kind),
		"record_id", a.RecordID,
		"reason", a.Reason,
	)
}

// ApplyAndReport applies ev and forwards any anomaly to reporter.
func ApplyAndReport[T domain.Identifiable](reporter Reporter, key string, collection []T, ev domain.ChangeEvent[T]) []T {
	out, anomaly := Apply(collection, ev)
	if anomaly != nil && reporter != nil {
		reporter.Report(key, *anomaly)
	}
	return out
}

func indexOf[T domain.Identifiable](collection []T, id string) int {
	for i := range collection {
		if collection[i].GetID() == id {
			return i
		}
	}
	return -1
}

func replaceAt[T any](collection []T, idx int, v T) []T {
	out := clone(collection)
	out[idx] = v
	return out
}

func clone[T any](collection []T) []T {
	out := make([]T, len(collection))
	copy(out, collection)
	return out
}
