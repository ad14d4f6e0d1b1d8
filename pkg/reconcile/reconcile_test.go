package reconcile

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-questboard-common/pkg/domain"
)

type item struct {
	ID    string
	Value int
}

func (i item) GetID() string { return i.ID }

type recordingReporter struct {
	keys      []string
	anomalies []Anomaly
}

func (r *recordingReporter) Report(key string, a Anomaly) {
	r.keys = append(r.keys, key)
	r.anomalies = append(r.anomalies, a)
}

func collection() []item {
	return []item{{"a", 1}, {"b", 2}, {"c", 3}}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name        string
		event       domain.ChangeEvent[item]
		want        []item
		wantAnomaly bool
	}{
		{
			name:  "insert appends",
			event: domain.ChangeEvent[item]{Kind: domain.ChangeInsert, Record: item{"d", 4}},
			want:  []item{{"a", 1}, {"b", 2}, {"c", 3}, {"d", 4}},
		},
		{
			name:  "duplicate insert acts as update",
			event: domain.ChangeEvent[item]{Kind: domain.ChangeInsert, Record: item{"b", 20}},
			want:  []item{{"a", 1}, {"b", 20}, {"c", 3}},
		},
		{
			name:  "update replaces in place",
			event: domain.ChangeEvent[item]{Kind: domain.ChangeUpdate, Record: item{"c", 30}},
			want:  []item{{"a", 1}, {"b", 2}, {"c", 30}},
		},
		{
			name:        "update for unknown id is a reported no-op",
			event:       domain.ChangeEvent[item]{Kind: domain.ChangeUpdate, Record: item{"z", 99}},
			want:        []item{{"a", 1}, {"b", 2}, {"c", 3}},
			wantAnomaly: true,
		},
		{
			name:  "delete removes and keeps order",
			event: domain.ChangeEvent[item]{Kind: domain.ChangeDelete, Record: item{ID: "b"}},
			want:  []item{{"a", 1}, {"c", 3}},
		},
		{
			name:        "delete for unknown id is a reported no-op",
			event:       domain.ChangeEvent[item]{Kind: domain.ChangeDelete, Record: item{ID: "z"}},
			want:        []item{{"a", 1}, {"b", 2}, {"c", 3}},
			wantAnomaly: true,
		},
		{
			name:        "unknown kind is a reported no-op",
			event:       domain.ChangeEvent[item]{Kind: domain.ChangeKind("upsert"), Record: item{"a", 7}},
			want:        []item{{"a", 1}, {"b", 2}, {"c", 3}},
			wantAnomaly: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := collection()
			got, anomaly := Apply(in, tt.event)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, collection(), in, "input must not be modified")
			if tt.wantAnomaly {
				require.NotNil(t, anomaly)
				assert.Equal(t, tt.event.Record.ID, anomaly.RecordID)
				assert.Equal(t, tt.event.Kind, anomaly.Kind)
			} else {
				assert.Nil(t, anomaly)
			}
		})
	}
}

func TestApply_UpdateIsIdempotent(t *testing.T) {
	ev := domain.ChangeEvent[item]{Kind: domain.ChangeUpdate, Record: item{"a", 100}}

	once, _ := Apply(collection(), ev)
	twice, _ := Apply(once, ev)

	assert.Equal(t, once, twice)
}

func TestApply_DuplicateInsertKeepsSize(t *testing.T) {
	ev := domain.ChangeEvent[item]{Kind: domain.ChangeInsert, Record: item{"d", 4}}

	once, _ := Apply(collection(), ev)
	twice, _ := Apply(once, ev)

	assert.Len(t, twice, 4)
	assert.Equal(t, once, twice)
}

func TestApply_EmptyCollection(t *testing.T) {
	got, anomaly := Apply[item](nil, domain.ChangeEvent[item]{Kind: domain.ChangeInsert, Record: item{"a", 1}})
	assert.Nil(t, anomaly)
	assert.Equal(t, []item{{"a", 1}}, got)

	got, anomaly = Apply[item](nil, domain.ChangeEvent[item]{Kind: domain.ChangeDelete, Record: item{ID: "a"}})
	assert.NotNil(t, anomaly)
	assert.Empty(t, got)
}

func TestApply_Quests(t *testing.T) {
	quests := []domain.Quest{{ID: "q1", Status: domain.QuestStatusOpen}}
	adv := "adv-1"

	got, anomaly := Apply(quests, domain.ChangeEvent[domain.Quest]{
		Kind:   domain.ChangeUpdate,
		Record: domain.Quest{ID: "q1", Status: domain.QuestStatusInProgress, AdventurerID: &adv},
	})

	require.Nil(t, anomaly)
	assert.Equal(t, domain.QuestStatusInProgress, got[0].Status)
	assert.Equal(t, domain.QuestStatusOpen, quests[0].Status)
}

func TestApplyAndReport(t *testing.T) {
	reporter := &recordingReporter{}

	got := ApplyAndReport(reporter, "messages:q1", collection(),
		domain.ChangeEvent[item]{Kind: domain.ChangeUpdate, Record: item{"missing", 0}})

	assert.Equal(t, collection(), got)
	require.Len(t, reporter.anomalies, 1)
	assert.Equal(t, "messages:q1", reporter.keys[0])
	assert.Equal(t, "missing", reporter.anomalies[0].RecordID)

	// A nil reporter is allowed.
	assert.NotPanics(t, func() {
		ApplyAndReport[item](nil, "k", nil, domain.ChangeEvent[item]{Kind: domain.ChangeDelete, Record: item{ID: "x"}})
	})
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewLogReporter(slog.New(slog.NewTextHandler(&buf, nil)))

	reporter.Report("quests", Anomaly{Kind: domain.ChangeUpdate, RecordID: "q9", Reason: reasonUpdateMissing})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "record_id=q9")
	assert.Contains(t, out, "key=quests")
}
