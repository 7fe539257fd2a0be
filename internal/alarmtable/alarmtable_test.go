package alarmtable

import (
	"testing"
	"time"

	"github.com/pbrane/onms-alertmanager-bridge/internal/events"
)

type fakeMapper struct {
	accept bool
}

func (f *fakeMapper) Accepts(a *events.Alarm) bool { return f.accept }

func (f *fakeMapper) Map(a *events.Alarm, resolve bool, now time.Time) *events.Alert {
	alert := &events.Alert{
		Labels: map[string]string{
			"alertname":             "opennms_test",
			"opennms_reduction_key": a.ReductionKey,
		},
	}
	if resolve {
		alert.EndsAt = now.UTC().Format(time.RFC3339)
	}
	return alert
}

type fakeSink struct {
	batches [][]*events.Alert
}

func (f *fakeSink) Send(alerts []*events.Alert) {
	f.batches = append(f.batches, alerts)
}

func newTestTable(accept bool) (*Table, *fakeSink) {
	sink := &fakeSink{}
	table := New(&fakeMapper{accept: accept}, sink)
	return table, sink
}

func TestUpsertAcceptedAlarm(t *testing.T) {
	table, sink := newTestTable(true)
	alarm := &events.Alarm{ReductionKey: "rk1", Severity: events.SeverityMajor, Type: events.AlarmTypeRaise}

	table.Upsert(alarm)

	if table.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", table.Size())
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 1 {
		t.Fatalf("expected exactly one batch of one alert, got %v", sink.batches)
	}
}

func TestUpsertRejectedAlarmIsDropped(t *testing.T) {
	table, sink := newTestTable(false)
	alarm := &events.Alarm{ReductionKey: "rk1", Severity: events.SeverityMajor, Type: events.AlarmTypeRaise}

	table.Upsert(alarm)

	if table.Size() != 0 {
		t.Errorf("Size() = %d, want 0 (filtered)", table.Size())
	}
	if len(sink.batches) != 0 {
		t.Errorf("expected no send for a filtered alarm, got %v", sink.batches)
	}
}

func TestUpsertClearResolvesActiveEntry(t *testing.T) {
	table, sink := newTestTable(true)
	raise := &events.Alarm{ReductionKey: "rk1", Severity: events.SeverityMajor, Type: events.AlarmTypeRaise}
	table.Upsert(raise)

	clear := &events.Alarm{ReductionKey: "rk1", Severity: events.SeverityCleared, Type: events.AlarmTypeClear}
	table.Upsert(clear)

	if table.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after resolve", table.Size())
	}
	if len(sink.batches) != 2 {
		t.Fatalf("expected raise send + resolve send, got %d batches", len(sink.batches))
	}
	resolved := sink.batches[1][0]
	if resolved.EndsAt == "" {
		t.Error("expected resolve alert to carry endsAt")
	}
	if resolved.Labels["alertname"] != "opennms_test" {
		t.Errorf("expected the real mapped alert for an active->absent resolve, got %v", resolved.Labels)
	}
}

func TestResolveAbsentToAbsentUsesSyntheticAlert(t *testing.T) {
	table, sink := newTestTable(true)
	clear := &events.Alarm{ReductionKey: "rkX", Severity: events.SeverityCleared, Type: events.AlarmTypeClear}

	table.Upsert(clear)

	if table.Size() != 0 {
		t.Errorf("Size() = %d, want 0", table.Size())
	}
	if len(sink.batches) != 1 {
		t.Fatalf("expected one resolve batch, got %d", len(sink.batches))
	}
	alert := sink.batches[0][0]
	if alert.Labels["alertname"] != "opennms_alarm_deleted" {
		t.Errorf("alertname = %q, want opennms_alarm_deleted", alert.Labels["alertname"])
	}
	if alert.Labels["opennms_reduction_key"] != "rkX" {
		t.Errorf("opennms_reduction_key = %q, want rkX", alert.Labels["opennms_reduction_key"])
	}
}

func TestOnTombstoneKnownEntryUsesStoredAlert(t *testing.T) {
	table, sink := newTestTable(true)
	raise := &events.Alarm{ReductionKey: "rk1", Severity: events.SeverityMajor, Type: events.AlarmTypeRaise}
	table.Upsert(raise)

	table.OnTombstone("rk1")

	if table.Size() != 0 {
		t.Errorf("Size() = %d, want 0", table.Size())
	}
	last := sink.batches[len(sink.batches)-1][0]
	if last.Labels["alertname"] != "opennms_test" {
		t.Errorf("expected the stored alert to be resent on tombstone, got %v", last.Labels)
	}
	if last.EndsAt == "" {
		t.Error("expected endsAt to be set on the tombstone resolve")
	}
}

func TestOnTombstoneUnknownKeyUsesSyntheticAlert(t *testing.T) {
	table, sink := newTestTable(true)

	table.OnTombstone("never-seen")

	if len(sink.batches) != 1 {
		t.Fatalf("expected one resolve batch, got %d", len(sink.batches))
	}
	alert := sink.batches[0][0]
	if alert.Labels["alertname"] != "opennms_alarm_deleted" {
		t.Errorf("alertname = %q, want opennms_alarm_deleted", alert.Labels["alertname"])
	}
}

// TestResolveIdempotence exercises property P6: repeated resolves/tombstones
// for the same reduction key never grow the table and always produce a
// well-formed resolve.
func TestResolveIdempotence(t *testing.T) {
	table, sink := newTestTable(true)

	for i := 0; i < 3; i++ {
		table.OnTombstone("rkRepeat")
	}

	if table.Size() != 0 {
		t.Errorf("Size() = %d, want 0", table.Size())
	}
	if len(sink.batches) != 3 {
		t.Fatalf("expected 3 resolve sends, got %d", len(sink.batches))
	}
	for _, b := range sink.batches {
		if b[0].Labels["alertname"] == "" {
			t.Error("resolve alert missing alertname")
		}
	}
}

func TestIterateReturnsSnapshot(t *testing.T) {
	table, _ := newTestTable(true)
	table.Upsert(&events.Alarm{ReductionKey: "rk1", Severity: events.SeverityMajor, Type: events.AlarmTypeRaise})
	table.Upsert(&events.Alarm{ReductionKey: "rk2", Severity: events.SeverityMajor, Type: events.AlarmTypeRaise})

	entries := table.Iterate()
	if len(entries) != 2 {
		t.Fatalf("Iterate() returned %d entries, want 2", len(entries))
	}
}

func TestUpdateLastSent(t *testing.T) {
	table, _ := newTestTable(true)
	table.Upsert(&events.Alarm{ReductionKey: "rk1", Severity: events.SeverityMajor, Type: events.AlarmTypeRaise})

	at := time.Now().Add(time.Hour)
	table.UpdateLastSent([]string{"rk1"}, at)

	for _, e := range table.Iterate() {
		if !e.LastSent.Equal(at) {
			t.Errorf("LastSent = %v, want %v", e.LastSent, at)
		}
	}
}

func TestClearEmptiesTableWithoutSends(t *testing.T) {
	table, sink := newTestTable(true)
	table.Upsert(&events.Alarm{ReductionKey: "rk1", Severity: events.SeverityMajor, Type: events.AlarmTypeRaise})
	sendsBefore := len(sink.batches)

	table.Clear()

	if table.Size() != 0 {
		t.Errorf("Size() = %d, want 0", table.Size())
	}
	if len(sink.batches) != sendsBefore {
		t.Error("Clear() should not emit any resolve sends")
	}
}
