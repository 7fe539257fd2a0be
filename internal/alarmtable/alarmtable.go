// Package alarmtable holds the active-alarm state machine: one entry per
// reduction key for every alarm that is currently raised, re-mapped and
// re-sent on every resend tick, and resolved on clear or tombstone. Records
// rejected by the filter policy are dropped without touching the table.
package alarmtable

import (
	"sync"
	"time"

	"github.com/pbrane/onms-alertmanager-bridge/internal/events"
)

// Mapper is the narrow capability Table needs to turn an alarm into an
// alert: Map and Accepts of mapper.Mapper from internal/mapper.
type Mapper interface {
	Accepts(a *events.Alarm) bool
	Map(a *events.Alarm, resolve bool, now time.Time) *events.Alert
}

// Sink is the narrow capability Table needs to emit alerts: sink.Sink's Send.
type Sink interface {
	Send(alerts []*events.Alert)
}

// CachedAlarm is the tuple held per reduction key: the last-seen alarm
// record, its last mapped alert, and when it was last sent.
type CachedAlarm struct {
	Alarm    *events.Alarm
	Alert    *events.Alert
	LastSent time.Time
}

// Table is the concurrent active-alarm store keyed by reduction key.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*CachedAlarm
	mapper  Mapper
	sink    Sink
	now     func() time.Time
}

// New creates an empty active-alarm table bound to a mapper and sink.
func New(mapper Mapper, sink Sink) *Table {
	return &Table{
		entries: make(map[string]*CachedAlarm),
		mapper:  mapper,
		sink:    sink,
		now:     time.Now,
	}
}

// Upsert applies the filter policy and, if accepted, (re)maps and stores
// the alarm and enqueues one immediate send. Clear-type or cleared-severity
// records short-circuit into Resolve.
func (t *Table) Upsert(a *events.Alarm) {
	if a.IsClear() {
		t.Resolve(a.ReductionKey, a)
		return
	}
	if !t.mapper.Accepts(a) {
		return
	}

	now := t.now()
	alert := t.mapper.Map(a, false, now)

	t.mu.Lock()
	t.entries[a.ReductionKey] = &CachedAlarm{Alarm: a, Alert: alert, LastSent: now}
	t.mu.Unlock()

	t.sink.Send([]*events.Alert{alert})
}

// Resolve removes the entry for reductionKey (if any) and always emits a
// resolve alert — the aggregator tolerates idempotent resolves, so a miss
// still produces a send. When an entry existed (active -> absent), the
// resolve is re-mapped from the clear record so its labels stay accurate.
// When no entry existed (absent -> absent, e.g. a clear for a reduction key
// whose fire we never saw), a synthetic opennms_alarm_deleted alert is sent
// instead of trusting an unmapped record.
func (t *Table) Resolve(reductionKey string, a *events.Alarm) {
	t.mu.Lock()
	_, existed := t.entries[reductionKey]
	delete(t.entries, reductionKey)
	t.mu.Unlock()

	now := t.now()
	if existed && a != nil {
		alert := t.mapper.Map(a, true, now)
		t.sink.Send([]*events.Alert{alert})
		return
	}
	t.sink.Send([]*events.Alert{deletedAlarmAlert(reductionKey, now)})
}

// OnTombstone removes the entry for reductionKey and, if one existed,
// resolves using the previously cached alert (the raw record is gone).
// If no entry existed, it still emits a resolve using a synthetic alert.
func (t *Table) OnTombstone(reductionKey string) {
	t.mu.Lock()
	cached, ok := t.entries[reductionKey]
	delete(t.entries, reductionKey)
	t.mu.Unlock()

	now := t.now()
	if !ok {
		t.sink.Send([]*events.Alert{deletedAlarmAlert(reductionKey, now)})
		return
	}
	resolved := *cached.Alert
	resolved.EndsAt = now.UTC().Format(time.RFC3339)
	t.sink.Send([]*events.Alert{&resolved})
}

// Iterate returns a snapshot copy of every active entry, for the resend
// scheduler to re-map and re-send without holding the table lock.
func (t *Table) Iterate() []*CachedAlarm {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*CachedAlarm, 0, len(t.entries))
	for _, c := range t.entries {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// UpdateLastSent stamps the last-sent time of each listed entry that is
// still present to at, used by the resend scheduler after it hands the
// batch to the sink (whatever the outcome of that send).
func (t *Table) UpdateLastSent(reductionKeys []string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range reductionKeys {
		if c, ok := t.entries[k]; ok {
			c.LastSent = at
		}
	}
}

// Size returns the number of active entries.
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear empties the table without emitting resolves (used by the admin
// cache-clear endpoint, matching the original bridge's debug/testing reset).
func (t *Table) Clear() {
	t.mu.Lock()
	t.entries = make(map[string]*CachedAlarm)
	t.mu.Unlock()
}

func deletedAlarmAlert(reductionKey string, now time.Time) *events.Alert {
	return &events.Alert{
		Labels: map[string]string{
			"alertname":             "opennms_alarm_deleted",
			"opennms_reduction_key": reductionKey,
		},
		EndsAt: now.UTC().Format(time.RFC3339),
	}
}
