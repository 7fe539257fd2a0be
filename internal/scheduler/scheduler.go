// Package scheduler drives the periodic resend of every active alarm,
// keeping Alertmanager from garbage-collecting alerts the source never
// re-announces. Built on github.com/robfig/cron/v3's fixed-cadence
// scheduler rather than a bare time.Ticker, giving the same "@every"
// semantics with a library already used elsewhere in this pack for
// recurring jobs.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pbrane/onms-alertmanager-bridge/internal/alarmtable"
	"github.com/pbrane/onms-alertmanager-bridge/internal/events"
)

// Mapper is the narrow capability Resender needs to re-derive an alert.
type Mapper interface {
	Map(a *events.Alarm, resolve bool, now time.Time) *events.Alert
}

// Sink is the narrow capability Resender needs to emit a batch.
type Sink interface {
	Send(alerts []*events.Alert)
}

// Table is the narrow capability Resender needs from ActiveAlarmTable:
// Iterate for the snapshot, UpdateLastSent after the batch hand-off.
type Table interface {
	Iterate() []*alarmtable.CachedAlarm
	UpdateLastSent(reductionKeys []string, at time.Time)
}

// Resender runs the resend tick on a cron schedule.
type Resender struct {
	cron   *cron.Cron
	entry  cron.EntryID
	table  Table
	mapper Mapper
	sink   Sink
	now    func() time.Time
}

// New creates a Resender that fires every interval. interval must be > 0;
// this is validated at configuration-load time (config.Validate), not here.
func New(interval time.Duration, table Table, mapper Mapper, sink Sink) *Resender {
	r := &Resender{
		cron:   cron.New(),
		table:  table,
		mapper: mapper,
		sink:   sink,
		now:    time.Now,
	}
	id, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), r.Tick)
	if err != nil {
		// interval is always a valid duration string produced by time.Duration's
		// own Stringer, so AddFunc cannot fail here in practice.
		panic(fmt.Sprintf("scheduler: invalid resend interval %s: %v", interval, err))
	}
	r.entry = id
	return r
}

// Start begins the cron scheduler. It returns immediately; ticks run on the
// cron package's own goroutine until Stop is called.
func (r *Resender) Start() {
	slog.Info("starting resend scheduler", "entry_id", r.entry)
	r.cron.Start()
}

// Stop lets any in-flight tick complete and then halts future ticks.
func (r *Resender) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	slog.Info("resend scheduler stopped")
}

// Tick snapshots the active-alarm table, re-maps every entry, and hands the
// batch to the sink as one send. If a tick begins while a previous send is
// still in flight, it still snapshots and sends its own batch — no attempt
// is made to coalesce or skip overlapping ticks.
func (r *Resender) Tick() {
	now := r.now()
	entries := r.table.Iterate()
	if len(entries) == 0 {
		return
	}

	alerts := make([]*events.Alert, 0, len(entries))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		alerts = append(alerts, r.mapper.Map(e.Alarm, false, now))
		keys = append(keys, e.Alarm.ReductionKey)
	}

	r.sink.Send(alerts)
	r.table.UpdateLastSent(keys, now)
	slog.Debug("resend tick complete", "count", len(alerts))
}
