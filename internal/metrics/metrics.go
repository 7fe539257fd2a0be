// Package metrics is a minimal atomic counter collector for the bridge's
// observable metrics, with an optional periodic JSON snapshot write to Redis for cross-process
// dashboard consumption.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Collector tracks the counters and gauges named in the bridge's external
// interface contract. All methods are safe for concurrent use.
type Collector struct {
	alarmsReceived    atomic.Uint64
	alarmsParsed      atomic.Uint64
	alarmsParseErrors atomic.Uint64
	alarmsTombstones  atomic.Uint64

	nodesReceived    atomic.Uint64
	nodesParsed      atomic.Uint64
	nodesParseErrors atomic.Uint64
	nodesTombstones  atomic.Uint64

	alertsSent   atomic.Uint64
	alertsFailed atomic.Uint64

	mu              sync.Mutex
	sendLatencySum  time.Duration
	sendLatencyObs  uint64

	activeAlarmsGauge  atomic.Int64
	nodeCacheSizeGauge atomic.Int64

	redis      *redis.Client
	redisKey   string
}

// New creates a Collector. redisClient may be nil to disable snapshot export.
func New(redisClient *redis.Client) *Collector {
	return &Collector{redis: redisClient, redisKey: "onms-bridge:metrics"}
}

func (c *Collector) RecordAlarmReceived()    { c.alarmsReceived.Add(1) }
func (c *Collector) RecordAlarmParsed()      { c.alarmsParsed.Add(1) }
func (c *Collector) RecordAlarmParseError()  { c.alarmsParseErrors.Add(1) }
func (c *Collector) RecordAlarmTombstone()   { c.alarmsTombstones.Add(1) }

func (c *Collector) RecordNodeReceived()   { c.nodesReceived.Add(1) }
func (c *Collector) RecordNodeParsed()     { c.nodesParsed.Add(1) }
func (c *Collector) RecordNodeParseError() { c.nodesParseErrors.Add(1) }
func (c *Collector) RecordNodeTombstone()  { c.nodesTombstones.Add(1) }

// RecordAlertsSent implements sink.Metrics.
func (c *Collector) RecordAlertsSent(n int) { c.alertsSent.Add(uint64(n)) }

// RecordAlertsFailed implements sink.Metrics.
func (c *Collector) RecordAlertsFailed(n int) { c.alertsFailed.Add(uint64(n)) }

// RecordAlertSendLatency implements sink.Metrics.
func (c *Collector) RecordAlertSendLatency(d time.Duration) {
	c.mu.Lock()
	c.sendLatencySum += d
	c.sendLatencyObs++
	c.mu.Unlock()
}

// SetActiveAlarms sets the active-alarm gauge (ActiveAlarmTable.Size()).
func (c *Collector) SetActiveAlarms(n int) { c.activeAlarmsGauge.Store(int64(n)) }

// SetNodeCacheSize sets the node-cache-size gauge (NodeCache.Size()).
func (c *Collector) SetNodeCacheSize(n int) { c.nodeCacheSizeGauge.Store(int64(n)) }

// Snapshot is the JSON-serializable view of every counter and gauge.
type Snapshot struct {
	AlarmsReceived      uint64        `json:"alarms_received"`
	AlarmsParsed        uint64        `json:"alarms_parsed"`
	AlarmsParseErrors   uint64        `json:"alarms_parse_errors"`
	AlarmsTombstones    uint64        `json:"alarms_tombstones"`
	NodesReceived       uint64        `json:"nodes_received"`
	NodesParsed         uint64        `json:"nodes_parsed"`
	NodesParseErrors    uint64        `json:"nodes_parse_errors"`
	NodesTombstones     uint64        `json:"nodes_tombstones"`
	AlertsSent          uint64        `json:"alerts_sent"`
	AlertsFailed        uint64        `json:"alerts_failed"`
	AlertSendLatencyAvg time.Duration `json:"alert_send_latency_avg"`
	ActiveAlarms        int64         `json:"active_alarms"`
	NodeCacheSize       int64         `json:"node_cache_size"`
}

// GetSnapshot returns the current value of every counter and gauge.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.Lock()
	sum, obs := c.sendLatencySum, c.sendLatencyObs
	c.mu.Unlock()

	var avg time.Duration
	if obs > 0 {
		avg = sum / time.Duration(obs)
	}

	return Snapshot{
		AlarmsReceived:      c.alarmsReceived.Load(),
		AlarmsParsed:        c.alarmsParsed.Load(),
		AlarmsParseErrors:   c.alarmsParseErrors.Load(),
		AlarmsTombstones:    c.alarmsTombstones.Load(),
		NodesReceived:       c.nodesReceived.Load(),
		NodesParsed:         c.nodesParsed.Load(),
		NodesParseErrors:    c.nodesParseErrors.Load(),
		NodesTombstones:     c.nodesTombstones.Load(),
		AlertsSent:          c.alertsSent.Load(),
		AlertsFailed:        c.alertsFailed.Load(),
		AlertSendLatencyAvg: avg,
		ActiveAlarms:        c.activeAlarmsGauge.Load(),
		NodeCacheSize:       c.nodeCacheSizeGauge.Load(),
	}
}

// RunSnapshotLoop periodically writes the snapshot to Redis as JSON until
// ctx is cancelled. A nil Redis client makes this a no-op loop that simply
// waits for cancellation, so callers can always start it unconditionally.
func (c *Collector) RunSnapshotLoop(ctx context.Context, interval time.Duration) {
	if c.redis == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeSnapshot(ctx)
		}
	}
}

func (c *Collector) writeSnapshot(ctx context.Context) {
	data, err := json.Marshal(c.GetSnapshot())
	if err != nil {
		slog.Error("failed to marshal metrics snapshot", "error", err)
		return
	}
	if err := c.redis.Set(ctx, c.redisKey, data, 0).Err(); err != nil {
		slog.Warn("failed to write metrics snapshot to redis", "error", err)
	}
}
