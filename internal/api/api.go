// Package api implements the bridge's read-only admin HTTP surface: status,
// active-alarm and node-cache snapshots, a manual resend trigger, and a
// cache-clear endpoint. Routing (router.go) uses http.ServeMux,
// method-dispatch-per-path, CORS middleware, and a timeout-bound http.Server.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pbrane/onms-alertmanager-bridge/internal/alarmtable"
	"github.com/pbrane/onms-alertmanager-bridge/internal/events"
	"github.com/pbrane/onms-alertmanager-bridge/internal/nodecache"
)

// AlertmanagerProbe is the narrow capability the status endpoints need from
// the sink: a liveness probe and a proxied status body.
type AlertmanagerProbe interface {
	Healthy(ctx context.Context) bool
	StatusBody(ctx context.Context) string
}

// Resender is the narrow capability the resend endpoint needs.
type Resender interface {
	Tick()
}

// Options bundles everything the admin surface reads or triggers.
type Options struct {
	Nodes               *nodecache.Cache
	Alarms              *alarmtable.Table
	Alertmanager        AlertmanagerProbe
	Resender            Resender
	AlertmanagerURL     string
	AlertmanagerEnabled bool
	Now                 func() time.Time
}

// Handlers holds the dependencies every endpoint needs.
type Handlers struct {
	opts Options
}

// NewHandlers creates the admin endpoint handlers.
func NewHandlers(opts Options) *Handlers {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handlers{opts: opts}
}

type statusResponse struct {
	Timestamp           string `json:"timestamp"`
	ActiveAlarms        int    `json:"activeAlarms"`
	CachedNodes         int    `json:"cachedNodes"`
	AlertmanagerURL     string `json:"alertmanagerUrl"`
	AlertmanagerEnabled bool   `json:"alertmanagerEnabled"`
	AlertmanagerHealthy bool   `json:"alertmanagerHealthy"`
}

// Status handles GET /api/v1/bridge/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	healthy := false
	if h.opts.AlertmanagerEnabled && h.opts.Alertmanager != nil {
		healthy = h.opts.Alertmanager.Healthy(r.Context())
	}
	writeJSON(w, statusResponse{
		Timestamp:           h.opts.Now().UTC().Format(time.RFC3339),
		ActiveAlarms:        h.opts.Alarms.Size(),
		CachedNodes:         h.opts.Nodes.Size(),
		AlertmanagerURL:     h.opts.AlertmanagerURL,
		AlertmanagerEnabled: h.opts.AlertmanagerEnabled,
		AlertmanagerHealthy: healthy,
	})
}

type alarmSummary struct {
	AlarmID   int64  `json:"alarmId"`
	UEI       string `json:"uei"`
	Severity  string `json:"severity"`
	NodeLabel string `json:"nodeLabel"`
	LastSent  string `json:"lastSent"`
}

// Alarms handles GET /api/v1/bridge/alarms.
func (h *Handlers) Alarms(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]alarmSummary)
	for _, c := range h.opts.Alarms.Iterate() {
		out[c.Alarm.ReductionKey] = alarmSummary{
			AlarmID:   c.Alarm.ID,
			UEI:       c.Alarm.UEI,
			Severity:  string(c.Alarm.Severity),
			NodeLabel: c.Alarm.NodeCriteria.NodeLabel,
			LastSent:  c.LastSent.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, out)
}

type nodeSummary struct {
	ID            int64    `json:"id"`
	Label         string   `json:"label"`
	ForeignSource string   `json:"foreignSource"`
	ForeignID     string   `json:"foreignId"`
	Location      string   `json:"location"`
	Categories    []string `json:"categories"`
	MetadataCount int      `json:"metadataCount"`
}

func toNodeSummary(n *events.Node) nodeSummary {
	return nodeSummary{
		ID:            n.ID,
		Label:         n.Label,
		ForeignSource: n.ForeignSource,
		ForeignID:     n.ForeignID,
		Location:      n.Location,
		Categories:    n.Categories,
		MetadataCount: len(n.FlatMetadata),
	}
}

// Nodes handles GET /api/v1/bridge/nodes.
func (h *Handlers) Nodes(w http.ResponseWriter, r *http.Request) {
	snapshot := h.opts.Nodes.Snapshot()
	out := make([]nodeSummary, 0, len(snapshot))
	for _, n := range snapshot {
		out = append(out, toNodeSummary(n))
	}
	writeJSON(w, out)
}

// NodeByID handles GET /api/v1/bridge/nodes/{id}.
func (h *Handlers) NodeByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/bridge/nodes/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid node id", http.StatusBadRequest)
		return
	}
	node, ok := h.opts.Nodes.GetByID(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, node)
}

// Resend handles POST /api/v1/bridge/alarms/resend.
func (h *Handlers) Resend(w http.ResponseWriter, r *http.Request) {
	h.opts.Resender.Tick()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("resend triggered\n"))
}

// Clear handles POST /api/v1/bridge/clear.
func (h *Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	h.opts.Nodes.Clear()
	h.opts.Alarms.Clear()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("cache cleared\n"))
}

// AlertmanagerStatus handles GET /api/v1/bridge/alertmanager/status.
func (h *Handlers) AlertmanagerStatus(w http.ResponseWriter, r *http.Request) {
	if h.opts.Alertmanager == nil {
		http.Error(w, `{"error": "alertmanager forwarding disabled"}`, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(h.opts.Alertmanager.StatusBody(r.Context())))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
