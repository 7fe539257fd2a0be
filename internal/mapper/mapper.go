// Package mapper implements the pure alarm-to-alert translation: filtering,
// label/annotation synthesis, and identifier sanitisation, joining each
// alarm against the node cache's current snapshot.
package mapper

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pbrane/onms-alertmanager-bridge/internal/config"
	"github.com/pbrane/onms-alertmanager-bridge/internal/events"
)

// NodeLookup resolves an alarm's node-criteria to a cached node. It is the
// narrow capability Mapper needs from nodecache.Cache, not the whole cache.
type NodeLookup interface {
	GetByCriteria(foreignSource, foreignID string, id int64) (*events.Node, bool)
}

// Mapper is a pure function (given its dependencies) from alarm to alert.
type Mapper struct {
	cfg     *config.Config
	lookup  NodeLookup
	include map[string]bool
	exclude map[string]bool
}

// New creates a Mapper bound to the given configuration and node lookup.
// IncludeSeverities is matched against the mapped (output) severity name
// (e.g. "critical", "warning", "info"), not the raw upstream enum.
func New(cfg *config.Config, lookup NodeLookup) *Mapper {
	include := make(map[string]bool, len(cfg.Alert.IncludeSeverities))
	for _, s := range cfg.Alert.IncludeSeverities {
		include[strings.ToLower(s)] = true
	}
	exclude := make(map[string]bool, len(cfg.Alert.ExcludeUEIs))
	for _, u := range cfg.Alert.ExcludeUEIs {
		exclude[u] = true
	}
	return &Mapper{cfg: cfg, lookup: lookup, include: include, exclude: exclude}
}

// Accepts reports whether the alarm passes the configured filter policy.
func (m *Mapper) Accepts(a *events.Alarm) bool {
	if len(m.include) > 0 && !m.include[mapSeverity(a.Severity)] {
		return false
	}
	if m.exclude[a.UEI] {
		return false
	}
	return true
}

// Map translates an alarm record into an Alertmanager alert. If resolve is
// true, endsAt is set to now regardless of the alarm's own type/severity
// (used by the resolve path). Resend-time re-mapping passes false, so a
// firing alarm carries no endsAt; a clear record gets endsAt = now either way.
func (m *Mapper) Map(a *events.Alarm, resolve bool, now time.Time) *events.Alert {
	labels := m.labels(a)
	annotations := m.annotations(a, now)

	alert := &events.Alert{
		Labels:       labels,
		Annotations:  annotations,
		GeneratorURL: fmt.Sprintf("%s/alarm/detail.htm?id=%d", m.cfg.OpennmsBaseURL, a.ID),
	}
	if a.FirstEventTime != 0 {
		alert.StartsAt = msToRFC3339(a.FirstEventTime)
	}
	if resolve || a.IsClear() {
		alert.EndsAt = now.UTC().Format(time.RFC3339)
	}
	return alert
}

var labelSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

func sanitizeLabelKey(key string) string {
	key = labelSanitizer.ReplaceAllString(key, "_")
	key = strings.ToLower(key)
	if key == "" {
		return key
	}
	if key[0] >= '0' && key[0] <= '9' {
		key = "_" + key
	}
	return key
}

var ueiPrefixes = []string{"uei.opennms.org/", "uei."}

// alertname derives the sanitised, opennms_-prefixed alertname from a UEI.
// Unlike label keys, the body's case is preserved after character
// substitution — only disallowed characters are replaced.
func alertname(uei string) string {
	if uei == "" {
		return "opennms_unknown"
	}
	body := uei
	for _, p := range ueiPrefixes {
		if strings.HasPrefix(body, p) {
			body = strings.TrimPrefix(body, p)
			break
		}
	}
	body = labelSanitizer.ReplaceAllString(body, "_")
	if body == "" {
		return "opennms_unknown"
	}
	if body[0] >= '0' && body[0] <= '9' {
		body = "_" + body
	}
	return "opennms_" + body
}

func mapSeverity(s events.Severity) string {
	switch s {
	case events.SeverityCritical:
		return "critical"
	case events.SeverityMajor:
		return "major"
	case events.SeverityMinor:
		return "minor"
	case events.SeverityWarning:
		return "warning"
	case events.SeverityNormal:
		return "info"
	case events.SeverityCleared:
		return "resolved"
	case events.SeverityIndeterminate:
		return "unknown"
	default:
		return "unknown"
	}
}

func (m *Mapper) labels(a *events.Alarm) map[string]string {
	labels := map[string]string{}
	set := func(k, v string) {
		if v == "" {
			return
		}
		labels[sanitizeLabelKey(k)] = v
	}

	set("alertname", alertname(a.UEI))
	set("opennms_alarm_id", strconv.FormatInt(a.ID, 10))
	set("opennms_reduction_key", a.ReductionKey)
	set("severity", mapSeverity(a.Severity))
	set("opennms_alarm_type", string(a.Type))
	set("service", a.Service)
	if a.IPAddress != "" {
		set("instance", a.IPAddress)
		set("ip_address", a.IPAddress)
	}
	if a.IfIndex != 0 {
		set("if_index", strconv.FormatInt(int64(a.IfIndex), 10))
	}
	set("trouble_ticket_id", a.TroubleTicketID)
	set("trouble_ticket_state", a.TroubleTicketState)
	set("managed_object_type", a.ManagedObjectType)
	set("managed_object_instance", a.ManagedObjectInst)

	nc := a.NodeCriteria
	if nc.ID > 0 {
		set("node_id", strconv.FormatInt(nc.ID, 10))
		set("node_label", nc.NodeLabel)
		set("foreign_source", nc.ForeignSource)
		set("foreign_id", nc.ForeignID)
		set("location", nc.Location)
	}

	if node, ok := m.lookup.GetByCriteria(nc.ForeignSource, nc.ForeignID, nc.ID); ok {
		if m.cfg.Alert.LabelMappings.IncludeNodeCategories && len(node.Categories) > 0 {
			set(m.cfg.Alert.LabelMappings.CategoriesLabel, strings.Join(node.Categories, ","))
		}
		if m.cfg.Alert.LabelMappings.IncludeNodeMetadata {
			for k, v := range node.FlatMetadata {
				set(m.cfg.Alert.LabelMappings.NodeMetadataPrefix+k, v)
			}
		}
		set("sys_object_id", node.SysObjectID)
	}

	// Static labels are applied last and DO override computed labels of the
	// same name (documented open-question decision, see SPEC_FULL.md §9).
	for k, v := range m.cfg.Alert.StaticLabels {
		set(k, v)
	}

	return labels
}

func (m *Mapper) annotations(a *events.Alarm, now time.Time) map[string]string {
	annotations := map[string]string{}
	set := func(k, v string) {
		if v == "" {
			return
		}
		annotations[k] = v
	}

	set("summary", a.LogMessage)
	if m.cfg.Alert.AnnotationMappings.IncludeDescription {
		set("description", a.Description)
	}
	if m.cfg.Alert.AnnotationMappings.IncludeOperatorInstructions {
		set("runbook", a.OperatorInstruction)
	}
	set("alarm_count", strconv.FormatInt(int64(a.Count), 10))
	set("opennms_uei", a.UEI)

	if a.AckUser != "" {
		set("acknowledged_by", a.AckUser)
		if a.AckTime != 0 {
			set("acknowledged_at", msToRFC3339(a.AckTime))
		}
	}

	if len(a.RelatedAlarms) > 0 {
		keys := make([]string, 0, len(a.RelatedAlarms))
		for _, r := range a.RelatedAlarms {
			keys = append(keys, r.ReductionKey)
		}
		set("related_alarms", strings.Join(keys, ","))
	}

	if m.cfg.Alert.AnnotationMappings.IncludeNodeDetails {
		nc := a.NodeCriteria
		if node, ok := m.lookup.GetByCriteria(nc.ForeignSource, nc.ForeignID, nc.ID); ok {
			data, err := json.Marshal(node)
			if err != nil {
				slog.Warn("failed to marshal enriched node for annotation",
					"reduction_key", a.ReductionKey, "error", err)
			} else {
				set(m.cfg.Alert.AnnotationMappings.NodeDetailsKey, string(data))
			}
		}
	}

	return annotations
}

func msToRFC3339(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
