package mapper

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/pbrane/onms-alertmanager-bridge/internal/config"
	"github.com/pbrane/onms-alertmanager-bridge/internal/events"
)

var labelKeyPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.OpennmsBaseURL = "http://localhost:8980/opennms"
	cfg.Alert.LabelMappings.IncludeNodeCategories = true
	cfg.Alert.LabelMappings.CategoriesLabel = "opennms_categories"
	cfg.Alert.LabelMappings.IncludeNodeMetadata = true
	cfg.Alert.LabelMappings.NodeMetadataPrefix = "opennms_meta_"
	cfg.Alert.AnnotationMappings.IncludeDescription = true
	cfg.Alert.AnnotationMappings.IncludeOperatorInstructions = true
	return cfg
}

type fakeLookup struct {
	nodes map[string]*events.Node
}

func (f *fakeLookup) GetByCriteria(foreignSource, foreignID string, id int64) (*events.Node, bool) {
	if foreignSource != "" && foreignID != "" {
		n, ok := f.nodes[foreignSource+":"+foreignID]
		return n, ok
	}
	return nil, false
}

func TestMapSingleFire(t *testing.T) {
	cfg := testConfig()
	lookup := &fakeLookup{nodes: map[string]*events.Node{
		"fs:n10": {ID: 10, ForeignSource: "fs", ForeignID: "n10", Label: "router-1", Categories: []string{"core"}},
	}}
	m := New(cfg, lookup)

	alarm := &events.Alarm{
		ID:             1,
		ReductionKey:   "rk1",
		UEI:            "uei.opennms.org/nodes/nodeDown",
		Severity:       events.SeverityMajor,
		Type:           events.AlarmTypeRaise,
		FirstEventTime: 1700000000000,
		NodeCriteria:   events.NodeCriteria{ID: 10, ForeignSource: "fs", ForeignID: "n10", NodeLabel: "router-1"},
	}

	alert := m.Map(alarm, false, time.Now())

	if alert.Labels["alertname"] != "opennms_nodes_nodeDown" {
		t.Errorf("alertname = %q, want opennms_nodes_nodeDown", alert.Labels["alertname"])
	}
	if alert.Labels["severity"] != "major" {
		t.Errorf("severity = %q, want major", alert.Labels["severity"])
	}
	if alert.Labels["node_id"] != "10" {
		t.Errorf("node_id = %q, want 10", alert.Labels["node_id"])
	}
	if alert.Labels["node_label"] != "router-1" {
		t.Errorf("node_label = %q, want router-1", alert.Labels["node_label"])
	}
	if alert.Labels["opennms_categories"] != "core" {
		t.Errorf("opennms_categories = %q, want core", alert.Labels["opennms_categories"])
	}
	if alert.StartsAt != "2023-11-14T22:13:20Z" {
		t.Errorf("startsAt = %q, want 2023-11-14T22:13:20Z", alert.StartsAt)
	}
	if alert.EndsAt != "" {
		t.Errorf("endsAt = %q, want empty for a firing alarm", alert.EndsAt)
	}
}

func TestAlertnamePreservesCaseAfterSanitisation(t *testing.T) {
	tests := []struct {
		uei  string
		want string
	}{
		{"uei.opennms.org/nodes/nodeDown", "opennms_nodes_nodeDown"},
		{"uei.opennms.org/threshold/highThresholdExceeded", "opennms_threshold_highThresholdExceeded"},
		{"", "opennms_unknown"},
		{"uei.custom/weird one!", "opennms_custom_weird_one_"},
	}
	for _, tt := range tests {
		if got := alertname(tt.uei); got != tt.want {
			t.Errorf("alertname(%q) = %q, want %q", tt.uei, got, tt.want)
		}
	}
}

func TestLabelKeysAreLowercasedButAlertnameValueIsNot(t *testing.T) {
	cfg := testConfig()
	m := New(cfg, &fakeLookup{nodes: map[string]*events.Node{}})

	alarm := &events.Alarm{UEI: "uei.opennms.org/nodes/nodeDown", ReductionKey: "rk1"}
	alert := m.Map(alarm, false, time.Now())

	for k := range alert.Labels {
		if !labelKeyPattern.MatchString(k) {
			t.Errorf("label key %q does not match %s", k, labelKeyPattern.String())
		}
	}
	if alert.Labels["alertname"] != "opennms_nodes_nodeDown" {
		t.Errorf("alertname value was lowercased: %q", alert.Labels["alertname"])
	}
}

func TestStaticLabelsOverrideComputedLabels(t *testing.T) {
	cfg := testConfig()
	cfg.Alert.StaticLabels = map[string]string{"severity": "overridden"}
	m := New(cfg, &fakeLookup{nodes: map[string]*events.Node{}})

	alarm := &events.Alarm{UEI: "uei.opennms.org/x", ReductionKey: "rk1", Severity: events.SeverityCritical}
	alert := m.Map(alarm, false, time.Now())

	if alert.Labels["severity"] != "overridden" {
		t.Errorf("severity = %q, want overridden (static labels apply last)", alert.Labels["severity"])
	}
}

func TestAcceptsFilterBySeverity(t *testing.T) {
	cfg := testConfig()
	cfg.Alert.IncludeSeverities = []string{"critical", "major"}
	m := New(cfg, &fakeLookup{nodes: map[string]*events.Node{}})

	if !m.Accepts(&events.Alarm{Severity: events.SeverityMajor}) {
		t.Error("expected major to be accepted")
	}
	if m.Accepts(&events.Alarm{Severity: events.SeverityWarning}) {
		t.Error("expected warning to be rejected (mapped severity not in include set)")
	}
}

func TestAcceptsFilterByExcludedUEI(t *testing.T) {
	cfg := testConfig()
	cfg.Alert.ExcludeUEIs = []string{"uei.opennms.org/noisy"}
	m := New(cfg, &fakeLookup{nodes: map[string]*events.Node{}})

	if m.Accepts(&events.Alarm{UEI: "uei.opennms.org/noisy", Severity: events.SeverityMajor}) {
		t.Error("expected excluded UEI to be rejected")
	}
}

func TestMapIdempotence(t *testing.T) {
	cfg := testConfig()
	lookup := &fakeLookup{nodes: map[string]*events.Node{
		"fs:n10": {ID: 10, ForeignSource: "fs", ForeignID: "n10", Label: "router-1"},
	}}
	m := New(cfg, lookup)
	alarm := &events.Alarm{
		ID: 1, ReductionKey: "rk1", UEI: "uei.opennms.org/nodes/nodeDown",
		Severity: events.SeverityMajor, NodeCriteria: events.NodeCriteria{ID: 10, ForeignSource: "fs", ForeignID: "n10"},
	}
	now := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	a1, err1 := json.Marshal(m.Map(alarm, false, now))
	a2, err2 := json.Marshal(m.Map(alarm, false, now))
	if err1 != nil || err2 != nil {
		t.Fatalf("marshal errors: %v, %v", err1, err2)
	}
	if string(a1) != string(a2) {
		t.Errorf("mapping the same alarm twice produced different JSON:\n%s\n%s", a1, a2)
	}
}

func TestNoNodeCriteriaOmitsNodeLabels(t *testing.T) {
	cfg := testConfig()
	m := New(cfg, &fakeLookup{nodes: map[string]*events.Node{}})

	alarm := &events.Alarm{UEI: "uei.opennms.org/x", ReductionKey: "rk1"}
	alert := m.Map(alarm, false, time.Now())

	if _, ok := alert.Labels["node_id"]; ok {
		t.Error("expected no node_id label when node criteria is absent")
	}
}

func TestEnrichmentMissDoesNotFail(t *testing.T) {
	cfg := testConfig()
	m := New(cfg, &fakeLookup{nodes: map[string]*events.Node{}})

	alarm := &events.Alarm{
		UEI: "uei.opennms.org/x", ReductionKey: "rk1",
		NodeCriteria: events.NodeCriteria{ID: 999, ForeignSource: "fs", ForeignID: "missing"},
	}
	alert := m.Map(alarm, false, time.Now())

	if _, ok := alert.Labels["opennms_categories"]; ok {
		t.Error("expected no enriched labels when node is absent from cache")
	}
	if alert.Labels["node_id"] != "999" {
		t.Errorf("node_id = %q, want 999 (raw node criteria still labeled)", alert.Labels["node_id"])
	}
}
