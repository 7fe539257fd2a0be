// Package events defines the record and wire types that flow through the bridge:
// nodes and alarms consumed from Kafka, and the Alertmanager alert produced from them.
package events

import "strconv"

// Severity mirrors the OpenNMS alarm severity scale.
type Severity string

const (
	SeverityCritical      Severity = "CRITICAL"
	SeverityMajor         Severity = "MAJOR"
	SeverityMinor         Severity = "MINOR"
	SeverityWarning       Severity = "WARNING"
	SeverityNormal        Severity = "NORMAL"
	SeverityCleared       Severity = "CLEARED"
	SeverityIndeterminate Severity = "INDETERMINATE"
)

// AlarmType distinguishes a raised alarm from its clear.
type AlarmType string

const (
	AlarmTypeRaise AlarmType = "RAISE"
	AlarmTypeClear AlarmType = "CLEAR"
)

// IPInterface is one of a node's IP-layer interfaces.
type IPInterface struct {
	ID          int64    `json:"id"`
	Address     string   `json:"address"`
	IfIndex     int32    `json:"if_index"`
	PrimaryType string   `json:"primary_type"`
	Services    []string `json:"services,omitempty"`
}

// SNMPInterface is one of a node's SNMP-layer interfaces.
type SNMPInterface struct {
	ID            int64  `json:"id"`
	IfIndex       int32  `json:"if_index"`
	Descr         string `json:"descr"`
	Type          int32  `json:"type"`
	Name          string `json:"name"`
	Speed         int64  `json:"speed"`
	PhysAddr      string `json:"phys_addr"`
	AdminStatus   int32  `json:"admin_status"`
	OperStatus    int32  `json:"oper_status"`
	Alias         string `json:"alias"`
}

// Node is an immutable snapshot of a monitored node's inventory record.
type Node struct {
	ID              int64                        `json:"id"`
	ForeignSource   string                        `json:"foreign_source"`
	ForeignID       string                        `json:"foreign_id"`
	Location        string                        `json:"location"`
	Label           string                        `json:"label"`
	CreatedAt       int64                         `json:"created_at"`
	SysContact      string                        `json:"sys_contact"`
	SysDescription  string                        `json:"sys_description"`
	SysObjectID     string                        `json:"sys_object_id"`
	Categories      []string                      `json:"categories,omitempty"`
	IPInterfaces    []IPInterface                 `json:"ip_interfaces,omitempty"`
	SNMPInterfaces  []SNMPInterface               `json:"snmp_interfaces,omitempty"`
	Metadata        map[string]map[string]string  `json:"metadata,omitempty"`
	FlatMetadata    map[string]string              `json:"flat_metadata,omitempty"`
}

// Key returns the node's cache identity: foreignSource:foreignId when both
// are set, otherwise the decimal node id.
func (n *Node) Key() string {
	if n.ForeignSource != "" && n.ForeignID != "" {
		return n.ForeignSource + ":" + n.ForeignID
	}
	return strconv.FormatInt(n.ID, 10)
}

// WithFlatMetadata returns a copy of n with FlatMetadata derived from Metadata
// ("context:key" -> value). Call this once after decoding, mirroring the
// precomputed flat mapping the spec calls for.
func (n *Node) WithFlatMetadata() *Node {
	out := *n
	flat := make(map[string]string)
	for ctx, kv := range n.Metadata {
		for k, v := range kv {
			flat[ctx+":"+k] = v
		}
	}
	out.FlatMetadata = flat
	return &out
}

// NodeCriteria is an alarm's reference to the node it concerns.
type NodeCriteria struct {
	ID            int64  `json:"id"`
	ForeignSource string `json:"foreign_source"`
	ForeignID     string `json:"foreign_id"`
	NodeLabel     string `json:"node_label"`
	Location      string `json:"location"`
}

// RelatedAlarm is a brief summary of an alarm correlated with another.
type RelatedAlarm struct {
	ReductionKey string `json:"reduction_key"`
}

// Alarm is a single fault record from the alarms stream.
type Alarm struct {
	ID                  int64          `json:"id"`
	ReductionKey        string         `json:"reduction_key"`
	UEI                 string         `json:"uei"`
	Severity            Severity       `json:"severity"`
	Type                AlarmType      `json:"type"`
	FirstEventTime      int64          `json:"first_event_time_ms"`
	Service             string         `json:"service,omitempty"`
	IPAddress           string         `json:"ip_address,omitempty"`
	IfIndex             int32          `json:"if_index,omitempty"`
	TroubleTicketID     string         `json:"trouble_ticket_id,omitempty"`
	TroubleTicketState  string         `json:"trouble_ticket_state,omitempty"`
	ManagedObjectType   string         `json:"managed_object_type,omitempty"`
	ManagedObjectInst   string         `json:"managed_object_instance,omitempty"`
	LogMessage          string         `json:"log_message,omitempty"`
	Description         string         `json:"description,omitempty"`
	OperatorInstruction string         `json:"operator_instruction,omitempty"`
	Count               int32          `json:"count"`
	AckUser             string         `json:"ack_user,omitempty"`
	AckTime             int64          `json:"ack_time_ms,omitempty"`
	NodeCriteria        NodeCriteria   `json:"node_criteria"`
	RelatedAlarms       []RelatedAlarm `json:"related_alarms,omitempty"`
}

// IsClear reports whether this record should resolve its reduction key:
// either the type is explicitly CLEAR or the severity is CLEARED.
func (a *Alarm) IsClear() bool {
	return a.Type == AlarmTypeClear || a.Severity == SeverityCleared
}

// Alert is a single Alertmanager v2 alert object.
type Alert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	StartsAt     string            `json:"startsAt,omitempty"`
	EndsAt       string            `json:"endsAt,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
}
