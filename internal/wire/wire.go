// Package wire provides this repository's own concrete decoders for the
// alarms and nodes Kafka streams. Wire decoding of the upstream record
// format is an external collaborator (see SPEC_FULL.md §3.1); these
// decoders exist so the binary has something real to consume, using plain
// JSON-over-Kafka, the same convention the teacher pack uses for
// events.AlertNew/events.AlertMatched. A different wire format can be
// substituted by passing a different decode func to internal/consumer.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/pbrane/onms-alertmanager-bridge/internal/events"
)

// DecodeAlarm unmarshals a JSON-encoded alarm record.
func DecodeAlarm(data []byte) (*events.Alarm, error) {
	var a events.Alarm
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshalling alarm: %w", err)
	}
	return &a, nil
}

// DecodeNode unmarshals a JSON-encoded node record and derives its flat
// metadata view once, up front, rather than on every label lookup.
func DecodeNode(data []byte) (*events.Node, error) {
	var n events.Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshalling node: %w", err)
	}
	return n.WithFlatMetadata(), nil
}
