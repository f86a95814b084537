package wire

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BroadcastEvent is the body published alongside a topic string whenever a
// parameter mutates. The topic itself (instrument name first, then dotted
// sub-module/parameter path) is carried out of band by the transport, not
// inside the body — see transport.Server.Publish.
type BroadcastEvent struct {
	Value     json.RawMessage `json:"value"`
	Unit      string          `json:"unit,omitempty"`
	Timestamp float64         `json:"ts"`

	// Structural marks a synthetic event emitted by the parameter manager's
	// add_parameter/remove_parameter operations rather than a plain set.
	Structural bool `json:"structural,omitempty"`
}

// NewBroadcastEvent builds an event stamped with the current time.
func NewBroadcastEvent(value any, unit string) (BroadcastEvent, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return BroadcastEvent{}, fmt.Errorf("wire: encode broadcast value: %w", err)
	}
	return BroadcastEvent{
		Value:     b,
		Unit:      unit,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}, nil
}

// EncodeBroadcast marshals an event to its wire JSON form.
func EncodeBroadcast(e BroadcastEvent) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("wire: encode broadcast event: %w", err)
	}
	return b, nil
}

// DecodeBroadcast unmarshals a wire payload into an event.
func DecodeBroadcast(payload []byte) (BroadcastEvent, error) {
	var e BroadcastEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return BroadcastEvent{}, fmt.Errorf("wire: decode broadcast event: %w", err)
	}
	return e, nil
}

// TopicMatchesPrefix reports whether topic falls under the given prefix
// filter, matching the standard subscribe-by-prefix behaviour spec.md §4.5
// describes: the empty string matches everything, and "dmm." matches every
// parameter of the instrument named "dmm".
func TopicMatchesPrefix(topic, prefix string) bool {
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(topic, prefix)
}
