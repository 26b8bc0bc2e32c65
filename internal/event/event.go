// event.go — Recording event type and size estimation.
// The pipeline treats event payloads as opaque; only the timestamp is
// needed for ordering and segment-window checks.
package event

import "encoding/json"

// Well-known event types. Recording payloads carry many more; the pipeline
// itself only ever synthesizes custom events (breadcrumbs, markers).
const (
	TypeFullSnapshot = 2
	TypeCustom       = 5
)

// Event is one timestamped recording event. Data is opaque to the buffer.
type Event struct {
	Timestamp int64           `json:"timestamp"` // unix ms
	Type      int             `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SizeEstimator reports the approximate in-memory/wire size of an event in
// bytes. Pluggable so callers are not tied to JSON length as the proxy for
// memory use.
type SizeEstimator func(Event) int

// EstimateJSONSize is the default estimator: the serialized JSON length.
func EstimateJSONSize(e Event) int {
	b, err := json.Marshal(e)
	if err != nil {
		return 0
	}
	return len(b)
}

// Serialize encodes a batch of events as one JSON array, the unit a segment
// is compressed and shipped as.
func Serialize(events []Event) ([]byte, error) {
	if len(events) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(events)
}
