// Package publish announces emitted harmonic patterns on a Redis pub/sub bus.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"harmonic-scanner/internal/models"
)

// EventPatternDetected is published once per emitted pattern.
const EventPatternDetected = "harmonic_pattern_detected"

// Event is the envelope every message on the bus carries.
type Event struct {
	EventType     string          `json:"event_type"`
	Payload       models.Emission `json:"payload"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
}

// NewPatternEvent wraps an emission. The pattern ID doubles as correlation ID so
// consumers can join the event to stored rows.
func NewPatternEvent(em models.Emission, source string, now time.Time) *Event {
	return &Event{
		EventType:     EventPatternDetected,
		Payload:       em,
		Source:        source,
		Timestamp:     now.UTC(),
		CorrelationID: em.Pattern.ID,
	}
}

// Marshal serializes an event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes an event from JSON bytes.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshalling event JSON: %w", err)
	}
	if e.EventType == "" {
		return nil, fmt.Errorf("event without event_type")
	}
	return &e, nil
}
