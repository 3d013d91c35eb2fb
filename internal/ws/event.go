package ws

import (
	"encoding/json"
	"time"
)

// Event kinds pushed to clients. Mutation kinds are invalidation
// hints: clients re-fetch state rather than applying deltas.
const (
	EventConnected         = "connected"
	EventPong              = "pong"
	EventMedicationCreated = "medication_created"
	EventMedicationUpdated = "medication_updated"
	EventMedicationDeleted = "medication_deleted"
	EventDoseRecorded      = "dose_recorded"
	EventReminderDue       = "reminder_due"
	EventSystemNotice      = "system_notice"
)

type Event struct {
	Type      string `json:"type"`
	UID       string `json:"uid,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func NewEvent(kind string, uid string, data any) Event {
	return Event{
		Type:      kind,
		UID:       uid,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
