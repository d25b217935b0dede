package alert

import (
	"log"
	"time"
)

const eventBuffer = 16

// EventType names a session transition.
type EventType string

const (
	EventAlert     EventType = "ALERT"
	EventPicked    EventType = "PICKED"
	EventSkipped   EventType = "SKIPPED"
	EventLidClosed EventType = "LID_CLOSED"
	EventDismissed EventType = "DISMISSED"
)

// Event describes one session transition for telemetry and history.
type Event struct {
	Type   EventType
	DoseID string
	Name   string
	Dose   string
	Time   string
	Slot   int
	At     time.Time
}

// Events returns the event stream. Events are dropped, with a log line, when
// nobody keeps up with the stream.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

func (c *Coordinator) emit(t EventType, s *Session, now time.Time) {
	ev := Event{
		Type:   t,
		DoseID: s.DoseID,
		Name:   s.Name,
		Dose:   s.Dose,
		Time:   s.Time,
		Slot:   s.Slot,
		At:     now,
	}
	select {
	case c.events <- ev:
	default:
		log.Printf("alert: event buffer full; dropping %s for %q", t, s.Name)
	}
}
