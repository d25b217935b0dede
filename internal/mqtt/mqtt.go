// Package mqtt mirrors dispenser activity to an MQTT broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/dose-dispenser/internal/alert"
)

const topicRoot = "dispenser/"

// Topic returns the dose event topic for a device.
func Topic(deviceID string) string {
	return topicRoot + deviceID + "/events"
}

// TopicSystem returns the lifecycle topic for a device.
func TopicSystem(deviceID string) string {
	return topicRoot + deviceID + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a dose event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event alert.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the message body for a dose event.
type Payload struct {
	Dose DosePayload `json:"dose"`
}

// DosePayload contains the dose event details.
type DosePayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	DoseID    string `json:"dose_id,omitempty"`
	Name      string `json:"name"`
	Dose      string `json:"dose,omitempty"`
	Time      string `json:"time,omitempty"`
	Slot      int    `json:"slot"`
}

// FormatPayload creates the JSON payload for a dose event.
func FormatPayload(event alert.Event) ([]byte, error) {
	payload := Payload{
		Dose: DosePayload{
			Timestamp: event.At.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			DoseID:    event.DoseID,
			Name:      event.Name,
			Dose:      event.Dose,
			Time:      event.Time,
			Slot:      event.Slot,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
