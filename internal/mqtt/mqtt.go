// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/presence-node/internal/logic"
)

// DefaultTopicPrefix is the topic root when none is configured.
const DefaultTopicPrefix = "presence"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
	EventOffline     = "OFFLINE"
)

// Topics are the per-node topic names.
type Topics struct {
	Output string
	System string
}

// NewTopics builds <prefix>/<nodeID>/output and <prefix>/<nodeID>/system.
func NewTopics(prefix, nodeID string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	base := fmt.Sprintf("%s/%s", prefix, nodeID)
	return Topics{Output: base + "/output", System: base + "/system"}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishTransition sends an output transition to the broker. It is
	// called from the control loop and must not block on the network.
	// Returns error if publishing fails (should not crash the process).
	PublishTransition(entry logic.OutputLogEntry) error

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
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for an output transition.
type Payload struct {
	Presence PresencePayload `json:"presence"`
}

// PresencePayload contains the transition details.
type PresencePayload struct {
	Timestamp string          `json:"timestamp"`
	State     string          `json:"state"`
	Reason    string          `json:"reason"`
	Trigger   *TriggerPayload `json:"trigger,omitempty"`
}

// TriggerPayload identifies the device behind a transition.
type TriggerPayload struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// FormatPayload creates the JSON payload for an output transition.
func FormatPayload(entry logic.OutputLogEntry) ([]byte, error) {
	state := "OFF"
	if entry.OutputState {
		state = "ON"
	}
	payload := Payload{
		Presence: PresencePayload{
			Timestamp: entry.Timestamp.UTC().Format(time.RFC3339),
			State:     state,
			Reason:    entry.Reason,
		},
	}
	if entry.TriggerAddress != "" {
		payload.Presence.Trigger = &TriggerPayload{
			Address: entry.TriggerAddress,
			Name:    entry.TriggerName,
			Comment: entry.TriggerComment,
		}
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

// willPayload is the retained last-will message. It carries no timestamp
// since the broker publishes it on our behalf.
func willPayload() []byte {
	return []byte(`{"system":{"event":"` + EventOffline + `","reason":"MQTT_DISCONNECT"}}`)
}
