package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/presence-node/internal/scan"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	NodeID        string       `json:"node_id"`
	Output        string       `json:"output"`
	Scanning      bool         `json:"scanning"`
	ScanState     string       `json:"scan_state"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Devices       DevicesJSON  `json:"devices"`
	Radio         RadioJSON    `json:"radio"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// DevicesJSON is the JSON representation of the engine counters.
type DevicesJSON struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Present      int `json:"present"`
	Known        int `json:"known"`
	EverSeen     int `json:"ever_seen"`
	Observations int `json:"observations"`
	Evictions    int `json:"evictions"`
	LogEntries   int `json:"log_entries"`
}

// RadioJSON is the JSON representation of the scan controller counters.
type RadioJSON struct {
	Cycles      int    `json:"cycles"`
	Completed   int    `json:"completed"`
	Failures    int    `json:"failures"`
	Resets      int    `json:"resets"`
	Dropped     uint64 `json:"dropped"`
	LastSuccess string `json:"last_success,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	LoopMs      int64  `json:"loop_ms"`
	ScanMs      int64  `json:"scan_ms"`
	CycleMs     int64  `json:"cycle_ms"`
	TimeoutMs   int64  `json:"timeout_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Radio       string `json:"radio"`
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		NodeID:        snap.Config.NodeID,
		Output:        onOff(snap.Engine.OutputOn),
		Scanning:      snap.Scan.State == scan.Scanning,
		ScanState:     snap.Scan.State.String(),
		Ready:         snap.Updated,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Devices: DevicesJSON{
			Total:        snap.Engine.Devices,
			Active:       snap.Engine.Active,
			Present:      snap.Engine.Present,
			Known:        snap.Engine.Known,
			EverSeen:     snap.Engine.EverSeen,
			Observations: snap.Engine.Observations,
			Evictions:    snap.Engine.Evictions,
			LogEntries:   snap.Engine.LogTotal,
		},
		Radio: RadioJSON{
			Cycles:    snap.Scan.Cycles,
			Completed: snap.Scan.Completed,
			Failures:  snap.Scan.Failures,
			Resets:    snap.Scan.Resets,
			Dropped:   snap.Scan.Dropped,
		},
		Config: ConfigJSON{
			LoopMs:      snap.Config.LoopMs,
			ScanMs:      snap.Config.ScanMs,
			CycleMs:     snap.Config.CycleMs,
			TimeoutMs:   snap.Config.TimeoutMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Radio:       snap.Config.Radio,
		},
	}
	if !snap.Scan.LastSuccess.IsZero() {
		inner.Radio.LastSuccess = snap.Scan.LastSuccess.UTC().Format(time.RFC3339)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
