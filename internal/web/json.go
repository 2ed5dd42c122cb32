package web

import (
	"time"

	"github.com/sweeney/presence-node/internal/logic"
	"github.com/sweeney/presence-node/internal/scan"
	"github.com/sweeney/presence-node/internal/status"
)

// noRSSI is reported for a known device that is not in the device table.
const noRSSI = -999

// Response is the generic result of an API action.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusAPI is the body of GET /api/status.
type StatusAPI struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Devices       int    `json:"devices"`
	Active        int    `json:"activeDevices"`
	Present       int    `json:"presentDevices"`
	Known         int    `json:"known"`
	EverSeen      int    `json:"everSeen"`
	Scanning      bool   `json:"scanning"`
	ScanState     string `json:"scanState"`
	OutputActive  bool   `json:"outputActive"`
	MQTTConnected bool   `json:"mqttConnected"`
	ScanCycles    int    `json:"scanCycles"`
	ScanFailures  int    `json:"scanFailures"`
	RadioResets   int    `json:"radioResets"`
	Dropped       uint64 `json:"droppedAdvertisements"`
}

// DeviceJSON is one device table record.
type DeviceJSON struct {
	Address          string `json:"address"`
	Name             string `json:"name"`
	RSSI             int    `json:"rssi"`
	Known            bool   `json:"known"`
	Active           bool   `json:"active"`
	LastSeenRelative string `json:"lastSeenRelative"`
	Manufacturer     string `json:"manufacturer"`
	DeviceType       string `json:"deviceType"`
	PayloadHex       string `json:"payloadHex"`
	Comment          string `json:"comment"`
	RSSIThreshold    int    `json:"rssiThreshold"`
	ProximityStatus  string `json:"proximityStatus"`
}

// KnownDeviceJSON is one registry entry with its live state.
type KnownDeviceJSON struct {
	Address          string `json:"address"`
	Comment          string `json:"comment"`
	RSSIThreshold    int    `json:"rssiThreshold"`
	Present          bool   `json:"present"`
	Name             string `json:"name"`
	RSSI             int    `json:"rssi"`
	LastSeenRelative string `json:"lastSeenRelative"`
	ProximityStatus  string `json:"proximityStatus"`
}

// DevicesAPI is the body of GET /api/devices.
type DevicesAPI struct {
	Status       string            `json:"status"`
	Devices      []DeviceJSON      `json:"devices"`
	KnownDevices []KnownDeviceJSON `json:"knownDevices"`
}

// OutputLogEntryJSON is one output-log entry.
type OutputLogEntryJSON struct {
	Timestamp     int64  `json:"timestamp"`
	DeviceAddress string `json:"deviceAddress"`
	DeviceName    string `json:"deviceName"`
	Comment       string `json:"comment"`
	OutputState   bool   `json:"outputState"`
	Reason        string `json:"reason"`
	TimeAgo       string `json:"timeAgo"`
}

// OutputLogAPI is the body of GET /api/output-log.
type OutputLogAPI struct {
	OutputLog    []OutputLogEntryJSON `json:"outputLog"`
	TotalEntries int                  `json:"totalEntries"`
	MaxEntries   int                  `json:"maxEntries"`
}

// ImportAPI is the body of a successful POST /api/import-devices-file.
type ImportAPI struct {
	Response
	logic.ImportResult
}

func statusAPI(snap status.Snapshot) StatusAPI {
	uptime := snap.Uptime().Truncate(time.Second)
	return StatusAPI{
		Uptime:        formatUptime(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		Devices:       snap.Engine.Devices,
		Active:        snap.Engine.Active,
		Present:       snap.Engine.Present,
		Known:         snap.Engine.Known,
		EverSeen:      snap.Engine.EverSeen,
		Scanning:      snap.Scan.State == scan.Scanning,
		ScanState:     snap.Scan.State.String(),
		OutputActive:  snap.Engine.OutputOn,
		MQTTConnected: snap.MQTTConnected,
		ScanCycles:    snap.Scan.Cycles,
		ScanFailures:  snap.Scan.Failures,
		RadioResets:   snap.Scan.Resets,
		Dropped:       snap.Scan.Dropped,
	}
}

func deviceJSON(rec logic.DeviceRecord) DeviceJSON {
	return DeviceJSON{
		Address:          rec.Address,
		Name:             rec.DisplayName,
		RSSI:             rec.RSSI,
		Known:            rec.IsKnown,
		Active:           rec.IsActive,
		LastSeenRelative: rec.LastSeenText,
		Manufacturer:     rec.Manufacturer,
		DeviceType:       rec.DeviceType,
		PayloadHex:       rec.PayloadHex,
		Comment:          rec.Comment,
		RSSIThreshold:    rec.RSSIThreshold,
		ProximityStatus:  rec.Proximity.Colour(),
	}
}

func knownDeviceJSON(ks logic.KnownStatus) KnownDeviceJSON {
	kj := KnownDeviceJSON{
		Address:          ks.Address,
		Comment:          ks.Comment,
		RSSIThreshold:    ks.RSSIThreshold,
		Present:          ks.Present,
		Name:             ks.Name,
		RSSI:             ks.RSSI,
		LastSeenRelative: ks.LastSeenText,
		ProximityStatus:  ks.Proximity.Colour(),
	}
	if kj.Name == "" {
		kj.Name = logic.PlaceholderName
		kj.RSSI = noRSSI
	}
	return kj
}

func outputLogAPI(l *logic.OutputLog, now time.Time) OutputLogAPI {
	out := OutputLogAPI{
		OutputLog:    make([]OutputLogEntryJSON, 0, l.Len()),
		TotalEntries: l.Total(),
		MaxEntries:   l.Cap(),
	}
	for e := range l.NewestFirst(-1) {
		out.OutputLog = append(out.OutputLog, OutputLogEntryJSON{
			Timestamp:     e.Timestamp.UnixMilli(),
			DeviceAddress: e.TriggerAddress,
			DeviceName:    e.TriggerName,
			Comment:       e.TriggerComment,
			OutputState:   e.OutputState,
			Reason:        e.Reason,
			TimeAgo:       logic.FormatAge(now.Sub(e.Timestamp)),
		})
	}
	return out
}
