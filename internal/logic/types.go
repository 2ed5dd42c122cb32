// Package logic contains the presence tracking engine: the known-device
// registry, the bounded device table, the ever-seen counter, the output-log
// ring buffer and the presence decision.
//
// Nothing in this package is safe for concurrent use. The engine is owned by a
// single control loop; other goroutines reach it through that loop.
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"time"
)

// Defaults for the capacities and thresholds. All of them can be overridden
// through Limits.
const (
	DefaultMaxDevices       = 32
	DefaultMaxKnown         = 200
	DefaultMaxLog           = 30
	DefaultRSSIThreshold    = -80
	DefaultDeviceTimeout    = 2 * time.Minute
	MaxCommentLength        = 32
	PlaceholderName         = "Unknown device"
	PlaceholderManufacturer = "Unknown"
)

var (
	// ErrRegistryFull is returned when a new address is added to a full registry.
	ErrRegistryFull = errors.New("known-device registry is full")

	// ErrNotFound is returned when an address is not in the registry.
	ErrNotFound = errors.New("device not found")

	// ErrInvalidImport is returned when an import document cannot be used at all.
	ErrInvalidImport = errors.New("invalid import document")
)

// Proximity is the per-device proximity class.
type Proximity string

const (
	ProximityNear   Proximity = "near"
	ProximityFar    Proximity = "far"
	ProximityUnseen Proximity = "unseen"
)

// Colour returns the traffic-light name used by the web UI.
func (p Proximity) Colour() string {
	switch p {
	case ProximityNear:
		return "green"
	case ProximityFar:
		return "yellow"
	default:
		return "red"
	}
}

// Limits bounds the engine's fixed-capacity containers.
type Limits struct {
	MaxDevices           int
	MaxKnown             int
	MaxLog               int
	DefaultRSSIThreshold int
	DeviceTimeout        time.Duration
}

// DefaultLimits returns the limits used by the firmware this node replaces.
func DefaultLimits() Limits {
	return Limits{
		MaxDevices:           DefaultMaxDevices,
		MaxKnown:             DefaultMaxKnown,
		MaxLog:               DefaultMaxLog,
		DefaultRSSIThreshold: DefaultRSSIThreshold,
		DeviceTimeout:        DefaultDeviceTimeout,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxDevices <= 0 {
		l.MaxDevices = d.MaxDevices
	}
	if l.MaxKnown <= 0 {
		l.MaxKnown = d.MaxKnown
	}
	if l.MaxLog <= 0 {
		l.MaxLog = d.MaxLog
	}
	if l.DefaultRSSIThreshold == 0 {
		l.DefaultRSSIThreshold = d.DefaultRSSIThreshold
	}
	if l.DeviceTimeout <= 0 {
		l.DeviceTimeout = d.DeviceTimeout
	}
	return l
}

// Advertisement is one discovered-device event delivered by a radio backend.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int

	// ManufacturerData holds the raw manufacturer-specific field including the
	// little-endian company id prefix. Nil when absent.
	ManufacturerData []byte

	HasServiceData bool
	HasServiceUUID bool

	TxPower    *int
	Appearance *uint16
}

// PayloadInfo is the best-effort decoded form of an advertisement payload.
type PayloadInfo struct {
	Manufacturer   string
	DeviceType     string
	ManufacturerID uint16
	PayloadHex     string
}

// KnownDevice is one entry of the known-device registry.
type KnownDevice struct {
	Address       string `json:"address"`
	Comment       string `json:"comment"`
	RSSIThreshold int    `json:"rssiThreshold"`
}

// DeviceRecord is the live observation record for one address.
type DeviceRecord struct {
	Address      string
	DisplayName  string
	RSSI         int
	LastSeen     time.Time
	FirstSeen    time.Time
	LastSeenText string

	IsKnown       bool
	IsActive      bool
	Comment       string
	RSSIThreshold int
	Proximity     Proximity

	Manufacturer   string
	DeviceType     string
	ManufacturerID uint16
	PayloadHex     string
}

// Present reports whether the record is active, known and at or above its threshold.
func (r DeviceRecord) Present() bool {
	return r.IsActive && r.IsKnown && r.RSSI >= r.RSSIThreshold
}

// OutputLogEntry records one actuator transition or operator action.
type OutputLogEntry struct {
	Timestamp      time.Time
	TriggerAddress string
	TriggerName    string
	TriggerComment string
	OutputState    bool
	Reason         string
}

// Stats is a point-in-time summary of the engine.
type Stats struct {
	Devices      int
	Active       int
	Present      int
	Known        int
	EverSeen     int
	OutputOn     bool
	LogTotal     int
	LogCapacity  int
	Observations int
	Evictions    int
}
