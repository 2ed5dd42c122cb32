package logic

import (
	"fmt"
	"time"
)

// Table is the bounded device table. Records live in a fixed-capacity arena
// and are found by linear search; n is small.
type Table struct {
	records          []DeviceRecord
	capacity         int
	timeout          time.Duration
	defaultThreshold int
	registry         *Registry
	evictions        int
}

// NewTable creates a table with room for capacity records. Known status and
// thresholds are derived from registry.
func NewTable(capacity int, timeout time.Duration, defaultThreshold int, registry *Registry) *Table {
	return &Table{
		records:          make([]DeviceRecord, 0, capacity),
		capacity:         capacity,
		timeout:          timeout,
		defaultThreshold: defaultThreshold,
		registry:         registry,
	}
}

// Upsert records an observation of address. When address is new and the
// table is full, the record with the smallest LastSeen is replaced; a record
// that was never updated (zero LastSeen) goes first, ties go to the lowest
// slot. The evicted address is returned, or "" if nothing was evicted.
func (t *Table) Upsert(address, name string, rssi int, now time.Time) (evicted string) {
	i := t.index(address)
	if i < 0 {
		if len(t.records) < t.capacity {
			t.records = append(t.records, DeviceRecord{})
			i = len(t.records) - 1
		} else {
			i = t.oldest()
			evicted = t.records[i].Address
			t.evictions++
		}
		t.records[i] = DeviceRecord{
			Address:       address,
			FirstSeen:     now,
			RSSIThreshold: t.defaultThreshold,
			Manufacturer:  PlaceholderManufacturer,
		}
	}

	r := &t.records[i]
	switch {
	case informativeName(name) && !informativeName(r.DisplayName):
		r.DisplayName = name
	case r.DisplayName == "":
		r.DisplayName = PlaceholderName
	}
	r.RSSI = rssi
	r.LastSeen = now
	r.IsActive = true
	t.applyKnown(r)
	r.Proximity = t.classify(*r)
	r.LastSeenText = FormatLastSeen(r.LastSeen, now)
	return evicted
}

// oldest returns the eviction victim's slot.
func (t *Table) oldest() int {
	victim := 0
	for i := range t.records {
		ts := t.records[i].LastSeen
		if ts.IsZero() {
			return i
		}
		if ts.Before(t.records[victim].LastSeen) {
			victim = i
		}
	}
	return victim
}

// UpdatePayload enriches the record for address. Fields already holding a
// real value are left alone. It reports whether the address was found.
func (t *Table) UpdatePayload(address string, p PayloadInfo) bool {
	i := t.index(address)
	if i < 0 {
		return false
	}
	r := &t.records[i]
	if p.Manufacturer != "" && (r.Manufacturer == "" || r.Manufacturer == PlaceholderManufacturer) {
		r.Manufacturer = p.Manufacturer
	}
	if p.DeviceType != "" && (r.DeviceType == "" || r.DeviceType == PlaceholderDeviceType) {
		r.DeviceType = p.DeviceType
	}
	if p.ManufacturerID != 0 && r.ManufacturerID == 0 {
		r.ManufacturerID = p.ManufacturerID
	}
	if p.PayloadHex != "" && (r.PayloadHex == "" || r.PayloadHex == PayloadNone) {
		r.PayloadHex = p.PayloadHex
	}
	return true
}

// SetActive forces the active flag of address outside the timeout path.
func (t *Table) SetActive(address string, active bool) bool {
	i := t.index(address)
	if i < 0 {
		return false
	}
	t.records[i].IsActive = active
	t.records[i].Proximity = t.classify(t.records[i])
	return true
}

// CleanupExpired expires active records not seen for longer than the device
// timeout. Unknown records are removed; known records are kept inactive so
// their history survives. The walk runs back to front so compaction never
// skips a record.
func (t *Table) CleanupExpired(now time.Time) (removed, deactivated int) {
	for i := len(t.records) - 1; i >= 0; i-- {
		r := &t.records[i]
		if !r.IsActive || now.Sub(r.LastSeen) <= t.timeout {
			continue
		}
		if r.IsKnown {
			r.IsActive = false
			r.Proximity = ProximityUnseen
			r.LastSeenText = FormatLastSeen(r.LastSeen, now)
			deactivated++
			continue
		}
		copy(t.records[i:], t.records[i+1:])
		t.records[len(t.records)-1] = DeviceRecord{}
		t.records = t.records[:len(t.records)-1]
		removed++
	}
	return removed, deactivated
}

// RefreshKnown re-derives known status, comment and threshold for every
// record. Called after the registry changes.
func (t *Table) RefreshKnown() {
	for i := range t.records {
		r := &t.records[i]
		t.applyKnown(r)
		r.Proximity = t.classify(*r)
	}
}

// Classify recomputes the proximity class of every record.
func (t *Table) Classify() {
	for i := range t.records {
		t.records[i].Proximity = t.classify(t.records[i])
	}
}

func (t *Table) applyKnown(r *DeviceRecord) {
	if k, _, ok := t.registry.Lookup(r.Address); ok {
		r.IsKnown = true
		r.Comment = k.Comment
		r.RSSIThreshold = k.RSSIThreshold
		return
	}
	r.IsKnown = false
	r.Comment = ""
	r.RSSIThreshold = t.defaultThreshold
}

func (t *Table) classify(r DeviceRecord) Proximity {
	switch {
	case !r.IsActive:
		return ProximityUnseen
	case r.RSSI >= r.RSSIThreshold:
		return ProximityNear
	default:
		return ProximityFar
	}
}

// Get returns a copy of the record for address.
func (t *Table) Get(address string) (DeviceRecord, bool) {
	i := t.index(address)
	if i < 0 {
		return DeviceRecord{}, false
	}
	return t.records[i], true
}

// Records returns a copy of every record in slot order.
func (t *Table) Records() []DeviceRecord {
	out := make([]DeviceRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.records) }

// Cap returns the table capacity.
func (t *Table) Cap() int { return t.capacity }

// Evictions returns how many records were replaced because the table was full.
func (t *Table) Evictions() int { return t.evictions }

// ActiveCount returns the number of active records.
func (t *Table) ActiveCount() int {
	n := 0
	for i := range t.records {
		if t.records[i].IsActive {
			n++
		}
	}
	return n
}

// PresentCount returns the number of active, known records at or above
// their threshold.
func (t *Table) PresentCount() int {
	n := 0
	for i := range t.records {
		if t.records[i].Present() {
			n++
		}
	}
	return n
}

func (t *Table) index(address string) int {
	for i := range t.records {
		if t.records[i].Address == address {
			return i
		}
	}
	return -1
}

func informativeName(name string) bool {
	return name != "" && name != PlaceholderName
}

// FormatLastSeen renders the age of seen relative to now, e.g. "12s ago" or
// "3m ago". A zero seen renders as "never".
func FormatLastSeen(seen, now time.Time) string {
	if seen.IsZero() {
		return "never"
	}
	secs := int64(now.Sub(seen) / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs < 60 {
		return fmt.Sprintf("%ds ago", secs)
	}
	return fmt.Sprintf("%dm ago", secs/60)
}

// FormatAge renders an elapsed duration as whole seconds, minutes or hours,
// e.g. "45s", "12m", "3h".
func FormatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int64(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int64(d/time.Minute))
	default:
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	}
}
