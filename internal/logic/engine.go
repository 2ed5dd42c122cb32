package logic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/presence-node/internal/store"
)

// Test log entry identity, used by the manual "log a test line" action.
const (
	TestAddress = "00:11:22:33:44:55"
	TestName    = "Test device"
	TestComment = "Manual test"
	TestReason  = "test entry"
)

// Engine owns the registry, device table, ever-seen counter, output log and
// output latch. It is driven by one goroutine.
type Engine struct {
	limits   Limits
	registry *Registry
	table    *Table
	everSeen EverSeen
	log      *OutputLog
	latch    OutputLatch

	observations int
}

// NewEngine creates an engine. Zero fields of limits take their defaults.
// A nil store disables registry persistence.
func NewEngine(limits Limits, st store.Store) *Engine {
	limits = limits.withDefaults()
	reg := NewRegistry(limits.MaxKnown, limits.DefaultRSSIThreshold, st)
	return &Engine{
		limits:   limits,
		registry: reg,
		table:    NewTable(limits.MaxDevices, limits.DeviceTimeout, limits.DefaultRSSIThreshold, reg),
		log:      NewOutputLog(limits.MaxLog),
	}
}

// Load reads the persisted registry.
func (e *Engine) Load() error {
	if err := e.registry.Load(); err != nil {
		return err
	}
	e.table.RefreshKnown()
	log.WithFields(log.Fields{"component": "engine", "known": e.registry.Len()}).Info("registry loaded")
	return nil
}

// Limits returns the effective limits.
func (e *Engine) Limits() Limits { return e.limits }

// Observe ingests one advertisement.
func (e *Engine) Observe(adv Advertisement, now time.Time) {
	if adv.Address == "" {
		return
	}
	e.observations++
	e.everSeen.Observe(adv.Address)

	if evicted := e.table.Upsert(adv.Address, adv.Name, adv.RSSI, now); evicted != "" {
		log.WithFields(log.Fields{"component": "engine", "evicted": evicted, "address": adv.Address}).
			Debug("device table full, evicted oldest")
	}
	e.table.UpdatePayload(adv.Address, ClassifyPayload(adv))
}

// CleanupExpired expires stale records. It must run before a cycle's results
// are ingested.
func (e *Engine) CleanupExpired(now time.Time) (removed, deactivated int) {
	return e.table.CleanupExpired(now)
}

// Evaluate runs the presence decision. On an edge of the aggregate presence
// the transition is appended to the output log and returned.
func (e *Engine) Evaluate(now time.Time) (OutputLogEntry, bool) {
	v := Decide(e.table, e.registry)
	entry, changed := e.latch.Apply(v, now)
	if changed {
		e.log.Append(entry)
	}
	return entry, changed
}

// OutputOn reports the latched output state.
func (e *Engine) OutputOn() bool { return e.latch.On() }

// NormalizeAddress puts an address in the form the radios report:
// upper-case hex without surrounding space.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// AddKnown adds or updates a known device and refreshes the table.
func (e *Engine) AddKnown(address, comment string, threshold int) (int, error) {
	i, err := e.registry.Add(NormalizeAddress(address), comment, threshold)
	if err != nil {
		return i, err
	}
	e.table.RefreshKnown()
	return i, nil
}

// RemoveKnown removes a known device. It reports false if the address was
// not known.
func (e *Engine) RemoveKnown(address string) bool {
	if !e.registry.Remove(NormalizeAddress(address)) {
		return false
	}
	e.table.RefreshKnown()
	return true
}

// IsKnown reports whether address is in the registry.
func (e *Engine) IsKnown(address string) bool {
	return e.registry.Contains(NormalizeAddress(address))
}

// Registry exposes the known-device registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Table exposes the device table.
func (e *Engine) Table() *Table { return e.table }

// SetActive forces the active flag of address.
func (e *Engine) SetActive(address string, active bool) bool {
	return e.table.SetActive(address, active)
}

// OutputLog exposes the output log.
func (e *Engine) OutputLog() *OutputLog { return e.log }

// LogTest appends a manual test entry.
func (e *Engine) LogTest(now time.Time) OutputLogEntry {
	entry := OutputLogEntry{
		Timestamp:      now,
		TriggerAddress: TestAddress,
		TriggerName:    TestName,
		TriggerComment: TestComment,
		OutputState:    true,
		Reason:         TestReason,
	}
	e.log.Append(entry)
	return entry
}

// ClearLog empties the output log.
func (e *Engine) ClearLog() { e.log.Clear() }

// EverSeen returns the approximate number of distinct addresses observed.
func (e *Engine) EverSeen() int { return e.everSeen.Total() }

// Stats summarizes the engine.
func (e *Engine) Stats() Stats {
	return Stats{
		Devices:      e.table.Len(),
		Active:       e.table.ActiveCount(),
		Present:      e.table.PresentCount(),
		Known:        e.registry.Len(),
		EverSeen:     e.everSeen.Total(),
		OutputOn:     e.latch.On(),
		LogTotal:     e.log.Total(),
		LogCapacity:  e.log.Cap(),
		Observations: e.observations,
		Evictions:    e.table.Evictions(),
	}
}

// Devices returns the table records with last-seen text relative to now.
func (e *Engine) Devices(now time.Time) []DeviceRecord {
	recs := e.table.Records()
	for i := range recs {
		recs[i].LastSeenText = FormatLastSeen(recs[i].LastSeen, now)
	}
	return recs
}

// KnownStatus is a registry entry joined with its live table record.
type KnownStatus struct {
	KnownDevice
	Name         string
	RSSI         int
	Active       bool
	Present      bool
	Proximity    Proximity
	LastSeenText string
}

// KnownDevices returns every registry entry, in registry order, with its
// current presence.
func (e *Engine) KnownDevices(now time.Time) []KnownStatus {
	out := make([]KnownStatus, 0, e.registry.Len())
	for _, k := range e.registry.Entries() {
		ks := KnownStatus{KnownDevice: k, Proximity: ProximityUnseen, LastSeenText: "never"}
		if rec, ok := e.table.Get(k.Address); ok {
			ks.Name = rec.DisplayName
			ks.RSSI = rec.RSSI
			ks.Active = rec.IsActive
			ks.Present = rec.Present()
			ks.Proximity = rec.Proximity
			ks.LastSeenText = FormatLastSeen(rec.LastSeen, now)
		}
		out = append(out, ks)
	}
	return out
}

// RegistryDocument is the import/export form of the registry.
type RegistryDocument struct {
	KnownDevices []KnownDevice `json:"knownDevices"`
}

// ExportJSON encodes the registry and logs a summary entry.
func (e *Engine) ExportJSON(now time.Time) ([]byte, error) {
	doc := RegistryDocument{KnownDevices: e.registry.Entries()}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode registry: %w", err)
	}
	e.logSummary(now, fmt.Sprintf("export: %d known devices", len(doc.KnownDevices)))
	return data, nil
}

// ImportResult counts what an import did.
type ImportResult struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type importRecord struct {
	Address       string `json:"address"`
	Comment       string `json:"comment"`
	RSSIThreshold *int   `json:"rssiThreshold"`
}

// ImportJSON merges a registry document into the registry. Records that
// cannot be added are skipped and counted rather than aborting the batch.
// A single summary entry is logged. ErrInvalidImport is returned when data
// is not a document with a knownDevices array.
func (e *Engine) ImportJSON(data []byte, now time.Time) (ImportResult, error) {
	var doc struct {
		KnownDevices *[]json.RawMessage `json:"knownDevices"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		e.logSummary(now, "import failed: invalid JSON")
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if doc.KnownDevices == nil {
		e.logSummary(now, "import failed: knownDevices missing")
		return ImportResult{}, fmt.Errorf("%w: knownDevices missing", ErrInvalidImport)
	}

	var res ImportResult
	for _, raw := range *doc.KnownDevices {
		var rec importRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			res.Skipped++
			continue
		}
		addr := NormalizeAddress(rec.Address)
		if addr == "" {
			res.Skipped++
			continue
		}
		threshold := e.limits.DefaultRSSIThreshold
		if rec.RSSIThreshold != nil {
			threshold = *rec.RSSIThreshold
		}
		existed := e.registry.Contains(addr)
		if _, err := e.registry.Add(addr, rec.Comment, threshold); err != nil {
			res.Skipped++
			continue
		}
		if existed {
			res.Updated++
		} else {
			res.New++
		}
	}
	e.table.RefreshKnown()

	e.logSummary(now, fmt.Sprintf("import: %d new, %d updated, %d skipped", res.New, res.Updated, res.Skipped))
	log.WithFields(log.Fields{
		"component": "engine",
		"new":       res.New,
		"updated":   res.Updated,
		"skipped":   res.Skipped,
	}).Info("registry imported")
	return res, nil
}

func (e *Engine) logSummary(now time.Time, reason string) {
	e.log.Append(OutputLogEntry{Timestamp: now, OutputState: e.latch.On(), Reason: reason})
}
