package logic

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/presence-node/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(Limits{}, store.NewMemory())
}

func TestEngineKnownDeviceArrivesAndLeaves(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddKnown("X", "phone", -70)
	require.NoError(t, err)

	e.Observe(Advertisement{Address: "X", Name: "Pixel", RSSI: -65}, at(0))
	entry, changed := e.Evaluate(at(0))
	require.True(t, changed)
	assert.True(t, entry.OutputState)
	assert.Equal(t, "X", entry.TriggerAddress)
	assert.True(t, e.OutputOn())

	// X goes quiet past the timeout.
	later := at(0).Add(DefaultDeviceTimeout + time.Second)
	e.CleanupExpired(later)
	entry, changed = e.Evaluate(later)
	require.True(t, changed)
	assert.False(t, entry.OutputState)
	assert.Equal(t, "X", entry.TriggerAddress)
	assert.Equal(t, ReasonAbsent, entry.Reason)

	logged := slices.Collect(e.OutputLog().NewestFirst(-1))
	require.Len(t, logged, 2)
	assert.False(t, logged[0].OutputState)
	assert.True(t, logged[1].OutputState)

	// The known record survives as inactive.
	rec, ok := e.Table().Get("X")
	require.True(t, ok)
	assert.False(t, rec.IsActive)
}

func TestEngineFlickerDoesNotChatter(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddKnown("A", "flaky", -70)
	require.NoError(t, err)
	_, err = e.AddKnown("B", "steady", -70)
	require.NoError(t, err)

	e.Observe(Advertisement{Address: "B", RSSI: -40}, at(0))
	_, changed := e.Evaluate(at(0))
	require.True(t, changed)
	before := e.OutputLog().Total()

	for i := 1; i <= 20; i++ {
		rssi := -69
		if i%2 == 0 {
			rssi = -71
		}
		e.Observe(Advertisement{Address: "A", RSSI: rssi}, at(i))
		e.Observe(Advertisement{Address: "B", RSSI: -40}, at(i))
		_, changed := e.Evaluate(at(i))
		assert.False(t, changed)
	}
	assert.Equal(t, before, e.OutputLog().Total())
	assert.True(t, e.OutputOn())
}

func TestEngineObserveEnrichesAndCounts(t *testing.T) {
	e := newTestEngine(t)
	adv := Advertisement{Address: "A", RSSI: -60, ManufacturerData: []byte{0x4C, 0x00, 0x07}}
	e.Observe(adv, at(0))
	e.Observe(adv, at(1))
	e.Observe(Advertisement{}, at(2))

	rec, ok := e.Table().Get("A")
	require.True(t, ok)
	assert.Equal(t, "Apple", rec.Manufacturer)
	assert.Equal(t, "Apple AirPods", rec.DeviceType)

	s := e.Stats()
	assert.Equal(t, 2, s.Observations)
	assert.Equal(t, 1, s.EverSeen)
	assert.Equal(t, 1, s.Devices)
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, DefaultMaxLog, s.LogCapacity)
}

func TestEngineAddKnownRefreshesTable(t *testing.T) {
	e := newTestEngine(t)
	e.Observe(Advertisement{Address: "A", RSSI: -60}, at(0))
	_, err := e.AddKnown("A", "", -70)
	require.NoError(t, err)

	rec, _ := e.Table().Get("A")
	assert.True(t, rec.IsKnown)
	assert.Equal(t, 1, e.Stats().Present)

	assert.True(t, e.RemoveKnown("A"))
	assert.False(t, e.RemoveKnown("A"))
	rec, _ = e.Table().Get("A")
	assert.False(t, rec.IsKnown)
}

func TestEngineKnownDevicesView(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddKnown("SEEN", "", -70)
	require.NoError(t, err)
	_, err = e.AddKnown("NEVER", "", -70)
	require.NoError(t, err)
	e.Observe(Advertisement{Address: "SEEN", Name: "Watch", RSSI: -50}, at(0))
	e.Evaluate(at(0))

	view := e.KnownDevices(at(30))
	require.Len(t, view, 2)
	assert.Equal(t, "SEEN", view[0].Address)
	assert.True(t, view[0].Present)
	assert.Equal(t, "30s ago", view[0].LastSeenText)
	assert.Equal(t, "green", view[0].Proximity.Colour())

	assert.False(t, view[1].Present)
	assert.Equal(t, "never", view[1].LastSeenText)
	assert.Equal(t, "red", view[1].Proximity.Colour())
}

func TestEngineExportImportRoundTrip(t *testing.T) {
	src := newTestEngine(t)
	_, err := src.AddKnown("A", "keys", -70)
	require.NoError(t, err)
	_, err = src.AddKnown("B", "bag", -60)
	require.NoError(t, err)

	data, err := src.ExportJSON(at(0))
	require.NoError(t, err)
	assert.Equal(t, 1, src.OutputLog().Total())

	var doc RegistryDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.KnownDevices, 2)

	dst := newTestEngine(t)
	_, err = dst.AddKnown("A", "old", -90)
	require.NoError(t, err)
	res, err := dst.ImportJSON(data, at(1))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{New: 1, Updated: 1}, res)
	assert.Equal(t, src.Registry().Entries(), dst.Registry().Entries())
	assert.Equal(t, 1, dst.OutputLog().Total(), "one summary entry per import")
}

func TestEngineImportSkipsBadRecords(t *testing.T) {
	e := NewEngine(Limits{MaxKnown: 2}, nil)
	doc := `{"knownDevices":[
		{"address":"A"},
		{"address":""},
		{"address":42},
		{"address":"B","rssiThreshold":-55},
		{"address":"C"}
	]}`
	res, err := e.ImportJSON([]byte(doc), at(0))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{New: 2, Skipped: 3}, res)

	k, _, ok := e.Registry().Lookup("A")
	require.True(t, ok)
	assert.Equal(t, DefaultRSSIThreshold, k.RSSIThreshold)
	k, _, _ = e.Registry().Lookup("B")
	assert.Equal(t, -55, k.RSSIThreshold)
}

func TestEngineKnownAddressesIgnoreCase(t *testing.T) {
	e := newTestEngine(t)
	i, err := e.AddKnown(" aa:bb:cc:dd:ee:01 ", "phone", -70)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", e.Registry().Entries()[0].Address)
	assert.True(t, e.IsKnown("aa:bb:cc:dd:ee:01"))

	// Radios report upper-case.
	e.Observe(Advertisement{Address: "AA:BB:CC:DD:EE:01", RSSI: -60}, at(0))
	entry, changed := e.Evaluate(at(0))
	require.True(t, changed)
	assert.True(t, entry.OutputState)

	i, err = e.AddKnown("AA:BB:CC:DD:EE:01", "renamed", -70)
	require.NoError(t, err)
	assert.Equal(t, 0, i, "same device, updated in place")
	assert.Equal(t, 1, e.Registry().Len())

	res, err := e.ImportJSON([]byte(`{"knownDevices":[{"address":"aa:bb:cc:dd:ee:01"},{"address":"aa:bb:cc:dd:ee:02"}]}`), at(1))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{New: 1, Updated: 1}, res)
	assert.True(t, e.Registry().Contains("AA:BB:CC:DD:EE:02"))

	assert.True(t, e.RemoveKnown("aa:bb:cc:dd:ee:01"))
	assert.False(t, e.IsKnown("AA:BB:CC:DD:EE:01"))
}

func TestEngineImportRejectsInvalidDocument(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.ImportJSON([]byte("not json"), at(0))
	assert.ErrorIs(t, err, ErrInvalidImport)
	_, err = e.ImportJSON([]byte(`{"devices":[]}`), at(0))
	assert.ErrorIs(t, err, ErrInvalidImport)
	assert.Equal(t, 2, e.OutputLog().Total())
}

func TestEngineLogTestAndClear(t *testing.T) {
	e := newTestEngine(t)
	entry := e.LogTest(at(0))
	assert.Equal(t, TestAddress, entry.TriggerAddress)
	assert.Equal(t, 1, e.OutputLog().Len())
	e.ClearLog()
	assert.Equal(t, 0, e.OutputLog().Len())
}

func TestEngineLoadRestoresRegistry(t *testing.T) {
	st := store.NewMemory()
	first := NewEngine(Limits{}, st)
	_, err := first.AddKnown("A", "keys", -70)
	require.NoError(t, err)

	second := NewEngine(Limits{}, st)
	require.NoError(t, second.Load())
	assert.True(t, second.IsKnown("A"))
}
