package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideTriggerFollowsRegistryOrder(t *testing.T) {
	tbl, reg := newTestTable(8)
	_, err := reg.Add("FIRST", "one", -70)
	require.NoError(t, err)
	_, err = reg.Add("SECOND", "two", -70)
	require.NoError(t, err)

	// Table order is the reverse of registry order.
	tbl.Upsert("SECOND", "Second", -50, at(1))
	tbl.Upsert("FIRST", "First", -50, at(1))

	v := Decide(tbl, reg)
	assert.True(t, v.AnyKnownNear)
	assert.Equal(t, "FIRST", v.TriggerAddress)
	assert.Equal(t, "First", v.TriggerName)
	assert.Equal(t, "one", v.TriggerComment)
}

func TestDecideIgnoresUnknownAndFar(t *testing.T) {
	tbl, reg := newTestTable(8)
	_, err := reg.Add("K", "", -70)
	require.NoError(t, err)

	tbl.Upsert("U", "", -30, at(1))
	tbl.Upsert("K", "", -80, at(1))
	assert.False(t, Decide(tbl, reg).AnyKnownNear)
}

func TestOutputLatchEdgesOnly(t *testing.T) {
	var l OutputLatch
	near := Verdict{AnyKnownNear: true, TriggerAddress: "X", TriggerName: "Phone", TriggerComment: "mine"}

	_, changed := l.Apply(Verdict{}, at(0))
	assert.False(t, changed, "off to off is not an edge")

	entry, changed := l.Apply(near, at(1))
	require.True(t, changed)
	assert.True(t, entry.OutputState)
	assert.Equal(t, ReasonDetected, entry.Reason)
	assert.Equal(t, "X", entry.TriggerAddress)

	_, changed = l.Apply(near, at(2))
	assert.False(t, changed)

	entry, changed = l.Apply(Verdict{}, at(3))
	require.True(t, changed)
	assert.False(t, entry.OutputState)
	assert.Equal(t, ReasonAbsent, entry.Reason)
	assert.Equal(t, "X", entry.TriggerAddress, "off entry names the last near device")
	assert.Equal(t, at(3), entry.Timestamp)
	assert.False(t, l.On())
}

func TestOutputLatchOffNamesLastNearDevice(t *testing.T) {
	var l OutputLatch
	phone := Verdict{AnyKnownNear: true, TriggerAddress: "X", TriggerName: "Phone"}
	watch := Verdict{AnyKnownNear: true, TriggerAddress: "Y", TriggerName: "Watch", TriggerComment: "wrist"}

	entry, changed := l.Apply(phone, at(0))
	require.True(t, changed)
	assert.Equal(t, "X", entry.TriggerAddress)

	// X leaves while Y stays near; the output holds.
	_, changed = l.Apply(watch, at(1))
	assert.False(t, changed)

	entry, changed = l.Apply(Verdict{}, at(2))
	require.True(t, changed)
	assert.False(t, entry.OutputState)
	assert.Equal(t, "Y", entry.TriggerAddress)
	assert.Equal(t, "Watch", entry.TriggerName)
	assert.Equal(t, "wrist", entry.TriggerComment)
}
