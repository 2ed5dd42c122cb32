package logic

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAt(i int) OutputLogEntry {
	return OutputLogEntry{
		Timestamp: time.Date(2026, 1, 1, 12, 0, i, 0, time.UTC),
		Reason:    "entry",
	}
}

func seconds(entries []OutputLogEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Timestamp.Second()
	}
	return out
}

func TestOutputLogNewestFirstBeforeWrap(t *testing.T) {
	l := NewOutputLog(5)
	for i := 0; i < 3; i++ {
		l.Append(entryAt(i))
	}
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []int{2, 1, 0}, seconds(slices.Collect(l.NewestFirst(10))))
	assert.Equal(t, []int{2, 1}, seconds(slices.Collect(l.NewestFirst(2))))
	assert.Empty(t, slices.Collect(l.NewestFirst(0)))
}

func TestOutputLogWrapKeepsLastCapacityEntries(t *testing.T) {
	l := NewOutputLog(4)
	for i := 0; i < 11; i++ {
		l.Append(entryAt(i))
	}
	assert.Equal(t, 11, l.Total())
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, []int{10, 9, 8, 7}, seconds(slices.Collect(l.NewestFirst(4))))
	assert.Equal(t, []int{10, 9, 8, 7}, seconds(slices.Collect(l.NewestFirst(-1))))
}

func TestOutputLogSequenceIsRestartable(t *testing.T) {
	l := NewOutputLog(3)
	for i := 0; i < 5; i++ {
		l.Append(entryAt(i))
	}
	seq := l.NewestFirst(3)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)

	// Early break stops the walk.
	n := 0
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestOutputLogClear(t *testing.T) {
	l := NewOutputLog(3)
	for i := 0; i < 5; i++ {
		l.Append(entryAt(i))
	}
	l.Clear()
	assert.Equal(t, 0, l.Total())
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, slices.Collect(l.NewestFirst(1)))

	l.Append(entryAt(42))
	got := slices.Collect(l.NewestFirst(5))
	require.Len(t, got, 1)
	assert.Equal(t, 42, got[0].Timestamp.Second())
}

func TestOutputLogZeroCapacityUsesDefault(t *testing.T) {
	assert.Equal(t, DefaultMaxLog, NewOutputLog(0).Cap())
}
