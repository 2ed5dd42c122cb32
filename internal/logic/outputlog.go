package logic

import "iter"

// OutputLog is a fixed-capacity ring buffer of output transitions. Once full,
// the oldest entry is overwritten. The write counter is never wrapped, so the
// slot of the newest entry is always (total-1) mod capacity.
type OutputLog struct {
	entries []OutputLogEntry
	total   int
}

// NewOutputLog creates a log holding at most capacity entries.
func NewOutputLog(capacity int) *OutputLog {
	if capacity <= 0 {
		capacity = DefaultMaxLog
	}
	return &OutputLog{entries: make([]OutputLogEntry, capacity)}
}

// Append writes entry unconditionally.
func (l *OutputLog) Append(entry OutputLogEntry) {
	l.entries[l.total%len(l.entries)] = entry
	l.total++
}

// NewestFirst yields at most limit entries, most recent first. The sequence
// reads the buffer lazily and can be ranged over more than once; a negative
// limit means everything retained.
func (l *OutputLog) NewestFirst(limit int) iter.Seq[OutputLogEntry] {
	return func(yield func(OutputLogEntry) bool) {
		n := l.Len()
		if limit >= 0 && limit < n {
			n = limit
		}
		c := len(l.entries)
		for i := 0; i < n; i++ {
			idx := ((l.total-1-i)%c + c) % c
			if !yield(l.entries[idx]) {
				return
			}
		}
	}
}

// Clear empties the log and zeroes its storage.
func (l *OutputLog) Clear() {
	clear(l.entries)
	l.total = 0
}

// Len returns the number of retained entries.
func (l *OutputLog) Len() int { return min(l.total, len(l.entries)) }

// Total returns the number of appends since the last Clear.
func (l *OutputLog) Total() int { return l.total }

// Cap returns the buffer capacity.
func (l *OutputLog) Cap() int { return len(l.entries) }
