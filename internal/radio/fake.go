package radio

import (
	"sync"
	"time"

	"github.com/sweeney/presence-node/internal/logic"
)

// Fake is a scripted Radio for tests.
type Fake struct {
	mu sync.Mutex
	q  *queue

	// StartErr, when set, is returned by StartScan.
	StartErr error
	// ResetErr, when set, is returned by Reset.
	ResetErr error

	scanning bool
	starts   int
	stops    int
	clears   int
	resets   int
	closed   bool
}

// NewFake creates a Fake with the default queue size.
func NewFake() *Fake {
	return &Fake{q: newQueue(DefaultQueueSize)}
}

// StartScan records the call and returns StartErr.
func (f *Fake) StartScan(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.StartErr != nil {
		return f.StartErr
	}
	f.scanning = true
	return nil
}

// StopScan records the call.
func (f *Fake) StopScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.scanning = false
	return nil
}

// ClearResults discards buffered advertisements.
func (f *Fake) ClearResults() {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
	f.q.clear()
}

// Results returns the advertisement channel.
func (f *Fake) Results() <-chan logic.Advertisement { return f.q.ch }

// Reset records the call and returns ResetErr.
func (f *Fake) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.scanning = false
	return f.ResetErr
}

// Dropped returns the number of advertisements lost to a full queue.
func (f *Fake) Dropped() uint64 { return f.q.dropped.Load() }

// Close marks the radio as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Emit delivers an advertisement as if the radio had discovered it.
func (f *Fake) Emit(adv logic.Advertisement) { f.q.push(adv) }

// SetStartErr changes the StartScan error under the lock.
func (f *Fake) SetStartErr(err error) {
	f.mu.Lock()
	f.StartErr = err
	f.mu.Unlock()
}

// Scanning reports whether a scan is in progress.
func (f *Fake) Scanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

// Counts returns how many times each command was issued.
func (f *Fake) Counts() (starts, stops, clears, resets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.clears, f.resets
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
