// Package radio abstracts the BLE scanning hardware. Backends deliver
// discovered devices on a bounded channel; the control loop drains it.
package radio

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/sweeney/presence-node/internal/logic"
)

// DefaultQueueSize bounds the number of undelivered advertisements.
const DefaultQueueSize = 256

// ErrClosed is returned by operations on a closed radio.
var ErrClosed = errors.New("radio closed")

// Radio is a scanning radio. StartScan must not block beyond issuing the
// command; Reset is a blocking teardown and reinitialisation.
type Radio interface {
	StartScan(d time.Duration) error
	StopScan() error
	ClearResults()
	Results() <-chan logic.Advertisement
	Reset() error
	Dropped() uint64
	Close() error
}

// queue is a bounded, non-blocking advertisement channel. A full queue drops
// the newest event so radio callbacks never block.
type queue struct {
	ch      chan logic.Advertisement
	dropped atomic.Uint64
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &queue{ch: make(chan logic.Advertisement, size)}
}

func (q *queue) push(adv logic.Advertisement) {
	select {
	case q.ch <- adv:
	default:
		q.dropped.Add(1)
	}
}

// clear discards everything currently buffered.
func (q *queue) clear() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}
