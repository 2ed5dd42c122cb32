//go:build !linux

package radio

import (
	"errors"
	"time"

	"github.com/sweeney/presence-node/internal/logic"
)

var errUnsupported = errors.New("radio: BLE not supported on this platform (requires Linux)")

// BLE is not available on non-Linux platforms.
type BLE struct{}

// NewBLE returns an error on non-Linux platforms.
func NewBLE(int) (*BLE, error) { return nil, errUnsupported }

// StartScan is not implemented on non-Linux platforms.
func (b *BLE) StartScan(time.Duration) error { return errUnsupported }

// StopScan is not implemented on non-Linux platforms.
func (b *BLE) StopScan() error { return nil }

// ClearResults is not implemented on non-Linux platforms.
func (b *BLE) ClearResults() {}

// Results returns nil on non-Linux platforms.
func (b *BLE) Results() <-chan logic.Advertisement { return nil }

// Reset is not implemented on non-Linux platforms.
func (b *BLE) Reset() error { return errUnsupported }

// Dropped returns 0 on non-Linux platforms.
func (b *BLE) Dropped() uint64 { return 0 }

// Close is not implemented on non-Linux platforms.
func (b *BLE) Close() error { return nil }
