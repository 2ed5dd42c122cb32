//go:build linux

package radio

import (
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/sweeney/presence-node/internal/logic"
)

// startGrace is how long StartScan waits for the adapter to reject a scan.
const startGrace = 50 * time.Millisecond

// BLE scans with the host adapter through BlueZ.
type BLE struct {
	adapter *bluetooth.Adapter
	q       *queue

	mu   sync.Mutex
	done chan struct{} // non-nil while a scan goroutine is running
}

// NewBLE enables the default adapter.
func NewBLE(queueSize int) (*BLE, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	return &BLE{adapter: adapter, q: newQueue(queueSize)}, nil
}

// StartScan starts a scan in the background. The adapter's Scan call blocks
// until StopScan, so it runs on its own goroutine and results go through the
// queue. An immediate failure is reported; later ones are logged.
func (b *BLE) StartScan(time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		select {
		case <-b.done:
			b.done = nil
		default:
			return nil
		}
	}

	done := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		defer close(done)
		errc <- b.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			b.q.push(fromScanResult(r))
		})
	}()

	select {
	case err := <-errc:
		<-done
		if err != nil {
			return fmt.Errorf("start scan: %w", err)
		}
		return nil
	case <-time.After(startGrace):
	}

	b.done = done
	go func() {
		if err := <-errc; err != nil {
			log.WithField("component", "radio.ble").WithError(err).Warn("scan ended with error")
		}
	}()
	return nil
}

// StopScan stops a running scan and waits for it to finish.
func (b *BLE) StopScan() error {
	b.mu.Lock()
	done := b.done
	b.done = nil
	b.mu.Unlock()
	if done == nil {
		return nil
	}
	if err := b.adapter.StopScan(); err != nil {
		return fmt.Errorf("stop scan: %w", err)
	}
	<-done
	return nil
}

// ClearResults discards buffered advertisements.
func (b *BLE) ClearResults() { b.q.clear() }

// Results returns the advertisement channel.
func (b *BLE) Results() <-chan logic.Advertisement { return b.q.ch }

// Dropped returns the number of advertisements lost to a full queue.
func (b *BLE) Dropped() uint64 { return b.q.dropped.Load() }

// Reset stops any scan and re-enables the adapter.
func (b *BLE) Reset() error {
	if err := b.StopScan(); err != nil {
		log.WithField("component", "radio.ble").WithError(err).Warn("stop before reset failed")
	}
	b.q.clear()
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("re-enable bluetooth adapter: %w", err)
	}
	return nil
}

// Close stops scanning.
func (b *BLE) Close() error {
	return b.StopScan()
}

func fromScanResult(r bluetooth.ScanResult) logic.Advertisement {
	adv := logic.Advertisement{
		Address:        strings.ToUpper(r.Address.String()),
		Name:           r.LocalName(),
		RSSI:           int(r.RSSI),
		HasServiceData: len(r.ServiceData()) > 0,
	}
	if mfg := r.ManufacturerData(); len(mfg) > 0 {
		id := mfg[0].CompanyID
		adv.ManufacturerData = append([]byte{byte(id), byte(id >> 8)}, mfg[0].Data...)
	}
	return adv
}
