package radio

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/sweeney/presence-node/internal/logic"
)

// DefaultResetTimeout bounds how long Reset waits for the co-processor to
// report READY.
const DefaultResetTimeout = 3 * time.Second

// Serial drives a BLE co-processor over a line protocol:
//
//	-> SCAN START <ms>
//	-> SCAN STOP
//	-> RESET
//	<- {"address":"..","rssi":-60,...}   one advertisement per line
//	<- READY                             after a reset
//
// Advertisements received while not scanning are ignored.
type Serial struct {
	open func() (io.ReadWriteCloser, error)
	q    *queue

	// ResetTimeout bounds Reset. Zero means DefaultResetTimeout.
	ResetTimeout time.Duration

	// mu guards port and done, which Reset replaces after the reader dies.
	mu   sync.Mutex
	port io.ReadWriteCloser
	done chan struct{}

	wmu      sync.Mutex
	scanning atomic.Bool
	closing  atomic.Bool
	ready    chan struct{}
	closed   sync.Once
}

// OpenSerial opens the co-processor at path (8N1).
func OpenSerial(path string, baud, queueSize int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	s, err := DialSerial(func() (io.ReadWriteCloser, error) {
		return serial.Open(path, mode)
	}, queueSize)
	if err != nil {
		return nil, fmt.Errorf("open serial radio %s: %w", path, err)
	}
	return s, nil
}

// DialSerial opens a port with open and starts reading from it. Reset calls
// open again if the reader has stopped on a read error or EOF.
func DialSerial(open func() (io.ReadWriteCloser, error), queueSize int) (*Serial, error) {
	port, err := open()
	if err != nil {
		return nil, err
	}
	s := newSerial(queueSize)
	s.open = open
	s.start(port)
	return s, nil
}

// NewSerial starts reading advertisements from port. The port cannot be
// reopened once the reader stops.
func NewSerial(port io.ReadWriteCloser, queueSize int) *Serial {
	s := newSerial(queueSize)
	s.start(port)
	return s
}

func newSerial(queueSize int) *Serial {
	return &Serial{
		q:     newQueue(queueSize),
		ready: make(chan struct{}, 1),
	}
}

// start must be called with mu held or before s is shared.
func (s *Serial) start(port io.ReadWriteCloser) {
	s.port = port
	s.done = make(chan struct{})
	go s.readLoop(port, s.done)
}

func (s *Serial) conn() (io.ReadWriteCloser, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port, s.done
}

// reopen replaces a port whose reader has stopped. It is a no-op while the
// reader is alive.
func (s *Serial) reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		return nil
	}
	if s.closing.Load() || s.open == nil {
		return ErrClosed
	}
	_ = s.port.Close()
	port, err := s.open()
	if err != nil {
		return fmt.Errorf("reopen serial radio: %w", err)
	}
	log.WithField("component", "radio.serial").Info("port reopened")
	s.start(port)
	return nil
}

func (s *Serial) readLoop(port io.Reader, done chan struct{}) {
	defer close(done)
	logger := log.WithField("component", "radio.serial")

	sc := bufio.NewScanner(port)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case line == "READY":
			select {
			case s.ready <- struct{}{}:
			default:
			}
		case strings.HasPrefix(line, "{"):
			if !s.scanning.Load() {
				continue
			}
			adv, err := parseAdvertisement(line)
			if err != nil {
				logger.WithError(err).Debug("bad advertisement line")
				continue
			}
			s.q.push(adv)
		default:
			logger.WithField("line", line).Debug("ignoring line")
		}
	}
	if s.closing.Load() {
		return
	}
	if err := sc.Err(); err != nil {
		logger.WithError(err).Warn("read loop ended")
	} else {
		logger.Warn("port closed by device")
	}
}

type wireAdvertisement struct {
	Address     string  `json:"address"`
	Name        string  `json:"name"`
	RSSI        int     `json:"rssi"`
	Mfg         string  `json:"mfg"`
	ServiceData bool    `json:"serviceData"`
	ServiceUUID bool    `json:"serviceUUID"`
	TxPower     *int    `json:"txPower"`
	Appearance  *uint16 `json:"appearance"`
}

func parseAdvertisement(line string) (logic.Advertisement, error) {
	var w wireAdvertisement
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return logic.Advertisement{}, err
	}
	if w.Address == "" {
		return logic.Advertisement{}, errors.New("missing address")
	}
	adv := logic.Advertisement{
		Address:        strings.ToUpper(w.Address),
		Name:           w.Name,
		RSSI:           w.RSSI,
		HasServiceData: w.ServiceData,
		HasServiceUUID: w.ServiceUUID,
		TxPower:        w.TxPower,
		Appearance:     w.Appearance,
	}
	if w.Mfg != "" {
		data, err := hex.DecodeString(w.Mfg)
		if err != nil {
			return logic.Advertisement{}, fmt.Errorf("mfg: %w", err)
		}
		adv.ManufacturerData = data
	}
	return adv, nil
}

func (s *Serial) command(format string, args ...any) error {
	port, done := s.conn()
	select {
	case <-done:
		return ErrClosed
	default:
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := fmt.Fprintf(port, format+"\n", args...); err != nil {
		return fmt.Errorf("serial radio write: %w", err)
	}
	return nil
}

// StartScan asks the co-processor to scan for d.
func (s *Serial) StartScan(d time.Duration) error {
	if err := s.command("SCAN START %d", d.Milliseconds()); err != nil {
		return err
	}
	s.scanning.Store(true)
	return nil
}

// StopScan ends the scan. Advertisements arriving afterwards are ignored.
func (s *Serial) StopScan() error {
	s.scanning.Store(false)
	return s.command("SCAN STOP")
}

// ClearResults discards buffered advertisements.
func (s *Serial) ClearResults() { s.q.clear() }

// Results returns the advertisement channel.
func (s *Serial) Results() <-chan logic.Advertisement { return s.q.ch }

// Dropped returns the number of advertisements lost to a full queue.
func (s *Serial) Dropped() uint64 { return s.q.dropped.Load() }

// Reset restarts the co-processor and blocks until it reports READY. A port
// whose reader has stopped is reopened first.
func (s *Serial) Reset() error {
	s.scanning.Store(false)
	if err := s.reopen(); err != nil {
		return err
	}
	_, done := s.conn()
	select {
	case <-s.ready:
	default:
	}
	if err := s.command("RESET"); err != nil {
		return err
	}

	timeout := s.ResetTimeout
	if timeout <= 0 {
		timeout = DefaultResetTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		s.q.clear()
		return nil
	case <-done:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("serial radio reset: no READY within %v", timeout)
	}
}

// Close closes the port and stops the reader.
func (s *Serial) Close() error {
	var err error
	s.closed.Do(func() {
		s.closing.Store(true)
		s.scanning.Store(false)
		s.mu.Lock()
		err = s.port.Close()
		s.mu.Unlock()
	})
	return err
}
