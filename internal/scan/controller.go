// Package scan runs the scan duty cycle: a polled state machine that starts
// and stops the radio and feeds discovered devices into the engine.
package scan

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/presence-node/internal/logic"
	"github.com/sweeney/presence-node/internal/radio"
)

// Defaults for Config.
const (
	DefaultScanDuration   = 2 * time.Second
	DefaultCycleDuration  = 10 * time.Second
	DefaultMaxFailedScans = 3
)

// State is the controller phase.
type State int

const (
	Idle State = iota
	Scanning
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Scanning:
		return "SCANNING"
	case Cooldown:
		return "COOLDOWN"
	default:
		return "UNKNOWN"
	}
}

// Config is the duty-cycle timing.
type Config struct {
	ScanDuration   time.Duration
	CycleDuration  time.Duration
	MaxFailedScans int
}

func (c Config) withDefaults() Config {
	if c.ScanDuration <= 0 {
		c.ScanDuration = DefaultScanDuration
	}
	if c.CycleDuration < c.ScanDuration {
		c.CycleDuration = max(DefaultCycleDuration, c.ScanDuration)
	}
	if c.MaxFailedScans <= 0 {
		c.MaxFailedScans = DefaultMaxFailedScans
	}
	return c
}

// Sink receives the cycle's side effects. logic.Engine implements it.
type Sink interface {
	CleanupExpired(now time.Time) (removed, deactivated int)
	Observe(adv logic.Advertisement, now time.Time)
}

// Stats are cumulative controller counters.
type Stats struct {
	State               State
	Cycles              int
	Completed           int
	Failures            int
	ConsecutiveFailures int
	Resets              int
	ResetFailures       int
	Ingested            int
	Dropped             uint64
	LastSuccess         time.Time
}

// Controller is the scan duty cycle. It is not safe for concurrent use; Tick
// is called from the control loop only.
type Controller struct {
	cfg   Config
	radio radio.Radio
	sink  Sink

	state      State
	cycleStart time.Time
	stats      Stats
}

// NewController creates an idle controller.
func NewController(cfg Config, r radio.Radio, sink Sink) *Controller {
	return &Controller{cfg: cfg.withDefaults(), radio: r, sink: sink}
}

// Tick advances the state machine. It only checks elapsed time while a cycle
// is in progress, so calling it at any rate is safe.
func (c *Controller) Tick(now time.Time) {
	switch c.state {
	case Idle:
		c.startCycle(now)
	case Scanning:
		c.drain(now)
		if now.Sub(c.cycleStart) >= c.cfg.ScanDuration {
			c.endScan(now)
		}
	case Cooldown:
		if now.Sub(c.cycleStart) >= c.cfg.CycleDuration {
			c.state = Idle
			c.startCycle(now)
		}
	}
}

func (c *Controller) startCycle(now time.Time) {
	c.radio.ClearResults()
	removed, deactivated := c.sink.CleanupExpired(now)
	if removed > 0 || deactivated > 0 {
		log.WithFields(log.Fields{
			"component":   "scan",
			"removed":     removed,
			"deactivated": deactivated,
		}).Debug("expired devices")
	}

	if err := c.radio.StartScan(c.cfg.ScanDuration); err != nil {
		c.stats.Failures++
		c.stats.ConsecutiveFailures++
		log.WithFields(log.Fields{
			"component": "scan",
			"failures":  c.stats.ConsecutiveFailures,
		}).WithError(err).Warn("scan start failed")
		if c.stats.ConsecutiveFailures >= c.cfg.MaxFailedScans {
			c.reset("consecutive scan failures")
		}
		return
	}

	c.state = Scanning
	c.cycleStart = now
	c.stats.Cycles++
}

func (c *Controller) endScan(now time.Time) {
	if err := c.radio.StopScan(); err != nil {
		log.WithField("component", "scan").WithError(err).Warn("scan stop failed")
	}
	c.drain(now)
	c.state = Cooldown
	c.stats.Completed++
	c.stats.ConsecutiveFailures = 0
	c.stats.LastSuccess = now
}

// drain ingests everything the radio has queued without blocking.
func (c *Controller) drain(now time.Time) {
	results := c.radio.Results()
	for {
		select {
		case adv, ok := <-results:
			if !ok {
				return
			}
			c.sink.Observe(adv, now)
			c.stats.Ingested++
		default:
			return
		}
	}
}

func (c *Controller) reset(reason string) {
	logger := log.WithFields(log.Fields{"component": "scan", "reason": reason})
	logger.Warn("resetting radio")
	c.stats.Resets++
	if err := c.radio.Reset(); err != nil {
		c.stats.ResetFailures++
		logger.WithError(err).Error("radio reset failed")
	}
	c.stats.ConsecutiveFailures = 0
	c.state = Idle
}

// ForceReset resets the radio regardless of the failure count. The next Tick
// starts a fresh cycle.
func (c *Controller) ForceReset() {
	if c.state == Scanning {
		if err := c.radio.StopScan(); err != nil {
			log.WithField("component", "scan").WithError(err).Debug("stop before reset failed")
		}
	}
	c.reset("requested")
}

// State returns the current phase.
func (c *Controller) State() State { return c.state }

// Scanning reports whether a scan is in progress.
func (c *Controller) Scanning() bool { return c.state == Scanning }

// Stats returns a copy of the counters.
func (c *Controller) Stats() Stats {
	s := c.stats
	s.State = c.state
	s.Dropped = c.radio.Dropped()
	return s
}

// Close stops any running scan.
func (c *Controller) Close() error {
	if c.state != Scanning {
		return nil
	}
	c.state = Idle
	return c.radio.StopScan()
}
