// Package node runs the presence-node control loop. The loop owns the engine
// and the scan controller; every other goroutine reaches them through Do.
package node

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/presence-node/internal/gpio"
	"github.com/sweeney/presence-node/internal/logic"
	"github.com/sweeney/presence-node/internal/mqtt"
	"github.com/sweeney/presence-node/internal/scan"
	"github.com/sweeney/presence-node/internal/status"
)

// ErrStopped is returned by Do and ResetRadio once the loop has exited.
var ErrStopped = errors.New("node stopped")

// Options wires a Node. Engine, Scanner, Output and Publisher are required.
type Options struct {
	Engine    *logic.Engine
	Scanner   *scan.Controller
	Output    gpio.Output
	Publisher mqtt.Publisher

	// MQTTStatus, when set, is polled into the tracker.
	MQTTStatus mqtt.ConnectionStatus

	// Tracker may be nil, in which case status events carry no payload.
	Tracker *status.Tracker

	// Heartbeat is the interval between HEARTBEAT events; 0 disables them.
	Heartbeat time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	// Network, when set, is read before STARTUP and every heartbeat.
	Network func() *status.NetworkInfo
}

type command struct {
	fn   func(now time.Time)
	done chan struct{}
}

// Node is the single control loop.
type Node struct {
	engine     *logic.Engine
	scanner    *scan.Controller
	output     gpio.Output
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	heartbeat  time.Duration
	now        func() time.Time
	network    func() *status.NetworkInfo

	cmds          chan command
	stopped       chan struct{}
	lastHeartbeat time.Time
}

// New creates a Node. It does not start the loop.
func New(opts Options) *Node {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Node{
		engine:     opts.Engine,
		scanner:    opts.Scanner,
		output:     opts.Output,
		publisher:  opts.Publisher,
		mqttStatus: opts.MQTTStatus,
		tracker:    opts.Tracker,
		heartbeat:  opts.Heartbeat,
		now:        opts.Now,
		network:    opts.Network,
		cmds:       make(chan command),
		stopped:    make(chan struct{}),
	}
}

// Do runs fn on the loop goroutine and waits for it. fn must not block.
func (n *Node) Do(ctx context.Context, fn func(e *logic.Engine, now time.Time)) error {
	return n.exec(ctx, func(now time.Time) {
		fn(n.engine, now)
		n.evaluate(now)
		n.updateTracker()
	})
}

// ResetRadio forces a radio reset on the loop goroutine. The reset blocks the
// loop until the radio is back.
func (n *Node) ResetRadio(ctx context.Context) error {
	return n.exec(ctx, func(now time.Time) {
		n.scanner.ForceReset()
		n.updateTracker()
	})
}

func (n *Node) exec(ctx context.Context, fn func(now time.Time)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case n.cmds <- cmd:
	case <-n.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// The loop runs fn inline right after receiving it.
	<-cmd.done
	return nil
}

// Run drives the node until a signal arrives. Every tick advances the scan
// cycle and then re-evaluates presence, so devices expired at the start of a
// cycle are never counted by that cycle's decision.
func (n *Node) Run(tick <-chan time.Time, sig <-chan os.Signal) error {
	defer close(n.stopped)

	start := n.now()
	n.lastHeartbeat = start
	n.startup(start)

	for {
		select {
		case s := <-sig:
			n.shutdown(s)
			return nil

		case cmd := <-n.cmds:
			cmd.fn(n.now())
			close(cmd.done)

		case <-tick:
			n.step(n.now())
		}
	}
}

func (n *Node) step(t time.Time) {
	n.scanner.Tick(t)
	n.evaluate(t)
	n.updateTracker()
	n.checkHeartbeat(t)
}

// evaluate runs the presence decision and drives the outputs on a transition.
// An output that failed to switch earlier is retried on every call.
func (n *Node) evaluate(t time.Time) {
	entry, changed := n.engine.Evaluate(t)
	if !changed {
		if want := n.engine.OutputOn(); n.output.State() != want {
			n.setOutput(want)
		}
		return
	}

	log.WithFields(log.Fields{
		"component": "node",
		"state":     onOff(entry.OutputState),
		"reason":    entry.Reason,
		"address":   entry.TriggerAddress,
		"name":      entry.TriggerName,
	}).Info("output changed")

	n.setOutput(entry.OutputState)
	if err := n.publisher.PublishTransition(entry); err != nil {
		log.WithField("component", "node").WithError(err).Warn("publish transition failed")
	}
}

func (n *Node) setOutput(on bool) {
	if err := n.output.SetPresence(on); err != nil {
		log.WithFields(log.Fields{"component": "node", "state": onOff(on)}).
			WithError(err).Error("gpio write failed")
	}
}

func (n *Node) checkHeartbeat(t time.Time) {
	if n.heartbeat <= 0 || t.Sub(n.lastHeartbeat) < n.heartbeat {
		return
	}
	n.lastHeartbeat = t

	stats := n.engine.Stats()
	log.WithFields(log.Fields{
		"component": "node",
		"devices":   stats.Devices,
		"known":     stats.Known,
		"present":   stats.Present,
		"ever_seen": stats.EverSeen,
		"output":    onOff(stats.OutputOn),
	}).Info("heartbeat")

	n.refreshNetwork()
	n.publishSystem(mqtt.EventHeartbeat, "", t, false)
}

func (n *Node) startup(t time.Time) {
	// Outputs start from a known OFF state.
	n.setOutput(false)
	n.refreshNetwork()
	n.updateTracker()
	n.publishSystem(mqtt.EventStartup, "", t, true)
}

func (n *Node) shutdown(s os.Signal) {
	name := signalName(s)
	log.WithFields(log.Fields{"component": "node", "signal": name}).Info("shutting down")

	if err := n.scanner.Close(); err != nil {
		log.WithField("component", "node").WithError(err).Warn("stop scan failed")
	}
	n.setOutput(false)
	n.updateTracker()
	n.publishSystem(mqtt.EventShutdown, name, n.now(), true)
}

func (n *Node) publishSystem(event, reason string, t time.Time, retained bool) {
	se := mqtt.SystemEvent{
		Timestamp: t,
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if n.tracker != nil {
		se.RawPayload = status.FormatStatusEvent(n.tracker.Snapshot(), event, reason)
	}
	logger := log.WithFields(log.Fields{"component": "node", "event": event})
	if err := n.publisher.PublishSystem(se); err != nil {
		logger.WithError(err).Warn("publish system event failed")
		return
	}
	logger.Debug("published system event")
}

func (n *Node) updateTracker() {
	if n.tracker == nil {
		return
	}
	n.tracker.Update(n.engine.Stats(), n.scanner.Stats())
	if n.mqttStatus != nil {
		n.tracker.SetMQTTConnected(n.mqttStatus.IsConnected())
	}
}

func (n *Node) refreshNetwork() {
	if n.tracker == nil || n.network == nil {
		return
	}
	if info := n.network(); info != nil {
		n.tracker.SetNetwork(info)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
