package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/presence-node/internal/logic"
)

// Default publisher timings.
const (
	DefaultPublishTimeout = 5 * time.Second
	DefaultRetryInterval  = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker string
	// ClientID defaults to a random "presence-node-<uuid>".
	ClientID       string
	Topics         Topics
	OutboxSize     int
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	RetryInterval  time.Duration
}

// RealPublisher publishes to an actual MQTT broker. Publish calls only queue
// the message; a single sender goroutine delivers the outbox in order, so a
// slow or unreachable broker never blocks the caller.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	outbox    *outbox
	timeout   time.Duration
	retry     time.Duration
	reconnect atomic.Bool

	wake      chan struct{}
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewRealPublisher creates a publisher for the given broker. A broker that
// is not reachable within the connect timeout is not an error: paho keeps
// retrying in the background and messages are buffered meanwhile.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker not set")
	}
	if opts.ClientID == "" {
		opts.ClientID = "presence-node-" + uuid.NewString()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	p := newPublisher(opts)
	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(opts.Topics.System, string(willPayload()), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithField("component", "mqtt").WithError(err).Warn("connection lost")
		})
	p.client = paho.NewClient(co)
	go p.run()

	token := p.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		log.WithFields(log.Fields{"component": "mqtt", "broker": opts.Broker}).
			Warn("broker not reachable yet, buffering until connected")
		return p, nil
	}
	if err := token.Error(); err != nil {
		p.Close()
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// NewPublisherWithClient creates a publisher on an existing client, which
// must already be connecting. Broker and ClientID in opts are ignored.
func NewPublisherWithClient(client paho.Client, opts Options) *RealPublisher {
	p := newPublisher(opts)
	p.client = client
	go p.run()
	return p
}

func newPublisher(opts Options) *RealPublisher {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	return &RealPublisher{
		topics:  opts.Topics,
		outbox:  newOutbox(opts.OutboxSize),
		timeout: opts.PublishTimeout,
		retry:   opts.RetryInterval,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (p *RealPublisher) onConnect(paho.Client) {
	logger := log.WithField("component", "mqtt")
	if p.reconnect.Swap(true) {
		logger.Info("reconnected")
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventReconnected})
		p.outbox.push(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1})
	} else {
		logger.Info("connected")
	}
	p.signal()
}

func (p *RealPublisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run is the sender goroutine. It is the only caller of client.Publish.
func (p *RealPublisher) run() {
	defer close(p.stopped)

	var retry <-chan time.Time
	for {
		select {
		case <-p.wake:
		case <-retry:
		case <-p.quit:
			p.flush()
			return
		}
		retry = nil
		if !p.flush() {
			retry = time.After(p.retry)
		}
	}
}

// flush sends the outbox in order while connected. A failed message and
// everything after it go back to the front of the outbox. It reports false
// when a retry is needed.
func (p *RealPublisher) flush() bool {
	if !p.client.IsConnectionOpen() {
		// onConnect wakes the sender.
		return true
	}
	msgs := p.outbox.drain()
	for i, m := range msgs {
		if err := p.send(m); err != nil {
			log.WithFields(log.Fields{"component": "mqtt", "pending": len(msgs) - i}).
				WithError(err).Warn("publish failed, re-buffering")
			p.outbox.requeue(msgs[i:])
			return false
		}
	}
	if len(msgs) > 1 {
		log.WithFields(log.Fields{"component": "mqtt", "count": len(msgs)}).Debug("sent buffered messages")
	}
	return true
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *RealPublisher) enqueue(m bufferedMsg) {
	p.outbox.push(m)
	p.signal()
}

// PublishTransition queues an output transition for the broker.
func (p *RealPublisher) PublishTransition(entry logic.OutputLogEntry) error {
	payload, err := FormatPayload(entry)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	p.enqueue(bufferedMsg{topic: p.topics.Output, payload: payload})
	return nil
}

// PublishSystem queues a system lifecycle event for the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	p.enqueue(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages not yet delivered.
func (p *RealPublisher) Buffered() int { return p.outbox.len() }

// Dropped returns the number of buffered messages lost to overflow.
func (p *RealPublisher) Dropped() int { return p.outbox.droppedTotal() }

// Close makes a last attempt to deliver the outbox, stops the sender and
// disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.quit) })
	<-p.stopped
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
