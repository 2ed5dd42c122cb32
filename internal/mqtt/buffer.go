package mqtt

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// DefaultOutboxSize bounds the messages kept while the broker is unreachable.
const DefaultOutboxSize = 100

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages that could not be sent. When
// full the oldest message is overwritten. Safe for concurrent use; paho calls
// the reconnect handler from its own goroutine.
type outbox struct {
	mu       sync.Mutex
	buf      []bufferedMsg
	head     int // next write position
	count    int
	dropped  int
	overflow bool // logged since last drain
}

func newOutbox(capacity int) *outbox {
	if capacity <= 0 {
		capacity = DefaultOutboxSize
	}
	return &outbox{buf: make([]bufferedMsg, capacity)}
}

func (o *outbox) push(msg bufferedMsg) {
	o.mu.Lock()
	defer o.mu.Unlock()

	c := len(o.buf)
	o.buf[o.head] = msg
	o.head = (o.head + 1) % c
	if o.count < c {
		o.count++
		return
	}
	o.dropped++
	if !o.overflow {
		log.WithFields(log.Fields{"component": "mqtt", "capacity": c}).Warn("outbox full, dropping oldest")
		o.overflow = true
	}
}

// drain removes and returns every message, oldest first.
func (o *outbox) drain() []bufferedMsg {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.count == 0 {
		return nil
	}

	c := len(o.buf)
	out := make([]bufferedMsg, o.count)
	start := (o.head - o.count + c) % c
	for i := range out {
		out[i] = o.buf[(start+i)%c]
		o.buf[(start+i)%c] = bufferedMsg{}
	}
	o.count = 0
	o.head = 0
	o.overflow = false
	return out
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

// droppedTotal returns how many messages were overwritten since creation.
func (o *outbox) droppedTotal() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// requeue puts msgs back in front of whatever was pushed meanwhile, keeping
// send order. If the result exceeds capacity the oldest messages are dropped.
func (o *outbox) requeue(msgs []bufferedMsg) {
	if len(msgs) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	c := len(o.buf)
	all := make([]bufferedMsg, 0, len(msgs)+o.count)
	all = append(all, msgs...)
	start := (o.head - o.count + c) % c
	for i := 0; i < o.count; i++ {
		all = append(all, o.buf[(start+i)%c])
	}
	if n := len(all) - c; n > 0 {
		o.dropped += n
		all = all[n:]
	}

	clear(o.buf)
	copy(o.buf, all)
	o.count = len(all)
	o.head = o.count % c
}
