package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// FakeMessage is one message delivered through a FakeClient.
type FakeMessage struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakeClient is a paho.Client whose publishes complete immediately, or wait
// while stalled. Safe for concurrent use.
type FakeClient struct {
	mu        sync.Mutex
	connected bool
	stall     chan struct{}
	fail      error
	delivered []FakeMessage
}

// NewFakeClient creates a connected FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{connected: true}
}

// SetConnected controls IsConnected and IsConnectionOpen.
func (c *FakeClient) SetConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

// Stall makes later publishes wait until Release.
func (c *FakeClient) Stall() {
	c.mu.Lock()
	if c.stall == nil {
		c.stall = make(chan struct{})
	}
	c.mu.Unlock()
}

// Release completes every stalled publish.
func (c *FakeClient) Release() {
	c.mu.Lock()
	if c.stall != nil {
		close(c.stall)
		c.stall = nil
	}
	c.mu.Unlock()
}

// SetPublishError makes publishes complete with err until cleared with nil.
func (c *FakeClient) SetPublishError(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

// Delivered returns the messages published successfully, in order.
func (c *FakeClient) Delivered() []FakeMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FakeMessage(nil), c.delivered...)
}

func (c *FakeClient) IsConnected() bool { return c.IsConnectionOpen() }

func (c *FakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *FakeClient) Connect() paho.Token { return doneToken(nil) }

func (c *FakeClient) Disconnect(uint) { c.SetConnected(false) }

func (c *FakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	}
	msg := FakeMessage{Topic: topic, QoS: qos, Retained: retained, Payload: data}

	c.mu.Lock()
	stall := c.stall
	c.mu.Unlock()

	t := &fakeToken{done: make(chan struct{})}
	complete := func() {
		c.mu.Lock()
		t.err = c.fail
		if t.err == nil {
			c.delivered = append(c.delivered, msg)
		}
		c.mu.Unlock()
		close(t.done)
	}
	if stall == nil {
		complete()
		return t
	}
	go func() {
		<-stall
		complete()
	}()
	return t
}

func (c *FakeClient) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return doneToken(nil)
}

func (c *FakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return doneToken(nil)
}

func (c *FakeClient) Unsubscribe(...string) paho.Token { return doneToken(nil) }

func (c *FakeClient) AddRoute(string, paho.MessageHandler) {}

func (c *FakeClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
