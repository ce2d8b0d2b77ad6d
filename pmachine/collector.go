package pmachine

import (
	"sync"

	"github.com/birdayz/patchbay/pmessage"
)

// Received is one message recorded by a Collector.
type Received struct {
	Message pmessage.Message
	Channel int
}

// Collector is an output machine that records everything it receives.
type Collector struct {
	*Base

	mu       sync.Mutex
	received []Received
	onRecv   func(Received)
}

func NewCollector() *Collector {
	return &Collector{Base: NewBase("CollectorMachine")}
}

// OnReceive installs a callback run for every recorded message.
func (c *Collector) OnReceive(fn func(Received)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRecv = fn
}

func (c *Collector) Receive(msg pmessage.Message, channel int) (MessageResult, error) {
	r := Received{Message: msg, Channel: channel}
	c.mu.Lock()
	c.received = append(c.received, r)
	fn := c.onRecv
	c.mu.Unlock()

	if fn != nil {
		fn(r)
	}
	return Processed, nil
}

// Received returns a copy of everything recorded so far.
func (c *Collector) Received() []Received {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Received(nil), c.received...)
}

// Kinds returns the kinds of the recorded messages, in order.
func (c *Collector) Kinds() []pmessage.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]pmessage.Kind, len(c.received))
	for i, r := range c.received {
		kinds[i] = r.Message.Kind
	}
	return kinds
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = nil
}
