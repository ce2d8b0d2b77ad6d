package pmachine

import (
	"sync"
	"sync/atomic"

	"github.com/birdayz/patchbay/pmessage"
	"golang.org/x/exp/slices"
)

// Base implements the Machine and Source plumbing. Embed it by pointer.
type Base struct {
	id      string
	outputs []int
	enabled atomic.Bool

	mu   sync.RWMutex
	emit EmitFunc
}

// NewBase creates an enabled machine with a fresh id from the process-wide
// registry.
func NewBase(typeName string, outputs ...int) *Base {
	return NewBaseWithID(NextID(typeName), outputs...)
}

// NewBaseWithID creates an enabled machine with an explicit id.
func NewBaseWithID(id string, outputs ...int) *Base {
	b := &Base{id: id, outputs: slices.Clone(outputs)}
	b.enabled.Store(true)
	return b
}

func (b *Base) ID() string {
	return b.id
}

func (b *Base) Enabled() bool {
	return b.enabled.Load()
}

func (b *Base) SetEnabled(enabled bool) {
	b.enabled.Store(enabled)
}

func (b *Base) OutputChannels() []int {
	return slices.Clone(b.outputs)
}

func (b *Base) SetEmit(fn EmitFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emit = fn
}

// Emit sends msg on an output channel. A disabled or unwired machine emits
// nothing.
func (b *Base) Emit(msg pmessage.Message, channel int) {
	if !b.Enabled() {
		return
	}
	b.mu.RLock()
	emit := b.emit
	b.mu.RUnlock()
	if emit != nil {
		emit(msg, channel)
	}
}
