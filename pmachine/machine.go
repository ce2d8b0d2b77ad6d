// Package pmachine defines the contracts between the router and the machines
// of a patch, plus a set of stock machines.
//
// A machine is a node in the patch: a Source emits messages on its output
// channels, a Target receives them on its input channels, a SourceTarget does
// both. Machines embed *Base for identity, the enabled flag and the emit
// binding installed by the router.
package pmachine

import (
	"github.com/birdayz/patchbay/pmessage"
)

// MessageResult tells the router whether a target acted on a message. It only
// drives the sending pulse of the link.
type MessageResult int

const (
	Processed MessageResult = iota
	Ignored
)

func (r MessageResult) String() string {
	switch r {
	case Processed:
		return "Processed"
	case Ignored:
		return "Ignored"
	default:
		return "Unknown"
	}
}

// EmitFunc delivers msg to everything wired to one output channel.
type EmitFunc func(msg pmessage.Message, channel int)

// Machine is the identity every node has.
type Machine interface {
	// ID is process-unique and stable for the lifetime of the machine.
	ID() string
	Enabled() bool
}

// Source emits messages. The router calls SetEmit on every connect; the last
// call wins and always covers the whole fan-out of the source.
type Source interface {
	Machine
	SetEmit(EmitFunc)
	// OutputChannels lists the output channels, used for connect-to-all.
	OutputChannels() []int
}

// Target receives messages. Receive runs on the emitter's goroutine and may
// emit again before returning.
type Target interface {
	Machine
	Receive(msg pmessage.Message, channel int) (MessageResult, error)
}

// SourceTarget is a processor: it receives, transforms and re-emits.
type SourceTarget interface {
	Source
	Target
}
