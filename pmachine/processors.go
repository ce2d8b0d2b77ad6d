package pmachine

import (
	"sync"

	"github.com/birdayz/patchbay/pmessage"
)

// ReceiveFunc handles one message for a Func machine. Use m.Emit to forward.
type ReceiveFunc func(m *Func, msg pmessage.Message, channel int) (MessageResult, error)

// FuncOption configures a Func machine.
type FuncOption func(*funcConfig)

type funcConfig struct {
	id       string
	typeName string
	outputs  []int
}

// WithFuncID sets an explicit id instead of drawing one from the registry.
func WithFuncID(id string) FuncOption {
	return func(c *funcConfig) {
		c.id = id
	}
}

// WithTypeName sets the type name used for the generated id.
func WithTypeName(name string) FuncOption {
	return func(c *funcConfig) {
		c.typeName = name
	}
}

// WithOutputs declares the output channels. Defaults to channel 0.
func WithOutputs(channels ...int) FuncOption {
	return func(c *funcConfig) {
		c.outputs = channels
	}
}

// Func is a machine backed by a function.
//
// Example, a pass-through that drops clock pulses:
//
//	pmachine.NewFunc(func(m *pmachine.Func, msg pmessage.Message, ch int) (pmachine.MessageResult, error) {
//	    if msg.Kind == pmessage.KindClock {
//	        return pmachine.Ignored, nil
//	    }
//	    m.Emit(msg, 0)
//	    return pmachine.Processed, nil
//	})
type Func struct {
	*Base
	receive ReceiveFunc
}

// NewFunc creates a function-backed machine.
func NewFunc(receive ReceiveFunc, opts ...FuncOption) *Func {
	cfg := funcConfig{typeName: "FuncMachine", outputs: []int{0}}
	for _, opt := range opts {
		opt(&cfg)
	}
	id := cfg.id
	if id == "" {
		id = NextID(cfg.typeName)
	}
	return &Func{
		Base:    NewBaseWithID(id, cfg.outputs...),
		receive: receive,
	}
}

func (f *Func) Receive(msg pmessage.Message, channel int) (MessageResult, error) {
	if f.receive == nil {
		return Ignored, nil
	}
	return f.receive(f, msg, channel)
}

// FilterMode selects how Thru applies its filters.
type FilterMode int

const (
	FilterNone FilterMode = iota
	// FilterAllow passes only messages matching a filter.
	FilterAllow
	// FilterDeny drops messages matching a filter.
	FilterDeny
)

// Filter matches on the status byte and, when Data is set, the first data
// byte (note number, controller number).
type Filter struct {
	Status uint8
	Data   *uint8
}

func (f Filter) matches(payload []byte) bool {
	if len(payload) == 0 || payload[0] != f.Status {
		return false
	}
	if f.Data == nil {
		return true
	}
	return len(payload) > 1 && payload[1] == *f.Data
}

type ThruConfig struct {
	// Detune transposes note messages by this many semitones.
	Detune  int
	Mode    FilterMode
	Filters []Filter
}

// Thru forwards everything from input 0 to output 0, optionally detuned and
// filtered.
type Thru struct {
	*Base

	mu     sync.RWMutex
	config ThruConfig
}

func NewThru(config ThruConfig) *Thru {
	return &Thru{
		Base:   NewBase("ThruMachine", 0),
		config: config,
	}
}

func (t *Thru) Config() ThruConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}

func (t *Thru) SetConfig(config ThruConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.config = config
}

// Filtered reports whether msg is dropped by the filter configuration.
func (t *Thru) Filtered(msg pmessage.Message) bool {
	cfg := t.Config()
	if cfg.Mode == FilterNone {
		return false
	}
	for _, f := range cfg.Filters {
		if f.matches(msg.Payload) {
			return cfg.Mode == FilterDeny
		}
	}
	return cfg.Mode == FilterAllow
}

func (t *Thru) Receive(msg pmessage.Message, channel int) (MessageResult, error) {
	if t.Filtered(msg) {
		return Ignored, nil
	}
	if detune := t.Config().Detune; detune != 0 && msg.IsNote() {
		shifted, err := msg.Transpose(detune)
		if err != nil {
			// Detuned out of the key range.
			return Ignored, nil
		}
		msg = shifted
	}
	t.Emit(msg, channel)
	return Processed, nil
}

// Output channels of NoteSplit.
const (
	SplitHigh = 1
	SplitLow  = 2
)

type NoteSplitConfig struct {
	// Threshold is the highest note routed to SplitLow.
	Threshold uint8
	// Active enables splitting; when false notes go to both outputs.
	Active bool
	// BroadcastNonNotes forwards every non-note message to both outputs.
	// All-notes-off and all-sound-off are always forwarded.
	BroadcastNonNotes bool
}

// NoteSplit routes notes above the threshold to SplitHigh and the rest to
// SplitLow.
type NoteSplit struct {
	*Base

	mu     sync.RWMutex
	config NoteSplitConfig
}

func NewNoteSplit(config NoteSplitConfig) *NoteSplit {
	return &NoteSplit{
		Base:   NewBase("NoteSplitMachine", SplitHigh, SplitLow),
		config: config,
	}
}

func (s *NoteSplit) Config() NoteSplitConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// SetConfig replaces the configuration. Moving the threshold silences both
// outputs so no note is left hanging on the side it no longer maps to.
func (s *NoteSplit) SetConfig(config NoteSplitConfig) {
	s.mu.Lock()
	moved := s.config.Threshold != config.Threshold
	s.config = config
	s.mu.Unlock()

	if moved {
		s.Emit(pmessage.AllNotesOff(0), SplitHigh)
		s.Emit(pmessage.AllNotesOff(0), SplitLow)
	}
}

func (s *NoteSplit) Receive(msg pmessage.Message, _ int) (MessageResult, error) {
	cfg := s.Config()

	if msg.IsNote() {
		key, err := msg.Key()
		if err != nil {
			return Ignored, err
		}
		switch {
		case !cfg.Active:
			s.Emit(msg, SplitHigh)
			s.Emit(msg, SplitLow)
		case key > cfg.Threshold:
			s.Emit(msg, SplitHigh)
		default:
			s.Emit(msg, SplitLow)
		}
		return Processed, nil
	}

	if cfg.BroadcastNonNotes || msg.Kind == pmessage.KindAllNotesOff || msg.Kind == pmessage.KindAllSoundOff {
		s.Emit(msg, SplitHigh)
		s.Emit(msg, SplitLow)
		return Processed, nil
	}
	return Ignored, nil
}

// RoundRobin spreads incoming notes over voices outputs (channels 1..n), one
// voice per note, and sends each note end to the voice that played it. Other
// messages go to every voice; start and stop reset the rotation.
//
// RoundRobin is not safe for concurrent use; it relies on the router's
// single dispatch goroutine.
type RoundRobin struct {
	*Base

	voices  int
	current int
	active  map[uint8]int
}

func NewRoundRobin(voices int) *RoundRobin {
	if voices < 1 {
		voices = 1
	}
	outputs := make([]int, voices)
	for i := range outputs {
		outputs[i] = i + 1
	}
	return &RoundRobin{
		Base:   NewBase("RoundRobinMachine", outputs...),
		voices: voices,
		active: make(map[uint8]int),
	}
}

func (r *RoundRobin) Receive(msg pmessage.Message, _ int) (MessageResult, error) {
	switch {
	case msg.IsNoteEnd():
		key, err := msg.Key()
		if err != nil {
			return Ignored, err
		}
		voice, ok := r.active[key]
		if !ok {
			return Ignored, nil
		}
		delete(r.active, key)
		r.Emit(msg, voice+1)

	case msg.IsNote():
		key, err := msg.Key()
		if err != nil {
			return Ignored, err
		}
		r.active[key] = r.current
		r.Emit(msg, r.current+1)
		r.current = (r.current + 1) % r.voices

	default:
		if msg.Kind == pmessage.KindStart || msg.Kind == pmessage.KindStop {
			r.current = 0
			clear(r.active)
		}
		for voice := 1; voice <= r.voices; voice++ {
			r.Emit(msg, voice)
		}
	}
	return Processed, nil
}
