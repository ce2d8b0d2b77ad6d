package pmachine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/birdayz/patchbay/pmessage"
)

// PulsesPerQuarter is the MIDI clock resolution.
const PulsesPerQuarter = 24

// ClockStatus is the transport state of a Clock.
type ClockStatus string

const (
	ClockStopped   ClockStatus = "stop"
	ClockStarted   ClockStatus = "start"
	ClockContinued ClockStatus = "continue"
)

// Clock emits MIDI timing pulses and transport messages on output 0.
type Clock struct {
	*Base

	mu     sync.Mutex
	tempo  float64
	status ClockStatus
}

// NewClock creates a stopped clock. tempo is in beats per minute.
func NewClock(tempo float64) *Clock {
	return &Clock{
		Base:   NewBase("ClockMachine", 0),
		tempo:  tempo,
		status: ClockStopped,
	}
}

func (c *Clock) Tempo() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempo
}

func (c *Clock) SetTempo(bpm float64) error {
	if bpm <= 0 {
		return fmt.Errorf("invalid tempo %v", bpm)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tempo = bpm
	return nil
}

// Interval is the time between two clock pulses at the current tempo.
func (c *Clock) Interval() time.Duration {
	return time.Duration(float64(time.Minute) / (c.Tempo() * PulsesPerQuarter))
}

func (c *Clock) Status() ClockStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetStatus changes the transport state and emits the matching transport
// message. Leaving or entering the stopped state also silences downstream
// machines.
func (c *Clock) SetStatus(status ClockStatus) error {
	transport, ok := pmessage.Standard(pmessage.Kind(status))
	if !ok {
		return fmt.Errorf("invalid clock status %q", status)
	}

	c.mu.Lock()
	prev := c.status
	c.status = status
	c.mu.Unlock()

	if prev == status {
		return nil
	}

	c.Emit(transport, 0)
	if prev == ClockStopped || status == ClockStopped {
		c.Emit(pmessage.AllNotesOff(0), 0)
		c.Emit(pmessage.AllSoundOff(0), 0)
	}
	return nil
}

// Tick emits one clock pulse while the transport runs.
func (c *Clock) Tick() {
	if c.Status() == ClockStopped {
		return
	}
	c.Emit(pmessage.Clock(), 0)
}

// Run ticks at the current tempo until ctx is done. Each pulse is handed to
// schedule, which must run it on the router's dispatch goroutine (see
// patchbay.Loop.Submit). Tempo changes take effect on the next pulse.
func (c *Clock) Run(ctx context.Context, schedule func(func()) error) error {
	interval := c.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := schedule(c.Tick); err != nil {
				return err
			}
			if next := c.Interval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Dispose stops the transport.
func (c *Clock) Dispose() {
	_ = c.SetStatus(ClockStopped)
}
