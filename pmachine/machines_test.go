package pmachine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/patchbay/pmessage"
)

type emitted struct {
	kind    pmessage.Kind
	key     uint8
	channel int
}

// capture wires src to a slice instead of a router.
func capture(src Source) *[]emitted {
	var out []emitted
	src.SetEmit(func(msg pmessage.Message, channel int) {
		e := emitted{kind: msg.Kind, channel: channel}
		if key, err := msg.Key(); err == nil {
			e.key = key
		}
		out = append(out, e)
	})
	return &out
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "ThruMachine_0", r.Next("ThruMachine"))
	assert.Equal(t, "ThruMachine_1", r.Next("ThruMachine"))
	assert.Equal(t, "ClockMachine_0", r.Next("ClockMachine"))
}

func TestBase(t *testing.T) {
	t.Run("unique ids per type", func(t *testing.T) {
		a := NewBase("BaseTest")
		b := NewBase("BaseTest")
		assert.NotEqual(t, a.ID(), b.ID())
	})

	t.Run("emit without binding is a no-op", func(t *testing.T) {
		b := NewBaseWithID("lonely", 0)
		b.Emit(pmessage.Clock(), 0)
	})

	t.Run("disabled source emits nothing", func(t *testing.T) {
		b := NewBaseWithID("src", 0)
		out := capture(b)
		b.Emit(pmessage.Clock(), 0)
		b.SetEnabled(false)
		b.Emit(pmessage.Clock(), 0)
		assert.Equal(t, 1, len(*out))
		assert.False(t, b.Enabled())
	})

	t.Run("last emit binding wins", func(t *testing.T) {
		b := NewBaseWithID("src", 0)
		first := capture(b)
		second := capture(b)
		b.Emit(pmessage.Start(), 0)
		assert.Equal(t, 0, len(*first))
		assert.Equal(t, 1, len(*second))
	})

	t.Run("output channels are copied", func(t *testing.T) {
		b := NewBaseWithID("src", 1, 2)
		outs := b.OutputChannels()
		outs[0] = 9
		assert.Equal(t, []int{1, 2}, b.OutputChannels())
	})
}

func TestMessageResult(t *testing.T) {
	assert.Equal(t, "Processed", Processed.String())
	assert.Equal(t, "Ignored", Ignored.String())
	assert.Equal(t, "Unknown", MessageResult(7).String())
}

func TestFunc(t *testing.T) {
	t.Run("forwards via emit", func(t *testing.T) {
		f := NewFunc(func(m *Func, msg pmessage.Message, ch int) (MessageResult, error) {
			m.Emit(msg, ch+1)
			return Processed, nil
		}, WithFuncID("fn"), WithOutputs(1))
		out := capture(f)

		res, err := f.Receive(pmessage.Start(), 0)
		assert.NoError(t, err)
		assert.Equal(t, Processed, res)
		assert.Equal(t, []emitted{{kind: pmessage.KindStart, channel: 1}}, *out)
		assert.Equal(t, "fn", f.ID())
	})

	t.Run("nil receive ignores", func(t *testing.T) {
		f := NewFunc(nil, WithTypeName("Nothing"))
		res, err := f.Receive(pmessage.Start(), 0)
		assert.NoError(t, err)
		assert.Equal(t, Ignored, res)
	})

	t.Run("errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		f := NewFunc(func(*Func, pmessage.Message, int) (MessageResult, error) {
			return Ignored, boom
		})
		_, err := f.Receive(pmessage.Start(), 0)
		assert.True(t, errors.Is(err, boom))
	})
}

func TestThru(t *testing.T) {
	noteOnStatus := uint8(0x90)
	key := uint8(60)

	t.Run("passes through on the same channel", func(t *testing.T) {
		thru := NewThru(ThruConfig{})
		out := capture(thru)

		res, err := thru.Receive(pmessage.NoteOn(0, 60, 100), 0)
		assert.NoError(t, err)
		assert.Equal(t, Processed, res)
		assert.Equal(t, []emitted{{kind: pmessage.KindNoteOn, key: 60, channel: 0}}, *out)
	})

	t.Run("detunes notes only", func(t *testing.T) {
		thru := NewThru(ThruConfig{Detune: -12})
		out := capture(thru)

		_, _ = thru.Receive(pmessage.NoteOn(0, 60, 100), 0)
		_, _ = thru.Receive(pmessage.Clock(), 0)
		assert.Equal(t, []emitted{
			{kind: pmessage.KindNoteOn, key: 48, channel: 0},
			{kind: pmessage.KindClock, channel: 0},
		}, *out)
	})

	t.Run("detune out of range drops", func(t *testing.T) {
		thru := NewThru(ThruConfig{Detune: 12})
		out := capture(thru)
		res, err := thru.Receive(pmessage.NoteOn(0, 120, 100), 0)
		assert.NoError(t, err)
		assert.Equal(t, Ignored, res)
		assert.Equal(t, 0, len(*out))
	})

	t.Run("deny filter", func(t *testing.T) {
		thru := NewThru(ThruConfig{Mode: FilterDeny, Filters: []Filter{{Status: 0xF8}}})
		assert.True(t, thru.Filtered(pmessage.Clock()))
		assert.False(t, thru.Filtered(pmessage.Start()))

		res, _ := thru.Receive(pmessage.Clock(), 0)
		assert.Equal(t, Ignored, res)
	})

	t.Run("allow filter with data byte", func(t *testing.T) {
		thru := NewThru(ThruConfig{Mode: FilterAllow, Filters: []Filter{{Status: noteOnStatus, Data: &key}}})
		assert.False(t, thru.Filtered(pmessage.NoteOn(0, 60, 100)))
		assert.True(t, thru.Filtered(pmessage.NoteOn(0, 61, 100)))
		assert.True(t, thru.Filtered(pmessage.Clock()))
	})

	t.Run("config swap", func(t *testing.T) {
		thru := NewThru(ThruConfig{})
		thru.SetConfig(ThruConfig{Detune: 3})
		assert.Equal(t, 3, thru.Config().Detune)
	})
}

func TestNoteSplit(t *testing.T) {
	t.Run("splits on threshold", func(t *testing.T) {
		split := NewNoteSplit(NoteSplitConfig{Threshold: 60, Active: true})
		out := capture(split)

		_, _ = split.Receive(pmessage.NoteOn(0, 61, 100), 0)
		_, _ = split.Receive(pmessage.NoteOn(0, 60, 100), 0)
		assert.Equal(t, []emitted{
			{kind: pmessage.KindNoteOn, key: 61, channel: SplitHigh},
			{kind: pmessage.KindNoteOn, key: 60, channel: SplitLow},
		}, *out)
	})

	t.Run("inactive sends notes to both", func(t *testing.T) {
		split := NewNoteSplit(NoteSplitConfig{Threshold: 60})
		out := capture(split)
		_, _ = split.Receive(pmessage.NoteOff(0, 10), 0)
		assert.Equal(t, 2, len(*out))
	})

	t.Run("non notes", func(t *testing.T) {
		split := NewNoteSplit(NoteSplitConfig{Threshold: 60, Active: true})
		out := capture(split)

		res, _ := split.Receive(pmessage.Clock(), 0)
		assert.Equal(t, Ignored, res)

		res, _ = split.Receive(pmessage.AllNotesOff(0), 0)
		assert.Equal(t, Processed, res)
		assert.Equal(t, 2, len(*out))

		split.SetConfig(NoteSplitConfig{Threshold: 60, Active: true, BroadcastNonNotes: true})
		res, _ = split.Receive(pmessage.Clock(), 0)
		assert.Equal(t, Processed, res)
		assert.Equal(t, 4, len(*out))
	})

	t.Run("moving threshold silences outputs", func(t *testing.T) {
		split := NewNoteSplit(NoteSplitConfig{Threshold: 60, Active: true})
		out := capture(split)

		split.SetConfig(NoteSplitConfig{Threshold: 60, Active: false})
		assert.Equal(t, 0, len(*out))

		split.SetConfig(NoteSplitConfig{Threshold: 64, Active: true})
		assert.Equal(t, []emitted{
			{kind: pmessage.KindAllNotesOff, channel: SplitHigh},
			{kind: pmessage.KindAllNotesOff, channel: SplitLow},
		}, *out)
	})
}

func TestRoundRobin(t *testing.T) {
	rr := NewRoundRobin(2)
	assert.Equal(t, []int{1, 2}, rr.OutputChannels())
	out := capture(rr)

	_, _ = rr.Receive(pmessage.NoteOn(0, 60, 100), 0)
	_, _ = rr.Receive(pmessage.NoteOn(0, 64, 100), 0)
	_, _ = rr.Receive(pmessage.NoteOn(0, 67, 100), 0)
	_, _ = rr.Receive(pmessage.NoteOff(0, 64), 0)

	res, _ := rr.Receive(pmessage.NoteOff(0, 50), 0)
	assert.Equal(t, Ignored, res)

	_, _ = rr.Receive(pmessage.Stop(), 0)
	_, _ = rr.Receive(pmessage.NoteOn(0, 72, 100), 0)

	assert.Equal(t, []emitted{
		{kind: pmessage.KindNoteOn, key: 60, channel: 1},
		{kind: pmessage.KindNoteOn, key: 64, channel: 2},
		{kind: pmessage.KindNoteOn, key: 67, channel: 1},
		{kind: pmessage.KindNoteOff, key: 64, channel: 2},
		{kind: pmessage.KindStop, channel: 1},
		{kind: pmessage.KindStop, channel: 2},
		{kind: pmessage.KindNoteOn, key: 72, channel: 1},
	}, *out)
}

func TestClock(t *testing.T) {
	t.Run("interval", func(t *testing.T) {
		c := NewClock(125)
		assert.Equal(t, 20*time.Millisecond, c.Interval())
		assert.Error(t, c.SetTempo(0))
		assert.NoError(t, c.SetTempo(250))
		assert.Equal(t, 10*time.Millisecond, c.Interval())
	})

	t.Run("transport", func(t *testing.T) {
		c := NewClock(120)
		out := capture(c)

		c.Tick()
		assert.Equal(t, 0, len(*out))

		assert.NoError(t, c.SetStatus(ClockStarted))
		c.Tick()
		assert.NoError(t, c.SetStatus(ClockStarted))
		assert.NoError(t, c.SetStatus(ClockStopped))

		kinds := make([]pmessage.Kind, len(*out))
		for i, e := range *out {
			kinds[i] = e.kind
		}
		assert.Equal(t, []pmessage.Kind{
			pmessage.KindStart, pmessage.KindAllNotesOff, pmessage.KindAllSoundOff,
			pmessage.KindClock,
			pmessage.KindStop, pmessage.KindAllNotesOff, pmessage.KindAllSoundOff,
		}, kinds)

		assert.Error(t, c.SetStatus("rewind"))
	})

	t.Run("run schedules ticks", func(t *testing.T) {
		c := NewClock(6000)
		out := capture(c)
		assert.NoError(t, c.SetStatus(ClockStarted))

		ctx, cancel := context.WithCancel(context.Background())
		ticks := 0
		err := c.Run(ctx, func(fn func()) error {
			if ticks == 3 {
				return nil
			}
			fn()
			ticks++
			if ticks == 3 {
				cancel()
			}
			return nil
		})
		assert.True(t, errors.Is(err, context.Canceled))
		// start + 2 panic messages + 3 pulses
		assert.Equal(t, 6, len(*out))
	})

	t.Run("run stops on schedule error", func(t *testing.T) {
		c := NewClock(6000)
		closed := errors.New("closed")
		err := c.Run(context.Background(), func(func()) error { return closed })
		assert.True(t, errors.Is(err, closed))
	})
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	var seen int
	c.OnReceive(func(Received) { seen++ })

	res, err := c.Receive(pmessage.NoteOn(1, 60, 100), 3)
	assert.NoError(t, err)
	assert.Equal(t, Processed, res)
	_, _ = c.Receive(pmessage.Clock(), 0)

	assert.Equal(t, 2, seen)
	assert.Equal(t, []pmessage.Kind{pmessage.KindNoteOn, pmessage.KindClock}, c.Kinds())
	assert.Equal(t, 3, c.Received()[0].Channel)

	c.Reset()
	assert.Equal(t, 0, len(c.Received()))
}
