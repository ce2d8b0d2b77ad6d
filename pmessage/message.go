// Package pmessage defines the event routed between machines.
//
// A Message carries raw MIDI bytes plus the routing-relevant summary the
// machines inspect (Kind, Channel). The router never looks at the payload.
package pmessage

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

var ErrNotNote = errors.New("message is not a note message")

// Kind tags a message. Values follow the MIDI message names used by the
// patch UI ("noteon", "clock", "allnotesoff", ...).
type Kind string

const (
	KindNoteOn        Kind = "noteon"
	KindNoteOff       Kind = "noteoff"
	KindControlChange Kind = "controlchange"
	KindAllNotesOff   Kind = "allnotesoff"
	KindAllSoundOff   Kind = "allsoundoff"
	KindClock         Kind = "clock"
	KindStart         Kind = "start"
	KindContinue      Kind = "continue"
	KindStop          Kind = "stop"
	KindUnknown       Kind = "unknown"
)

// Message is one routed event. Treat it as immutable: use Clone before
// modifying Payload.
type Message struct {
	Kind          Kind
	Channel       int
	Payload       []byte
	ChannelScoped bool
}

// FromMIDI classifies raw MIDI bytes.
func FromMIDI(raw midi.Message) Message {
	m := Message{
		Kind:    kindOf(raw),
		Payload: raw.Bytes(),
	}
	var ch uint8
	if raw.GetChannel(&ch) {
		m.Channel = int(ch)
		m.ChannelScoped = true
	}
	return m
}

func kindOf(raw midi.Message) Kind {
	var ch, controller, value uint8
	switch {
	case raw.GetControlChange(&ch, &controller, &value):
		switch controller {
		case 123:
			return KindAllNotesOff
		case 120:
			return KindAllSoundOff
		}
		return KindControlChange
	case raw.Is(midi.NoteOnMsg):
		return KindNoteOn
	case raw.Is(midi.NoteOffMsg):
		return KindNoteOff
	case raw.Is(midi.TimingClockMsg):
		return KindClock
	case raw.Is(midi.StartMsg):
		return KindStart
	case raw.Is(midi.ContinueMsg):
		return KindContinue
	case raw.Is(midi.StopMsg):
		return KindStop
	}
	return KindUnknown
}

// MIDI returns the payload as a gomidi message.
func (m Message) MIDI() midi.Message {
	return midi.Message(m.Payload)
}

// IsNote reports whether the message is a note on or note off.
func (m Message) IsNote() bool {
	return m.Kind == KindNoteOn || m.Kind == KindNoteOff
}

// IsNoteEnd reports note offs, including note ons with zero velocity.
func (m Message) IsNoteEnd() bool {
	if m.Kind == KindNoteOff {
		return true
	}
	return m.Kind == KindNoteOn && len(m.Payload) > 2 && m.Payload[2] == 0
}

// Key returns the note number of a note message.
func (m Message) Key() (uint8, error) {
	if !m.IsNote() || len(m.Payload) < 2 {
		return 0, fmt.Errorf("%w: %s", ErrNotNote, m.Kind)
	}
	return m.Payload[1], nil
}

// Clone returns a copy whose payload can be modified freely.
func (m Message) Clone() Message {
	c := m
	c.Payload = append([]byte(nil), m.Payload...)
	return c
}

// Transpose shifts a note message by semitones. The result must stay within
// the MIDI key range.
func (m Message) Transpose(semitones int) (Message, error) {
	key, err := m.Key()
	if err != nil {
		return m, err
	}
	shifted := int(key) + semitones
	if shifted < 0 || shifted > 127 {
		return m, fmt.Errorf("transposed key %d out of range", shifted)
	}
	c := m.Clone()
	c.Payload[1] = uint8(shifted)
	return c, nil
}

func (m Message) String() string {
	if m.ChannelScoped {
		return fmt.Sprintf("%s ch=%d % X", m.Kind, m.Channel, m.Payload)
	}
	return fmt.Sprintf("%s % X", m.Kind, m.Payload)
}
