package pmessage

import (
	"gitlab.com/gomidi/midi/v2"
)

// NoteOn builds a note on message for a MIDI channel (0-15).
func NoteOn(channel, key, velocity uint8) Message {
	return FromMIDI(midi.NoteOn(channel, key, velocity))
}

// NoteOff builds a note off message.
func NoteOff(channel, key uint8) Message {
	return FromMIDI(midi.NoteOff(channel, key))
}

// ControlChange builds a control change message.
func ControlChange(channel, controller, value uint8) Message {
	return FromMIDI(midi.ControlChange(channel, controller, value))
}

// Clock is one MIDI timing clock pulse (24 per quarter note).
func Clock() Message { return FromMIDI(midi.TimingClock()) }

// Start is the transport start message.
func Start() Message { return FromMIDI(midi.Start()) }

// Continue is the transport continue message.
func Continue() Message { return FromMIDI(midi.Continue()) }

// Stop is the transport stop message.
func Stop() Message { return FromMIDI(midi.Stop()) }

// AllNotesOff is channel mode message 123.
func AllNotesOff(channel uint8) Message {
	return ControlChange(channel, 123, 0)
}

// AllSoundOff is channel mode message 120.
func AllSoundOff(channel uint8) Message {
	return ControlChange(channel, 120, 0)
}

// Standard returns the named transport or panic message, as used by the
// patch UI. ok is false for unknown names.
func Standard(kind Kind) (Message, bool) {
	switch kind {
	case KindClock:
		return Clock(), true
	case KindStart:
		return Start(), true
	case KindContinue:
		return Continue(), true
	case KindStop:
		return Stop(), true
	case KindAllNotesOff:
		return AllNotesOff(0), true
	case KindAllSoundOff:
		return AllSoundOff(0), true
	}
	return Message{}, false
}
