//go:build !cgo

package cmd

import (
	"errors"

	"github.com/kantele-synth/kantele"
)

func NewMidiInput() MidiInput {
	// with no cgo, we cannot use MIDI, so return a null input
	return nullMidiInput{}
}

type nullMidiInput struct{}

func (nullMidiInput) InputNames() []string { return nil }
func (nullMidiInput) Open(namePrefix string, takeFirst bool) error {
	return errors.New("MIDI input requires cgo")
}
func (nullMidiInput) Apply(b *kantele.Bank) {}
func (nullMidiInput) HasDeviceOpen() bool   { return false }
func (nullMidiInput) Close()                {}
