//go:build cgo

package cmd

import (
	"github.com/kantele-synth/kantele/midiin"
)

func NewMidiInput() MidiInput {
	return midiin.NewContext()
}
