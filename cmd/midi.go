// Package cmd holds helpers shared by the command line utilities, mainly
// the build-tag shims selecting between real and null implementations of
// cgo-backed services.
package cmd

import (
	"github.com/kantele-synth/kantele"
)

// MidiInput is the MIDI routing service the commands consume. The real
// implementation lives in the midiin package and needs cgo; without cgo a
// null input is used instead.
type MidiInput interface {
	InputNames() []string
	Open(namePrefix string, takeFirst bool) error
	Apply(b *kantele.Bank)
	HasDeviceOpen() bool
	Close()
}
