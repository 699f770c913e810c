// Package midiin routes live MIDI input into a bank session. Incoming
// messages are queued on the driver's thread and applied to the engine by
// Apply, which the render loop calls between render calls so the engine
// only ever has a single writer.
package midiin

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/kantele-synth/kantele"
)

type Context struct {
	driver *rtmididrv.Driver
	in     drivers.In
	events chan midi.Message
}

// NewContext opens the MIDI driver. A context without a working driver is
// still usable; it just never produces events.
func NewContext() *Context {
	c := &Context{events: make(chan midi.Message, 1024)}
	// there's not much we can do if this fails, so just use c.driver = nil
	// to indicate no driver available
	c.driver, _ = rtmididrv.New()
	return c
}

// InputNames lists the available input device names.
func (c *Context) InputNames() []string {
	if c.driver == nil {
		return nil
	}
	ins, err := c.driver.Ins()
	if err != nil {
		return nil
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names
}

// Open connects to the first input device whose name starts with
// namePrefix, or to the first device at all when takeFirst is set.
func (c *Context) Open(namePrefix string, takeFirst bool) error {
	if c.driver == nil {
		return errors.New("no MIDI driver available")
	}
	ins, err := c.driver.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs failed: %w", err)
	}
	for _, in := range ins {
		if takeFirst || strings.HasPrefix(in.String(), namePrefix) {
			if err := in.Open(); err != nil {
				return fmt.Errorf("opening MIDI input failed: %w", err)
			}
			c.in = in
			if _, err := midi.ListenTo(in, c.handleMessage); err != nil {
				in.Close()
				c.in = nil
				return fmt.Errorf("listening to MIDI input failed: %w", err)
			}
			return nil
		}
	}
	if takeFirst {
		return errors.New("could not find any MIDI input")
	}
	return fmt.Errorf("could not find any MIDI input starting with %q", namePrefix)
}

func (c *Context) handleMessage(msg midi.Message, timestampms int32) {
	select {
	case c.events <- msg: // if the channel is full, just drop the message
	default:
	}
}

// Apply drains the queued messages and applies them to the bank. Lookup
// misses and notes on unassigned channels are dropped, matching how a
// hardware module ignores events it cannot route.
func (c *Context) Apply(b *kantele.Bank) {
	for {
		select {
		case msg := <-c.events:
			c.apply(b, msg)
		default:
			return
		}
	}
}

func (c *Context) apply(b *kantele.Bank, msg midi.Message) {
	var ch, key, vel, cc, val, prog uint8
	var rel int16
	var abs uint16
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		b.ChannelNoteOn(int(ch), int(key), float32(vel)/127)
	case msg.GetNoteOff(&ch, &key, &vel):
		b.ChannelNoteOff(int(ch), int(key))
	case msg.GetPitchBend(&ch, &rel, &abs):
		b.ChannelSetPitchWheel(int(ch), int(abs))
	case msg.GetProgramChange(&ch, &prog):
		b.ChannelSetPresetNumber(int(ch), int(prog), int(ch) == kantele.DrumChannel)
	case msg.GetControlChange(&ch, &cc, &val):
		switch cc {
		case 7: // channel volume
			b.ChannelSetVolume(int(ch), float32(val)/127)
		case 10: // pan
			b.ChannelSetPan(int(ch), float32(val)/127)
		case 120: // all sounds off
			b.ChannelSoundsOff(int(ch))
		case 121: // reset all controllers
			b.ChannelSetPitchWheel(int(ch), kantele.PitchWheelCenter)
			b.ChannelSetVolume(int(ch), 1)
			b.ChannelSetPan(int(ch), 0.5)
		case 123: // all notes off
			b.ChannelNoteOffAll(int(ch))
		}
	}
}

// HasDeviceOpen reports whether an input device is connected.
func (c *Context) HasDeviceOpen() bool {
	return c.in != nil && c.in.IsOpen()
}

func (c *Context) Close() {
	if c.driver == nil {
		return
	}
	if c.in != nil && c.in.IsOpen() {
		c.in.Close()
	}
	c.driver.Close()
}
