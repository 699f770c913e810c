package kantele

import "fmt"

// channel is one routing slot of the channel table. The zero value is not
// usable; defaultChannel gives the reset state.
type channel struct {
	preset     int     // flat preset index, -1 when unassigned
	bank       int     // selected bank number for program changes
	pan        float32 // 0 left .. 1 right
	volume     float32 // linear
	pitchWheel int     // 0..16383, 8192 center
	pitchRange float32 // bend range in semitones
	tuning     float32 // fine tuning in semitones
	drums      bool    // resolve program changes against the percussion bank
}

func defaultChannel() channel {
	return channel{
		preset:     -1,
		pan:        0.5,
		volume:     1,
		pitchWheel: PitchWheelCenter,
		pitchRange: 2,
	}
}

const (
	// PitchWheelCenter is the pitch wheel value of an unbent channel.
	PitchWheelCenter = 8192
	// PitchWheelMax is the largest accepted pitch wheel value.
	PitchWheelMax = 16383
)

func (b *Bank) channelAt(ch int) (*channel, error) {
	if ch < 0 || ch >= len(b.channels) {
		return nil, fmt.Errorf("channel %d out of range [0, %d): %w", ch, len(b.channels), ErrInvalidChannel)
	}
	return &b.channels[ch], nil
}

// ChannelCount returns the size of the channel table.
func (b *Bank) ChannelCount() int {
	return len(b.channels)
}

// ChannelSetPresetIndex assigns the preset at a flat index to a channel.
func (b *Bank) ChannelSetPresetIndex(ch, presetIndex int) error {
	c, err := b.channelAt(ch)
	if err != nil {
		return err
	}
	if presetIndex < 0 || presetIndex >= b.PresetCount() {
		return fmt.Errorf("preset index %d out of range [0, %d): %w", presetIndex, b.PresetCount(), ErrPresetNotFound)
	}
	c.preset = presetIndex
	return nil
}

// ChannelSetBank selects the bank number a later program change on this
// channel resolves against. It does not change the assigned preset.
func (b *Bank) ChannelSetBank(ch, bank int) error {
	c, err := b.channelAt(ch)
	if err != nil {
		return err
	}
	c.bank = bank
	return nil
}

// ChannelSetPresetNumber assigns a preset by program number, resolved
// against the channel's selected bank, or against the percussion bank when
// drums is set. The channel keeps its previous preset on a lookup miss.
func (b *Bank) ChannelSetPresetNumber(ch, program int, drums bool) error {
	c, err := b.channelAt(ch)
	if err != nil {
		return err
	}
	bank := c.bank
	if drums {
		bank = PercussionBank
	}
	index := b.PresetIndex(bank, program)
	if index < 0 {
		return fmt.Errorf("no preset for bank %d program %d: %w", bank, program, ErrPresetNotFound)
	}
	c.preset = index
	c.drums = drums
	return nil
}

// ChannelSetBankPreset assigns a preset by explicit bank and program number.
func (b *Bank) ChannelSetBankPreset(ch, bank, program int) error {
	c, err := b.channelAt(ch)
	if err != nil {
		return err
	}
	index := b.PresetIndex(bank, program)
	if index < 0 {
		return fmt.Errorf("no preset for bank %d program %d: %w", bank, program, ErrPresetNotFound)
	}
	c.bank = bank
	c.preset = index
	return nil
}

// ChannelPresetIndex returns the flat preset index assigned to a channel,
// -1 when the channel is unassigned.
func (b *Bank) ChannelPresetIndex(ch int) (int, error) {
	c, err := b.channelAt(ch)
	if err != nil {
		return 0, err
	}
	return c.preset, nil
}

// ChannelNoteOn starts a note through the channel's assigned preset.
// Velocity is 0..1; a velocity of 0 releases the key instead, and a
// velocity above 1 is rejected.
func (b *Bank) ChannelNoteOn(ch, key int, velocity float32) error {
	c, err := b.channelAt(ch)
	if err != nil {
		return err
	}
	if c.preset < 0 {
		return fmt.Errorf("channel %d: %w", ch, ErrNoPreset)
	}
	if velocity > 1 {
		return fmt.Errorf("velocity %v out of range [0, 1]", velocity)
	}
	if velocity <= 0 {
		return b.ChannelNoteOff(ch, key)
	}
	b.startVoices(c.preset, ch, key, velocity)
	return nil
}

// ChannelNoteOff releases all voices playing the given key on a channel.
// Releasing moves sustaining voices into their release phase; one-shot
// regions keep playing to the end of their sample.
func (b *Bank) ChannelNoteOff(ch, key int) error {
	if _, err := b.channelAt(ch); err != nil {
		return err
	}
	for i := range b.voices {
		v := &b.voices[i]
		if v.active && v.channel == ch && v.key == key {
			v.release()
		}
	}
	return nil
}

// ChannelNoteOffAll releases every voice on a channel.
func (b *Bank) ChannelNoteOffAll(ch int) error {
	if _, err := b.channelAt(ch); err != nil {
		return err
	}
	for i := range b.voices {
		v := &b.voices[i]
		if v.active && v.channel == ch {
			v.release()
		}
	}
	return nil
}

// ChannelSoundsOff silences every voice on a channel immediately,
// bypassing release. Emergency mute.
func (b *Bank) ChannelSoundsOff(ch int) error {
	if _, err := b.channelAt(ch); err != nil {
		return err
	}
	for i := range b.voices {
		v := &b.voices[i]
		if v.active && v.channel == ch {
			v.stop()
		}
	}
	return nil
}

// ChannelSetPan sets the channel pan, 0 full left, 0.5 center, 1 full
// right. Playing voices pick the new value up on the next render call.
func (b *Bank) ChannelSetPan(ch int, pan float32) error {
	c, err := b.channelAt(ch)
	if err != nil {
		return err
	}
	if pan < 0 {
		pan = 0
	} else if pan > 1 {
		pan = 1
	}
	c.pan = pan
	return nil
}

// ChannelSetVolume sets the linear channel volume.
func (b *Bank) ChannelSetVolume(ch int, volume float32) error {
	c, err := b.channelAt(ch)
	if err != nil {
		return err
	}
	if volume < 0 {
		volume = 0
	}
	c.volume = volume
	return nil
}

// ChannelSetPitchWheel sets the pitch wheel position, 0..16383 with 8192
// meaning no bend.
func (b *Bank) ChannelSetPitchWheel(ch, value int) error {
	c, err := b.channelAt(ch)
	if err != nil {
		return err
	}
	if value < 0 || value > PitchWheelMax {
		return fmt.Errorf("pitch wheel value %d out of range [0, %d]", value, PitchWheelMax)
	}
	c.pitchWheel = value
	return nil
}

// ChannelSetPitchRange sets the pitch bend range in semitones.
func (b *Bank) ChannelSetPitchRange(ch int, semitones float32) error {
	c, err := b.channelAt(ch)
	if err != nil {
		return err
	}
	if semitones < 0 {
		semitones = 0
	}
	c.pitchRange = semitones
	return nil
}

// ChannelSetTuning sets the channel fine tuning in semitones.
func (b *Bank) ChannelSetTuning(ch int, semitones float32) error {
	c, err := b.channelAt(ch)
	if err != nil {
		return err
	}
	c.tuning = semitones
	return nil
}

// bend returns the current pitch offset of the channel in semitones,
// combining wheel position, bend range and fine tuning.
func (c *channel) bend() float64 {
	wheel := float64(c.pitchWheel-PitchWheelCenter) / PitchWheelCenter
	return wheel*float64(c.pitchRange) + float64(c.tuning)
}
