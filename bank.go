package kantele

import (
	"errors"
	"fmt"
)

type (
	// Sample is one mono waveform owned by the bank. The data is never
	// mutated after load; voices read it through their playback cursor.
	Sample struct {
		Name       string
		Data       []float32
		SampleRate int
		LoopStart  int
		LoopEnd    int // exclusive
	}

	// Envelope holds the attack/decay/sustain/release parameters of a
	// linear segment envelope. Times are in seconds, sustain is a level
	// in 0..1.
	Envelope struct {
		Attack  float64
		Decay   float64
		Sustain float64
		Release float64
	}

	// Region maps a key/velocity range to a sample and the parameters a
	// voice playing that sample uses.
	Region struct {
		Sample int // index into the bank sample list

		LoKey, HiKey int // 0..127, inclusive
		LoVel, HiVel int // 0..127, inclusive

		RootKey int     // key at which the sample plays at its native rate
		Tune    float64 // fine tuning in semitones

		Loop bool // loop between the sample loop points while sustained

		// OneShot regions ignore note-off and play through to the end of
		// the sample; used for percussive presets.
		OneShot bool

		Gain float64 // linear region gain; a zero value is normalized to unity at load
		Pan  float64 // -1 (left) .. 1 (right) offset added to the channel pan

		AmpEnv Envelope
		ModEnv Envelope

		ModEnvToPitch  float64 // semitones added to pitch at full mod envelope
		ModEnvToFilter float64 // semitones added to filter cutoff at full mod envelope

		VibratoRate  float64 // LFO rate in Hz
		VibratoDepth float64 // LFO pitch depth in semitones
		VibratoDelay float64 // seconds before the LFO fades in

		Cutoff    float64 // lowpass cutoff in Hz, 0 disables the filter
		Resonance float64 // filter resonance, 0..1
	}

	// Preset is a named, addressable set of regions. The flat index of a
	// preset is its position in the bank preset list, assigned at load.
	Preset struct {
		Name    string
		Bank    int
		Program int
		Regions []Region
	}

	// bankData is the immutable core shared by all clones of a bank.
	bankData struct {
		presets []Preset
		samples []Sample
	}

	// Bank is one playback session over a loaded instrument set: the
	// shared immutable preset/sample arena plus the owned mutable state
	// (channel table, voice pool, output configuration). Clone duplicates
	// the mutable state only, so clones play back independently.
	//
	// A Bank has no internal locking. The caller serializes event and
	// render calls; any event call that returns before a render call
	// starts is guaranteed to be heard by that render call.
	Bank struct {
		data *bankData

		channels []channel
		voices   []voice

		out       OutputConfig
		volume    float32 // linear master volume on top of the output gain
		maxVoices int
		counter   uint64 // voice start order, for the stealing policy

		mix    []float32 // mixed frames, interleaved, reused between calls
		scaled []float32 // mix after master gain, reused between calls
	}
)

const (
	// DefaultChannels is the size of the channel table of a new bank.
	DefaultChannels = 16

	// DefaultMaxVoices bounds the voice pool until SetMaxVoices is called.
	DefaultMaxVoices = 256

	// PercussionBank is the bank number conventionally holding drum
	// presets; drum channels resolve program changes against it.
	PercussionBank = 128

	// DrumChannel is the channel that defaults to percussion routing.
	DrumChannel = 9
)

// NewBank builds a playable bank from already-decoded presets and samples.
// It is the constructor the bank loader uses; the preset and sample slices
// are owned by the returned bank and must not be modified afterwards.
func NewBank(presets []Preset, samples []Sample) (*Bank, error) {
	for i, p := range presets {
		if len(p.Regions) == 0 {
			return nil, fmt.Errorf("preset %d (%q) has no regions", i, p.Name)
		}
		for j := range p.Regions {
			normalizeRegion(&presets[i].Regions[j])
		}
		for j, r := range p.Regions {
			if r.Sample < 0 || r.Sample >= len(samples) {
				return nil, fmt.Errorf("preset %d region %d references sample %d, bank has %d samples", i, j, r.Sample, len(samples))
			}
			s := &samples[r.Sample]
			if r.Loop && (s.LoopStart < 0 || s.LoopEnd > len(s.Data) || s.LoopStart >= s.LoopEnd) {
				return nil, fmt.Errorf("preset %d region %d: sample %q has invalid loop points [%d, %d)", i, j, s.Name, s.LoopStart, s.LoopEnd)
			}
			if r.LoKey > r.HiKey {
				return nil, fmt.Errorf("preset %d region %d: key range %d..%d is empty", i, j, r.LoKey, r.HiKey)
			}
		}
	}
	for i, s := range samples {
		if len(s.Data) == 0 {
			return nil, fmt.Errorf("sample %d (%q) has no data", i, s.Name)
		}
		if s.SampleRate <= 0 {
			return nil, fmt.Errorf("sample %d (%q) has sample rate %d", i, s.Name, s.SampleRate)
		}
	}
	b := &Bank{data: &bankData{presets: presets, samples: samples}}
	b.initSession()
	return b, nil
}

// normalizeRegion fills in the zero-value conveniences: an all-zero key or
// velocity range matches everything, a zero gain means unity, and an
// all-zero amplitude envelope sustains at full level.
func normalizeRegion(r *Region) {
	if r.LoKey == 0 && r.HiKey == 0 {
		r.HiKey = 127
	}
	if r.LoVel == 0 && r.HiVel == 0 {
		r.HiVel = 127
	}
	if r.Gain == 0 {
		r.Gain = 1
	}
	if r.AmpEnv == (Envelope{}) {
		r.AmpEnv.Sustain = 1
	}
}

func (b *Bank) initSession() {
	b.channels = make([]channel, DefaultChannels)
	for i := range b.channels {
		b.channels[i] = defaultChannel()
	}
	b.maxVoices = DefaultMaxVoices
	b.voices = make([]voice, b.maxVoices)
	b.out = OutputConfig{Mode: StereoInterleaved, SampleRate: 44100}
	b.volume = 1
	b.counter = 0
	b.mix = nil
	b.scaled = nil
}

// Clone creates an independent playback session over the same immutable
// instrument data. The mutable session state is duplicated: the clone
// keeps the original's channel table, output configuration, master volume
// and voice budget. The voice pool starts empty, so notes sounding in the
// original are not heard in the clone. Nothing is shared with the
// original except the preset and sample arena.
func (b *Bank) Clone() (*Bank, error) {
	if b.data == nil {
		return nil, errors.New("cannot clone an uninitialized bank")
	}
	clone := &Bank{data: b.data}
	clone.channels = make([]channel, len(b.channels))
	copy(clone.channels, b.channels)
	clone.voices = make([]voice, b.maxVoices)
	clone.out = b.out
	clone.volume = b.volume
	clone.maxVoices = b.maxVoices
	return clone, nil
}

// PresetCount returns the number of presets in the bank.
func (b *Bank) PresetCount() int {
	return len(b.data.presets)
}

// PresetIndex returns the flat index of the preset with the given bank and
// program number, or -1 if the bank holds no such preset.
func (b *Bank) PresetIndex(bank, program int) int {
	for i, p := range b.data.presets {
		if p.Bank == bank && p.Program == program {
			return i
		}
	}
	return -1
}

// PresetName returns the name of the preset at the given flat index.
func (b *Bank) PresetName(index int) (string, error) {
	if index < 0 || index >= len(b.data.presets) {
		return "", fmt.Errorf("preset index %d out of range [0, %d): %w", index, len(b.data.presets), ErrPresetNotFound)
	}
	return b.data.presets[index].Name, nil
}

// BankPresetName returns the name of the preset with the given bank and
// program number.
func (b *Bank) BankPresetName(bank, program int) (string, error) {
	index := b.PresetIndex(bank, program)
	if index < 0 {
		return "", fmt.Errorf("no preset for bank %d program %d: %w", bank, program, ErrPresetNotFound)
	}
	return b.data.presets[index].Name, nil
}

// preset returns the preset at a flat index, nil if out of range.
func (b *Bank) preset(index int) *Preset {
	if index < 0 || index >= len(b.data.presets) {
		return nil
	}
	return &b.data.presets[index]
}

func (b *Bank) sample(index int) *Sample {
	return &b.data.samples[index]
}
