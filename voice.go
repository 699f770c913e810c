package kantele

import (
	"fmt"
	"math"
)

type envStage int

const (
	envIdle envStage = iota
	envAttack
	envDecay
	envSustain
	envRelease
)

// adsr is a linear segment envelope. The segment slopes are fixed when the
// voice starts, using the output sample rate active at that moment.
type adsr struct {
	stage       envStage
	level       float32
	attackStep  float32
	decayStep   float32
	releaseStep float32
	sustain     float32
	releaseTime float64 // seconds, kept to compute releaseStep on release
	sampleRate  float64
}

func (e *adsr) trigger(p Envelope, sampleRate float64) {
	e.sampleRate = sampleRate
	e.sustain = float32(p.Sustain)
	e.releaseTime = p.Release
	if p.Attack <= 0 {
		e.level = 1
		e.stage = envDecay
	} else {
		e.level = 0
		e.stage = envAttack
		e.attackStep = float32(1 / (p.Attack * sampleRate))
	}
	if p.Decay <= 0 {
		e.decayStep = 1
	} else {
		e.decayStep = float32((1 - p.Sustain) / (p.Decay * sampleRate))
	}
}

func (e *adsr) release() {
	if e.stage == envIdle || e.stage == envRelease {
		return
	}
	e.stage = envRelease
	if e.releaseTime <= 0 || e.level <= 0 {
		e.releaseStep = 1
	} else {
		// constant-time release from whatever level we are at
		e.releaseStep = e.level / float32(e.releaseTime*e.sampleRate)
	}
}

func (e *adsr) stop() {
	e.stage = envIdle
	e.level = 0
}

func (e *adsr) next() float32 {
	switch e.stage {
	case envAttack:
		e.level += e.attackStep
		if e.level >= 1 {
			e.level = 1
			e.stage = envDecay
		}
	case envDecay:
		e.level -= e.decayStep
		if e.level <= e.sustain {
			e.level = e.sustain
			e.stage = envSustain
			if e.sustain <= 0 {
				e.level = 0
				e.stage = envIdle
			}
		}
	case envSustain:
		e.level = e.sustain
	case envRelease:
		e.level -= e.releaseStep
		if e.level <= 0 {
			e.level = 0
			e.stage = envIdle
		}
	case envIdle:
		e.level = 0
	}
	return e.level
}

// voice is one active sound generator, bound to a region for its whole
// life. Static parameters (pitch step, envelope slopes, gain) are frozen at
// note-on; channel pan, volume, bend and tuning are read live on every
// render call.
type voice struct {
	active  bool
	preset  int
	channel int // -1 for direct-mode voices
	key     int

	region *Region
	sample *Sample

	cursor   float64 // fractional playback position in sample frames
	baseStep float64 // cursor increment at zero pitch offset

	gain float32 // velocity x region gain

	ampEnv adsr
	modEnv adsr

	lfoPhase  float64
	lfoInc    float64
	lfoDelay  int // frames until vibrato starts
	frameAge  int // frames rendered since note-on
	startSeq  uint64
	low, band float32 // state-variable filter memory
	filterG   float32 // cached filter coefficient when cutoff is unmodulated
}

func (v *voice) start(b *Bank, presetIndex, ch, key int, velocity float32, r *Region) {
	s := b.sample(r.Sample)
	sr := float64(b.out.SampleRate)
	*v = voice{
		active:  true,
		preset:  presetIndex,
		channel: ch,
		key:     key,
		region:  r,
		sample:  s,
		gain:    velocity * float32(r.Gain),
	}
	v.baseStep = float64(s.SampleRate) / sr *
		math.Exp2((float64(key-r.RootKey)+r.Tune)/12)
	v.ampEnv.trigger(r.AmpEnv, sr)
	v.modEnv.trigger(r.ModEnv, sr)
	if r.VibratoRate > 0 && r.VibratoDepth != 0 {
		v.lfoInc = r.VibratoRate / sr
		v.lfoDelay = int(r.VibratoDelay * sr)
	}
	if r.Cutoff > 0 {
		v.filterG = filterCoef(r.Cutoff, sr)
	}
	v.startSeq = b.counter
	b.counter++
}

// release moves the voice into its release phase. One-shot regions ignore
// it and play through.
func (v *voice) release() {
	if v.region.OneShot {
		return
	}
	v.ampEnv.release()
	v.modEnv.release()
}

// stop silences the voice immediately.
func (v *voice) stop() {
	v.active = false
	v.ampEnv.stop()
	v.modEnv.stop()
}

func (v *voice) releasing() bool {
	return v.ampEnv.stage == envRelease
}

func filterCoef(cutoff, sampleRate float64) float32 {
	limit := 0.45 * sampleRate
	if cutoff > limit {
		cutoff = limit
	}
	return float32(2 * math.Sin(math.Pi*cutoff/sampleRate))
}

// mixInto renders the voice into an interleaved accumulation buffer of the
// given channel count (1 or 2) and advances all of its state by
// len(dst)/channels frames. Returns false when the voice finished during
// the block.
func (v *voice) mixInto(b *Bank, dst []float32, channels int) bool {
	r := v.region
	s := v.sample

	// live channel parameters, fixed for the duration of one render call
	chanVol := float32(1)
	chanPan := float32(0.5)
	bend := 0.0
	if v.channel >= 0 {
		c := &b.channels[v.channel]
		chanVol = c.volume
		chanPan = c.pan
		bend = c.bend()
	}
	pan := float64(chanPan)*2 - 1 + r.Pan
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	// constant-power pan
	angle := (pan + 1) * math.Pi / 4
	gainL := float32(math.Cos(angle)) * v.gain * chanVol
	gainR := float32(math.Sin(angle)) * v.gain * chanVol

	data := s.Data
	loop := r.Loop
	loopStart, loopEnd := s.LoopStart, s.LoopEnd
	vibrato := v.lfoInc > 0
	modToPitch := r.ModEnvToPitch
	filter := r.Cutoff > 0
	modToFilter := r.ModEnvToFilter
	q := float32(1 - r.Resonance)
	if q < 0.02 {
		q = 0.02
	}

	frames := len(dst) / channels
	for i := 0; i < frames; i++ {
		amp := v.ampEnv.next()
		if v.ampEnv.stage == envIdle {
			v.active = false
			return false
		}
		mod := float64(v.modEnv.next())

		semis := bend
		if vibrato && v.frameAge >= v.lfoDelay {
			semis += r.VibratoDepth * math.Sin(2*math.Pi*v.lfoPhase)
			v.lfoPhase += v.lfoInc
			if v.lfoPhase >= 1 {
				v.lfoPhase--
			}
		}
		if modToPitch != 0 {
			semis += mod * modToPitch
		}
		step := v.baseStep
		if semis != 0 {
			step *= math.Exp2(semis / 12)
		}

		idx := int(v.cursor)
		frac := float32(v.cursor - float64(idx))
		s0 := data[idx]
		j := idx + 1
		if loop && j >= loopEnd {
			j = loopStart
		}
		if j >= len(data) {
			j = idx
		}
		out := s0 + (data[j]-s0)*frac

		if filter {
			g := v.filterG
			if modToFilter != 0 {
				g = filterCoef(r.Cutoff*math.Exp2(mod*modToFilter/12), float64(b.out.SampleRate))
			}
			v.low += g * v.band
			high := out - v.low - q*v.band
			v.band += g * high
			out = v.low
		}

		out *= amp
		if channels == 2 {
			dst[2*i] += out * gainL
			dst[2*i+1] += out * gainR
		} else {
			dst[i] += out * v.gain * chanVol
		}

		v.cursor += step
		if loop {
			for v.cursor >= float64(loopEnd) {
				v.cursor -= float64(loopEnd - loopStart)
			}
		} else if v.cursor >= float64(len(data)) {
			v.active = false
			return false
		}
		v.frameAge++
	}
	return true
}

// allocVoice returns a free pool slot, stealing one if the pool is full.
// Stealing prefers voices already in their release phase, then the oldest
// by start order; this keeps sustained notes alive as long as possible.
func (b *Bank) allocVoice() *voice {
	if b.maxVoices <= 0 {
		return nil
	}
	var steal *voice
	stealReleasing := false
	for i := range b.voices {
		v := &b.voices[i]
		if !v.active {
			return v
		}
		releasing := v.releasing()
		if steal == nil ||
			(releasing && !stealReleasing) ||
			(releasing == stealReleasing && v.startSeq < steal.startSeq) {
			steal = v
			stealReleasing = releasing
		}
	}
	steal.stop()
	return steal
}

// startVoices creates one voice per region of the preset matching the key
// and velocity. A single key may layer several regions.
func (b *Bank) startVoices(presetIndex, ch, key int, velocity float32) {
	p := b.preset(presetIndex)
	midiVel := int(velocity*127 + 0.5)
	if midiVel > 127 {
		midiVel = 127
	}
	for i := range p.Regions {
		r := &p.Regions[i]
		if key < r.LoKey || key > r.HiKey || midiVel < r.LoVel || midiVel > r.HiVel {
			continue
		}
		v := b.allocVoice()
		if v == nil {
			return
		}
		v.start(b, presetIndex, ch, key, velocity, r)
	}
}

// NoteOn starts a note on the preset at a flat index, without channel
// routing. One voice starts per region matching the key and velocity. A
// zero velocity is treated as a note-off for the key; a velocity above 1
// is rejected.
func (b *Bank) NoteOn(presetIndex, key int, velocity float32) error {
	if presetIndex < 0 || presetIndex >= b.PresetCount() {
		return fmt.Errorf("preset index %d out of range [0, %d): %w", presetIndex, b.PresetCount(), ErrPresetNotFound)
	}
	if key < 0 || key > 127 {
		return fmt.Errorf("key %d out of range [0, 127]", key)
	}
	if velocity > 1 {
		return fmt.Errorf("velocity %v out of range [0, 1]", velocity)
	}
	if velocity <= 0 {
		return b.NoteOff(presetIndex, key)
	}
	b.startVoices(presetIndex, -1, key, velocity)
	return nil
}

// NoteOnBankProgram starts a note on the preset addressed by bank and
// program number.
func (b *Bank) NoteOnBankProgram(bank, program, key int, velocity float32) error {
	index := b.PresetIndex(bank, program)
	if index < 0 {
		return fmt.Errorf("no preset for bank %d program %d: %w", bank, program, ErrPresetNotFound)
	}
	return b.NoteOn(index, key, velocity)
}

// NoteOff releases the direct-mode voices playing the given key on the
// preset at a flat index.
func (b *Bank) NoteOff(presetIndex, key int) error {
	if presetIndex < 0 || presetIndex >= b.PresetCount() {
		return fmt.Errorf("preset index %d out of range [0, %d): %w", presetIndex, b.PresetCount(), ErrPresetNotFound)
	}
	for i := range b.voices {
		v := &b.voices[i]
		if v.active && v.channel < 0 && v.preset == presetIndex && v.key == key {
			v.release()
		}
	}
	return nil
}

// NoteOffBankProgram releases the direct-mode voices playing the given key
// on the preset addressed by bank and program number.
func (b *Bank) NoteOffBankProgram(bank, program, key int) error {
	index := b.PresetIndex(bank, program)
	if index < 0 {
		return fmt.Errorf("no preset for bank %d program %d: %w", bank, program, ErrPresetNotFound)
	}
	return b.NoteOff(index, key)
}

// NoteOffAll releases every active voice, direct and channel addressed.
func (b *Bank) NoteOffAll() {
	for i := range b.voices {
		if b.voices[i].active {
			b.voices[i].release()
		}
	}
}

// ActiveVoices returns the number of voices currently sounding.
func (b *Bank) ActiveVoices() int {
	n := 0
	for i := range b.voices {
		if b.voices[i].active {
			n++
		}
	}
	return n
}
