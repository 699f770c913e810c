package kantele

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/viterin/vek/vek32"
)

// OutputMode selects the layout render calls write into caller buffers.
type OutputMode int

const (
	// StereoInterleaved writes frames as L,R,L,R,...
	StereoInterleaved OutputMode = iota
	// StereoUnweaved writes all left samples, then all right samples.
	// The planar split only applies to flat byte targets; two-dimensional
	// float targets are always per-frame rows since their shape already
	// fixes the layout.
	StereoUnweaved
	// Mono writes a single mixed stream.
	Mono
)

// Channels returns the number of output channels of the mode.
func (m OutputMode) Channels() int {
	if m == Mono {
		return 1
	}
	return 2
}

func (m OutputMode) String() string {
	switch m {
	case StereoInterleaved:
		return "stereo interleaved"
	case StereoUnweaved:
		return "stereo unweaved"
	case Mono:
		return "mono"
	}
	return fmt.Sprintf("OutputMode(%d)", int(m))
}

// OutputConfig is the output format every render call honors. One config
// is active per bank session at a time.
type OutputConfig struct {
	Mode       OutputMode
	SampleRate int
	GainDb     float64 // global gain applied at mix time
}

// SetOutput establishes the output format for subsequent render calls.
// Changing it while voices play is allowed and takes effect on the next
// render call, without any crossfade across the change.
func (b *Bank) SetOutput(mode OutputMode, sampleRate int, gainDb float64) error {
	if mode != StereoInterleaved && mode != StereoUnweaved && mode != Mono {
		return fmt.Errorf("unknown output mode %d", int(mode))
	}
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate %d must be positive", sampleRate)
	}
	b.out = OutputConfig{Mode: mode, SampleRate: sampleRate, GainDb: gainDb}
	return nil
}

// Output returns the active output configuration.
func (b *Bank) Output() OutputConfig {
	return b.out
}

// SetVolume sets the linear master volume applied on top of the output
// gain.
func (b *Bank) SetVolume(gain float32) {
	if gain < 0 {
		gain = 0
	}
	b.volume = gain
}

// SetMaxVoices changes the voice pool capacity. Shrinking below the number
// of active voices stops the excess ones instead of erroring, preferring
// voices already in release phase, then the oldest by start order.
func (b *Bank) SetMaxVoices(n int) {
	if n < 0 {
		n = 0
	}
	for b.ActiveVoices() > n {
		var steal *voice
		stealReleasing := false
		for i := range b.voices {
			v := &b.voices[i]
			if !v.active {
				continue
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
	}
	pool := make([]voice, n)
	next := 0
	for i := range b.voices {
		if b.voices[i].active {
			pool[next] = b.voices[i]
			next++
		}
	}
	b.voices = pool
	b.maxVoices = n
}

// MaxVoices returns the current voice pool capacity.
func (b *Bank) MaxVoices() int {
	return b.maxVoices
}

// Reset silences and discards every active voice immediately and restores
// all channels to their default state. A hard stop, not a release. The
// output configuration is kept.
func (b *Bank) Reset() {
	for i := range b.voices {
		if b.voices[i].active {
			b.voices[i].stop()
		}
	}
	for i := range b.channels {
		b.channels[i] = defaultChannel()
	}
}

type targetKind int

const (
	targetNone targetKind = iota
	targetBytes
	targetFloats
)

// RenderTarget describes a caller-owned render destination. The accepted
// shapes form a closed set: a flat byte region holding 32-bit float
// samples, or a two-dimensional float32 region shaped (frames, channels).
type RenderTarget struct {
	kind   targetKind
	bytes  []byte
	floats [][]float32
}

// Bytes wraps a flat byte region. Its length must be an exact multiple of
// 4 bytes x the configured channel count.
func Bytes(buf []byte) RenderTarget {
	return RenderTarget{kind: targetBytes, bytes: buf}
}

// Floats wraps a two-dimensional float32 region shaped (frames, channels).
// Every row must have exactly the configured channel count.
func Floats(frames [][]float32) RenderTarget {
	return RenderTarget{kind: targetFloats, floats: frames}
}

// frameCount validates the target against the output channel count and
// returns the number of frames it holds.
func (t RenderTarget) frameCount(channels int) (int, error) {
	switch t.kind {
	case targetBytes:
		stride := 4 * channels
		if len(t.bytes)%stride != 0 {
			return 0, &BufferFormatError{Reason: fmt.Sprintf("byte length %d is not a multiple of %d (4 bytes x %d channels)", len(t.bytes), stride, channels)}
		}
		return len(t.bytes) / stride, nil
	case targetFloats:
		for i, row := range t.floats {
			if len(row) != channels {
				return 0, &BufferFormatError{Reason: fmt.Sprintf("row %d has %d channels, output is configured for %d", i, len(row), channels)}
			}
		}
		return len(t.floats), nil
	}
	return 0, &BufferFormatError{Reason: "unrecognized render target"}
}

// Render advances every active voice by exactly the number of frames the
// target holds, mixes their output with the channel and master gains and
// writes the result in the configured layout. On a format error nothing is
// written and no voice advances. Events issued while a call is in flight
// take effect at the start of the next call; steady-state rendering does
// not allocate.
func (b *Bank) Render(target RenderTarget) error {
	return b.render(target, false)
}

// RenderMix renders like Render but adds the output to the existing
// buffer contents instead of overwriting them, so several sessions can
// layer into one buffer within a single callback.
func (b *Bank) RenderMix(target RenderTarget) error {
	return b.render(target, true)
}

func (b *Bank) render(target RenderTarget, add bool) error {
	channels := b.out.Mode.Channels()
	frames, err := target.frameCount(channels)
	if err != nil {
		return err
	}
	if frames == 0 {
		return nil
	}
	n := frames * channels
	if cap(b.mix) < n {
		b.mix = make([]float32, n)
		b.scaled = make([]float32, n)
	}
	mix := b.mix[:n]
	for i := range mix {
		mix[i] = 0
	}

	for i := range b.voices {
		if b.voices[i].active {
			b.voices[i].mixInto(b, mix, channels)
		}
	}

	master := b.volume * dbToGain(b.out.GainDb)
	scaled := vek32.MulNumber_Into(b.scaled[:n], mix, master)

	switch target.kind {
	case targetBytes:
		b.writeBytes(target.bytes, scaled, frames, channels, add)
	case targetFloats:
		for i, row := range target.floats {
			if add {
				for j := range row {
					row[j] += scaled[i*channels+j]
				}
			} else {
				copy(row, scaled[i*channels:(i+1)*channels])
			}
		}
	}
	return nil
}

// writeBytes stores the mixed frames as little-endian float32 samples,
// splitting the channels into planar blocks for the unweaved layout. With
// add set the samples accumulate onto the buffer's existing contents.
func (b *Bank) writeBytes(dst []byte, mixed []float32, frames, channels int, add bool) {
	put := func(off int, v float32) {
		if add {
			v += math.Float32frombits(binary.LittleEndian.Uint32(dst[off:]))
		}
		binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
	}
	if b.out.Mode == StereoUnweaved {
		for i := 0; i < frames; i++ {
			put(4*i, mixed[2*i])
			put(4*(frames+i), mixed[2*i+1])
		}
		return
	}
	for i, v := range mixed {
		put(4*i, v)
	}
}

func dbToGain(db float64) float32 {
	return float32(math.Pow(10, db/20))
}
