package kantele

import (
	"errors"
	"math"

	"github.com/viterin/vek/vek32"
)

// VolumeAnalyzer measures the volume of rendered interleaved audio, in
// decibels relative to full scale (0 dB = signal level of +-1).
type VolumeAnalyzer struct {
	Level      [2]float64 // current level of each output channel
	Attack     float64    // attack time constant in seconds
	Release    float64    // release time constant in seconds
	Min        float64    // minimum volume in decibels
	Max        float64    // maximum volume in decibels
	SampleRate int        // rate of the analyzed signal

	tmp []float32 // squared samples, reused between calls
}

var errVolumeNaN = errors.New("NaN detected in master output")

// Update updates the Level field by analyzing the given buffer of
// interleaved samples with the given channel count.
//
// The signal is converted to decibels and smoothed with an exponentially
// decaying average, using the Attack time constant while the level rises
// and Release while it falls. Typical time constants for average level
// detection are 0.3 seconds for both; for peak detection, attack 1.5e-3
// and release 1.5. Min and Max clamp the decibel values so silent spans do
// not drive the level to negative infinity.
func (v *VolumeAnalyzer) Update(buffer []float32, channels int) (err error) {
	if channels < 1 || channels > 2 || len(buffer)%channels != 0 {
		return errors.New("volume analyzer needs 1 or 2 channel interleaved data")
	}
	rate := float64(v.SampleRate)
	if rate <= 0 {
		rate = 44100
	}
	// from https://en.wikipedia.org/wiki/Exponential_smoothing
	alphaAttack := 1 - math.Exp(-1.0/(v.Attack*rate))
	alphaRelease := 1 - math.Exp(-1.0/(v.Release*rate))
	if cap(v.tmp) < len(buffer) {
		v.tmp = make([]float32, len(buffer))
	}
	squared := vek32.Mul_Into(v.tmp[:len(buffer)], buffer, buffer)
	for j := 0; j < channels; j++ {
		for i := j; i < len(squared); i += channels {
			sample2 := float64(squared[i])
			if math.IsNaN(sample2) {
				if err == nil {
					err = errVolumeNaN
				}
				continue
			}
			dB := 10 * math.Log10(sample2)
			if dB < v.Min || math.IsNaN(dB) {
				dB = v.Min
			}
			if dB > v.Max {
				dB = v.Max
			}
			a := alphaAttack
			if dB < v.Level[j] {
				a = alphaRelease
			}
			v.Level[j] += (dB - v.Level[j]) * a
		}
	}
	return err
}
