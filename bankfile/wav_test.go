package bankfile_test

import (
	"math"
	"testing"

	"github.com/kantele-synth/kantele"
	"github.com/kantele-synth/kantele/bankfile"
)

func TestWavRoundtripFloat32(t *testing.T) {
	pcm := make([]float32, 256)
	for i := range pcm {
		pcm[i] = float32(math.Sin(2 * math.Pi * float64(i) / 64))
	}
	wav, err := kantele.Wav(pcm, 1, 48000, false)
	if err != nil {
		t.Fatalf("Wav failed: %v", err)
	}
	decoded, rate, err := bankfile.WavDecoder{}.Decode(wav)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rate != 48000 {
		t.Fatalf("sample rate got %v, expected 48000", rate)
	}
	if len(decoded) != len(pcm) {
		t.Fatalf("length got %v, expected %v", len(decoded), len(pcm))
	}
	for i, v := range pcm {
		if math.Abs(float64(decoded[i]-v)) > 1e-6 {
			t.Fatalf("sample %v got %v, expected %v", i, decoded[i], v)
		}
	}
}

func TestWavRoundtripPCM16(t *testing.T) {
	pcm := make([]float32, 128)
	for i := range pcm {
		pcm[i] = float32(i)/64 - 1
	}
	wav, err := kantele.Wav(pcm, 1, 22050, true)
	if err != nil {
		t.Fatalf("Wav failed: %v", err)
	}
	decoded, rate, err := bankfile.WavDecoder{}.Decode(wav)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rate != 22050 {
		t.Fatalf("sample rate got %v, expected 22050", rate)
	}
	for i, v := range pcm {
		if math.Abs(float64(decoded[i]-v)) > 1e-3 {
			t.Fatalf("sample %v got %v, expected %v", i, decoded[i], v)
		}
	}
}

func TestWavDownmixesToMono(t *testing.T) {
	// interleaved stereo, left 0.2 and right 0.6, should average to 0.4
	stereo := make([]float32, 64)
	for i := 0; i < len(stereo); i += 2 {
		stereo[i] = 0.2
		stereo[i+1] = 0.6
	}
	wav, err := kantele.Wav(stereo, 2, 44100, false)
	if err != nil {
		t.Fatalf("Wav failed: %v", err)
	}
	decoded, _, err := bankfile.WavDecoder{}.Decode(wav)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded) != len(stereo)/2 {
		t.Fatalf("frame count got %v, expected %v", len(decoded), len(stereo)/2)
	}
	for i, v := range decoded {
		if math.Abs(float64(v)-0.4) > 1e-6 {
			t.Fatalf("frame %v got %v, expected 0.4", i, v)
		}
	}
}

func TestWavDecodeErrors(t *testing.T) {
	if _, _, err := (bankfile.WavDecoder{}).Decode([]byte("nope")); err == nil {
		t.Fatalf("garbage accepted as WAV")
	}
	wav, err := kantele.Wav([]float32{0, 0.5, -0.5, 0}, 1, 44100, false)
	if err != nil {
		t.Fatalf("Wav failed: %v", err)
	}
	if _, _, err := (bankfile.WavDecoder{}).Decode(wav[:20]); err == nil {
		t.Fatalf("truncated WAV accepted")
	}
}
