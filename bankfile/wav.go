package bankfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WavDecoder decodes RIFF/WAVE waveforms holding 16-bit PCM or 32-bit
// IEEE float samples. Multi-channel files are downmixed to mono, since
// bank samples are mono and panning happens at mix time.
type WavDecoder struct{}

// Decode implements Decoder.
func (WavDecoder) Decode(raw []byte) ([]float32, int, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, 0, errors.New("not a RIFF/WAVE file")
	}
	var (
		format     uint16
		channels   int
		sampleRate int
		bits       int
		data       []byte
		haveFmt    bool
	)
	pos := 12
	for pos+8 <= len(raw) {
		id := string(raw[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(raw) {
			return nil, 0, fmt.Errorf("chunk %q of size %d runs past the end of the file", id, size)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too small (%d bytes)", size)
			}
			format = binary.LittleEndian.Uint16(raw[body:])
			channels = int(binary.LittleEndian.Uint16(raw[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4:]))
			bits = int(binary.LittleEndian.Uint16(raw[body+14:]))
			haveFmt = true
		case "data":
			data = raw[body : body+size]
		}
		// chunks are word aligned
		pos = body + size + size%2
	}
	if !haveFmt {
		return nil, 0, errors.New("missing fmt chunk")
	}
	if data == nil {
		return nil, 0, errors.New("missing data chunk")
	}
	if channels < 1 {
		return nil, 0, fmt.Errorf("invalid channel count %d", channels)
	}
	if sampleRate <= 0 {
		return nil, 0, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	var frames []float32
	switch {
	case format == 1 && bits == 16:
		frames = decodePCM16(data, channels)
	case format == 3 && bits == 32:
		frames = decodeFloat32(data, channels)
	default:
		return nil, 0, fmt.Errorf("unsupported wave format %d with %d bits per sample", format, bits)
	}
	return frames, sampleRate, nil
}

func decodePCM16(data []byte, channels int) []float32 {
	stride := 2 * channels
	n := len(data) / stride
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var acc float32
		for c := 0; c < channels; c++ {
			s := int16(binary.LittleEndian.Uint16(data[i*stride+2*c:]))
			acc += float32(s) / 32768
		}
		out[i] = acc / float32(channels)
	}
	return out
}

func decodeFloat32(data []byte, channels int) []float32 {
	stride := 4 * channels
	n := len(data) / stride
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var acc float32
		for c := 0; c < channels; c++ {
			acc += math.Float32frombits(binary.LittleEndian.Uint32(data[i*stride+4*c:]))
		}
		out[i] = acc / float32(channels)
	}
	return out
}
