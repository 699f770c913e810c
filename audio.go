package kantele

import (
	"encoding/binary"
	"io"
	"math"
)

type (
	// AudioContext plays little-endian float32 audio streams. The engine
	// core never talks to an audio device itself; playback backends (see
	// the oto subpackage) implement this.
	AudioContext interface {
		Play(r io.Reader) CloserWaiter
		Close() error
	}

	// CloserWaiter can stop an ongoing playback or wait for it to drain.
	CloserWaiter interface {
		io.Closer
		Wait()
	}
)

// RenderReader adapts a bank session to io.Reader so a pull-based audio
// backend can drive rendering. Each Read renders just enough frames to
// fill p, buffering the tail of a frame when p is not frame aligned. An
// optional pump callback runs before every render call; it is the place to
// apply queued events, keeping the single-writer contract intact.
type RenderReader struct {
	bank *Bank
	pump func(*Bank)
	buf  []byte // render scratch, reused between calls
	rem  []byte // carried over partial frame bytes, tail of buf
}

// NewRenderReader creates a reader rendering from the bank. pump may be
// nil.
func NewRenderReader(bank *Bank, pump func(*Bank)) *RenderReader {
	return &RenderReader{bank: bank, pump: pump}
}

func (r *RenderReader) Read(p []byte) (int, error) {
	total := 0
	if len(r.rem) > 0 {
		n := copy(p, r.rem)
		r.rem = r.rem[n:]
		p = p[n:]
		total += n
	}
	if len(p) == 0 {
		return total, nil
	}
	if r.pump != nil {
		r.pump(r.bank)
	}
	stride := 4 * r.bank.Output().Mode.Channels()
	frames := (len(p) + stride - 1) / stride
	if cap(r.buf) < frames*stride {
		r.buf = make([]byte, frames*stride)
	}
	buf := r.buf[:frames*stride]
	if err := r.bank.Render(Bytes(buf)); err != nil {
		return total, err
	}
	n := copy(p, buf)
	r.rem = buf[n:]
	return total + n, nil
}

// BufferSource exposes an already rendered float32 buffer as a
// little-endian byte stream, for handing offline renders to an
// AudioContext.
type BufferSource struct {
	data []float32
	pos  int
}

// NewBufferSource wraps rendered samples in a reader.
func NewBufferSource(data []float32) *BufferSource {
	return &BufferSource{data: data}
}

func (s *BufferSource) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := 0
	for n+4 <= len(p) && s.pos < len(s.data) {
		binary.LittleEndian.PutUint32(p[n:], math.Float32bits(s.data[s.pos]))
		s.pos++
		n += 4
	}
	return n, nil
}
