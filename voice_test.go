package kantele_test

import (
	"errors"
	"testing"

	"github.com/kantele-synth/kantele"
)

// sustainBank builds a single-preset bank whose region sustains forever
// and releases slowly, so stealing decisions are observable.
func sustainBank(t *testing.T) *kantele.Bank {
	t.Helper()
	data := make([]float32, 400)
	for i := range data {
		data[i] = 0.5
	}
	bank, err := kantele.NewBank(
		[]kantele.Preset{{Name: "Pad", Regions: []kantele.Region{{
			Sample: 0,
			Loop:   true,
			AmpEnv: kantele.Envelope{Sustain: 1, Release: 1},
		}}}},
		[]kantele.Sample{{Name: "dc", Data: data, SampleRate: 44100, LoopEnd: 400}},
	)
	if err != nil {
		t.Fatalf("NewBank failed: %v", err)
	}
	return bank
}

func renderFrames(t *testing.T, b *kantele.Bank, frames int) {
	t.Helper()
	block := makeRows(441, b.Output().Mode.Channels())
	for frames > 0 {
		n := len(block)
		if n > frames {
			n = frames
		}
		if err := b.Render(kantele.Floats(block[:n])); err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		frames -= n
	}
}

func TestVoiceStealingPrefersReleasing(t *testing.T) {
	bank := sustainBank(t)
	bank.SetMaxVoices(3)
	for _, key := range []int{60, 61, 62} {
		if err := bank.NoteOn(0, key, 1); err != nil {
			t.Fatalf("NoteOn failed: %v", err)
		}
	}
	// release the middle note; it is not the oldest, but it is the one in
	// release phase and must be the first to go
	if err := bank.NoteOff(0, 61); err != nil {
		t.Fatalf("NoteOff failed: %v", err)
	}
	bank.SetMaxVoices(2)
	if got := bank.ActiveVoices(); got != 2 {
		t.Fatalf("shrinking the pool left %v voices, expected 2", got)
	}
	// the survivors sustain forever; if the releasing voice had survived
	// instead of a sustaining one, it would die out during this render
	renderFrames(t, bank, 2*44100)
	if got := bank.ActiveVoices(); got != 2 {
		t.Fatalf("a releasing voice survived the steal, %v voices left", got)
	}
}

func TestVoiceStealingOldestFirst(t *testing.T) {
	bank := sustainBank(t)
	bank.SetMaxVoices(2)
	for _, key := range []int{60, 61, 62} {
		if err := bank.NoteOn(0, key, 1); err != nil {
			t.Fatalf("NoteOn failed: %v", err)
		}
	}
	if got := bank.ActiveVoices(); got != 2 {
		t.Fatalf("pool of 2 holds %v voices", got)
	}
	// key 60 was the oldest and must have been stolen; releasing it now is
	// a no-op, so both remaining voices keep sustaining
	if err := bank.NoteOff(0, 60); err != nil {
		t.Fatalf("NoteOff failed: %v", err)
	}
	renderFrames(t, bank, 2*44100)
	if got := bank.ActiveVoices(); got != 2 {
		t.Fatalf("oldest voice was not the one stolen, %v voices left", got)
	}
}

func TestMaxVoicesZero(t *testing.T) {
	bank := sustainBank(t)
	bank.SetMaxVoices(0)
	if err := bank.NoteOn(0, 60, 1); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	if got := bank.ActiveVoices(); got != 0 {
		t.Fatalf("empty voice pool still started %v voices", got)
	}
	if got := bank.MaxVoices(); got != 0 {
		t.Fatalf("MaxVoices got %v, expected 0", got)
	}
}

func TestVoiceEndsWithEnvelope(t *testing.T) {
	bank := testBank(t)
	s := playingSession(t, bank, kantele.StereoInterleaved)
	if err := s.ChannelNoteOff(0, 64); err != nil {
		t.Fatalf("ChannelNoteOff failed: %v", err)
	}
	// release is 0.05 s; a tenth of a second reclaims the voice
	renderFrames(t, s, 4410)
	if got := s.ActiveVoices(); got != 0 {
		t.Fatalf("voice still active %v frames after release", 4410)
	}
}

func TestOneShotIgnoresNoteOff(t *testing.T) {
	bank := testBank(t)
	if err := bank.NoteOnBankProgram(kantele.PercussionBank, 0, 36, 1); err != nil {
		t.Fatalf("NoteOnBankProgram failed: %v", err)
	}
	if err := bank.NoteOffBankProgram(kantele.PercussionBank, 0, 36); err != nil {
		t.Fatalf("NoteOffBankProgram failed: %v", err)
	}
	// the click sample is 200 frames long; halfway through it still plays
	renderFrames(t, bank, 100)
	if got := bank.ActiveVoices(); got != 1 {
		t.Fatalf("one-shot voice stopped on note off, %v voices", got)
	}
	renderFrames(t, bank, 200)
	if got := bank.ActiveVoices(); got != 0 {
		t.Fatalf("one-shot voice still active past the end of its sample, %v voices", got)
	}
}

func TestNoteOnErrors(t *testing.T) {
	bank := testBank(t)
	if err := bank.NoteOn(99, 60, 1); !errors.Is(err, kantele.ErrPresetNotFound) {
		t.Fatalf("NoteOn on missing preset got %v, expected ErrPresetNotFound", err)
	}
	if err := bank.NoteOn(0, 200, 1); err == nil {
		t.Fatalf("NoteOn with key 200 accepted")
	}
	if err := bank.NoteOnBankProgram(77, 0, 60, 1); !errors.Is(err, kantele.ErrPresetNotFound) {
		t.Fatalf("NoteOnBankProgram on missing bank got %v, expected ErrPresetNotFound", err)
	}
	if err := bank.NoteOn(0, 60, 1.5); err == nil {
		t.Fatalf("NoteOn with velocity 1.5 accepted")
	}
	if got := bank.ActiveVoices(); got != 0 {
		t.Fatalf("failed note ons started %v voices", got)
	}
}

func TestZeroVelocityIsNoteOff(t *testing.T) {
	bank := testBank(t)
	if err := bank.NoteOn(0, 64, 0.9); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	if err := bank.NoteOn(0, 64, 0); err != nil {
		t.Fatalf("zero velocity NoteOn failed: %v", err)
	}
	renderFrames(t, bank, 4410) // past the 0.05 s release
	if got := bank.ActiveVoices(); got != 0 {
		t.Fatalf("zero velocity did not release the note, %v voices", got)
	}
}

func TestVelocityRanges(t *testing.T) {
	data := []float32{0.5, 0.5, 0.5, 0.5}
	bank, err := kantele.NewBank(
		[]kantele.Preset{{Name: "Split", Regions: []kantele.Region{
			{Sample: 0, LoVel: 1, HiVel: 64},
			{Sample: 0, LoVel: 65, HiVel: 127},
		}}},
		[]kantele.Sample{{Name: "s", Data: data, SampleRate: 44100}},
	)
	if err != nil {
		t.Fatalf("NewBank failed: %v", err)
	}
	if err := bank.NoteOn(0, 60, 0.25); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	if got := bank.ActiveVoices(); got != 1 {
		t.Fatalf("soft note matched %v regions, expected 1", got)
	}
	bank.Reset()
	if err := bank.NoteOn(0, 60, 1); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	if got := bank.ActiveVoices(); got != 1 {
		t.Fatalf("loud note matched %v regions, expected 1", got)
	}
}

func TestRegionLayering(t *testing.T) {
	data := []float32{0.5, 0.5, 0.5, 0.5}
	bank, err := kantele.NewBank(
		[]kantele.Preset{{Name: "Layered", Regions: []kantele.Region{
			{Sample: 0},
			{Sample: 0, Tune: 0.1},
		}}},
		[]kantele.Sample{{Name: "s", Data: data, SampleRate: 44100}},
	)
	if err != nil {
		t.Fatalf("NewBank failed: %v", err)
	}
	if err := bank.NoteOn(0, 60, 1); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	if got := bank.ActiveVoices(); got != 2 {
		t.Fatalf("layered note started %v voices, expected 2", got)
	}
}
