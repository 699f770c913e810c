package bankfile_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kantele-synth/kantele"
	"github.com/kantele-synth/kantele/bankfile"
)

func beepWav(t *testing.T) []byte {
	t.Helper()
	pcm := make([]float32, 100)
	for i := range pcm {
		pcm[i] = float32(i)/50 - 1
	}
	wav, err := kantele.Wav(pcm, 1, 44100, false)
	if err != nil {
		t.Fatalf("Wav failed: %v", err)
	}
	return wav
}

func container(t *testing.T, sample map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"name":    "test",
		"samples": []map[string]any{sample},
		"presets": []map[string]any{{
			"name":    "Beep",
			"bank":    0,
			"program": 0,
			"regions": []map[string]any{{"sample": "beep", "rootkey": 60}},
		}},
	})
	if err != nil {
		t.Fatalf("marshaling the container failed: %v", err)
	}
	return data
}

func TestLoadFromBytes(t *testing.T) {
	data := container(t, map[string]any{"name": "beep", "data": beepWav(t)})
	bank, err := bankfile.LoadFromBytes(data)
	if err != nil {
		t.Fatalf("LoadFromBytes failed: %v", err)
	}
	name, err := bank.PresetName(0)
	if err != nil || name != "Beep" {
		t.Fatalf("PresetName(0) got %q, %v", name, err)
	}
	if err := bank.NoteOn(0, 60, 1); err != nil {
		t.Fatalf("NoteOn on the loaded bank failed: %v", err)
	}
	if got := bank.ActiveVoices(); got != 1 {
		t.Fatalf("loaded bank started %v voices, expected 1", got)
	}
}

func TestLoadFromBytesRejectsFileRefs(t *testing.T) {
	data := container(t, map[string]any{"name": "beep", "file": "beep.wav"})
	_, err := bankfile.LoadFromBytes(data)
	var loadErr *bankfile.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("in-memory load with a file reference got %v, expected LoadError", err)
	}
	if loadErr.Source != "bytes" {
		t.Fatalf("LoadError source got %q, expected bytes", loadErr.Source)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "beep.wav"), beepWav(t), 0644); err != nil {
		t.Fatalf("could not write the waveform: %v", err)
	}
	yml := `name: disk
samples:
  - name: beep
    file: beep.wav
presets:
  - name: Beep
    regions:
      - sample: beep
        rootkey: 60
`
	path := filepath.Join(dir, "bank.yml")
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatalf("could not write the container: %v", err)
	}
	bank, err := bankfile.LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	name, err := bank.PresetName(0)
	if err != nil || name != "Beep" {
		t.Fatalf("PresetName(0) got %q, %v", name, err)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("!!!")},
		{"no presets", []byte(`{"name":"empty"}`)},
		{"unknown sample", []byte(`{"presets":[{"name":"p","regions":[{"sample":"nope"}]}]}`)},
		{"unnamed sample", []byte(`{"presets":[{"name":"p","regions":[{"sample":"s"}]}],"samples":[{"file":"x.wav"}]}`)},
		{"sample without source", []byte(`{"presets":[{"name":"p","regions":[{"sample":"s"}]}],"samples":[{"name":"s"}]}`)},
	}
	for _, c := range cases {
		_, err := bankfile.LoadFromBytes(c.data)
		var loadErr *bankfile.LoadError
		if !errors.As(err, &loadErr) {
			t.Errorf("%v: got %v, expected LoadError", c.name, err)
		}
	}
	if _, err := bankfile.LoadFromPath(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Errorf("loading a missing file succeeded")
	}
}

func TestDuplicateSampleNames(t *testing.T) {
	wav := beepWav(t)
	data, err := json.Marshal(map[string]any{
		"samples": []map[string]any{
			{"name": "beep", "data": wav},
			{"name": "beep", "data": wav},
		},
		"presets": []map[string]any{{
			"name":    "p",
			"regions": []map[string]any{{"sample": "beep"}},
		}},
	})
	if err != nil {
		t.Fatalf("marshaling the container failed: %v", err)
	}
	if _, err := bankfile.LoadFromBytes(data); err == nil {
		t.Fatalf("duplicate sample names accepted")
	}
}
