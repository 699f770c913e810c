// Package bankfile loads instrument bank containers into playable
// kantele banks. A container is a YAML (or JSON) document listing presets,
// their regions and the sample waveforms the regions play; waveforms are
// WAV data embedded in the container or referenced by file path.
package bankfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kantele-synth/kantele"
)

// LoadError reports a bank that could not be loaded: missing file,
// unparseable container or invalid instrument data. No partially
// initialized bank is ever returned alongside it.
type LoadError struct {
	Source string // file path, or "bytes" for in-memory loads
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load bank from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Decoder turns container waveform bytes into mono PCM frames and their
// native sample rate. The stock implementation is WavDecoder.
type Decoder interface {
	Decode(raw []byte) (pcm []float32, sampleRate int, err error)
}

type (
	bankSpec struct {
		Name    string       `yaml:"name"`
		Presets []presetSpec `yaml:"presets"`
		Samples []sampleSpec `yaml:"samples"`
	}

	presetSpec struct {
		Name    string       `yaml:"name"`
		Bank    int          `yaml:"bank"`
		Program int          `yaml:"program"`
		Regions []regionSpec `yaml:"regions"`
	}

	regionSpec struct {
		Sample  string  `yaml:"sample"`
		LoKey   int     `yaml:"lokey"`
		HiKey   int     `yaml:"hikey"`
		LoVel   int     `yaml:"lovel"`
		HiVel   int     `yaml:"hivel"`
		RootKey *int    `yaml:"rootkey"` // nil means middle C
		Tune    float64 `yaml:"tune"`
		Loop    bool    `yaml:"loop"`
		OneShot bool    `yaml:"oneshot"`
		Gain    float64 `yaml:"gain"`
		Pan     float64 `yaml:"pan"`

		AmpEnv envSpec `yaml:"ampenv"`
		ModEnv envSpec `yaml:"modenv"`

		ModEnvToPitch  float64 `yaml:"modenvtopitch"`
		ModEnvToFilter float64 `yaml:"modenvtofilter"`

		VibratoRate  float64 `yaml:"vibratorate"`
		VibratoDepth float64 `yaml:"vibratodepth"`
		VibratoDelay float64 `yaml:"vibratodelay"`

		Cutoff    float64 `yaml:"cutoff"`
		Resonance float64 `yaml:"resonance"`
	}

	envSpec struct {
		Attack  float64 `yaml:"attack"`
		Decay   float64 `yaml:"decay"`
		Sustain float64 `yaml:"sustain"`
		Release float64 `yaml:"release"`
	}

	sampleSpec struct {
		Name      string `yaml:"name"`
		File      string `yaml:"file,omitempty"`
		Data      []byte `yaml:"data,omitempty"`
		LoopStart int    `yaml:"loopstart"`
		LoopEnd   int    `yaml:"loopend"`
	}
)

const defaultRootKey = 60

// LoadFromPath parses the bank container at path. Sample waveforms
// referenced by file are resolved relative to the container's directory.
func LoadFromPath(path string) (*kantele.Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	bank, err := load(data, filepath.Dir(path), WavDecoder{})
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	return bank, nil
}

// LoadFromBytes parses an in-memory bank container. All sample waveforms
// must be embedded; file references are rejected as there is no directory
// to resolve them against.
func LoadFromBytes(data []byte) (*kantele.Bank, error) {
	bank, err := load(data, "", WavDecoder{})
	if err != nil {
		return nil, &LoadError{Source: "bytes", Err: err}
	}
	return bank, nil
}

func load(data []byte, dir string, dec Decoder) (*kantele.Bank, error) {
	var spec bankSpec
	if errJSON := json.Unmarshal(data, &spec); errJSON != nil {
		if errYaml := yaml.Unmarshal(data, &spec); errYaml != nil {
			return nil, fmt.Errorf("the bank could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	if len(spec.Presets) == 0 {
		return nil, fmt.Errorf("bank %q contains no presets", spec.Name)
	}

	samples := make([]kantele.Sample, len(spec.Samples))
	sampleIndex := make(map[string]int, len(spec.Samples))
	for i, s := range spec.Samples {
		if s.Name == "" {
			return nil, fmt.Errorf("sample %d has no name", i)
		}
		if _, ok := sampleIndex[s.Name]; ok {
			return nil, fmt.Errorf("duplicate sample name %q", s.Name)
		}
		raw := s.Data
		if len(raw) == 0 {
			if s.File == "" {
				return nil, fmt.Errorf("sample %q has neither embedded data nor a file reference", s.Name)
			}
			if dir == "" {
				return nil, fmt.Errorf("sample %q references file %q but the bank was loaded from memory", s.Name, s.File)
			}
			var err error
			raw, err = os.ReadFile(filepath.Join(dir, s.File))
			if err != nil {
				return nil, fmt.Errorf("could not read waveform of sample %q: %v", s.Name, err)
			}
		}
		pcm, rate, err := dec.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("could not decode waveform of sample %q: %v", s.Name, err)
		}
		loopEnd := s.LoopEnd
		if loopEnd == 0 {
			loopEnd = len(pcm)
		}
		samples[i] = kantele.Sample{
			Name:       s.Name,
			Data:       pcm,
			SampleRate: rate,
			LoopStart:  s.LoopStart,
			LoopEnd:    loopEnd,
		}
		sampleIndex[s.Name] = i
	}

	presets := make([]kantele.Preset, len(spec.Presets))
	for i, p := range spec.Presets {
		regions := make([]kantele.Region, len(p.Regions))
		for j, r := range p.Regions {
			idx, ok := sampleIndex[r.Sample]
			if !ok {
				return nil, fmt.Errorf("preset %q region %d references unknown sample %q", p.Name, j, r.Sample)
			}
			rootKey := defaultRootKey
			if r.RootKey != nil {
				rootKey = *r.RootKey
			}
			regions[j] = kantele.Region{
				Sample:         idx,
				LoKey:          r.LoKey,
				HiKey:          r.HiKey,
				LoVel:          r.LoVel,
				HiVel:          r.HiVel,
				RootKey:        rootKey,
				Tune:           r.Tune,
				Loop:           r.Loop,
				OneShot:        r.OneShot,
				Gain:           r.Gain,
				Pan:            r.Pan,
				AmpEnv:         kantele.Envelope(r.AmpEnv),
				ModEnv:         kantele.Envelope(r.ModEnv),
				ModEnvToPitch:  r.ModEnvToPitch,
				ModEnvToFilter: r.ModEnvToFilter,
				VibratoRate:    r.VibratoRate,
				VibratoDepth:   r.VibratoDepth,
				VibratoDelay:   r.VibratoDelay,
				Cutoff:         r.Cutoff,
				Resonance:      r.Resonance,
			}
		}
		presets[i] = kantele.Preset{
			Name:    p.Name,
			Bank:    p.Bank,
			Program: p.Program,
			Regions: regions,
		}
	}
	return kantele.NewBank(presets, samples)
}
