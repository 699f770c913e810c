package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/kantele-synth/kantele"
	"github.com/kantele-synth/kantele/bankfile"
	"github.com/kantele-synth/kantele/cmd"
	"github.com/kantele-synth/kantele/oto"
	"github.com/kantele-synth/kantele/version"
)

func main() {
	stdout := flag.Bool("s", false, "Do not write files; write to standard output instead.")
	help := flag.Bool("h", false, "Show help.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the same directory where the original bank file is.")
	play := flag.Bool("p", false, "Play a demo sequence of the bank presets (default behaviour when no other output is defined).")
	live := flag.Bool("m", false, "Play the bank live from a MIDI input instead of the demo sequence.")
	device := flag.String("i", "", "Name prefix of the MIDI input device to use in live mode. By default, the first device is used.")
	rawOut := flag.Bool("r", false, "Output the rendered demo sequence as .raw file. By default, saves stereo float32 buffer to disk.")
	wavOut := flag.Bool("w", false, "Output the rendered demo sequence as .wav file. By default, saves stereo float32 buffer to disk.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	sampleRate := flag.Int("rate", 44100, "Sample rate of the rendered audio.")
	gainDb := flag.Float64("gain", 0, "Output gain in decibels.")
	mono := flag.Bool("mono", false, "Render a mono mix instead of interleaved stereo.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*rawOut && !*wavOut {
		*play = true // if the user gives nothing to output, then the default behaviour is just to play the bank
	}
	mode := kantele.StereoInterleaved
	if *mono {
		mode = kantele.Mono
	}
	var audioContext kantele.AudioContext
	if *play || *live {
		var err error
		audioContext, err = oto.NewContext(*sampleRate, mode.Channels())
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not acquire oto AudioContext: %v\n", err)
			os.Exit(1)
		}
	}
	process := func(filename string) error {
		output := func(extension string, contents []byte) error {
			if *stdout {
				os.Stdout.Write(contents)
				return nil
			}
			_, name := filepath.Split(filename)
			dir := *directory
			if dir == "" {
				var err error
				dir, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
				}
			}
			name = strings.TrimSuffix(name, filepath.Ext(name)) + extension
			f := filepath.Join(dir, name)
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return fmt.Errorf("could not create output directory %v: %v", dir, err)
			}
			if err := os.WriteFile(f, contents, 0644); err != nil {
				return fmt.Errorf("could not write file %v: %v", f, err)
			}
			return nil
		}
		bank, err := bankfile.LoadFromPath(filename)
		if err != nil {
			return err
		}
		if err := bank.SetOutput(mode, *sampleRate, *gainDb); err != nil {
			return fmt.Errorf("could not configure output: %v", err)
		}
		if *live {
			return playLive(bank, audioContext, *device)
		}
		buffer, err := renderDemo(bank)
		if err != nil {
			return fmt.Errorf("could not render demo sequence: %v", err)
		}
		var playWaiter kantele.CloserWaiter
		if *play {
			printLevels(buffer, mode.Channels(), *sampleRate)
			playWaiter = audioContext.Play(kantele.NewBufferSource(buffer))
		}
		if *rawOut {
			raw, err := kantele.Raw(buffer, *pcm)
			if err != nil {
				return fmt.Errorf("could not generate .raw file: %v", err)
			}
			if err := output(".raw", raw); err != nil {
				return fmt.Errorf("error outputting .raw file: %v", err)
			}
		}
		if *wavOut {
			wav, err := kantele.Wav(buffer, mode.Channels(), *sampleRate, *pcm)
			if err != nil {
				return fmt.Errorf("could not generate .wav file: %v", err)
			}
			if err := output(".wav", wav); err != nil {
				return fmt.Errorf("error outputting .wav file: %v", err)
			}
		}
		if *play {
			playWaiter.Wait()
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		if info, err := os.Stat(param); err == nil && info.IsDir() {
			jsonfiles, err := filepath.Glob(filepath.Join(param, "*.json"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not glob the path %v for json files: %v\n", param, err)
				retval = 1
				continue
			}
			ymlfiles, err := filepath.Glob(filepath.Join(param, "*.yml"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not glob the path %v for yml files: %v\n", param, err)
				retval = 1
				continue
			}
			files := append(ymlfiles, jsonfiles...)
			for _, file := range files {
				err := process(file)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", file, err)
					retval = 1
				}
			}
		} else {
			err := process(param)
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", param, err)
				retval = 1
			}
		}
	}
	os.Exit(retval)
}

// renderDemo plays a short arpeggio with every preset of the bank on
// channel 0 and returns the rendered interleaved buffer.
func renderDemo(b *kantele.Bank) ([]float32, error) {
	cfg := b.Output()
	channels := cfg.Mode.Channels()
	block := make([]byte, 4*channels*cfg.SampleRate/8)
	var out []float32
	render := func(blocks int) error {
		for i := 0; i < blocks; i++ {
			if err := b.Render(kantele.Bytes(block)); err != nil {
				return err
			}
			out = appendSamples(out, block)
		}
		return nil
	}
	notes := []int{60, 64, 67, 72}
	for p := 0; p < b.PresetCount(); p++ {
		if err := b.ChannelSetPresetIndex(0, p); err != nil {
			return nil, err
		}
		for _, note := range notes {
			if err := b.ChannelNoteOn(0, note, 0.8); err != nil {
				return nil, err
			}
			if err := render(2); err != nil {
				return nil, err
			}
			b.ChannelNoteOff(0, note)
		}
		// let the release tails ring out before the next preset
		if err := render(4); err != nil {
			return nil, err
		}
		b.ChannelSoundsOff(0)
	}
	return out, nil
}

func appendSamples(dst []float32, raw []byte) []float32 {
	for i := 0; i+4 <= len(raw); i += 4 {
		bits := uint32(raw[i]) | uint32(raw[i+1])<<8 | uint32(raw[i+2])<<16 | uint32(raw[i+3])<<24
		dst = append(dst, math.Float32frombits(bits))
	}
	return dst
}

// playLive streams the bank to the audio device, applying MIDI events
// between render calls, until interrupted.
func playLive(b *kantele.Bank, audioContext kantele.AudioContext, device string) error {
	midiInput := cmd.NewMidiInput()
	defer midiInput.Close()
	if err := midiInput.Open(device, device == ""); err != nil {
		return fmt.Errorf("could not open MIDI input: %v", err)
	}
	// make every channel playable out of the box; a program change can
	// still switch presets later
	for ch := 0; ch < b.ChannelCount(); ch++ {
		b.ChannelSetPresetNumber(ch, 0, ch == kantele.DrumChannel)
	}
	reader := kantele.NewRenderReader(b, midiInput.Apply)
	playWaiter := audioContext.Play(reader)
	defer playWaiter.Close()
	fmt.Println("playing, press ctrl-c to quit")
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	return nil
}

// printLevels runs a peak detector over the rendered buffer and reports
// the level per output channel.
func printLevels(buffer []float32, channels, sampleRate int) {
	analyzer := kantele.VolumeAnalyzer{
		Attack:     1.5e-3,
		Release:    1.5,
		Min:        -100,
		Max:        20,
		SampleRate: sampleRate,
		Level:      [2]float64{-100, -100},
	}
	if err := analyzer.Update(buffer, channels); err != nil {
		fmt.Fprintf(os.Stderr, "volume analysis failed: %v\n", err)
		return
	}
	if channels == 2 {
		fmt.Printf("peak level: %.1f dB left, %.1f dB right\n", analyzer.Level[0], analyzer.Level[1])
	} else {
		fmt.Printf("peak level: %.1f dB\n", analyzer.Level[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Kantele command line utility for playing .yml/.json bank files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
