// Package oto plays rendered audio through the ebitengine/oto/v3 backend.
package oto

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/kantele-synth/kantele"
)

type Context struct {
	ctx *oto.Context
}

// NewContext opens the audio device for little-endian float32 playback at
// the given rate and channel count.
func NewContext(sampleRate, channels int) (*Context, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx}, nil
}

// Play starts playing the stream and returns a handle to stop it or wait
// until the reader is drained.
func (c *Context) Play(r io.Reader) kantele.CloserWaiter {
	player := c.ctx.NewPlayer(r)
	player.Play()
	return &playerWaiter{player: player}
}

func (c *Context) Close() error {
	return nil // the oto context has no close; the device is released on exit
}

type playerWaiter struct {
	player *oto.Player
}

func (p *playerWaiter) Close() error {
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

func (p *playerWaiter) Wait() {
	for p.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
}
