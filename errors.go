package kantele

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChannel is returned by all channel operations when the
	// channel index is outside the configured channel table.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrNoPreset is returned by ChannelNoteOn when the channel has no
	// preset assigned.
	ErrNoPreset = errors.New("no preset assigned to channel")

	// ErrPresetNotFound is returned when a preset index or a
	// bank/program pair does not resolve to any preset in the bank.
	ErrPresetNotFound = errors.New("preset not found")
)

// BufferFormatError reports a render target whose element type, shape or
// length does not conform to the current output configuration. A render call
// failing with this error has written nothing and advanced no voice.
type BufferFormatError struct {
	Reason string
}

func (e *BufferFormatError) Error() string {
	return fmt.Sprintf("buffer format error: %s", e.Reason)
}
