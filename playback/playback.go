package playback

import (
	"context"
	"errors"
	"time"
)

var ErrStopped = errors.New("playback stopped")

// Clip is interleaved 16-bit PCM.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

type Player interface {
	// Play starts the clip and returns once the output has started.
	Play(ctx context.Context, clip Clip) (Playback, error)
	Close()
}

type Playback interface {
	// Done is closed when the clip finishes or is stopped.
	Done() <-chan struct{}
	// Err is nil after a clip played to the end, ErrStopped after Stop.
	Err() error
	Stop()
}
