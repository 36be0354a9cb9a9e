package playback

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClipDuration(t *testing.T) {
	c := Clip{Samples: make([]int16, 44100*2), SampleRate: 44100, Channels: 2}
	if c.Frames() != 44100 {
		t.Errorf("Frames = %d", c.Frames())
	}
	if c.Duration() != time.Second {
		t.Errorf("Duration = %v", c.Duration())
	}
	if (Clip{}).Duration() != 0 {
		t.Error("zero clip has duration")
	}
}

func TestFakeRealtimeFinishes(t *testing.T) {
	p := NewFake()
	p.Realtime = true
	pb, err := p.Play(context.Background(), Clip{Samples: make([]int16, 160), SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-pb.Done():
	case <-time.After(time.Second):
		t.Fatal("playback did not finish")
	}
	if pb.Err() != nil {
		t.Errorf("Err = %v", pb.Err())
	}
}

func TestFakeContextCancelStops(t *testing.T) {
	p := NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	pb, _ := p.Play(ctx, Clip{Samples: make([]int16, 16000), SampleRate: 16000, Channels: 1})
	cancel()
	if err := pb.Err(); !errors.Is(err, ErrStopped) {
		t.Errorf("Err = %v, want ErrStopped", err)
	}
}
