//go:build linux

package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

type pulsePlayer struct {
	client *pulse.Client
}

func New() (Player, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("rehearse"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulsePlayer{client: c}, nil
}

func (p *pulsePlayer) Close() {
	p.client.Close()
}

func (p *pulsePlayer) Play(ctx context.Context, clip Clip) (Playback, error) {
	if len(clip.Samples) == 0 {
		return nil, fmt.Errorf("empty clip")
	}
	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(clip.Samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, clip.Samples[pos:])
		pos += n
		return n, nil
	})

	layout := pulse.PlaybackMono
	volumes := proto.ChannelVolumes{uint32(proto.VolumeNorm)}
	if clip.Channels == 2 {
		layout = pulse.PlaybackStereo
		volumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
	}
	stream, err := p.client.NewPlayback(reader,
		layout,
		pulse.PlaybackSampleRate(clip.SampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(r *proto.CreatePlaybackStream) {
			r.ChannelVolumes = volumes
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("pulse playback: %w", err)
	}

	pb := &pulsePlayback{stream: stream, done: make(chan struct{})}
	stream.Start()
	go func() {
		stream.Drain()
		pb.finish(nil)
	}()
	go func() {
		select {
		case <-ctx.Done():
			pb.Stop()
		case <-pb.done:
		}
	}()
	return pb, nil
}

type pulsePlayback struct {
	stream *pulse.PlaybackStream
	once   sync.Once
	done   chan struct{}
	err    error
}

func (p *pulsePlayback) finish(err error) {
	p.once.Do(func() {
		p.err = err
		p.stream.Stop()
		p.stream.Close()
		close(p.done)
	})
}

func (p *pulsePlayback) Done() <-chan struct{} { return p.done }

func (p *pulsePlayback) Err() error {
	<-p.done
	return p.err
}

func (p *pulsePlayback) Stop() {
	p.finish(ErrStopped)
}
