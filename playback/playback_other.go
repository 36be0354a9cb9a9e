//go:build !linux

package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type malgoPlayer struct {
	ctx *malgo.AllocatedContext
}

func New() (Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoPlayer{ctx: ctx}, nil
}

func (m *malgoPlayer) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

func (m *malgoPlayer) Play(ctx context.Context, clip Clip) (Playback, error) {
	if len(clip.Samples) == 0 {
		return nil, fmt.Errorf("empty clip")
	}
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = uint32(clip.Channels)
	config.SampleRate = uint32(clip.SampleRate)

	pb := &malgoPlayback{samples: clip.Samples, done: make(chan struct{})}
	callbacks := malgo.DeviceCallbacks{
		Data: pb.dataCallback,
	}
	device, err := malgo.InitDevice(m.ctx.Context, config, callbacks)
	if err != nil {
		return nil, err
	}
	pb.device = device
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			pb.Stop()
		case <-pb.done:
		}
	}()
	return pb, nil
}

type malgoPlayback struct {
	device  *malgo.Device
	samples []int16

	mu       sync.Mutex
	pos      int
	finished bool
	once     sync.Once
	done     chan struct{}
	err      error
}

func (p *malgoPlayback) dataCallback(pOutput, _ []byte, _ uint32) {
	p.mu.Lock()
	n := 0
	for n*2+1 < len(pOutput) && p.pos < len(p.samples) {
		s := p.samples[p.pos]
		pOutput[n*2] = byte(s)
		pOutput[n*2+1] = byte(s >> 8)
		n++
		p.pos++
	}
	for i := n * 2; i < len(pOutput); i++ {
		pOutput[i] = 0
	}
	ended := p.pos >= len(p.samples) && !p.finished
	if ended {
		p.finished = true
	}
	p.mu.Unlock()

	if ended {
		// the device cannot be stopped from inside its own callback
		go p.finish(nil)
	}
}

func (p *malgoPlayback) finish(err error) {
	p.once.Do(func() {
		p.err = err
		p.device.Uninit()
		close(p.done)
	})
}

func (p *malgoPlayback) Done() <-chan struct{} { return p.done }

func (p *malgoPlayback) Err() error {
	<-p.done
	return p.err
}

func (p *malgoPlayback) Stop() {
	p.finish(ErrStopped)
}
