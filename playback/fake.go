package playback

import (
	"context"
	"sync"
	"time"
)

// FakePlayer records clips instead of playing them. With Realtime set a
// playback ends after the clip's duration; otherwise it runs until
// Finish or Stop.
type FakePlayer struct {
	Realtime bool
	// PlayErr, when set, is returned by Play.
	PlayErr error

	mu        sync.Mutex
	clips     []Clip
	playbacks []*FakePlayback
	started   chan *FakePlayback
}

func NewFake() *FakePlayer {
	return &FakePlayer{started: make(chan *FakePlayback, 64)}
}

func (f *FakePlayer) Play(ctx context.Context, clip Clip) (Playback, error) {
	f.mu.Lock()
	if f.PlayErr != nil {
		err := f.PlayErr
		f.mu.Unlock()
		return nil, err
	}
	pb := &FakePlayback{done: make(chan struct{})}
	f.clips = append(f.clips, clip)
	f.playbacks = append(f.playbacks, pb)
	realtime := f.Realtime
	f.mu.Unlock()

	if realtime {
		go func() {
			select {
			case <-time.After(clip.Duration()):
				pb.Finish()
			case <-pb.done:
			}
		}()
	}
	go func() {
		select {
		case <-ctx.Done():
			pb.Stop()
		case <-pb.done:
		}
	}()
	f.started <- pb
	return pb, nil
}

func (f *FakePlayer) Close() {}

// Started delivers each playback as it begins.
func (f *FakePlayer) Started() <-chan *FakePlayback { return f.started }

func (f *FakePlayer) Clips() []Clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Clip(nil), f.clips...)
}

type FakePlayback struct {
	once sync.Once
	done chan struct{}
	err  error
}

func (p *FakePlayback) end(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Finish ends the playback as if the clip ran out.
func (p *FakePlayback) Finish() { p.end(nil) }

func (p *FakePlayback) Stop() { p.end(ErrStopped) }

func (p *FakePlayback) Done() <-chan struct{} { return p.done }

func (p *FakePlayback) Err() error {
	<-p.done
	return p.err
}

func (p *FakePlayback) Stopped() bool {
	select {
	case <-p.done:
		return p.err == ErrStopped
	default:
		return false
	}
}
