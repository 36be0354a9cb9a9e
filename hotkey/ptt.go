package hotkey

import (
	"sync"
	"time"
)

type Mode string

const (
	ModeHold   Mode = "hold"
	ModeToggle Mode = "toggle"
)

// PushToTalk turns one key combination into recording start and stop
// events. A press starts recording at once. Holding past the threshold
// records until release; a shorter tap records until the next press.
type PushToTalk struct {
	start chan struct{}
	stop  chan Mode
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	toggle bool
}

func NewPushToTalk(hk Hotkey, holdThreshold time.Duration) *PushToTalk {
	p := &PushToTalk{
		start: make(chan struct{}, 1),
		stop:  make(chan Mode, 1),
		done:  make(chan struct{}),
	}
	go p.run(hk, holdThreshold)
	return p
}

// Start signals that recording should begin.
func (p *PushToTalk) Start() <-chan struct{} { return p.start }

// Stop signals that recording should end, carrying how it was started.
func (p *PushToTalk) Stop() <-chan Mode { return p.stop }

// IsToggle reports whether the current recording was started by a tap.
func (p *PushToTalk) IsToggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toggle
}

func (p *PushToTalk) Close() {
	p.once.Do(func() { close(p.done) })
}

func (p *PushToTalk) setToggle(v bool) {
	p.mu.Lock()
	p.toggle = v
	p.mu.Unlock()
}

func (p *PushToTalk) emitStop(m Mode) {
	select {
	case p.stop <- m:
	default:
	}
}

func (p *PushToTalk) run(hk Hotkey, holdThreshold time.Duration) {
	for {
		select {
		case <-p.done:
			return
		case <-hk.Keydown():
		}
		p.setToggle(false)
		select {
		case p.start <- struct{}{}:
		default:
		}

		timer := time.NewTimer(holdThreshold)
		select {
		case <-p.done:
			timer.Stop()
			return
		case <-timer.C:
			select {
			case <-p.done:
				return
			case <-hk.Keyup():
			}
			p.emitStop(ModeHold)
			continue
		case <-hk.Keyup():
			timer.Stop()
		}

		p.setToggle(true)
		// the next full press ends a tapped recording
		select {
		case <-p.done:
			return
		case <-hk.Keydown():
		}
		select {
		case <-p.done:
			return
		case <-hk.Keyup():
		}
		p.emitStop(ModeToggle)
		p.setToggle(false)
	}
}
