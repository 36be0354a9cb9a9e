package tts

import (
	"context"
	"sync"

	"rehearse/log"
	"rehearse/playback"
)

// Controller plays interviewer speech one utterance at a time and tells
// subscribers when speech output starts and stops.
type Controller struct {
	player playback.Player

	// notifyMu serialises edge delivery. It is never acquired while mu is
	// held, so subscribers may call back into the controller.
	notifyMu sync.Mutex

	mu        sync.Mutex
	current   playback.Playback
	gen       uint64
	speaking  bool
	delivered bool
	subs      []func(bool)
}

func New(player playback.Player) *Controller {
	return &Controller{player: player}
}

// OnSpeaking registers fn for speaking edges. Calls are delivered in order.
func (c *Controller) OnSpeaking(fn func(bool)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// setSpeakingLocked records the new value, unlocks c.mu and delivers any
// undelivered edge.
func (c *Controller) setSpeakingLocked(v bool) {
	c.speaking = v
	c.mu.Unlock()
	c.flush()
}

// flush delivers edges until subscribers have seen the current value. A
// caller that finds another delivery in progress leaves the edge to it;
// the holder re-checks after releasing notifyMu so nothing is lost.
func (c *Controller) flush() {
	for {
		if !c.notifyMu.TryLock() {
			return
		}
		c.drain()
		c.notifyMu.Unlock()

		c.mu.Lock()
		settled := c.speaking == c.delivered
		c.mu.Unlock()
		if settled {
			return
		}
	}
}

func (c *Controller) drain() {
	for {
		c.mu.Lock()
		if c.speaking == c.delivered {
			c.mu.Unlock()
			return
		}
		v := c.speaking
		c.delivered = v
		subs := append([]func(bool){}, c.subs...)
		c.mu.Unlock()
		for _, fn := range subs {
			fn(v)
		}
	}
}

// Play stops whatever is playing and starts payload. The returned error
// covers decoding and starting the output; the clip then plays in the
// background.
func (c *Controller) Play(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	old := c.current
	c.current = nil
	c.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	clip, err := Decode(payload)
	if err != nil {
		c.abort(gen)
		return err
	}

	if c.player == nil {
		c.abort(gen)
		return nil
	}
	pb, err := c.player.Play(ctx, clip)
	if err != nil {
		log.Warnf("tts: playback failed: %v", err)
		c.abort(gen)
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		pb.Stop()
		return nil
	}
	c.current = pb
	c.setSpeakingLocked(true)

	go c.watch(gen, pb)
	return nil
}

func (c *Controller) abort(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.setSpeakingLocked(false)
}

func (c *Controller) watch(gen uint64, pb playback.Playback) {
	<-pb.Done()
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.setSpeakingLocked(false)
}

// Stop ends playback and clears the speaking flag.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.gen++
	old := c.current
	c.current = nil
	c.setSpeakingLocked(false)
	if old != nil {
		old.Stop()
	}
}
