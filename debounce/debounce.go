package debounce

import (
	"sync"
	"time"
)

// Trailing calls fn with the most recent value once Trigger has not been
// called for window. Each Trigger restarts the window.
type Trailing[T any] struct {
	window time.Duration
	fn     func(T)

	mu      sync.Mutex
	timer   *time.Timer
	value   T
	gen     uint64
	pending bool
	stopped bool
}

func New[T any](window time.Duration, fn func(T)) *Trailing[T] {
	return &Trailing[T]{window: window, fn: fn}
}

func (d *Trailing[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.value = v
	d.pending = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen) })
}

func (d *Trailing[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending || d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	v := d.value
	d.mu.Unlock()
	d.fn(v)
}

// Cancel drops a pending call. Later Triggers work as usual.
func (d *Trailing[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Trailing[T]) cancelLocked() {
	d.gen++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	var zero T
	d.value = zero
}

// Stop cancels any pending call and ignores all later Triggers.
func (d *Trailing[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

func (d *Trailing[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}
