package hotkey

import "time"

const fakeDeliverTimeout = 500 * time.Millisecond

// FakeHotkey is a Hotkey scripted by tests. Its channels are unbuffered,
// so each Press or Release returns only once the listener took it and a
// script keeps its order.
type FakeHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{
		keydown: make(chan struct{}),
		keyup:   make(chan struct{}),
	}
}

func (f *FakeHotkey) Register() error          { return nil }
func (f *FakeHotkey) Unregister()              {}
func (f *FakeHotkey) Keydown() <-chan struct{} { return f.keydown }
func (f *FakeHotkey) Keyup() <-chan struct{}   { return f.keyup }

// Press reports false when nothing received the key within half a second.
func (f *FakeHotkey) Press() bool { return deliver(f.keydown) }

func (f *FakeHotkey) Release() bool { return deliver(f.keyup) }

// Tap presses and releases straight away.
func (f *FakeHotkey) Tap() bool {
	return f.Press() && f.Release()
}

// Hold keeps the key down for d.
func (f *FakeHotkey) Hold(d time.Duration) bool {
	if !f.Press() {
		return false
	}
	time.Sleep(d)
	return f.Release()
}

func deliver(ch chan struct{}) bool {
	select {
	case ch <- struct{}{}:
		return true
	case <-time.After(fakeDeliverTimeout):
		return false
	}
}
