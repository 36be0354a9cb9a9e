package hotkey

// Hotkey delivers presses and releases of the global push-to-talk
// combination (Ctrl+Shift+Space).
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

const Combination = "Ctrl+Shift+Space"
