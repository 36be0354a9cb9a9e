package speech

import (
	"strings"
	"sync"

	"rehearse/punct"
)

// Buffer holds the answer transcript for the current question. Final
// accumulates committed segments; Interim is the provisional tail.
type Buffer struct {
	mu       sync.Mutex
	final    string
	interim  string
	gen      uint64
	onChange []func()
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// OnChange registers fn to run after every mutation, outside the lock.
func (b *Buffer) OnChange(fn func()) {
	b.mu.Lock()
	b.onChange = append(b.onChange, fn)
	b.mu.Unlock()
}

func (b *Buffer) notify() {
	b.mu.Lock()
	fns := append([]func(){}, b.onChange...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// AppendFinal normalizes a committed segment, appends it followed by a
// space, and clears the interim text.
func (b *Buffer) AppendFinal(segment string) {
	text := punct.Normalize(segment)
	b.mu.Lock()
	if text != "" {
		b.final += text + " "
	}
	b.interim = ""
	b.mu.Unlock()
	b.notify()
}

func (b *Buffer) SetInterim(text string) {
	b.mu.Lock()
	b.interim = text
	b.mu.Unlock()
	b.notify()
}

// SetText replaces the committed text with a typed edit.
func (b *Buffer) SetText(text string) {
	b.mu.Lock()
	b.final = text
	b.interim = ""
	b.mu.Unlock()
	b.notify()
}

// Clear empties both parts and starts a new generation.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.final = ""
	b.interim = ""
	b.gen++
	b.mu.Unlock()
	b.notify()
}

func (b *Buffer) Final() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.final
}

func (b *Buffer) Interim() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interim
}

// Text is the visible answer: committed plus provisional text, trimmed.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.final + b.interim)
}

func (b *Buffer) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}
