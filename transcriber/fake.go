package transcriber

import (
	"context"
	"sync"
)

// FakeRecognizer hands out sessions that tests drive by hand.
type FakeRecognizer struct {
	mu       sync.Mutex
	startErr []error
	sessions []*FakeSession
	started  chan *FakeSession
}

func NewFake() *FakeRecognizer {
	return &FakeRecognizer{started: make(chan *FakeSession, 64)}
}

func (f *FakeRecognizer) Name() string { return "fake" }

// FailNext makes the next len(errs) Start calls fail in order.
func (f *FakeRecognizer) FailNext(errs ...error) {
	f.mu.Lock()
	f.startErr = append(f.startErr, errs...)
	f.mu.Unlock()
}

func (f *FakeRecognizer) Start(_ context.Context, _ Config) (Session, error) {
	f.mu.Lock()
	if len(f.startErr) > 0 {
		err := f.startErr[0]
		f.startErr = f.startErr[1:]
		f.mu.Unlock()
		return nil, err
	}
	s := &FakeSession{events: make(chan Event, 64)}
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	f.started <- s
	return s, nil
}

// Started delivers each session as it is created.
func (f *FakeRecognizer) Started() <-chan *FakeSession { return f.started }

func (f *FakeRecognizer) Sessions() []*FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSession(nil), f.sessions...)
}

type FakeSession struct {
	events chan Event

	mu      sync.Mutex
	ended   bool
	stopped bool
	fed     int
}

func (s *FakeSession) Events() <-chan Event { return s.events }

func (s *FakeSession) Feed(pcm []byte) {
	s.mu.Lock()
	s.fed += len(pcm)
	s.mu.Unlock()
}

func (s *FakeSession) Fed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fed
}

func (s *FakeSession) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.finish(ErrAborted)
}

func (s *FakeSession) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *FakeSession) Interim(text string) { s.send(Event{Kind: EventResult, Text: text}) }

func (s *FakeSession) Final(text string) { s.send(Event{Kind: EventResult, Text: text, Final: true}) }

// Fail emits an error of the given kind and ends the session.
func (s *FakeSession) Fail(kind ErrorKind) { s.finish(&Error{Kind: kind}) }

// End finishes the session without an error, like a server-side close.
func (s *FakeSession) End() { s.finish(nil) }

func (s *FakeSession) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.events <- ev
	}
}

func (s *FakeSession) finish(reason *Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	if reason != nil {
		s.events <- Event{Kind: EventError, Err: reason}
	}
	s.events <- Event{Kind: EventEnd}
	close(s.events)
}
