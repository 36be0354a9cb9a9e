package speech

import (
	"errors"
	"sync"
	"testing"
	"time"

	"rehearse/transcriber"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RestartDelay = 10 * time.Millisecond
	cfg.SettleDelay = 30 * time.Millisecond
	cfg.MaxRestartDelay = 40 * time.Millisecond
	cfg.MaxRestarts = 3
	return cfg
}

type fakeSource struct {
	mu   sync.Mutex
	subs int
}

func (f *fakeSource) Subscribe(func([]byte)) func() {
	f.mu.Lock()
	f.subs++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.subs--
		f.mu.Unlock()
	}
}

func (f *fakeSource) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs
}

func waitSession(t *testing.T, rec *transcriber.FakeRecognizer) *transcriber.FakeSession {
	t.Helper()
	select {
	case s := <-rec.Started():
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for recognizer session")
	}
	return nil
}

func expectNoSession(t *testing.T, rec *transcriber.FakeRecognizer, d time.Duration) {
	t.Helper()
	select {
	case <-rec.Started():
		t.Fatal("unexpected recognizer session")
	case <-time.After(d):
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timeout: %s", msg)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func newTestStream(rec transcriber.Recognizer, src *fakeSource) *Stream {
	return NewStream(rec, NewBuffer(), func() AudioSource { return src }, testConfig())
}

func TestInterimThenFinal(t *testing.T) {
	rec := transcriber.NewFake()
	s := newTestStream(rec, &fakeSource{})
	defer s.Close()

	s.Activate()
	sess := waitSession(t, rec)
	waitFor(t, s.Listening, "listening")

	sess.Interim("i think i can")
	waitFor(t, func() bool { return s.Buffer().Interim() == "i think i can" }, "interim applied")

	sess.Final("i think i can handle pressure")
	waitFor(t, func() bool { return s.Buffer().Final() != "" }, "final applied")

	if got := s.Buffer().Text(); got != "I think I can handle pressure." {
		t.Errorf("Text = %q", got)
	}
	if got := s.Buffer().Interim(); got != "" {
		t.Errorf("Interim = %q, want empty", got)
	}
}

func TestSpeakingSuspendsRecognition(t *testing.T) {
	rec := transcriber.NewFake()
	src := &fakeSource{}
	s := newTestStream(rec, src)
	defer s.Close()

	s.Activate()
	sess := waitSession(t, rec)
	waitFor(t, s.Listening, "listening")
	if src.active() != 1 {
		t.Fatalf("audio subscriptions = %d, want 1", src.active())
	}

	s.SetSpeaking(true)
	if s.State() != Stopped {
		t.Fatalf("state = %v right after SetSpeaking(true)", s.State())
	}
	if !sess.Stopped() {
		t.Error("recognizer session not stopped")
	}
	if src.active() != 0 {
		t.Errorf("audio subscriptions = %d while speaking", src.active())
	}
	expectNoSession(t, rec, 60*time.Millisecond)

	released := time.Now()
	s.SetSpeaking(false)
	waitSession(t, rec)
	if d := time.Since(released); d < testConfig().SettleDelay {
		t.Errorf("restarted after %v, before settle delay", d)
	}
	waitFor(t, s.Listening, "listening again")
}

func TestRestartAfterNaturalEnd(t *testing.T) {
	rec := transcriber.NewFake()
	s := newTestStream(rec, &fakeSource{})
	defer s.Close()

	s.Activate()
	sess := waitSession(t, rec)
	sess.Fail(transcriber.KindNoSpeech)
	waitSession(t, rec)
}

func TestStaleRunIgnored(t *testing.T) {
	rec := transcriber.NewFake()
	s := newTestStream(rec, &fakeSource{})
	defer s.Close()

	s.Activate()
	first := waitSession(t, rec)
	waitFor(t, s.Listening, "listening")
	s.SetSpeaking(true)
	s.SetSpeaking(false)
	second := waitSession(t, rec)
	waitFor(t, s.Listening, "listening")

	first.Final("stale words")
	second.Final("fresh words")
	waitFor(t, func() bool { return s.Buffer().Final() != "" }, "final applied")
	if got := s.Buffer().Text(); got != "Fresh words." {
		t.Errorf("Text = %q", got)
	}
}

func TestStartFailuresBackOffAndGiveUp(t *testing.T) {
	rec := transcriber.NewFake()
	denied := &transcriber.Error{Kind: transcriber.KindNotAllowed, Err: errors.New("denied")}
	rec.FailNext(denied, denied, denied, denied)
	s := newTestStream(rec, &fakeSource{})
	defer s.Close()

	s.Activate()
	// three failures reach MaxRestarts
	expectNoSession(t, rec, 300*time.Millisecond)
	if s.State() != Stopped {
		t.Errorf("state = %v", s.State())
	}

	// a fresh activation re-arms the retry budget; the fourth error is
	// consumed and the retry succeeds
	s.Deactivate()
	s.Activate()
	waitSession(t, rec)
}

func TestMissingMicrophoneGivesUp(t *testing.T) {
	rec := transcriber.NewFake()
	s := NewStream(rec, NewBuffer(), func() AudioSource { return nil }, testConfig())
	defer s.Close()

	s.Activate()
	for range 3 {
		sess := waitSession(t, rec)
		waitFor(t, sess.Stopped, "session without audio stopped")
	}
	expectNoSession(t, rec, 300*time.Millisecond)
	if s.State() != Stopped {
		t.Errorf("state = %v", s.State())
	}
	if n := len(rec.Sessions()); n != 3 {
		t.Errorf("sessions = %d, want 3", n)
	}
}

func TestBackoff(t *testing.T) {
	s := &Stream{cfg: Config{RestartDelay: 100 * time.Millisecond, MaxRestartDelay: time.Second}}
	want := []time.Duration{100, 200, 400, 800, 1000, 1000}
	for i, w := range want {
		s.failures = i + 1
		if got := s.backoff(); got != w*time.Millisecond {
			t.Errorf("failures=%d: backoff = %v, want %v", i+1, got, w*time.Millisecond)
		}
	}
}

func TestDeactivateStopsRestart(t *testing.T) {
	rec := transcriber.NewFake()
	s := newTestStream(rec, &fakeSource{})
	defer s.Close()

	s.Activate()
	sess := waitSession(t, rec)
	waitFor(t, s.Listening, "listening")
	s.Deactivate()
	sess.End()
	expectNoSession(t, rec, 60*time.Millisecond)
}

func TestBufferClearAndSetText(t *testing.T) {
	b := NewBuffer()
	changes := 0
	b.OnChange(func() { changes++ })

	b.AppendFinal("hello there")
	b.SetInterim("and more")
	if got := b.Text(); got != "Hello there. and more" {
		t.Errorf("Text = %q", got)
	}
	gen := b.Generation()
	b.Clear()
	if b.Text() != "" || b.Generation() != gen+1 {
		t.Errorf("after Clear: %q gen=%d", b.Text(), b.Generation())
	}
	b.SetInterim("x")
	b.SetText("typed answer")
	if b.Interim() != "" || b.Text() != "typed answer" {
		t.Errorf("after SetText: final=%q interim=%q", b.Final(), b.Interim())
	}
	if changes != 5 {
		t.Errorf("changes = %d, want 5", changes)
	}
}
