package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"rehearse/log"
	"rehearse/transcriber"
)

var errNoMicrophone = &transcriber.Error{Kind: transcriber.KindAudioCapture, Err: errors.New("no microphone track")}

type State int

const (
	Stopped State = iota
	Starting
	Listening
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	}
	return "unknown"
}

type Config struct {
	RestartDelay    time.Duration
	SettleDelay     time.Duration
	MaxRestartDelay time.Duration
	MaxRestarts     int
	Recognition     transcriber.Config
}

func DefaultConfig() Config {
	return Config{
		RestartDelay:    300 * time.Millisecond,
		SettleDelay:     500 * time.Millisecond,
		MaxRestartDelay: 5 * time.Second,
		MaxRestarts:     5,
		Recognition:     transcriber.DefaultConfig(),
	}
}

// AudioSource delivers microphone PCM until the returned cancel is called.
type AudioSource interface {
	Subscribe(fn func(pcm []byte)) (cancel func())
}

// Stream runs continuous recognition while the interview is active and
// nobody else is speaking, restarting the recognizer whenever a session
// ends.
type Stream struct {
	rec    transcriber.Recognizer
	buf    *Buffer
	cfg    Config
	source func() AudioSource

	mu          sync.Mutex
	state       State
	active      bool
	speaking    bool
	closed      bool
	run         uint64
	session     transcriber.Session
	cancelAudio func()
	timer       *time.Timer
	failures    int
	gaveUp      bool
	onState     func(State)
}

func NewStream(rec transcriber.Recognizer, buf *Buffer, source func() AudioSource, cfg Config) *Stream {
	return &Stream{rec: rec, buf: buf, source: source, cfg: cfg}
}

// OnState registers fn to observe state transitions.
func (s *Stream) OnState(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) Listening() bool {
	return s.State() == Listening
}

func (s *Stream) Buffer() *Buffer { return s.buf }

// Activate starts recognition unless someone is speaking.
func (s *Stream) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.active {
		return
	}
	s.active = true
	s.failures = 0
	s.gaveUp = false
	if !s.speaking && s.state == Stopped {
		s.startLocked()
	}
}

func (s *Stream) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.stopLocked()
}

// SetSpeaking stops recognition at once when speech output begins and
// resumes it after SettleDelay when output ends.
func (s *Stream) SetSpeaking(speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.speaking == speaking {
		return
	}
	s.speaking = speaking
	if speaking {
		s.stopLocked()
		return
	}
	if s.active {
		s.scheduleLocked(s.cfg.SettleDelay)
	}
}

func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.closed = true
	s.stopLocked()
}

func (s *Stream) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	if fn := s.onState; fn != nil {
		go fn(st)
	}
}

func (s *Stream) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.run++
	if s.cancelAudio != nil {
		s.cancelAudio()
		s.cancelAudio = nil
	}
	if s.session != nil {
		s.session.Stop()
		s.session = nil
	}
	s.setStateLocked(Stopped)
}

func (s *Stream) scheduleLocked(delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	run := s.run
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if run != s.run || !s.active || s.speaking || s.closed || s.state != Stopped {
			return
		}
		s.timer = nil
		s.startLocked()
	})
}

func (s *Stream) startLocked() {
	s.run++
	run := s.run
	s.setStateLocked(Starting)
	go s.start(run)
}

func (s *Stream) start(run uint64) {
	sess, err := s.rec.Start(context.Background(), s.cfg.Recognition)

	s.mu.Lock()
	defer s.mu.Unlock()

	if run != s.run {
		if sess != nil {
			go drain(sess)
			sess.Stop()
		}
		return
	}
	if err != nil {
		log.Warnf("speech: recognizer start failed: %v", err)
		s.setStateLocked(Stopped)
		s.failedLocked()
		return
	}

	var src AudioSource
	if s.source != nil {
		src = s.source()
	}
	if src == nil {
		go drain(sess)
		sess.Stop()
		log.Warnf("speech: %v", errNoMicrophone)
		s.setStateLocked(Stopped)
		s.failedLocked()
		return
	}

	s.session = sess
	s.cancelAudio = src.Subscribe(sess.Feed)
	s.setStateLocked(Listening)
	go s.pump(run, sess)
}

// failedLocked counts a failed run and schedules a retry with exponential
// backoff, giving up after MaxRestarts consecutive failures.
func (s *Stream) failedLocked() {
	s.failures++
	if s.cfg.MaxRestarts > 0 && s.failures >= s.cfg.MaxRestarts {
		if !s.gaveUp {
			log.Warnf("speech: giving up after %d consecutive recognizer failures", s.failures)
		}
		s.gaveUp = true
		return
	}
	if s.active && !s.speaking {
		s.scheduleLocked(s.backoff())
	}
}

func (s *Stream) backoff() time.Duration {
	d := s.cfg.RestartDelay
	for i := 1; i < s.failures; i++ {
		d *= 2
		if s.cfg.MaxRestartDelay > 0 && d >= s.cfg.MaxRestartDelay {
			return s.cfg.MaxRestartDelay
		}
	}
	return d
}

func (s *Stream) pump(run uint64, sess transcriber.Session) {
	delivered := false
	failed := false
	for ev := range sess.Events() {
		s.mu.Lock()
		current := run == s.run
		s.mu.Unlock()
		if !current {
			continue
		}

		switch ev.Kind {
		case transcriber.EventResult:
			delivered = true
			if ev.Final {
				s.buf.AppendFinal(ev.Text)
			} else {
				s.buf.SetInterim(ev.Text)
			}
		case transcriber.EventError:
			if transcriber.Expected(ev.Err) {
				continue
			}
			log.Warnf("speech: %v", ev.Err)
			failed = true
		case transcriber.EventEnd:
			s.ended(run, delivered, failed)
		}
	}
}

func (s *Stream) ended(run uint64, delivered, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run != s.run {
		return
	}
	if s.cancelAudio != nil {
		s.cancelAudio()
		s.cancelAudio = nil
	}
	s.session = nil
	s.setStateLocked(Stopped)

	if delivered {
		s.failures = 0
		s.gaveUp = false
	}
	if failed {
		s.failedLocked()
		return
	}
	if s.active && !s.speaking && !s.closed {
		s.scheduleLocked(s.cfg.RestartDelay)
	}
}

func drain(sess transcriber.Session) {
	for range sess.Events() {
	}
}
