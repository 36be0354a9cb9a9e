package transcriber

import (
	"strings"
	"sync"
	"time"

	"rehearse/audio"
	"rehearse/log"
)

const (
	streamChunkMs    = 100
	streamChunkBytes = audio.SampleRate * audio.Channels * (audio.BitsPerSample / 8) * streamChunkMs / 1000
)

// rawStreamSession is one provider websocket connection.
type rawStreamSession interface {
	Send(pcm []byte) error
	KeepAlive() error
	CloseSend() error
	Recv() (streamUpdate, error)
	Close() error
}

type streamUpdate struct {
	Transcript string
	IsFinal    bool
	Closed     bool // server signalled end of stream
}

// streamSession turns a raw provider connection into Events. It batches
// fed PCM into fixed chunks, runs the no-speech timer and guarantees a
// single trailing EventEnd.
type streamSession struct {
	ws      rawStreamSession
	audioCh chan []byte
	events  chan Event

	noSpeech  time.Duration
	keepAlive time.Duration

	feedMu  sync.Mutex
	feedBuf []byte

	mu       sync.Mutex
	ended    bool
	stopping bool
	timer    *time.Timer

	sendDone chan struct{}
	recvDone chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newStreamSession(ws rawStreamSession, noSpeech, keepAlive time.Duration) *streamSession {
	s := &streamSession{
		ws:        ws,
		audioCh:   make(chan []byte, 128),
		events:    make(chan Event, 32),
		noSpeech:  noSpeech,
		keepAlive: keepAlive,
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
	if noSpeech > 0 {
		s.timer = time.AfterFunc(noSpeech, s.onNoSpeech)
	}
	go s.sendLoop()
	go s.recvLoop()
	return s
}

func (s *streamSession) Events() <-chan Event { return s.events }

func (s *streamSession) Feed(pcm []byte) {
	s.feedMu.Lock()
	s.feedBuf = append(s.feedBuf, pcm...)
	var chunks [][]byte
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		chunks = append(chunks, chunk)
	}
	s.feedMu.Unlock()

	for _, c := range chunks {
		select {
		case s.audioCh <- c:
		case <-s.stopCh:
			return
		default:
			log.Warn("recognizer: audio backlog, dropping chunk")
		}
	}
}

func (s *streamSession) sendLoop() {
	defer close(s.sendDone)
	var tick <-chan time.Time
	if s.keepAlive > 0 {
		t := time.NewTicker(s.keepAlive)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-s.stopCh:
			return
		case chunk := <-s.audioCh:
			if err := s.ws.Send(chunk); err != nil {
				go s.fail(&Error{Kind: KindNetwork, Err: err})
				return
			}
		case <-tick:
			if err := s.ws.KeepAlive(); err != nil {
				go s.fail(&Error{Kind: KindNetwork, Err: err})
				return
			}
		}
	}
}

func (s *streamSession) recvLoop() {
	defer close(s.recvDone)
	for {
		u, err := s.ws.Recv()
		if err != nil || u.Closed {
			if s.isStopping() {
				return
			}
			var reason *Error
			if err != nil {
				reason = &Error{Kind: KindNetwork, Err: err}
			}
			s.end(reason)
			s.ws.Close()
			return
		}
		text := strings.TrimSpace(u.Transcript)
		if text == "" {
			continue
		}
		s.resetNoSpeech()
		select {
		case s.events <- Event{Kind: EventResult, Text: text, Final: u.IsFinal}:
		case <-s.stopCh:
		}
	}
}

func (s *streamSession) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *streamSession) resetNoSpeech() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil && !s.ended {
		s.timer.Reset(s.noSpeech)
	}
}

func (s *streamSession) onNoSpeech() {
	s.shutdown(ErrNoSpeech)
}

// Stop aborts recognition without waiting for the connection to close.
// The session emits an aborted error then ends.
func (s *streamSession) Stop() {
	go s.shutdown(ErrAborted)
}

func (s *streamSession) fail(e *Error) {
	s.shutdown(e)
}

func (s *streamSession) shutdown(reason *Error) {
	s.mu.Lock()
	if s.ended || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.sendDone
	if err := s.ws.CloseSend(); err != nil {
		log.Debugf("recognizer: close stream: %v", err)
	}
	s.ws.Close()
	<-s.recvDone
	s.end(reason)
}

// end emits the optional error and the final EventEnd exactly once.
func (s *streamSession) end(reason *Error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	if reason != nil {
		s.events <- Event{Kind: EventError, Err: reason}
	}
	s.events <- Event{Kind: EventEnd}
	close(s.events)
}
