package transcriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rehearse/audio"
)

// ErrorKind classifies recognition failures. NoSpeech and Aborted are part
// of normal operation and callers usually ignore them.
type ErrorKind string

const (
	KindNoSpeech     ErrorKind = "no-speech"
	KindAborted      ErrorKind = "aborted"
	KindNetwork      ErrorKind = "network"
	KindNotAllowed   ErrorKind = "not-allowed"
	KindAudioCapture ErrorKind = "audio-capture"
)

var (
	ErrNoSpeech = &Error{Kind: KindNoSpeech}
	ErrAborted  = &Error{Kind: KindAborted}
)

type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recognition %s: %v", e.Kind, e.Err)
	}
	return "recognition " + string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ErrNoSpeech) works for wrapped causes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Expected reports whether err is a no-speech or aborted recognition error.
func Expected(err error) bool {
	return errors.Is(err, ErrNoSpeech) || errors.Is(err, ErrAborted)
}

type EventKind int

const (
	EventResult EventKind = iota
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

type Event struct {
	Kind  EventKind
	Text  string
	Final bool
	Err   *Error
}

type Config struct {
	SampleRate      int
	Channels        int
	Language        string
	Model           string
	NoSpeechTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      audio.SampleRate,
		Channels:        audio.Channels,
		Language:        "en-US",
		NoSpeechTimeout: 8 * time.Second,
	}
}

// Recognizer starts continuous recognition sessions. Each session emits
// result and error events and always finishes with exactly one EventEnd,
// after which Events is closed.
type Recognizer interface {
	Name() string
	Start(ctx context.Context, cfg Config) (Session, error)
}

type Session interface {
	Feed(pcm []byte)
	Events() <-chan Event
	Stop()
}

func New(provider, apiKey string) (Recognizer, error) {
	switch provider {
	case "", "deepgram":
		if apiKey == "" {
			return nil, fmt.Errorf("set DEEPGRAM_API_KEY for the deepgram recognizer")
		}
		return NewDeepgram(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown recognizer provider %q", provider)
	}
}
