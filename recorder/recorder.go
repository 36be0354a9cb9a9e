package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rehearse/encoder"
	"rehearse/log"
	"rehearse/media"
	"rehearse/speech"
)

const MinDuration = 100 * time.Millisecond

var (
	ErrNoAudioTrack    = errors.New("no microphone track available")
	ErrRecording       = errors.New("already recording")
	ErrNotRecording    = errors.New("not recording")
	ErrTooShort        = errors.New("recording too short")
	ErrConsumed        = errors.New("recording already submitted or discarded")
	ErrEmptyTranscript = errors.New("no speech detected in recording")
)

// Artifact is one finished push-to-talk recording.
type Artifact struct {
	ID       string
	Data     []byte
	MimeType string
	Duration time.Duration
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// AnswerSink receives transcribed answers.
type AnswerSink func(ctx context.Context, text string) error

type Recorder struct {
	tr         Transcriber
	buf        *speech.Buffer
	sink       AnswerSink
	newEncoder func() encoder.Encoder

	mu          sync.Mutex
	recording   bool
	unsubscribe func()
	pcm         []byte
	pending     *Artifact
}

func newArtifactEncoder() encoder.Encoder {
	return encoder.New(encoder.FLAC, encoder.WAV)
}

func New(tr Transcriber, buf *speech.Buffer, sink AnswerSink) *Recorder {
	return &Recorder{tr: tr, buf: buf, sink: sink, newEncoder: newArtifactEncoder}
}

// Start discards any unsubmitted recording, clears the transcript and
// begins collecting microphone PCM from stream.
func (r *Recorder) Start(stream *media.Stream) error {
	track := stream.Audio()
	if track == nil || track.Ended() {
		return ErrNoAudioTrack
	}

	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrRecording
	}
	r.pending = nil
	r.pcm = r.pcm[:0]
	r.recording = true
	r.mu.Unlock()

	if r.buf != nil {
		r.buf.Clear()
	}

	unsubscribe := track.Subscribe(r.onPCM)
	r.mu.Lock()
	if !r.recording {
		// Discard raced with Start
		r.mu.Unlock()
		unsubscribe()
		return nil
	}
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
	log.Info("recording started")
	return nil
}

func (r *Recorder) onPCM(pcm []byte) {
	r.mu.Lock()
	if r.recording {
		r.pcm = append(r.pcm, pcm...)
	}
	r.mu.Unlock()
}

// Stop finishes the recording and encodes it into the pending artifact.
func (r *Recorder) Stop() (*Artifact, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.recording = false
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	pcm := r.pcm
	r.pcm = nil
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	if d := encoder.PCMDuration(len(pcm)); d < MinDuration {
		log.Infof("recording discarded: %v is too short", d)
		return nil, ErrTooShort
	}

	enc := r.newEncoder()
	if err := encoder.EncodePCM(enc, pcm); err != nil {
		return nil, fmt.Errorf("encode recording: %w", err)
	}
	a := &Artifact{
		ID:       uuid.NewString(),
		Data:     enc.Bytes(),
		MimeType: string(enc.Format()),
		Duration: enc.Duration(),
	}
	log.Infof("recording stopped: %v, %d bytes %s (encode %v)", a.Duration, len(a.Data), a.MimeType, enc.EncodeTime())

	r.mu.Lock()
	r.pending = a
	r.mu.Unlock()
	return a, nil
}

// Submit uploads a for transcription and hands the text to the answer
// sink. An artifact can be submitted once; on failure it is dropped.
func (r *Recorder) Submit(ctx context.Context, a *Artifact) (string, error) {
	r.mu.Lock()
	if a == nil || r.pending != a {
		r.mu.Unlock()
		return "", ErrConsumed
	}
	r.pending = nil
	r.mu.Unlock()

	text, err := r.tr.Transcribe(ctx, a.Data, a.MimeType)
	if err != nil {
		return "", fmt.Errorf("transcribe recording: %w", err)
	}
	if text == "" {
		return "", ErrEmptyTranscript
	}

	if r.buf != nil {
		r.buf.SetText(text)
	}
	if r.sink != nil {
		if err := r.sink(ctx, text); err != nil {
			return text, err
		}
	}
	return text, nil
}

// Discard drops the pending artifact and aborts an active recording.
func (r *Recorder) Discard() {
	r.mu.Lock()
	r.pending = nil
	r.recording = false
	r.pcm = nil
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) Pending() *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}
