package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"rehearse/audio"
	"rehearse/device"
	"rehearse/encoder"
	"rehearse/media"
	"rehearse/speech"
	"rehearse/video"
)

type transcribeFunc func(ctx context.Context, data []byte, mime string) (string, error)

func (f transcribeFunc) Transcribe(ctx context.Context, data []byte, mime string) (string, error) {
	return f(ctx, data, mime)
}

func startStream(t *testing.T, realtime bool) *media.Stream {
	t.Helper()
	vsrc := video.NewFakeSource(nil)
	vsrc.OpenErr = errors.New("no camera")
	m := media.NewManager(audio.NewFakeContext(nil, realtime), vsrc, video.DefaultConfig(), media.DefaultConstraints())
	s, err := m.Start(context.Background(), device.Selection{})
	if err != nil {
		t.Fatalf("media start: %v", err)
	}
	t.Cleanup(m.Stop)
	return s
}

func record(t *testing.T, r *Recorder, s *media.Stream, d time.Duration) *Artifact {
	t.Helper()
	if err := r.Start(s); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(d)
	a, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	return a
}

func TestRecordAndSubmit(t *testing.T) {
	var gotMime string
	var answered string
	buf := speech.NewBuffer()
	buf.SetText("typed before recording")
	r := New(transcribeFunc(func(_ context.Context, data []byte, mime string) (string, error) {
		gotMime = mime
		if len(data) == 0 {
			t.Error("empty upload")
		}
		return "I led the migration", nil
	}), buf, func(_ context.Context, text string) error {
		answered = text
		return nil
	})

	s := startStream(t, false)
	if err := r.Start(s); err != nil {
		t.Fatal(err)
	}
	if buf.Text() != "" {
		t.Errorf("buffer not cleared on Start: %q", buf.Text())
	}
	if err := r.Start(s); !errors.Is(err, ErrRecording) {
		t.Errorf("second Start = %v, want ErrRecording", err)
	}
	time.Sleep(20 * time.Millisecond)
	a, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.ID == "" || a.MimeType != "audio/flac" || a.Duration < MinDuration {
		t.Errorf("artifact = id %q mime %q dur %v", a.ID, a.MimeType, a.Duration)
	}
	if r.Pending() != a {
		t.Error("artifact not pending")
	}

	text, err := r.Submit(context.Background(), a)
	if err != nil || text != "I led the migration" {
		t.Fatalf("Submit = %q, %v", text, err)
	}
	if gotMime != "audio/flac" || answered != text || buf.Text() != text {
		t.Errorf("mime=%q answered=%q buffer=%q", gotMime, answered, buf.Text())
	}

	if _, err := r.Submit(context.Background(), a); !errors.Is(err, ErrConsumed) {
		t.Errorf("second Submit = %v, want ErrConsumed", err)
	}
}

func TestTooShort(t *testing.T) {
	r := New(nil, nil, nil)
	s := startStream(t, true)
	if err := r.Start(s); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Stop(); !errors.Is(err, ErrTooShort) {
		t.Errorf("Stop = %v, want ErrTooShort", err)
	}
	if r.Pending() != nil {
		t.Error("short recording left an artifact")
	}
}

func TestNoAudioTrack(t *testing.T) {
	r := New(nil, nil, nil)
	if err := r.Start(nil); !errors.Is(err, ErrNoAudioTrack) {
		t.Errorf("Start(nil) = %v", err)
	}
	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop = %v, want ErrNotRecording", err)
	}
}

func TestEmptyTranscript(t *testing.T) {
	called := false
	r := New(transcribeFunc(func(context.Context, []byte, string) (string, error) {
		return "", nil
	}), nil, func(context.Context, string) error {
		called = true
		return nil
	})
	a := record(t, r, startStream(t, false), 20*time.Millisecond)
	if _, err := r.Submit(context.Background(), a); !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("Submit = %v, want ErrEmptyTranscript", err)
	}
	if called {
		t.Error("sink called with empty transcript")
	}
	if _, err := r.Submit(context.Background(), a); !errors.Is(err, ErrConsumed) {
		t.Errorf("resubmit = %v, want ErrConsumed", err)
	}
}

func TestUploadFailureDropsArtifact(t *testing.T) {
	r := New(transcribeFunc(func(context.Context, []byte, string) (string, error) {
		return "", errors.New("502")
	}), nil, nil)
	a := record(t, r, startStream(t, false), 20*time.Millisecond)
	if _, err := r.Submit(context.Background(), a); err == nil {
		t.Fatal("expected error")
	}
	if r.Pending() != nil {
		t.Error("artifact kept after failure")
	}
}

func TestStartDiscardsPending(t *testing.T) {
	r := New(nil, nil, nil)
	s := startStream(t, false)
	a := record(t, r, s, 20*time.Millisecond)
	if err := r.Start(s); err != nil {
		t.Fatal(err)
	}
	if r.Pending() != nil {
		t.Error("pending artifact survived new recording")
	}
	r.Discard()
	if r.Recording() {
		t.Error("still recording after Discard")
	}
	if _, err := r.Submit(context.Background(), a); !errors.Is(err, ErrConsumed) {
		t.Errorf("Submit discarded = %v", err)
	}
}

func TestWAVFallback(t *testing.T) {
	r := New(nil, nil, nil)
	r.newEncoder = func() encoder.Encoder { return encoder.New(encoder.WAV) }
	a := record(t, r, startStream(t, false), 20*time.Millisecond)
	if a.MimeType != "audio/wav" || string(a.Data[:4]) != "RIFF" {
		t.Errorf("artifact mime %q", a.MimeType)
	}
}
