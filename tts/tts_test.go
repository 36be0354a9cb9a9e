package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"rehearse/encoder"
	"rehearse/playback"
)

func pcm(n int) []byte {
	b := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(int16(i%200-100)))
	}
	return b
}

func wavPayload(n int) []byte {
	return encoder.WAVBytes(pcm(n), encoder.SampleRate)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"wav", wavPayload(10), FormatWAV},
		{"flac", []byte("fLaC\x00\x00"), FormatFLAC},
		{"mp3 id3", []byte("ID3\x04\x00"), FormatMP3},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, FormatMP3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sniff(tt.data)
			if err != nil || got != tt.want {
				t.Errorf("Sniff = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
	if _, err := Sniff([]byte("<html>")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("html: err = %v", err)
	}
}

func TestDecodeWAV(t *testing.T) {
	clip, err := Decode(wavPayload(1600))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.SampleRate != encoder.SampleRate || clip.Channels != 1 || len(clip.Samples) != 1600 {
		t.Errorf("clip = rate %d ch %d n %d", clip.SampleRate, clip.Channels, len(clip.Samples))
	}
	if clip.Samples[0] != -100 || clip.Samples[150] != 50 {
		t.Errorf("samples = %d %d", clip.Samples[0], clip.Samples[150])
	}
}

func TestDecodeFLAC(t *testing.T) {
	enc := encoder.New(encoder.FLAC)
	if err := encoder.EncodePCM(enc, pcm(5000)); err != nil {
		t.Fatal(err)
	}
	clip, err := Decode(enc.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.Channels != 1 || clip.SampleRate != encoder.SampleRate || len(clip.Samples) != 5000 {
		t.Fatalf("clip = rate %d ch %d n %d", clip.SampleRate, clip.Channels, len(clip.Samples))
	}
	for i, s := range clip.Samples {
		if want := int16(i%200 - 100); s != want {
			t.Fatalf("sample %d = %d, want %d", i, s, want)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("nil: %v", err)
	}
	bad := wavPayload(10)
	binary.LittleEndian.PutUint16(bad[34:], 8)
	if _, err := Decode(bad); err == nil {
		t.Error("8-bit wav decoded")
	}
}

type edges struct {
	mu  sync.Mutex
	got []bool
	ch  chan bool
}

func newEdges(c *Controller) *edges {
	e := &edges{ch: make(chan bool, 16)}
	c.OnSpeaking(func(v bool) {
		e.mu.Lock()
		e.got = append(e.got, v)
		e.mu.Unlock()
		e.ch <- v
	})
	return e
}

func (e *edges) next(t *testing.T) bool {
	t.Helper()
	select {
	case v := <-e.ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for speaking edge")
	}
	return false
}

func TestPlaySpeakingEdges(t *testing.T) {
	p := playback.NewFake()
	c := New(p)
	e := newEdges(c)

	if err := c.Play(context.Background(), wavPayload(1600)); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !c.Speaking() || !e.next(t) {
		t.Fatal("not speaking after Play")
	}
	pb := <-p.Started()
	pb.Finish()
	if e.next(t) {
		t.Fatal("expected speaking=false edge")
	}
	if c.Speaking() {
		t.Error("still speaking after finish")
	}
}

func TestPlayReplacesCurrent(t *testing.T) {
	p := playback.NewFake()
	c := New(p)
	e := newEdges(c)

	c.Play(context.Background(), wavPayload(1600))
	first := <-p.Started()
	c.Play(context.Background(), wavPayload(1600))
	second := <-p.Started()

	if !first.Stopped() {
		t.Error("first playback not stopped")
	}
	if !c.Speaking() {
		t.Error("not speaking during second clip")
	}
	second.Finish()
	e.next(t)
	if e.next(t) {
		t.Fatal("expected false edge")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.got) != 2 {
		t.Errorf("edges = %v, want [true false]", e.got)
	}
}

func TestPlayDecodeFailureNotSpeaking(t *testing.T) {
	p := playback.NewFake()
	c := New(p)
	e := newEdges(c)

	c.Play(context.Background(), wavPayload(1600))
	e.next(t)
	if err := c.Play(context.Background(), []byte("garbage")); err == nil {
		t.Fatal("expected decode error")
	}
	if e.next(t) || c.Speaking() {
		t.Error("speaking after failed Play")
	}
}

func TestPlayDeviceFailure(t *testing.T) {
	p := playback.NewFake()
	p.PlayErr = errors.New("no sink")
	c := New(p)
	if err := c.Play(context.Background(), wavPayload(100)); err == nil {
		t.Fatal("expected error")
	}
	if c.Speaking() {
		t.Error("speaking after device failure")
	}
}

func TestStop(t *testing.T) {
	p := playback.NewFake()
	c := New(p)
	e := newEdges(c)
	c.Play(context.Background(), wavPayload(1600))
	pb := <-p.Started()
	e.next(t)
	c.Stop()
	if e.next(t) {
		t.Fatal("expected false edge")
	}
	if !pb.Stopped() {
		t.Error("playback not stopped")
	}
	c.Stop()
	select {
	case v := <-e.ch:
		t.Errorf("extra edge %v", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscriberMayQueryDuringPlay(t *testing.T) {
	p := playback.NewFake()
	c := New(p)
	inside := make(chan struct{}, 1)
	c.OnSpeaking(func(v bool) {
		if v {
			return
		}
		select {
		case inside <- struct{}{}:
		default:
		}
		time.Sleep(50 * time.Millisecond)
		c.Speaking()
	})

	if err := c.Play(context.Background(), wavPayload(1600)); err != nil {
		t.Fatalf("Play: %v", err)
	}
	(<-p.Started()).Finish()
	<-inside

	done := make(chan error, 1)
	go func() { done <- c.Play(context.Background(), wavPayload(1600)) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second Play: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second Play blocked behind the speaking subscriber")
	}

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked")
	}
}

func TestEdgesFromSubscriberAreDelivered(t *testing.T) {
	p := playback.NewFake()
	c := New(p)
	var mu sync.Mutex
	var got []bool
	c.OnSpeaking(func(v bool) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
		if v {
			// re-entrant stop from inside delivery
			c.Stop()
		}
	})

	if err := c.Play(context.Background(), wavPayload(1600)); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if c.Speaking() {
		t.Error("still speaking after re-entrant Stop")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("edges = %v, want [true false]", got)
	}
}
