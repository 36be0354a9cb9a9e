package media

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"rehearse/audio"
	"rehearse/device"
	"rehearse/video"
)

func tone(n int, amp int16) []byte {
	b := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := amp
		if i%2 == 1 {
			s = -amp
		}
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func newManager(actx *audio.FakeContext, vsrc *video.FakeSource) *Manager {
	return NewManager(actx, vsrc, video.DefaultConfig(), DefaultConstraints())
}

func TestStartReplacesPreviousStream(t *testing.T) {
	actx := audio.NewFakeContext(nil, false)
	vsrc := video.NewFakeSource([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	m := newManager(actx, vsrc)
	ctx := context.Background()

	first, err := m.Start(ctx, device.Selection{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := m.Start(ctx, device.Selection{Microphone: &device.Ref{ID: "m1", Label: "Mic 1"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first == second {
		t.Fatal("expected a new stream")
	}
	if !first.Audio().Ended() {
		t.Error("previous audio track still live")
	}
	if _, err := first.Video().Frame(); !errors.Is(err, video.ErrClosed) {
		t.Errorf("previous video frame err = %v", err)
	}
	if m.Stream() != second {
		t.Error("Stream() is not the latest stream")
	}
	caps := actx.Captures()
	if len(caps) != 2 || !caps[0].Closed() || caps[1].Closed() {
		t.Errorf("capture states wrong")
	}
	if second.Audio().DeviceName() != "Mic 1" {
		t.Errorf("DeviceName = %q", second.Audio().DeviceName())
	}
}

func TestStartPartialFailure(t *testing.T) {
	actx := audio.NewFakeContext(nil, false)
	vsrc := video.NewFakeSource(nil)
	vsrc.OpenErr = errors.New("no camera")
	m := newManager(actx, vsrc)

	s, err := m.Start(context.Background(), device.Selection{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Audio() == nil || s.Video() != nil {
		t.Errorf("audio=%v video=%v", s.Audio(), s.Video())
	}
}

func TestStartBothFail(t *testing.T) {
	actx := audio.NewFakeContext(nil, false)
	actx.OpenErr = errors.New("denied")
	vsrc := video.NewFakeSource(nil)
	vsrc.OpenErr = errors.New("no camera")
	m := newManager(actx, vsrc)

	_, err := m.Start(context.Background(), device.Selection{})
	if !errors.Is(err, ErrNoDevices) {
		t.Fatalf("err = %v, want ErrNoDevices", err)
	}
	if m.Stream() != nil {
		t.Error("stream adopted after failure")
	}
}

func TestStopIdempotent(t *testing.T) {
	m := newManager(audio.NewFakeContext(nil, false), video.NewFakeSource(nil))
	if _, err := m.Start(context.Background(), device.Selection{}); err != nil {
		t.Fatal(err)
	}
	m.Stop()
	m.Stop()
	if m.Stream() != nil {
		t.Error("stream still set")
	}
}

func TestSetSelectionWithoutStream(t *testing.T) {
	actx := audio.NewFakeContext(nil, false)
	m := newManager(actx, video.NewFakeSource(nil))
	sel := device.Selection{Camera: &device.Ref{ID: "/dev/video2"}}
	s, err := m.SetSelection(context.Background(), sel)
	if err != nil || s != nil {
		t.Fatalf("SetSelection = %v, %v", s, err)
	}
	if len(actx.Captures()) != 0 {
		t.Error("capture opened without a live stream")
	}
	if m.Selection().Camera.ID != "/dev/video2" {
		t.Error("selection not stored")
	}
}

func TestSubscribeAndLevel(t *testing.T) {
	actx := audio.NewFakeContext(tone(4096, 16000), false)
	acquired := 0
	m := newManager(actx, video.NewFakeSource(nil))
	m.OnAcquired = func() { acquired++ }

	var mu sync.Mutex
	var got int
	s, err := m.Start(context.Background(), device.Selection{})
	if err != nil {
		t.Fatal(err)
	}
	if lvl := s.Audio().Level(); lvl <= 0 {
		t.Errorf("Level = %v, want > 0", lvl)
	}
	cancel := s.Audio().Subscribe(func(pcm []byte) {
		mu.Lock()
		got += len(pcm)
		mu.Unlock()
	})

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := got
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for PCM")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if acquired != 1 {
		t.Errorf("OnAcquired called %d times", acquired)
	}
	m.Stop()
}

func TestComputeRMS(t *testing.T) {
	if got := computeRMS(nil); got != 0 {
		t.Errorf("empty = %v", got)
	}
	got := computeRMS(tone(100, 16384))
	if got < 0.49 || got > 0.51 {
		t.Errorf("rms = %v, want 0.5", got)
	}
}
