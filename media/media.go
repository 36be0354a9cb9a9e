package media

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"rehearse/audio"
	"rehearse/device"
	"rehearse/log"
	"rehearse/video"
)

var ErrNoDevices = errors.New("no microphone or camera could be opened")

type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

func DefaultConstraints() Constraints {
	return Constraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
}

// Manager owns the single live capture stream. Only the manager starts or
// stops tracks.
type Manager struct {
	audio       audio.Context
	video       video.Source
	videoConfig video.Config
	constraints Constraints

	// OnAcquired runs after a stream with at least one track is adopted.
	OnAcquired func()

	mu     sync.Mutex
	stream *Stream
	sel    device.Selection
}

func NewManager(actx audio.Context, vsrc video.Source, vcfg video.Config, c Constraints) *Manager {
	return &Manager{audio: actx, video: vsrc, videoConfig: vcfg, constraints: c}
}

// Start acquires audio and video for sel, replacing any live stream. It
// fails only when neither kind could be opened.
func (m *Manager) Start(ctx context.Context, sel device.Selection) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(ctx, sel)
}

func (m *Manager) startLocked(ctx context.Context, sel device.Selection) (*Stream, error) {
	if m.stream != nil {
		m.stream.stop()
		m.stream = nil
	}
	m.sel = sel

	var errs []error
	s := &Stream{}

	if at, err := m.openAudio(sel.Microphone); err != nil {
		errs = append(errs, fmt.Errorf("microphone: %w", err))
	} else {
		s.audio = at
	}
	if vt, err := m.openVideo(ctx, sel.Camera); err != nil {
		errs = append(errs, fmt.Errorf("camera: %w", err))
	} else {
		s.video = vt
	}

	if s.audio == nil && s.video == nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDevices, errors.Join(errs...))
	}
	for _, err := range errs {
		log.Warnf("media: %v", err)
	}

	m.stream = s
	log.Infof("media: stream started mic=%s camera=%s", s.audioName(), s.videoName())
	if m.OnAcquired != nil {
		m.OnAcquired()
	}
	return s, nil
}

func (m *Manager) openAudio(ref *device.Ref) (*AudioTrack, error) {
	if m.audio == nil {
		return nil, errors.New("no audio backend")
	}
	var info *audio.DeviceInfo
	if ref != nil {
		info = &audio.DeviceInfo{ID: ref.ID, Name: ref.Label}
	}
	cfg := audio.DefaultCaptureConfig()
	cfg.EchoCancellation = m.constraints.EchoCancellation
	cfg.NoiseSuppression = m.constraints.NoiseSuppression
	cfg.AutoGainControl = m.constraints.AutoGainControl

	capture, err := m.audio.NewCapture(info, cfg)
	if err != nil {
		return nil, err
	}
	t := &AudioTrack{capture: capture, subs: map[int]func([]byte){}}
	capture.SetCallback(t.onData)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return nil, err
	}
	return t, nil
}

func (m *Manager) openVideo(ctx context.Context, ref *device.Ref) (*VideoTrack, error) {
	if m.video == nil {
		return nil, errors.New("no camera backend")
	}
	var cam *video.Camera
	if ref != nil {
		cam = &video.Camera{ID: ref.ID, Name: ref.Label}
	}
	capture, err := m.video.Open(ctx, cam, m.videoConfig)
	if err != nil {
		return nil, err
	}
	return &VideoTrack{capture: capture}, nil
}

// Stop releases every track. Safe to call repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		m.stream.stop()
		m.stream = nil
		log.Info("media: stream stopped")
	}
}

func (m *Manager) Stream() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

func (m *Manager) Selection() device.Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sel
}

// SetSelection stores sel and re-acquires when a stream is live.
func (m *Manager) SetSelection(ctx context.Context, sel device.Selection) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		m.sel = sel
		return nil, nil
	}
	return m.startLocked(ctx, sel)
}

type Stream struct {
	audio *AudioTrack
	video *VideoTrack
}

// Audio returns the microphone track, or nil.
func (s *Stream) Audio() *AudioTrack {
	if s == nil {
		return nil
	}
	return s.audio
}

// Video returns the camera track, or nil.
func (s *Stream) Video() *VideoTrack {
	if s == nil {
		return nil
	}
	return s.video
}

func (s *Stream) stop() {
	if s.audio != nil {
		s.audio.stop()
	}
	if s.video != nil {
		s.video.stop()
	}
}

func (s *Stream) audioName() string {
	if s.audio == nil {
		return "none"
	}
	return s.audio.capture.DeviceName()
}

func (s *Stream) videoName() string {
	if s.video == nil {
		return "none"
	}
	return s.video.capture.CameraName()
}

type AudioTrack struct {
	capture audio.CaptureDevice

	mu     sync.Mutex
	subs   map[int]func([]byte)
	nextID int
	level  float64
	ended  bool
}

const levelSmoothing = 0.3

func (t *AudioTrack) onData(data []byte, _ uint32) {
	rms := computeRMS(data)

	t.mu.Lock()
	t.level = t.level*(1-levelSmoothing) + rms*levelSmoothing
	subs := make([]func([]byte), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(data)
	}
}

// Subscribe registers fn to receive 16-bit little-endian mono PCM until
// the returned cancel func is called or the track ends.
func (t *AudioTrack) Subscribe(fn func(pcm []byte)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Level is the smoothed RMS of recent input in [0, 1].
func (t *AudioTrack) Level() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

func (t *AudioTrack) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

func (t *AudioTrack) DeviceName() string {
	return t.capture.DeviceName()
}

func (t *AudioTrack) stop() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	t.subs = map[int]func([]byte){}
	t.mu.Unlock()
	t.capture.ClearCallback()
	t.capture.Stop()
	t.capture.Close()
}

type VideoTrack struct {
	capture video.Capture

	mu    sync.Mutex
	ended bool
}

// Frame returns the latest JPEG frame.
func (t *VideoTrack) Frame() ([]byte, error) {
	t.mu.Lock()
	ended := t.ended
	t.mu.Unlock()
	if ended {
		return nil, video.ErrClosed
	}
	return t.capture.Frame()
}

func (t *VideoTrack) CameraName() string {
	return t.capture.CameraName()
}

func (t *VideoTrack) stop() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	t.mu.Unlock()
	t.capture.Close()
}

func computeRMS(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
