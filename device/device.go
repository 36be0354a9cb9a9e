package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rehearse/audio"
	"rehearse/log"
	"rehearse/video"
)

// Ref identifies an input device. Label may be empty until the platform
// has granted access to the device at least once.
type Ref struct {
	ID    string
	Label string
}

func (r *Ref) String() string {
	if r == nil {
		return "default"
	}
	if r.Label != "" {
		return r.Label
	}
	return r.ID
}

type Selection struct {
	Microphone *Ref
	Camera     *Ref
}

// PickNext returns the device after currentID, wrapping around. An unknown
// or empty currentID yields the first device; an empty list yields nil.
func PickNext(devices []Ref, currentID string) *Ref {
	if len(devices) == 0 {
		return nil
	}
	idx := -1
	for i, d := range devices {
		if d.ID == currentID {
			idx = i
			break
		}
	}
	next := devices[(idx+1)%len(devices)]
	return &next
}

// FindByName returns the first device whose label equals name.
func FindByName(devices []Ref, name string) *Ref {
	for _, d := range devices {
		if d.Label == name {
			ref := d
			return &ref
		}
	}
	return nil
}

type Selector struct {
	audio  audio.Context
	camera video.Lister

	mu     sync.Mutex
	mics   []Ref
	cams   []Ref
	stale  bool
	loaded bool
}

func NewSelector(actx audio.Context, cameras video.Lister) *Selector {
	return &Selector{audio: actx, camera: cameras}
}

// Enumerate lists microphones and cameras. A failure listing one kind is
// returned alongside the devices of the other kind.
func (s *Selector) Enumerate(ctx context.Context) (mics, cams []Ref, err error) {
	var errs []error
	if s.audio != nil {
		devs, aerr := s.audio.Devices()
		if aerr != nil {
			errs = append(errs, fmt.Errorf("list microphones: %w", aerr))
		}
		for _, d := range devs {
			mics = append(mics, Ref{ID: d.ID, Label: d.Name})
		}
	}
	if s.camera != nil {
		devs, verr := s.camera.Cameras(ctx)
		if verr != nil {
			errs = append(errs, fmt.Errorf("list cameras: %w", verr))
		}
		for _, d := range devs {
			cams = append(cams, Ref{ID: d.ID, Label: d.Name})
		}
	}

	s.mu.Lock()
	s.mics, s.cams = mics, cams
	s.stale = false
	s.loaded = true
	s.mu.Unlock()

	return mics, cams, errors.Join(errs...)
}

// Invalidate marks the cached lists stale so the next cycle re-enumerates.
func (s *Selector) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

func (s *Selector) refresh(ctx context.Context) {
	s.mu.Lock()
	need := !s.loaded || s.stale || (len(s.mics) == 0 && len(s.cams) == 0)
	s.mu.Unlock()
	if !need {
		return
	}
	if _, _, err := s.Enumerate(ctx); err != nil {
		log.Warnf("device enumeration: %v", err)
	}
}

func (s *Selector) NextMicrophone(ctx context.Context, current *Ref) *Ref {
	s.refresh(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return PickNext(s.mics, idOf(current))
}

func (s *Selector) NextCamera(ctx context.Context, current *Ref) *Ref {
	s.refresh(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return PickNext(s.cams, idOf(current))
}

// Microphones returns the cached microphone list, enumerating if needed.
func (s *Selector) Microphones(ctx context.Context) []Ref {
	s.refresh(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Ref(nil), s.mics...)
}

func (s *Selector) Cameras(ctx context.Context) []Ref {
	s.refresh(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Ref(nil), s.cams...)
}

func idOf(r *Ref) string {
	if r == nil {
		return ""
	}
	return r.ID
}
