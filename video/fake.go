package video

import (
	"context"
	"sync"
)

// FakeSource serves a fixed frame from every capture it opens.
type FakeSource struct {
	Devices []Camera
	Image   []byte

	// OpenErr, when set, is returned by Open.
	OpenErr error

	mu       sync.Mutex
	captures []*FakeCapture
}

func NewFakeSource(image []byte, cams ...Camera) *FakeSource {
	return &FakeSource{Devices: cams, Image: image}
}

func (f *FakeSource) Cameras(context.Context) ([]Camera, error) {
	return f.Devices, nil
}

func (f *FakeSource) Open(_ context.Context, cam *Camera, _ Config) (Capture, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	name := "fake camera"
	if cam != nil {
		name = cam.Name
	}
	c := &FakeCapture{name: name, image: f.Image}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

func (f *FakeSource) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

type FakeCapture struct {
	name  string
	image []byte

	mu     sync.Mutex
	closed bool
}

func (c *FakeCapture) Frame() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.image == nil {
		return nil, ErrNoFrame
	}
	return c.image, nil
}

func (c *FakeCapture) CameraName() string { return c.name }

func (c *FakeCapture) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *FakeCapture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
