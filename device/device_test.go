package device

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"rehearse/audio"
	"rehearse/video"
)

func refs(n int) []Ref {
	out := make([]Ref, n)
	for i := range out {
		out[i] = Ref{ID: fmt.Sprintf("dev%d", i), Label: fmt.Sprintf("Device %d", i)}
	}
	return out
}

func TestPickNext(t *testing.T) {
	devs := refs(3)
	tests := []struct {
		name    string
		devices []Ref
		current string
		want    string
	}{
		{"empty list", nil, "dev0", ""},
		{"no current", devs, "", "dev0"},
		{"unknown current", devs, "gone", "dev0"},
		{"advance", devs, "dev0", "dev1"},
		{"wrap", devs, "dev2", "dev0"},
		{"single", devs[:1], "dev0", "dev0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PickNext(tt.devices, tt.current)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("got %v, want nil", got)
				}
				return
			}
			if got == nil || got.ID != tt.want {
				t.Fatalf("got %v, want %s", got, tt.want)
			}
		})
	}
}

// Cycling n times from any starting device visits each device once and
// returns to the start.
func TestPickNextCyclesAll(t *testing.T) {
	for n := 1; n <= 5; n++ {
		devs := refs(n)
		for start := range devs {
			seen := map[string]bool{}
			cur := devs[start].ID
			for range n {
				next := PickNext(devs, cur)
				seen[next.ID] = true
				cur = next.ID
			}
			if cur != devs[start].ID {
				t.Errorf("n=%d start=%d: ended at %s", n, start, cur)
			}
			if len(seen) != n {
				t.Errorf("n=%d start=%d: visited %d devices", n, start, len(seen))
			}
		}
	}
}

type countingLister struct {
	cams  []video.Camera
	err   error
	calls int
}

func (c *countingLister) Cameras(context.Context) ([]video.Camera, error) {
	c.calls++
	return c.cams, c.err
}

func TestSelectorLazyRefresh(t *testing.T) {
	actx := audio.NewFakeContext(nil, false,
		audio.DeviceInfo{ID: "m0", Name: "Mic 0"},
		audio.DeviceInfo{ID: "m1", Name: "Mic 1"},
	)
	lister := &countingLister{cams: []video.Camera{{ID: "/dev/video0", Name: "Cam"}}}
	s := NewSelector(actx, lister)
	ctx := context.Background()

	first := s.NextMicrophone(ctx, nil)
	if first == nil || first.ID != "m0" {
		t.Fatalf("first = %v", first)
	}
	second := s.NextMicrophone(ctx, first)
	if second == nil || second.ID != "m1" {
		t.Fatalf("second = %v", second)
	}
	if lister.calls != 1 {
		t.Errorf("enumerated %d times, want 1", lister.calls)
	}

	s.Invalidate()
	if cam := s.NextCamera(ctx, nil); cam == nil || cam.Label != "Cam" {
		t.Fatalf("camera = %v", cam)
	}
	if lister.calls != 2 {
		t.Errorf("enumerated %d times after Invalidate, want 2", lister.calls)
	}
}

func TestEnumeratePartialFailure(t *testing.T) {
	actx := audio.NewFakeContext(nil, false, audio.DeviceInfo{ID: "m0", Name: "Mic 0"})
	lister := &countingLister{err: errors.New("no v4l2")}
	s := NewSelector(actx, lister)

	mics, cams, err := s.Enumerate(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(mics) != 1 || len(cams) != 0 {
		t.Errorf("mics=%v cams=%v", mics, cams)
	}
}

func TestFindByName(t *testing.T) {
	devs := refs(3)
	if got := FindByName(devs, "Device 1"); got == nil || got.ID != "dev1" {
		t.Errorf("got %v", got)
	}
	if got := FindByName(devs, "nope"); got != nil {
		t.Errorf("got %v", got)
	}
}
