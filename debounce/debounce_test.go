package debounce

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls []int
	fired chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{}, 16)}
}

func (r *recorder) fn(v int) {
	r.mu.Lock()
	r.calls = append(r.calls, v)
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *recorder) got() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls...)
}

func waitFired(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced call")
	}
}

func TestTrailingUsesLatestValue(t *testing.T) {
	r := newRecorder()
	d := New(20*time.Millisecond, r.fn)
	for i := 1; i <= 5; i++ {
		d.Trigger(i)
		time.Sleep(2 * time.Millisecond)
	}
	if !d.Pending() {
		t.Error("expected pending call")
	}
	waitFired(t, r)
	time.Sleep(40 * time.Millisecond)
	if got := r.got(); len(got) != 1 || got[0] != 5 {
		t.Errorf("calls = %v, want [5]", got)
	}
	if d.Pending() {
		t.Error("still pending after fire")
	}
}

func TestCancel(t *testing.T) {
	r := newRecorder()
	d := New(10*time.Millisecond, r.fn)
	d.Trigger(1)
	d.Cancel()
	time.Sleep(30 * time.Millisecond)
	if got := r.got(); len(got) != 0 {
		t.Fatalf("calls = %v after Cancel", got)
	}
	d.Trigger(2)
	waitFired(t, r)
	if got := r.got(); len(got) != 1 || got[0] != 2 {
		t.Errorf("calls = %v, want [2]", got)
	}
}

func TestStopIsPermanent(t *testing.T) {
	r := newRecorder()
	d := New(5*time.Millisecond, r.fn)
	d.Trigger(1)
	d.Stop()
	d.Trigger(2)
	time.Sleep(30 * time.Millisecond)
	if got := r.got(); len(got) != 0 {
		t.Errorf("calls = %v after Stop", got)
	}
}
