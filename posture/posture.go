package posture

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"rehearse/api"
	"rehearse/log"
)

const (
	DefaultInterval = 2500 * time.Millisecond
	requestTimeout  = 20 * time.Second
)

// SignatureVersion identifies the capabilitySignatures list below. Bump it
// when the list changes so logs show which rules tripped the breaker.
const SignatureVersion = "2"

// capabilitySignatures are lowercase fragments the analysis service puts in
// errors when its vision backend is missing rather than temporarily failing.
var capabilitySignatures = []string{
	"not installed",
	"not implemented",
	"notimplementederror",
	"no module named",
	"modulenotfounderror",
	"solver",
	"mediapipe",
	"install",
	"not available",
	"unsupported",
}

// IsCapabilityAbsent reports whether text describes a missing analysis
// capability. Such failures will not go away by retrying.
func IsCapabilityAbsent(text string) bool {
	lower := strings.ToLower(text)
	for _, sig := range capabilitySignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// Feedback holds either tips or an error message.
type Feedback struct {
	Tips  []string
	Error string
}

type Analyzer interface {
	AnalyzePosture(ctx context.Context, sessionID, imageBase64 string) (*api.PostureResult, error)
}

// Gate reports whether a frame should be analyzed now and returns it.
type Gate func() (frame []byte, ok bool)

type Monitor struct {
	analyzer Analyzer
	interval time.Duration
	gate     Gate

	mu       sync.Mutex
	session  string
	running  bool
	stop     chan struct{}
	gen      uint64
	seq      uint64
	applied  uint64
	latest   *Feedback
	disabled bool
	onUpdate func(*Feedback)
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(analyzer Analyzer, gate Gate, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{analyzer: analyzer, gate: gate, interval: interval}
}

func (m *Monitor) OnUpdate(fn func(*Feedback)) {
	m.mu.Lock()
	m.onUpdate = fn
	m.mu.Unlock()
}

func (m *Monitor) SetSession(id string) {
	m.mu.Lock()
	m.session = id
	m.mu.Unlock()
}

// Start begins periodic analysis. It does nothing while the breaker is
// open or the monitor is already running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.disabled {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.ctx, m.cancel = context.WithCancel(context.Background())
	go m.loop(m.stop, m.gen)
}

func (m *Monitor) loop(stop chan struct{}, gen uint64) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.tick(gen)
		}
	}
}

func (m *Monitor) tick(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.disabled || !m.running || m.session == "" {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	frame, ok := m.gate()
	if !ok || len(frame) == 0 {
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.disabled {
		m.mu.Unlock()
		return
	}
	m.seq++
	seq := m.seq
	session := m.session
	ctx := m.ctx
	m.mu.Unlock()

	go m.analyze(ctx, gen, seq, session, base64.StdEncoding.EncodeToString(frame))
}

func (m *Monitor) analyze(ctx context.Context, gen, seq uint64, session, image string) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := m.analyzer.AnalyzePosture(ctx, session, image)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if IsCapabilityAbsent(err.Error()) {
			m.trip(gen, err.Error())
			return
		}
		log.Debugf("posture: analysis failed: %v", err)
		return
	}
	if res.Error != "" && IsCapabilityAbsent(res.Error) {
		m.trip(gen, res.Error)
		return
	}
	fb := &Feedback{Tips: res.Tips, Error: res.Error}
	if fb.Error != "" {
		fb.Tips = nil
	}
	m.apply(gen, seq, fb)
}

func (m *Monitor) apply(gen, seq uint64, fb *Feedback) {
	m.mu.Lock()
	if gen != m.gen || m.disabled || seq < m.applied {
		m.mu.Unlock()
		return
	}
	m.applied = seq
	m.latest = fb
	fn := m.onUpdate
	m.mu.Unlock()
	if fn != nil {
		fn(fb)
	}
}

// trip opens the breaker for the rest of the session.
func (m *Monitor) trip(gen uint64, reason string) {
	m.mu.Lock()
	if gen != m.gen || m.disabled {
		m.mu.Unlock()
		return
	}
	m.disabled = true
	m.latest = nil
	m.stopLocked()
	fn := m.onUpdate
	m.mu.Unlock()

	log.Warnf("posture: analysis unavailable (signatures v%s), disabling for this session: %s", SignatureVersion, reason)
	if fn != nil {
		fn(nil)
	}
}

func (m *Monitor) stopLocked() {
	if m.running {
		close(m.stop)
		m.running = false
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
}

// Stop halts the ticker and drops in-flight results.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Reset stops the monitor, clears feedback and closes the breaker, ready
// for a new session.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.stopLocked()
	m.disabled = false
	m.latest = nil
	m.session = ""
	m.applied = 0
	m.seq = 0
	fn := m.onUpdate
	m.mu.Unlock()
	if fn != nil {
		fn(nil)
	}
}

func (m *Monitor) Disabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disabled
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) Latest() *Feedback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}
