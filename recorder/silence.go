package recorder

import "time"

const (
	SilenceTick      = 100 * time.Millisecond
	SilenceWarnAfter = 8 * time.Second
	SilenceStopAfter = 30 * time.Second
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // hysteresis
)

type SilenceEvent int

const (
	SilenceNone SilenceEvent = iota
	SilenceWarn              // no voice in the warn window
	SilenceClear             // voice is back after a warning
	SilenceRepeat            // still silent, remind again
	SilenceStop              // silent for the whole stop window
)

// SilenceMonitor watches voice activity during a recording and reports when
// the microphone seems to pick up nothing. Only open-ended (toggle)
// recordings are reminded and auto-stopped; held recordings end on release.
type SilenceMonitor struct {
	warnTicks int
	size      int
	openEnded func() bool

	ticks    int
	window   []bool
	voiced   int
	warned   bool
	lastWarn int
}

func NewSilenceMonitor(openEnded func() bool) *SilenceMonitor {
	size := int(SilenceStopAfter / SilenceTick)
	return &SilenceMonitor{
		warnTicks: int(SilenceWarnAfter / SilenceTick),
		size:      size,
		openEnded: openEnded,
		window:    make([]bool, size),
	}
}

// recent is the voiced share of the last n ticks.
func (m *SilenceMonitor) recent(n int) float64 {
	n = min(n, m.ticks)
	if n == 0 {
		return 1
	}
	count := 0
	for i := range n {
		if m.window[(m.ticks-1-i+m.size)%m.size] {
			count++
		}
	}
	return float64(count) / float64(n)
}

// Observe records whether the last tick held speech.
func (m *SilenceMonitor) Observe(voiced bool) SilenceEvent {
	idx := m.ticks % m.size
	if m.ticks >= m.size && m.window[idx] {
		m.voiced--
	}
	m.window[idx] = voiced
	if voiced {
		m.voiced++
	}
	m.ticks++

	r := m.recent(m.warnTicks)
	if m.ticks >= m.warnTicks && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastWarn = m.ticks
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceClear
	}

	if m.openEnded == nil || !m.openEnded() {
		return SilenceNone
	}
	if m.ticks >= m.size && float64(m.voiced)/float64(m.size) < speechMinRatio {
		return SilenceStop
	}
	if m.warned && m.ticks-m.lastWarn >= m.warnTicks {
		m.lastWarn = m.ticks
		return SilenceRepeat
	}
	return SilenceNone
}
