package beep

import (
	"context"
	"math"
	"sync"

	"rehearse/playback"
)

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

var (
	mu       sync.Mutex
	player   playback.Player
	disabled bool

	startClip playback.Clip
	endClip   playback.Clip
	errorClip playback.Clip
	soundOnce sync.Once
)

func Disable() {
	mu.Lock()
	disabled = true
	mu.Unlock()
}

// Init routes cues through p. Without a player every cue is silent.
func Init(p playback.Player) {
	soundOnce.Do(initSound)
	mu.Lock()
	player = p
	mu.Unlock()
}

func initSound() {
	startClip = mono(generateTick(sampleRate, startFreq, 0.05, startVolume, startDecay))
	endClip = mono(generateTick(sampleRate, endFreq, 0.08, endVolume, endDecay))
	errorClip = mono(generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay))
}

func mono(samples []int16) playback.Clip {
	return playback.Clip{Samples: samples, SampleRate: sampleRate, Channels: 1}
}

func generateTick(sampleRate int, freq float64, duration float64, volume float64, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(sampleRate int, freq float64, beepDur float64, gapDur float64, volume float64, decay float64) []int16 {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

func play(clip playback.Clip) {
	mu.Lock()
	p, off := player, disabled
	mu.Unlock()
	if p == nil || off {
		return
	}
	go func() {
		pb, err := p.Play(context.Background(), clip)
		if err != nil {
			return
		}
		<-pb.Done()
	}()
}

func PlayStart() { play(startClip) }

func PlayEnd() { play(endClip) }

func PlayError() { play(errorClip) }
