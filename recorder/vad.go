package recorder

import (
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"rehearse/audio"
)

const (
	vadMode       = 3
	vadFrameMs    = 20
	vadFrameBytes = audio.SampleRate * vadFrameMs / 1000 * 2 // 640 bytes
	vadDebounce   = 3                                        // consecutive speech frames to confirm voice
	tickSpeechMin = 0.10                                     // voiced share of a tick's frames
)

// VoiceDetector classifies microphone PCM into speech and non-speech
// frames. Partial frames are buffered across calls.
type VoiceDetector struct {
	vad *webrtcvad.VAD

	mu            sync.Mutex
	buf           []byte
	speechRun     int
	voiceDetected bool
	total         int
	speech        int
	tickTotal     int
	tickSpeech    int
}

func NewVoiceDetector() (*VoiceDetector, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, err
	}
	return &VoiceDetector{vad: v}, nil
}

// Process consumes 16 kHz mono 16-bit PCM.
func (d *VoiceDetector) Process(pcm []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = append(d.buf, pcm...)
	for len(d.buf) >= vadFrameBytes {
		frame := d.buf[:vadFrameBytes]
		d.buf = d.buf[vadFrameBytes:]

		active, err := d.vad.Process(audio.SampleRate, frame)
		if err != nil {
			continue
		}
		d.total++
		if !active {
			d.speechRun = 0
			continue
		}
		d.speech++
		d.speechRun++
		if d.speechRun >= vadDebounce {
			d.voiceDetected = true
		}
	}
}

// VoiceDetected reports whether a confirmed run of speech was seen.
func (d *VoiceDetector) VoiceDetected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voiceDetected
}

// Tick reports whether enough of the frames since the previous Tick were
// speech. A tick with no frames counts as silent.
func (d *VoiceDetector) Tick() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.total - d.tickTotal
	s := d.speech - d.tickSpeech
	d.tickTotal, d.tickSpeech = d.total, d.speech
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= tickSpeechMin
}
