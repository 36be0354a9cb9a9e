package encoder

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"
)

const wavHeaderSize = 44

// WAVEncoder buffers PCM and prepends a RIFF header on Close.
type WAVEncoder struct {
	mu      sync.Mutex
	pcm     bytes.Buffer
	out     []byte
	elapsed time.Duration
	closed  bool
}

func NewWAV() *WAVEncoder {
	return &WAVEncoder{}
}

func (e *WAVEncoder) Write(pcm []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	return e.pcm.Write(pcm)
}

// Close drops a trailing odd byte and writes the header.
func (e *WAVEncoder) Close() error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	pcm := e.pcm.Bytes()
	e.out = WAVBytes(pcm[:len(pcm)&^1], SampleRate)
	e.elapsed += time.Since(start)
	return nil
}

func (e *WAVEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

func (e *WAVEncoder) Format() Format { return WAV }

func (e *WAVEncoder) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PCMDuration(e.pcm.Len() &^ 1)
}

func (e *WAVEncoder) EncodeTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elapsed
}

// WAVBytes wraps 16-bit mono PCM in a canonical 44-byte RIFF header.
func WAVBytes(pcm []byte, sampleRate int) []byte {
	out := make([]byte, wavHeaderSize+len(pcm))
	byteRate := sampleRate * Channels * BitsPerSample / 8
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:], Channels)
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], Channels*BitsPerSample/8)
	binary.LittleEndian.PutUint16(out[34:], BitsPerSample)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}
