package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// FlacEncoder streams PCM into verbatim FLAC frames of BlockSize samples.
// The last frame may be shorter.
type FlacEncoder struct {
	mu      sync.Mutex
	out     bytes.Buffer
	enc     *flac.Encoder
	block   []int32
	carry   []byte // half a sample left over from the previous Write
	samples uint64
	elapsed time.Duration
	closed  bool
}

func NewFlac() (*FlacEncoder, error) {
	e := &FlacEncoder{block: make([]int32, 0, BlockSize)}
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	}
	enc, err := flac.NewEncoder(&e.out, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	return e, nil
}

func (e *FlacEncoder) Write(pcm []byte) (int, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}

	n := len(pcm)
	if len(e.carry) > 0 && len(pcm) > 0 {
		e.appendLocked(int16(binary.LittleEndian.Uint16([]byte{e.carry[0], pcm[0]})))
		e.carry = e.carry[:0]
		pcm = pcm[1:]
		if err := e.maybeFlushLocked(); err != nil {
			return 0, err
		}
	}
	for len(pcm) >= 2 {
		e.appendLocked(int16(binary.LittleEndian.Uint16(pcm)))
		pcm = pcm[2:]
		if err := e.maybeFlushLocked(); err != nil {
			return n - len(pcm), err
		}
	}
	e.carry = append(e.carry, pcm...)
	e.elapsed += time.Since(start)
	return n, nil
}

func (e *FlacEncoder) appendLocked(s int16) {
	e.block = append(e.block, int32(s))
	e.samples++
}

func (e *FlacEncoder) maybeFlushLocked() error {
	if len(e.block) < BlockSize {
		return nil
	}
	return e.flushLocked()
}

func (e *FlacEncoder) flushLocked() error {
	if len(e.block) == 0 {
		return nil
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(e.block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   e.block,
			NSamples:  len(e.block),
		}},
	}
	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.block = make([]int32, 0, BlockSize)
	return nil
}

// Close flushes the partial block and finishes the stream. A trailing odd
// byte is dropped.
func (e *FlacEncoder) Close() error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.flushLocked(); err != nil {
		return err
	}
	err := e.enc.Close()
	e.elapsed += time.Since(start)
	return err
}

func (e *FlacEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.Bytes()
}

func (e *FlacEncoder) Format() Format { return FLAC }

func (e *FlacEncoder) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PCMDuration(int(e.samples) * 2)
}

func (e *FlacEncoder) EncodeTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elapsed
}
