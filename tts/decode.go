package tts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"rehearse/playback"
)

var (
	ErrEmpty         = errors.New("empty audio payload")
	ErrUnknownFormat = errors.New("unrecognized audio format")
)

type Format string

const (
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
	FormatMP3  Format = "mp3"
)

// Sniff identifies the container from its leading bytes.
func Sniff(data []byte) (Format, error) {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV, nil
	case len(data) >= 4 && string(data[:4]) == "fLaC":
		return FormatFLAC, nil
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return FormatMP3, nil
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}
	return "", ErrUnknownFormat
}

// Decode turns a WAV, FLAC or MP3 payload into PCM.
func Decode(data []byte) (playback.Clip, error) {
	if len(data) == 0 {
		return playback.Clip{}, ErrEmpty
	}
	format, err := Sniff(data)
	if err != nil {
		return playback.Clip{}, err
	}
	switch format {
	case FormatWAV:
		return decodeWAV(data)
	case FormatFLAC:
		return decodeFLAC(data)
	default:
		return decodeMP3(data)
	}
}

func decodeWAV(data []byte) (playback.Clip, error) {
	var (
		channels, bits int
		rate           int
		pcm            []byte
		haveFmt        bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4:]))
		body := data[pos+8:]
		if size > len(body) {
			size = len(body)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return playback.Clip{}, fmt.Errorf("wav: short fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(body); tag != 1 && tag != 0xFFFE {
				return playback.Clip{}, fmt.Errorf("wav: unsupported encoding %d", tag)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:]))
			rate = int(binary.LittleEndian.Uint32(body[4:]))
			bits = int(binary.LittleEndian.Uint16(body[14:]))
			haveFmt = true
		case "data":
			pcm = body[:size]
		}
		pos += 8 + size + size%2
	}
	if !haveFmt || pcm == nil {
		return playback.Clip{}, fmt.Errorf("wav: missing fmt or data chunk")
	}
	if bits != 16 {
		return playback.Clip{}, fmt.Errorf("wav: unsupported bit depth %d", bits)
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return playback.Clip{Samples: samples, SampleRate: rate, Channels: channels}, nil
}

func decodeFLAC(data []byte) (playback.Clip, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return playback.Clip{}, fmt.Errorf("flac: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	shift := int(stream.Info.BitsPerSample) - 16
	var samples []int16
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return playback.Clip{}, fmt.Errorf("flac frame: %w", err)
		}
		n := int(f.BlockSize)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				s := f.Subframes[ch].Samples[i]
				if shift > 0 {
					s >>= shift
				} else if shift < 0 {
					s <<= -shift
				}
				samples = append(samples, int16(s))
			}
		}
	}
	return playback.Clip{Samples: samples, SampleRate: int(stream.Info.SampleRate), Channels: channels}, nil
}

// decodeMP3 yields 16-bit stereo; go-mp3 always outputs two channels.
func decodeMP3(data []byte) (playback.Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return playback.Clip{}, fmt.Errorf("mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return playback.Clip{}, fmt.Errorf("mp3 decode: %w", err)
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return playback.Clip{Samples: samples, SampleRate: dec.SampleRate(), Channels: 2}, nil
}
