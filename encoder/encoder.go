package encoder

import (
	"errors"
	"io"
	"strings"
	"time"

	"rehearse/log"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096

	bytesPerSecond = SampleRate * Channels * BitsPerSample / 8
)

var ErrClosed = errors.New("encoder closed")

// Format is the MIME type of an encoded recording.
type Format string

const (
	FLAC Format = "audio/flac"
	WAV  Format = "audio/wav"
)

// ParseFormat maps a MIME type, with or without parameters, to a Format
// this package can produce.
func ParseFormat(mime string) (Format, bool) {
	mime, _, _ = strings.Cut(mime, ";")
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "audio/flac", "audio/x-flac":
		return FLAC, true
	case "audio/wav", "audio/x-wav", "audio/wave":
		return WAV, true
	}
	return "", false
}

// Extension is the upload file suffix for mime, or "" when unknown.
func Extension(mime string) string {
	if f, ok := ParseFormat(mime); ok {
		return "." + strings.TrimPrefix(string(f), "audio/")
	}
	switch mime {
	case "audio/mpeg":
		return ".mp3"
	case "audio/webm":
		return ".webm"
	}
	return ""
}

// Encoder turns 16 kHz mono little-endian PCM into an upload artifact.
// Writes may split samples at any byte boundary.
type Encoder interface {
	io.Writer
	Close() error
	Bytes() []byte
	Format() Format
	Duration() time.Duration
	EncodeTime() time.Duration
}

// New returns an encoder for the first format in prefs that can be set up,
// falling back to WAV, which never fails. With no prefs FLAC is tried first.
func New(prefs ...Format) Encoder {
	if len(prefs) == 0 {
		prefs = []Format{FLAC}
	}
	for _, f := range prefs {
		switch f {
		case FLAC:
			enc, err := NewFlac()
			if err == nil {
				return enc
			}
			log.Warnf("flac encoder unavailable, trying next format: %v", err)
		case WAV:
			return NewWAV()
		}
	}
	return NewWAV()
}

// EncodePCM writes pcm through enc and closes it.
func EncodePCM(enc Encoder, pcm []byte) error {
	if _, err := enc.Write(pcm); err != nil {
		return err
	}
	return enc.Close()
}

// PCMDuration is the playing time of n bytes of PCM.
func PCMDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / bytesPerSecond
}
