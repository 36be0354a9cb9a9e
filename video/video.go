package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

var (
	ErrNoFrame  = errors.New("no frame captured yet")
	ErrNoCamera = errors.New("no camera found")
	ErrClosed   = errors.New("capture closed")
)

type Camera struct {
	ID   string // device path or platform index
	Name string
}

type Config struct {
	FFmpeg string // path to ffmpeg binary
	Width  int
	Height int
	FPS    int
}

func DefaultConfig() Config {
	return Config{FFmpeg: "ffmpeg", Width: 640, Height: 480, FPS: 2}
}

type Lister interface {
	Cameras(ctx context.Context) ([]Camera, error)
}

type Source interface {
	Lister
	Open(ctx context.Context, cam *Camera, cfg Config) (Capture, error)
}

// Capture holds the most recent JPEG frame from a running camera.
type Capture interface {
	Frame() ([]byte, error)
	CameraName() string
	Close()
}

type ffmpegSource struct{}

// NewSource returns a camera source backed by an ffmpeg subprocess.
func NewSource() Source {
	return ffmpegSource{}
}

func (ffmpegSource) Cameras(ctx context.Context) ([]Camera, error) {
	return listCameras(ctx)
}

func (ffmpegSource) Open(ctx context.Context, cam *Camera, cfg Config) (Capture, error) {
	if cam == nil {
		cams, err := listCameras(ctx)
		if err != nil {
			return nil, err
		}
		if len(cams) == 0 {
			return nil, ErrNoCamera
		}
		cam = &cams[0]
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if _, err := exec.LookPath(cfg.FFmpeg); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	args := append([]string{"-hide_banner", "-loglevel", "error"}, inputArgs(cam.ID)...)
	args = append(args,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", max(cfg.FPS, 1), cfg.Width, cfg.Height),
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "5",
		"-",
	)

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, cfg.FFmpeg, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	c := &ffmpegCapture{
		name:   cam.Name,
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readFrames(stdout)
	return c, nil
}

type ffmpegCapture struct {
	name   string
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	latest  []byte
	readErr error
	closed  bool
}

func (c *ffmpegCapture) readFrames(r io.Reader) {
	defer close(c.done)
	err := SplitJPEG(bufio.NewReaderSize(r, 64*1024), func(frame []byte) {
		c.mu.Lock()
		c.latest = frame
		c.mu.Unlock()
	})
	c.mu.Lock()
	if err == nil {
		err = io.EOF
	}
	c.readErr = err
	c.mu.Unlock()
	c.cmd.Wait()
}

func (c *ffmpegCapture) Frame() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.latest == nil {
		if c.readErr != nil {
			return nil, fmt.Errorf("camera stream ended: %w", c.readErr)
		}
		return nil, ErrNoFrame
	}
	return c.latest, nil
}

func (c *ffmpegCapture) CameraName() string { return c.name }

func (c *ffmpegCapture) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	<-c.done
}

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

// SplitJPEG reads a concatenated MJPEG stream and calls fn with each
// complete frame. It returns nil at EOF.
func SplitJPEG(r io.Reader, fn func([]byte)) error {
	var buf []byte
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				start := bytes.Index(buf, soi)
				if start < 0 {
					// keep a trailing 0xFF, it may begin the next marker
					if len(buf) > 0 && buf[len(buf)-1] == 0xFF {
						buf = buf[len(buf)-1:]
					} else {
						buf = buf[:0]
					}
					break
				}
				end := bytes.Index(buf[start+2:], eoi)
				if end < 0 {
					buf = buf[start:]
					break
				}
				end += start + 4
				frame := make([]byte, end-start)
				copy(frame, buf[start:end])
				fn(frame)
				buf = buf[end:]
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
