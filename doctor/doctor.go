package doctor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"rehearse/api"
	"rehearse/audio"
	"rehearse/beep"
	"rehearse/config"
	"rehearse/device"
	"rehearse/encoder"
	"rehearse/hotkey"
	"rehearse/media"
	"rehearse/playback"
	"rehearse/video"
)

const checks = 5

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(cfg *config.Config) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("rehearse doctor - interactive system diagnostics")
	fmt.Println("================================================")

	client := api.New(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
	reader := bufio.NewReader(os.Stdin)

	results := []bool{
		checkBackend(client),
		checkMicrophone(reader, client),
		checkCamera(cfg),
		checkPlayback(reader),
		checkHotkey(cfg),
	}

	allPass := true
	for _, ok := range results {
		allPass = allPass && ok
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func header(n int, title string) {
	fmt.Println()
	fmt.Printf("[%d/%d] %s\n", n, checks, title)
}

func checkBackend(client *api.Client) bool {
	header(1, "Interview service")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m, err := client.Ping(ctx)
	if err != nil {
		fmt.Printf("  FAIL: %s unreachable: %v\n", client.BaseURL(), err)
		return false
	}
	fmt.Printf("  PASS: %s answered in %v\n", client.BaseURL(), m.Total.Round(time.Millisecond))
	return true
}

func checkMicrophone(reader *bufio.Reader, client *api.Client) bool {
	header(2, "Microphone and transcription")

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer actx.Close()

	devices, err := actx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return false
	}

	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	idx, err := choose(reader, os.Stdout, "Select input device:", names)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	ref := &device.Ref{ID: devices[idx].ID, Label: devices[idx].Name}

	mgr := media.NewManager(actx, nil, video.Config{}, media.DefaultConstraints())
	fmt.Print("Press Enter and speak for 3 seconds...")
	reader.ReadString('\n')

	stream, err := mgr.Start(context.Background(), device.Selection{Microphone: ref})
	if err != nil {
		fmt.Printf("  FAIL: cannot open %s: %v\n", ref.Label, err)
		return false
	}
	defer mgr.Stop()

	pcm, peak := record(stream.Audio(), 3*time.Second)
	if len(pcm) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}
	fmt.Printf("  Recorded %.1f KB, peak level %.3f\n", float64(len(pcm))/1024, peak)
	if peak < 0.005 {
		fmt.Println("  WARN: signal is very quiet, check the input volume")
	}

	enc := encoder.New()
	if err := encoder.EncodePCM(enc, pcm); err != nil {
		fmt.Printf("  FAIL: encoding: %v\n", err)
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	text, err := client.Transcribe(ctx, enc.Bytes(), string(enc.Format()))
	if err != nil {
		fmt.Printf("  FAIL: transcription error: %v\n", err)
		return false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	if confirm(reader, "Is this correct?") {
		fmt.Println("  PASS: transcription verified by user")
		return true
	}
	fmt.Println("  FAIL: transcription not confirmed")
	return false
}

// record collects PCM from track for d and reports the loudest smoothed
// level seen.
func record(track *media.AudioTrack, d time.Duration) ([]byte, float64) {
	pcmCh := make(chan []byte, 256)
	cancel := track.Subscribe(func(pcm []byte) {
		select {
		case pcmCh <- append([]byte(nil), pcm...):
		default:
		}
	})
	defer cancel()

	var pcm []byte
	var peak float64
	fmt.Print("  Recording")
	deadline := time.After(d)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	dots := 0
	for {
		select {
		case chunk := <-pcmCh:
			pcm = append(pcm, chunk...)
		case <-ticker.C:
			peak = max(peak, track.Level())
			if dots++; dots%5 == 0 {
				fmt.Print(".")
			}
		case <-deadline:
			fmt.Println(" done")
			return pcm, peak
		}
	}
}

func checkCamera(cfg *config.Config) bool {
	header(3, "Camera")
	if !cfg.Camera.Enabled {
		fmt.Println("  SKIP: camera disabled in config")
		return true
	}

	src := video.NewSource()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cams, err := src.Cameras(ctx)
	if err != nil {
		fmt.Printf("  FAIL: cannot list cameras: %v\n", err)
		return false
	}
	if len(cams) == 0 {
		fmt.Println("  FAIL: no cameras found")
		return false
	}
	fmt.Printf("  Found %d camera(s), opening %s\n", len(cams), cams[0].Name)

	vcfg := video.Config{FFmpeg: cfg.Camera.FFmpeg, Width: cfg.Camera.Width, Height: cfg.Camera.Height, FPS: cfg.Camera.FPS}
	capture, err := src.Open(ctx, &cams[0], vcfg)
	if err != nil {
		fmt.Printf("  FAIL: cannot open camera: %v\n", err)
		return false
	}
	defer capture.Close()

	for {
		frame, err := capture.Frame()
		if err == nil {
			fmt.Printf("  PASS: got a %.1f KB frame from %s\n", float64(len(frame))/1024, capture.CameraName())
			return true
		}
		if !errors.Is(err, video.ErrNoFrame) {
			fmt.Printf("  FAIL: %v\n", err)
			return false
		}
		select {
		case <-ctx.Done():
			fmt.Println("  FAIL: timeout waiting for a frame")
			return false
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func checkPlayback(reader *bufio.Reader) bool {
	header(4, "Speaker output")

	player, err := playback.New()
	if err != nil {
		fmt.Printf("  FAIL: cannot open output: %v\n", err)
		return false
	}
	defer player.Close()
	beep.Init(player)

	fmt.Println("  Playing three tones...")
	for range 3 {
		beep.PlayStart()
		time.Sleep(400 * time.Millisecond)
	}
	beep.PlayEnd()
	time.Sleep(300 * time.Millisecond)

	if confirm(reader, "Did you hear the tones?") {
		fmt.Println("  PASS: playback verified by user")
		return true
	}
	fmt.Println("  FAIL: playback not confirmed")
	return false
}

func checkHotkey(cfg *config.Config) bool {
	header(5, "Push-to-talk hotkey")
	if !cfg.Hotkey.Enabled {
		fmt.Println("  SKIP: hotkey disabled in config")
		return true
	}
	info, err := hotkey.Diagnose()
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  %s\n", info)
	fmt.Printf("Press %s...\n", hotkey.Combination)

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		fmt.Printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		fmt.Println("  PASS: hotkey detected")
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// the key chord can leave the terminal in raw mode
		resetTerminal()
		return true
	case <-time.After(10 * time.Second):
		fmt.Println("  FAIL: timeout waiting for hotkey")
		return false
	}
}

// choose prints a numbered list and reads a 1-based choice. A single
// option or an empty answer selects the first entry.
func choose(r *bufio.Reader, w io.Writer, title string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("nothing to choose from")
	}
	if len(options) == 1 {
		fmt.Fprintf(w, "Using: %s\n", options[0])
		return 0, nil
	}
	fmt.Fprintln(w, title)
	for i, o := range options {
		fmt.Fprintf(w, "  %d. %s\n", i+1, o)
	}
	fmt.Fprintf(w, "Choice [1-%d]: ", len(options))

	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, nil
	}
	idx := 0
	if _, err := fmt.Sscanf(line, "%d", &idx); err != nil || idx < 1 || idx > len(options) {
		return 0, fmt.Errorf("invalid choice %q", line)
	}
	fmt.Fprintf(w, "Selected: %s\n", options[idx-1])
	return idx - 1, nil
}

func confirm(r *bufio.Reader, question string) bool {
	resetTerminal()
	fmt.Printf("%s [y/n]: ", question)
	answer, _ := r.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}
