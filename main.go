package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"rehearse/api"
	"rehearse/audio"
	"rehearse/beep"
	"rehearse/config"
	"rehearse/device"
	"rehearse/doctor"
	"rehearse/feedback"
	"rehearse/hotkey"
	"rehearse/interview"
	"rehearse/log"
	"rehearse/media"
	"rehearse/playback"
	"rehearse/recorder"
	"rehearse/shutdown"
	"rehearse/speech"
	"rehearse/transcriber"
	"rehearse/video"
)

var version = "dev"

const hotkeyLabel = hotkey.Combination

var shutdownOnce sync.Once

// closers run in reverse registration order on shutdown.
var (
	closersMu sync.Mutex
	closers   []func()
)

func onShutdown(fn func()) {
	closersMu.Lock()
	closers = append(closers, fn)
	closersMu.Unlock()
}

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		closersMu.Lock()
		fns := closers
		closersMu.Unlock()
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
	})
}

func beepStart() { beep.PlayStart() }
func beepEnd()   { beep.PlayEnd() }
func beepError() { beep.PlayError() }

func fatalf(format string, args ...any) {
	log.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func run() {
	configFlag := flag.String("config", config.DefaultPath, "Path to YAML config file")
	setupFlag := flag.Bool("setup", false, "Select microphone device interactively")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	cameraFlag := flag.String("camera", "", "Use named camera device")
	noCameraFlag := flag.Bool("no-camera", false, "Disable the camera and posture coaching")
	maxFlag := flag.Int("max-questions", 0, "Questions per interview (overrides config)")
	langFlag := flag.String("lang", "", "Recognition language tag, e.g. en-US (overrides config)")
	jobFlag := flag.String("job", "", "Job description text")
	jobFileFlag := flag.String("job-file", "", "Read the job description from a file")
	resumeFlag := flag.String("resume", "", "Resume text or path to a resume file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	debugFlag := flag.Bool("debug", false, "Write debug entries to the diagnostics log")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	longPressFlag := flag.Duration("longpress", 350*time.Millisecond, "Long-press threshold for push-to-talk vs toggle (e.g., 350ms)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("rehearse %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *maxFlag > 0 {
		cfg.Interview.MaxQuestions = *maxFlag
	}
	if *langFlag != "" {
		cfg.Recognizer.Language = *langFlag
	}
	if *noCameraFlag {
		cfg.Camera.Enabled = false
	}
	if *deviceFlag != "" {
		cfg.Devices.Microphone = *deviceFlag
	}
	if *cameraFlag != "" {
		cfg.Devices.Camera = *cameraFlag
	}

	if *doctorFlag {
		os.Exit(doctor.Run(cfg))
	}

	job := *jobFlag
	if *jobFileFlag != "" {
		data, err := os.ReadFile(*jobFileFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: reading job description: %v\n", err)
			os.Exit(1)
		}
		job = string(data)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	log.SetDebug(*debugFlag)
	log.Infof("rehearse %s starting, backend %s", version, cfg.API.BaseURL)

	actx, err := audio.NewContext()
	if err != nil {
		log.Warnf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: microphone unavailable: %v\n", err)
		actx = nil
	}
	if actx != nil {
		onShutdown(actx.Close)
	}

	if *setupFlag && actx != nil {
		dev, err := selectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
		} else if dev != nil {
			cfg.Devices.Microphone = dev.Name
		}
	}

	var vsrc video.Source
	var lister video.Lister
	if cfg.Camera.Enabled {
		vsrc = video.NewSource()
		lister = vsrc
	}
	vcfg := video.Config{FFmpeg: cfg.Camera.FFmpeg, Width: cfg.Camera.Width, Height: cfg.Camera.Height, FPS: cfg.Camera.FPS}

	mgr := media.NewManager(actx, vsrc, vcfg, media.DefaultConstraints())
	devices := device.NewSelector(actx, lister)

	ctx := context.Background()
	sel := device.Selection{}
	if name := cfg.Devices.Microphone; name != "" {
		if ref := device.FindByName(devices.Microphones(ctx), name); ref != nil {
			sel.Microphone = ref
		} else {
			log.Warnf("microphone %q not found, using default", name)
		}
	}
	if name := cfg.Devices.Camera; name != "" && cfg.Camera.Enabled {
		if ref := device.FindByName(devices.Cameras(ctx), name); ref != nil {
			sel.Camera = ref
		} else {
			log.Warnf("camera %q not found, using first available", name)
		}
	}
	if _, err := mgr.SetSelection(ctx, sel); err != nil {
		log.Warnf("device selection: %v", err)
	}

	rec, err := transcriber.New(cfg.Recognizer.Provider, cfg.Recognizer.APIKey)
	if err != nil {
		fatalf("%v", err)
	}

	player, err := playback.New()
	if err != nil {
		log.Warnf("playback init error: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: speaker unavailable, interviewer audio disabled: %v\n", err)
		player = nil
	}
	if player != nil {
		beep.Init(player)
		onShutdown(player.Close)
	} else {
		beep.Disable()
	}

	client := api.New(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
	go client.Warm(ctx)

	coord := interview.New(coordinatorConfig(cfg), client, mgr, devices, rec, player)
	onShutdown(coord.Close)

	tuiMu.Lock()
	tuiProgram = NewTUIProgram(coord, job, *resumeFlag)
	tuiMu.Unlock()
	coord.OnChange(func(interview.View) { tuiSend(refreshMsg{}) })

	go coord.Open(ctx)

	if cfg.Hotkey.Enabled {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Warnf("hotkey unavailable: %v", err)
		} else {
			onShutdown(hk.Unregister)
			ptt := hotkey.NewPushToTalk(hk, *longPressFlag)
			onShutdown(ptt.Close)
			go pushToTalkLoop(ptt, coord)
		}
	}

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown()
	}()

	if _, err := tuiProgram.Run(); err != nil {
		log.Errorf("tui error: %v", err)
	}
	gracefulShutdown()
}

func coordinatorConfig(cfg *config.Config) interview.Config {
	sc := speech.DefaultConfig()
	sc.RestartDelay = cfg.Timing.RestartDelay
	sc.MaxRestartDelay = cfg.Timing.MaxRestartDelay
	sc.MaxRestarts = cfg.Timing.MaxRestarts
	sc.SettleDelay = cfg.Timing.SettleDelay
	sc.Recognition.Language = cfg.Recognizer.Language
	sc.Recognition.Model = cfg.Recognizer.Model
	sc.Recognition.NoSpeechTimeout = cfg.Recognizer.NoSpeechTimeout

	return interview.Config{
		MaxQuestions:    cfg.Interview.MaxQuestions,
		Speech:          sc,
		Feedback:        feedback.Config{Window: cfg.Timing.FeedbackWindow, MinChars: cfg.Timing.FeedbackMinChars},
		PostureInterval: cfg.Timing.PostureInterval,
	}
}

// pushToTalkLoop records the spoken answer while the hotkey is held (or
// between two taps) and submits the transcription.
func pushToTalkLoop(ptt *hotkey.PushToTalk, coord *interview.Coordinator) {
	for {
		<-ptt.Start()
		if err := coord.StartRecording(); err != nil {
			log.Warnf("recording: %v", err)
			go beepError()
			tuiSend(noticeMsg{Text: "recording: " + err.Error(), Err: true})
			<-ptt.Stop()
			continue
		}
		go beepStart()
		go watchSilence(coord, ptt.IsToggle)

		mode := <-ptt.Stop()
		log.Debugf("push-to-talk released (%s)", mode)
		if !coord.View().Recording {
			continue
		}
		go beepEnd()
		go func() {
			if err := coord.StopRecording(context.Background()); err != nil {
				log.Warnf("recorded answer: %v", err)
				beepError()
				tuiSend(noticeMsg{Text: "recorded answer: " + err.Error(), Err: true})
			}
		}()
	}
}

// watchSilence runs voice detection on the microphone for as long as the
// answer is being recorded and warns when nothing is heard. An open-ended
// recording that stays silent is dropped.
func watchSilence(coord *interview.Coordinator, openEnded func() bool) {
	vad, err := recorder.NewVoiceDetector()
	if err != nil {
		log.Warnf("voice detection unavailable: %v", err)
		return
	}
	cancel, ok := coord.ListenMicrophone(vad.Process)
	if !ok {
		return
	}
	defer cancel()

	m := recorder.NewSilenceMonitor(openEnded)
	ticker := time.NewTicker(recorder.SilenceTick)
	defer ticker.Stop()
	for range ticker.C {
		if !coord.View().Recording {
			return
		}
		switch m.Observe(vad.Tick()) {
		case recorder.SilenceWarn:
			log.Warn("no voice detected while recording")
			go beepError()
			tuiSend(noticeMsg{Text: "No voice detected, check your microphone", Err: true})
		case recorder.SilenceRepeat:
			go beepError()
		case recorder.SilenceClear:
			tuiSend(noticeMsg{})
		case recorder.SilenceStop:
			log.Warn("recording dropped after sustained silence")
			coord.CancelRecording()
			go beepEnd()
			tuiSend(noticeMsg{Text: "Recording stopped: nothing was heard", Err: true})
			return
		}
	}
}
