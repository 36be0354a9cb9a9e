package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "rehearse.yaml"

type Config struct {
	API        APIConfig        `yaml:"api"`
	Interview  InterviewConfig  `yaml:"interview"`
	Timing     TimingConfig     `yaml:"timing"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Camera     CameraConfig     `yaml:"camera"`
	Devices    DevicesConfig    `yaml:"devices"`
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type InterviewConfig struct {
	MaxQuestions int `yaml:"max_questions"`
}

type TimingConfig struct {
	PostureInterval  time.Duration `yaml:"posture_interval"`
	FeedbackWindow   time.Duration `yaml:"feedback_window"`
	FeedbackMinChars int           `yaml:"feedback_min_chars"`
	RestartDelay     time.Duration `yaml:"restart_delay"`
	MaxRestartDelay  time.Duration `yaml:"max_restart_delay"`
	MaxRestarts      int           `yaml:"max_restarts"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
}

type RecognizerConfig struct {
	Provider        string        `yaml:"provider"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	Language        string        `yaml:"language"`
	NoSpeechTimeout time.Duration `yaml:"no_speech_timeout"`
}

type CameraConfig struct {
	Enabled bool   `yaml:"enabled"`
	FFmpeg  string `yaml:"ffmpeg"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	FPS     int    `yaml:"fps"`
}

type DevicesConfig struct {
	Microphone string `yaml:"microphone"`
	Camera     string `yaml:"camera"`
}

type HotkeyConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 60 * time.Second,
		},
		Interview: InterviewConfig{MaxQuestions: 5},
		Timing: TimingConfig{
			PostureInterval:  2500 * time.Millisecond,
			FeedbackWindow:   800 * time.Millisecond,
			FeedbackMinChars: 10,
			RestartDelay:     300 * time.Millisecond,
			MaxRestartDelay:  5 * time.Second,
			MaxRestarts:      5,
			SettleDelay:      500 * time.Millisecond,
		},
		Recognizer: RecognizerConfig{
			Provider:        "deepgram",
			Model:           "nova-3",
			Language:        "en-US",
			NoSpeechTimeout: 8 * time.Second,
		},
		Camera: CameraConfig{
			Enabled: true,
			FFmpeg:  "ffmpeg",
			Width:   640,
			Height:  480,
			FPS:     2,
		},
		Hotkey: HotkeyConfig{Enabled: true},
	}
}

// Load reads .env (if present), the YAML file at path (if present) and
// environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("REHEARSE_API_URL", c.API.BaseURL)
	c.API.Token = getEnv("REHEARSE_API_TOKEN", c.API.Token)
	c.API.Timeout = getEnvAsDuration("REHEARSE_API_TIMEOUT", c.API.Timeout)
	c.Interview.MaxQuestions = getEnvAsInt("REHEARSE_MAX_QUESTIONS", c.Interview.MaxQuestions)
	c.Recognizer.Provider = getEnv("REHEARSE_RECOGNIZER", c.Recognizer.Provider)
	c.Recognizer.APIKey = getEnv("DEEPGRAM_API_KEY", c.Recognizer.APIKey)
	c.Recognizer.Language = getEnv("REHEARSE_LANGUAGE", c.Recognizer.Language)
	c.Camera.Enabled = getEnvAsBool("REHEARSE_CAMERA", c.Camera.Enabled)
	c.Camera.FFmpeg = getEnv("REHEARSE_FFMPEG", c.Camera.FFmpeg)
	c.Devices.Microphone = getEnv("REHEARSE_MICROPHONE", c.Devices.Microphone)
	c.Hotkey.Enabled = getEnvAsBool("REHEARSE_HOTKEY", c.Hotkey.Enabled)
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Interview.MaxQuestions <= 0 {
		return fmt.Errorf("interview.max_questions must be greater than 0")
	}
	t := c.Timing
	if t.PostureInterval <= 0 || t.FeedbackWindow <= 0 || t.RestartDelay <= 0 || t.SettleDelay < 0 {
		return fmt.Errorf("timing intervals must be positive")
	}
	if t.MaxRestartDelay < t.RestartDelay {
		return fmt.Errorf("timing.max_restart_delay (%v) must be at least restart_delay (%v)", t.MaxRestartDelay, t.RestartDelay)
	}
	if t.MaxRestarts <= 0 {
		return fmt.Errorf("timing.max_restarts must be greater than 0")
	}
	if t.FeedbackMinChars < 0 {
		return fmt.Errorf("timing.feedback_min_chars cannot be negative")
	}
	if c.Camera.Enabled && (c.Camera.Width <= 0 || c.Camera.Height <= 0 || c.Camera.FPS <= 0) {
		return fmt.Errorf("camera width, height and fps must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
