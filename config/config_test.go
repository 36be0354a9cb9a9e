package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"REHEARSE_API_URL", "REHEARSE_API_TOKEN", "REHEARSE_API_TIMEOUT", "REHEARSE_MAX_QUESTIONS",
		"REHEARSE_RECOGNIZER", "DEEPGRAM_API_KEY", "REHEARSE_LANGUAGE", "REHEARSE_CAMERA",
		"REHEARSE_FFMPEG", "REHEARSE_MICROPHONE", "REHEARSE_HOTKEY",
	} {
		t.Setenv(k, "")
	}
	// run from an empty dir so no stray .env is picked up
	t.Chdir(t.TempDir())
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("missing.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Interview.MaxQuestions != 5 || cfg.Timing.PostureInterval != 2500*time.Millisecond {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "rehearse.yaml")
	os.WriteFile(path, []byte(`
api:
  base_url: https://coach.example.com
interview:
  max_questions: 3
timing:
  feedback_window: 1s
  restart_delay: 200ms
recognizer:
  language: de-DE
devices:
  microphone: USB Mic
`), 0644)
	t.Setenv("REHEARSE_API_TOKEN", "tok")
	t.Setenv("REHEARSE_MAX_QUESTIONS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://coach.example.com" || cfg.API.Token != "tok" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Interview.MaxQuestions != 7 {
		t.Errorf("max_questions = %d, want env override 7", cfg.Interview.MaxQuestions)
	}
	if cfg.Timing.FeedbackWindow != time.Second || cfg.Timing.RestartDelay != 200*time.Millisecond {
		t.Errorf("timing = %+v", cfg.Timing)
	}
	if cfg.Timing.SettleDelay != 500*time.Millisecond {
		t.Errorf("unset field lost its default: %v", cfg.Timing.SettleDelay)
	}
	if cfg.Recognizer.Language != "de-DE" || cfg.Devices.Microphone != "USB Mic" {
		t.Errorf("recognizer=%+v devices=%+v", cfg.Recognizer, cfg.Devices)
	}
}

func TestDotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that is set, even to ""
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.WriteFile(".env", []byte("DEEPGRAM_API_KEY=dg-key\n"), 0644)

	cfg, err := Load("missing.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recognizer.APIKey != "dg-key" {
		t.Errorf("api key = %q", cfg.Recognizer.APIKey)
	}
}

func TestLoadBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("api: [unclosed"), 0644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"no url", func(c *Config) { c.API.BaseURL = "" }, "base_url"},
		{"zero questions", func(c *Config) { c.Interview.MaxQuestions = 0 }, "max_questions"},
		{"backoff cap", func(c *Config) { c.Timing.MaxRestartDelay = time.Millisecond }, "max_restart_delay"},
		{"restarts", func(c *Config) { c.Timing.MaxRestarts = 0 }, "max_restarts"},
		{"camera", func(c *Config) { c.Camera.FPS = 0 }, "fps"},
		{"camera disabled", func(c *Config) { c.Camera.Enabled = false; c.Camera.FPS = 0 }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
