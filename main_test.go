package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rehearse/config"
	"rehearse/interview"
)

func TestPickKey(t *testing.T) {
	tests := []struct {
		name       string
		in         []byte
		cursor     int
		wantCursor int
		wantAction pickAction
	}{
		{"enter", []byte{13}, 1, 1, pickConfirm},
		{"ctrl+c", []byte{3}, 0, 0, pickQuit},
		{"q", []byte{'q'}, 2, 2, pickQuit},
		{"down arrow", []byte{0x1b, '[', 'B'}, 0, 1, pickMove},
		{"up arrow", []byte{0x1b, '[', 'A'}, 1, 0, pickMove},
		{"j at bottom", []byte{'j'}, 2, 2, pickMove},
		{"k at top", []byte{'k'}, 0, 0, pickMove},
		{"other key", []byte{'x'}, 1, 1, pickMove},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, action := pickKey(tt.in, tt.cursor, 3)
			if cursor != tt.wantCursor || action != tt.wantAction {
				t.Fatalf("pickKey = (%d, %d), want (%d, %d)", cursor, action, tt.wantCursor, tt.wantAction)
			}
		})
	}
}

func TestResumeInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resume.pdf")
	missing := filepath.Join(dir, "missing.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   string
		want interview.Resume
	}{
		{"", interview.Resume{}},
		{"   ", interview.Resume{}},
		{path, interview.Resume{Path: path}},
		{"  " + path + "\n", interview.Resume{Path: path}},
		{"Go developer, 5 years", interview.Resume{Text: "Go developer, 5 years"}},
		{missing, interview.Resume{Text: missing}},
		{dir, interview.Resume{Text: dir}},
	}

	for _, tt := range tests {
		if got := resumeInput(tt.in); got != tt.want {
			t.Errorf("resumeInput(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"short", 10, []string{"short"}},
		{"tell me about a time you failed", 12, []string{"tell me", "about a time", "you failed"}},
		{"first\nsecond", 20, []string{"first", "second"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestDropLastRune(t *testing.T) {
	tests := map[string]string{
		"":      "",
		"a":     "",
		"abc":   "ab",
		"café":  "caf",
		"yes ✓": "yes ",
	}
	for in, want := range tests {
		if got := dropLastRune(in); got != want {
			t.Errorf("dropLastRune(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLevelBar(t *testing.T) {
	tests := []struct {
		level float64
		full  int
	}{
		{0, 0},
		{0.05, 5},
		{0.1, 10},
		{0.9, 10},
	}
	for _, tt := range tests {
		bar := levelBar(tt.level, 10)
		if got := strings.Count(bar, "█"); got != tt.full {
			t.Errorf("levelBar(%v) has %d full cells, want %d", tt.level, got, tt.full)
		}
		if n := len([]rune(bar)); n != 10 {
			t.Errorf("levelBar(%v) width = %d, want 10", tt.level, n)
		}
	}
}

func TestDeviceLineText(t *testing.T) {
	if got := deviceLineText("", "ctrl+g"); got != "mic: none (ctrl+g)" {
		t.Errorf("got %q", got)
	}
	if got := deviceLineText("AirPods Pro", "ctrl+g"); !strings.Contains(got, "(BT!)") {
		t.Errorf("bluetooth mic not flagged: %q", got)
	}
}

func TestCoordinatorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Interview.MaxQuestions = 7
	cfg.Timing.FeedbackWindow = time.Second
	cfg.Recognizer.Language = "de-DE"

	got := coordinatorConfig(cfg)
	if got.MaxQuestions != 7 {
		t.Errorf("MaxQuestions = %d, want 7", got.MaxQuestions)
	}
	if got.Feedback.Window != time.Second || got.Feedback.MinChars != cfg.Timing.FeedbackMinChars {
		t.Errorf("Feedback = %+v", got.Feedback)
	}
	if got.Speech.Recognition.Language != "de-DE" {
		t.Errorf("Language = %q, want de-DE", got.Speech.Recognition.Language)
	}
	if got.Speech.MaxRestarts != cfg.Timing.MaxRestarts || got.Speech.SettleDelay != cfg.Timing.SettleDelay {
		t.Errorf("Speech = %+v", got.Speech)
	}
	if got.PostureInterval != cfg.Timing.PostureInterval {
		t.Errorf("PostureInterval = %v", got.PostureInterval)
	}
}
