package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog    zerolog.Logger
	diagFile   *os.File
	answerFile *os.File
	logMu      sync.Mutex
	logReady   bool
	debug      bool
	pid        int
	dir        string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: REHEARSE_LOG_PATH environment variable
	if envPath := os.Getenv("REHEARSE_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

// SetDebug enables Debugf output.
func SetDebug(on bool) {
	debug = on
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	answerPath := filepath.Join(dir, "answers_log.txt")
	answerFile, err = os.OpenFile(answerPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if answerFile != nil {
		answerFile.Close()
		answerFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Debugf(format string, args ...any) {
	if logReady && debug {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// RequestMetrics records timing for one call to the interview service.
type RequestMetrics struct {
	Endpoint   string
	RequestID  string
	StatusCode int
	TTFBMs     float64
	TotalMs    float64
	ConnReused bool
}

func Request(m RequestMetrics) {
	if !logReady {
		return
	}

	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}

	diagLog.Info().
		Str("endpoint", m.Endpoint).
		Str("request_id", m.RequestID).
		Int("status", m.StatusCode).
		Str("conn", connStatus).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalMs).
		Msg("request")
}

// Submission appends the answer to answers_log.txt and records a diagnostic line.
func Submission(sessionID string, questionIndex int, text string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", sessionID).
		Int("question", questionIndex).
		Int("chars", len(text)).
		Msg("answer_submitted")

	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%d\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, sessionID, questionIndex, text)
	answerFile.WriteString(line)
}

func SessionStart(sessionID string, maxQuestions int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", sessionID).
		Int("max_questions", maxQuestions).
		Msg("session_start")
}

func SessionEnd(sessionID string, questions int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", sessionID).
		Int("questions", questions).
		Msg("session_end")
}
