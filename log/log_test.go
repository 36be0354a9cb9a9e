package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("REHEARSE_LOG_PATH", "/tmp/rehearse-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/rehearse-env-log" {
		t.Errorf("got %q, want /tmp/rehearse-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("REHEARSE_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("expected non-empty default directory")
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "answers_log.txt"} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestSubmission(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Submission("S1", 2, "I have 5 years of experience")

	data, err := os.ReadFile(filepath.Join(tmp, "answers_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "I have 5 years of experience") {
		t.Errorf("answers_log.txt missing text, got: %q", line)
	}
	// format: "2006-01-02 15:04:05\t[pid]\tsession\tquestion\ttext\n"
	if fields := strings.Split(strings.TrimSuffix(line, "\n"), "\t"); len(fields) != 5 || fields[2] != "S1" || fields[3] != "2" {
		t.Errorf("unexpected line format: %q", line)
	}

	diag, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(diag), "answer_submitted") {
		t.Errorf("diagnostics_log.txt missing answer_submitted, got: %q", diag)
	}
}

func TestDebugfGated(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { SetDebug(false) })

	Debugf("hidden %d", 1)
	SetDebug(true)
	Debugf("shown %d", 2)

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hidden 1") {
		t.Error("Debugf wrote while debug disabled")
	}
	if !strings.Contains(string(data), "shown 2") {
		t.Error("Debugf did not write while debug enabled")
	}
}

func TestLoggingBeforeInitIsNoop(t *testing.T) {
	Info("nothing")
	Submission("S", 0, "x")
	SessionEnd("S", 0)
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
