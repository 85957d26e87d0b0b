package logging

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("LevelString(%v) = %q does not parse back", level, LevelString(level))
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("expected json, got %v (%v)", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("expected text default, got %v (%v)", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "keysense" {
		t.Errorf("expected component keysense, got %s", cfg.Component)
	}
}

func newBufferLogger(t *testing.T, format Format) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = format
	cfg.Writer = &buf
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, &buf
}

func TestJSONFormat(t *testing.T) {
	logger, buf := newBufferLogger(t, FormatJSON)

	logger.Info("hook installed", "kind", "keyboard")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "hook installed" || entry["kind"] != "keyboard" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["component"] != "keysense" {
		t.Errorf("expected component attribute, got %v", entry["component"])
	}
}

func TestTypedCharactersAreRedacted(t *testing.T) {
	logger, buf := newBufferLogger(t, FormatJSON)

	logger.Warn("subscriber saw", "char", "é", "text", "hunter2", "vk", "VK_E", "key_events", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["char"] != "[REDACTED]" || entry["text"] != "[REDACTED]" {
		t.Errorf("typed text leaked: %v", entry)
	}
	if entry["vk"] != "VK_E" || entry["key_events"] != float64(3) {
		t.Errorf("non-sensitive attributes should pass through: %v", entry)
	}
	if strings.Contains(buf.String(), "hunter2") || strings.Contains(buf.String(), "é") {
		t.Errorf("raw output contains typed text: %s", buf.String())
	}
}

func TestRedactionInGroups(t *testing.T) {
	logger, buf := newBufferLogger(t, FormatText)

	logger.With("event", "char").WithGroup("input").Info("committed", "char", "x")

	if strings.Contains(buf.String(), "input.char=x") {
		t.Errorf("grouped char leaked: %s", buf.String())
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"char", true},
		{"CHAR", true},
		{"text", true},
		{"rune", true},
		{"password", true},
		{"auth_token", true},
		{"credential", true},
		{"chars_committed", false},
		{"key_events", false},
		{"kind", false},
		{"handle", false},
		{"vk", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			if got := shouldRedact(test.key); got != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, got, test.expected)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, FormatText)
	child := logger.WithComponent("tracker")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info: %s", buf.String())
	}

	logger.SetLevel(LevelDebug)
	child.Debug("shown")
	if !strings.Contains(buf.String(), "shown") || !strings.Contains(buf.String(), "component=tracker") {
		t.Errorf("derived logger should follow the level change: %s", buf.String())
	}
	if logger.GetLevel() != LevelDebug {
		t.Errorf("expected debug, got %v", logger.GetLevel())
	}
}

func TestSetDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger, buf := newBufferLogger(t, FormatText)
	SetDefault(logger)
	slog.Info("via slog")
	if !strings.Contains(buf.String(), "via slog") {
		t.Errorf("slog default should write through the logger: %q", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "keysense.log")
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = path

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("tracker started")
	if err := logger.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "tracker started") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestFileRotatorRejectsEmptyPath(t *testing.T) {
	if _, err := NewFileRotator(&Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestFileRotatorSizeRotation(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	rotator, err := NewFileRotator(&Config{
		FilePath:   logPath,
		MaxSize:    1, // 1 MB
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}

	line := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 4; i++ {
		n, err := rotator.Write(line)
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if n != len(line) {
			t.Errorf("expected to write %d bytes, wrote %d", len(line), n)
		}
	}
	if err := rotator.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := rotator.GetLogFiles()
	if err != nil {
		t.Fatalf("failed to get log files: %v", err)
	}
	// Each write after the first overflows 1 MB: three rotations, two kept.
	if len(files) != 3 {
		t.Errorf("expected current file plus 2 backups, got %v", files)
	}
	if files[0] != logPath {
		t.Errorf("current file should come first, got %s", files[0])
	}
}

func TestFileRotatorDailyRotationCompresses(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "daily.log")

	rotator, err := NewFileRotator(&Config{
		FilePath:   logPath,
		MaxSize:    100,
		MaxBackups: 5,
		Compress:   true,
	})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}

	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	rotator.now = func() time.Time { return day }
	rotator.opened = day

	if _, err := rotator.Write([]byte("before midnight\n")); err != nil {
		t.Fatal(err)
	}
	day = day.Add(2 * time.Minute)
	if _, err := rotator.Write([]byte("after midnight\n")); err != nil {
		t.Fatal(err)
	}
	if err := rotator.Close(); err != nil {
		t.Fatal(err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "daily-*.log.gz"))
	if len(matches) != 1 {
		t.Fatalf("expected one compressed backup, got %v", matches)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	content, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "before midnight\n" {
		t.Errorf("unexpected backup content %q", content)
	}

	current, _ := os.ReadFile(logPath)
	if string(current) != "after midnight\n" {
		t.Errorf("unexpected current content %q", current)
	}
}

func TestCrashHandler(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelInfo, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	handler := NewCrashHandler(&CrashHandlerConfig{
		CrashDir:  dir,
		Version:   "1.0.0",
		Component: "test",
		Logger:    logger.Logger,
	})

	panicked := handler.Recover(map[string]string{"goroutine": "tracker"}, func() {
		panic("intentional test panic")
	})
	if !panicked {
		t.Error("Recover should report the panic")
	}
	if handler.Recover(nil, func() {}) {
		t.Error("Recover reported a panic for a clean run")
	}

	reports, err := handler.GetCrashReports()
	if err != nil {
		t.Fatalf("failed to get crash reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 crash report, got %d", len(reports))
	}

	report := reports[0]
	if report.PanicValue != "intentional test panic" {
		t.Errorf("unexpected panic value %q", report.PanicValue)
	}
	if report.Version != "1.0.0" || report.Component != "test" {
		t.Errorf("unexpected report metadata: %+v", report)
	}
	if report.Context["goroutine"] != "tracker" {
		t.Errorf("context lost: %v", report.Context)
	}
	if !strings.Contains(report.StackTrace, "TestCrashHandler") {
		t.Error("stack trace should include the panicking test")
	}
	if !strings.Contains(buf.String(), "crash") {
		t.Errorf("crash should be logged: %s", buf.String())
	}
}

func TestCrashHandlerCleanupOld(t *testing.T) {
	handler := NewCrashHandler(&CrashHandlerConfig{CrashDir: t.TempDir(), Component: "test"})

	for i := 0; i < 3; i++ {
		handler.HandlePanic("test panic", nil)
	}

	reports, _ := handler.GetCrashReports()
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}

	time.Sleep(10 * time.Millisecond)
	if err := handler.CleanupOldCrashReports(time.Millisecond); err != nil {
		t.Errorf("CleanupOldCrashReports failed: %v", err)
	}

	reports, _ = handler.GetCrashReports()
	if len(reports) != 0 {
		t.Errorf("expected all reports removed, got %d", len(reports))
	}
}
