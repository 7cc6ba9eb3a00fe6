package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(buf *bytes.Buffer, level string) *Logger {
	return New(Config{
		Level:       level,
		Format:      "json",
		Output:      buf,
		ServiceName: "rendernode-test",
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{name: "json", config: Config{Level: "info", Format: "json"}},
		{name: "debug level", config: Config{Level: "debug", Format: "json"}},
		{name: "text format", config: Config{Level: "info", Format: "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if New(tt.config) == nil {
				t.Fatal("expected logger to be non-nil")
			}
		})
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf, "debug")

	log.Info("job started", "stage", "render")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if entry["msg"] != "job started" {
		t.Errorf("expected msg='job started', got %v", entry["msg"])
	}
	if entry["stage"] != "render" {
		t.Errorf("expected stage='render', got %v", entry["stage"])
	}
	if entry["service"] != "rendernode-test" {
		t.Errorf("expected service='rendernode-test', got %v", entry["service"])
	}

	ts, ok := entry["time"].(string)
	if !ok {
		t.Fatalf("expected time string, got %v", entry["time"])
	}
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Errorf("expected RFC3339 timestamp, got %q: %v", ts, err)
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{"info logs info", "info", func(l *Logger) { l.Info("test") }, true},
		{"info drops debug", "info", func(l *Logger) { l.Debug("test") }, false},
		{"debug logs debug", "debug", func(l *Logger) { l.Debug("test") }, true},
		{"error logs error", "error", func(l *Logger) { l.Error("test") }, true},
		{"error drops warn", "error", func(l *Logger) { l.Warn("test") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFn(newBufferLogger(&buf, tt.level))

			if hasOutput := buf.Len() > 0; hasOutput != tt.shouldLog {
				t.Errorf("expected shouldLog=%v, got hasOutput=%v", tt.shouldLog, hasOutput)
			}
		})
	}
}

func TestWithHelpers(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*Logger) *Logger
		want string
	}{
		{"request id", func(l *Logger) *Logger { return l.WithRequestID("req-123") }, "req-123"},
		{"job id", func(l *Logger) *Logger { return l.WithJobID("msg-456") }, "msg-456"},
		{"component", func(l *Logger) *Logger { return l.WithComponent("pool") }, `"component":"pool"`},
		{"error", func(l *Logger) *Logger { return l.WithError(context.DeadlineExceeded) }, "deadline exceeded"},
		{"fields", func(l *Logger) *Logger { return l.WithFields(map[string]any{"bucket": "scenes"}) }, "scenes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.fn(newBufferLogger(&buf, "info")).Info("test message")

			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected output to contain %q, got: %s", tt.want, buf.String())
			}
		})
	}
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf, "info")

	if log.WithError(nil) != log {
		t.Error("WithError(nil) should return same logger")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf, "info")

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	ctx = ContextWithJobID(ctx, "msg-xyz")

	log.FromContext(ctx).Info("test message")

	output := buf.String()
	if !strings.Contains(output, "req-abc") {
		t.Errorf("expected output to contain request_id, got: %s", output)
	}
	if !strings.Contains(output, "msg-xyz") {
		t.Errorf("expected output to contain job_id, got: %s", output)
	}
}

func TestContextStage(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf, "info")

	ctx := ContextWithStage(ContextWithJobID(context.Background(), "msg-1"), "upload")
	log.WithQueue("render-jobs").FromContext(ctx).Info("test message")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry[KeyStage] != "upload" || entry[KeyJobID] != "msg-1" || entry[KeyQueue] != "render-jobs" {
		t.Errorf("unexpected attributes: %v", entry)
	}
}

func TestEmptyContextAddsNothing(t *testing.T) {
	log := newBufferLogger(&bytes.Buffer{}, "info")
	if log.FromContext(context.Background()) != log {
		t.Error("FromContext without values should return the same logger")
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Level: "info", Format: "text", Output: &buf, ServiceName: "node"}).WithStage("render").Info("hello")

	out := buf.String()
	if !strings.Contains(out, "service=node") || !strings.Contains(out, "stage=render") {
		t.Errorf("unexpected text output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.expected {
				t.Errorf("parseLevel(%q) = %s, expected %s", tt.input, got, tt.expected)
			}
		})
	}
}
