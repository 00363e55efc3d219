package peerlink

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestLogger_Interface(t *testing.T) {
	// Verify that *slog.Logger implements our Logger interface
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger == nil {
		t.Fatal("defaultLogger returned nil")
	}

	// Verify it's the slog default
	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

func TestDiscardLogger(t *testing.T) {
	logger := DiscardLogger()

	// These should not panic
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
}

// recordingLogger keeps every message with its level, safe for use from
// connection goroutines.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, level+" "+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }

func (l *recordingLogger) hasAt(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == level+" "+msg {
			return true
		}
	}
	return false
}

func (l *recordingLogger) has(msg string) bool {
	for _, level := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		if l.hasAt(level, msg) {
			return true
		}
	}
	return false
}

func TestConn_LogsLifecycle(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	logger := &recordingLogger{}
	conn := startConn(t, serverConn, LoggerOption(logger))

	if err := conn.Disconnect(true); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for !logger.has("connection closed") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	for _, msg := range []string{"connection established", "connection closed"} {
		if !logger.has(msg) {
			t.Errorf("expected log message %q", msg)
		}
	}
}

func TestConn_LogsDispatchFailures(t *testing.T) {
	logger := &recordingLogger{}

	router := NewRouter()
	if err := Handle(router, func(p Ping) error {
		panic("boom")
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	left, _ := startConnPair(t, nil, []Option{RouterOption(router), LoggerOption(logger)})

	if err := left.Notify(context.Background(), Ping{Text: "hello"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !logger.hasAt("WARN", "dispatch failed") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if !logger.hasAt("ERROR", "handler panic") {
		t.Error("expected the handler panic to be logged at error level")
	}
	if !logger.hasAt("WARN", "dispatch failed") {
		t.Error("expected the failed dispatch to be logged at warn level")
	}
}
