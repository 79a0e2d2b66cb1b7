package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentApp, Output: buf})
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return rec
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf).WithComponent(ComponentStorage)

	logger.Info("opened", FieldCount, 3)

	rec := decodeLine(t, &buf)
	if rec[FieldComponent] != ComponentStorage {
		t.Fatalf("component = %v, want %q", rec[FieldComponent], ComponentStorage)
	}
	if rec[FieldCount] != float64(3) {
		t.Fatalf("count = %v, want 3", rec[FieldCount])
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("shown")
	if buf.Len() == 0 {
		t.Fatal("warn should be logged")
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background(), nil); got.Component() != "unknown" {
		t.Fatalf("fallback component = %q", got.Component())
	}

	var buf bytes.Buffer
	fallback := newBufferLogger(&buf)
	if FromContext(context.Background(), fallback) != fallback {
		t.Fatal("expected the fallback logger")
	}

	logger := newBufferLogger(&buf)
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx, fallback) != logger {
		t.Fatal("expected the stored logger")
	}
}

func TestContextLoggerKeepsRequestID(t *testing.T) {
	var buf bytes.Buffer
	reqLogger := newBufferLogger(&buf).With(FieldRequestID, "req-1")
	ctx := WithLogger(context.Background(), reqLogger)

	FromContext(ctx, nil).WithComponent(ComponentExpense).InfoContext(ctx, "inside")

	rec := decodeLine(t, &buf)
	if rec[FieldRequestID] != "req-1" {
		t.Fatalf("request id = %v", rec[FieldRequestID])
	}
	if rec[FieldComponent] != ComponentExpense {
		t.Fatalf("component = %v", rec[FieldComponent])
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{404, "WARN"},
		{500, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(newBufferLogger(&buf))
		sl.LogHTTPEnd(context.Background(), httptest.NewRequest(http.MethodGet, "/expenses", nil), tt.status, 5, "127.0.0.1")

		rec := decodeLine(t, &buf)
		if rec["level"] != tt.level {
			t.Errorf("status %d logged at %v, want %s", tt.status, rec["level"], tt.level)
		}
		if rec[FieldComponent] != ComponentHTTP {
			t.Errorf("component = %v", rec[FieldComponent])
		}
	}
}

func TestLogExpenseWrittenAndError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))

	sl.LogExpenseWritten(context.Background(), OpUpdate, 4, 9.5, "Food", "2024-01-01")
	rec := decodeLine(t, &buf)
	if rec["msg"] != "Expense updated" || rec[FieldExpenseID] != float64(4) || rec[FieldCategory] != "Food" {
		t.Fatalf("unexpected record: %v", rec)
	}

	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("disk full"), ComponentStorage, OpCreate, ErrorTypeDatabase, nil)
	rec = decodeLine(t, &buf)
	if rec[FieldError] != "disk full" || rec[FieldErrorType] != ErrorTypeDatabase || rec[FieldComponent] != ComponentStorage {
		t.Fatalf("unexpected record: %v", rec)
	}
}
