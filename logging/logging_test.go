package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	syncErrors "github.com/dosetrack/medsync/errors"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"bogus", slog.LevelInfo, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := NewLogger(Config{Level: tt.level})
			if !l.Enabled(context.Background(), tt.enabled) {
				t.Fatalf("expected level %v to be enabled", tt.enabled)
			}
			if l.Enabled(context.Background(), tt.muted) {
				t.Fatalf("expected level %v to be muted", tt.muted)
			}
		})
	}
}

func TestSyncErrorValuer(t *testing.T) {
	err := syncErrors.NewStorageError(syncErrors.OpEnqueue, errors.New("disk full")).
		WithMetadata("item_id", "abc")
	v := SyncErrorValuer{SyncError: err}.LogValue()

	if v.Kind() != slog.KindGroup {
		t.Fatalf("expected group value, got %v", v.Kind())
	}

	found := map[string]bool{}
	for _, attr := range v.Group() {
		found[attr.Key] = true
	}
	for _, key := range []string{"operation", "component", "code", "retryable", "error", "metadata"} {
		if !found[key] {
			t.Fatalf("missing attr %q in %v", key, v)
		}
	}
}

func TestLogOperationPropagatesError(t *testing.T) {
	l := NewLogger(Config{Level: "error"})
	want := errors.New("boom")
	got := l.LogOperation(context.Background(), Operation("sync"), Component("manager"), func() error {
		return want
	})
	if !errors.Is(got, want) {
		t.Fatalf("LogOperation error = %v, want %v", got, want)
	}

	if err := l.LogOperation(context.Background(), Operation("sync"), Component("manager"), func() error {
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDefaultIsLazy(t *testing.T) {
	defaultLogger = nil
	if Default() == nil {
		t.Fatal("expected lazily initialized default logger")
	}
}
