package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLineSink_Format(t *testing.T) {
	var buf bytes.Buffer
	sink := WriterSink(&buf)
	sink.now = func() time.Time { return time.Date(2026, 10, 19, 10, 4, 5, 0, time.UTC) }

	sink.Debug("still waiting", "lock_path", "/tmp/a b.lock", "attempts", 200, "dangling")

	want := `2026-10-19T10:04:05.000Z still waiting lock_path="/tmp/a b.lock" attempts=200 !BADKEY=dangling` + "\n"
	if got := buf.String(); got != want {
		t.Errorf("Debug() wrote %q, want %q", got, want)
	}
}

func TestLineSink_ConcurrentLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	sink := WriterSink(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sink.Debug("locked", "worker", n)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 400 {
		t.Fatalf("expected 400 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.Contains(line, " locked worker=") {
			t.Errorf("malformed line %q", line)
		}
	}
}

func TestNewSink(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		name    string
		input   any
		wantErr bool
	}{
		{"nil discards", nil, false},
		{"logger", NopLogger(), false},
		{"slog logger", slog.New(slog.NewTextHandler(&buf, nil)), false},
		{"writer", &buf, false},
		{"unsupported", 42, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSink(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unsupported sink")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSink() error = %v", err)
			}
			if sink == nil {
				t.Fatal("NewSink() returned nil sink")
			}
			sink.Debug("probe")
		})
	}
}

func TestNewSink_WriterReceivesLines(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewSink(&buf)
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}

	sink.Debug("unlocked", "held", "5ms")
	if !strings.Contains(buf.String(), "unlocked held=5ms") {
		t.Errorf("writer sink output = %q", buf.String())
	}
}
