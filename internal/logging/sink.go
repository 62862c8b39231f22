package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Sink receives lock diagnostics. *Logger and *slog.Logger both satisfy it.
type Sink interface {
	Debug(msg string, args ...any)
}

// LineSink is a Sink that writes one plain-text line per message:
//
//	2026-10-19T10:04:05.123Z locked lock_path=/data/a.lock waited=12ms
//
// Writes are serialized so lines from concurrent sessions never interleave.
type LineSink struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// WriterSink wraps a plain writer (a file, os.Stderr, a bytes.Buffer) as a Sink.
func WriterSink(w io.Writer) *LineSink {
	return &LineSink{w: w, now: time.Now}
}

// Debug formats msg and its key-value pairs on a single line.
func (s *LineSink) Debug(msg string, args ...any) {
	var sb strings.Builder
	sb.WriteString(s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	sb.WriteByte(' ')
	sb.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		sb.WriteByte(' ')
		if i+1 >= len(args) {
			fmt.Fprintf(&sb, "!BADKEY=%v", args[i])
			break
		}
		fmt.Fprintf(&sb, "%v=%v", args[i], quoteIfNeeded(args[i+1]))
	}
	sb.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, sb.String())
}

func quoteIfNeeded(v any) any {
	str, ok := v.(string)
	if !ok {
		return v
	}
	if str == "" || strings.ContainsAny(str, " \t\n\"=") {
		return fmt.Sprintf("%q", str)
	}
	return str
}

// NewSink adapts v to a Sink by capability: anything with a Debug method is
// used as is, an io.Writer is wrapped with WriterSink. A nil v yields a Sink
// that discards everything.
func NewSink(v any) (Sink, error) {
	switch s := v.(type) {
	case nil:
		return NopLogger(), nil
	case Sink:
		return s, nil
	case io.Writer:
		return WriterSink(s), nil
	default:
		return nil, fmt.Errorf("log sink %T has neither a Debug method nor a Write method", v)
	}
}
