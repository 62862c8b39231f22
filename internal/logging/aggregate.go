package logging

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LogEntry is one parsed line of a JSON diagnostics log.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	LockPath  string         `json:"lock_path,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects entries. Zero fields match everything.
type LogFilter struct {
	// Level keeps entries at or above this level (DEBUG < INFO < WARN < ERROR).
	Level string

	StartTime time.Time
	EndTime   time.Time

	// LockPath keeps entries about this lock file only.
	LockPath string

	// Pattern is matched against the message and the rendered attributes.
	Pattern *regexp.Regexp
}

// LogFiles returns the rotated backups of path, oldest first, followed by
// path itself. Files that do not exist are left out.
func LogFiles(path string) []string {
	type backup struct {
		n    int
		name string
	}

	matches, _ := filepath.Glob(path + ".*")
	var backups []backup
	for _, m := range matches {
		suffix := strings.TrimSuffix(strings.TrimPrefix(m, path+"."), ".gz")
		n, err := strconv.Atoi(suffix)
		if err != nil || n < 1 {
			continue
		}
		backups = append(backups, backup{n: n, name: m})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].n > backups[j].n })

	files := make([]string, 0, len(backups)+1)
	for _, b := range backups {
		files = append(files, b.name)
	}
	if _, err := os.Stat(path); err == nil {
		files = append(files, path)
	}
	return files
}

// AggregateLogs reads path and its rotated backups (compressed or not) and
// returns every parseable entry ordered by time. Lines that are not JSON
// are skipped.
func AggregateLogs(path string) ([]LogEntry, error) {
	files := LogFiles(path)
	if len(files) == 0 {
		return nil, fmt.Errorf("no log file at %s", path)
	}

	var entries []LogEntry
	for _, name := range files {
		fileEntries, err := readLogFile(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func readLogFile(name string) ([]LogEntry, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(name, ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", name, err)
		}
		defer zr.Close()
		r = zr
	}

	var entries []LogEntry
	scanner := bufio.NewScanner(r)
	// Long lines carry lock file snapshots.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", name, err)
	}
	return entries, nil
}

// parseLogEntry decodes one JSON line. Keys other than the known ones end
// up in Attrs.
func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, err
	}

	var entry LogEntry
	if s, ok := raw["time"].(string); ok {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return LogEntry{}, fmt.Errorf("invalid time %q: %w", s, err)
		}
		entry.Timestamp = ts
	}
	entry.Level, _ = raw["level"].(string)
	entry.Message, _ = raw["msg"].(string)
	entry.LockPath, _ = raw["lock_path"].(string)
	entry.SessionID, _ = raw["session_id"].(string)

	for _, k := range []string{"time", "level", "msg", "lock_path", "session_id"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		entry.Attrs = raw
	}
	return entry, nil
}

// FilterLogs returns the entries matching filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	var out []LogEntry
	for _, e := range entries {
		if matchesFilter(e, filter) {
			out = append(out, e)
		}
	}
	return out
}

func matchesFilter(entry LogEntry, filter LogFilter) bool {
	if filter.Level != "" && levelPriority(entry.Level) < levelPriority(ParseLevel(filter.Level)) {
		return false
	}
	if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
		return false
	}
	if filter.LockPath != "" && entry.LockPath != filter.LockPath {
		return false
	}
	if filter.Pattern != nil && !filter.Pattern.MatchString(entry.Message+" "+formatAttrs(entry.Attrs)) {
		return false
	}
	return true
}

func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return -1
	}
}

// ExportLogEntries writes entries to w as "text", "json" or "csv".
func ExportLogEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		return exportText(w, entries)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case "csv":
		return exportCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// exportText writes one line per entry:
//
//	10:04:05.000 DEBUG locked lock_path=/tmp/data.lock waited=0s
func exportText(w io.Writer, entries []LogEntry) error {
	for _, entry := range entries {
		parts := []string{entry.Timestamp.Local().Format("15:04:05.000"), entry.Level, entry.Message}
		if entry.LockPath != "" {
			parts = append(parts, "lock_path="+entry.LockPath)
		}
		if entry.SessionID != "" {
			parts = append(parts, "session_id="+entry.SessionID)
		}
		if attrs := formatAttrs(entry.Attrs); attrs != "" {
			parts = append(parts, attrs)
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func exportCSV(w io.Writer, entries []LogEntry) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"timestamp", "level", "message", "lock_path", "session_id", "attrs"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, entry := range entries {
		attrsJSON := ""
		if len(entry.Attrs) > 0 {
			if b, err := json.Marshal(entry.Attrs); err == nil {
				attrsJSON = string(b)
			}
		}
		record := []string{
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Level,
			entry.Message,
			entry.LockPath,
			entry.SessionID,
			attrsJSON,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// formatAttrs renders attributes as sorted key=value pairs.
func formatAttrs(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, attrs[k])
	}
	return strings.Join(parts, " ")
}
