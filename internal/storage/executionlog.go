package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel is the severity of an execution log line.
type LogLevel string

const (
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// ExecutionLog is the append-only plain-text audit trail of the workflow.
// Lines are never rewritten.
type ExecutionLog struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewExecutionLog creates an ExecutionLog that appends to path.
func NewExecutionLog(path string) (*ExecutionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating execution log dir: %w", err)
	}
	return &ExecutionLog{path: path, now: time.Now}, nil
}

// Path returns the file backing this log.
func (l *ExecutionLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// SetClock replaces the clock used for line timestamps.
func (l *ExecutionLog) SetClock(now func() time.Time) {
	l.now = now
}

// Append writes one timestamped line. Embedded newlines are flattened so each
// event stays on a single line.
func (l *ExecutionLog) Append(level LogLevel, message string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := strings.Join(strings.Fields(message), " ")
	line := fmt.Sprintf("%s %-5s %s\n", l.now().UTC().Format(time.RFC3339), string(level), msg)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return fmt.Errorf("opening execution log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("appending to execution log: %w", err)
	}
	return nil
}

// Tail returns up to maxLines of the most recent lines.
func (l *ExecutionLog) Tail(maxLines int) ([]string, error) {
	if l == nil || maxLines <= 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening execution log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning execution log: %w", err)
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}
