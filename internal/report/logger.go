// Package report implements the log half of the Logger / Reporter (C7): the
// append-only structured log both managers write. The human-readable EXEC
// report printed for each worker result is rendered by internal/fssloop.
package report

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Status is the outcome of a synchronization attempt.
type Status string

// The three outcomes a Report can carry, per spec.md §3.
const (
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusError   Status = "ERROR"
)

const timeFormat = "2006-01-02 15:04:05"

// Logger appends timestamped lines to a single append-only file. One
// Logger exists per manager process. Every append closes or flushes the
// handle so no log entry is ever lost to buffering (spec.md §4.7).
type Logger struct {
	mu   sync.Mutex
	path string
}

// Open truncates path (clean start per spec.md §6) and returns a Logger
// appending to it from then on.
func Open(path string) (*Logger, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "truncate logfile %q", path)
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrapf(err, "close logfile %q after truncate", path)
	}
	return &Logger{path: path}, nil
}

func (l *Logger) appendLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open logfile %q for append", l.path)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, line); err != nil {
		return errors.Wrapf(err, "write logfile %q", l.path)
	}
	return f.Sync()
}

// Administrative appends a line in the administrative event format:
// `[YYYY-MM-DD HH:MM:SS] <message>`.
func (l *Logger) Administrative(message string) error {
	line := fmt.Sprintf("[%s] %s", time.Now().Format(timeFormat), message)
	return l.appendLine(line)
}

// SyncOutcome appends a line in the synchronization outcome format:
// `[ts] [src] [tgt] [worker_id] [OPERATION] [RESULT] [details]`.
func (l *Logger) SyncOutcome(source, target, workerID, operation string, status Status, details string) error {
	line := fmt.Sprintf("[%s] [%s] [%s] [%s] [%s] [%s] [%s]",
		time.Now().Format(timeFormat), source, target, workerID, operation, status, details)
	return l.appendLine(line)
}

// WorkerReport appends a line in the FSS worker-result format the event
// supervisor parses back out of a child's stdout:
// `[ts] [WORKER_REPORT] [src] [tgt] [pid] [op] [status] [details]`.
func (l *Logger) WorkerReport(source, target, pid, operation string, status Status, details string) error {
	line := fmt.Sprintf("[%s] [WORKER_REPORT] [%s] [%s] [%s] [%s] [%s] [%s]",
		time.Now().Format(timeFormat), source, target, pid, operation, status, details)
	return l.appendLine(line)
}
