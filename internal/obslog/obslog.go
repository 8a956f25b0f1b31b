// Package obslog provides a per-Session log writer. Detergent's original
// LogManager kept a process-wide map of open file handles; foreman inverts
// that into an explicit handle threaded through Session construction (spec
// §9 "Global state"), with a no-op Logger usable in tests that never touch
// disk.
package obslog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger is a Session's log sink: a stdout tee plus a backing file,
// mirroring the teacher's LogManager.getLogFile behaviour but scoped to one
// Session instead of a shared map.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	std    *log.Logger
	path   string
	silent bool
}

// Open creates (or appends to) the log file at path and returns a Logger
// that tees to both the file and os.Stdout.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return &Logger{
		file: f,
		std:  log.New(io.MultiWriter(os.Stdout, f), "", log.LstdFlags),
		path: path,
	}, nil
}

// Discard returns a Logger that drops everything; used by tests and by
// Mock-backend dry runs that have no project directory yet.
func Discard() *Logger {
	return &Logger{std: log.New(io.Discard, "", 0), silent: true}
}

// Path returns the backing file path, or "" for a discard Logger.
func (l *Logger) Path() string {
	if l.silent {
		return ""
	}
	return l.path
}

// Infof logs an informational line.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.std.Printf("[info] "+format, args...)
}

// Warnf logs a warning line. Warnings are never fatal to the Agent Loop.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.std.Printf("[warn] "+format, args...)
}

// Errorf logs an error line.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.std.Printf("[error] "+format, args...)
}

// Writer exposes the Logger's backing file as an io.Writer (bytes written
// to it go to the file only, not to stdout), for callers that want to
// forward raw subprocess bytes.
func (l *Logger) Writer() io.Writer {
	if l.silent {
		return io.Discard
	}
	return l.file
}

// Close closes the backing file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
