// Package session implements the Session Store (spec §4.E): durable
// per-session records under the user's data directory, process liveness
// and zombie detection, and start/stop/list/log-path operations for the
// CLI surface.
//
// Grounded on original_source/agents/session_manager.py's SessionManager
// (JSON-per-session records, pid liveness via psutil) and the teacher's
// runner.go/state.go PID-file and IsProcessAlive conventions.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/re-cinq/foreman/internal/fileutil"
)

// Type distinguishes how a session's workspace relates to the parent repo
// (spec SPEC_FULL.md additional Session fields).
type Type string

const (
	TypeDetached    Type = "detached"
	TypeInteractive Type = "interactive"
	TypeWorkspace   Type = "workspace" // cloned/worktree-isolated launch
)

// Record is the persisted state of one session (spec §6 persisted state
// layout: one JSON file per session under the sessions directory).
type Record struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PID           int       `json:"pid"`
	StartTime     time.Time `json:"start_time"`
	Command       []string  `json:"command"`
	LogFile       string    `json:"log_file"`
	WorkspacePath string    `json:"workspace_path,omitempty"`
	Type          Type      `json:"type"`
}

// Status augments a Record with the liveness computed at list/inspect time.
// Status is never persisted; it's derived fresh from the OS each call.
type Status struct {
	Record
	State string // "running", "dead"
}

// Store manages session records under a data directory and logs under a
// log directory, both XDG-aware (fileutil.UserDataDir/UserLogDir).
type Store struct {
	DataDir string
	LogsDir string
}

// Open prepares a Store rooted at the platform's standard data/log
// directories for "foreman", creating them if needed.
func Open() (*Store, error) {
	dataDir, err := fileutil.UserDataDir()
	if err != nil {
		return nil, err
	}
	sessionsDir := filepath.Join(dataDir, "sessions")
	if err := fileutil.EnsureDir(sessionsDir); err != nil {
		return nil, err
	}
	logsDir, err := fileutil.UserLogDir()
	if err != nil {
		return nil, err
	}
	if err := fileutil.EnsureDir(logsDir); err != nil {
		return nil, err
	}
	return &Store{DataDir: sessionsDir, LogsDir: logsDir}, nil
}

func (s *Store) recordPath(name string) string {
	return filepath.Join(s.DataDir, name+".json")
}

func (s *Store) logPath(name string) string {
	return filepath.Join(s.LogsDir, name+".log")
}

func (s *Store) readRecord(name string) (*Record, error) {
	data, err := os.ReadFile(s.recordPath(name))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing session record %s: %w", name, err)
	}
	return &rec, nil
}

func (s *Store) writeRecord(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.recordPath(rec.Name), data, 0o644)
}

// IsProcessAlive reports whether pid refers to a live, non-zombie process.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	return !isZombie(pid)
}

func isZombie(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false // can't tell on this platform; assume alive
	}
	// Format: "pid (comm) state ...". State is the token right after the
	// closing paren of comm, which may itself contain spaces/parens.
	if idx := strings.LastIndex(string(data), ")"); idx >= 0 && idx+2 < len(data) {
		return data[idx+2] == 'Z'
	}
	return false
}

// Start launches command as a new named session, refusing if a session by
// that name is already running. A stale record (dead pid) is reaped first.
func (s *Store) Start(name string, command []string, typ Type, workspacePath string) (*Record, error) {
	if existing, err := s.readRecord(name); err == nil {
		if IsProcessAlive(existing.PID) {
			return nil, fmt.Errorf("session %q is already running (pid %d)", name, existing.PID)
		}
		_ = os.Remove(s.recordPath(name))
	}

	logFile := s.logPath(name)
	f, err := os.Create(logFile)
	if err != nil {
		return nil, fmt.Errorf("creating session log: %w", err)
	}
	defer f.Close()

	rec := &Record{
		ID:            uuid.NewString(),
		Name:          name,
		Command:       command,
		StartTime:     time.Now(),
		LogFile:       logFile,
		WorkspacePath: workspacePath,
		Type:          typ,
	}
	return rec, nil
}

// Attach records the pid of an already-spawned process against a session
// that Start prepared, persisting the record. Split from Start so the
// caller retains control of process creation (detached vs. foreground).
func (s *Store) Attach(rec *Record, pid int) error {
	rec.PID = pid
	return s.writeRecord(rec)
}

// List returns every known session with its liveness freshly computed.
func (s *Store) List() ([]Status, error) {
	entries, err := os.ReadDir(s.DataDir)
	if err != nil {
		return nil, fmt.Errorf("reading sessions dir: %w", err)
	}

	var out []Status
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		rec, err := s.readRecord(name)
		if err != nil {
			continue
		}
		state := "dead"
		if IsProcessAlive(rec.PID) {
			state = "running"
		}
		out = append(out, Status{Record: *rec, State: state})
	}
	return out, nil
}

// Get returns a single session's status by name.
func (s *Store) Get(name string) (*Status, error) {
	rec, err := s.readRecord(name)
	if err != nil {
		return nil, fmt.Errorf("session %q not found", name)
	}
	state := "dead"
	if IsProcessAlive(rec.PID) {
		state = "running"
	}
	return &Status{Record: *rec, State: state}, nil
}

// Stop terminates a session's process (SIGTERM, escalating to SIGKILL
// after a 5s grace period per the spec's process-lifecycle convention
// shared with the Agent Loop's backend timeout handling) and removes its
// record.
func (s *Store) Stop(name string) error {
	rec, err := s.readRecord(name)
	if err != nil {
		return fmt.Errorf("session %q not found", name)
	}

	if IsProcessAlive(rec.PID) {
		proc, err := os.FindProcess(rec.PID)
		if err == nil {
			_ = proc.Signal(syscall.SIGTERM)
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				if !IsProcessAlive(rec.PID) {
					break
				}
				time.Sleep(100 * time.Millisecond)
			}
			if IsProcessAlive(rec.PID) {
				_ = proc.Signal(syscall.SIGKILL)
			}
		}
	}

	return os.Remove(s.recordPath(name))
}

// LogPath returns the log file path for a session, for `foreman logs`/`attach`.
func (s *Store) LogPath(name string) (string, error) {
	rec, err := s.readRecord(name)
	if err != nil {
		return "", fmt.Errorf("session %q not found", name)
	}
	return rec.LogFile, nil
}
