package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// CLI invokes an external binary with Args, feeding the prompt via stdin
// (it is not appended as a command-line argument), and reads its combined
// stdout/stderr through a PTY so line-buffered agents behave predictably.
type CLI struct {
	Command string
	Args    []string
	Timeout time.Duration // activity-based timeout base; default 120s
	ExtraEnv []string
}

// activityPollInterval is how often the drain loop checks for new bytes,
// per spec §4.B's "wait up to 5s for any byte" rule.
const activityPollInterval = 5 * time.Second

// fileActivityExtension is how long the deadline is pushed out when the
// project directory shows recent file activity instead of stream activity.
const fileActivityExtension = 60 * time.Second

func (c *CLI) Run(ctx context.Context, prompt, cwd string, status StatusFunc) (Result, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	if _, err := exec.LookPath(c.Command); err != nil {
		if !filepath.IsAbs(c.Command) {
			return Result{}, fmt.Errorf("%w: %s", ErrBackendMissing, c.Command)
		}
		if _, statErr := os.Stat(c.Command); statErr != nil {
			return Result{}, fmt.Errorf("%w: %s", ErrBackendMissing, c.Command)
		}
	}

	args := append(append([]string{}, c.Args...))
	cmd := exec.Command(c.Command, args...)
	cmd.Dir = cwd
	cmd.Env = FilterEnv(c.ExtraEnv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	ptmx, pts, err := pty.Open()
	if err != nil {
		return Result{}, fmt.Errorf("opening pty: %w", err)
	}
	defer ptmx.Close()

	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = pts
	cmd.Stderr = pts

	if err := cmd.Start(); err != nil {
		pts.Close()
		return Result{}, fmt.Errorf("starting backend: %w", err)
	}
	pts.Close()

	var mu sync.Mutex
	var buf strings.Builder
	activity := make(chan struct{}, 1)
	done := make(chan error, 1)

	go func() {
		sc := bufio.NewScanner(ptmx)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			mu.Lock()
			buf.WriteString(line)
			buf.WriteString("\n")
			mu.Unlock()
			if status != nil {
				status(line)
			}
			select {
			case activity <- struct{}{}:
			default:
			}
		}
	}()

	go func() { done <- cmd.Wait() }()

	deadline := time.Now().Add(timeout)
	var waitErr error
loop:
	for {
		select {
		case <-ctx.Done():
			killGroup(cmd)
			<-done
			return Result{}, ctx.Err()
		case waitErr = <-done:
			break loop
		case <-activity:
			deadline = time.Now().Add(timeout)
		case <-time.After(activityPollInterval):
			if time.Now().Before(deadline) {
				continue
			}
			if hasRecentActivity(cwd, fileActivityExtension) {
				if status != nil {
					status("Waiting (file activity detected)...")
				}
				deadline = time.Now().Add(fileActivityExtension)
				continue
			}
			killGroup(cmd)
			<-done
			return Result{}, fmt.Errorf("backend: timed out after %s with no stream or file activity", timeout)
		}
	}

	mu.Lock()
	content := strings.TrimSpace(buf.String())
	mu.Unlock()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code := exitErr.ExitCode()
			if code == 143 || code == -15 {
				return Result{Content: content}, fmt.Errorf("backend received SIGTERM (exit 143), possible OOM or external termination: %s", systemHealth())
			}
			return Result{Content: content}, fmt.Errorf("backend exited with code %d", code)
		}
		return Result{Content: content}, waitErr
	}

	return Result{Content: content}, nil
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// hasRecentActivity reports whether any file under dir was modified within
// the last `within` duration, skipping .git (spec §4.B file-activity check).
func hasRecentActivity(dir string, within time.Duration) bool {
	cutoff := time.Now().Add(-within)
	found := false
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if found {
			return io.EOF
		}
		if err != nil {
			return nil
		}
		if info.IsDir() && info.Name() == ".git" {
			return filepath.SkipDir
		}
		if !info.IsDir() && info.ModTime().After(cutoff) {
			found = true
		}
		return nil
	})
	return found
}

// systemHealth returns a best-effort one-line memory/load snapshot for
// post-mortem logging on SIGTERM, grounded on
// original_source/shared/utils.py's log_system_health.
func systemHealth() string {
	var ld [3]float64
	if data, err := os.ReadFile("/proc/loadavg"); err == nil {
		fmt.Sscanf(string(data), "%f %f %f", &ld[0], &ld[1], &ld[2])
	}
	memAvailable := "unknown"
	if data, err := os.ReadFile("/proc/meminfo"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "MemAvailable:") {
				memAvailable = strings.Join(strings.Fields(strings.TrimPrefix(line, "MemAvailable:")), " ")
				break
			}
		}
	}
	return fmt.Sprintf("loadavg=%.2f,%.2f,%.2f mem_available=%s", ld[0], ld[1], ld[2], memAvailable)
}
