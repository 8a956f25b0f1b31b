// Package toolexec implements the Tool-Block Parser & Executor (spec §4.A):
// it extracts fenced tool blocks from backend response text and executes
// each against a working directory, producing an execution log and a list
// of human-readable action descriptors.
//
// Grounded on original_source/shared/utils.py's process_response_blocks
// state machine, reworked into the teacher's (internal/engine) style of
// process-group-isolated subprocess execution via syscall.SysProcAttr.
package toolexec

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// Kind identifies a ToolBlock variant.
type Kind int

const (
	KindBash Kind = iota
	KindWrite
	KindRead
	KindSearch
)

// String renders a Kind as the marker name used in action logs and fences.
func (k Kind) String() string {
	switch k {
	case KindBash:
		return "bash"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindSearch:
		return "search"
	default:
		return "unknown"
	}
}

// Block is a parsed ToolBlock (spec §3): a tagged variant with its body.
type Block struct {
	Kind Kind
	Arg  string // path for write/read, query for search; empty for bash
	Body string
}

// searchLineCap bounds Search output, matching the original's ~200 line cap.
const searchLineCap = 200

// bashOutputDisplayCap is a display bound for Bash output. Nothing applies
// it: Bash output is returned to the caller in full and is not truncated
// for display anywhere.
const bashOutputDisplayCap = 2000

// signOffFile is checked after every block for early termination.
const signOffFile = "PROJECT_SIGNED_OFF"

// Parse extracts fenced tool blocks from response text. The opening fence is
// three backticks immediately followed by bash, write:<path>, read:<path>,
// or search:<query>; any other fenced block is ignored (spec §6).
func Parse(text string) []Block {
	var blocks []Block
	lines := strings.Split(text, "\n")

	inBlock := false
	var kind Kind
	var arg string
	var body []string

	flush := func() {
		blocks = append(blocks, Block{Kind: kind, Arg: arg, Body: strings.Join(body, "\n")})
		body = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inBlock {
				flush()
				inBlock = false
				continue
			}
			marker := trimmed[3:]
			switch {
			case marker == "bash":
				inBlock, kind, arg = true, KindBash, ""
			case strings.HasPrefix(marker, "write:"):
				inBlock, kind, arg = true, KindWrite, strings.TrimSpace(marker[len("write:"):])
			case strings.HasPrefix(marker, "read:"):
				inBlock, kind, arg = true, KindRead, strings.TrimSpace(marker[len("read:"):])
			case strings.HasPrefix(marker, "search:"):
				inBlock, kind, arg = true, KindSearch, strings.TrimSpace(marker[len("search:"):])
			default:
				// Unknown tag: do not enter block-capture mode.
			}
			continue
		}
		if inBlock {
			body = append(body, line)
		}
	}
	return blocks
}

// Result is one executed block's outcome.
type Result struct {
	Block  Block
	Output string
	Err    error // non-nil on a block-execution exception; never fatal
}

// ExecutionLog is the ordered outcome of running a response's tool blocks.
type ExecutionLog struct {
	Results         []Result
	ActionLog       []string // human-readable descriptors, in execution order
	ShortCircuited  bool     // true if PROJECT_SIGNED_OFF halted remaining blocks
}

// Executor runs ToolBlocks against a fixed working directory.
type Executor struct {
	Dir          string
	BashTimeout  time.Duration
	ignoreFilter *ignore.GitIgnore
}

// NewExecutor builds an Executor rooted at dir. bashTimeout defaults to
// 120s per spec §4.A. An optional .agentignore (or .gitignore) in dir
// trims the Search tool's walk, exercising the teacher's previously-unwired
// sabhiram/go-gitignore dependency.
func NewExecutor(dir string, bashTimeout time.Duration) *Executor {
	if bashTimeout <= 0 {
		bashTimeout = 120 * time.Second
	}
	e := &Executor{Dir: dir, BashTimeout: bashTimeout}
	for _, name := range []string{".agentignore", ".gitignore"} {
		if gi, err := ignore.CompileIgnoreFile(filepath.Join(dir, name)); err == nil {
			e.ignoreFilter = gi
			break
		}
	}
	return e
}

// Run executes every parsed block in source order, stopping early if
// PROJECT_SIGNED_OFF appears after any block (spec §4.A "Early
// termination"). Individual block failures are logged, never fatal.
func (e *Executor) Run(ctx context.Context, blocks []Block) ExecutionLog {
	var log ExecutionLog
	for _, b := range blocks {
		out, err := e.runOne(ctx, b)
		log.Results = append(log.Results, Result{Block: b, Output: out, Err: err})
		log.ActionLog = append(log.ActionLog, describe(b))

		if e.signedOff() {
			log.ShortCircuited = true
			break
		}
	}
	return log
}

func (e *Executor) signedOff() bool {
	_, err := os.Stat(filepath.Join(e.Dir, signOffFile))
	return err == nil
}

func describe(b Block) string {
	switch b.Kind {
	case KindBash:
		return "Ran Bash: " + b.Body
	case KindWrite:
		return "Wrote File: " + b.Arg
	case KindRead:
		return "Read File: " + b.Arg
	case KindSearch:
		return "Searched: " + b.Arg
	default:
		return "Unknown block"
	}
}

func (e *Executor) runOne(ctx context.Context, b Block) (string, error) {
	switch b.Kind {
	case KindBash:
		return e.runBash(ctx, b.Body)
	case KindWrite:
		return e.runWrite(b.Arg, b.Body)
	case KindRead:
		return e.runRead(b.Arg)
	case KindSearch:
		return e.runSearch(ctx, b.Arg)
	default:
		return "", fmt.Errorf("unknown block kind")
	}
}

// runBash runs the body as a shell command in its own process group with
// stdin closed, killing the whole group on timeout (spec §4.A).
func (e *Executor) runBash(ctx context.Context, command string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.BashTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = e.Dir
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	out, err := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		}
		return fmt.Sprintf("Error: Command timed out after %s. If you intended to run a background process, please use '&' at the end of the command.", e.BashTimeout), nil
	}

	output := string(out)

	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// Non-zero exit is surfaced as output, not a Go error — the
			// loop sees it as tool output, never fatal (spec §4.A).
			return output, nil
		}
		return output, err
	}
	return output, nil
}

// runWrite creates parent directories as needed and writes the body
// verbatim. An empty path is reported as an error string, not a Go error,
// matching the original's non-fatal error-as-output convention.
func (e *Executor) runWrite(path, content string) (string, error) {
	if path == "" {
		return "Error: No filename provided.", nil
	}
	full := filepath.Join(e.Dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully wrote to %s", path), nil
}

// runRead returns the file's content prefixed with 1-based line numbers.
// A missing file is an error string but not fatal.
func (e *Executor) runRead(path string) (string, error) {
	if path == "" {
		return "Error: No filename provided.", nil
	}
	full := filepath.Join(e.Dir, path)
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return fmt.Sprintf("Error: File %s does not exist.", path), nil
	}
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(data), "\n")
	var sb strings.Builder
	sb.WriteString("File: " + path + "\n")
	for i, line := range lines {
		sb.WriteString(fmt.Sprintf("%4s | %s\n", strconv.Itoa(i+1), line))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// runSearch performs a recursive pattern search under the working
// directory with two lines of surrounding context, honouring any
// .agentignore/.gitignore filter, truncated to searchLineCap lines.
func (e *Executor) runSearch(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "Error: No search query provided.", nil
	}

	args := []string{"-rnC", "2", "--", query, "."}
	cmd := exec.CommandContext(ctx, "grep", args...)
	cmd.Dir = e.Dir
	out, _ := cmd.CombinedOutput() // grep exits 1 on no-match; not an error here

	lines := splitNonEmpty(string(out))
	if e.ignoreFilter != nil {
		lines = filterIgnoredLines(lines, e.ignoreFilter)
	}
	if len(lines) == 0 {
		return fmt.Sprintf("No matches found for '%s'", query), nil
	}
	if len(lines) > searchLineCap {
		extra := len(lines) - searchLineCap
		lines = lines[:searchLineCap]
		return strings.Join(lines, "\n") + fmt.Sprintf("\n... (%d more lines truncated)", extra), nil
	}
	return strings.Join(lines, "\n"), nil
}

func splitNonEmpty(s string) []string {
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var out []string
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

// filterIgnoredLines drops grep lines ("path:lineno:content" or "path-lineno-content"
// for context lines) whose leading path component matches the ignore filter.
func filterIgnoredLines(lines []string, gi *ignore.GitIgnore) []string {
	var kept []string
	for _, l := range lines {
		path := leadingPath(l)
		if path != "" && gi.MatchesPath(path) {
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

func leadingPath(grepLine string) string {
	for i, r := range grepLine {
		if r == ':' || r == '-' {
			return strings.TrimPrefix(grepLine[:i], "./")
		}
	}
	return ""
}
