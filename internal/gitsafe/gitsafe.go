// Package gitsafe implements the Git Safety Layer (spec §4.C): branch
// enforcement, clone, safe push, and protected-ref refusal. It keeps the
// teacher's (internal/git) retry-on-transient-error wrapper and extends it
// with push/configure-auth logic grounded on
// original_source/shared/git.py's ensure_git_safe/push_branch.
package gitsafe

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/re-cinq/foreman/internal/ferr"
)

// Protected is the fixed set of refs agents may never commit or push to
// (spec GLOSSARY "Protected ref").
var Protected = map[string]bool{"main": true, "master": true}

// IsProtected reports whether branch is in the protected set.
func IsProtected(branch string) bool {
	return Protected[strings.ToLower(branch)]
}

const (
	retryInitialDelay = 200 * time.Millisecond
	retryMaxAttempts  = 6
	retryMultiplier   = 2
)

var transientPatterns = []string{
	"index file open failed",
	"index.lock",
	"cannot lock ref",
}

func isTransient(errMsg string) bool {
	for _, p := range transientPatterns {
		if strings.Contains(errMsg, p) {
			return true
		}
	}
	return false
}

// Repo wraps git operations for one repository, retrying transient
// lock-contention failures with exponential back-off (teacher convention).
type Repo struct {
	Dir string
}

func NewRepo(dir string) *Repo { return &Repo{Dir: dir} }

var sleepFunc = time.Sleep

func (r *Repo) run(args ...string) (string, error) {
	delay := retryInitialDelay
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		cmd := exec.Command("git", args...)
		cmd.Dir = r.Dir
		out, err := cmd.CombinedOutput()
		if err == nil {
			return strings.TrimSpace(string(out)), nil
		}
		errMsg := strings.TrimSpace(string(out))
		if !isTransient(errMsg) || attempt == retryMaxAttempts-1 {
			return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), errMsg, err)
		}
		sleepFunc(delay)
		delay *= retryMultiplier
	}
	return "", nil // unreachable
}

// CurrentBranch returns the repository's current branch name.
func (r *Repo) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// IsRepo reports whether Dir is (already) a git repository.
func (r *Repo) IsRepo() bool {
	_, err := r.run("rev-parse", "--git-dir")
	return err == nil
}

// EnsureSafe implements ensure_safe (spec §4.C): initialise the repo if
// needed, then always create and check out a new disposable branch. Must
// never leave the caller on a protected ref.
func (r *Repo) EnsureSafe(ticketOrSession string) (branch string, err error) {
	if !r.IsRepo() {
		if _, err := r.run("init"); err != nil {
			return "", fmt.Errorf("git init: %w", err)
		}
		_, _ = r.run("add", ".")
		_, _ = r.run("commit", "-m", "Initial commit")
		_, _ = r.run("branch", "-M", "main")
	}

	branch = fmt.Sprintf("agent/%s-%d", sanitizeBranchComponent(ticketOrSession), time.Now().Unix())
	if _, err := r.run("checkout", "-b", branch); err != nil {
		return "", fmt.Errorf("checking out safe branch %s: %w", branch, err)
	}
	return branch, nil
}

func sanitizeBranchComponent(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "session"
	}
	return sb.String()
}

// AssertSafe returns a Fatal error (spec invariant ii) if the current
// branch is protected.
func (r *Repo) AssertSafe() error {
	branch, err := r.CurrentBranch()
	if err != nil {
		return ferr.WrapFatal(fmt.Errorf("determining current branch: %w", err))
	}
	if IsProtected(branch) {
		return ferr.WrapFatal(fmt.Errorf("%w: on branch %q", ferr.ErrProtectedBranch, branch))
	}
	return nil
}

// Push refuses (returns failure, no network side effect) if the effective
// branch is protected; otherwise pushes with upstream tracking (spec §4.C).
func (r *Repo) Push(branch string) (bool, error) {
	if branch == "" {
		b, err := r.CurrentBranch()
		if err != nil {
			return false, fmt.Errorf("determining current branch: %w", err)
		}
		branch = b
	}
	if IsProtected(branch) {
		return false, nil
	}
	if _, err := r.run("push", "-u", "origin", branch); err != nil {
		return false, err
	}
	return true, nil
}

// ConfigureAuth installs a global insteadOf URL rewrite so outbound
// clones/pushes carry credentials without embedding them in tracked
// remotes (spec §4.C).
func (r *Repo) ConfigureAuth(token, host, user string) error {
	if host == "" {
		host = "github.com"
	}
	if user == "" {
		user = "x-access-token"
	}
	authURL := fmt.Sprintf("https://%s:%s@%s/", strings.TrimSpace(user), strings.TrimSpace(token), strings.TrimSpace(host))
	baseURL := fmt.Sprintf("https://%s/", strings.TrimSpace(host))
	_, err := r.run("config", "--global", fmt.Sprintf("url.%s.insteadOf", authURL), baseURL)
	return err
}

// Clone clones url into dest.
func (r *Repo) Clone(url, dest string) error {
	cmd := exec.Command("git", "clone", url, dest)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// RemoteURL returns the URL configured for the named remote (commonly
// "origin"), used to resolve the PR adapter's (host, owner, repo) triple.
func (r *Repo) RemoteURL(remote string) (string, error) {
	return r.run("remote", "get-url", remote)
}

// HeadCommit returns the commit hash at HEAD for a given ref.
func (r *Repo) HeadCommit(ref string) (string, error) { return r.run("rev-parse", ref) }

// BranchExists checks if a branch exists.
func (r *Repo) BranchExists(branch string) bool {
	_, err := r.run("rev-parse", "--verify", branch)
	return err == nil
}

// CreateBranch creates a new branch from a starting point.
func (r *Repo) CreateBranch(name, from string) error {
	_, err := r.run("branch", name, from)
	return err
}

// CommitsBetween returns commit hashes between two refs (exclusive of from,
// inclusive of to). If from is empty, returns all commits up to `to`.
func (r *Repo) CommitsBetween(from, to string) ([]string, error) {
	rangeSpec := to
	if from != "" {
		rangeSpec = from + ".." + to
	}
	out, err := r.run("rev-list", rangeSpec)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// HasChanges checks if there are any uncommitted changes in the worktree.
func (r *Repo) HasChanges() (bool, error) {
	out, err := r.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// StageAll stages all changes (including untracked files) in the worktree.
func (r *Repo) StageAll() error {
	_, err := r.run("add", "-A")
	return err
}

// Commit creates a commit with the given message.
func (r *Repo) Commit(message string) error {
	_, err := r.run("commit", "--no-verify", "-m", message)
	return err
}

// EnsureIdentity sets user.name/user.email locally if not already
// resolvable, preventing "Author identity unknown" errors in CI.
func (r *Repo) EnsureIdentity() {
	if _, err := r.run("config", "user.name"); err != nil {
		_, _ = r.run("config", "user.name", "foreman")
	}
	if _, err := r.run("config", "user.email"); err != nil {
		_, _ = r.run("config", "user.email", "foreman@localhost")
	}
}
