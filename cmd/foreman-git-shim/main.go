// Command foreman-git-shim is the optional binary-shim mode of the Git
// Safety Layer (spec §4.C "Wrapper mode"): installed onto a session's
// filtered PATH ahead of the real git binary, it inspects `push` invocations
// against the protected-branch set and refuses them before delegating.
// The agent cannot bypass this by spawning shells because the shim replaces
// the binary on PATH.
//
// Grounded on original_source/shared/git_wrapper.py's git.real delegation
// trick, reworked with syscall.Exec instead of os.execvp.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/re-cinq/foreman/internal/gitsafe"
)

// realGitEnv names the environment variable carrying the path to the real
// git binary the shim delegates to, set by the launcher that installs it.
const realGitEnv = "FOREMAN_GIT_REAL"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 && args[0] == "push" {
		if blocked, reason := blockedPush(args); blocked {
			fmt.Fprintln(os.Stderr, "FAILED:", reason)
			fmt.Fprintln(os.Stderr, "Agents are not allowed to push to protected branches.")
			return 1
		}
	}

	real := os.Getenv(realGitEnv)
	if real == "" {
		var err error
		real, err = exec.LookPath("git.real")
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error: real git binary not found; git shim is not correctly installed.")
			return 1
		}
	}

	argv := append([]string{real}, args...)
	if err := syscall.Exec(real, argv, os.Environ()); err != nil {
		fmt.Fprintln(os.Stderr, "Error: exec real git:", err)
		return 1
	}
	return 0 // unreachable on success
}

func blockedPush(args []string) (bool, string) {
	for _, a := range args {
		if gitsafe.IsProtected(a) {
			return true, fmt.Sprintf("explicitly pushing to protected branch %q is forbidden", a)
		}
	}

	current := currentBranch()
	if !gitsafe.IsProtected(current) {
		return false, ""
	}

	hasBranchArg := false
	for _, a := range args[1:] {
		if !strings.HasPrefix(a, "-") && a != "origin" {
			hasBranchArg = true
			break
		}
	}
	if hasBranchArg {
		return false, ""
	}
	return true, fmt.Sprintf("attempting to push from protected branch %q is forbidden", current)
}

func currentBranch() string {
	real := os.Getenv(realGitEnv)
	if real == "" {
		real = "git.real"
	}
	out, err := exec.Command(real, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
