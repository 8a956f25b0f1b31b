// Package acceptance_test drives the compiled foreman binary as a black box,
// covering the end-to-end scenarios of spec §8 that unit tests can't reach
// (real git repositories, real subprocess backends, the actual CLI surface).
package acceptance_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var binaryPath string

func TestAcceptance(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Acceptance Suite")
}

var _ = BeforeSuite(func() {
	_, thisFile, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	binaryPath = filepath.Join(projectRoot, "bin", "foreman-test")

	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/foreman")
	cmd.Dir = projectRoot
	cmd.Env = append(cmd.Environ(), "CGO_ENABLED=0")
	output, err := cmd.CombinedOutput()
	Expect(err).NotTo(HaveOccurred(), "failed to build binary: %s", string(output))
})

// runGit runs a git subcommand in dir, failing the spec on error.
func runGit(dir string, args ...string) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	Expect(err).NotTo(HaveOccurred(), "git %v: %s", args, string(out))
}

// writeFile writes content to path, creating parent directories as needed.
func writeFile(path, content string) {
	Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
}

// initTestRepo creates a fresh git repository with one commit on main.
func initTestRepo(repoDir string) {
	Expect(os.MkdirAll(repoDir, 0o755)).To(Succeed())
	runGit(repoDir, "init", "-q", "-b", "main")
	runGit(repoDir, "config", "user.email", "acceptance@example.com")
	runGit(repoDir, "config", "user.name", "acceptance")
	writeFile(filepath.Join(repoDir, "README.md"), "hello\n")
	runGit(repoDir, "add", ".")
	runGit(repoDir, "commit", "-q", "-m", "initial commit")
}

// cleanupTestRepo prunes worktrees and removes the temporary directory.
func cleanupTestRepo(repoDir, tmpDir string) {
	exec.Command("git", "-C", repoDir, "worktree", "prune").Run()
	os.RemoveAll(tmpDir)
}
