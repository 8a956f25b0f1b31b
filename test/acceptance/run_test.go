package acceptance_test

import (
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("foreman run", func() {
	var tmpDir, repoDir, configPath string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "foreman-acceptance-*")
		Expect(err).NotTo(HaveOccurred())
		repoDir = filepath.Join(tmpDir, "repo")
		initTestRepo(repoDir)

		configPath = filepath.Join(repoDir, "agent_config.yaml")
	})

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	// Scenario 1 (spec §8): fresh initialisation. A sh-scripted "backend"
	// writes feature_list.json on its first invocation and nothing on its
	// second; the session runs two iterations. This spec checks that
	// feature_list.json and .agent_state.json exist afterwards.
	It("runs a fresh session to max_iterations and persists state", func() {
		script := filepath.Join(repoDir, "fake-agent.sh")
		writeFile(script, `#!/bin/sh
if [ -f feature_list.json ]; then
  exit 0
fi
echo '[]' > feature_list.json
`)
		Expect(os.Chmod(script, 0o755)).To(Succeed())

		writeFile(configPath, `
backend:
  kind: cli
  command: sh
  args: ["`+script+`"]
settings:
  max_iterations: 2
  manager_frequency: 5
  max_consecutive_errors: 3
`)

		// --skip-checks creates no branch and still refuses main, so work
		// on a disposable branch prepared here.
		runGit(repoDir, "checkout", "-q", "-b", "work")

		cmd := exec.Command(binaryPath, "--config", configPath, "run", "--skip-checks")
		cmd.Dir = repoDir
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(output))

		Expect(filepath.Join(repoDir, "feature_list.json")).To(BeAnExistingFile())
		Expect(filepath.Join(repoDir, ".agent_state.json")).To(BeAnExistingFile())
	})

	// Scenario 4 (spec §8): push refusal / branch safety. Running without
	// --skip-checks on a freshly initialised repo (on "main") must move the
	// session onto a disposable, non-protected branch before any backend
	// invocation happens.
	It("moves off a protected branch before running the backend", func() {
		writeFile(configPath, `
backend:
  kind: cli
  command: sh
  args: ["-c", "exit 0"]
settings:
  max_iterations: 1
  manager_frequency: 5
  max_consecutive_errors: 3
`)

		cmd := exec.Command(binaryPath, "--config", configPath, "run", "--name", "safety-check")
		cmd.Dir = repoDir
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(output))

		branchCmd := exec.Command("git", "-C", repoDir, "rev-parse", "--abbrev-ref", "HEAD")
		out, err := branchCmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		branch := string(out)
		Expect(branch).NotTo(ContainSubstring("main"))
	})
})

var _ = Describe("foreman validate", func() {
	It("reports a valid config as valid", func() {
		tmpDir, err := os.MkdirTemp("", "foreman-validate-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(tmpDir)

		configPath := filepath.Join(tmpDir, "agent_config.yaml")
		writeFile(configPath, `
backend:
  kind: mock
settings:
  max_iterations: 1
  manager_frequency: 1
  max_consecutive_errors: 3
`)

		cmd := exec.Command(binaryPath, "--config", configPath, "validate")
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(output))
	})

	It("rejects an unknown backend kind", func() {
		tmpDir, err := os.MkdirTemp("", "foreman-validate-bad-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(tmpDir)

		configPath := filepath.Join(tmpDir, "agent_config.yaml")
		writeFile(configPath, `
backend:
  kind: telepathy
settings:
  max_iterations: 1
  manager_frequency: 1
  max_consecutive_errors: 3
`)

		cmd := exec.Command(binaryPath, "--config", configPath, "validate")
		_, err = cmd.CombinedOutput()
		Expect(err).To(HaveOccurred())
	})
})
