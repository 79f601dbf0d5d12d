//go:build e2e

package e2e

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fspecPath returns the path to the fspec binary.
func fspecPath() string {
	// Get absolute path from environment if set (for CI)
	if p := os.Getenv("FSPEC_PATH"); p != "" && fileExists(p) {
		return p
	}

	// Find from current working directory (assumes running from project root via make)
	if p := filepath.Join("bin", "fspec"); fileExists(p) {
		return p
	}

	// Find relative to test file location (when running tests directly)
	testDir, _ := os.Getwd()
	projectRoot := filepath.Join(testDir, "..", "..")
	if p := filepath.Join(projectRoot, "bin", "fspec"); fileExists(p) {
		absPath, _ := filepath.Abs(p)
		return absPath
	}

	// Fallback to PATH
	return "fspec"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// runFspec executes fspec with the given arguments.
func runFspec(t *testing.T, workDir string, args ...string) (string, string, int) {
	t.Helper()

	cmd := exec.Command(fspecPath(), args...)
	cmd.Dir = workDir
	// Keep the test hermetic: ignore the developer's own config and env.
	cmd.Env = append(os.Environ(), "HOME="+workDir)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			t.Fatalf("failed to run fspec: %v", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode
}

// TestCLI_InitAddLifecycle walks a work unit through the full lifecycle.
func TestCLI_InitAddLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	workDir := t.TempDir()

	stdout, stderr, exitCode := runFspec(t, workDir, "init", "--project", "e2e")
	require.Equal(t, 0, exitCode, "init failed: %s", stderr)
	assert.Contains(t, stdout, "Initialized")
	assert.FileExists(t, filepath.Join(workDir, "spec", "work-units.json"))
	assert.FileExists(t, filepath.Join(workDir, "spec", "project.json"))

	_, stderr, exitCode = runFspec(t, workDir, "add", "WU-auth", "--title", "Auth flow")
	require.Equal(t, 0, exitCode, "add failed: %s", stderr)

	_, _, exitCode = runFspec(t, workDir, "start", "WU-auth")
	require.Equal(t, 0, exitCode)

	_, _, exitCode = runFspec(t, workDir, "done", "WU-auth")
	require.Equal(t, 0, exitCode)

	stdout, _, exitCode = runFspec(t, workDir, "show", "WU-auth", "-o", "json")
	require.Equal(t, 0, exitCode)

	var unit struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &unit))
	assert.Equal(t, "WU-auth", unit.ID)
	assert.Equal(t, "done", unit.Status)
}

// TestCLI_ExitCodes verifies the validation/conflict/write exit code split.
func TestCLI_ExitCodes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	workDir := t.TempDir()

	_, _, exitCode := runFspec(t, workDir, "init")
	require.Equal(t, 0, exitCode)

	// Invalid ID format -> validation
	_, stderr, exitCode := runFspec(t, workDir, "add", "BAD-ID", "--title", "x")
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "WU-")

	// Duplicate ID -> conflict
	_, _, exitCode = runFspec(t, workDir, "add", "WU-dup", "--title", "x")
	require.Equal(t, 0, exitCode)
	_, _, exitCode = runFspec(t, workDir, "add", "WU-dup", "--title", "x")
	assert.Equal(t, 2, exitCode)

	// Disallowed transition -> conflict
	_, _, exitCode = runFspec(t, workDir, "done", "WU-dup")
	assert.Equal(t, 2, exitCode)

	// Unknown ID -> validation
	_, _, exitCode = runFspec(t, workDir, "start", "WU-missing")
	assert.Equal(t, 1, exitCode)
}

// TestCLI_ConcurrentProcesses adds units from multiple processes at once and
// verifies none of the adds is lost.
func TestCLI_ConcurrentProcesses(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	workDir := t.TempDir()

	_, _, exitCode := runFspec(t, workDir, "init")
	require.Equal(t, 0, exitCode)

	const procs = 8
	ids := make([]string, procs)
	var wg sync.WaitGroup
	codes := make([]int, procs)
	for i := range ids {
		ids[i] = "WU-proc-" + string(rune('a'+i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, codes[i] = runFspec(t, workDir, "add", ids[i], "--title", "concurrent")
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, 0, code, "add %s failed", ids[i])
	}

	stdout, _, exitCode := runFspec(t, workDir, "list", "-o", "json")
	require.Equal(t, 0, exitCode)

	var units []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &units))
	require.Len(t, units, procs)
}

// TestCLI_InitDemo seeds generated work units.
func TestCLI_InitDemo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	workDir := t.TempDir()

	stdout, stderr, exitCode := runFspec(t, workDir, "init", "--demo", "5")
	require.Equal(t, 0, exitCode, "init --demo failed: %s", stderr)
	assert.Contains(t, stdout, "5 demo work units")

	stdout, _, exitCode = runFspec(t, workDir, "list", "-o", "json")
	require.Equal(t, 0, exitCode)

	var units []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &units))
	assert.Len(t, units, 5)
}

// TestCLI_DebugLocks checks that lock metrics land on stderr as JSON lines.
func TestCLI_DebugLocks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	workDir := t.TempDir()

	_, _, exitCode := runFspec(t, workDir, "init")
	require.Equal(t, 0, exitCode)

	_, stderr, exitCode := runFspec(t, workDir, "add", "WU-metrics", "--title", "x", "--debug-locks")
	require.Equal(t, 0, exitCode)
	assert.Contains(t, stderr, `"msg":"lock"`)
	assert.Contains(t, stderr, `"wait_ms"`)
}
