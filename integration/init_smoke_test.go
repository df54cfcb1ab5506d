package integration_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quarterplan/integration/harness"
)

func TestInitSmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	runDir := t.TempDir()
	workspaceRoot := filepath.Join(t.TempDir(), "workspace-init")

	args := []string{
		"--workspace", workspaceRoot,
		"init",
		"--business", "acme",
		"--year-type", "fiscal",
	}
	stdout, stderr, code := harness.Run(t, binPath, runDir, args)
	if code != 0 {
		t.Fatalf("quarterplan init exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	paths := []string{
		filepath.Join(workspaceRoot, "quarterplan.yml"),
		filepath.Join(workspaceRoot, ".quarterplan"),
		filepath.Join(workspaceRoot, "exports"),
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing init path %s: %v", path, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(workspaceRoot, "quarterplan.yml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	for _, want := range []string{"business_id: acme", "year_type: fiscal"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected config to contain %q\n%s", want, data)
		}
	}

	auditPath := filepath.Join(workspaceRoot, ".quarterplan", "audit.sqlite")
	if _, err := os.Stat(auditPath); err != nil {
		t.Fatalf("audit db not written at %s: %v", auditPath, err)
	}
	requireAuditCounts(t, auditPath, map[string]int{"workspace_initialized": 1, "plan_saved": 0})

	stdout, stderr, code = harness.Run(t, binPath, runDir, args)
	if code != 0 {
		t.Fatalf("second init exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "already initialized") {
		t.Fatalf("expected existing workspace to be kept, got:\n%s", stdout)
	}
	requireAuditCounts(t, auditPath, map[string]int{"workspace_initialized": 1})
}
