package integration_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quarterplan/integration/harness"
)

// testNow falls in calendar Q1 2026, so Q1 is locked and Q2 is next.
const testNow = "2026-02-10"

func initWorkspace(t *testing.T, binPath string) string {
	t.Helper()
	workspace := t.TempDir()
	harness.Quarterplan(t, binPath, workspace, testNow, "init", "--business", "acme")
	return workspace
}

func TestCLISmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	runDir := t.TempDir()

	stdout, stderr, code := harness.Run(t, binPath, runDir, []string{"--help"})
	if code != 0 {
		t.Fatalf("quarterplan --help exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout+stderr, "Quarter-constrained initiative planning") {
		t.Fatalf("expected help output to include header\nstdout:\n%s\nstderr:\n%s", stdout, stderr)
	}

	workspace := initWorkspace(t, binPath)

	quarters := harness.Quarterplan(t, binPath, workspace, testNow, "quarters")
	if !strings.Contains(quarters, "Next open quarter: Q2 2026") {
		t.Fatalf("expected Q2 to be the planning horizon:\n%s", quarters)
	}

	harness.Quarterplan(t, binPath, workspace, testNow, "add", "--id", "crm", "--title", "Roll out CRM", "--priority", "high")
	harness.Quarterplan(t, binPath, workspace, testNow, "add", "--id", "blog", "--title", "Relaunch blog", "--priority", "low")
	harness.Quarterplan(t, binPath, workspace, testNow, "place", "crm", "Q2")
	harness.Quarterplan(t, binPath, workspace, testNow, "assign", "crm", "pat")

	board := harness.Quarterplan(t, binPath, workspace, testNow, "board")
	for _, want := range []string{"Q2  Apr-Jun  1/5", "crm", "pat (1)", "Available (1)", "blog"} {
		if !strings.Contains(board, want) {
			t.Fatalf("expected board to contain %q:\n%s", want, board)
		}
	}

	args := []string{"--workspace", workspace, "place", "blog", "Q1"}
	stdout, stderr, code = harness.RunWithEnv(t, binPath, workspace, args, map[string]string{"QUARTERPLAN_NOW": testNow})
	if code == 0 {
		t.Fatalf("expected placement into a locked quarter to fail\nstdout:\n%s", stdout)
	}
	if !strings.Contains(stderr, "quarter is locked") {
		t.Fatalf("expected lock error, got stderr:\n%s", stderr)
	}

	harness.Quarterplan(t, binPath, workspace, testNow, "move", "--index", "0", "crm", "Q3")
	harness.Quarterplan(t, binPath, workspace, testNow, "remove", "crm")

	auditPath := filepath.Join(workspace, ".quarterplan", "audit.sqlite")
	// The locked placement is refused before anything is logged or saved.
	requireAuditCounts(t, auditPath, map[string]int{
		"workspace_initialized": 1,
		"item_placed":           1,
		"item_assigned":         1,
		"item_moved":            1,
		"item_removed":          1,
		"plan_saved":            6,
	})
	requireAuditActor(t, auditPath, "smoke")

	logPath := filepath.Join(workspace, ".quarterplan", "quarterplan.log")
	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("log file not written at %s: %v", logPath, err)
	}

	engineDB := filepath.Join(harness.RepoRoot(t), ".quarterplan")
	if _, err := os.Stat(engineDB); err == nil {
		t.Fatalf("repo should not contain a data dir at %s", engineDB)
	} else if !os.IsNotExist(err) {
		t.Fatalf("stat repo data dir: %v", err)
	}
}
