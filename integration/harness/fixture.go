package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// InstallFixture copies the plan documents of integration/fixtures/<name> into dir and
// returns the paths written, relative to dir.
func InstallFixture(t *testing.T, name, dir string) []string {
	t.Helper()
	src := filepath.Join(RepoRoot(t), "integration", "fixtures", name)
	written, err := installPlanFiles(src, dir)
	if err != nil {
		t.Fatalf("install fixture %s: %v", name, err)
	}
	if len(written) == 0 {
		t.Fatalf("fixture %s has no plan documents", name)
	}
	return written
}

func installPlanFiles(src, dst string) ([]string, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, err
	}

	var written []string
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		if !entry.Type().IsRegular() {
			return nil, fmt.Errorf("not a regular file: %s", entry.Name())
		}
		data, err := os.ReadFile(filepath.Join(src, entry.Name()))
		if err != nil {
			return nil, err
		}
		if !strings.Contains(string(data), "quarters:") {
			return nil, fmt.Errorf("%s is not a plan document", entry.Name())
		}
		if err := os.WriteFile(filepath.Join(dst, entry.Name()), data, 0o644); err != nil {
			return nil, err
		}
		written = append(written, entry.Name())
	}
	return written, nil
}
