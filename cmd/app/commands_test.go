package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/starford/questline/internal/bundle"
	"github.com/starford/questline/internal/testutil"
)

// setupDocument writes a questline snapshot and points the archive and
// database into a temp dir.
func setupDocument(t *testing.T, quests int) (dir, doc string) {
	t.Helper()
	dir = t.TempDir()
	data, err := yaml.Marshal(testutil.QuestlineFile(quests))
	if err != nil {
		t.Fatal(err)
	}
	doc = filepath.Join(dir, "scene.yaml")
	if err := os.WriteFile(doc, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUESTLINE_EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("QUESTLINE_SQLITE_PATH", filepath.Join(dir, "questline.db"))
	t.Setenv("QUESTLINE_LOG_LEVEL", "error")
	return dir, doc
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newCommand()
	var out, errOut bytes.Buffer
	cmd.Writer = &out
	cmd.ErrWriter = &errOut
	base := []string{"questline", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--settle-delay", "0s"}
	err := cmd.Run(context.Background(), append(base, args...))
	return out.String(), err
}

func TestExportWritesBundle(t *testing.T) {
	dir, doc := setupDocument(t, 3)
	out := filepath.Join(dir, "bundle.zip")

	stdout, err := runCLI(t, "--document", doc, "export", "--out", out)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(stdout, `"questlineId": "summer-event"`) {
		t.Errorf("stdout = %s", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("bundle not written: %v", err)
	}
	if rep, err := bundle.VerifyArchive(data); err != nil || !rep.OK() {
		t.Errorf("bundle invalid: %v %v", err, rep)
	}
}

func TestExportFailsWhenBundleCannotBeWritten(t *testing.T) {
	dir, doc := setupDocument(t, 3)
	out := filepath.Join(dir, "missing", "sub", "bundle.zip")

	stdout, err := runCLI(t, "--document", doc, "export", "--out", out)
	if err == nil {
		t.Fatal("expected error for unwritable output path")
	}
	if !strings.Contains(err.Error(), "write bundle") {
		t.Errorf("err = %v", err)
	}
	if stdout != "" {
		t.Errorf("manifest printed on failure: %s", stdout)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("bundle exists: %v", statErr)
	}
}

func TestExportReportsBlockingIssues(t *testing.T) {
	_, doc := setupDocument(t, 2)
	if _, err := runCLI(t, "--document", doc, "export"); err != errIssues {
		t.Errorf("err = %v, want errIssues", err)
	}
}
