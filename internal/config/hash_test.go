package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateChecksumsWithReportDryRun(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("state:\n  path: ./x.db\n"), 0600); err != nil {
		t.Fatal(err)
	}

	report, err := GenerateChecksumsWithReport(tmpDir, []string{"config.yaml", "queues.yaml"}, true)
	if err != nil {
		t.Fatalf("GenerateChecksumsWithReport() failed: %v", err)
	}

	if report.Written {
		t.Fatal("report.Written = true, want false in dry-run")
	}

	if len(report.Files) != 2 {
		t.Fatalf("len(report.Files) = %d, want 2", len(report.Files))
	}

	if !report.Files[0].Exists || report.Files[0].Hash == "" {
		t.Fatal("config.yaml should exist with computed hash")
	}
	if report.Files[1].Exists || report.Files[1].Hash != "" {
		t.Fatal("queues.yaml should be reported as missing without hash")
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ".checksums")); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestLockThenLoad(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "config.yaml")
	queues := filepath.Join(tmpDir, "queues.yaml")

	writeFile(t, root, "include:\n  - queues.yaml\nstate:\n  path: ./x.db\n")
	writeFile(t, queues, "queues:\n  mail:\n    command: [\"/bin/true\"]\n")

	reports, err := Lock(root, false)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if len(reports) != 1 || !reports[0].Written {
		t.Fatalf("Lock() reports = %+v, want one written report", reports)
	}

	manifest, err := LoadChecksums(tmpDir)
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	if len(manifest.Hashes) != 2 {
		t.Fatalf("len(manifest.Hashes) = %d, want 2", len(manifest.Hashes))
	}

	if _, err := Load(root); err != nil {
		t.Fatalf("Load() after lock failed: %v", err)
	}

	// Tampering with an included file must fail the next load.
	writeFile(t, queues, "queues:\n  mail:\n    command: [\"/bin/false\"]\n")
	_, err = Load(root)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("Load() error = %v, want hash mismatch", err)
	}
}

func TestLoadChecksumsMissing(t *testing.T) {
	if _, err := LoadChecksums(t.TempDir()); err == nil {
		t.Fatal("LoadChecksums() on empty dir should fail")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}
