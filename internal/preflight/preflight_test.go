package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"flume/internal/testsupport"
)

func TestCheckDirectoryAccessOK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccessNotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccessNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDatabaseFileMissingButCreatable(t *testing.T) {
	result := CheckDatabaseFile(filepath.Join(t.TempDir(), "db-home.sqlite"))
	if !result.Passed {
		t.Fatalf("expected pass for creatable database, got: %s", result.Detail)
	}
}

func TestCheckDatabaseFileMissingDirectory(t *testing.T) {
	result := CheckDatabaseFile(filepath.Join(t.TempDir(), "nope", "db-home.sqlite"))
	if result.Passed {
		t.Fatal("expected failure when database directory is missing")
	}
}

func TestCheckHelpersReportsTaskRequirement(t *testing.T) {
	testsupport.StubBinaries(t, "fetchmail")
	doc := testsupport.NewConfigDocument(t, `tasks:
  mail:
    requires: [fetchmail]
  web:
    requires: [definitely-not-installed-helper]
`)

	statuses := CheckHelpers(doc)
	byName := make(map[string]bool, len(statuses))
	for _, status := range statuses {
		byName[status.Name] = status.Available
	}
	available, ok := byName["fetchmail"]
	if !ok || !available {
		t.Fatalf("expected fetchmail to be available, got %+v", statuses)
	}
	missing, ok := byName["definitely-not-installed-helper"]
	if !ok || missing {
		t.Fatalf("expected missing helper to be reported, got %+v", statuses)
	}
}
