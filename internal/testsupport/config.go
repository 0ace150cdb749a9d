package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"flume/internal/configfile"
)

// DefaultConfigYAML declares a small task set usable by most tests.
const DefaultConfigYAML = `tasks:
  alpha:
    priority: 10
  bravo: {}
`

// WriteConfigDocument writes content to <dir>/<name>.yml and parses it.
func WriteConfigDocument(t testing.TB, dir, name, content string) *configfile.Document {
	t.Helper()

	path := filepath.Join(dir, name+".yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config document: %v", err)
	}
	doc, err := configfile.Load(path)
	if err != nil {
		t.Fatalf("configfile.Load: %v", err)
	}
	return doc
}

// NewConfigDocument parses content from a fresh temp directory using
// the conventional document name. Empty content gets DefaultConfigYAML.
func NewConfigDocument(t testing.TB, content string) *configfile.Document {
	t.Helper()

	if content == "" {
		content = DefaultConfigYAML
	}
	return WriteConfigDocument(t, t.TempDir(), "config", content)
}

// StubBinaries writes stub executables for the provided names and
// prepends them to PATH for the duration of the test.
func StubBinaries(t testing.TB, names ...string) {
	t.Helper()

	binDir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	script := []byte("#!/bin/sh\nexit 0\n")
	for _, name := range names {
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, script, 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}
