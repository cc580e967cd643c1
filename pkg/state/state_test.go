package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureStateDirsCreatesLayout(t *testing.T) {
	root := t.TempDir()
	if err := EnsureStateDirs(root); err != nil {
		t.Fatalf("EnsureStateDirs: %v", err)
	}
	p := PathsFor(root)
	for _, dir := range []string{p.Store, p.Audit, p.Maintenance, p.Tel, p.Crash} {
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestEnsureStateDirsRejectsSymlink(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	if err := os.Symlink(target, filepath.Join(root, "store")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := EnsureStateDirs(root); err == nil || !strings.Contains(err.Error(), "symlink") {
		t.Fatalf("expected symlink error, got %v", err)
	}
}

func TestWriteCrashDump(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crash")
	path, err := WriteCrashDump(dir, "boom", os.ErrClosed)
	if err != nil {
		t.Fatalf("WriteCrashDump: %v", err)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "reason: boom") || !strings.Contains(string(b), "goroutine") {
		t.Fatalf("unexpected dump: %s", b)
	}
	if _, err := WriteCrashDump("", "x", nil); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
