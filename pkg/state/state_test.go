package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureStateDirs(t *testing.T) {
	root := t.TempDir()
	if err := EnsureStateDirs(root); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, p := range []string{
		filepath.Join(root, "store"),
		filepath.Join(root, "state", "crash"),
		filepath.Join(root, "state", "retention"),
		filepath.Join(root, "state", "tmp"),
	} {
		fi, err := os.Stat(p)
		if err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
		if !fi.IsDir() {
			t.Fatalf("%s is not a directory", p)
		}
	}
	// second run is a no-op
	if err := EnsureStateDirs(root); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
}

func TestEnsureStateDirsRejectsSymlink(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "elsewhere")
	if err := os.MkdirAll(target, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(root, "store")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := EnsureStateDirs(root); err == nil {
		t.Fatal("symlinked store dir accepted")
	}
}

func TestEnsureStateDirsRejectsFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "store"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := EnsureStateDirs(root); err == nil {
		t.Fatal("plain file in place of store dir accepted")
	}
}

func TestStorePath(t *testing.T) {
	if got := StorePath("/data"); got != filepath.Join("/data", "store") {
		t.Fatalf("StorePath = %q", got)
	}
}
