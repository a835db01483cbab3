package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestChmod(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "pinactlite")
	if err := os.WriteFile(path, []byte("bin"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Chmod(path, 0755); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0755 {
			t.Errorf("permissions = %o, want %o", perm, 0755)
		}
	}
}

func TestModeOf(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "pre-push")
	if err := os.WriteFile(path, []byte("#!/bin/sh"), 0700); err != nil {
		t.Fatal(err)
	}

	if runtime.GOOS != "windows" {
		if got := ModeOf(path, 0644); got != 0700 {
			t.Errorf("ModeOf = %o, want %o", got, 0700)
		}
	}
	if got := ModeOf(filepath.Join(tmp, "absent"), 0644); got != 0644 {
		t.Errorf("ModeOf(absent) = %o, want fallback %o", got, 0644)
	}
}
