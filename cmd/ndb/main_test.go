package main

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRun_Init(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NDB_CONFIG", filepath.Join(dir, "absent.yaml"))

	code := run(context.Background(), []string{"--path", filepath.Join(dir, "ndb.db"), "db", "init"})
	if code != 0 {
		t.Errorf("run() = %d, want 0", code)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Setenv("NDB_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if code := run(context.Background(), []string{"frobnicate"}); code != 2 {
		t.Errorf("run() = %d, want 2", code)
	}
}

func TestVersionString(t *testing.T) {
	origVersion, origCommit, origDate := version, commit, date
	t.Cleanup(func() { version, commit, date = origVersion, origCommit, origDate })

	if got := versionString(); got != "dev" {
		t.Errorf("versionString() = %q, want dev", got)
	}

	version, commit, date = "1.2.0", "abc123", "2026-10-01"
	if got := versionString(); got != "1.2.0 (abc123, 2026-10-01)" {
		t.Errorf("versionString() = %q", got)
	}
}
