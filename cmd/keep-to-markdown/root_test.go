package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommandExportsTakeout(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()
	takeout := filepath.Join(root, "Keep")
	if err := os.MkdirAll(takeout, 0o755); err != nil {
		t.Fatalf("mkdir takeout: %v", err)
	}
	note := `{"title": "Hello world", "textContent": "see https://example.test", "labels": [{"name": "Ready to Export"}]}`
	if err := os.WriteFile(filepath.Join(takeout, "hello.json"), []byte(note), 0o644); err != nil {
		t.Fatalf("write note: %v", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{
		"--takeout-dir", takeout,
		"--notes-dir", filepath.Join(root, "out", "notes"),
		"--media-dir", filepath.Join(root, "out", "media"),
		"--env-file", filepath.Join(root, "missing.env"),
		"--no-progress",
	})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v\nstderr: %s", err, stderr.String())
	}

	if !strings.Contains(stdout.String(), "exported 1 notes, copied 0 files") {
		t.Fatalf("unexpected summary %q", stdout.String())
	}
	body, err := os.ReadFile(filepath.Join(root, "out", "notes", "Hello_world.md"))
	if err != nil {
		t.Fatalf("read exported note: %v", err)
	}
	if string(body) != "see [https://example.test](https://example.test)" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestRootCommandRejectsUnknownStore(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"--store", "evernote", "--env-file", filepath.Join(t.TempDir(), ".env")})
	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unknown store") {
		t.Fatalf("expected unknown store error, got %v", err)
	}
}
