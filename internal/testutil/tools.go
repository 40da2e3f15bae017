// Package testutil holds helpers shared by package tests.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Logger returns a logger that only reports errors
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// FakeTool writes an executable /bin/sh script named name into dir and
// returns its path. Tests that need a POSIX shell are skipped on Windows.
func FakeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools require a POSIX shell")
	}

	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake tool %s: %v", name, err)
	}
	return path
}

// ArgsRecorder returns a script body that writes each argument on its own
// line to argsFile before running rest.
func ArgsRecorder(argsFile, rest string) string {
	return `for a in "$@"; do printf '%s\n' "$a"; done > '` + argsFile + "'\n" + rest
}
