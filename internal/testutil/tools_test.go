package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestFakeTool(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	tool := FakeTool(t, dir, "tool", ArgsRecorder(argsFile, "echo done"))

	info, err := os.Stat(tool)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Fatalf("fake tool is not executable: %v", info.Mode())
	}

	out, err := exec.Command(tool, "one", "two words").Output()
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(out)) != "done" {
		t.Errorf("unexpected output %q", out)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(args) != "one\ntwo words\n" {
		t.Errorf("recorded args = %q", args)
	}
}
