//go:build integration

package bridge

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const (
	testToken      = "integration-token"
	defaultTimeout = 2 * time.Minute
)

// Harness builds the modshell binary and runs its bridge server against
// fake external tools
type Harness struct {
	t       *testing.T
	dir     string
	binary  string
	addr    string
	cmd     *exec.Cmd
	exited  chan struct{}
	argsLog string
}

// NewHarness creates a harness rooted in a fresh temp dir
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools require a POSIX shell")
	}
	dir := t.TempDir()
	return &Harness{
		t:       t,
		dir:     dir,
		argsLog: filepath.Join(dir, "tool-args.log"),
	}
}

// Dir returns the harness working directory
func (h *Harness) Dir() string {
	return h.dir
}

// Build compiles cmd/modshell into the harness directory
func (h *Harness) Build(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	h.binary = filepath.Join(h.dir, "modshell")
	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/modshell")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// WriteTool installs a fake tool that logs its arguments before running body
func (h *Harness) WriteTool(name, body string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, "tools", name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		h.t.Fatalf("mkdir tools: %v", err)
	}
	script := "#!/bin/sh\n" +
		`echo "` + name + ` $*" >> '` + h.argsLog + "'\n" +
		body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		h.t.Fatalf("write tool %s: %v", name, err)
	}
	return path
}

// ToolArgs returns one entry per recorded tool invocation
func (h *Harness) ToolArgs() []string {
	h.t.Helper()
	data, err := os.ReadFile(h.argsLog)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		h.t.Fatalf("read tool log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

// Start writes a config pointing at the given tools and starts the server
func (h *Harness) Start(ctx context.Context, rclone, boostStudio string) error {
	h.t.Helper()

	addr, err := freeAddr()
	if err != nil {
		return err
	}
	h.addr = addr

	tokenFile := filepath.Join(h.dir, "token")
	if err := os.WriteFile(tokenFile, []byte(testToken+"\n"), 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}

	config := fmt.Sprintf(`paths:
  config_dir: %q
  data_dir: %q
  temp_dir: %q
tools:
  rclone: %q
  booststudio: %q
sync:
  line_prefix: ""
serve:
  listen_addr: %q
  token_file: %q
  metrics: true
`, filepath.Join(h.dir, "config"), filepath.Join(h.dir, "data"), h.dir, rclone, boostStudio, addr, tokenFile)
	configPath := filepath.Join(h.dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(config), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	h.cmd = exec.Command(h.binary, "--config", configPath, "--log-level", "debug", "serve")
	h.cmd.Stdout = &testWriter{t: h.t, prefix: "[serve] "}
	h.cmd.Stderr = &testWriter{t: h.t, prefix: "[serve] "}
	if err := h.cmd.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	h.exited = make(chan struct{})
	go func() {
		_ = h.cmd.Wait()
		close(h.exited)
	}()

	return h.waitReady(ctx)
}

func (h *Harness) waitReady(ctx context.Context) error {
	for {
		resp, err := http.Get(h.URL("/metadata/epoch"))
		if err == nil {
			_ = resp.Body.Close()
			return nil
		}
		select {
		case <-h.exited:
			return fmt.Errorf("server exited before becoming ready")
		case <-ctx.Done():
			return fmt.Errorf("server not ready: %w", ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// URL returns an absolute URL for path on the running server
func (h *Harness) URL(path string) string {
	return "http://" + h.addr + path
}

// Addr returns the server's listen address
func (h *Harness) Addr() string {
	return h.addr
}

// Stop interrupts the server and waits for a clean exit
func (h *Harness) Stop() {
	h.t.Helper()
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Signal(os.Interrupt)
	select {
	case <-h.exited:
	case <-time.After(10 * time.Second):
		h.t.Log("server did not stop after interrupt, killing it")
		_ = h.cmd.Process.Kill()
		<-h.exited
	}
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("find free port: %w", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().String(), nil
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)

// findProjectRoot walks up the directory tree from the current file to find go.mod
func findProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
