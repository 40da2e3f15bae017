// Package process spawns external tools and exposes their standard output
// as a lazy sequence of lines while a separate goroutine reaps the child.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrSpawn is returned when the external program could not be started
var ErrSpawn = errors.New("failed to spawn process")

// ExitStatus describes how a child process terminated
type ExitStatus struct {
	Code int
	Err  error
}

// Success reports a clean zero exit
func (s ExitStatus) Success() bool {
	return s.Err == nil && s.Code == 0
}

// Runner starts external commands
type Runner struct {
	logger *slog.Logger
	stderr io.Writer
}

// NewRunner creates a runner whose children inherit this process's stderr
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		logger: logger,
		stderr: os.Stderr,
	}
}

// WithStderr redirects the children's standard error to w
func (r *Runner) WithStderr(w io.Writer) *Runner {
	r.stderr = w
	return r
}

// Spawn starts program with args. The child runs to completion regardless
// of ctx; the context only scopes logging.
func (r *Runner) Spawn(ctx context.Context, program string, args ...string) (*Invocation, error) {
	// An explicit pipe keeps the read end out of exec's hands, so Wait can
	// run concurrently with the reader without closing it underneath us.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	cmd := exec.Command(program, args...)
	cmd.Stdout = pw
	cmd.Stderr = r.stderr

	r.logger.InfoContext(ctx, "spawning command", "program", program, "args", args)

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("%w %s: %w", ErrSpawn, program, err)
	}

	// The child holds its own copy of the write end.
	_ = pw.Close()

	inv := &Invocation{
		program: program,
		pid:     cmd.Process.Pid,
		stdout:  pr,
		done:    make(chan struct{}),
	}
	go inv.reap(cmd, r.logger)

	return inv, nil
}

// Invocation is one running child process
type Invocation struct {
	program  string
	pid      int
	stdout   *os.File
	consumed bool
	err      error

	done   chan struct{}
	status ExitStatus
}

// Program returns the executable the invocation was started with
func (inv *Invocation) Program() string {
	return inv.program
}

// PID returns the child's process id
func (inv *Invocation) PID() int {
	return inv.pid
}

// Lines yields stdout lines as the child writes them, without the trailing
// newline. The sequence can be ranged over once. Stopping early leaves a
// goroutine draining the rest so the child never blocks on a full pipe.
func (inv *Invocation) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if inv.consumed {
			return
		}
		inv.consumed = true

		reader := bufio.NewReaderSize(inv.stdout, 64*1024)
		for {
			line, err := reader.ReadString('\n')
			if line != "" && (err == nil || err == io.EOF) {
				line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
				if !yield(strings.ToValidUTF8(line, "�")) {
					go discard(inv.stdout)
					return
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				inv.err = fmt.Errorf("failed to read output of %s: %w", inv.program, err)
				go discard(inv.stdout)
				return
			}
		}
		_ = inv.stdout.Close()
	}
}

// Err returns the read error that ended Lines early, if any
func (inv *Invocation) Err() error {
	return inv.err
}

// Done is closed once the child has exited and been reaped
func (inv *Invocation) Done() <-chan struct{} {
	return inv.done
}

// Wait blocks until the child has been reaped and returns its status
func (inv *Invocation) Wait() ExitStatus {
	<-inv.done
	return inv.status
}

func (inv *Invocation) reap(cmd *exec.Cmd, logger *slog.Logger) {
	defer close(inv.done)

	err := cmd.Wait()
	inv.status = ExitStatus{
		Code: cmd.ProcessState.ExitCode(),
		Err:  err,
	}

	if inv.status.Success() {
		logger.Debug("child process exited", "program", inv.program, "pid", inv.pid, "code", inv.status.Code)
		return
	}
	logger.Warn("child process exited with failure",
		"program", inv.program,
		"pid", inv.pid,
		"code", inv.status.Code,
		"error", err)
}

func discard(f *os.File) {
	_, _ = io.Copy(io.Discard, f)
	_ = f.Close()
}
