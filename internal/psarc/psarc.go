// Package psarc drives the BoostStudio console to pack and unpack game
// archives, streaming its output as progress events.
package psarc

import (
	"context"
	"log/slog"

	"github.com/schaermu/modshell/internal/process"
	"github.com/schaermu/modshell/internal/progress"
	"github.com/schaermu/modshell/internal/tools"
)

// Topic is the event topic of archive operations
const Topic = "psarc"

// Tool runs BoostStudio archive commands
type Tool struct {
	binary  string
	runner  *process.Runner
	emitter *progress.Emitter
	logger  *slog.Logger
}

// New creates a Tool invoking the BoostStudio console at binary
func New(binary string, runner *process.Runner, emitter *progress.Emitter, logger *slog.Logger) *Tool {
	return &Tool{
		binary:  binary,
		runner:  runner,
		emitter: emitter,
		logger:  logger,
	}
}

// Unpack extracts the archive at src into dst
func (t *Tool) Unpack(ctx context.Context, src, dst, listenerID string) error {
	return t.run(ctx, listenerID, UnpackArgs(src, dst))
}

// Pack builds an archive called name from srcDir into dstDir
func (t *Tool) Pack(ctx context.Context, srcDir, name, dstDir, listenerID string) error {
	return t.run(ctx, listenerID, PackArgs(srcDir, name, dstDir))
}

// UnpackArgs returns the console arguments for an unpack
func UnpackArgs(src, dst string) []string {
	return []string{"psarc", "unpack", "--input", src, "--output", dst}
}

// PackArgs returns the console arguments for a pack
func PackArgs(srcDir, name, dstDir string) []string {
	return []string{"psarc", "pack", "--input", srcDir, "--output", dstDir, "--filename", name}
}

// run reports only spawn failures; a failed exit status is logged.
func (t *Tool) run(ctx context.Context, listenerID string, args []string) error {
	if err := tools.EnsureExecutable(t.binary); err != nil {
		// The spawn below reports the actionable error.
		t.logger.WarnContext(ctx, "failed to mark archive tool executable", "path", t.binary, "error", err)
	}

	inv, err := t.runner.Spawn(ctx, t.binary, args...)
	if err != nil {
		return err
	}

	status := t.emitter.Stream(ctx, Topic, listenerID, inv, progress.Options{Trim: true})
	if !status.Success() {
		t.logger.WarnContext(ctx, "archive tool reported failure",
			"operation", args[1],
			"code", status.Code,
			"error", status.Err)
	}
	return nil
}
