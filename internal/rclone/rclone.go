// Package rclone synchronises mod directories with remote storage by
// driving the bundled rclone binary.
package rclone

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/schaermu/modshell/internal/process"
	"github.com/schaermu/modshell/internal/progress"
)

// Topic is the event topic of sync operations
const Topic = "rclone"

// DefaultLinePrefix is prepended to forwarded rclone lines so terminals
// overwrite the previous progress line
const DefaultLinePrefix = "\r"

// Request describes one sync
type Request struct {
	Command    string   `json:"command"`
	Remote     string   `json:"remote"`
	RemotePath string   `json:"remote_path"`
	TargetPath string   `json:"target_path"`
	Flags      string   `json:"flags"`
	Excludes   []string `json:"excludes"`
	ListenerID string   `json:"listener_id"`
}

// Config holds the static settings of a Syncer
type Config struct {
	Binary          string
	ConfigFile      string
	TempDir         string
	LinePrefix      string
	CookieRemotes   []string
	DefaultExcludes []string
}

// Syncer runs rclone commands
type Syncer struct {
	cfg     Config
	runner  *process.Runner
	emitter *progress.Emitter
	cookies *CookieRefresher
	logger  *slog.Logger
}

// NewSyncer creates a Syncer. cookies may be nil when no remote needs one.
func NewSyncer(cfg Config, runner *process.Runner, emitter *progress.Emitter, cookies *CookieRefresher, logger *slog.Logger) *Syncer {
	return &Syncer{
		cfg:     cfg,
		runner:  runner,
		emitter: emitter,
		cookies: cookies,
		logger:  logger,
	}
}

// Run performs req and reports whether rclone succeeded. A false result with
// a nil error means the tool ran but reported failure; errors are returned
// for local failures such as writing the exclusion list or spawning rclone.
func (s *Syncer) Run(ctx context.Context, req Request) (bool, error) {
	excludes := append(slices.Clone(s.cfg.DefaultExcludes), req.Excludes...)
	listPath, err := writeExclusionList(s.cfg.TempDir, excludes)
	if err != nil {
		return false, err
	}
	defer func() { _ = os.Remove(listPath) }()

	if s.cookies != nil && slices.Contains(s.cfg.CookieRemotes, req.Remote) {
		if err := s.cookies.Refresh(ctx, req.Remote); err != nil {
			s.logger.WarnContext(ctx, "failed to refresh remote cookie, syncing with existing config",
				"remote", req.Remote,
				"error", err)
		}
	}

	inv, err := s.runner.Spawn(ctx, s.cfg.Binary, BuildArgs(req, listPath, s.cfg.ConfigFile)...)
	if err != nil {
		return false, err
	}

	var verdict progress.Verdict
	status := s.emitter.Stream(ctx, Topic, req.ListenerID, inv, progress.Options{
		Prefix: s.cfg.LinePrefix,
		OnLine: verdict.Observe,
	})

	success := verdict.Success(status)
	s.logger.InfoContext(ctx, "sync finished",
		"command", req.Command,
		"remote", req.Remote,
		"success", success,
		"reported_errors", verdict.ReportedErrors(),
		"code", status.Code)
	return success, nil
}

func writeExclusionList(dir string, patterns []string) (string, error) {
	f, err := os.CreateTemp(dir, "modshell-exclude-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create exclusion list: %w", err)
	}

	for _, p := range patterns {
		if _, err := fmt.Fprintln(f, p); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("failed to write exclusion list: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close exclusion list: %w", err)
	}
	return f.Name(), nil
}
