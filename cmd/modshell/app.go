package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/schaermu/modshell/internal/checksum"
	"github.com/schaermu/modshell/internal/config"
	"github.com/schaermu/modshell/internal/metadata"
	"github.com/schaermu/modshell/internal/metrics"
	"github.com/schaermu/modshell/internal/process"
	"github.com/schaermu/modshell/internal/progress"
	"github.com/schaermu/modshell/internal/psarc"
	"github.com/schaermu/modshell/internal/rclone"
	"github.com/schaermu/modshell/internal/server"
	"github.com/schaermu/modshell/internal/tools"
)

// app wires the components every command shares
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	locator   *tools.Locator
	runner    *process.Runner
	collector *metrics.Collector
}

func newApp(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) *app {
	overrides := map[tools.Tool]string{
		tools.Rclone:      cfg.Tools.Rclone,
		tools.BoostStudio: cfg.Tools.BoostStudio,
	}
	return &app{
		cfg:       cfg,
		logger:    logger,
		locator:   tools.NewLocator(cfg.Paths.DataDir, overrides),
		runner:    process.NewRunner(logger),
		collector: collector,
	}
}

func (a *app) cache() (*metadata.Cache, error) {
	engine, err := checksum.NewEngine(checksum.Algorithm(a.cfg.Cache.Algorithm))
	if err != nil {
		return nil, fmt.Errorf("failed to create checksum engine: %w", err)
	}
	store := metadata.NewStore(a.cfg.StoreFilePath(), a.logger)
	return metadata.NewCache(store, engine, a.logger).WithRecorder(a.collector), nil
}

func (a *app) emitter(sink progress.Sink) *progress.Emitter {
	return progress.NewEmitter(sink, a.logger).WithRecorder(a.collector)
}

func (a *app) rcloneConfig() string {
	if a.cfg.Tools.RcloneConfig != "" {
		return a.cfg.Tools.RcloneConfig
	}
	return a.locator.RcloneConfig()
}

func (a *app) syncer(sink progress.Sink) (*rclone.Syncer, error) {
	binary, err := a.locator.Path(tools.Rclone)
	if err != nil {
		return nil, err
	}

	confPath := a.rcloneConfig()
	configFlag := confPath
	if _, err := os.Stat(confPath); err != nil {
		// Let rclone fall back to its own config.
		configFlag = ""
	}
	client := &http.Client{Timeout: a.cfg.Sync.CookieTimeout}
	cookies := rclone.NewCookieRefresher(confPath, client, a.logger)

	return rclone.NewSyncer(rclone.Config{
		Binary:          binary,
		ConfigFile:      configFlag,
		TempDir:         a.cfg.Paths.TempDir,
		LinePrefix:      a.cfg.LinePrefix(),
		CookieRemotes:   a.cfg.Sync.CookieRemotes,
		DefaultExcludes: a.cfg.Sync.DefaultExcludes,
	}, a.runner, a.emitter(sink), cookies, a.logger), nil
}

// archiver returns tools.ErrUnsupportedOS where BoostStudio has no build
func (a *app) archiver(sink progress.Sink) (*psarc.Tool, error) {
	binary, err := a.locator.Path(tools.BoostStudio)
	if err != nil {
		return nil, err
	}
	return psarc.New(binary, a.runner, a.emitter(sink), a.logger), nil
}

// consoleSink echoes tool output to w and keeps a debug log of every event
func (a *app) consoleSink(w io.Writer) progress.Sink {
	return progress.MultiSink{progress.NewWriterSink(w), progress.NewLogSink(a.logger)}
}

// serverSink forwards events to websocket listeners and the debug log
func (a *app) serverSink(hub *server.Hub) progress.Sink {
	return progress.MultiSink{hub, progress.NewLogSink(a.logger)}
}
