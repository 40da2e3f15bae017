package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/schaermu/modshell/internal/activation"
	"github.com/schaermu/modshell/internal/files"
	"github.com/schaermu/modshell/internal/metadata"
	"github.com/schaermu/modshell/internal/metrics"
	"github.com/schaermu/modshell/internal/rclone"
	"github.com/schaermu/modshell/internal/server"
	"github.com/schaermu/modshell/internal/tools"
)

// errToolFailed signals a tool run whose verdict was failure
var errToolFailed = errors.New("tool reported failure")

// setup builds the logger, configuration and shared components
func setup(collector *metrics.Collector) (*app, error) {
	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newApp(cfg, logger, collector), nil
}

func newMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Query and manage the file metadata cache",
	}

	var (
		dir           string
		exts          []string
		ignoreModTime bool
	)
	getCmd := &cobra.Command{
		Use:   "get [paths...]",
		Short: "Print checksum metadata for files, refreshing stale entries",
		Long: `Get resolves the checksum and modification epoch of every given file.
Files whose modification time did not change since they were last hashed are
answered from the cache. Missing paths and directories are skipped.

With --dir, every regular file below the directory is included as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(nil)
			if err != nil {
				return err
			}

			paths := args
			if dir != "" {
				found, err := files.Discover(dir, exts...)
				if err != nil {
					return fmt.Errorf("failed to list %s: %w", dir, err)
				}
				paths = append(paths, found...)
			}

			cache, err := a.cache()
			if err != nil {
				return err
			}
			records, err := cache.GetMetadata(paths, ignoreModTime)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}
	getCmd.Flags().StringVar(&dir, "dir", "", "include every file below this directory")
	getCmd.Flags().StringSliceVar(&exts, "ext", nil, "with --dir, only include files with these extensions (e.g. .psarc)")
	getCmd.Flags().BoolVar(&ignoreModTime, "ignore-modtime", false, "recompute checksums even for unchanged files")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(nil)
			if err != nil {
				return err
			}
			cache, err := a.cache()
			if err != nil {
				return err
			}
			return cache.Clear()
		},
	}

	epochCmd := &cobra.Command{
		Use:   "epoch <path>",
		Short: "Print the modification time of a file in epoch seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			epoch, err := metadata.ModifiedEpoch(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), epoch)
			return err
		},
	}

	cmd.AddCommand(getCmd, clearCmd, epochCmd)
	return cmd
}

func newSyncCmd() *cobra.Command {
	var req rclone.Request

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run an rclone command, streaming its progress",
		Long: `Sync runs the bundled rclone with --progress and an exclusion list,
printing every progress line as it arrives. Remotes listed in
sync.cookie_remotes get a fresh session cookie first.

The command fails when rclone exits non-zero or reports errors in its output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupSignalHandler()
			defer cancel()

			a, err := setup(nil)
			if err != nil {
				return err
			}
			syncer, err := a.syncer(a.consoleSink(cmd.OutOrStdout()))
			if err != nil {
				return err
			}

			req.ListenerID = defaultListenerID(req.ListenerID)
			a.logger.Info("starting sync", "command", req.Command, "remote", req.Remote, "listener_id", req.ListenerID)

			ok, err := syncer.Run(ctx, req)
			if err != nil {
				return err
			}
			if !ok {
				return errToolFailed
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Command, "command", "sync", "rclone command (sync, copy, check, ...)")
	f.StringVar(&req.Remote, "remote", "", "remote name, used to decide on a cookie refresh")
	f.StringVar(&req.RemotePath, "remote-path", "", "source path, e.g. remote:mods")
	f.StringVar(&req.TargetPath, "target-path", "", "destination path")
	f.StringVar(&req.Flags, "flags", "", `additional rclone flags, e.g. "--transfers 4 --fast-list"`)
	f.StringSliceVar(&req.Excludes, "exclude", nil, "exclusion patterns (repeatable)")
	f.StringVar(&req.ListenerID, "listener-id", "", "listener id for progress events (default: random)")
	_ = cmd.MarkFlagRequired("remote-path")
	_ = cmd.MarkFlagRequired("target-path")

	return cmd
}

func newPsarcCmd() *cobra.Command {
	var listenerID string

	cmd := &cobra.Command{
		Use:   "psarc",
		Short: "Pack and unpack game archives with the BoostStudio console",
	}
	cmd.PersistentFlags().StringVar(&listenerID, "listener-id", "", "listener id for progress events (default: random)")

	unpackCmd := &cobra.Command{
		Use:   "unpack <archive> <destination>",
		Short: "Extract an archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupSignalHandler()
			defer cancel()

			a, err := setup(nil)
			if err != nil {
				return err
			}
			tool, err := a.archiver(a.consoleSink(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			return tool.Unpack(ctx, args[0], args[1], defaultListenerID(listenerID))
		},
	}

	packCmd := &cobra.Command{
		Use:   "pack <source-dir> <name> <destination-dir>",
		Short: "Build an archive from a directory",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupSignalHandler()
			defer cancel()

			a, err := setup(nil)
			if err != nil {
				return err
			}
			tool, err := a.archiver(a.consoleSink(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			return tool.Pack(ctx, args[0], args[1], args[2], defaultListenerID(listenerID))
		},
	}

	cmd.AddCommand(unpackCmd, packCmd)
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge server for the desktop UI",
		Long: `Serve exposes the metadata cache, sync and archive operations over a local
HTTP API. Progress events are pushed to websocket listeners on /events.

The server uses a systemd activated socket when one is passed, otherwise it
listens on serve.listen_addr.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	deps := server.Deps{
		Hub:        server.NewHub(logger),
		HTTPClient: &http.Client{Timeout: cfg.Sync.CookieTimeout},
	}

	var collector *metrics.Collector
	if cfg.Serve.Metrics {
		registry := metrics.NewRegistry()
		collector = metrics.New(registry)
		deps.Metrics = metrics.Handler(registry)
	}

	a := newApp(cfg, logger, collector)
	sink := a.serverSink(deps.Hub)

	if deps.Cache, err = a.cache(); err != nil {
		return err
	}
	if deps.Syncer, err = a.syncer(sink); err != nil {
		return err
	}

	tool, err := a.archiver(sink)
	switch {
	case errors.Is(err, tools.ErrUnsupportedOS):
		logger.Info("archive tool not available on this system, psarc routes disabled")
	case err != nil:
		return err
	default:
		deps.Archiver = tool
	}

	token, err := cfg.ReadToken()
	if err != nil {
		return err
	}
	if token == "" {
		logger.Warn("serving without a token; any local process can call the API")
	}

	listener, activated, err := activation.Listen(cfg.Serve.ListenAddr)
	if err != nil {
		return err
	}
	if activated {
		logger.Info("using systemd socket activation")
	}

	return server.New(deps, token, logger).Serve(ctx, listener)
}

func defaultListenerID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
