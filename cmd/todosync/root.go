package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/todosync/internal/platform"
)

var (
	verbose    bool
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "todosync",
	Short: "Keep a todo.txt file in sync with several task backends",
	Long: `todosync materializes tasks from every configured backend into one
todo.txt file and pushes edits made to that file back to the backend that
owns each task.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default: search upwards for todosync.json, todosync.yaml, config.json)")
}

// session is a loaded configuration with its assembled engine.
type session struct {
	cfg    *platform.Config
	app    *platform.App
	logger *slog.Logger
	logs   io.Closer
}

func (s *session) Close() {
	if err := s.app.Close(); err != nil {
		s.logger.Warn("close failed", "error", err)
	}
	s.logs.Close()
}

// open finds and loads the configuration, then assembles the engine.
func open() (*session, error) {
	path := configPath
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if path, err = platform.FindConfig(wd); err != nil {
			return nil, fmt.Errorf("%w (use --config)", err)
		}
	}

	cfg, err := platform.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	logger, logs, err := platform.NewLogger(cfg.Log, os.Stderr, verbose)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", "file", cfg.File, "sources", len(cfg.Sources))

	app, err := platform.Assemble(cfg, platform.WithLogger(logger))
	if err != nil {
		logs.Close()
		return nil, err
	}
	return &session{cfg: cfg, app: app, logger: logger, logs: logs}, nil
}
