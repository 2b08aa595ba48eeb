package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/todosync/internal/server"
)

var statusAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync loop until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := open()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := s.cfg.Status.Addr
		if cmd.Flags().Changed("status-addr") {
			addr = statusAddr
		}
		if addr != "" {
			srv := server.New(s.logger)
			srv.Register("engine", s.app.Engine)
			srv.Register("router", s.app.Router)
			srv.Register("todo", s.app.Primary)
			if s.app.Done != nil {
				srv.Register("done", s.app.Done)
			}
			if err := srv.Start(ctx, addr); err != nil {
				return err
			}
		}

		s.logger.Info("sync started", "todofile", s.app.Primary.Path(), "sources", s.app.Router.Backends())
		err = s.app.Engine.Run(ctx)
		s.logger.Info("sync stopped")
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&statusAddr, "status-addr", "", "Serve /healthz and /state on this address (overrides status.addr)")
	rootCmd.AddCommand(runCmd)
}
