package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pagelift/pagelift/internal/api"
	"github.com/pagelift/pagelift/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.GetLogger("serve")

		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.settings.Close()

		server := api.NewServer(cfg, svc.handlers)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Listen()
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			log.Info().Msg("Shutdown signal received, draining")
			return server.Shutdown()
		}
	},
}
