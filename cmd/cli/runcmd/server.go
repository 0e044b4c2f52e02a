package runcmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"ranktracker/internal/api"
	"ranktracker/internal/config"
	"ranktracker/internal/store"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the webserver",
	Run: func(cmd *cobra.Command, args []string) {
		log.Info().Msg("Running webserver process")
		conf := config.FromCobraCmd(cmd)

		db := mustDatabase(conf)

		ctx, cancel := context.WithCancel(context.Background())
		server := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port),
			Handler: api.New(ctx, store.New(db)),
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", server.Addr).Msg("Listening")
			errCh <- server.ListenAndServe()
		}()

		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("Could not close db cleanly on shutdown: %v\n", err)
			}
			cancel()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Webserver stopped unexpectedly")
			}
		case sig := <-sigCh:
			log.Info().Msgf("Received signal %v, shutting down...", sig)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Could not shut down webserver cleanly")
			}
		}
	},
}
