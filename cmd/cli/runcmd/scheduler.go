package runcmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"ranktracker/internal/config"
	"ranktracker/internal/schedule"
	"ranktracker/internal/store"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Starts the scheduler process",
	Run: func(cmd *cobra.Command, args []string) {
		log.Info().Msg("Running scheduler process")
		conf := config.FromCobraCmd(cmd)

		db := mustDatabase(conf)
		redis := mustQueue(conf)

		ctx, cancel := context.WithCancel(context.Background())
		sch := schedule.New(store.New(db), redis, conf.Scheduler.TickCron, conf.Pipeline.MaxAttempts)

		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("Could not close db cleanly on shutdown: %v\n", err)
			}

			if err := redis.Close(); err != nil {
				log.Printf("Could not close redis queue cleanly on shutdown: %v\n", err)
			}

			cancel()
			sch.Stop()
		}()

		if err := sch.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		log.Info().Msgf("Received signal %v, shutting down...", <-sigCh)
	},
}
