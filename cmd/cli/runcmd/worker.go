package runcmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"ranktracker/internal/collect"
	"ranktracker/internal/config"
	"ranktracker/internal/history"
	"ranktracker/internal/pipeline"
	"ranktracker/internal/poll"
	"ranktracker/internal/provider"
	"ranktracker/internal/store"
	"ranktracker/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs a worker process",
	Run: func(cmd *cobra.Command, args []string) {
		log.Info().Msg("Running worker process")
		conf := config.FromCobraCmd(cmd)

		db := mustDatabase(conf)
		redis := mustQueue(conf)
		st := store.New(db)

		vendor := provider.NewHTTPClient(
			conf.Provider.BaseURL,
			conf.Provider.APIKey,
			time.Duration(conf.Provider.TimeoutSec)*time.Second,
		)

		steps := collect.NewBuilder(
			collect.Providers{
				Rank:     vendor,
				Listing:  vendor,
				Citation: vendor,
				Review:   vendor,
			},
			history.NewMatcher(st),
			st,
			collect.Config{
				BatchSize:  conf.Pipeline.BatchSize,
				RatePerSec: conf.Pipeline.BatchRatePerSec,
				Poll: poll.Config{
					InitialDelay:      time.Duration(conf.Poll.InitialDelaySec) * time.Second,
					MaxDelay:          time.Duration(conf.Poll.MaxDelaySec) * time.Second,
					BackoffMultiplier: conf.Poll.BackoffMultiplier,
					ChecksPerStage:    conf.Poll.ChecksPerStage,
					MaxWait:           time.Duration(conf.Poll.MaxWaitMinutes) * time.Minute,
				},
			},
		)

		engine := pipeline.New(
			st, redis,
			conf.Pipeline.MaxAttempts,
			time.Duration(conf.Pipeline.BackoffBaseSec)*time.Second,
		)

		wrk := worker.New(st, redis, engine, steps)
		wrk.HeartbeatInterval = time.Duration(conf.Pipeline.HeartbeatIntervalSec) * time.Second

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() {
			errCh <- wrk.Start()
		}()

		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("Could not close db cleanly on shutdown: %v\n", err)
			}

			if err := redis.Close(); err != nil {
				log.Printf("Could not close redis queue cleanly on shutdown: %v\n", err)
			}

			wrk.Stop()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				log.Fatal().Err(err).Str("worker_id", wrk.ID).Msg("Ran into problems")
			}
		case sig := <-sigCh:
			log.Info().Msgf("Received signal %v, shutting down...", sig)
		}
	},
}
