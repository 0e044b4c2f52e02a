package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"ranktracker/internal/models"
	"ranktracker/internal/pipeline"
	"ranktracker/internal/queue"
)

// Store is the persistence surface the worker needs on top of what the pipeline
// engine already writes
type Store interface {
	GetRun(ctx context.Context, runID int64) (*models.ReportRun, error)
	AssignWorker(ctx context.Context, runID int64, workerID string) error
	Heartbeat(ctx context.Context, runID int64) error
}

// StepBuilder turns a run request into the pipeline to execute for it
type StepBuilder interface {
	Steps(req queue.RunRequest) []pipeline.Step
}

type Worker struct {
	ID     string
	store  Store
	queue  queue.Client
	engine *pipeline.Engine
	steps  StepBuilder

	// HeartbeatInterval controls how often the run row is stamped while working
	HeartbeatInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func New(store Store, queue queue.Client, engine *pipeline.Engine, steps StepBuilder) *Worker {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		ID:                id,
		store:             store,
		queue:             queue,
		engine:            engine,
		steps:             steps,
		HeartbeatInterval: time.Minute,
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Start is a blocking function. It listens to the queue for run requests and executes
// the collection pipeline for each.
func (w *Worker) Start() error {
	return w.queue.Subscribe(w.ctx, w.handle)
}

func (w *Worker) handle(message queue.RunRequest) {
	if err := message.Validate(); err != nil {
		log.Error().Err(err).Int64("run_id", message.RunID).Msg("Discarding malformed run request")
		return
	}

	ctx, cancel := context.WithCancel(w.ctx)
	defer cancel()

	run, err := tryRunR(3, func() (*models.ReportRun, error) {
		return w.store.GetRun(ctx, message.RunID)
	})
	if err != nil {
		log.Error().Err(err).Int64("run_id", message.RunID).Msg("Could not load run")
		return
	}

	if err := tryRun(3, func() error {
		return w.store.AssignWorker(ctx, run.ID, w.ID)
	}); err != nil {
		log.Error().Err(err).Int64("run_id", run.ID).Msg("Could not claim run")
		return
	}

	// Stamp the run regularly so others know it is getting worked on. The goroutine
	// ends when the surrounding context gets cancelled below
	go w.sendHeartbeat(ctx, run.ID)

	log.Info().
		Int64("run_id", run.ID).
		Str("domain", run.Domain).
		Str("worker_id", w.ID).
		Msg("Executing report run")

	if err := w.engine.Execute(ctx, run, w.steps.Steps(message)); err != nil {
		log.Error().Err(err).Int64("run_id", run.ID).Msg("Run did not complete")
	}
}

// sendHeartbeat updates the run row on an interval so the rest of the system can
// identify runs whose worker died
func (w *Worker) sendHeartbeat(ctx context.Context, runID int64) {
	ticker := time.NewTicker(w.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, runID); err != nil {
				log.Error().
					Err(err).
					Int64("run_id", runID).
					Msg("Could not update run heartbeat")
			}
		}
	}
}

// tryRunR attempts to run a function for maxRetries time. If any time the function f
// succeeds, it will return the result and no error straightaway. Otherwise, it will
// return the zero value of the result type and the error
func tryRunR[R any](maxRetries int, f func() (R, error)) (result R, lastErr error) {
	for attempts := 1; attempts-1 < maxRetries; attempts++ {
		result, err := f()
		if err == nil {
			return result, nil
		}

		lastErr = err
		time.Sleep(time.Duration(attempts) * time.Second)
	}
	return result, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

// tryRun attempts to run a function maxRetries time. If any time the function f
// succeeds, it will return with no error straightaway. Otherwise, it will return
// the error
func tryRun(maxRetries int, f func() error) (lastErr error) {
	for attempts := 1; attempts-1 < maxRetries; attempts++ {
		err := f()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(time.Duration(attempts) * time.Second)
	}

	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func (w *Worker) Stop() {
	w.cancel()
}
