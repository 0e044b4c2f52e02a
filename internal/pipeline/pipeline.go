// Package pipeline runs an ordered sequence of collection steps against a run record,
// persisting progress between steps and applying the two-tier failure policy: only a
// critical step's retryable failure aborts an attempt; everything else is folded into
// the run's warnings so the report still completes with the best data available.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"ranktracker/internal/faults"
	"ranktracker/internal/models"
	"ranktracker/internal/queue"
)

// Step is one unit of the collection pipeline
type Step struct {
	Name     string
	Critical bool
	// Weight is the step's share of the 0-100 progress range, relative to the other
	// steps' weights
	Weight int
	// Run does the work. The returned result is persisted on success; a nil result
	// with nil error means the step had nothing to store
	Run func(ctx context.Context) (any, error)
}

// Store is the persistence surface the engine needs. The engine is the only writer to
// a run's status, progress and warnings while it executes. All writes must be
// idempotent: an aborted attempt re-executes every step, so progress updates may not
// move backwards and duplicate result inserts must be skipped.
type Store interface {
	// MarkRunning transitions the run to running and stamps started_at. Called once,
	// before the first step of the first attempt
	MarkRunning(ctx context.Context, runID int64) error
	// RecordAttempt bumps the attempt counter on retried executions
	RecordAttempt(ctx context.Context, runID int64, attempt int) error
	// UpdateProgress persists the run's progress marker and current step. Progress is
	// monotonic: the store keeps the larger of the stored and given value
	UpdateProgress(ctx context.Context, runID int64, progress int, step string) error
	// SaveStepResult persists a step's result, skipping duplicates
	SaveStepResult(ctx context.Context, runID int64, step string, result any) error
	// FinishRun transitions the run to a terminal status
	FinishRun(ctx context.Context, runID int64, status models.RunStatus, warnings models.WarningMap, errMsg string) error
}

// Engine executes pipelines with bounded whole-pipeline retry
type Engine struct {
	store       Store
	queue       queue.Client
	maxAttempts int
	backoffBase time.Duration
	sleep       func(context.Context, time.Duration)
}

func New(store Store, queue queue.Client, maxAttempts int, backoffBase time.Duration) *Engine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Engine{
		store:       store,
		queue:       queue,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		sleep:       sleepContext,
	}
}

// SetSleep overrides the backoff sleep between attempts. Only used by tests
func (e *Engine) SetSleep(sleep func(context.Context, time.Duration)) {
	e.sleep = sleep
}

// sleepContext waits for the duration, returning early when the context ends
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Execute runs the steps in declared order against the run record. A critical step's
// retryable failure aborts the attempt and the whole pipeline is re-executed from the
// first step, up to the engine's attempt bound; steps must therefore be idempotent.
// Any other failure is recorded as a warning and execution continues. The run always
// reaches a terminal state: completed (possibly with warnings) or failed.
func (e *Engine) Execute(ctx context.Context, run *models.ReportRun, steps []Step) error {
	if run.Status.Terminal() {
		// At-least-once redelivery can hand us a finished run. Nothing to do
		log.Warn().
			Int64("run_id", run.ID).
			Str("status", string(run.Status)).
			Msg("Ignoring request for run already in terminal state")
		return nil
	}

	markers := progressMarkers(steps)

	if err := e.store.MarkRunning(ctx, run.ID); err != nil {
		return fmt.Errorf("could not mark run as running: %w", err)
	}
	run.Status = models.RunStatusRunning

	var warnings models.WarningMap
	var lastFault faults.Classified

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			// A worker shutting down mid-run must not burn the remaining attempts
			// against a dead context. The run stays running for later pickup
			log.Warn().
				Err(err).
				Int64("run_id", run.ID).
				Int("attempt", attempt).
				Msg("Context ended, abandoning run")
			return fmt.Errorf("run abandoned: %w", err)
		}
		if attempt > 1 {
			if err := e.store.RecordAttempt(ctx, run.ID, attempt); err != nil {
				log.Error().Err(err).Int64("run_id", run.ID).Msg("Could not record attempt")
			}
		}
		run.Attempts = attempt

		var err error
		warnings, err = e.runOnce(ctx, run, steps, markers)
		if err == nil {
			return e.finish(ctx, run, models.RunStatusCompleted, warnings, "")
		}

		lastFault = faults.Classify(err)
		log.Warn().
			Err(err).
			Int64("run_id", run.ID).
			Int("attempt", attempt).
			Int("max_attempts", e.maxAttempts).
			Msg("Pipeline attempt aborted on retryable failure")

		if attempt < e.maxAttempts {
			e.sleep(ctx, time.Duration(attempt)*e.backoffBase)
		}
	}

	if err := e.finish(ctx, run, models.RunStatusFailed, warnings, lastFault.Message); err != nil {
		return err
	}
	return fmt.Errorf("run failed after %d attempts: %s", e.maxAttempts, lastFault.Message)
}

// runOnce executes every step once, in order. It returns a non-nil error only for a
// critical step's retryable failure, which aborts the attempt.
func (e *Engine) runOnce(ctx context.Context, run *models.ReportRun, steps []Step, markers []int) (models.WarningMap, error) {
	warnings := models.WarningMap{}

	start := 0
	for i, step := range steps {
		if err := e.setProgress(ctx, run, start, step.Name); err != nil {
			return warnings, err
		}

		result, err := step.Run(ctx)
		if err != nil {
			cls := faults.Classify(err)
			if step.Critical && cls.Retryable() {
				return warnings, err
			}

			// Permanent or non-critical: absorb and move on without a result, so
			// the run still produces the best available partial report
			warnings[step.Name] = cls.Message
			log.Warn().
				Err(err).
				Int64("run_id", run.ID).
				Str("step", step.Name).
				Bool("critical", step.Critical).
				Str("category", string(cls.Category)).
				Msg("Step failed, continuing with warning")
		} else if result != nil {
			if err := e.store.SaveStepResult(ctx, run.ID, step.Name, result); err != nil {
				// Losing a result is not recoverable within this attempt
				return warnings, err
			}
		}

		start = markers[i]
		if err := e.setProgress(ctx, run, start, step.Name); err != nil {
			return warnings, err
		}
	}

	return warnings, nil
}

func (e *Engine) setProgress(ctx context.Context, run *models.ReportRun, progress int, step string) error {
	if err := e.store.UpdateProgress(ctx, run.ID, progress, step); err != nil {
		return fmt.Errorf("could not persist progress: %w", err)
	}
	if progress > run.Progress {
		run.Progress = progress
	}

	event := queue.ProgressEvent{RunID: run.ID, Step: step, Progress: run.Progress}
	if err := e.queue.PublishProgress(ctx, event); err != nil {
		// Progress events are advisory, the run record remains the source of truth
		log.Error().Err(err).Int64("run_id", run.ID).Msg("Could not publish progress event")
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, run *models.ReportRun, status models.RunStatus, warnings models.WarningMap, errMsg string) error {
	if err := e.store.FinishRun(ctx, run.ID, status, warnings, errMsg); err != nil {
		return fmt.Errorf("could not finalize run: %w", err)
	}
	run.Status = status
	run.Warnings = warnings

	event := queue.RunFinishedEvent{RunID: run.ID, Status: string(status), Error: errMsg}
	if err := e.queue.PublishFinished(ctx, event); err != nil {
		log.Error().Err(err).Int64("run_id", run.ID).Msg("Could not publish terminal event")
	}

	log.Info().
		Int64("run_id", run.ID).
		Str("status", string(status)).
		Int("warnings", len(warnings)).
		Msg("Run finished")
	return nil
}

// progressMarkers converts step weights into cumulative end-of-step progress values
// on the 0-100 range. The final step always ends at 100.
func progressMarkers(steps []Step) []int {
	total := 0
	for _, step := range steps {
		if step.Weight > 0 {
			total += step.Weight
		}
	}

	markers := make([]int, len(steps))
	cumulative := 0
	for i, step := range steps {
		if step.Weight > 0 {
			cumulative += step.Weight
		}
		if total > 0 {
			markers[i] = cumulative * 100 / total
		}
	}
	if len(markers) > 0 {
		markers[len(markers)-1] = 100
	}
	return markers
}
