package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ranktracker/internal/models"
	"ranktracker/internal/pipeline"
	"ranktracker/internal/provider"
	"ranktracker/internal/queue"
)

type memStore struct {
	mu sync.Mutex

	running      bool
	attempts     []int
	progress     []int // every persisted progress value, in order
	currentSteps []string
	results      map[string]any

	finalStatus   models.RunStatus
	finalWarnings models.WarningMap
	finalError    string
	finished      bool
}

func newMemStore() *memStore {
	return &memStore{results: make(map[string]any)}
}

func (m *memStore) MarkRunning(_ context.Context, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	return nil
}

func (m *memStore) RecordAttempt(_ context.Context, _ int64, attempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memStore) UpdateProgress(_ context.Context, _ int64, progress int, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Mirror the real store: progress can only grow
	if n := len(m.progress); n > 0 && progress < m.progress[n-1] {
		progress = m.progress[n-1]
	}
	m.progress = append(m.progress, progress)
	m.currentSteps = append(m.currentSteps, step)
	return nil
}

func (m *memStore) SaveStepResult(_ context.Context, _ int64, step string, result any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Skip-if-duplicate semantics
	if _, exists := m.results[step]; !exists {
		m.results[step] = result
	}
	return nil
}

func (m *memStore) FinishRun(_ context.Context, _ int64, status models.RunStatus, warnings models.WarningMap, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true
	m.finalStatus = status
	m.finalWarnings = warnings
	m.finalError = errMsg
	return nil
}

type memQueue struct {
	mu       sync.Mutex
	progress []queue.ProgressEvent
	finished []queue.RunFinishedEvent
}

func (m *memQueue) PublishRunRequest(context.Context, queue.RunRequest) error { return nil }

func (m *memQueue) Subscribe(ctx context.Context, _ func(queue.RunRequest)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *memQueue) PublishProgress(_ context.Context, event queue.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, event)
	return nil
}

func (m *memQueue) PublishFinished(_ context.Context, event queue.RunFinishedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, event)
	return nil
}

func (m *memQueue) Close() error { return nil }

func newEngine(store *memStore, q *memQueue, maxAttempts int) *pipeline.Engine {
	// Zero backoff keeps retry tests fast
	return pipeline.New(store, q, maxAttempts, 0)
}

func pendingRun() *models.ReportRun {
	return &models.ReportRun{ID: 42, Domain: "example.com", Status: models.RunStatusPending}
}

func okStep(name string, weight int) pipeline.Step {
	return pipeline.Step{
		Name:     name,
		Critical: true,
		Weight:   weight,
		Run: func(ctx context.Context) (any, error) {
			return name + " result", nil
		},
	}
}

func TestExecute_AllStepsSucceed(t *testing.T) {
	store := newMemStore()
	q := &memQueue{}
	run := pendingRun()

	steps := []pipeline.Step{okStep("rankings", 40), okStep("listing", 30), okStep("snapshot", 30)}
	err := newEngine(store, q, 3).Execute(context.Background(), run, steps)

	require.NoError(t, err)
	assert.True(t, store.running)
	assert.Equal(t, models.RunStatusCompleted, store.finalStatus)
	assert.Empty(t, store.finalWarnings)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	// Every step's result was persisted
	assert.Equal(t, "rankings result", store.results["rankings"])
	assert.Equal(t, "listing result", store.results["listing"])
	assert.Equal(t, "snapshot result", store.results["snapshot"])

	// Final progress is exactly 100
	require.NotEmpty(t, store.progress)
	assert.Equal(t, 100, store.progress[len(store.progress)-1])

	require.Len(t, q.finished, 1)
	assert.Equal(t, "completed", q.finished[0].Status)
}

func TestExecute_CriticalPermanentFailureStillCompletes(t *testing.T) {
	store := newMemStore()
	q := &memQueue{}
	run := pendingRun()

	boom := &provider.Error{StatusCode: 404, Message: "unknown domain"}
	steps := []pipeline.Step{
		okStep("rankings", 50),
		{
			Name:     "listing",
			Critical: true,
			Weight:   25,
			Run:      func(ctx context.Context) (any, error) { return nil, boom },
		},
		okStep("snapshot", 25),
	}

	err := newEngine(store, q, 3).Execute(context.Background(), run, steps)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, store.finalStatus)

	// The failed step left a warning and no result, later steps still ran
	assert.Contains(t, store.finalWarnings, "listing")
	assert.NotContains(t, store.results, "listing")
	assert.Contains(t, store.results, "snapshot")

	// No pipeline-level retry happened
	assert.Empty(t, store.attempts)
}

func TestExecute_CriticalRetryableFailureRetriesThenFails(t *testing.T) {
	store := newMemStore()
	q := &memQueue{}
	run := pendingRun()

	attempts := 0
	steps := []pipeline.Step{
		okStep("rankings", 50),
		{
			Name:     "snapshot",
			Critical: true,
			Weight:   50,
			Run: func(ctx context.Context) (any, error) {
				attempts++
				return nil, &provider.Error{StatusCode: 503, Message: "provider down"}
			},
		},
	}

	err := newEngine(store, q, 3).Execute(context.Background(), run, steps)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{2, 3}, store.attempts)

	assert.Equal(t, models.RunStatusFailed, store.finalStatus)
	assert.Contains(t, store.finalError, "provider down")
	assert.Equal(t, models.RunStatusFailed, run.Status)

	require.Len(t, q.finished, 1)
	assert.Equal(t, "failed", q.finished[0].Status)
	assert.Contains(t, q.finished[0].Error, "provider down")
}

func TestExecute_RetryableFailureRecoversOnSecondAttempt(t *testing.T) {
	store := newMemStore()
	q := &memQueue{}
	run := pendingRun()

	attempts := 0
	steps := []pipeline.Step{
		okStep("rankings", 50),
		{
			Name:     "snapshot",
			Critical: true,
			Weight:   50,
			Run: func(ctx context.Context) (any, error) {
				attempts++
				if attempts == 1 {
					return nil, errors.New("connection reset by peer")
				}
				return "snapshot result", nil
			},
		},
	}

	err := newEngine(store, q, 3).Execute(context.Background(), run, steps)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, models.RunStatusCompleted, store.finalStatus)
	assert.Empty(t, store.finalWarnings)
	// Step one ran twice but its result was stored once
	assert.Equal(t, "rankings result", store.results["rankings"])
}

func TestExecute_NonCriticalFailureNeverAborts(t *testing.T) {
	store := newMemStore()
	q := &memQueue{}
	run := pendingRun()

	// Even a retryable error on a non-critical step is absorbed
	steps := []pipeline.Step{
		okStep("rankings", 50),
		{
			Name:   "citations",
			Weight: 25,
			Run: func(ctx context.Context) (any, error) {
				return nil, &provider.Error{StatusCode: 429, Message: "rate limited"}
			},
		},
		okStep("snapshot", 25),
	}

	err := newEngine(store, q, 3).Execute(context.Background(), run, steps)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, store.finalStatus)
	assert.Contains(t, store.finalWarnings, "citations")
	assert.Empty(t, store.attempts)
	assert.Contains(t, store.results, "snapshot")
}

func TestExecute_FiveStepScenario(t *testing.T) {
	// A 5 step pipeline where step 3 (non-critical) always throws a permanent error:
	// exactly one warning, all other four results present
	store := newMemStore()
	q := &memQueue{}
	run := pendingRun()

	steps := []pipeline.Step{
		okStep("rankings", 30),
		okStep("listing", 20),
		{
			Name:   "citations",
			Weight: 10,
			Run: func(ctx context.Context) (any, error) {
				return nil, provider.ErrNoData
			},
		},
		okStep("reviews", 20),
		okStep("snapshot", 20),
	}

	err := newEngine(store, q, 3).Execute(context.Background(), run, steps)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, store.finalStatus)
	require.Len(t, store.finalWarnings, 1)
	assert.Contains(t, store.finalWarnings, "citations")

	assert.Len(t, store.results, 4)
	for _, name := range []string{"rankings", "listing", "reviews", "snapshot"} {
		assert.Contains(t, store.results, name)
	}
}

func TestExecute_ProgressIsMonotonicAndBounded(t *testing.T) {
	store := newMemStore()
	q := &memQueue{}
	run := pendingRun()

	attempts := 0
	steps := []pipeline.Step{
		okStep("rankings", 25),
		okStep("listing", 25),
		{
			Name:     "snapshot",
			Critical: true,
			Weight:   50,
			Run: func(ctx context.Context) (any, error) {
				attempts++
				if attempts < 2 {
					// Abort mid-run so the next attempt replays from step one
					return nil, context.DeadlineExceeded
				}
				return "snapshot result", nil
			},
		},
	}

	err := newEngine(store, q, 3).Execute(context.Background(), run, steps)
	require.NoError(t, err)

	prev := 0
	for _, p := range store.progress {
		assert.GreaterOrEqual(t, p, prev, "progress went backwards")
		assert.LessOrEqual(t, p, 100)
		prev = p
	}
	assert.Equal(t, 100, store.progress[len(store.progress)-1])
}

func TestExecute_TerminalRunIsIgnored(t *testing.T) {
	store := newMemStore()
	q := &memQueue{}
	run := &models.ReportRun{ID: 42, Status: models.RunStatusCompleted}

	called := false
	steps := []pipeline.Step{{
		Name: "rankings",
		Run: func(ctx context.Context) (any, error) {
			called = true
			return nil, nil
		},
	}}

	err := newEngine(store, q, 3).Execute(context.Background(), run, steps)

	require.NoError(t, err)
	assert.False(t, called)
	assert.False(t, store.finished)
	assert.False(t, store.running)
}

func TestExecute_BackoffScalesWithAttempt(t *testing.T) {
	store := newMemStore()
	q := &memQueue{}
	run := pendingRun()

	var slept []time.Duration
	engine := pipeline.New(store, q, 3, time.Second)
	engine.SetSleep(func(_ context.Context, d time.Duration) { slept = append(slept, d) })

	steps := []pipeline.Step{{
		Name:     "rankings",
		Critical: true,
		Weight:   100,
		Run: func(ctx context.Context) (any, error) {
			return nil, &provider.Error{Message: "overloaded", Transient: true}
		},
	}}

	err := engine.Execute(context.Background(), run, steps)
	require.Error(t, err)
	// Backoff between attempts 1→2 and 2→3, scaled by attempt number
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestExecute_ContextCancelStopsRetries(t *testing.T) {
	store := newMemStore()
	q := &memQueue{}
	run := pendingRun()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	engine := pipeline.New(store, q, 3, time.Hour)
	steps := []pipeline.Step{{
		Name:     "rankings",
		Critical: true,
		Weight:   100,
		Run: func(ctx context.Context) (any, error) {
			attempts++
			cancel()
			return nil, &provider.Error{Message: "overloaded", Transient: true}
		},
	}}

	start := time.Now()
	err := engine.Execute(ctx, run, steps)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// The hour-long backoff must not be served against a dead context, and no
	// further attempts run
	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, 1, attempts)
	assert.False(t, store.finished)
}
