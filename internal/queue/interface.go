package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunRequest represents a "run requested" message sent to the queue. The scheduler
// publishes one per triggered run; a worker picks it up and executes the pipeline.
type RunRequest struct {
	RunID       int64     `json:"run_id"`
	Domain      string    `json:"domain"`
	Keywords    []string  `json:"keywords"`
	MaxAttempts int       `json:"max_attempts"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Validate checks that the message is well formed enough to act on
func (m *RunRequest) Validate() error {
	var errs []error

	if m.RunID <= 0 {
		errs = append(errs, errors.New("run_id must be positive"))
	}

	m.Domain = strings.TrimSpace(m.Domain)
	if m.Domain == "" {
		errs = append(errs, errors.New("domain is empty"))
	}

	for i, kw := range m.Keywords {
		m.Keywords[i] = strings.TrimSpace(kw)
		if m.Keywords[i] == "" {
			errs = append(errs, fmt.Errorf("keyword %d is empty", i+1))
		}
	}

	if m.MaxAttempts < 1 {
		errs = append(errs, errors.New("max_attempts must be >= 1"))
	}

	return errors.Join(errs...)
}

// ProgressEvent is emitted after every step transition so polling UIs can observe a
// run mid-flight
type ProgressEvent struct {
	RunID    int64  `json:"run_id"`
	Step     string `json:"step"`
	Progress int    `json:"progress"`
}

// RunFinishedEvent is the terminal event for a run
type RunFinishedEvent struct {
	RunID  int64  `json:"run_id"`
	Status string `json:"status"` // completed | failed
	Error  string `json:"error,omitempty"`
}

// Client defines the interface for the message bus
type Client interface {
	// PublishRunRequest enqueues a run for a worker to pick up
	PublishRunRequest(ctx context.Context, message RunRequest) error
	// Subscribe blocks, delivering run requests to the handler until the context ends
	Subscribe(ctx context.Context, handler func(RunRequest)) error
	// PublishProgress broadcasts a step/progress transition
	PublishProgress(ctx context.Context, event ProgressEvent) error
	// PublishFinished broadcasts the terminal state of a run
	PublishFinished(ctx context.Context, event RunFinishedEvent) error
	Close() error
}
