package faults_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"ranktracker/internal/faults"
	"ranktracker/internal/provider"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category faults.Category
	}{
		{
			name:     "context deadline exceeded is retryable",
			err:      context.DeadlineExceeded,
			category: faults.CategoryRetryable,
		},
		{
			name:     "wrapped deadline is retryable",
			err:      fmt.Errorf("fetching listing: %w", context.DeadlineExceeded),
			category: faults.CategoryRetryable,
		},
		{
			name:     "network timeout is retryable",
			err:      &net.DNSError{Err: "lookup timed out", IsTimeout: true},
			category: faults.CategoryRetryable,
		},
		{
			name:     "connection refused is retryable",
			err:      fmt.Errorf("dialing provider: %w", syscall.ECONNREFUSED),
			category: faults.CategoryRetryable,
		},
		{
			name:     "provider 429 is retryable",
			err:      &provider.Error{StatusCode: 429, Message: "slow down"},
			category: faults.CategoryRetryable,
		},
		{
			name:     "provider 503 is retryable",
			err:      &provider.Error{StatusCode: 503, Message: "maintenance"},
			category: faults.CategoryRetryable,
		},
		{
			name:     "provider transient flag is retryable",
			err:      &provider.Error{Message: "task queue backed up", Transient: true},
			category: faults.CategoryRetryable,
		},
		{
			name:     "provider 400 is permanent",
			err:      &provider.Error{StatusCode: 400, Message: "bad domain"},
			category: faults.CategoryPermanent,
		},
		{
			name:     "provider 404 is permanent",
			err:      &provider.Error{StatusCode: 404, Message: "unknown domain"},
			category: faults.CategoryPermanent,
		},
		{
			name:     "no data is permanent",
			err:      fmt.Errorf("citations: %w", provider.ErrNoData),
			category: faults.CategoryPermanent,
		},
		{
			name:     "rate limit message heuristic",
			err:      errors.New("API rate limit exceeded"),
			category: faults.CategoryRetryable,
		},
		{
			name:     "timeout message heuristic",
			err:      errors.New("request timed out after 30s"),
			category: faults.CategoryRetryable,
		},
		{
			name:     "unknown error fails closed as permanent",
			err:      errors.New("something completely unexpected"),
			category: faults.CategoryPermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := faults.Classify(tt.err)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.err.Error(), got.Message)
		})
	}
}

func TestClassified_Retryable(t *testing.T) {
	assert.True(t, faults.Classified{Category: faults.CategoryRetryable}.Retryable())
	assert.False(t, faults.Classified{Category: faults.CategoryPermanent}.Retryable())
}

func TestClassify_NetOpError(t *testing.T) {
	// An *net.OpError wrapping ECONNRESET, as returned by a dropped provider socket
	opErr := &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}
	got := faults.Classify(opErr)
	assert.Equal(t, faults.CategoryRetryable, got.Category)
}
