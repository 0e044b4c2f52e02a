// Package faults categorizes pipeline step failures as retryable or permanent. The
// verdict drives the orchestrator's retry-vs-continue decision.
package faults

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"ranktracker/internal/provider"
)

type Category string

const (
	CategoryRetryable Category = "retryable"
	CategoryPermanent Category = "permanent"
)

// Classified is the verdict for a raised failure
type Classified struct {
	Category Category
	Message  string
}

// Retryable returns true if re-executing the failed work may succeed
func (c Classified) Retryable() bool {
	return c.Category == CategoryRetryable
}

// Classify maps a raised error to a retry category. Transient conditions (timeouts,
// connection failures, rate limits, provider 5xx) are retryable; bad input, missing
// data and provider 4xx are permanent. Unknown errors default to permanent so that an
// unclassified failure cannot hold a run in a retry loop.
func Classify(err error) Classified {
	if err == nil {
		return Classified{Category: CategoryPermanent}
	}

	msg := err.Error()

	if errors.Is(err, context.DeadlineExceeded) {
		return Classified{CategoryRetryable, msg}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classified{CategoryRetryable, msg}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return Classified{CategoryRetryable, msg}
	}

	if errors.Is(err, provider.ErrNoData) {
		return Classified{CategoryPermanent, msg}
	}

	var provErr *provider.Error
	if errors.As(err, &provErr) {
		return Classified{classifyProvider(provErr), msg}
	}

	// Fall back to message heuristics for errors from clients that don't wrap a
	// typed provider error
	lower := strings.ToLower(msg)
	for _, marker := range []string{"rate limit", "too many requests", "timeout", "timed out", "connection refused", "connection reset", "temporarily unavailable"} {
		if strings.Contains(lower, marker) {
			return Classified{CategoryRetryable, msg}
		}
	}

	return Classified{CategoryPermanent, msg}
}

func classifyProvider(err *provider.Error) Category {
	if err.Transient {
		return CategoryRetryable
	}

	switch {
	case err.StatusCode == http.StatusTooManyRequests:
		return CategoryRetryable
	case err.StatusCode >= 500:
		return CategoryRetryable
	default:
		return CategoryPermanent
	}
}
