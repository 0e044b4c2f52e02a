// Package provider holds the contracts for the external ranking and business-data
// providers. The pipeline only ever depends on these interfaces; concrete clients live
// with the deployment and are injected at startup.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/guregu/null/v6"
)

// ErrNoData is returned when a provider has nothing for the requested domain. It is a
// permanent condition: retrying the same request will not make data appear.
var ErrNoData = errors.New("provider has no data for domain")

// Error is a provider-side failure carrying enough context for classification
type Error struct {
	StatusCode int    // HTTP status from the provider, 0 if not applicable
	Message    string
	Transient  bool // provider explicitly marked the failure as temporary
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// RankProvider exposes an asynchronous ranking collection task: submit, wait until the
// provider has computed results, then fetch positions per keyword
type RankProvider interface {
	// SubmitRankingTask asks the provider to start computing rankings. Returns a task
	// handle to poll and fetch with
	SubmitRankingTask(ctx context.Context, domain string, keywords []string) (taskID string, err error)
	// TaskReady reports whether the submitted task has finished on the provider side
	TaskReady(ctx context.Context, taskID string) (bool, error)
	// FetchPosition returns the rank position for one keyword. A null position means
	// the domain did not rank for the keyword
	FetchPosition(ctx context.Context, taskID, keyword string) (null.Int, error)
}

// Listing is a business listing record as reported by a listing provider
type Listing struct {
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Phone      string   `json:"phone"`
	Website    string   `json:"website"`
	Categories []string `json:"categories"`
}

// ListingProvider fetches the business listing for a domain
type ListingProvider interface {
	FetchListing(ctx context.Context, domain string) (*Listing, error)
}

// Citation is one directory entry referencing the business
type Citation struct {
	Site   string `json:"site"`
	URL    string `json:"url"`
	Listed bool   `json:"listed"`
}

// CitationProvider fetches directory citations for a domain
type CitationProvider interface {
	FetchCitations(ctx context.Context, domain string) ([]Citation, error)
}

// ReviewSummary aggregates review counts and ratings across review sites
type ReviewSummary struct {
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
}

// ReviewProvider fetches the review summary for a domain
type ReviewProvider interface {
	FetchReviews(ctx context.Context, domain string) (*ReviewSummary, error)
}
