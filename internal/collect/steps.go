// Package collect builds the standard report pipeline for a domain: rankings,
// business listing, citations, reviews, historical trends and the keyword snapshot.
package collect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"ranktracker/internal/faults"
	"ranktracker/internal/history"
	"ranktracker/internal/models"
	"ranktracker/internal/pipeline"
	"ranktracker/internal/poll"
	"ranktracker/internal/provider"
	"ranktracker/internal/queue"
)

// Providers bundles the external data sources a report is collected from
type Providers struct {
	Rank     provider.RankProvider
	Listing  provider.ListingProvider
	Citation provider.CitationProvider
	Review   provider.ReviewProvider
}

// SnapshotSink persists the keyword snapshot of a completed collection
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snapshot models.ReportSnapshot) error
}

// Config bounds the collection fan-out and the provider polling loop
type Config struct {
	// BatchSize caps how many keyword sub-requests run concurrently
	BatchSize int
	// RatePerSec paces sub-requests against the provider's rate limit
	RatePerSec int
	Poll       poll.Config
}

// Builder assembles pipeline steps for run requests
type Builder struct {
	providers Providers
	matcher   *history.Matcher
	snapshots SnapshotSink
	cfg       Config
	limiter   *rate.Limiter
	clock     func() time.Time
}

func NewBuilder(providers Providers, matcher *history.Matcher, snapshots SnapshotSink, cfg Config) *Builder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	return &Builder{
		providers: providers,
		matcher:   matcher,
		snapshots: snapshots,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.BatchSize),
		clock:     time.Now,
	}
}

// Steps returns the report pipeline for one run request. Steps share collected state
// through the returned closures; a re-executed attempt rebuilds everything from the
// first step, so no state survives an abort.
func (b *Builder) Steps(req queue.RunRequest) []pipeline.Step {
	var positions models.PositionMap

	return []pipeline.Step{
		{
			Name:     "rankings",
			Critical: true,
			Weight:   35,
			Run: func(ctx context.Context) (any, error) {
				collected, err := b.collectRankings(ctx, req.Domain, req.Keywords)
				if err != nil {
					return nil, err
				}
				positions = collected
				return collected, nil
			},
		},
		{
			Name:     "listing",
			Critical: true,
			Weight:   15,
			Run: func(ctx context.Context) (any, error) {
				return b.providers.Listing.FetchListing(ctx, req.Domain)
			},
		},
		{
			Name:   "citations",
			Weight: 10,
			Run: func(ctx context.Context) (any, error) {
				return b.providers.Citation.FetchCitations(ctx, req.Domain)
			},
		},
		{
			Name:   "reviews",
			Weight: 10,
			Run: func(ctx context.Context) (any, error) {
				return b.providers.Review.FetchReviews(ctx, req.Domain)
			},
		},
		{
			Name:   "trends",
			Weight: 15,
			Run: func(ctx context.Context) (any, error) {
				if positions == nil {
					return nil, fmt.Errorf("no rankings to compare: %w", provider.ErrNoData)
				}
				return b.matcher.Trends(ctx, req.Domain, positions, b.clock().UTC())
			},
		},
		{
			Name:     "snapshot",
			Critical: true,
			Weight:   15,
			Run: func(ctx context.Context) (any, error) {
				if positions == nil {
					return nil, fmt.Errorf("no rankings to snapshot: %w", provider.ErrNoData)
				}
				err := b.snapshots.SaveSnapshot(ctx, models.ReportSnapshot{
					RunID:     req.RunID,
					Domain:    req.Domain,
					Positions: positions,
				})
				return nil, err
			},
		},
	}
}

// collectRankings submits the provider-side ranking task, waits for it to become
// ready, then pulls per-keyword positions in bounded concurrent batches
func (b *Builder) collectRankings(ctx context.Context, domain string, keywords []string) (models.PositionMap, error) {
	taskID, err := b.providers.Rank.SubmitRankingTask(ctx, domain, keywords)
	if err != nil {
		return nil, fmt.Errorf("submitting ranking task: %w", err)
	}

	err = poll.WaitUntilReady(ctx, b.cfg.Poll, func(ctx context.Context) (bool, error) {
		return b.providers.Rank.TaskReady(ctx, taskID)
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for ranking task %s: %w", taskID, err)
	}

	positions := make(models.PositionMap, len(keywords))
	var mu sync.Mutex

	for start := 0; start < len(keywords); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(keywords))
		batch := keywords[start:end]

		var wg sync.WaitGroup
		errCh := make(chan error, len(batch))

		for _, keyword := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := b.limiter.Wait(ctx); err != nil {
					errCh <- err
					return
				}

				position, err := b.providers.Rank.FetchPosition(ctx, taskID, keyword)
				if err != nil {
					// A keyword the provider permanently has nothing for becomes a
					// null position; anything transient aborts the whole step so the
					// attempt can be retried
					if faults.Classify(err).Retryable() {
						errCh <- fmt.Errorf("fetching position for %q: %w", keyword, err)
						return
					}
					log.Warn().
						Err(err).
						Str("domain", domain).
						Str("keyword", keyword).
						Msg("No position for keyword")
					position = null.Int{}
				}

				mu.Lock()
				positions[keyword] = position
				mu.Unlock()
			}()
		}

		wg.Wait()
		close(errCh)
		if err := <-errCh; err != nil {
			return nil, err
		}
	}

	return positions, nil
}
