// Package batch fans identifiers out across a bounded pool of
// resolvers and collects one outcome per identifier.
package batch

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cesarachcar/scraper-emails-papers/internal/resolve"
)

// Resolver drives one item to a terminal outcome. Implementations must
// never return by panicking; failures are outcomes.
type Resolver interface {
	Resolve(ctx context.Context, item resolve.Item) resolve.Outcome
}

// OutcomeRecorder receives each outcome for observability.
type OutcomeRecorder interface {
	Record(ctx context.Context, out *resolve.Outcome)
}

// Config holds batch dispatch parameters.
type Config struct {
	// Concurrency caps the number of items in flight. This is the
	// pipeline's only backpressure mechanism.
	Concurrency int
	// Seed drives the deterministic pre-dispatch shuffle that spreads
	// concurrent requests across hosts.
	Seed int64
	// Sample, when positive, limits the run to the first Sample
	// shuffled items.
	Sample int
}

// Summary aggregates a completed run.
type Summary struct {
	Total    int
	Emails   int
	ByStatus map[resolve.Status]int
	Elapsed  time.Duration
}

// Orchestrator runs whole batches.
type Orchestrator struct {
	cfg      Config
	resolver Resolver
	recorder OutcomeRecorder
	logger   *slog.Logger
}

// New creates an Orchestrator. A nil logger falls back to slog.Default;
// a nil recorder disables outcome measurements.
func New(cfg Config, resolver Resolver, recorder OutcomeRecorder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	return &Orchestrator{
		cfg:      cfg,
		resolver: resolver,
		recorder: recorder,
		logger:   logger.With("component", "batch"),
	}
}

// Seed shuffles ids deterministically, applies the sample limit, and
// numbers the survivors from 1 in dispatch order. The shuffle spreads
// items from the same host, which otherwise arrive clustered.
func (o *Orchestrator) Seed(ids []string) []resolve.Item {
	shuffled := make([]string, len(ids))
	copy(shuffled, ids)

	rng := rand.New(rand.NewPCG(uint64(o.cfg.Seed), 0))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if o.cfg.Sample > 0 && o.cfg.Sample < len(shuffled) {
		shuffled = shuffled[:o.cfg.Sample]
	}

	items := make([]resolve.Item, len(shuffled))
	for i, id := range shuffled {
		items[i] = resolve.Item{ID: id, Sequence: i + 1}
	}
	return items
}

// Run resolves every id under the concurrency cap and returns the
// aggregated summary. One item's failure never cancels or blocks its
// siblings; cancelling ctx drains in-flight work, and items dispatched
// after cancellation fail fast into their own outcomes, so every id
// still yields exactly one outcome.
func (o *Orchestrator) Run(ctx context.Context, ids []string) Summary {
	start := time.Now()
	runID := uuid.New()
	logger := o.logger.With("run_id", runID)

	items := o.Seed(ids)
	logger.Info(
		"batch starting",
		"items", len(items),
		"concurrency", o.cfg.Concurrency,
		"seed", o.cfg.Seed,
	)

	outcomes := make([]resolve.Outcome, len(items))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			out := o.resolver.Resolve(ctx, item)
			outcomes[i] = out

			if o.recorder != nil {
				o.recorder.Record(ctx, &out)
			}
			logger.Info(
				"item resolved",
				"sequence", out.Sequence,
				"status", out.Status,
				"emails", len(out.Emails),
				"host", out.SourceHost,
				"fetch", out.Timings.FetchLabel(),
				"decode", out.Timings.DecodeLabel(),
				"total", out.Timings.Total.Round(10*time.Millisecond).String(),
				"doi", out.ItemID,
			)
			return nil
		})
	}
	g.Wait()

	summary := Summary{
		Total:    len(outcomes),
		ByStatus: make(map[resolve.Status]int),
		Elapsed:  time.Since(start),
	}
	for i := range outcomes {
		summary.ByStatus[outcomes[i].Status]++
		summary.Emails += len(outcomes[i].Emails)
	}

	logger.Info(
		"batch complete",
		"items", summary.Total,
		"emails", summary.Emails,
		"resolved", summary.ByStatus[resolve.StatusResolved],
		"elapsed", summary.Elapsed.Round(10*time.Millisecond).String(),
	)
	return summary
}
