// Package stats derives the vocabulary counters for one attribute scope.
// Nothing is cached; every call recomputes from current state so the
// numbers are honest immediately after merges and suggestion applies.
package stats

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"canonvocab/internal/scanner"
	"canonvocab/internal/vocab"
	"canonvocab/pkg/logger"
)

// Counter is the read side of the vocabulary store the aggregator needs.
type Counter interface {
	Counts(ctx context.Context, projectID, attributeSlug string) (terms int, mappings int, err error)
}

// Aggregator computes on-demand stats from the store and the scanner.
type Aggregator struct {
	store   Counter
	scanner *scanner.Scanner
	logger  *zap.Logger
}

// New creates an aggregator.
func New(store Counter, sc *scanner.Scanner) *Aggregator {
	return &Aggregator{
		store:   store,
		scanner: sc,
		logger:  logger.Named("stats"),
	}
}

// Compute returns the scope's current counters. The store counts and the
// corpus scan are independent reads, so they run concurrently.
func (a *Aggregator) Compute(ctx context.Context, projectID, attributeSlug string) (*vocab.Stats, error) {
	var (
		terms, mappings int
		scan            *scanner.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		terms, mappings, err = a.store.Counts(gctx, projectID, attributeSlug)
		return err
	})
	g.Go(func() error {
		var err error
		scan, err = a.scanner.Scan(gctx, projectID, attributeSlug)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &vocab.Stats{
		TermCount:     terms,
		MappingCount:  mappings,
		UnmappedCount: len(scan.Unmapped),
	}
	if scan.Observed > 0 {
		stats.Coverage = float64(scan.Observed-len(scan.Unmapped)) / float64(scan.Observed)
	}

	a.logger.Debug("Stats computed",
		zap.String("project_id", projectID),
		zap.String("attribute_slug", attributeSlug),
		zap.Int("terms", stats.TermCount),
		zap.Int("mappings", stats.MappingCount),
		zap.Int("unmapped", stats.UnmappedCount),
	)
	return stats, nil
}
