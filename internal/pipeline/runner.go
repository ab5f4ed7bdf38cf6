// Package pipeline orchestrates the contract-driven ingestion run:
// adapter → deriver → integrity validator per retailer, then the panel
// merge. Each retailer's path is independent and side-effect free, so
// the merge is the only synchronization point.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"pospanel/internal/adapter"
	"pospanel/internal/config"
	"pospanel/internal/contract"
	"pospanel/internal/derive"
	"pospanel/internal/infrastructure"
	"pospanel/internal/integrity"
	"pospanel/internal/panel"
	"pospanel/pkg/contracts/domain"
)

// Runner executes one full pipeline run.
type Runner struct {
	cfg      *config.Config
	registry *contract.Registry
	logger   *slog.Logger
}

// NewRunner wires a runner from validated configuration.
func NewRunner(cfg *config.Config, registry *contract.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, registry: registry, logger: logger.With("component", "pipeline")}
}

// retailerResult carries one retailer's derived records to the merge.
type retailerResult struct {
	retailer string
	records  []domain.CanonicalRecord
}

// Run ingests every registered retailer and merges the results into the
// final feature panel. Fatal per-retailer errors abort the run unless
// the configuration permits partial results, in which case the retailer
// is skipped and recorded in RunStats.
func (r *Runner) Run(ctx context.Context) (*domain.FeaturePanel, *RunStats, error) {
	ctx = infrastructure.EnsureRunID(ctx)
	stats := NewRunStats(infrastructure.RunIDFromContext(ctx))

	retailers := r.registry.Retailers()
	r.logger.InfoContext(ctx, "starting pipeline run",
		"retailers", len(retailers),
		"allow_partial", r.cfg.Pipeline.AllowPartial,
		"max_concurrency", r.cfg.Pipeline.MaxConcurrency)

	results := make([]*retailerResult, len(retailers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.cfg.Pipeline.MaxConcurrency))

	for i, retailer := range retailers {
		i, retailer := i, retailer
		g.Go(func() error {
			res, rs := r.runRetailer(gctx, retailer)
			stats.Record(rs)
			if rs.Err != nil {
				if !r.cfg.Pipeline.AllowPartial {
					return rs.Err
				}
				rs.Skipped = true
				stats.Warn(fmt.Sprintf("retailer %s skipped: %v", retailer, rs.Err))
				r.logger.WarnContext(gctx, "retailer skipped under partial-results policy",
					"retailer", retailer, "error", rs.Err.Error())
				return nil
			}
			if rs.Derive != nil && rs.Derive.ImputationWarning {
				stats.Warn(fmt.Sprintf("retailer %s: %.0f%% of weeks used an imputed base price",
					retailer, rs.Derive.ImputedFraction*100))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	groups := make([][]domain.CanonicalRecord, 0, len(results))
	for _, res := range results {
		if res != nil {
			groups = append(groups, res.records)
		}
	}

	p, err := panel.Merge(groups...)
	if err != nil {
		return nil, stats, fmt.Errorf("panel merge failed: %w", err)
	}

	r.logger.InfoContext(ctx, "pipeline run complete",
		"panel_rows", p.Len(),
		"skipped_retailers", len(stats.SkippedRetailers()),
		"warnings", len(stats.Warnings))

	return p, stats, nil
}

// runRetailer executes one retailer's adapter → derive → integrity path.
func (r *Runner) runRetailer(ctx context.Context, retailer string) (*retailerResult, *RetailerStats) {
	rs := &RetailerStats{Retailer: retailer}

	c, err := r.registry.Resolve(retailer)
	if err != nil {
		rs.Err = err
		return nil, rs
	}

	path := c.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.cfg.Paths.InputDir, path)
	}

	records, loadStats, err := adapter.ForFamily(c.Family).Load(path, c)
	rs.Load = loadStats
	if err != nil {
		rs.Err = err
		return nil, rs
	}
	r.logger.InfoContext(ctx, "raw extract loaded",
		"retailer", retailer,
		"file", path,
		"rows_read", loadStats.RowsRead,
		"rows_kept", loadStats.RowsKept,
		"date_parse_drops", loadStats.DateParseDrops)

	// Integrity checks run on the raw rows as a side channel; the
	// derived output never depends on their outcome.
	rs.Integrity = integrity.NewValidator(r.logger).Check(ctx, records, c)

	deriver, err := derive.NewDeriver(c, r.cfg.Pipeline, r.logger)
	if err != nil {
		rs.Err = err
		return nil, rs
	}
	canonical, deriveStats, err := deriver.Derive(ctx, records)
	rs.Derive = deriveStats
	if err != nil {
		rs.Err = err
		return nil, rs
	}

	return &retailerResult{retailer: retailer, records: canonical}, rs
}
