// Package derive turns per-retailer RawRecords into CanonicalRecords
// using the retailer's data contract. Each schema family computes price,
// base price, volume, and cross-price through the same interface, so
// every derived feature means the same thing regardless of which raw
// columns fed it.
package derive

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"pospanel/internal/config"
	"pospanel/internal/contract"
	perrors "pospanel/internal/errors"
	"pospanel/pkg/contracts/domain"
)

// DeriveStats is the per-retailer drop and fallback accounting carried
// into the run summary.
type DeriveStats struct {
	Retailer string

	WeeksSeen          int
	WeeksKept          int
	DomainDrops        int
	NegativeWeekDrops  int
	BasePriceFallbacks int
	ImputedWeeks       int
	ImputedFraction    float64
	ImputationWarning  bool
}

// Deriver applies one retailer's contract-specific formulas.
type Deriver struct {
	contract *contract.RetailerDataContract
	cfg      config.PipelineConfig
	origin   time.Time
	pricer   pricer
	logger   *slog.Logger
}

// NewDeriver builds a deriver for the retailer's schema family.
func NewDeriver(c *contract.RetailerDataContract, cfg config.PipelineConfig, logger *slog.Logger) (*Deriver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	origin, err := cfg.OriginDate()
	if err != nil {
		return nil, perrors.NewConfigErrorWithCause("invalid week origin", err)
	}
	return &Deriver{
		contract: c,
		cfg:      cfg,
		origin:   origin,
		pricer:   pricerFor(c),
		logger:   logger.With("component", "deriver", "retailer", c.Retailer),
	}, nil
}

// Derive filters, aggregates, and derives canonical features for every
// surviving retailer-week. Row-level failures drop the row and are
// counted; a retailer with surviving rows but no computable volume path
// aborts with a MissingFeatureError.
func (d *Deriver) Derive(ctx context.Context, records []domain.RawRecord) ([]domain.CanonicalRecord, *DeriveStats, error) {
	stats := &DeriveStats{Retailer: d.contract.Retailer}

	weeks := d.buildWeeks(records)
	stats.WeeksSeen = len(weeks)
	if len(weeks) == 0 {
		d.logger.InfoContext(ctx, "no rows matched the brand filter", "brand_filter", d.cfg.BrandFilter)
		return nil, stats, nil
	}

	// Volume must be computable by some configured path before any week
	// is derived; silently dropping every row would hide the problem.
	if !d.contract.CanComputeVolume() {
		return nil, stats, perrors.NewMissingFeatureError(d.contract.Retailer, "Volume_Sales_SI")
	}

	window := newProxyWindow(d.cfg.BasePrice.ProxyWindowWeeks)
	out := make([]domain.CanonicalRecord, 0, len(weeks))

	for _, w := range weeks {
		rec, ok := d.deriveWeek(ctx, w, window, stats)
		if !ok {
			continue
		}
		out = append(out, rec)
		stats.WeeksKept++
	}

	if stats.WeeksKept > 0 {
		stats.ImputedFraction = float64(stats.ImputedWeeks) / float64(stats.WeeksKept)
		if stats.ImputedFraction > d.cfg.BasePrice.ImputedWarnFraction {
			stats.ImputationWarning = true
			d.logger.WarnContext(ctx, "heavy base price imputation",
				"imputed_weeks", stats.ImputedWeeks,
				"kept_weeks", stats.WeeksKept,
				"imputed_fraction", stats.ImputedFraction,
				"warn_threshold", d.cfg.BasePrice.ImputedWarnFraction)
		}
	}

	d.logger.InfoContext(ctx, "derivation complete",
		"weeks_seen", stats.WeeksSeen,
		"weeks_kept", stats.WeeksKept,
		"domain_drops", stats.DomainDrops,
		"base_price_fallbacks", stats.BasePriceFallbacks,
		"imputed_weeks", stats.ImputedWeeks)

	return out, stats, nil
}

// deriveWeek computes one canonical row. Any non-computable or
// non-finite required feature drops the week (a recovered DomainError),
// never the retailer.
func (d *Deriver) deriveWeek(ctx context.Context, w weekSlice, window *proxyWindow, stats *DeriveStats) (domain.CanonicalRecord, bool) {
	c := d.contract

	price := d.pricer.averagePrice(w)
	if !isUsable(price) {
		d.dropWeek(ctx, w, stats, "Price_SI", "average price is non-positive or missing")
		return domain.CanonicalRecord{}, false
	}

	base := d.pricer.basePrice(w)
	if base.source == sourceAvgPriceFallback {
		stats.BasePriceFallbacks++
		d.logger.DebugContext(ctx, "base price fallback",
			"date", w.date.Format("2006-01-02"),
			"source", string(base.source))
	}
	imputed := false
	if !isUsable(base.value) {
		// No vendor column produced a base price this week; impute from
		// the trailing proxy window.
		base = basePriceResult{value: window.mean(), source: sourceProxyImputed}
		if !isUsable(base.value) {
			d.dropWeek(ctx, w, stats, "Base_Price_SI", "base price is not computable and no proxy history exists")
			return domain.CanonicalRecord{}, false
		}
		imputed = true
		stats.ImputedWeeks++
		d.logger.DebugContext(ctx, "base price imputed from proxy window",
			"date", w.date.Format("2006-01-02"),
			"proxy_base_price", base.value)
	}
	window.push(base.value)

	volume := d.pricer.volume(w)
	if !isUsable(volume) {
		d.dropWeek(ctx, w, stats, "Volume_Sales_SI", "volume is non-positive or missing")
		return domain.CanonicalRecord{}, false
	}

	depth := price/base.value - 1
	if math.IsNaN(depth) || math.IsInf(depth, 0) {
		d.dropWeek(ctx, w, stats, "Promo_Depth_SI", "promotional depth is non-finite")
		return domain.CanonicalRecord{}, false
	}
	depth = clamp(depth, d.cfg.PromoDepthClip.Lower, d.cfg.PromoDepthClip.Upper)

	// Cross-price control: hard-zeroed when the contract declares no
	// competitor data, so the downstream interaction term contributes
	// exactly zero instead of a missing value.
	pricePL, logPricePL := 0.0, 0.0
	if c.HasCompetitor == 1 {
		pricePL = d.pricer.crossPrice(w)
		if !isUsable(pricePL) {
			d.dropWeek(ctx, w, stats, "Price_PL", "private label price is non-positive or missing")
			return domain.CanonicalRecord{}, false
		}
		logPricePL = math.Log(pricePL)
	}

	week := weekNumber(w.date, d.origin)
	if week < 0 {
		stats.NegativeWeekDrops++
		d.dropWeek(ctx, w, stats, "Week_Number", "date predates the global week origin")
		return domain.CanonicalRecord{}, false
	}

	spring, summer, fall := seasonFlags(w.date)

	return domain.CanonicalRecord{
		Date:     w.date,
		Retailer: c.Retailer,

		PriceSI:       price,
		BasePriceSI:   base.value,
		PromoDepthSI:  depth,
		VolumeSalesSI: volume,
		PricePL:       pricePL,

		LogPriceSI:       math.Log(price),
		LogBasePriceSI:   math.Log(base.value),
		LogVolumeSalesSI: math.Log(volume),
		LogPricePL:       logPricePL,

		HasPromo:      c.HasPromo,
		HasCompetitor: c.HasCompetitor,

		Spring:     spring,
		Summer:     summer,
		Fall:       fall,
		WeekNumber: week,

		BasePriceImputed: imputed,
	}, true
}

// dropWeek records a row-level domain drop.
func (d *Deriver) dropWeek(ctx context.Context, w weekSlice, stats *DeriveStats, column, reason string) {
	stats.DomainDrops++
	err := perrors.NewDomainError(d.contract.Retailer, column, reason)
	d.logger.WarnContext(ctx, "week dropped",
		"date", w.date.Format("2006-01-02"),
		"column", column,
		"error", err.Error())
}

// buildWeeks filters raw records by product and aggregates them to one
// slice per week: focal-brand rows summed (ratio columns unit-weighted),
// private-label rows collapsed to dollar/unit totals.
func (d *Deriver) buildWeeks(records []domain.RawRecord) []weekSlice {
	type weekAccum struct {
		sums   map[string]float64
		seen   map[string]bool
		ratioW map[string]float64 // unit-weighted numerators
		units  float64
		pl     plSlice
	}

	b := d.contract.Bindings
	ratioCols := map[string]bool{}
	if b.AvgNetPrice != "" {
		ratioCols[b.AvgNetPrice] = true
	}
	if b.AvgPricePerUnit != "" {
		ratioCols[b.AvgPricePerUnit] = true
	}

	accums := make(map[time.Time]*weekAccum)
	order := make([]time.Time, 0)

	accumFor := func(date time.Time) *weekAccum {
		a, ok := accums[date]
		if !ok {
			a = &weekAccum{
				sums:   make(map[string]float64),
				seen:   make(map[string]bool),
				ratioW: make(map[string]float64),
			}
			accums[date] = a
			order = append(order, date)
		}
		return a
	}

	for _, rec := range records {
		isSI := d.matchesFilter(rec.Product, d.cfg.BrandFilter)
		isPL := d.contract.HasCompetitor == 1 && d.matchesFilter(rec.Product, d.cfg.PrivateLabelFilter)
		if !isSI && !isPL {
			continue
		}
		a := accumFor(rec.Date)

		if isPL {
			dollars := rec.Value(b.TotalDollars)
			units := rec.Value(b.TotalUnits)
			if !math.IsNaN(dollars) && !math.IsNaN(units) {
				a.pl.dollars += dollars
				a.pl.units += units
			}
			continue
		}

		units := rec.Value(b.TotalUnits)
		if math.IsNaN(units) {
			units = 0
		}
		a.units += units

		for col, v := range rec.Columns {
			if math.IsNaN(v) {
				continue
			}
			if ratioCols[col] {
				a.ratioW[col] += v * units
				a.seen[col] = true
				continue
			}
			a.sums[col] += v
			a.seen[col] = true
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	weeks := make([]weekSlice, 0, len(order))
	for _, date := range order {
		a := accums[date]

		// PL-only weeks carry no focal-brand observation.
		if len(a.seen) == 0 {
			continue
		}

		cols := make(map[string]float64, len(a.seen))
		for col := range a.seen {
			if ratioCols[col] {
				if a.units > 0 {
					cols[col] = a.ratioW[col] / a.units
				}
				continue
			}
			cols[col] = a.sums[col]
		}
		weeks = append(weeks, weekSlice{date: date, si: cols, pl: a.pl})
	}
	return weeks
}

// matchesFilter is a case-insensitive substring match on the product name.
func (d *Deriver) matchesFilter(product, filter string) bool {
	if filter == "" {
		return false
	}
	return strings.Contains(strings.ToUpper(product), strings.ToUpper(filter))
}

// clamp bounds v to [lower, upper].
func clamp(v, lower, upper float64) float64 {
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}
