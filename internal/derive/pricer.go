package derive

import (
	"math"
	"time"

	"pospanel/internal/contract"
)

// weekSlice is one retailer-week after product filtering and
// aggregation: the focal-brand vendor columns summed (ratio columns
// unit-weighted), plus the private-label dollar/unit totals when the
// retailer carries a store brand.
type weekSlice struct {
	date time.Time
	si   map[string]float64
	pl   plSlice
}

type plSlice struct {
	dollars float64
	units   float64
}

func (w weekSlice) val(column string) float64 {
	if column == "" {
		return math.NaN()
	}
	v, ok := w.si[column]
	if !ok {
		return math.NaN()
	}
	return v
}

// basePriceSource identifies which path of the fallback chain produced a
// week's base price, so the chosen path is observable in logs and stats.
type basePriceSource string

const (
	sourceBaseRatio        basePriceSource = "base_ratio"
	sourceNonPromotedRatio basePriceSource = "non_promoted_ratio"
	sourceAvgPriceFallback basePriceSource = "avg_price_fallback"
	sourceProxyImputed     basePriceSource = "proxy_imputed"
	sourceNone             basePriceSource = ""
)

type basePriceResult struct {
	value  float64
	source basePriceSource
}

// pricer is the derivation interface every schema family implements:
// average price, base price, volume, and cross-price over one
// retailer-week. The variant is selected once, by contract, at deriver
// construction.
type pricer interface {
	averagePrice(w weekSlice) float64
	basePrice(w weekSlice) basePriceResult
	volume(w weekSlice) float64
	crossPrice(w weekSlice) float64
}

// pricerFor returns the family's variant.
func pricerFor(c *contract.RetailerDataContract) pricer {
	base := basePricer{c: c}
	if c.Family == contract.FamilyCRX {
		return netPricePricer{basePricer: base}
	}
	return grossTotalsPricer{basePricer: base}
}

// basePricer carries the derivations shared by every family.
type basePricer struct {
	c *contract.RetailerDataContract
}

// basePrice walks the ordered fallback chain over whatever the contract
// binds: modeled base sales first, then the non-promoted ratio guarded
// by the minimum-sample threshold, then the vendor's own average price
// per unit. Each decision is row-local.
func (p basePricer) basePrice(w weekSlice) basePriceResult {
	b := p.c.Bindings

	if b.BaseDollars != "" && b.BaseUnits != "" {
		units := w.val(b.BaseUnits)
		if units > 0 {
			if v := w.val(b.BaseDollars) / units; isUsable(v) {
				return basePriceResult{value: v, source: sourceBaseRatio}
			}
		}
	}

	if b.NonPromotedDollars != "" && b.NonPromotedUnits != "" {
		units := w.val(b.NonPromotedUnits)
		if units >= p.c.MinNonPromotedUnits && units > 0 {
			if v := w.val(b.NonPromotedDollars) / units; isUsable(v) {
				return basePriceResult{value: v, source: sourceNonPromotedRatio}
			}
		}
		// Too few non-promoted units to trust the ratio this week; use
		// the vendor's average price per unit instead.
		if b.AvgPricePerUnit != "" {
			if v := w.val(b.AvgPricePerUnit); isUsable(v) {
				return basePriceResult{value: v, source: sourceAvgPriceFallback}
			}
		}
	}

	return basePriceResult{value: math.NaN(), source: sourceNone}
}

// volume uses a direct volume column when bound, otherwise units times
// the configured factor. NaN means no configured path produced a value.
func (p basePricer) volume(w weekSlice) float64 {
	if p.c.Bindings.VolumeSales != "" {
		return w.val(p.c.Bindings.VolumeSales)
	}
	if p.c.VolumeSalesFactor > 0 && p.c.Bindings.TotalUnits != "" {
		return w.val(p.c.Bindings.TotalUnits) * p.c.VolumeSalesFactor
	}
	return math.NaN()
}

// crossPrice computes the private-label average price: dedicated PL
// columns when bound, otherwise the PL rows aggregated from the same
// file by product-name filtering.
func (p basePricer) crossPrice(w weekSlice) float64 {
	b := p.c.Bindings
	if b.PLDollars != "" && b.PLUnits != "" {
		units := w.val(b.PLUnits)
		if units > 0 {
			return w.val(b.PLDollars) / units
		}
		return math.NaN()
	}
	if w.pl.units > 0 {
		return w.pl.dollars / w.pl.units
	}
	return math.NaN()
}

// grossTotalsPricer derives the circana family: price is the gross
// average, total dollars over total units.
type grossTotalsPricer struct {
	basePricer
}

func (p grossTotalsPricer) averagePrice(w weekSlice) float64 {
	units := w.val(p.c.Bindings.TotalUnits)
	if !(units > 0) {
		return math.NaN()
	}
	return w.val(p.c.Bindings.TotalDollars) / units
}

// netPricePricer derives the crx family: price is the vendor-computed
// average net price, taken directly. Recomputing from gross dollars and
// units would reintroduce the coupon discount into the shelf price and
// bias the elasticity downstream, so the gross ratio is never used here.
type netPricePricer struct {
	basePricer
}

func (p netPricePricer) averagePrice(w weekSlice) float64 {
	return w.val(p.c.Bindings.AvgNetPrice)
}

// isUsable reports whether a derived price is positive and finite.
func isUsable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
