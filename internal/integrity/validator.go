// Package integrity cross-checks derived figures against the decomposed
// accounting columns some vendors ship. The checks surface data-quality
// regressions; they never block the pipeline.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"pospanel/internal/contract"
	"pospanel/pkg/contracts/domain"
)

// Tolerances per check. Dollar identities reconcile to the cent; unit
// identities to a whole unit; the recomputed net price carries a looser
// bound because vendors round it independently.
const (
	TolDollars  = 0.01
	TolUnits    = 1.0
	TolNetPrice = 0.02
)

// CheckResult is one reconciliation check's tally over a retailer's rows.
type CheckResult struct {
	Name     string `json:"name"`
	Rows     int    `json:"rows"`
	Failures int    `json:"failures"`
}

// Passed reports whether every compared row reconciled.
func (c CheckResult) Passed() bool {
	return c.Failures == 0
}

// Report tallies all five checks for one retailer.
type Report struct {
	Retailer string        `json:"retailer"`
	Skipped  bool          `json:"skipped"`
	Checks   []CheckResult `json:"checks"`
}

// PassedCount returns how many checks fully reconciled.
func (r *Report) PassedCount() int {
	n := 0
	for _, c := range r.Checks {
		if c.Passed() {
			n++
		}
	}
	return n
}

// Passed reports whether every check reconciled (or the report was
// skipped for lack of decomposed columns).
func (r *Report) Passed() bool {
	return r.Skipped || r.PassedCount() == len(r.Checks)
}

// String renders the pass/fail tally, e.g. "4/5 passed".
func (r *Report) String() string {
	if r.Skipped {
		return "skipped"
	}
	return fmt.Sprintf("%d/%d passed", r.PassedCount(), len(r.Checks))
}

// Validator runs the reconciliation checks.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger.With("component", "integrity")}
}

// Check reconciles a retailer's raw rows against their decomposed
// accounting columns. When those columns are not bound, all checks are
// skipped silently: absence is a capability, not an error.
func (v *Validator) Check(ctx context.Context, records []domain.RawRecord, c *contract.RetailerDataContract) *Report {
	report := &Report{Retailer: c.Retailer}

	b := c.Bindings
	if !b.HasAccountingDecomposition() {
		report.Skipped = true
		return report
	}

	totalDollars := check("total_dollars_vs_gross_plus_refund", TolDollars)
	totalUnits := check("total_units_vs_gross_plus_refund", TolUnits)
	discountCoupon := check("discount_dollars_vs_negated_coupon", TolDollars)
	couponPromoted := check("negated_coupon_units_vs_promoted", TolUnits)
	netPrice := check("recomputed_net_price_vs_vendor", TolNetPrice)

	for _, rec := range records {
		totalDollars.compare(
			rec.Value(b.TotalDollars),
			rec.Value(b.GrossDollars)+rec.Value(b.RefundDollars))

		totalUnits.compare(
			rec.Value(b.TotalUnits),
			rec.Value(b.GrossUnits)+rec.Value(b.RefundUnits))

		if b.DiscountDollars != "" {
			discountCoupon.compare(
				rec.Value(b.DiscountDollars),
				-rec.Value(b.CouponDollars))
		}

		if b.PromotedUnits != "" {
			couponPromoted.compare(
				-rec.Value(b.CouponUnits),
				rec.Value(b.PromotedUnits))
		}

		if gross := rec.Value(b.GrossUnits); gross > 0 {
			recomputed := (rec.Value(b.GrossDollars) + rec.Value(b.CouponDollars)) / gross
			netPrice.compare(recomputed, rec.Value(b.AvgNetPrice))
		}
	}

	report.Checks = []CheckResult{
		totalDollars.result, totalUnits.result,
		discountCoupon.result, couponPromoted.result,
		netPrice.result,
	}

	level := slog.LevelInfo
	if !report.Passed() {
		level = slog.LevelWarn
	}
	v.logger.Log(ctx, level, "integrity checks",
		"retailer", c.Retailer,
		"tally", report.String(),
		"rows", len(records))
	for _, cr := range report.Checks {
		if !cr.Passed() {
			v.logger.WarnContext(ctx, "integrity check failed",
				"retailer", c.Retailer,
				"check", cr.Name,
				"failures", cr.Failures,
				"rows", cr.Rows)
		}
	}

	return report
}

// checker accumulates one check's comparisons.
type checker struct {
	tol    float64
	result CheckResult
}

func check(name string, tol float64) *checker {
	return &checker{tol: tol, result: CheckResult{Name: name}}
}

// compare tallies one row. Rows where either side is missing are not
// counted against the check.
func (c *checker) compare(got, want float64) {
	if math.IsNaN(got) || math.IsNaN(want) {
		return
	}
	c.result.Rows++
	if math.Abs(got-want) > c.tol {
		c.result.Failures++
	}
}
