package pipeline

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pospanel/internal/config"
	"pospanel/internal/contract"
	perrors "pospanel/internal/errors"
	"pospanel/internal/shared/testutil"
	"pospanel/pkg/contracts/domain"
)

func testConfig(t *testing.T, inputDir string, retailers ...string) *config.Config {
	t.Helper()

	contracts := map[string]config.ContractConfig{}
	flags := map[string]config.RetailerFlags{}

	for _, r := range retailers {
		switch r {
		case "walmart":
			contracts[r] = config.ContractConfig{
				SchemaFamily:  "circana",
				File:          "walmart.xlsx",
				HeaderOffset:  1,
				ProductColumn: "Product",
				WeekColumn:    "Time",
				Columns: config.ColumnBindingsConfig{
					TotalDollars: "Dollar Sales",
					TotalUnits:   "Unit Sales",
					VolumeSales:  "Volume Sales",
					BaseDollars:  "Base Dollar Sales",
					BaseUnits:    "Base Unit Sales",
				},
			}
			flags[r] = config.RetailerFlags{HasPromo: 1, HasCompetitor: 1}
		case "costco":
			contracts[r] = config.ContractConfig{
				SchemaFamily:  "crx",
				File:          "costco.csv",
				HeaderOffset:  2,
				ProductColumn: "Item",
				WeekColumn:    "Week Ending",
				Columns: config.ColumnBindingsConfig{
					TotalDollars:       "Total Dollars",
					TotalUnits:         "Total Units",
					AvgNetPrice:        "Avg Net Price",
					NonPromotedDollars: "Non Promoted Dollars",
					NonPromotedUnits:   "Non Promoted Units",
					AvgPricePerUnit:    "Average Price per Unit",
					GrossDollars:       "Gross Dollars",
					GrossUnits:         "Gross Units",
					CouponDollars:      "Coupon Dollars",
					CouponUnits:        "Coupon Units",
					RefundDollars:      "Refund Dollars",
					RefundUnits:        "Refund Units",
					DiscountDollars:    "Discount Dollars",
					PromotedUnits:      "Promoted Units",
				},
			}
			flags[r] = config.RetailerFlags{HasPromo: 1, HasCompetitor: 0}
		}
	}

	return &config.Config{
		Pipeline: config.PipelineConfig{
			RetailerDataContracts: contracts,
			Retailers:             flags,
			VolumeSalesFactorByRetailer: map[string]float64{
				"costco": 2.5,
			},
			BasePrice: config.BasePriceConfig{
				ProxyWindowWeeks:    4,
				ImputedWarnFraction: 0.25,
				MinNonPromotedUnits: 20,
			},
			PromoDepthClip:     config.ClipBounds{Lower: -0.80, Upper: 0.50},
			WeekOrigin:         "2021-01-03",
			BrandFilter:        "BRAND X",
			PrivateLabelFilter: "PRIVATE LABEL",
			MaxConcurrency:     1,
		},
		Paths: config.PathsConfig{InputDir: inputDir},
	}
}

func writeWalmartFixture(t *testing.T, dir string) {
	t.Helper()
	testutil.WriteCircanaWorkbook(t, dir, "walmart.xlsx", 1, testutil.CircanaHeader, [][]string{
		{"BRAND X 12OZ", "Week Ending 01-07-24", "16000", "1000", "2500", "18000", "1000"},
		{"PRIVATE LABEL 12OZ", "Week Ending 01-07-24", "8000", "800", "1900", "8500", "750"},
		{"BRAND X 12OZ", "Week Ending 01-14-24", "15000", "950", "2400", "17500", "950"},
		{"PRIVATE LABEL 12OZ", "Week Ending 01-14-24", "7800", "790", "1850", "8300", "740"},
	})
}

func writeCostcoFixture(t *testing.T, dir string) {
	t.Helper()
	testutil.WriteCRXExtract(t, dir, "costco.csv", 2, testutil.CRXHeader, [][]string{
		{"BRAND X 12OZ", "2024-01-07", "16010.00", "1000", "15.85", "8013.00", "500", "16.01",
			"16900.00", "1010", "-890.00", "-55", "-890.00", "-10", "890.00", "55"},
		{"BRAND X 12OZ", "2024-01-14", "15500.00", "970", "15.82", "7900.00", "480", "15.98",
			"16300.00", "980", "-800.00", "-50", "-800.00", "-10", "800.00", "50"},
	})
}

func newRunner(t *testing.T, cfg *config.Config) *Runner {
	t.Helper()
	registry, err := contract.NewRegistry(cfg.Pipeline)
	require.NoError(t, err)
	logger, _ := testutil.NewCaptureLogger(nil)
	return NewRunner(cfg, registry, logger)
}

func TestRunner_FullRun(t *testing.T) {
	dir := t.TempDir()
	writeWalmartFixture(t, dir)
	writeCostcoFixture(t, dir)

	cfg := testConfig(t, dir, "walmart", "costco")
	runner := newRunner(t, cfg)

	p, stats, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, p.Len())
	assert.Equal(t, 4, stats.PanelRows())
	assert.Empty(t, stats.SkippedRetailers())

	// Uniqueness of (Date, Retailer) across the whole panel
	seen := map[domain.PanelKey]bool{}
	for _, rec := range p.Records() {
		key := rec.Key()
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}

	// Costco rows honor the zeroing invariant; walmart rows carry a
	// positive private-label control.
	for _, rec := range p.Records() {
		switch rec.Retailer {
		case "costco":
			assert.Equal(t, 0, rec.HasCompetitor)
			assert.Equal(t, 0.0, rec.PricePL)
			assert.Equal(t, 0.0, rec.LogPricePL)
		case "walmart":
			assert.Equal(t, 1, rec.HasCompetitor)
			assert.Greater(t, rec.PricePL, 0.0)
		}
	}

	// Integrity ran for costco (decomposed columns) and skipped walmart
	require.NotNil(t, stats.For("costco").Integrity)
	assert.False(t, stats.For("costco").Integrity.Skipped)
	assert.Equal(t, "5/5 passed", stats.For("costco").Integrity.String())
	assert.True(t, stats.For("walmart").Integrity.Skipped)
}

func TestRunner_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeWalmartFixture(t, dir)
	writeCostcoFixture(t, dir)
	cfg := testConfig(t, dir, "walmart", "costco")

	first, _, err := newRunner(t, cfg).Run(context.Background())
	require.NoError(t, err)
	second, _, err := newRunner(t, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Rows(), second.Rows())
}

func TestRunner_IsAdditive(t *testing.T) {
	dir := t.TempDir()
	writeWalmartFixture(t, dir)
	writeCostcoFixture(t, dir)

	onlyWalmart, _, err := newRunner(t, testConfig(t, dir, "walmart")).Run(context.Background())
	require.NoError(t, err)

	both, _, err := newRunner(t, testConfig(t, dir, "walmart", "costco")).Run(context.Background())
	require.NoError(t, err)

	var walmartRows [][]string
	for i, rec := range both.Records() {
		if rec.Retailer == "walmart" {
			walmartRows = append(walmartRows, both.Rows()[i])
		}
	}
	assert.Equal(t, onlyWalmart.Rows(), walmartRows)
}

func TestRunner_SchemaErrorAbortsRunByDefault(t *testing.T) {
	dir := t.TempDir()
	writeCostcoFixture(t, dir)
	// walmart's workbook is missing its bound columns entirely
	testutil.WriteCircanaWorkbook(t, dir, "walmart.xlsx", 1,
		[]string{"Product", "Time", "A", "B", "C", "D", "E"},
		[][]string{{"BRAND X 12OZ", "Week Ending 01-07-24", "1", "2", "3", "4", "5"}})

	cfg := testConfig(t, dir, "walmart", "costco")
	_, _, err := newRunner(t, cfg).Run(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, perrors.ErrSchema))
}

func TestRunner_PartialResultsPolicy(t *testing.T) {
	dir := t.TempDir()
	writeCostcoFixture(t, dir)
	testutil.WriteCircanaWorkbook(t, dir, "walmart.xlsx", 1,
		[]string{"Product", "Time", "A", "B", "C", "D", "E"},
		[][]string{{"BRAND X 12OZ", "Week Ending 01-07-24", "1", "2", "3", "4", "5"}})

	cfg := testConfig(t, dir, "walmart", "costco")
	cfg.Pipeline.AllowPartial = true

	p, stats, err := newRunner(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []string{"walmart"}, stats.SkippedRetailers())
	assert.NotEmpty(t, stats.Warnings)

	for _, rec := range p.Records() {
		assert.Equal(t, "costco", rec.Retailer)
	}
}

func TestRunner_ParallelMatchesSequential(t *testing.T) {
	dir := t.TempDir()
	writeWalmartFixture(t, dir)
	writeCostcoFixture(t, dir)

	seqCfg := testConfig(t, dir, "walmart", "costco")
	parCfg := testConfig(t, dir, "walmart", "costco")
	parCfg.Pipeline.MaxConcurrency = 4

	seq, _, err := newRunner(t, seqCfg).Run(context.Background())
	require.NoError(t, err)
	par, _, err := newRunner(t, parCfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, seq.Rows(), par.Rows())
}

func TestRunner_MissingInputFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeCostcoFixture(t, dir)
	// walmart.xlsx never written

	cfg := testConfig(t, dir, "walmart", "costco")
	_, _, err := newRunner(t, cfg).Run(context.Background())
	require.Error(t, err)
}
