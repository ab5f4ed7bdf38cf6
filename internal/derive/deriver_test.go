package derive

import (
	"context"
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pospanel/internal/config"
	"pospanel/internal/contract"
	perrors "pospanel/internal/errors"
	"pospanel/internal/shared/testutil"
	"pospanel/pkg/contracts/domain"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		BrandFilter:        "BRAND X",
		PrivateLabelFilter: "PRIVATE LABEL",
		WeekOrigin:         "2021-01-03",
		BasePrice: config.BasePriceConfig{
			ProxyWindowWeeks:    4,
			ImputedWarnFraction: 0.25,
			MinNonPromotedUnits: 20,
		},
		PromoDepthClip: config.ClipBounds{Lower: -0.80, Upper: 0.50},
	}
}

func grossTotalsContract(hasCompetitor int) *contract.RetailerDataContract {
	return &contract.RetailerDataContract{
		Retailer:      "walmart",
		Family:        contract.FamilyCircana,
		ProductColumn: "Product",
		WeekColumn:    "Time",
		HasPromo:      1,
		HasCompetitor: hasCompetitor,
		Bindings: contract.ColumnBindings{
			TotalDollars: "Dollar Sales",
			TotalUnits:   "Unit Sales",
			VolumeSales:  "Volume Sales",
			BaseDollars:  "Base Dollar Sales",
			BaseUnits:    "Base Unit Sales",
		},
	}
}

func netPriceContract(factor float64) *contract.RetailerDataContract {
	return &contract.RetailerDataContract{
		Retailer:      "costco",
		Family:        contract.FamilyCRX,
		ProductColumn: "Item",
		WeekColumn:    "Week Ending",
		HasPromo:      1,
		HasCompetitor: 0,
		Bindings: contract.ColumnBindings{
			TotalDollars:       "Total Dollars",
			TotalUnits:         "Total Units",
			AvgNetPrice:        "Avg Net Price",
			NonPromotedDollars: "Non Promoted Dollars",
			NonPromotedUnits:   "Non Promoted Units",
			AvgPricePerUnit:    "Average Price per Unit",
		},
		VolumeSalesFactor:   factor,
		MinNonPromotedUnits: 20,
	}
}

func grossRow(date time.Time, product string, dollars, units, volume, baseDollars, baseUnits float64) domain.RawRecord {
	return domain.RawRecord{
		Retailer: "walmart",
		Product:  product,
		Date:     date,
		Columns: map[string]float64{
			"Dollar Sales":      dollars,
			"Unit Sales":        units,
			"Volume Sales":      volume,
			"Base Dollar Sales": baseDollars,
			"Base Unit Sales":   baseUnits,
		},
	}
}

func netRow(date time.Time, netPrice, totalDollars, totalUnits, npDollars, npUnits, avgPPU float64) domain.RawRecord {
	return domain.RawRecord{
		Retailer: "costco",
		Product:  "BRAND X 12OZ",
		Date:     date,
		Columns: map[string]float64{
			"Avg Net Price":          netPrice,
			"Total Dollars":          totalDollars,
			"Total Units":            totalUnits,
			"Non Promoted Dollars":   npDollars,
			"Non Promoted Units":     npUnits,
			"Average Price per Unit": avgPPU,
		},
	}
}

func week(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDeriver_GrossTotalsFamily(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(grossTotalsContract(0), cfg, nil)
	require.NoError(t, err)

	records := []domain.RawRecord{
		grossRow(week(2024, time.January, 7), "BRAND X 12OZ", 16010, 1000, 2500, 18000, 1000),
	}

	out, stats, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.WeeksKept)

	rec := out[0]
	assert.InDelta(t, 16.010, rec.PriceSI, 0.001)
	assert.InDelta(t, 18.0, rec.BasePriceSI, 0.001)
	assert.InDelta(t, 2500.0, rec.VolumeSalesSI, 0.001)
	assert.InDelta(t, 16.010/18.0-1, rec.PromoDepthSI, 0.0001)
	assert.InDelta(t, math.Log(16.010), rec.LogPriceSI, 0.0001)
	assert.InDelta(t, math.Log(2500.0), rec.LogVolumeSalesSI, 0.0001)
	assert.Equal(t, 1, rec.HasPromo)
	assert.Equal(t, 0, rec.HasCompetitor)
	assert.Equal(t, 0.0, rec.PricePL)
	assert.Equal(t, 0.0, rec.LogPricePL)
	// January is winter: all season flags off
	assert.Equal(t, 0, rec.Spring+rec.Summer+rec.Fall)
}

func TestDeriver_NetPriceFamilyUsesVendorNetPrice(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(netPriceContract(2.5), cfg, nil)
	require.NoError(t, err)

	// Gross average would be 16010/1000 = 16.01; the vendor's net price
	// nets out coupons at 12.06. Base price from the non-promoted split
	// is 8013/500 = 16.026.
	records := []domain.RawRecord{
		netRow(week(2024, time.January, 7), 12.06, 16010, 1000, 8013, 500, 16.01),
	}

	out, _, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 1)

	rec := out[0]
	assert.InDelta(t, 12.06, rec.PriceSI, 0.001)
	assert.InDelta(t, 16.026, rec.BasePriceSI, 0.001)
	assert.InDelta(t, -0.248, rec.PromoDepthSI, 0.01)
	// Net price is used, not recomputed gross price
	assert.Greater(t, math.Abs(rec.PriceSI-16.01), 1.0)
	// Volume falls back to units times the configured factor
	assert.InDelta(t, 1000*2.5, rec.VolumeSalesSI, 0.001)
}

func TestDeriver_MinSampleFallbackToAvgPricePerUnit(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(netPriceContract(2.5), cfg, nil)
	require.NoError(t, err)

	// 12 non-promoted units is below the threshold of 20, so the
	// non-promoted ratio (200/12 = 16.67) must not be used.
	records := []domain.RawRecord{
		netRow(week(2024, time.January, 7), 12.06, 16010, 1000, 200, 12, 15.50),
	}

	out, stats, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.InDelta(t, 15.50, out[0].BasePriceSI, 0.001)
	assert.Greater(t, math.Abs(out[0].BasePriceSI-200.0/12.0), 0.5)
	assert.Equal(t, 1, stats.BasePriceFallbacks)
}

func TestDeriver_FallbackIsRowLocal(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(netPriceContract(2.5), cfg, nil)
	require.NoError(t, err)

	records := []domain.RawRecord{
		netRow(week(2024, time.January, 7), 12.06, 16010, 1000, 8013, 500, 16.01),
		netRow(week(2024, time.January, 14), 12.40, 15500, 970, 180, 10, 15.75),
		netRow(week(2024, time.January, 21), 12.10, 15800, 990, 7920, 480, 16.02),
	}

	out, stats, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 3)

	// Only the thin middle week falls back; its neighbors use the ratio.
	assert.InDelta(t, 8013.0/500.0, out[0].BasePriceSI, 0.001)
	assert.InDelta(t, 15.75, out[1].BasePriceSI, 0.001)
	assert.InDelta(t, 7920.0/480.0, out[2].BasePriceSI, 0.001)
	assert.Equal(t, 1, stats.BasePriceFallbacks)
}

func TestDeriver_MissingVolumePathIsFatal(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(netPriceContract(0), cfg, nil) // no factor, no volume column
	require.NoError(t, err)

	records := []domain.RawRecord{
		netRow(week(2024, time.January, 7), 12.06, 16010, 1000, 8013, 500, 16.01),
	}

	_, _, err = d.Derive(context.Background(), records)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, perrors.ErrMissingFeature))
	assert.Contains(t, err.Error(), "costco")
}

func TestDeriver_NoSurvivingRowsIsNotFatal(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(netPriceContract(0), cfg, nil)
	require.NoError(t, err)

	records := []domain.RawRecord{
		{Retailer: "costco", Product: "OTHER BRAND", Date: week(2024, time.January, 7),
			Columns: map[string]float64{"Avg Net Price": 9.99}},
	}

	out, stats, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, stats.WeeksSeen)
}

func TestDeriver_CrossPriceFromPrivateLabelRows(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(grossTotalsContract(1), cfg, nil)
	require.NoError(t, err)

	date := week(2024, time.January, 7)
	records := []domain.RawRecord{
		grossRow(date, "BRAND X 12OZ", 16000, 1000, 2500, 18000, 1000),
		grossRow(date, "PRIVATE LABEL 12OZ", 8000, 800, 1900, 8500, 750),
	}

	out, _, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 1)

	rec := out[0]
	assert.Equal(t, 1, rec.HasCompetitor)
	assert.InDelta(t, 10.0, rec.PricePL, 0.001)
	assert.InDelta(t, math.Log(10.0), rec.LogPricePL, 0.0001)
}

func TestDeriver_MissingPrivateLabelDropsWeek(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(grossTotalsContract(1), cfg, nil)
	require.NoError(t, err)

	records := []domain.RawRecord{
		grossRow(week(2024, time.January, 7), "BRAND X 12OZ", 16000, 1000, 2500, 18000, 1000),
	}

	out, stats, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, stats.DomainDrops)
}

func TestDeriver_DepthClampedToConfiguredBounds(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(grossTotalsContract(0), cfg, nil)
	require.NoError(t, err)

	records := []domain.RawRecord{
		// Price 1.0 against base 20.0: raw depth -0.95, clamps to -0.80
		grossRow(week(2024, time.January, 7), "BRAND X 12OZ", 1000, 1000, 2500, 20000, 1000),
		// Price 36.0 against base 20.0: raw depth +0.80, clamps to +0.50
		grossRow(week(2024, time.January, 14), "BRAND X 12OZ", 36000, 1000, 2500, 20000, 1000),
	}

	out, _, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, -0.80, out[0].PromoDepthSI)
	assert.Equal(t, 0.50, out[1].PromoDepthSI)
}

func TestDeriver_NonPositivePriceDropsRow(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(grossTotalsContract(0), cfg, nil)
	require.NoError(t, err)

	records := []domain.RawRecord{
		grossRow(week(2024, time.January, 7), "BRAND X 12OZ", -50, 1000, 2500, 18000, 1000),
		grossRow(week(2024, time.January, 14), "BRAND X 12OZ", 16000, 1000, 2500, 18000, 1000),
	}

	out, stats, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.DomainDrops)
	assert.Equal(t, week(2024, time.January, 14), out[0].Date)
}

func TestDeriver_ProxyImputationAndWarning(t *testing.T) {
	cfg := testPipelineConfig()
	c := netPriceContract(2.5)
	c.Bindings.AvgPricePerUnit = "" // no vendor fallback: thin weeks must impute
	logger, captured := testutil.NewCaptureLogger(t)

	d, err := NewDeriver(c, cfg, logger)
	require.NoError(t, err)

	records := []domain.RawRecord{
		netRow(week(2024, time.January, 7), 12.06, 16010, 1000, 8000, 500, 0),
		netRow(week(2024, time.January, 14), 12.40, 15500, 970, 9000, 500, 0),
		// Thin weeks: the ratio is untrusted and no fallback column exists
		netRow(week(2024, time.January, 21), 12.10, 15800, 990, 100, 5, 0),
		netRow(week(2024, time.January, 28), 12.20, 15900, 995, 120, 6, 0),
	}

	out, stats, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, 2, stats.ImputedWeeks)
	assert.InDelta(t, 0.5, stats.ImputedFraction, 0.001)
	assert.True(t, stats.ImputationWarning)

	// Week 3 imputes from the mean of the first two base prices
	expected := (8000.0/500.0 + 9000.0/500.0) / 2
	assert.InDelta(t, expected, out[2].BasePriceSI, 0.001)
	assert.True(t, out[2].BasePriceImputed)
	assert.False(t, out[0].BasePriceImputed)

	// The warning is observable in captured diagnostics
	assert.NotEmpty(t, captured.MessagesContaining("heavy base price imputation"))
}

func TestDeriver_ImputationWithoutHistoryDropsRow(t *testing.T) {
	cfg := testPipelineConfig()
	c := netPriceContract(2.5)
	c.Bindings.AvgPricePerUnit = ""

	d, err := NewDeriver(c, cfg, nil)
	require.NoError(t, err)

	// First week is already thin: no proxy history exists yet.
	records := []domain.RawRecord{
		netRow(week(2024, time.January, 7), 12.06, 16010, 1000, 100, 5, 0),
	}

	out, stats, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, stats.DomainDrops)
}

func TestDeriver_AggregatesMultipleProducts(t *testing.T) {
	cfg := testPipelineConfig()
	d, err := NewDeriver(grossTotalsContract(0), cfg, nil)
	require.NoError(t, err)

	date := week(2024, time.January, 7)
	records := []domain.RawRecord{
		grossRow(date, "BRAND X 12OZ", 10000, 600, 1500, 11000, 600),
		grossRow(date, "BRAND X 24OZ", 6000, 400, 1000, 7000, 400),
	}

	out, _, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 1)

	rec := out[0]
	assert.InDelta(t, 16000.0/1000.0, rec.PriceSI, 0.001)
	assert.InDelta(t, 18000.0/1000.0, rec.BasePriceSI, 0.001)
	assert.InDelta(t, 2500.0, rec.VolumeSalesSI, 0.001)
}

func TestDeriver_UniformityAcrossFamilies(t *testing.T) {
	cfg := testPipelineConfig()

	gross, err := NewDeriver(grossTotalsContract(0), cfg, nil)
	require.NoError(t, err)
	net, err := NewDeriver(netPriceContract(2.5), cfg, nil)
	require.NoError(t, err)

	grossOut, _, err := gross.Derive(context.Background(), []domain.RawRecord{
		grossRow(week(2024, time.January, 7), "BRAND X 12OZ", 14500, 1000, 2500, 18000, 1000),
	})
	require.NoError(t, err)
	netOut, _, err := net.Derive(context.Background(), []domain.RawRecord{
		netRow(week(2024, time.January, 7), 12.06, 16010, 1000, 8013, 500, 16.01),
	})
	require.NoError(t, err)

	// Depth means the same thing regardless of which raw columns fed it
	for _, rec := range append(grossOut, netOut...) {
		assert.InDelta(t, rec.PriceSI/rec.BasePriceSI-1, rec.PromoDepthSI, 0.001)
	}
}

func TestSeasonFlags(t *testing.T) {
	tests := []struct {
		month                time.Month
		spring, summer, fall int
	}{
		{time.January, 0, 0, 0},
		{time.February, 0, 0, 0},
		{time.March, 1, 0, 0},
		{time.May, 1, 0, 0},
		{time.June, 0, 1, 0},
		{time.August, 0, 1, 0},
		{time.September, 0, 0, 1},
		{time.November, 0, 0, 1},
		{time.December, 0, 0, 0},
	}
	for _, tt := range tests {
		spring, summer, fall := seasonFlags(week(2024, tt.month, 15))
		assert.Equal(t, tt.spring, spring, "month %s", tt.month)
		assert.Equal(t, tt.summer, summer, "month %s", tt.month)
		assert.Equal(t, tt.fall, fall, "month %s", tt.month)
	}
}

func TestWeekNumber_GloballyConsistent(t *testing.T) {
	origin := week(2021, time.January, 3)

	assert.Equal(t, 0, weekNumber(week(2021, time.January, 3), origin))
	assert.Equal(t, 0, weekNumber(week(2021, time.January, 9), origin))
	assert.Equal(t, 1, weekNumber(week(2021, time.January, 10), origin))
	assert.Equal(t, 52, weekNumber(week(2022, time.January, 2), origin))

	// The same calendar date maps to the same index regardless of which
	// retailer's path computed it: the origin is run-global.
	cfg := testPipelineConfig()
	grossD, err := NewDeriver(grossTotalsContract(0), cfg, nil)
	require.NoError(t, err)
	netD, err := NewDeriver(netPriceContract(2.5), cfg, nil)
	require.NoError(t, err)

	date := week(2024, time.March, 10)
	grossOut, _, err := grossD.Derive(context.Background(), []domain.RawRecord{
		grossRow(date, "BRAND X 12OZ", 16000, 1000, 2500, 18000, 1000),
	})
	require.NoError(t, err)
	netOut, _, err := netD.Derive(context.Background(), []domain.RawRecord{
		netRow(date, 12.06, 16010, 1000, 8013, 500, 16.01),
	})
	require.NoError(t, err)

	require.Len(t, grossOut, 1)
	require.Len(t, netOut, 1)
	assert.Equal(t, grossOut[0].WeekNumber, netOut[0].WeekNumber)
	assert.Equal(t, 1, grossOut[0].Spring)
}
