package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// PanelKey identifies one row of the final panel.
type PanelKey struct {
	Date     time.Time
	Retailer string
}

func (k PanelKey) String() string {
	return fmt.Sprintf("%s/%s", k.Date.Format("2006-01-02"), k.Retailer)
}

// CanonicalRecord is one fully derived (Date, Retailer) observation.
// Created by the feature deriver, read-only from the panel merger onward.
type CanonicalRecord struct {
	Date     time.Time `json:"date" csv:"Date"`
	Retailer string    `json:"retailer" csv:"Retailer"`

	PriceSI       float64 `json:"price_si" csv:"Price_SI"`
	BasePriceSI   float64 `json:"base_price_si" csv:"Base_Price_SI"`
	PromoDepthSI  float64 `json:"promo_depth_si" csv:"Promo_Depth_SI"`
	VolumeSalesSI float64 `json:"volume_sales_si" csv:"Volume_Sales_SI"`
	PricePL       float64 `json:"price_pl" csv:"Price_PL"`

	LogPriceSI       float64 `json:"log_price_si" csv:"Log_Price_SI"`
	LogBasePriceSI   float64 `json:"log_base_price_si" csv:"Log_Base_Price_SI"`
	LogVolumeSalesSI float64 `json:"log_volume_sales_si" csv:"Log_Volume_Sales_SI"`
	LogPricePL       float64 `json:"log_price_pl" csv:"Log_Price_PL"`

	HasPromo      int `json:"has_promo" csv:"has_promo"`
	HasCompetitor int `json:"has_competitor" csv:"has_competitor"`

	Spring     int `json:"spring" csv:"Spring"`
	Summer     int `json:"summer" csv:"Summer"`
	Fall       int `json:"fall" csv:"Fall"`
	WeekNumber int `json:"week_number" csv:"Week_Number"`

	// BasePriceImputed marks weeks whose base price came from the
	// proxy-window imputation rather than a vendor column. Diagnostic
	// only; not part of the output column contract.
	BasePriceImputed bool `json:"base_price_imputed" csv:"-"`
}

// Key returns the uniqueness key for this record.
func (c CanonicalRecord) Key() PanelKey {
	return PanelKey{Date: c.Date, Retailer: c.Retailer}
}

// Validate checks the per-row invariants the panel merger enforces.
func (c CanonicalRecord) Validate() error {
	if c.Retailer == "" {
		return fmt.Errorf("empty retailer")
	}
	if c.Date.IsZero() {
		return fmt.Errorf("zero date")
	}
	if !(c.PriceSI > 0) || !isFinite(c.PriceSI) {
		return fmt.Errorf("Price_SI must be positive and finite, got %v", c.PriceSI)
	}
	if !(c.BasePriceSI > 0) || !isFinite(c.BasePriceSI) {
		return fmt.Errorf("Base_Price_SI must be positive and finite, got %v", c.BasePriceSI)
	}
	if !(c.VolumeSalesSI > 0) || !isFinite(c.VolumeSalesSI) {
		return fmt.Errorf("Volume_Sales_SI must be positive and finite, got %v", c.VolumeSalesSI)
	}
	if !isFinite(c.PromoDepthSI) {
		return fmt.Errorf("Promo_Depth_SI must be finite, got %v", c.PromoDepthSI)
	}
	if c.HasCompetitor == 0 {
		if c.PricePL != 0 || c.LogPricePL != 0 {
			return fmt.Errorf("Price_PL and Log_Price_PL must be exactly zero when has_competitor=0")
		}
	} else if !(c.PricePL > 0) || !isFinite(c.PricePL) {
		return fmt.Errorf("Price_PL must be positive and finite when has_competitor=1, got %v", c.PricePL)
	}
	if c.Spring+c.Summer+c.Fall > 1 {
		return fmt.Errorf("season flags must be mutually exclusive")
	}
	if c.WeekNumber < 0 {
		return fmt.Errorf("Week_Number must be non-negative, got %d", c.WeekNumber)
	}
	for _, v := range []float64{c.LogPriceSI, c.LogBasePriceSI, c.LogVolumeSalesSI, c.LogPricePL} {
		if !isFinite(v) {
			return fmt.Errorf("log feature must be finite, got %v", v)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// PanelColumns is the output column contract consumed by the modeling
// collaborator, in its documented order.
var PanelColumns = []string{
	"Date",
	"Retailer",
	"Log_Volume_Sales_SI",
	"Log_Base_Price_SI",
	"Promo_Depth_SI",
	"Log_Price_PL",
	"Log_Price_SI",
	"Price_SI",
	"Base_Price_SI",
	"Volume_Sales_SI",
	"Spring",
	"Summer",
	"Fall",
	"Week_Number",
	"has_promo",
	"has_competitor",
}

// FeaturePanel is the final merged table, one row per (Date, Retailer).
type FeaturePanel struct {
	records []CanonicalRecord
}

// NewFeaturePanel wraps an already validated, ordered record slice.
func NewFeaturePanel(records []CanonicalRecord) *FeaturePanel {
	return &FeaturePanel{records: records}
}

// Len returns the row count.
func (p *FeaturePanel) Len() int {
	return len(p.records)
}

// Records returns a copy of the panel rows so callers cannot mutate the
// panel's own storage.
func (p *FeaturePanel) Records() []CanonicalRecord {
	out := make([]CanonicalRecord, len(p.records))
	copy(out, p.records)
	return out
}

// Columns returns the output column contract.
func (p *FeaturePanel) Columns() []string {
	cols := make([]string, len(PanelColumns))
	copy(cols, PanelColumns)
	return cols
}

// Rows renders every record as CSV cells in PanelColumns order.
func (p *FeaturePanel) Rows() [][]string {
	rows := make([][]string, 0, len(p.records))
	for _, r := range p.records {
		rows = append(rows, []string{
			r.Date.Format("2006-01-02"),
			r.Retailer,
			formatFloat(r.LogVolumeSalesSI),
			formatFloat(r.LogBasePriceSI),
			formatFloat(r.PromoDepthSI),
			formatFloat(r.LogPricePL),
			formatFloat(r.LogPriceSI),
			formatFloat(r.PriceSI),
			formatFloat(r.BasePriceSI),
			formatFloat(r.VolumeSalesSI),
			strconv.Itoa(r.Spring),
			strconv.Itoa(r.Summer),
			strconv.Itoa(r.Fall),
			strconv.Itoa(r.WeekNumber),
			strconv.Itoa(r.HasPromo),
			strconv.Itoa(r.HasCompetitor),
		})
	}
	return rows
}

// formatFloat renders a float deterministically so identical inputs
// always produce byte-identical panel files.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
