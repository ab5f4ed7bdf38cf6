package domain

import (
	"math"
	"time"
)

// RawRecord represents a single vendor-file row after adaptation: one
// (retailer, raw week label, product) observation with the vendor's
// numeric columns preserved under their original names. Missing or
// unparseable numeric cells are stored as NaN.
type RawRecord struct {
	Retailer  string             `json:"retailer"`
	Product   string             `json:"product"`
	WeekLabel string             `json:"week_label"`
	Date      time.Time          `json:"date"`
	Columns   map[string]float64 `json:"columns"`
}

// Value returns the named vendor column, or NaN if the column is absent.
func (r RawRecord) Value(column string) float64 {
	if column == "" {
		return math.NaN()
	}
	v, ok := r.Columns[column]
	if !ok {
		return math.NaN()
	}
	return v
}

// Has reports whether the named column is present and finite.
func (r RawRecord) Has(column string) bool {
	v, ok := r.Columns[column]
	return ok && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clone returns a deep copy. Adapters hand out records by value, but the
// column map is shared unless cloned.
func (r RawRecord) Clone() RawRecord {
	cols := make(map[string]float64, len(r.Columns))
	for k, v := range r.Columns {
		cols[k] = v
	}
	r.Columns = cols
	return r
}
