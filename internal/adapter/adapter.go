// Package adapter loads vendor point-of-sale extracts and normalizes
// them to RawRecords. Each schema family has its own loader; the family
// is declared by the retailer's contract, never sniffed from the data.
package adapter

import (
	"math"
	"strconv"
	"strings"

	"pospanel/internal/contract"
	"pospanel/pkg/contracts/domain"
)

// LoadStats counts per-file ingestion outcomes for the run summary.
type LoadStats struct {
	RowsRead       int
	RowsKept       int
	DateParseDrops int
	EmptyRowDrops  int
}

// Adapter turns a vendor file into RawRecords for one retailer.
type Adapter interface {
	// Load reads the file at path under the given contract. Structural
	// problems (column signature mismatch, missing product or week
	// column) return a SchemaError; unparseable week labels drop the
	// row and are counted in LoadStats.
	Load(path string, c *contract.RetailerDataContract) ([]domain.RawRecord, *LoadStats, error)
}

// ForFamily selects the loader for a schema family.
func ForFamily(family contract.SchemaFamily) Adapter {
	switch family {
	case contract.FamilyCRX:
		return &crxAdapter{}
	default:
		return &circanaAdapter{}
	}
}

// parseNumeric converts a vendor cell to a float. Thousands separators,
// currency symbols, and surrounding whitespace are tolerated; blank or
// placeholder cells come back as NaN so missing stays distinguishable
// from zero.
func parseNumeric(cell string) float64 {
	s := strings.TrimSpace(cell)
	if s == "" || s == "-" || s == "--" || strings.EqualFold(s, "na") || strings.EqualFold(s, "n/a") {
		return math.NaN()
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	// Accounting-style negatives: (123.45)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// buildColumnIndex maps trimmed header names to their positions.
func buildColumnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, exists := idx[name]; !exists {
			idx[name] = i
		}
	}
	return idx
}

// isEmptyRow reports whether every cell is blank.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// cellAt returns the trimmed cell at position i, tolerating short rows.
func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
