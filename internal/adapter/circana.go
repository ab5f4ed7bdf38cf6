package adapter

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"pospanel/internal/contract"
	perrors "pospanel/internal/errors"
	"pospanel/pkg/contracts/domain"
)

// circanaMinColumns is the narrowest header the gross-totals signature
// can present: product, week label, and the five sales measures.
const circanaMinColumns = 7

// circanaAdapter loads gross-totals family workbooks (.xlsx). The data
// sheet starts after a vendor-fixed number of banner rows, then one
// header row, then one row per (week, product).
type circanaAdapter struct{}

func (a *circanaAdapter) Load(path string, c *contract.RetailerDataContract) ([]domain.RawRecord, *LoadStats, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := a.dataRows(f)
	if err != nil {
		return nil, nil, perrors.NewSchemaError(c.Retailer, "", err.Error())
	}

	if len(rows) <= c.HeaderOffset {
		return nil, nil, perrors.NewSchemaError(c.Retailer, "",
			fmt.Sprintf("workbook has %d rows, header offset is %d", len(rows), c.HeaderOffset))
	}

	header := rows[c.HeaderOffset]
	if len(header) < circanaMinColumns {
		return nil, nil, perrors.NewSchemaError(c.Retailer, "",
			fmt.Sprintf("header has %d columns, the circana signature needs at least %d", len(header), circanaMinColumns))
	}

	colIdx := buildColumnIndex(header)
	if err := checkSignature(colIdx, c); err != nil {
		return nil, nil, err
	}

	stats := &LoadStats{}
	records := make([]domain.RawRecord, 0, len(rows)-c.HeaderOffset-1)

	for _, row := range rows[c.HeaderOffset+1:] {
		stats.RowsRead++
		if isEmptyRow(row) {
			stats.EmptyRowDrops++
			continue
		}

		rec, ok := buildRecord(row, colIdx, c, stats)
		if !ok {
			continue
		}
		records = append(records, rec)
		stats.RowsKept++
	}

	return records, stats, nil
}

// dataRows finds the sheet holding the export. Circana workbooks carry a
// single data sheet, but its name varies by account team, so take the
// first sheet with more than one row.
func (a *circanaAdapter) dataRows(f *excelize.File) ([][]string, error) {
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		if len(rows) > 1 {
			return rows, nil
		}
	}
	return nil, fmt.Errorf("no data sheet found in workbook")
}

// checkSignature verifies the structurally required columns and every
// bound column exist in the header.
func checkSignature(colIdx map[string]int, c *contract.RetailerDataContract) error {
	if _, ok := colIdx[c.ProductColumn]; !ok {
		return perrors.NewSchemaError(c.Retailer, c.ProductColumn, "product identifier column is absent")
	}
	if _, ok := colIdx[c.WeekColumn]; !ok {
		return perrors.NewSchemaError(c.Retailer, c.WeekColumn, "week label column is absent")
	}
	for _, bound := range boundColumns(c.Bindings) {
		if _, ok := colIdx[bound]; !ok {
			return perrors.NewSchemaError(c.Retailer, bound, "bound column is absent from the file header")
		}
	}
	return nil
}

// boundColumns lists every non-empty binding.
func boundColumns(b contract.ColumnBindings) []string {
	all := []string{
		b.TotalDollars, b.TotalUnits, b.VolumeSales,
		b.BaseDollars, b.BaseUnits,
		b.NonPromotedDollars, b.NonPromotedUnits,
		b.AvgNetPrice, b.AvgPricePerUnit,
		b.PLDollars, b.PLUnits,
		b.GrossDollars, b.GrossUnits,
		b.CouponDollars, b.CouponUnits,
		b.RefundDollars, b.RefundUnits,
		b.DiscountDollars, b.PromotedUnits,
	}
	out := make([]string, 0, len(all))
	for _, col := range all {
		if col != "" {
			out = append(out, col)
		}
	}
	return out
}

// buildRecord converts one data row into a RawRecord. The product column
// is renamed to the canonical Product name, the retailer is stamped from
// the contract, and every other vendor column is preserved unchanged.
// A row whose week label does not parse is dropped and counted.
func buildRecord(row []string, colIdx map[string]int, c *contract.RetailerDataContract, stats *LoadStats) (domain.RawRecord, bool) {
	product := cellAt(row, colIdx[c.ProductColumn])
	weekLabel := cellAt(row, colIdx[c.WeekColumn])

	date, err := parseWeekLabel(c.Family, weekLabel)
	if err != nil {
		stats.DateParseDrops++
		return domain.RawRecord{}, false
	}

	cols := make(map[string]float64, len(colIdx))
	for name, i := range colIdx {
		if name == c.ProductColumn || name == c.WeekColumn {
			continue
		}
		cols[name] = parseNumeric(cellAt(row, i))
	}
	// Guard against a fully non-numeric body row (subtotal banners etc.)
	numeric := false
	for _, v := range cols {
		if !math.IsNaN(v) {
			numeric = true
			break
		}
	}
	if !numeric {
		stats.EmptyRowDrops++
		return domain.RawRecord{}, false
	}

	return domain.RawRecord{
		Retailer:  c.Retailer,
		Product:   product,
		WeekLabel: weekLabel,
		Date:      date,
		Columns:   cols,
	}, true
}
