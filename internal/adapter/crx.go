package adapter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"pospanel/internal/contract"
	perrors "pospanel/internal/errors"
	"pospanel/pkg/contracts/domain"
)

// crxMinColumns is the narrowest header the net-price signature can
// present: item, week label, and the four pricing measures.
const crxMinColumns = 6

// crxAdapter loads net-price family extracts (.csv). The vendor prefixes
// the file with account banner lines, then a header row, then one row
// per (week, item).
type crxAdapter struct{}

func (a *crxAdapter) Load(path string, c *contract.RetailerDataContract) ([]domain.RawRecord, *LoadStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open extract %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // banner lines are narrower than the body

	// Skip the vendor's banner lines.
	for i := 0; i < c.HeaderOffset; i++ {
		if _, err := reader.Read(); err != nil {
			return nil, nil, perrors.NewSchemaError(c.Retailer, "",
				fmt.Sprintf("extract ends inside the %d-row header block", c.HeaderOffset))
		}
	}

	header, err := reader.Read()
	if err != nil {
		return nil, nil, perrors.NewSchemaError(c.Retailer, "", "extract has no header row")
	}
	if len(header) < crxMinColumns {
		return nil, nil, perrors.NewSchemaError(c.Retailer, "",
			fmt.Sprintf("header has %d columns, the crx signature needs at least %d", len(header), crxMinColumns))
	}

	colIdx := buildColumnIndex(header)
	if err := checkSignature(colIdx, c); err != nil {
		return nil, nil, err
	}

	stats := &LoadStats{}
	var records []domain.RawRecord

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed CSV line is a row-level drop, not a file failure.
			stats.EmptyRowDrops++
			continue
		}

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
