package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// CircanaHeader is the gross-totals fixture header used across tests.
var CircanaHeader = []string{
	"Product", "Time", "Dollar Sales", "Unit Sales", "Volume Sales",
	"Base Dollar Sales", "Base Unit Sales",
}

// CRXHeader is the net-price fixture header used across tests, including
// the decomposed accounting columns the integrity validator consumes.
var CRXHeader = []string{
	"Item", "Week Ending", "Total Dollars", "Total Units",
	"Avg Net Price", "Non Promoted Dollars", "Non Promoted Units",
	"Average Price per Unit", "Gross Dollars", "Gross Units",
	"Coupon Dollars", "Coupon Units", "Refund Dollars", "Refund Units",
	"Discount Dollars", "Promoted Units",
}

// WriteCircanaWorkbook writes a gross-totals .xlsx fixture with the given
// banner rows before the header, and returns its path.
func WriteCircanaWorkbook(t *testing.T, dir, name string, bannerRows int, header []string, rows [][]string) string {
	t.Helper()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	r := 1
	for i := 0; i < bannerRows; i++ {
		cell, err := excelize.CoordinatesToCellName(1, r)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(sheet, cell, "Retail Extract"))
		r++
	}

	writeRow := func(values []string) {
		t.Helper()
		cell, err := excelize.CoordinatesToCellName(1, r)
		require.NoError(t, err)
		cells := make([]interface{}, len(values))
		for i, v := range values {
			cells[i] = v
		}
		require.NoError(t, f.SetSheetRow(sheet, cell, &cells))
		r++
	}

	writeRow(header)
	for _, row := range rows {
		writeRow(row)
	}

	path := filepath.Join(dir, name)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

// WriteCRXExtract writes a net-price .csv fixture with the given banner
// rows before the header, and returns its path.
func WriteCRXExtract(t *testing.T, dir, name string, bannerRows int, header []string, rows [][]string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	w := csv.NewWriter(file)
	for i := 0; i < bannerRows; i++ {
		require.NoError(t, w.Write([]string{"Account Extract", ""}))
	}
	require.NoError(t, w.Write(header))
	for _, row := range rows {
		require.NoError(t, w.Write(row))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return path
}
