package panel

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pospanel/pkg/contracts/domain"
)

func TestWriter_Write(t *testing.T) {
	p, err := Merge([]domain.CanonicalRecord{
		record("walmart", day(2024, 1, 7)),
		record("walmart", day(2024, 1, 14)),
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "panel.csv")
	w := NewWriter(nil)
	require.NoError(t, w.Write(path, p, WriteOptions{}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, domain.PanelColumns, rows[0])
	assert.Equal(t, "2024-01-07", rows[1][0])
	assert.Equal(t, "walmart", rows[1][1])
	// Price_SI sits at its documented position
	assert.Equal(t, "12.060000", rows[1][7])
	// Zeroed Log_Price_PL renders as exactly zero
	assert.Equal(t, "0.000000", rows[1][5])
}

func TestWriter_BOMPrefix(t *testing.T) {
	p, err := Merge([]domain.CanonicalRecord{record("walmart", day(2024, 1, 7))})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, NewWriter(nil).Write(path, p, WriteOptions{BOMPrefix: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\xEF\xBB\xBF"))
}

func TestWriter_OutputIsByteIdentical(t *testing.T) {
	p, err := Merge([]domain.CanonicalRecord{
		record("costco", day(2024, 1, 7)),
		record("walmart", day(2024, 1, 7)),
	})
	require.NoError(t, err)

	dir := t.TempDir()
	w := NewWriter(nil)

	first := filepath.Join(dir, "first.csv")
	second := filepath.Join(dir, "second.csv")
	require.NoError(t, w.Write(first, p, WriteOptions{BOMPrefix: true}))
	require.NoError(t, w.Write(second, p, WriteOptions{BOMPrefix: true}))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
