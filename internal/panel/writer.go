package panel

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"pospanel/pkg/contracts/domain"
)

// Writer exports the final panel as CSV.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a panel writer.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger.With("component", "panel_writer")}
}

// WriteOptions configures panel export behavior.
type WriteOptions struct {
	// BOMPrefix adds a UTF-8 BOM so Excel opens the file correctly.
	BOMPrefix bool
}

// Write renders the panel to filePath in the documented column order.
// Output is deterministic: the same panel always produces a
// byte-identical file.
func (w *Writer) Write(filePath string, p *domain.FeaturePanel, options WriteOptions) error {
	w.logger.Info("writing panel",
		slog.String("file_path", filePath),
		slog.Int("row_count", p.Len()))

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if options.BOMPrefix {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(p.Columns()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range p.Rows() {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	return writer.Error()
}
