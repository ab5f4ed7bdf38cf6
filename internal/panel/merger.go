// Package panel merges per-retailer canonical records into the final
// feature panel and writes it out under the documented column contract.
package panel

import (
	"fmt"
	"sort"

	"pospanel/pkg/contracts/domain"
)

// Merge unions per-retailer record groups into one panel, orders it
// deterministically, and enforces the global invariants: (Date,
// Retailer) uniqueness, finite values in every required column, and the
// availability-mask zeroing rule. Merge is a pure function of its
// inputs, so identical inputs always produce an identical panel and
// adding a retailer never changes another retailer's rows.
func Merge(groups ...[]domain.CanonicalRecord) (*domain.FeaturePanel, error) {
	total := 0
	for _, g := range groups {
		total += len(g)
	}

	records := make([]domain.CanonicalRecord, 0, total)
	for _, g := range groups {
		records = append(records, g...)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Retailer != records[j].Retailer {
			return records[i].Retailer < records[j].Retailer
		}
		return records[i].Date.Before(records[j].Date)
	})

	seen := make(map[domain.PanelKey]struct{}, len(records))
	for _, rec := range records {
		key := rec.Key()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate panel key %s", key)
		}
		seen[key] = struct{}{}

		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("invalid panel row %s: %w", key, err)
		}
	}

	return domain.NewFeaturePanel(records), nil
}
