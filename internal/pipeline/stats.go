package pipeline

import (
	"sync"

	"pospanel/internal/adapter"
	"pospanel/internal/derive"
	"pospanel/internal/integrity"
)

// RetailerStats gathers one retailer's ingest, derive, and integrity
// accounting.
type RetailerStats struct {
	Retailer  string              `json:"retailer"`
	Load      *adapter.LoadStats  `json:"load,omitempty"`
	Derive    *derive.DeriveStats `json:"derive,omitempty"`
	Integrity *integrity.Report   `json:"integrity,omitempty"`
	Err       error               `json:"-"`
	Skipped   bool                `json:"skipped"`
}

// RunStats is the run-scoped diagnostics context threaded through the
// pipeline: one entry per retailer plus run-level warnings, so callers
// and tests assert on outcomes directly instead of scraping logs.
type RunStats struct {
	mu sync.Mutex

	RunID     string
	Retailers map[string]*RetailerStats
	Warnings  []string
}

// NewRunStats creates an empty stats container for a run.
func NewRunStats(runID string) *RunStats {
	return &RunStats{
		RunID:     runID,
		Retailers: make(map[string]*RetailerStats),
	}
}

// Record stores a retailer's outcome. Safe for concurrent use when the
// runner derives retailers in parallel.
func (s *RunStats) Record(rs *RetailerStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Retailers[rs.Retailer] = rs
}

// Warn appends a run-level warning.
func (s *RunStats) Warn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Warnings = append(s.Warnings, msg)
}

// For returns a retailer's stats, or nil when it never ran.
func (s *RunStats) For(retailer string) *RetailerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Retailers[retailer]
}

// SkippedRetailers lists retailers excluded from the panel by a fatal
// per-retailer error under the partial-results policy.
func (s *RunStats) SkippedRetailers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name, rs := range s.Retailers {
		if rs.Skipped {
			out = append(out, name)
		}
	}
	return out
}

// PanelRows sums the kept weeks across retailers.
func (s *RunStats) PanelRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rs := range s.Retailers {
		if rs.Derive != nil {
			n += rs.Derive.WeeksKept
		}
	}
	return n
}
