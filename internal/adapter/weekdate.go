package adapter

import (
	"fmt"
	"strings"
	"time"

	"pospanel/internal/contract"
)

// Week-label conventions per schema family. Circana labels look like
// "Week Ending 01-07-24" (MM-DD-YY); crx extracts carry an ISO
// week-ending date like "2024-01-07".
const (
	circanaWeekPrefix = "Week Ending"
	circanaDateLayout = "01-02-06"
	crxDateLayout     = "2006-01-02"
)

// parseWeekLabel converts a raw week label to the week-ending calendar
// date for the given schema family.
func parseWeekLabel(family contract.SchemaFamily, label string) (time.Time, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return time.Time{}, fmt.Errorf("empty week label")
	}

	switch family {
	case contract.FamilyCRX:
		t, err := time.Parse(crxDateLayout, label)
		if err != nil {
			return time.Time{}, fmt.Errorf("week label %q is not a %s date: %w", label, crxDateLayout, err)
		}
		return t.UTC(), nil
	default:
		s := label
		if strings.HasPrefix(strings.ToLower(s), strings.ToLower(circanaWeekPrefix)) {
			s = strings.TrimSpace(s[len(circanaWeekPrefix):])
		}
		t, err := time.Parse(circanaDateLayout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("week label %q is not a circana week ending label: %w", label, err)
		}
		return t.UTC(), nil
	}
}
