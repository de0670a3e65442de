package transform

import (
	"sort"
	"strings"
)

// Rules is the fixed domain configuration shared by the normalizers and the
// quality gate. Build it once at start-up and pass it down.
type Rules struct {
	// StatusMap maps trimmed, lower-cased status tokens to canonical values.
	StatusMap map[string]string
	// ValidStatuses is the domain accepted by the quality gate.
	ValidStatuses map[string]bool
	// MaxBookingYear is the first calendar year treated as corrupted input.
	MaxBookingYear int
}

// DefaultRules returns the standard status vocabulary and the 2070 cutoff.
func DefaultRules() Rules {
	return Rules{
		StatusMap: map[string]string{
			"confirmed":  "confirmed",
			"confirmed.": "confirmed",
			"cancelled":  "cancelled",
			"canceled":   "cancelled",
		},
		ValidStatuses:  map[string]bool{"confirmed": true, "cancelled": true},
		MaxBookingYear: 2070,
	}
}

// NormalizeStatus looks up the status token for a raw cell. found is false
// for nil cells and for tokens the map does not know.
func (r Rules) NormalizeStatus(v any) (string, bool) {
	s, ok := textOf(v)
	if !ok {
		return "", false
	}
	canonical, found := r.StatusMap[strings.ToLower(strings.TrimSpace(s))]
	return canonical, found
}

// IsValidStatus reports whether s is in the accepted domain.
func (r Rules) IsValidStatus(s *string) bool {
	return s != nil && r.ValidStatuses[*s]
}

// ValidStatusList returns the accepted statuses sorted, for logs.
func (r Rules) ValidStatusList() []string {
	out := make([]string, 0, len(r.ValidStatuses))
	for s := range r.ValidStatuses {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
