// Package strategy classifies backend scan picks and check results for display.
package strategy

import (
	"strings"

	"PatternSentinel/internal/model"
)

// Filter selects scan picks by the strength tier in their status label.
type Filter string

const (
	FilterAll     Filter = "ALL"
	FilterStrong  Filter = "STRONG"
	FilterStable  Filter = "STABLE"
	FilterObserve Filter = "OBSERVE"
)

// Filters lists the recognized filters in display order.
var Filters = []Filter{FilterAll, FilterStrong, FilterStable, FilterObserve}

// tierKeywords maps each filter to the status substrings it accepts.
var tierKeywords = map[Filter][]string{
	FilterStrong:  {"強烈"},
	FilterStable:  {"穩健", "中"},
	FilterObserve: {"觀察"},
}

// ParseFilter normalizes a filter name. Unknown names become ALL.
func ParseFilter(s string) Filter {
	f := Filter(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := tierKeywords[f]; ok {
		return f
	}
	return FilterAll
}

// Match reports whether a status label falls in the filter's tier.
func (f Filter) Match(status string) bool {
	keywords, ok := tierKeywords[f]
	if !ok {
		return true
	}
	for _, k := range keywords {
		if strings.Contains(status, k) {
			return true
		}
	}
	return false
}

// Apply returns the picks matching f, preserving order.
func (f Filter) Apply(picks []model.ScanPick) []model.ScanPick {
	out := make([]model.ScanPick, 0, len(picks))
	for _, p := range picks {
		if f.Match(p.StatusLabel) {
			out = append(out, p)
		}
	}
	return out
}

const (
	PassedLabel    = "符合買點"
	NotPassedLabel = "未符合"
)

// ManualStatus is the label shown for an operator-typed check: a pass
// overrides the backend label, and an empty label reads as not passed.
func ManualStatus(passed bool, backendLabel string) string {
	if passed {
		return PassedLabel
	}
	if backendLabel == "" {
		return NotPassedLabel
	}
	return backendLabel
}
