// Package filter narrows Collection Log entries for queries.
//
// Filters combine any of:
//   - Date range (from/to, inclusive, day granularity)
//   - Labels (substring matching, case-insensitive)
//   - Categories (statement, projection)
//   - Outcomes (saved, missing_upstream, ...)
//
// Example usage:
//
//	f := filter.New()
//	f.DateFrom, _ = filter.ParseFrom("2020")
//	f.Labels = []string{"march"}
//	entries = f.Apply(entries)
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/fomc-docs/internal/meeting"
)

// Filter represents entry filtering criteria
type Filter struct {
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	// Labels match when the entry label contains any of them
	Labels []string `json:"labels,omitempty"`

	Categories []meeting.Category `json:"categories,omitempty"`
	Outcomes   []meeting.Outcome  `json:"outcomes,omitempty"`
}

// New creates an empty filter that matches every entry
func New() *Filter {
	return &Filter{}
}

// IsEmpty reports whether the filter has no active criteria
func (f *Filter) IsEmpty() bool {
	return f.DateFrom == nil &&
		f.DateTo == nil &&
		len(f.Labels) == 0 &&
		len(f.Categories) == 0 &&
		len(f.Outcomes) == 0
}

// Matches reports whether an entry passes every active criterion
func (f *Filter) Matches(e meeting.LogEntry) bool {
	if f.IsEmpty() {
		return true
	}

	date := meeting.DateOf(e.Date)
	if f.DateFrom != nil && date.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && date.After(*f.DateTo) {
		return false
	}

	if len(f.Labels) > 0 {
		matched := false
		label := strings.ToLower(e.Label)
		for _, l := range f.Labels {
			if strings.Contains(label, strings.ToLower(l)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.Categories) > 0 && !containsCategory(f.Categories, e.Category) {
		return false
	}
	if len(f.Outcomes) > 0 && !containsOutcome(f.Outcomes, e.Outcome) {
		return false
	}
	return true
}

func containsCategory(list []meeting.Category, c meeting.Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func containsOutcome(list []meeting.Outcome, o meeting.Outcome) bool {
	for _, x := range list {
		if x == o {
			return true
		}
	}
	return false
}

// Apply returns the matching entries in their original order. An empty filter
// returns entries unchanged.
func (f *Filter) Apply(entries []meeting.LogEntry) []meeting.LogEntry {
	if f.IsEmpty() {
		return entries
	}

	var filtered []meeting.LogEntry
	for _, e := range entries {
		if f.Matches(e) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// String describes the active criteria, e.g.
// "From: 2020-01-01 | To: 2024-12-31 | Labels: march"
func (f *Filter) String() string {
	if f.IsEmpty() {
		return "No active filters"
	}

	var parts []string
	if f.DateFrom != nil {
		parts = append(parts, fmt.Sprintf("From: %s", f.DateFrom.Format(meeting.DateLayout)))
	}
	if f.DateTo != nil {
		parts = append(parts, fmt.Sprintf("To: %s", f.DateTo.Format(meeting.DateLayout)))
	}
	if len(f.Labels) > 0 {
		parts = append(parts, fmt.Sprintf("Labels: %s", strings.Join(f.Labels, ", ")))
	}
	if len(f.Categories) > 0 {
		names := make([]string, len(f.Categories))
		for i, c := range f.Categories {
			names[i] = string(c)
		}
		parts = append(parts, fmt.Sprintf("Categories: %s", strings.Join(names, ", ")))
	}
	if len(f.Outcomes) > 0 {
		names := make([]string, len(f.Outcomes))
		for i, o := range f.Outcomes {
			names[i] = string(o)
		}
		parts = append(parts, fmt.Sprintf("Outcomes: %s", strings.Join(names, ", ")))
	}
	return strings.Join(parts, " | ")
}

