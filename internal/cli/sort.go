package cli

import (
	"fmt"
	"sort"

	"github.com/pfrederiksen/fomc-docs/internal/meeting"
)

// SortOrder represents the available sorting options for log entries
type SortOrder string

const (
	SortByDate     SortOrder = "date"
	SortByOutcome  SortOrder = "outcome"
	SortByCategory SortOrder = "category"
)

// ParseSortOrder validates a --sort value
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case SortByDate, SortByOutcome, SortByCategory:
		return o, nil
	default:
		return "", fmt.Errorf("invalid sort order: %s (must be date, outcome, or category)", s)
	}
}

// sortEntries sorts log entries by the given order, falling back to log order
func sortEntries(entries []meeting.LogEntry, order SortOrder) {
	switch order {
	case SortByDate:
		meeting.SortEntries(entries)
	case SortByOutcome:
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Outcome != entries[j].Outcome {
				return outcomeRank(entries[i].Outcome) < outcomeRank(entries[j].Outcome)
			}
			return compareByDate(entries[i], entries[j])
		})
	case SortByCategory:
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Category != entries[j].Category {
				return entries[i].Category == meeting.Statement
			}
			return compareByDate(entries[i], entries[j])
		})
	}
}

// outcomeRank lists failures first so they stand out in reports
func outcomeRank(o meeting.Outcome) int {
	switch o {
	case meeting.NetworkError:
		return 0
	case meeting.VerificationFailed:
		return 1
	case meeting.MissingUpstream:
		return 2
	default:
		return 3
	}
}

// compareByDate reports whether entry i belongs before entry j in log order
func compareByDate(i, j meeting.LogEntry) bool {
	if !i.Date.Equal(j.Date) {
		return i.Date.Before(j.Date)
	}
	return i.Category == meeting.Statement && j.Category != meeting.Statement
}
