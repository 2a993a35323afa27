package filter

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pfrederiksen/fomc-docs/internal/meeting"
)

var (
	yearOnly  = regexp.MustCompile(`^(\d{4})$`)
	yearMonth = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
)

// ParseFrom parses a lower date bound. It accepts "2024-03-20", "2024-03"
// (first day of the month) and "2024" (January 1).
func ParseFrom(input string) (*time.Time, error) {
	from, _, err := parsePeriod(input)
	if err != nil {
		return nil, err
	}
	return &from, nil
}

// ParseTo parses an inclusive upper date bound. It accepts "2024-03-20",
// "2024-03" (last day of the month) and "2024" (December 31).
func ParseTo(input string) (*time.Time, error) {
	_, to, err := parsePeriod(input)
	if err != nil {
		return nil, err
	}
	return &to, nil
}

// parsePeriod returns the first and last day covered by input
func parsePeriod(input string) (time.Time, time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("date cannot be empty")
	}

	if m := yearOnly.FindStringSubmatch(input); m != nil {
		year, _ := strconv.Atoi(m[1])
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, -1), nil
	}

	if m := yearMonth.FindStringSubmatch(input); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid month: %s", m[2])
		}
		from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, -1), nil
	}

	day, err := time.Parse(meeting.DateLayout, input)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: use YYYY, YYYY-MM or YYYY-MM-DD", input)
	}
	return day, day, nil
}

// FromQuery builds a filter from from, to, label, category and outcome query
// parameters. Repeated label/category/outcome values are OR-ed.
func FromQuery(values url.Values) (*Filter, error) {
	f := New()

	if v := values.Get("from"); v != "" {
		from, err := ParseFrom(v)
		if err != nil {
			return nil, fmt.Errorf("from: %w", err)
		}
		f.DateFrom = from
	}
	if v := values.Get("to"); v != "" {
		to, err := ParseTo(v)
		if err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
		f.DateTo = to
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return nil, fmt.Errorf("from must not be after to")
	}

	for _, l := range values["label"] {
		if l = strings.TrimSpace(l); l != "" {
			f.Labels = append(f.Labels, l)
		}
	}
	for _, c := range values["category"] {
		category, err := meeting.ParseCategory(c)
		if err != nil {
			return nil, err
		}
		f.Categories = append(f.Categories, category)
	}
	for _, o := range values["outcome"] {
		outcome, err := meeting.ParseOutcome(o)
		if err != nil {
			return nil, err
		}
		f.Outcomes = append(f.Outcomes, outcome)
	}
	return f, nil
}
