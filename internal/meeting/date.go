package meeting

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO date layout used for keys, file names and the log
const DateLayout = "2006-01-02"

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// "January 30-31", "Apr/May 30-1", "Sept. 17", "March 15*"
var meetingDatePattern = regexp.MustCompile(`^([A-Za-z]+)\.?(?:/[A-Za-z]+\.?)?\s+(\d{1,2})`)

// ParseMonth resolves a full or abbreviated English month name
func ParseMonth(name string) (time.Month, bool) {
	name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	if len(name) < 3 {
		return 0, false
	}
	m, ok := months[name[:3]]
	if !ok {
		return 0, false
	}
	// reject words that merely start with a month prefix ("marker", "junk")
	full := strings.ToLower(m.String())
	if !strings.HasPrefix(full, name) {
		return 0, false
	}
	return m, true
}

// ParseMeetingDate parses calendar date text such as "January 30-31" for the given year.
// Multi-day meetings resolve to their first day.
func ParseMeetingDate(raw string, year int) (time.Time, error) {
	cleaned := NormalizeSpace(raw)
	if i := strings.Index(cleaned, ":"); i >= 0 {
		cleaned = cleaned[:i]
	}
	cleaned = strings.NewReplacer("–", "-", "—", "-", ",", "").Replace(cleaned)

	matches := meetingDatePattern.FindStringSubmatch(cleaned)
	if matches == nil {
		return time.Time{}, fmt.Errorf("could not parse meeting date from %q", raw)
	}
	month, ok := ParseMonth(matches[1])
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month %q in %q", matches[1], raw)
	}
	day, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing day in %q: %w", raw, err)
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid day %d for %s %d", day, month, year)
	}
	return t, nil
}

// DateOf truncates t to midnight UTC of its calendar date
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WindowStart returns the first date inside a lookback window of the given years ending at now
func WindowStart(now time.Time, years int) time.Time {
	return DateOf(now).AddDate(-years, 0, 0)
}

// InWindow reports whether a meeting date falls on or after the window start
func InWindow(date, start time.Time) bool {
	return !DateOf(date).Before(start)
}

// YearsInWindow lists the calendar years touched by the window, oldest first
func YearsInWindow(now time.Time, years int) []int {
	first := WindowStart(now, years).Year()
	last := DateOf(now).Year()
	out := make([]int, 0, last-first+1)
	for y := first; y <= last; y++ {
		out = append(out, y)
	}
	return out
}
