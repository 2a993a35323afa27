// Package calendar renders logged meetings as an iCalendar feed.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/fomc-docs/internal/meeting"
)

// uidDomain scopes event UIDs to this tool
const uidDomain = "fomc-docs"

// GenerateICS generates an iCalendar (.ics) document with one all-day event
// per meeting date found in entries. stamp becomes every event's DTSTAMP.
func GenerateICS(entries []meeting.LogEntry, stamp time.Time) string {
	var ics strings.Builder

	ics.WriteString("BEGIN:VCALENDAR\r\n")
	ics.WriteString("VERSION:2.0\r\n")
	ics.WriteString("PRODID:-//fomc-docs//FOMC meetings//EN\r\n")
	ics.WriteString("CALSCALE:GREGORIAN\r\n")
	ics.WriteString("METHOD:PUBLISH\r\n")
	ics.WriteString("X-WR-CALNAME:FOMC meetings\r\n")

	for _, m := range groupByMeeting(entries) {
		writeEvent(&ics, m, stamp)
	}

	ics.WriteString("END:VCALENDAR\r\n")
	return ics.String()
}

// loggedMeeting is one meeting date with its entries in log order
type loggedMeeting struct {
	date    time.Time
	label   string
	source  string
	entries []meeting.LogEntry
}

func groupByMeeting(entries []meeting.LogEntry) []*loggedMeeting {
	sorted := make([]meeting.LogEntry, len(entries))
	copy(sorted, entries)
	meeting.SortEntries(sorted)

	var out []*loggedMeeting
	index := make(map[string]*loggedMeeting)
	for _, e := range sorted {
		key := e.Date.Format(meeting.DateLayout)
		m, ok := index[key]
		if !ok {
			m = &loggedMeeting{date: e.Date, label: e.Label, source: e.SourceURL}
			index[key] = m
			out = append(out, m)
		}
		m.entries = append(m.entries, e)
	}
	return out
}

func writeEvent(ics *strings.Builder, m *loggedMeeting, stamp time.Time) {
	ics.WriteString("BEGIN:VEVENT\r\n")
	ics.WriteString(fmt.Sprintf("UID:%s@%s\r\n", m.date.Format("20060102"), uidDomain))
	ics.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICSTime(stamp)))

	// all-day event; DTEND is exclusive
	ics.WriteString(fmt.Sprintf("DTSTART;VALUE=DATE:%s\r\n", m.date.Format("20060102")))
	ics.WriteString(fmt.Sprintf("DTEND;VALUE=DATE:%s\r\n", m.date.AddDate(0, 0, 1).Format("20060102")))

	ics.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICS("FOMC Meeting - "+m.label)))

	var lines []string
	for _, e := range m.entries {
		line := fmt.Sprintf("%s: %s", e.Category, e.Outcome)
		if e.DocumentURL != "" {
			line += " " + e.DocumentURL
		}
		lines = append(lines, line)
	}
	ics.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICS(strings.Join(lines, "\n"))))

	if m.source != "" {
		ics.WriteString(fmt.Sprintf("URL:%s\r\n", m.source))
	}
	ics.WriteString("STATUS:CONFIRMED\r\n")
	ics.WriteString("TRANSP:TRANSPARENT\r\n")
	ics.WriteString("END:VEVENT\r\n")
}

// formatICSTime formats a time.Time as an iCalendar datetime string
func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICS escapes special characters for iCalendar format
func escapeICS(s string) string {
	// RFC 5545 text escaping
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
