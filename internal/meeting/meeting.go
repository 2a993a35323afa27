package meeting

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Category is a collected document category
type Category string

const (
	Statement  Category = "statement"
	Projection Category = "projection"
)

// Categories lists every collected category in log order
var Categories = []Category{Statement, Projection}

// ParseCategory parses a category name as written in the collection log
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case Statement:
		return Statement, nil
	case Projection, "projections":
		return Projection, nil
	default:
		return "", fmt.Errorf("unknown category: %q", s)
	}
}

// FileSuffix returns the suffix used in canonical file names
func (c Category) FileSuffix() string {
	if c == Projection {
		return "projections"
	}
	return string(c)
}

// rank orders categories within a meeting: statement first
func (c Category) rank() int {
	if c == Projection {
		return 1
	}
	return 0
}

// Outcome is the result of collecting one document
type Outcome string

const (
	Saved              Outcome = "saved"
	MissingUpstream    Outcome = "missing_upstream"
	VerificationFailed Outcome = "verification_failed"
	NetworkError       Outcome = "network_error"
)

// ParseOutcome parses an outcome name as written in the collection log
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.TrimSpace(s)); o {
	case Saved, MissingUpstream, VerificationFailed, NetworkError:
		return o, nil
	default:
		return "", fmt.Errorf("unknown outcome: %q", s)
	}
}

// Failed reports whether the outcome is a per-document failure
func (o Outcome) Failed() bool {
	return o == VerificationFailed || o == NetworkError
}

// Meeting represents one scheduled policy meeting
type Meeting struct {
	Date      time.Time `json:"date"`
	Label     string    `json:"label"`
	SourceURL string    `json:"source_url"`
}

// New creates a Meeting with the date truncated to UTC midnight and a non-empty label
func New(date time.Time, label, sourceURL string) Meeting {
	d := DateOf(date)
	label = NormalizeSpace(label)
	if label == "" {
		label = d.Format("January 2006")
	}
	return Meeting{Date: d, Label: label, SourceURL: sourceURL}
}

// Key returns the meeting's unique identifier (its ISO date)
func (m Meeting) Key() string {
	return m.Date.Format(DateLayout)
}

// Year returns the meeting's calendar year
func (m Meeting) Year() int {
	return m.Date.Year()
}

// FilenameStub returns "<date>_<label-slug>", the shared prefix of the meeting's files
func (m Meeting) FilenameStub() string {
	return m.Key() + "_" + Slug(m.Label)
}

// FileName returns the canonical file name for a category
func (m Meeting) FileName(c Category, ext string) string {
	return fmt.Sprintf("%s_%s.%s", m.FilenameStub(), c.FileSuffix(), strings.TrimPrefix(ext, "."))
}

var slugStrip = regexp.MustCompile(`[^a-z0-9-]`)

// Slug lowercases a label, turns spaces into dashes and drops everything else
// outside [a-z0-9-]. An empty result becomes "fomc".
func Slug(label string) string {
	s := strings.ReplaceAll(strings.ToLower(NormalizeSpace(label)), " ", "-")
	s = slugStrip.ReplaceAllString(s, "")
	if s == "" {
		return "fomc"
	}
	return s
}

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeSpace collapses whitespace runs and trims the result
func NormalizeSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// SortMeetings orders meetings oldest first
func SortMeetings(meetings []Meeting) {
	sort.SliceStable(meetings, func(i, j int) bool {
		return meetings[i].Date.Before(meetings[j].Date)
	})
}

// Dedup removes meetings sharing a date, keeping the first occurrence
func Dedup(meetings []Meeting) []Meeting {
	seen := make(map[string]bool, len(meetings))
	unique := make([]Meeting, 0, len(meetings))
	for _, m := range meetings {
		if seen[m.Key()] {
			continue
		}
		seen[m.Key()] = true
		unique = append(unique, m)
	}
	return unique
}

// DocumentCandidate is a resolved (or absent) document link for one category
type DocumentCandidate struct {
	Meeting  Meeting  `json:"meeting"`
	Category Category `json:"category"`
	URL      string   `json:"url,omitempty"`
}

// HasURL reports whether the candidate points at an upstream document
func (c DocumentCandidate) HasURL() bool {
	return c.URL != ""
}

// DownloadResult is the outcome of verifying one candidate
type DownloadResult struct {
	Candidate DocumentCandidate
	Outcome   Outcome
	LocalPath string
	Timestamp time.Time

	// Detail explains a failure for logs; it is not persisted
	Detail string
}

// LogEntry is the persisted, denormalized form of a DownloadResult
type LogEntry struct {
	Date        time.Time `json:"date"`
	Label       string    `json:"label"`
	Category    Category  `json:"category"`
	Outcome     Outcome   `json:"outcome"`
	LocalPath   string    `json:"local_path,omitempty"`
	SourceURL   string    `json:"source_url"`
	DocumentURL string    `json:"document_url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EntryFromResult projects a result into a log entry
func EntryFromResult(r DownloadResult) LogEntry {
	m := r.Candidate.Meeting
	return LogEntry{
		Date:        m.Date,
		Label:       m.Label,
		Category:    r.Candidate.Category,
		Outcome:     r.Outcome,
		LocalPath:   r.LocalPath,
		SourceURL:   m.SourceURL,
		DocumentURL: r.Candidate.URL,
		Timestamp:   r.Timestamp.UTC(),
	}
}

// EntryKey builds the collection log dedup key
func EntryKey(date time.Time, c Category) string {
	return date.Format(DateLayout) + "|" + string(c)
}

// Key returns the entry's dedup key
func (e LogEntry) Key() string {
	return EntryKey(e.Date, e.Category)
}

// Year returns the entry's meeting year
func (e LogEntry) Year() int {
	return e.Date.Year()
}

// SortEntries orders entries by meeting date, statement before projection
func SortEntries(entries []LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].Category.rank() < entries[j].Category.rank()
	})
}

// SortResults orders results the same way SortEntries orders entries
func SortResults(results []DownloadResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Candidate, results[j].Candidate
		if !a.Meeting.Date.Equal(b.Meeting.Date) {
			return a.Meeting.Date.Before(b.Meeting.Date)
		}
		return a.Category.rank() < b.Category.rank()
	})
}
