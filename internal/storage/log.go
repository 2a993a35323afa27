package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pfrederiksen/fomc-docs/internal/meeting"
)

// logHeader lists the CSV columns in order
var logHeader = []string{
	"date",
	"category",
	"outcome",
	"local_path",
	"source_url",
	"timestamp",
	"label",
	"document_url",
}

// Summary counts log outcomes
type Summary struct {
	TotalMeetings int `json:"total_meetings"`
	Saved         int `json:"saved"`
	Missing       int `json:"missing"`
	Failed        int `json:"failed"`
}

// Log is the Collection Log: one entry per (meeting date, category), kept
// sorted by date. Entries are never edited once appended.
type Log struct {
	mu      sync.Mutex
	root    string
	entries []meeting.LogEntry
	keys    map[string]bool
}

// OpenLog loads the log under root, or starts an empty one
func OpenLog(root string) (*Log, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	entries, err := ReadLog(root)
	if err != nil {
		return nil, err
	}

	l := &Log{root: root, keys: make(map[string]bool, len(entries))}
	for _, e := range entries {
		if l.keys[e.Key()] {
			continue
		}
		l.keys[e.Key()] = true
		l.entries = append(l.entries, e)
	}
	meeting.SortEntries(l.entries)
	return l, nil
}

// ReadLog returns the persisted entries under root. A missing log is empty.
func ReadLog(root string) ([]meeting.LogEntry, error) {
	f, err := os.Open(filepath.Join(root, LogFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	entries, err := decodeEntries(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", LogFileName, err)
	}
	return entries, nil
}

// Path returns the CSV location
func (l *Log) Path() string {
	return filepath.Join(l.root, LogFileName)
}

// MissingPath returns the missing-documents list location
func (l *Log) MissingPath() string {
	return filepath.Join(l.root, MissingFileName)
}

// Has reports whether an entry exists for the date and category
func (l *Log) Has(date time.Time, c meeting.Category) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keys[meeting.EntryKey(date, c)]
}

// Append records a result and persists the log. It returns false, without
// writing, when an entry for the same meeting date and category exists.
func (l *Log) Append(r meeting.DownloadResult) (bool, error) {
	entry := meeting.EntryFromResult(r)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.keys[entry.Key()] {
		return false, nil
	}
	l.keys[entry.Key()] = true
	l.entries = append(l.entries, entry)
	meeting.SortEntries(l.entries)

	if err := l.flushLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// Entries returns a copy of all entries in log order
func (l *Log) Entries() []meeting.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]meeting.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Summarize counts meetings and outcomes
func (l *Log) Summarize() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Summarize(l.entries)
}

// MissingEntries returns MissingUpstream entries in log order
func (l *Log) MissingEntries() []meeting.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return MissingEntries(l.entries)
}

// DropFailed removes verification and network failures so a later run can
// record a fresh outcome for them. It returns how many entries were removed.
func (l *Log) DropFailed() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	dropped := 0
	for _, e := range l.entries {
		if e.Outcome.Failed() {
			delete(l.keys, e.Key())
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	if dropped == 0 {
		return 0, nil
	}
	return dropped, l.flushLocked()
}

// Flush writes the log files. An empty log still gets its CSV header.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// Close flushes the log
func (l *Log) Close() error {
	return l.Flush()
}

func (l *Log) flushLocked() error {
	var buf bytes.Buffer
	if err := encodeEntries(&buf, l.entries); err != nil {
		return fmt.Errorf("encoding log: %w", err)
	}
	if err := writeIfChanged(l.Path(), buf.Bytes()); err != nil {
		return fmt.Errorf("writing log: %w", err)
	}
	if err := writeIfChanged(l.MissingPath(), missingReport(l.entries)); err != nil {
		return fmt.Errorf("writing missing report: %w", err)
	}
	return nil
}

// Summarize counts meetings and outcomes in entries
func Summarize(entries []meeting.LogEntry) Summary {
	var s Summary
	dates := make(map[string]bool)
	for _, e := range entries {
		dates[e.Date.Format(meeting.DateLayout)] = true
		switch {
		case e.Outcome == meeting.Saved:
			s.Saved++
		case e.Outcome == meeting.MissingUpstream:
			s.Missing++
		case e.Outcome.Failed():
			s.Failed++
		}
	}
	s.TotalMeetings = len(dates)
	return s
}

// MissingEntries filters entries down to MissingUpstream ones
func MissingEntries(entries []meeting.LogEntry) []meeting.LogEntry {
	var out []meeting.LogEntry
	for _, e := range entries {
		if e.Outcome == meeting.MissingUpstream {
			out = append(out, e)
		}
	}
	return out
}

// MissingLine formats one line of missing_projections.txt
func MissingLine(e meeting.LogEntry) string {
	return fmt.Sprintf("%s %s: missing %s materials", e.Date.Format(meeting.DateLayout), e.Label, e.Category)
}

func missingReport(entries []meeting.LogEntry) []byte {
	var b strings.Builder
	for _, e := range MissingEntries(entries) {
		b.WriteString(MissingLine(e))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func encodeEntries(w io.Writer, entries []meeting.LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(logHeader); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{
			e.Date.Format(meeting.DateLayout),
			string(e.Category),
			string(e.Outcome),
			e.LocalPath,
			e.SourceURL,
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Label,
			e.DocumentURL,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func decodeEntries(r io.Reader) ([]meeting.LogEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, required := range logHeader[:6] {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	field := func(record []string, name string) string {
		if i, ok := columns[name]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}

	var entries []meeting.LogEntry
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := time.Parse(meeting.DateLayout, field(record, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: bad date: %w", line, err)
		}
		category, err := meeting.ParseCategory(field(record, "category"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		outcome, err := meeting.ParseOutcome(field(record, "outcome"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var ts time.Time
		if raw := field(record, "timestamp"); raw != "" {
			if ts, err = time.Parse(time.RFC3339, raw); err != nil {
				return nil, fmt.Errorf("line %d: bad timestamp: %w", line, err)
			}
		}

		entries = append(entries, meeting.LogEntry{
			Date:        date,
			Label:       field(record, "label"),
			Category:    category,
			Outcome:     outcome,
			LocalPath:   field(record, "local_path"),
			SourceURL:   field(record, "source_url"),
			DocumentURL: field(record, "document_url"),
			Timestamp:   ts.UTC(),
		})
	}
}
