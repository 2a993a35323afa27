package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pfrederiksen/fomc-docs/internal/collect"
	"github.com/pfrederiksen/fomc-docs/internal/meeting"
	"github.com/pfrederiksen/fomc-docs/internal/storage"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Printer writes human-readable status lines, colored on terminals
type Printer struct {
	out       io.Writer
	useColors bool
}

// NewPrinter creates a printer. Colors follow fatih/color's terminal and
// NO_COLOR detection and apply only when writing to stdout or stderr.
func NewPrinter(out io.Writer) *Printer {
	useColors := !color.NoColor && (out == os.Stdout || out == os.Stderr)
	return &Printer{out: out, useColors: useColors}
}

// Header prints a section header
func (p *Printer) Header(title string) {
	if p.useColors {
		color.New(color.Bold).Fprintf(p.out, "\n%s\n", title)
		return
	}
	fmt.Fprintf(p.out, "\n%s\n", title)
}

// Info prints an informational line
func (p *Printer) Info(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Success prints a success line
func (p *Printer) Success(format string, args ...interface{}) {
	if p.useColors {
		color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, "[OK] "+format+"\n", args...)
}

// Warning prints a warning line
func (p *Printer) Warning(format string, args ...interface{}) {
	if p.useColors {
		color.New(color.FgYellow).Fprintf(p.out, "⚠ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, "[WARN] "+format+"\n", args...)
}

// Error prints an error line
func (p *Printer) Error(format string, args ...interface{}) {
	if p.useColors {
		color.New(color.FgRed).Fprintf(p.out, "✗ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, "[ERROR] "+format+"\n", args...)
}

// newTable creates a borderless, left-aligned table
func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
}

// renderTable writes headers and rows as a table
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := newTable(w)
	table.Header(headers)
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}
	return table.Render()
}

// writeJSON outputs v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// runOutput is the JSON shape of a collect run
type runOutput struct {
	*collect.Report
	Results []resultOutput `json:"results"`
}

type resultOutput struct {
	Date      string `json:"date"`
	Label     string `json:"label"`
	Category  string `json:"category"`
	Outcome   string `json:"outcome"`
	LocalPath string `json:"local_path,omitempty"`
	URL       string `json:"url,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// WriteReport writes a collect run report in the specified format
func WriteReport(w io.Writer, report *collect.Report, format OutputFormat) error {
	switch format {
	case FormatJSON:
		out := runOutput{Report: report, Results: []resultOutput{}}
		for _, r := range report.Results {
			out.Results = append(out.Results, resultOutput{
				Date:      r.Candidate.Meeting.Key(),
				Label:     r.Candidate.Meeting.Label,
				Category:  string(r.Candidate.Category),
				Outcome:   string(r.Outcome),
				LocalPath: r.LocalPath,
				URL:       r.Candidate.URL,
				Detail:    r.Detail,
			})
		}
		return writeJSON(w, out)
	case FormatText:
		return writeReportText(w, report)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func writeReportText(w io.Writer, report *collect.Report) error {
	p := NewPrinter(w)
	mode := "download"
	if report.DryRun {
		mode = "dry run"
	}
	p.Info("Run %s (%s): %d meetings in window", report.RunID, mode, len(report.Meetings))

	if report.DryRun {
		if len(report.Planned) == 0 {
			p.Info("No meetings found.")
			return nil
		}
		p.Header("Planned documents")
		rows := make([][]string, 0, len(report.Planned))
		for _, c := range report.Planned {
			url := c.URL
			if url == "" {
				url = "-"
			}
			rows = append(rows, []string{c.Meeting.Key(), c.Meeting.Label, string(c.Category), url})
		}
		return renderTable(w, []string{"date", "label", "category", "url"}, rows)
	}

	if len(report.Results) > 0 {
		p.Header("New log entries")
		rows := make([][]string, 0, len(report.Results))
		for _, r := range report.Results {
			detail := r.LocalPath
			if detail == "" {
				detail = r.Detail
			}
			rows = append(rows, []string{r.Candidate.Meeting.Key(), string(r.Candidate.Category), string(r.Outcome), detail})
		}
		if err := renderTable(w, []string{"date", "category", "outcome", "path / detail"}, rows); err != nil {
			return err
		}
	} else {
		p.Info("No new log entries.")
	}
	if report.Skipped > 0 {
		p.Info("%d documents already logged", report.Skipped)
	}
	if report.Dropped > 0 {
		p.Info("%d failed entries retried", report.Dropped)
	}
	if report.Alerted {
		p.Warning("no statement links found; structural-change alert sent")
	}

	writeSummaryLine(p, report.Summary)
	writeMissing(p, report.Missing)
	return nil
}

func writeSummaryLine(p *Printer, s storage.Summary) {
	line := fmt.Sprintf("%d meetings: %d saved, %d missing, %d failed", s.TotalMeetings, s.Saved, s.Missing, s.Failed)
	p.Header("Summary")
	if s.Failed > 0 {
		p.Warning("%s", line)
		return
	}
	p.Success("%s", line)
}

func writeMissing(p *Printer, missing []meeting.LogEntry) {
	if len(missing) == 0 {
		return
	}
	p.Header("Missing upstream")
	for _, e := range missing {
		p.Info("  %s", storage.MissingLine(e))
	}
}

// summaryOutput is the JSON shape of the summary command
type summaryOutput struct {
	Summary storage.Summary    `json:"summary"`
	Entries []meeting.LogEntry `json:"entries"`
	Missing []string           `json:"missing"`
}

// WriteSummary writes log entries and their summary in the specified format
func WriteSummary(w io.Writer, entries []meeting.LogEntry, format OutputFormat) error {
	summary := storage.Summarize(entries)
	missing := storage.MissingEntries(entries)

	switch format {
	case FormatJSON:
		out := summaryOutput{Summary: summary, Entries: entries, Missing: []string{}}
		if out.Entries == nil {
			out.Entries = []meeting.LogEntry{}
		}
		for _, e := range missing {
			out.Missing = append(out.Missing, storage.MissingLine(e))
		}
		return writeJSON(w, out)
	case FormatText:
		p := NewPrinter(w)
		if len(entries) == 0 {
			p.Info("No log entries found.")
			return nil
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.Date.Format(meeting.DateLayout), e.Label, string(e.Category), string(e.Outcome), e.LocalPath})
		}
		if err := renderTable(w, []string{"date", "label", "category", "outcome", "path"}, rows); err != nil {
			return err
		}
		writeSummaryLine(p, summary)
		writeMissing(p, missing)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeMetrics prints the run metrics snapshot, keys sorted
func writeMetrics(w io.Writer, snapshot map[string]interface{}) {
	p := NewPrinter(w)
	p.Header("Run metrics")
	if counters, ok := snapshot["counters"].(map[string]int64); ok {
		names := make([]string, 0, len(counters))
		for name := range counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p.Info("  %-24s %d", name, counters[name])
		}
	}
	if gauges, ok := snapshot["gauges"].(map[string]float64); ok {
		names := make([]string, 0, len(gauges))
		for name := range gauges {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p.Info("  %-24s %g", name, gauges[name])
		}
	}
	if timings, ok := snapshot["timings"].(map[string]map[string]interface{}); ok {
		names := make([]string, 0, len(timings))
		for name := range timings {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t := timings[name]
			p.Info("  %-24s count=%v avg=%v max=%v", name, t["count"], t["average"], t["max"])
		}
	}
}
