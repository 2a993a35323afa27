package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/fomc-docs/internal/meeting"
	"github.com/pfrederiksen/fomc-docs/internal/scraper"
	"github.com/pfrederiksen/fomc-docs/internal/storage"
)

// execute runs the root command in an isolated home and working directory
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestVersionCommand(t *testing.T) {
	SetBuildInfo("1.2.3", "abc123", "2025-06-01")
	t.Cleanup(func() { SetBuildInfo("dev", "none", "unknown") })

	out, _, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)

	out, _, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "2025-06-01", info.BuildTime)
}

func TestConfigCommand(t *testing.T) {
	cfg := writeConfig(t, "years: 3\nworkers: 4\n")

	out, _, err := execute(t, "config", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "years: 3")
	assert.Contains(t, out, "workers: 4")
	assert.Contains(t, out, "timeout: 30s")

	out, _, err = execute(t, "config", "--config", cfg, "--path")
	require.NoError(t, err)
	assert.Equal(t, cfg+"\n", out)

	out, _, err = execute(t, "config", "--path")
	require.NoError(t, err)
	assert.Equal(t, "No config file found (using defaults)\n", out)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "summary", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func seedLog(t *testing.T, root string) {
	t.Helper()
	log, err := storage.OpenLog(root)
	require.NoError(t, err)
	defer log.Close()

	ts := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	add := func(year int, month time.Month, day int, c meeting.Category, o meeting.Outcome) {
		date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		m := meeting.New(date, fmt.Sprintf("%s %d", month, year), "https://example.gov/cal.htm")
		res := meeting.DownloadResult{
			Candidate: meeting.DocumentCandidate{Meeting: m, Category: c},
			Outcome:   o,
			Timestamp: ts,
		}
		if o == meeting.Saved {
			res.Candidate.URL = "https://example.gov/doc.pdf"
			res.LocalPath = storage.CanonicalPath(root, m, c)
		}
		_, err := log.Append(res)
		require.NoError(t, err)
	}
	add(2019, time.March, 20, meeting.Statement, meeting.Saved)
	add(2019, time.March, 20, meeting.Projection, meeting.MissingUpstream)
	add(2024, time.January, 31, meeting.Statement, meeting.Saved)
	add(2024, time.January, 31, meeting.Projection, meeting.NetworkError)
}

func TestSummaryCommand(t *testing.T) {
	root := t.TempDir()
	seedLog(t, root)

	out, _, err := execute(t, "summary", "--data-dir", root, "--format", "json")
	require.NoError(t, err)

	var got summaryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, storage.Summary{TotalMeetings: 2, Saved: 2, Missing: 1, Failed: 1}, got.Summary)
	assert.Len(t, got.Entries, 4)
	assert.Equal(t, []string{"2019-03-20 March 2019: missing projection materials"}, got.Missing)
}

func TestSummaryCommand_Filtered(t *testing.T) {
	root := t.TempDir()
	seedLog(t, root)

	tests := []struct {
		name     string
		args     []string
		wantLen  int
		wantHead meeting.Outcome
	}{
		{name: "from year", args: []string{"--from", "2020"}, wantLen: 2, wantHead: meeting.Saved},
		{name: "outcome", args: []string{"--outcome", "saved"}, wantLen: 2, wantHead: meeting.Saved},
		{name: "label", args: []string{"--label", "march"}, wantLen: 2, wantHead: meeting.Saved},
		{name: "sorted by outcome", args: []string{"--sort", "outcome"}, wantLen: 4, wantHead: meeting.NetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"summary", "--data-dir", root, "--format", "json"}, tt.args...)
			out, _, err := execute(t, args...)
			require.NoError(t, err)

			var got summaryOutput
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			require.Len(t, got.Entries, tt.wantLen)
			assert.Equal(t, tt.wantHead, got.Entries[0].Outcome)
		})
	}
}

func TestSummaryCommand_InvalidArgs(t *testing.T) {
	root := t.TempDir()

	_, _, err := execute(t, "summary", "--data-dir", root, "--sort", "size")
	assert.ErrorContains(t, err, "invalid sort order")

	_, _, err = execute(t, "summary", "--data-dir", root, "--from", "2024", "--to", "2020")
	assert.ErrorContains(t, err, "invalid filter")
}

func TestSummaryCommand_EmptyText(t *testing.T) {
	out, _, err := execute(t, "summary", "--data-dir", t.TempDir(), "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "No log entries found.")
}

// calendarServer serves a one-meeting calendar dated last year and counts
// document requests
func calendarServer(t *testing.T) (*httptest.Server, int, *int32) {
	t.Helper()
	year := time.Now().Year() - 1
	page := fmt.Sprintf(`<html><body>
<div class="panel panel-default">
  <div class="panel-heading"><h4>%d FOMC Meetings</h4></div>
  <div class="row fomc-meeting">
    <div class="fomc-meeting__month"><strong>March</strong></div>
    <div class="fomc-meeting__date">20</div>
    <div><strong>Statement:</strong><br><a href="/files/statement.pdf">PDF</a></div>
  </div>
</div>
</body></html>`, year)

	var documents int32
	mux := http.NewServeMux()
	mux.HandleFunc("/cal.htm", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, page)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&documents, 1)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, year, &documents
}

func TestCollectCommand_DryRun(t *testing.T) {
	server, year, documents := calendarServer(t)

	root := t.TempDir()
	cfg := writeConfig(t, fmt.Sprintf(`calendar_url: %s/cal.htm
historical_url_template: ""
request_interval: 0s
respect_robots: false
cache:
  enabled: false
`, server.URL))

	out, _, err := execute(t, "collect", "--config", cfg, "--data-dir", root, "--format", "json")
	require.NoError(t, err)

	var report struct {
		DryRun   bool `json:"dry_run"`
		Meetings []struct {
			Label string `json:"label"`
		} `json:"meetings"`
		Planned []struct {
			Category string `json:"category"`
			URL      string `json:"url"`
		} `json:"planned"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.DryRun)
	require.Len(t, report.Meetings, 1)
	assert.Equal(t, fmt.Sprintf("March %d", year), report.Meetings[0].Label)
	require.Len(t, report.Planned, 2)
	assert.Equal(t, "statement", report.Planned[0].Category)
	assert.Equal(t, server.URL+"/files/statement.pdf", report.Planned[0].URL)
	assert.Empty(t, report.Planned[1].URL)
	assert.Zero(t, atomic.LoadInt32(documents))

	data, err := os.ReadFile(filepath.Join(root, storage.LogFileName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "date,category,outcome"))
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestCollectCommand_VerboseReportsCachePages(t *testing.T) {
	server, _, _ := calendarServer(t)

	cachePath := filepath.Join(t.TempDir(), "pages.db")
	cfg := writeConfig(t, fmt.Sprintf(`calendar_url: %s/cal.htm
historical_url_template: ""
request_interval: 0s
respect_robots: false
cache:
  enabled: true
  path: %s
`, server.URL, cachePath))

	_, stderr, err := execute(t, "collect", "--config", cfg, "--data-dir", t.TempDir(), "--verbose")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Run metrics")
	assert.Contains(t, stderr, "cache.pages")
	assert.FileExists(t, cachePath)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: ExitSuccess},
		{name: "generic", err: errors.New("boom"), want: ExitError},
		{name: "upstream", err: fmt.Errorf("discovering meetings: %w", scraper.ErrUpstreamUnavailable), want: ExitUpstreamUnavailable},
		{name: "parse", err: fmt.Errorf("discovering meetings: %w", scraper.ErrParseFailure), want: ExitParseFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestParseSortOrder(t *testing.T) {
	for _, valid := range []string{"date", "outcome", "category"} {
		order, err := ParseSortOrder(valid)
		require.NoError(t, err)
		assert.Equal(t, SortOrder(valid), order)
	}
	_, err := ParseSortOrder("name")
	assert.Error(t, err)
}
