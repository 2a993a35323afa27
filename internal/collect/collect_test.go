package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/fomc-docs/internal/fetch"
	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/pfrederiksen/fomc-docs/internal/meeting"
	"github.com/pfrederiksen/fomc-docs/internal/notifier"
	"github.com/pfrederiksen/fomc-docs/internal/scraper"
	"github.com/pfrederiksen/fomc-docs/internal/storage"
	"github.com/pfrederiksen/fomc-docs/internal/verify"
)

const samplePDF = "%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF\n"

const calendarPage = `<html><body>
<div class="panel panel-default">
  <div class="panel-heading"><h4>2024 FOMC Meetings</h4></div>
  <div class="row fomc-meeting">
    <div class="fomc-meeting__month"><strong>March</strong></div>
    <div class="fomc-meeting__date">20</div>
    <div><strong>Statement:</strong><br><a href="/files/statement-2024.pdf">PDF</a></div>
  </div>
</div>
<div class="panel panel-default">
  <div class="panel-heading"><h4>2015 FOMC Meetings</h4></div>
  <div class="row fomc-meeting">
    <div class="fomc-meeting__month"><strong>March</strong></div>
    <div class="fomc-meeting__date">18</div>
    <div><strong>Statement:</strong><br><a href="/files/statement-2015.pdf">PDF</a></div>
  </div>
</div>
</body></html>`

const unlinkedCalendarPage = `<html><body>
<div class="panel panel-default">
  <div class="panel-heading"><h4>2024 FOMC Meetings</h4></div>
  <div class="row fomc-meeting">
    <div class="fomc-meeting__month"><strong>March</strong></div>
    <div class="fomc-meeting__date">20</div>
    <div><a href="/files/minutes.pdf">Minutes</a></div>
  </div>
</div>
</body></html>`

var quietLog = logger.New(logger.LevelError, io.Discard)

func runDate() time.Time {
	return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
}

type upstream struct {
	server    *httptest.Server
	documents int32
}

func newUpstream(t *testing.T, calendar string, document http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/cal.htm", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, calendar)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.documents, 1)
		document(w, r)
	})
	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

func servePDF(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/pdf")
	io.WriteString(w, samplePDF)
}

type recordingNotifier struct {
	alerts []notifier.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, alert notifier.Alert) error {
	n.alerts = append(n.alerts, alert)
	return nil
}

func newPipeline(t *testing.T, u *upstream, root string, opts Options) (*Pipeline, *storage.Log) {
	t.Helper()
	client := fetch.New(fetch.Options{
		Retry:   fetch.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2},
		Logger:  quietLog,
		Metrics: logger.NewMetrics(),
	})
	discoverer := scraper.NewDiscoverer(client, scraper.DiscovererOptions{
		CalendarURL: u.server.URL + "/cal.htm",
		Logger:      quietLog,
		Now:         runDate,
	})
	resolver := scraper.NewResolver(client, nil, quietLog)
	store, err := storage.New(root)
	require.NoError(t, err)
	verifier := verify.New(client, verify.Options{
		Store:   store,
		Logger:  quietLog,
		Metrics: logger.NewMetrics(),
		Now:     runDate,
	})

	log, err := store.OpenLog()
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	if opts.Years == 0 {
		opts.Years = 10
	}
	opts.RunID = "test-run"
	opts.Logger = quietLog
	opts.Metrics = logger.NewMetrics()
	opts.Now = runDate
	return New(discoverer, resolver, verifier, log, opts), log
}

func TestRun_LookbackWindowAndMissingProjection(t *testing.T) {
	u := newUpstream(t, calendarPage, servePDF)
	root := t.TempDir()
	p, log := newPipeline(t, u, root, Options{Download: true, Workers: 2})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Meetings, 1)
	assert.Equal(t, "2024-03-20", report.Meetings[0].Key())
	assert.Equal(t, "March 2024", report.Meetings[0].Label)

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, meeting.Statement, entries[0].Category)
	assert.Equal(t, meeting.Saved, entries[0].Outcome)
	assert.Equal(t, meeting.Projection, entries[1].Category)
	assert.Equal(t, meeting.MissingUpstream, entries[1].Outcome)

	saved, err := os.ReadFile(entries[0].LocalPath)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, string(saved))
	assert.Equal(t, filepath.Join(root, "2024"), filepath.Dir(entries[0].LocalPath))

	missing, err := os.ReadFile(log.MissingPath())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-20 March 2024: missing projection materials\n", string(missing))

	assert.Equal(t, storage.Summary{TotalMeetings: 1, Saved: 1, Missing: 1}, report.Summary)
	assert.Equal(t, int32(1), u.documents, "the 2015 meeting is outside the window")
	assert.False(t, report.Alerted)
}

func TestRun_Idempotent(t *testing.T) {
	u := newUpstream(t, calendarPage, servePDF)
	root := t.TempDir()

	p, log := newPipeline(t, u, root, Options{Download: true, Workers: 4})
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, log.Close())

	first, err := os.ReadFile(filepath.Join(root, storage.LogFileName))
	require.NoError(t, err)

	p, _ = newPipeline(t, u, root, Options{Download: true, Workers: 4})
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	second, err := os.ReadFile(filepath.Join(root, storage.LogFileName))
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second), "log changed on rerun:\n%s\n---\n%s", first, second)
	assert.Equal(t, int32(1), u.documents, "rerun must not download again")
	assert.Empty(t, report.Results)
	assert.Equal(t, 2, report.Skipped)
}

const twoMeetingCalendarPage = `<html><body>
<div class="panel panel-default">
  <div class="panel-heading"><h4>2024 FOMC Meetings</h4></div>
  <div class="row fomc-meeting">
    <div class="fomc-meeting__month"><strong>March</strong></div>
    <div class="fomc-meeting__date">19-20</div>
    <div><strong>Statement:</strong><br><a href="/files/statement-2024-03.pdf">PDF</a></div>
  </div>
  <div class="row fomc-meeting">
    <div class="fomc-meeting__month"><strong>June</strong></div>
    <div class="fomc-meeting__date">11-12</div>
    <div><strong>Statement:</strong><br><a href="/files/statement-2024-06.pdf">PDF</a></div>
    <div><strong>Projection Materials:</strong><br><a href="/files/projections-2024-06.pdf">PDF</a></div>
  </div>
</div>
</body></html>`

func TestRun_HTMLErrorPage(t *testing.T) {
	u := newUpstream(t, twoMeetingCalendarPage, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/files/statement-2024-03.pdf" {
			w.Header().Set("Content-Type", "application/pdf")
			io.WriteString(w, "<html><body>Service temporarily unavailable</body></html>")
			return
		}
		servePDF(w, r)
	})
	root := t.TempDir()
	p, log := newPipeline(t, u, root, Options{Download: true})

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Meetings, 2)

	entries := log.Entries()
	require.Len(t, entries, 4)

	march, june := entries[:2], entries[2:]
	assert.Equal(t, "2024-03-19", march[0].Date.Format(meeting.DateLayout))
	assert.Equal(t, meeting.Statement, march[0].Category)
	assert.Equal(t, meeting.VerificationFailed, march[0].Outcome)
	assert.Empty(t, march[0].LocalPath)
	assert.Equal(t, meeting.MissingUpstream, march[1].Outcome)

	// the rejected document does not stop later meetings
	assert.Equal(t, "2024-06-11", june[0].Date.Format(meeting.DateLayout))
	for _, e := range june {
		assert.Equal(t, meeting.Saved, e.Outcome, "%s %s", e.Date.Format(meeting.DateLayout), e.Category)
		assert.FileExists(t, e.LocalPath)
	}
	assert.Equal(t, storage.Summary{TotalMeetings: 2, Saved: 2, Missing: 1, Failed: 1}, report.Summary)

	_, err = os.Stat(storage.CanonicalPath(root, report.Meetings[0], meeting.Statement))
	assert.True(t, os.IsNotExist(err), "rejected payload must not be saved")
}

func TestRun_RetryFailed(t *testing.T) {
	var healthy atomic.Bool
	u := newUpstream(t, calendarPage, func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, "<html>maintenance</html>")
			return
		}
		servePDF(w, r)
	})
	root := t.TempDir()

	p, log := newPipeline(t, u, root, Options{Download: true})
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, log.Close())

	healthy.Store(true)

	// without retry-failed the failure is final
	p, log = newPipeline(t, u, root, Options{Download: true})
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, meeting.VerificationFailed, log.Entries()[0].Outcome)
	require.NoError(t, log.Close())

	p, log = newPipeline(t, u, root, Options{Download: true, RetryFailed: true})
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, meeting.Saved, log.Entries()[0].Outcome)
	assert.Equal(t, int32(2), u.documents)
}

func TestRun_DryRun(t *testing.T) {
	u := newUpstream(t, calendarPage, servePDF)
	root := t.TempDir()
	p, log := newPipeline(t, u, root, Options{})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	require.Len(t, report.Planned, 2)
	assert.True(t, report.Planned[0].HasURL())
	assert.False(t, report.Planned[1].HasURL())
	assert.Empty(t, log.Entries())
	assert.Equal(t, int32(0), u.documents)

	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)
	assert.Equal(t, "date,category,outcome,local_path,source_url,timestamp,label,document_url\n", string(data))
}

func TestRun_StructuralChangeAlert(t *testing.T) {
	u := newUpstream(t, unlinkedCalendarPage, servePDF)
	alerts := &recordingNotifier{}
	p, log := newPipeline(t, u, t.TempDir(), Options{Download: true, Notifier: alerts, Source: "calendar"})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Alerted)
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, notifier.KindStructuralChange, alerts.alerts[0].Kind)
	assert.Equal(t, "test-run", alerts.alerts[0].RunID)
	assert.Equal(t, 1, alerts.alerts[0].Meetings)
	assert.Equal(t, 2, log.Summarize().Missing)
}

func TestRun_CalendarUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	u := &upstream{server: server}
	p, log := newPipeline(t, u, t.TempDir(), Options{Download: true})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, scraper.ErrUpstreamUnavailable))
	assert.Empty(t, log.Entries())
}

func TestRun_Cancelled(t *testing.T) {
	u := newUpstream(t, calendarPage, servePDF)
	p, log := newPipeline(t, u, t.TempDir(), Options{Download: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, log.Entries())
}

type stubDiscoverer []meeting.Meeting

func (s stubDiscoverer) Discover(context.Context, int) ([]meeting.Meeting, error) {
	return s, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, m meeting.Meeting) ([]meeting.DocumentCandidate, error) {
	return []meeting.DocumentCandidate{
		{Meeting: m, Category: meeting.Projection, URL: "https://example.gov/p.pdf"},
		{Meeting: m, Category: meeting.Statement, URL: "https://example.gov/s.pdf"},
	}, nil
}

// slowVerifier finishes earlier meetings last
type slowVerifier struct{}

func (slowVerifier) FetchAndVerify(_ context.Context, c meeting.DocumentCandidate) (meeting.DownloadResult, error) {
	delay := time.Duration(2030-c.Meeting.Year()) * 5 * time.Millisecond
	time.Sleep(delay)
	return meeting.DownloadResult{Candidate: c, Outcome: meeting.Saved, LocalPath: "/tmp/x.pdf", Timestamp: runDate()}, nil
}

func TestRun_CommitsInMeetingOrder(t *testing.T) {
	var meetings []meeting.Meeting
	for year := 2016; year <= 2024; year++ {
		meetings = append(meetings, meeting.New(time.Date(year, time.March, 20, 0, 0, 0, 0, time.UTC), fmt.Sprintf("March %d", year), "https://example.gov/cal.htm"))
	}

	root := t.TempDir()
	log, err := storage.OpenLog(root)
	require.NoError(t, err)
	defer log.Close()

	p := New(stubDiscoverer(meetings), stubResolver{}, slowVerifier{}, log, Options{
		Download: true,
		Workers:  4,
		Logger:   quietLog,
		Metrics:  logger.NewMetrics(),
		Now:      runDate,
	})
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 18)
	for i, r := range report.Results {
		assert.Equal(t, meetings[i/2].Key(), r.Candidate.Meeting.Key())
		if i%2 == 0 {
			assert.Equal(t, meeting.Statement, r.Candidate.Category)
		} else {
			assert.Equal(t, meeting.Projection, r.Candidate.Category)
		}
	}
}
