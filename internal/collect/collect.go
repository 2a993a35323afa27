// Package collect runs the collection pipeline: discover meetings, resolve their
// document links, verify and save each document, and record one Collection Log
// entry per (meeting, category).
//
// Meetings are processed by a bounded worker pool. Results are committed to the
// log strictly in meeting order, so the log grows monotonically by date and a
// cancelled run keeps every meeting finished before the first unfinished one.
package collect

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/pfrederiksen/fomc-docs/internal/meeting"
	"github.com/pfrederiksen/fomc-docs/internal/notifier"
	"github.com/pfrederiksen/fomc-docs/internal/scraper"
	"github.com/pfrederiksen/fomc-docs/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Discoverer lists meetings in the lookback window
type Discoverer interface {
	Discover(ctx context.Context, years int) ([]meeting.Meeting, error)
}

// Resolver finds a meeting's document links
type Resolver interface {
	Resolve(ctx context.Context, m meeting.Meeting) ([]meeting.DocumentCandidate, error)
}

// Verifier downloads and checks one candidate
type Verifier interface {
	FetchAndVerify(ctx context.Context, c meeting.DocumentCandidate) (meeting.DownloadResult, error)
}

// Options configures a run
type Options struct {
	Years       int
	Download    bool
	Workers     int
	RetryFailed bool
	RunID       string
	Source      string
	Notifier    notifier.Notifier
	Logger      *logger.Logger
	Metrics     *logger.Metrics
	Now         func() time.Time
}

// Report describes a finished run
type Report struct {
	RunID    string                      `json:"run_id"`
	DryRun   bool                        `json:"dry_run"`
	Meetings []meeting.Meeting           `json:"meetings"`
	Planned  []meeting.DocumentCandidate `json:"planned,omitempty"`
	Results  []meeting.DownloadResult    `json:"-"`
	Skipped  int                         `json:"skipped"`
	Dropped  int                         `json:"dropped"`
	Alerted  bool                        `json:"alerted"`
	Summary  storage.Summary             `json:"summary"`
	Missing  []meeting.LogEntry          `json:"missing"`
	Duration time.Duration               `json:"duration"`
}

// Pipeline wires the stages to one Collection Log
type Pipeline struct {
	discoverer Discoverer
	resolver   Resolver
	verifier   Verifier
	log        *storage.Log
	opts       Options
	logger     *logger.Logger
	metrics    *logger.Metrics
	now        func() time.Time
}

// New creates a Pipeline. The log must already be open; the caller closes it.
func New(d Discoverer, r Resolver, v Verifier, log *storage.Log, opts Options) *Pipeline {
	p := &Pipeline{
		discoverer: d,
		resolver:   r,
		verifier:   v,
		log:        log,
		opts:       opts,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
	if p.logger == nil {
		p.logger = logger.Default()
	}
	if p.metrics == nil {
		p.metrics = logger.DefaultMetrics()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.opts.Workers < 1 {
		p.opts.Workers = 1
	}
	if p.opts.Years < 1 {
		p.opts.Years = scraper.DefaultLookbackYears
	}
	p.logger = p.logger.With(logger.Fields{"run_id": opts.RunID})
	return p
}

// Run executes the pipeline. Calendar and meeting-page failures abort the run
// and are returned; per-document failures become log entries.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := p.now()
	report := &Report{RunID: p.opts.RunID, DryRun: !p.opts.Download}
	defer func() { report.Duration = p.now().Sub(start) }()

	p.logger.Info("collection started", logger.Fields{
		"years":    p.opts.Years,
		"download": p.opts.Download,
		"workers":  p.opts.Workers,
	})

	if p.opts.Download && p.opts.RetryFailed {
		dropped, err := p.log.DropFailed()
		if err != nil {
			return report, fmt.Errorf("dropping failed entries: %w", err)
		}
		report.Dropped = dropped
		if dropped > 0 {
			p.logger.Info("retrying failed entries", logger.Fields{"entries": dropped})
		}
	}

	meetings, err := p.discoverer.Discover(ctx, p.opts.Years)
	if err != nil {
		return report, fmt.Errorf("discovering meetings: %w", err)
	}
	report.Meetings = meetings
	p.metrics.SetGauge("run.meetings", float64(len(meetings)))

	planned := make([][]meeting.DocumentCandidate, len(meetings))
	commit := newCommitter(p.log, len(meetings))
	var skipped int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, m := range meetings {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			found, err := p.resolver.Resolve(gctx, m)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", m.Key(), err)
			}
			candidates := scraper.Complete(m, found)
			planned[i] = candidates
			if !p.opts.Download {
				return nil
			}

			var results []meeting.DownloadResult
			for _, c := range candidates {
				if p.log.Has(m.Date, c.Category) {
					atomic.AddInt64(&skipped, 1)
					continue
				}
				res, err := p.verifier.FetchAndVerify(gctx, c)
				if err != nil {
					return fmt.Errorf("collecting %s %s: %w", m.Key(), c.Category, err)
				}
				results = append(results, res)
			}
			return commit.done(i, results)
		})
	}
	err = g.Wait()

	report.Results = commit.committed
	report.Skipped = int(skipped)
	for _, r := range report.Results {
		p.metrics.IncrCounter("outcome." + string(r.Outcome))
	}
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("collection cancelled: %w", err)
		}
		return report, err
	}

	for _, candidates := range planned {
		report.Planned = append(report.Planned, candidates...)
	}
	report.Alerted = p.checkStructure(ctx, meetings, planned)

	if err := p.log.Flush(); err != nil {
		return report, fmt.Errorf("flushing log: %w", err)
	}
	report.Summary = p.log.Summarize()
	report.Missing = p.log.MissingEntries()

	p.logger.Info("collection finished", logger.Fields{
		"meetings": len(meetings),
		"appended": len(report.Results),
		"skipped":  report.Skipped,
		"saved":    report.Summary.Saved,
		"missing":  report.Summary.Missing,
		"failed":   report.Summary.Failed,
	})
	return report, nil
}

// checkStructure raises an alert when a non-empty run found no statement link at all
func (p *Pipeline) checkStructure(ctx context.Context, meetings []meeting.Meeting, planned [][]meeting.DocumentCandidate) bool {
	if len(meetings) == 0 {
		return false
	}
	for _, candidates := range planned {
		for _, c := range candidates {
			if c.Category == meeting.Statement && c.HasURL() {
				return false
			}
		}
	}

	p.logger.Warn("no statement links found for any meeting", logger.Fields{"meetings": len(meetings)})
	if p.opts.Notifier == nil {
		return false
	}
	alert := notifier.StructuralChange(p.opts.RunID, p.opts.Source, len(meetings), p.now())
	if err := p.opts.Notifier.Notify(ctx, alert); err != nil {
		p.logger.Error("alert delivery failed", logger.Fields{"kind": string(alert.Kind)}, err)
		return false
	}
	return true
}

// committer appends per-meeting results to the log in meeting order
type committer struct {
	mu        sync.Mutex
	log       *storage.Log
	pending   [][]meeting.DownloadResult
	ready     []bool
	next      int
	committed []meeting.DownloadResult
}

func newCommitter(log *storage.Log, n int) *committer {
	return &committer{
		log:     log,
		pending: make([][]meeting.DownloadResult, n),
		ready:   make([]bool, n),
	}
}

// done marks meeting i finished and appends every result now in order
func (c *committer) done(i int, results []meeting.DownloadResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	meeting.SortResults(results)
	c.pending[i] = results
	c.ready[i] = true

	for c.next < len(c.ready) && c.ready[c.next] {
		for _, r := range c.pending[c.next] {
			added, err := c.log.Append(r)
			if err != nil {
				return fmt.Errorf("appending to log: %w", err)
			}
			if added {
				c.committed = append(c.committed, r)
			}
		}
		c.pending[c.next] = nil
		c.next++
	}
	return nil
}
