package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pfrederiksen/fomc-docs/internal/fetch"
	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/pfrederiksen/fomc-docs/internal/meeting"
)

const (
	CalendarURL           = "https://www.federalreserve.gov/monetarypolicy/fomccalendars.htm"
	HistoricalURLTemplate = "https://www.federalreserve.gov/monetarypolicy/fomchistorical%d.htm"
	DefaultLookbackYears  = 10
)

// Fetcher retrieves HTML pages
type Fetcher interface {
	GetPage(ctx context.Context, url string) (*fetch.Response, error)
}

// loadPage fetches and parses one page
func loadPage(ctx context.Context, f Fetcher, url string) (*Page, error) {
	resp, err := f.GetPage(ctx, url)
	if err != nil {
		return nil, err
	}
	r, err := resp.Reader()
	if err != nil {
		return nil, err
	}
	return ParsePage(url, r)
}

// DiscovererOptions configures a Discoverer
type DiscovererOptions struct {
	CalendarURL           string
	HistoricalURLTemplate string
	Extractor             Extractor
	Logger                *logger.Logger
	Now                   func() time.Time
}

// Discoverer lists meetings inside a lookback window
type Discoverer struct {
	fetcher            Fetcher
	extractor          Extractor
	calendarURL        string
	historicalTemplate string
	log                *logger.Logger
	now                func() time.Time
}

// NewDiscoverer creates a Discoverer. An empty HistoricalURLTemplate disables
// per-year historical pages.
func NewDiscoverer(f Fetcher, opts DiscovererOptions) *Discoverer {
	d := &Discoverer{
		fetcher:            f,
		extractor:          opts.Extractor,
		calendarURL:        opts.CalendarURL,
		historicalTemplate: opts.HistoricalURLTemplate,
		log:                opts.Logger,
		now:                opts.Now,
	}
	if d.extractor == nil {
		d.extractor = NewExtractor()
	}
	if d.calendarURL == "" {
		d.calendarURL = CalendarURL
	}
	if d.log == nil {
		d.log = logger.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Discover returns meetings dated on or after today minus years, oldest first.
// It fails with ErrUpstreamUnavailable when the calendar cannot be fetched and
// with ErrParseFailure when the calendar lists no meetings.
func (d *Discoverer) Discover(ctx context.Context, years int) ([]meeting.Meeting, error) {
	now := d.now()
	start := meeting.WindowStart(now, years)

	page, err := loadPage(ctx, d.fetcher, d.calendarURL)
	if err != nil {
		return nil, fmt.Errorf("%w: calendar %s: %w", ErrUpstreamUnavailable, d.calendarURL, err)
	}
	found := d.extractor.ExtractMeetings(page)
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrParseFailure, d.calendarURL)
	}
	d.log.Debug("calendar parsed", logger.Fields{"url": d.calendarURL, "meetings": len(found)})

	listed := make(map[int]bool)
	for _, m := range found {
		listed[m.Year()] = true
	}

	if d.historicalTemplate != "" {
		for _, year := range meeting.YearsInWindow(now, years) {
			if listed[year] || year >= now.Year() {
				continue
			}
			more, err := d.historical(ctx, year)
			if err != nil {
				return nil, err
			}
			found = append(found, more...)
		}
	}

	inWindow := make([]meeting.Meeting, 0, len(found))
	for _, m := range found {
		if meeting.InWindow(m.Date, start) {
			inWindow = append(inWindow, m)
		}
	}
	meetings := meeting.Dedup(inWindow)
	meeting.SortMeetings(meetings)

	d.log.Info("meetings discovered", logger.Fields{
		"meetings":     len(meetings),
		"window_start": start.Format(meeting.DateLayout),
	})
	return meetings, nil
}

// historical fetches one year's archive page. A missing page is not an error.
func (d *Discoverer) historical(ctx context.Context, year int) ([]meeting.Meeting, error) {
	url := fmt.Sprintf(d.historicalTemplate, year)
	page, err := loadPage(ctx, d.fetcher, url)
	if errors.Is(err, fetch.ErrNotFound) {
		d.log.Warn("no historical calendar for year", logger.Fields{"year": year, "url": url})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: historical calendar %s: %w", ErrUpstreamUnavailable, url, err)
	}

	found := d.extractor.ExtractMeetings(page)
	d.log.Debug("historical calendar parsed", logger.Fields{"year": year, "meetings": len(found)})
	return found, nil
}
