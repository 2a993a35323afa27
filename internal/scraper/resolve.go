package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/pfrederiksen/fomc-docs/internal/meeting"
	"golang.org/x/sync/singleflight"
)

// Resolver finds statement and projection links for meetings. Pages are
// memoized for the Resolver's lifetime, so one Resolver should serve one run.
type Resolver struct {
	fetcher   Fetcher
	extractor Extractor
	log       *logger.Logger

	group singleflight.Group
	mu    sync.Mutex
	pages map[string]*Page
}

// NewResolver creates a Resolver. A nil extractor selects the default one.
func NewResolver(f Fetcher, extractor Extractor, log *logger.Logger) *Resolver {
	if extractor == nil {
		extractor = NewExtractor()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Resolver{
		fetcher:   f,
		extractor: extractor,
		log:       log,
		pages:     make(map[string]*Page),
	}
}

// Resolve returns at most one candidate per category, each with a URL. Absent
// categories are simply omitted. It fails with ErrUpstreamUnavailable only when
// the meeting's page cannot be fetched.
func (r *Resolver) Resolve(ctx context.Context, m meeting.Meeting) ([]meeting.DocumentCandidate, error) {
	page, err := r.page(ctx, m.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: meeting page %s: %w", ErrUpstreamUnavailable, m.SourceURL, err)
	}

	links := r.extractor.ExtractLinks(page, m)
	found := Classify(links)

	var candidates []meeting.DocumentCandidate
	for _, c := range meeting.Categories {
		if u, ok := found[c]; ok {
			candidates = append(candidates, meeting.DocumentCandidate{Meeting: m, Category: c, URL: u})
		}
	}

	r.log.Debug("meeting resolved", logger.Fields{
		"date":       m.Key(),
		"links":      len(links),
		"candidates": len(candidates),
	})
	return candidates, nil
}

func (r *Resolver) page(ctx context.Context, url string) (*Page, error) {
	r.mu.Lock()
	page, ok := r.pages[url]
	r.mu.Unlock()
	if ok {
		return page, nil
	}

	v, err, _ := r.group.Do(url, func() (interface{}, error) {
		r.mu.Lock()
		cached, ok := r.pages[url]
		r.mu.Unlock()
		if ok {
			return cached, nil
		}

		p, err := loadPage(ctx, r.fetcher, url)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.pages[url] = p
		r.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Page), nil
}

// categoryKeywords maps label keywords to categories
var categoryKeywords = []struct {
	keyword  string
	category meeting.Category
}{
	{"statement", meeting.Statement},
	{"projection", meeting.Projection},
}

// Classify picks the first link per category by case-insensitive label match
func Classify(links []Link) map[meeting.Category]string {
	found := make(map[meeting.Category]string, len(categoryKeywords))
	for _, l := range links {
		label := strings.ToLower(l.Label)
		for _, k := range categoryKeywords {
			if _, seen := found[k.category]; seen {
				continue
			}
			if strings.Contains(label, k.keyword) {
				found[k.category] = l.URL
			}
		}
	}
	return found
}

// Complete returns one candidate per category for m, filling categories absent
// from found with URL-less candidates
func Complete(m meeting.Meeting, found []meeting.DocumentCandidate) []meeting.DocumentCandidate {
	byCategory := make(map[meeting.Category]meeting.DocumentCandidate, len(found))
	for _, c := range found {
		byCategory[c.Category] = c
	}
	out := make([]meeting.DocumentCandidate, 0, len(meeting.Categories))
	for _, c := range meeting.Categories {
		if cand, ok := byCategory[c]; ok {
			out = append(out, cand)
			continue
		}
		out = append(out, meeting.DocumentCandidate{Meeting: m, Category: c})
	}
	return out
}
