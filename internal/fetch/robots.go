package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"github.com/temoto/robotstxt"
)

const maxRobotsBytes = 512 << 10

// robotsRules caches parsed robots.txt per host. A nil entry means "no rules".
type robotsRules struct {
	mu     sync.Mutex
	byHost map[string]*robotstxt.RobotsData
}

func newRobotsRules() *robotsRules {
	return &robotsRules{byHost: make(map[string]*robotstxt.RobotsData)}
}

// checkRobots returns ErrDisallowed when the host's robots.txt forbids u
func (c *Client) checkRobots(ctx context.Context, u *url.URL) error {
	if !c.respectRobots {
		return nil
	}
	data := c.robotsFor(ctx, u)
	if data == nil {
		return nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if !data.TestAgent(path, c.userAgent) {
		c.metrics.IncrCounter("fetch.disallowed")
		return fmt.Errorf("%s: %w", u.String(), ErrDisallowed)
	}
	return nil
}

func (c *Client) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	c.robots.mu.Lock()
	defer c.robots.mu.Unlock()

	if data, ok := c.robots.byHost[u.Host]; ok {
		return data
	}

	robotsURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String()
	data, err := c.fetchRobots(ctx, robotsURL)
	if err != nil {
		c.log.Debug("robots.txt unavailable, allowing all", logger.Fields{
			"url":   robotsURL,
			"error": err.Error(),
		})
		data = nil
	}
	c.robots.byHost[u.Host] = data
	return data
}

func (c *Client) fetchRobots(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching robots.txt: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("reading robots.txt: %w", err)
	}
	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}
