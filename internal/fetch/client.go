package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pfrederiksen/fomc-docs/internal/cache"
	"github.com/pfrederiksen/fomc-docs/internal/logger"
	"golang.org/x/net/html/charset"
)

const (
	DefaultUserAgent       = "fomc-docs/1.0 (+https://github.com/pfrederiksen/fomc-docs)"
	DefaultTimeout         = 30 * time.Second
	DefaultRequestInterval = 500 * time.Millisecond

	// maxPageBytes caps HTML pages; documents carry their own limit
	maxPageBytes = 10 << 20
)

// PageCache stores HTML pages for conditional revalidation
type PageCache interface {
	Get(ctx context.Context, url string) (cache.Page, bool, error)
	Put(ctx context.Context, p cache.Page) error
}

// Options configures a Client. Zero values fall back to package defaults.
type Options struct {
	UserAgent       string
	Timeout         time.Duration
	RequestInterval time.Duration
	RespectRobots   bool
	Retry           RetryPolicy
	Cache           PageCache
	HTTPClient      *http.Client
	Logger          *logger.Logger
	Metrics         *logger.Metrics
}

// Response is a successful GET
type Response struct {
	URL          string
	StatusCode   int
	ContentType  string
	ETag         string
	LastModified string
	Body         []byte
	FromCache    bool
}

// Reader returns the body decoded to UTF-8 using the declared or sniffed charset
func (r *Response) Reader() (io.Reader, error) {
	rd, err := charset.NewReader(bytes.NewReader(r.Body), r.ContentType)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", r.URL, err)
	}
	return rd, nil
}

// Client fetches pages and documents politely and with bounded retries
type Client struct {
	http          *http.Client
	userAgent     string
	retry         RetryPolicy
	respectRobots bool
	cache         PageCache
	limiter       *hostLimiter
	robots        *robotsRules
	log           *logger.Logger
	metrics       *logger.Metrics
}

// New creates a Client
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = logger.DefaultMetrics()
	}

	return &Client{
		http:          httpClient,
		userAgent:     userAgent,
		retry:         retry,
		respectRobots: opts.RespectRobots,
		cache:         opts.Cache,
		limiter:       newHostLimiter(opts.RequestInterval),
		robots:        newRobotsRules(),
		log:           log,
		metrics:       metrics,
	}
}

// GetPage fetches an HTML page, revalidating a cached copy when one exists
func (c *Client) GetPage(ctx context.Context, rawURL string) (*Response, error) {
	start := time.Now()
	defer func() { c.metrics.RecordTiming("fetch.page", time.Since(start)) }()

	var cached *cache.Page
	if c.cache != nil {
		page, ok, err := c.cache.Get(ctx, rawURL)
		if err != nil {
			c.log.Warn("page cache read failed", logger.Fields{"url": rawURL, "error": err.Error()})
		} else if ok && page.Validated() {
			cached = &page
		}
	}

	resp, err := c.get(ctx, rawURL, maxPageBytes, cached)
	if err != nil {
		return nil, err
	}
	if resp.FromCache {
		c.metrics.IncrCounter("fetch.cache_hits")
		return resp, nil
	}

	if c.cache != nil && (resp.ETag != "" || resp.LastModified != "") {
		err := c.cache.Put(ctx, cache.Page{
			URL:          rawURL,
			ETag:         resp.ETag,
			LastModified: resp.LastModified,
			ContentType:  resp.ContentType,
			Body:         resp.Body,
			FetchedAt:    time.Now().UTC(),
		})
		if err != nil {
			c.log.Warn("page cache write failed", logger.Fields{"url": rawURL, "error": err.Error()})
		}
	}
	return resp, nil
}

// GetDocument fetches a binary document of at most limit bytes (0 means no limit)
func (c *Client) GetDocument(ctx context.Context, rawURL string, limit int64) (*Response, error) {
	start := time.Now()
	defer func() { c.metrics.RecordTiming("fetch.document", time.Since(start)) }()
	return c.get(ctx, rawURL, limit, nil)
}

func (c *Client) get(ctx context.Context, rawURL string, limit int64, cached *cache.Page) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}
	if err := c.checkRobots(ctx, u); err != nil {
		return nil, err
	}

	var out *Response
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if err := c.limiter.Wait(ctx, u.Host); err != nil {
			return backoff.Permanent(err)
		}
		c.metrics.IncrCounter("fetch.attempts")

		resp, err := c.once(ctx, rawURL, limit, cached)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = resp
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.IncrCounter("fetch.retries")
		c.log.Warn("fetch failed, retrying", logger.Fields{
			"url":   rawURL,
			"wait":  wait.String(),
			"error": err.Error(),
		})
	}

	if err := backoff.RetryNotify(op, c.retry.BackOff(ctx), notify); err != nil {
		c.metrics.IncrCounter("fetch.errors")
		return nil, err
	}
	return out, nil
}

func (c *Client) once(ctx context.Context, rawURL string, limit int64, cached *cache.Page) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &requestError{err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		return &Response{
			URL:          rawURL,
			StatusCode:   http.StatusOK,
			ContentType:  cached.ContentType,
			ETag:         cached.ETag,
			LastModified: cached.LastModified,
			Body:         cached.Body,
			FromCache:    true,
		}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := readLimited(resp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	return &Response{
		URL:          resp.Request.URL.String(),
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Body:         body,
	}, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return body, nil
}
