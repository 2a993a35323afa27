package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pfrederiksen/fomc-docs/internal/fetch"
	"github.com/pfrederiksen/fomc-docs/internal/logger"
)

var quietLog = logger.New(logger.LevelError, io.Discard)

func testFetcher() *fetch.Client {
	return fetch.New(fetch.Options{
		Retry:   fetch.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2},
		Logger:  quietLog,
		Metrics: logger.NewMetrics(),
	})
}

func serveFixture(t *testing.T, name string) http.HandlerFunc {
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("failed to load test fixture: %v", err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(data)
	}
}

func fixedNow(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 15, 0, 0, 0, time.UTC) }
}

func TestDiscover(t *testing.T) {
	var historicalHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/cal.htm", serveFixture(t, "calendar.html"))
	mux.HandleFunc("/hist/2016.htm", serveFixture(t, "historical2016.html"))
	mux.HandleFunc("/hist/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&historicalHits, 1)
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	d := NewDiscoverer(testFetcher(), DiscovererOptions{
		CalendarURL:           server.URL + "/cal.htm",
		HistoricalURLTemplate: server.URL + "/hist/%d.htm",
		Logger:                quietLog,
		Now:                   fixedNow(2025, time.June, 1),
	})

	meetings, err := d.Discover(context.Background(), 10)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	want := []string{"2016-04-26", "2016-06-14", "2023-01-31", "2023-07-25", "2024-01-30", "2024-03-19", "2024-12-17"}
	var got []string
	for _, m := range meetings {
		got = append(got, m.Key())
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Discover() dates = %v, want %v", got, want)
	}

	// 2015, 2017-2022 are missing from the primary page; 2016 is served separately
	if historicalHits != 7 {
		t.Errorf("historical 404s = %d, want 7", historicalHits)
	}
}

func TestDiscover_WindowBoundary(t *testing.T) {
	tests := []struct {
		name   string
		now    func() time.Time
		want   int
		oldest string
	}{
		{"window start included", fixedNow(2026, time.April, 26), 2, "2016-04-26"},
		{"day before excluded", fixedNow(2026, time.April, 27), 1, "2016-06-14"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(serveFixture(t, "historical2016.html"))
			defer server.Close()

			d := NewDiscoverer(testFetcher(), DiscovererOptions{
				CalendarURL: server.URL,
				Logger:      quietLog,
				Now:         tt.now,
			})
			meetings, err := d.Discover(context.Background(), 10)
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			if len(meetings) != tt.want {
				t.Fatalf("Discover() returned %d meetings, want %d", len(meetings), tt.want)
			}
			if meetings[0].Key() != tt.oldest {
				t.Errorf("oldest = %s, want %s", meetings[0].Key(), tt.oldest)
			}
		})
	}
}

func TestDiscover_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "calendar unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			want: ErrUpstreamUnavailable,
		},
		{
			name: "calendar not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			want: ErrUpstreamUnavailable,
		},
		{
			name: "no meetings",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html><body><h1>Site maintenance</h1></body></html>"))
			},
			want: ErrParseFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			d := NewDiscoverer(testFetcher(), DiscovererOptions{
				CalendarURL: server.URL,
				Logger:      quietLog,
				Now:         fixedNow(2025, time.June, 1),
			})
			_, err := d.Discover(context.Background(), 10)
			if !errors.Is(err, tt.want) {
				t.Errorf("Discover() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDiscover_HistoricalUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cal.htm", serveFixture(t, "calendar.html"))
	mux.HandleFunc("/hist/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	d := NewDiscoverer(testFetcher(), DiscovererOptions{
		CalendarURL:           server.URL + "/cal.htm",
		HistoricalURLTemplate: server.URL + "/hist/%d.htm",
		Logger:                quietLog,
		Now:                   fixedNow(2025, time.June, 1),
	})
	if _, err := d.Discover(context.Background(), 3); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Discover() error = %v, want ErrUpstreamUnavailable", err)
	}
}
