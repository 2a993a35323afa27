package scraper

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pfrederiksen/fomc-docs/internal/meeting"
)

const testBase = "https://www.federalreserve.gov/monetarypolicy/fomccalendars.htm"

func loadFixture(t *testing.T, name, pageURL string) *Page {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("failed to load test fixture: %v", err)
	}
	page, err := ParsePage(pageURL, strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("ParsePage() error = %v", err)
	}
	return page
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtractMeetings_PanelLayout(t *testing.T) {
	page := loadFixture(t, "calendar.html", testBase)

	got := NewExtractor().ExtractMeetings(page)

	want := []struct {
		date   time.Time
		label  string
		source string
	}{
		{date(2024, time.January, 30), "January 2024", testBase},
		{date(2024, time.March, 19), "March 2024", testBase},
		{date(2024, time.December, 17), "December 2024", testBase},
		{date(2023, time.January, 31), "January 2023", testBase},
		{date(2023, time.July, 25), "July 2023", "https://www.federalreserve.gov/monetarypolicy/fomcmeeting20230726.htm"},
	}

	if len(got) != len(want) {
		t.Fatalf("ExtractMeetings() returned %d meetings, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if !got[i].Date.Equal(w.date) {
			t.Errorf("meeting[%d].Date = %s, want %s", i, got[i].Key(), w.date.Format(meeting.DateLayout))
		}
		if got[i].Label != w.label {
			t.Errorf("meeting[%d].Label = %q, want %q", i, got[i].Label, w.label)
		}
		if got[i].SourceURL != w.source {
			t.Errorf("meeting[%d].SourceURL = %q, want %q", i, got[i].SourceURL, w.source)
		}
	}
}

func TestExtractMeetings_TableLayout(t *testing.T) {
	page := loadFixture(t, "historical2016.html", "https://www.federalreserve.gov/monetarypolicy/fomchistorical2016.htm")

	got := NewExtractor().ExtractMeetings(page)

	if len(got) != 2 {
		t.Fatalf("ExtractMeetings() returned %d meetings, want 2: %+v", len(got), got)
	}
	if got[0].Key() != "2016-04-26" || got[1].Key() != "2016-06-14" {
		t.Errorf("dates = %s, %s, want 2016-04-26, 2016-06-14", got[0].Key(), got[1].Key())
	}
}

func TestExtractMeetings_Empty(t *testing.T) {
	page, err := ParsePage(testBase, strings.NewReader("<html><body><p>Maintenance</p></body></html>"))
	if err != nil {
		t.Fatalf("ParsePage() error = %v", err)
	}
	if got := NewExtractor().ExtractMeetings(page); len(got) != 0 {
		t.Errorf("ExtractMeetings() = %+v, want none", got)
	}
}

func TestExtractLinks_ScopedToRow(t *testing.T) {
	page := loadFixture(t, "calendar.html", testBase)
	m := meeting.New(date(2024, time.March, 19), "March 2024", testBase)

	links := NewExtractor().ExtractLinks(page, m)

	want := []Link{
		{"Statement: PDF", "https://www.federalreserve.gov/newsevents/pressreleases/files/monetary20240320a1.pdf"},
		{"Statement: HTML", "https://www.federalreserve.gov/newsevents/pressreleases/monetary20240320a.htm"},
		{"Projection Materials: PDF", "https://www.federalreserve.gov/monetarypolicy/files/fomcprojtabl20240320.pdf"},
		{"Projection Materials: HTML", "https://www.federalreserve.gov/monetarypolicy/fomcprojtabl20240320.htm"},
	}
	if len(links) != len(want) {
		t.Fatalf("ExtractLinks() = %+v, want %+v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("link[%d] = %+v, want %+v", i, links[i], want[i])
		}
	}
}

func TestExtractLinks_SkipsScriptLinks(t *testing.T) {
	page := loadFixture(t, "calendar.html", testBase)
	m := meeting.New(date(2024, time.December, 17), "December 2024", testBase)

	found := Classify(NewExtractor().ExtractLinks(page, m))

	if got := found[meeting.Statement]; got != "https://www.federalreserve.gov/newsevents/pressreleases/monetary20241218a.htm" {
		t.Errorf("statement = %q", got)
	}
	if _, ok := found[meeting.Projection]; ok {
		t.Error("unexpected projection link")
	}
}

func TestExtractLinks_DetailPage(t *testing.T) {
	pageURL := "https://www.federalreserve.gov/monetarypolicy/fomcmeeting20230726.htm"
	page := loadFixture(t, "meeting20230726.html", pageURL)
	m := meeting.New(date(2023, time.July, 25), "July 2023", pageURL)

	links := NewExtractor().ExtractLinks(page, m)

	if len(links) != 2 {
		t.Fatalf("ExtractLinks() = %+v, want 2 links", links)
	}
	if links[0].Label != "Statement: PDF" {
		t.Errorf("label = %q, want %q", links[0].Label, "Statement: PDF")
	}
}

func TestPage_Resolve(t *testing.T) {
	page, _ := ParsePage("https://example.gov/monetarypolicy/cal.htm", strings.NewReader(""))

	tests := []struct {
		href string
		want string
	}{
		{"/files/a.pdf", "https://example.gov/files/a.pdf"},
		{"b.pdf", "https://example.gov/monetarypolicy/b.pdf"},
		{"https://other.gov/c.pdf#page=2", "https://other.gov/c.pdf"},
		{"  ", ""},
		{"#top", ""},
		{"javascript:void(0)", ""},
		{"MAILTO:someone@example.gov", ""},
		{"ftp://example.gov/file", ""},
	}

	for _, tt := range tests {
		if got := page.Resolve(tt.href); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		links          []Link
		wantStatement  string
		wantProjection string
	}{
		{
			name:           "both categories",
			links:          []Link{{"Statement", "s"}, {"Projection Materials", "p"}},
			wantStatement:  "s",
			wantProjection: "p",
		},
		{
			name:          "first match wins",
			links:         []Link{{"Minutes", "m"}, {"STATEMENT: PDF", "s1"}, {"Statement: HTML", "s2"}},
			wantStatement: "s1",
		},
		{
			name:  "no match",
			links: []Link{{"Minutes", "m"}, {"Press Conference", "pc"}},
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found := Classify(tt.links)
			if got := found[meeting.Statement]; got != tt.wantStatement {
				t.Errorf("statement = %q, want %q", got, tt.wantStatement)
			}
			if got := found[meeting.Projection]; got != tt.wantProjection {
				t.Errorf("projection = %q, want %q", got, tt.wantProjection)
			}
		})
	}
}

func TestYearIn(t *testing.T) {
	tests := map[string]int{
		"2024 FOMC Meetings": 2024,
		"fomc2019":           2019,
		"42101":              0,
		"1999":               0,
		"120245":             0,
		"":                   0,
	}
	for in, want := range tests {
		if got := yearIn(in); got != want {
			t.Errorf("yearIn(%q) = %d, want %d", in, got, want)
		}
	}
}
