package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/fomc-docs/internal/meeting"
)

// Extractor turns parsed pages into meetings and links
type Extractor interface {
	// ExtractMeetings returns every dated meeting row on a calendar page
	ExtractMeetings(page *Page) []meeting.Meeting

	// ExtractLinks returns the links relevant to m, in document order. When the page
	// is a calendar containing m's row, only that row is considered.
	ExtractLinks(page *Page, m meeting.Meeting) []Link
}

// GoqueryExtractor implements Extractor with goquery selectors
type GoqueryExtractor struct{}

// NewExtractor returns the default Extractor
func NewExtractor() *GoqueryExtractor {
	return &GoqueryExtractor{}
}

// calendarRow is one dated row in either calendar layout
type calendarRow struct {
	sel      *goquery.Selection
	dateText string
}

func (e *GoqueryExtractor) rows(doc *goquery.Document) []calendarRow {
	var rows []calendarRow

	// historical table layout
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		th := row.ChildrenFiltered("th").First()
		td := row.ChildrenFiltered("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		rows = append(rows, calendarRow{sel: row, dateText: meeting.NormalizeSpace(th.Text())})
	})

	// current panel layout
	doc.Find(".fomc-meeting").Each(func(_ int, row *goquery.Selection) {
		month := meeting.NormalizeSpace(row.Find(".fomc-meeting__month").First().Text())
		day := meeting.NormalizeSpace(row.Find(".fomc-meeting__date").First().Text())
		if month == "" || day == "" {
			return
		}
		rows = append(rows, calendarRow{sel: row, dateText: month + " " + day})
	})

	return rows
}

// rowDate parses a row's meeting date using the year of its enclosing section
func (e *GoqueryExtractor) rowDate(row calendarRow) (time.Time, bool) {
	year := findYear(row.sel)
	if year == 0 {
		return time.Time{}, false
	}
	date, err := meeting.ParseMeetingDate(row.dateText, year)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// ExtractMeetings implements Extractor
func (e *GoqueryExtractor) ExtractMeetings(page *Page) []meeting.Meeting {
	doc := goquery.NewDocumentFromNode(page.root)

	var meetings []meeting.Meeting
	for _, row := range e.rows(doc) {
		date, ok := e.rowDate(row)
		if !ok {
			continue
		}
		label := fmt.Sprintf("%s %d", date.Month(), date.Year())
		source := detailURL(page, row.sel)
		meetings = append(meetings, meeting.New(date, label, source))
	}
	return meetings
}

// ExtractLinks implements Extractor
func (e *GoqueryExtractor) ExtractLinks(page *Page, m meeting.Meeting) []Link {
	doc := goquery.NewDocumentFromNode(page.root)

	scope := doc.Selection
	for _, row := range e.rows(doc) {
		if date, ok := e.rowDate(row); ok && date.Equal(m.Date) {
			scope = row.sel
			break
		}
	}

	var links []Link
	scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		target := page.Resolve(href)
		if target == "" {
			return
		}
		links = append(links, Link{Label: linkLabel(a), URL: target})
	})
	return links
}

var formatWords = map[string]bool{"pdf": true, "html": true, "htm": true}

// linkLabel returns an anchor's text, prefixed by its emphasized caption when the
// text only names a format
func linkLabel(a *goquery.Selection) string {
	text := meeting.NormalizeSpace(a.Text())
	if !formatWords[strings.ToLower(strings.Trim(text, "()[] "))] && text != "" {
		return text
	}
	caption := meeting.NormalizeSpace(precedingEmphasis(a.Nodes[0]))
	if caption == "" {
		return text
	}
	return meeting.NormalizeSpace(caption + " " + text)
}

// detailURL picks a row link pointing at a meeting page, falling back to the page itself
func detailURL(page *Page, row *goquery.Selection) string {
	detail := page.URL
	row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		label := strings.ToLower(meeting.NormalizeSpace(a.Text()))
		if !strings.Contains(label, "meeting") && !strings.Contains(label, "details") {
			return true
		}
		href, _ := a.Attr("href")
		if target := page.Resolve(href); target != "" {
			detail = target
			return false
		}
		return true
	})
	return detail
}

var yearPattern = regexp.MustCompile(`(?:^|\D)(20\d{2})(?:\D|$)`)

func yearIn(s string) int {
	m := yearPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	return y
}

var yearAttrs = []string{"data-year", "id", "aria-labelledby"}

// findYear resolves a row's year from its nearest annotated ancestor, the
// ancestor's heading, or the closest heading before the row
func findYear(row *goquery.Selection) int {
	for n := row.Parent(); n.Length() > 0; n = n.Parent() {
		for _, attr := range yearAttrs {
			if v, ok := n.Attr(attr); ok {
				if y := yearIn(v); y != 0 {
					return y
				}
			}
		}
		heading := n.ChildrenFiltered("h1, h2, h3, h4, h5, h6, caption, .panel-heading, thead").First()
		if heading.Length() > 0 {
			if y := yearIn(heading.Text()); y != 0 {
				return y
			}
		}
	}
	if h := precedingHeading(row.Nodes[0]); h != nil {
		return yearIn(nodeText(h))
	}
	return 0
}
