package scraper

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is a parsed HTML page and the URL it was fetched from
type Page struct {
	URL  string
	base *url.URL
	root *html.Node
}

// ParsePage parses UTF-8 HTML read from r
func ParsePage(pageURL string, r io.Reader) (*Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL %q: %w", pageURL, err)
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML from %s: %w", pageURL, err)
	}
	return &Page{URL: pageURL, base: base, root: root}, nil
}

// Resolve turns an href into an absolute http(s) URL. Empty, fragment-only,
// javascript: and mailto: hrefs yield "".
func (p *Page) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := p.base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

// Link is an anchor's visible label and absolute target
type Link struct {
	Label string
	URL   string
}

// nodeText returns the concatenated text under n
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

var headingAtoms = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// lastHeading returns the last heading element inside n (n included), or nil
func lastHeading(n *html.Node) *html.Node {
	if n.Type != html.ElementNode {
		return nil
	}
	for c := n.LastChild; c != nil; c = c.PrevSibling {
		if h := lastHeading(c); h != nil {
			return h
		}
	}
	if headingAtoms[n.DataAtom] {
		return n
	}
	return nil
}

// precedingHeading finds the nearest heading before n in document order
func precedingHeading(n *html.Node) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		for s := cur.PrevSibling; s != nil; s = s.PrevSibling {
			if h := lastHeading(s); h != nil {
				return h
			}
		}
	}
	return nil
}

var emphasisAtoms = map[atom.Atom]bool{atom.Strong: true, atom.B: true, atom.Em: true}

// precedingEmphasis returns the text of the closest strong/b/em element before n,
// looking at n's siblings and then its parent's siblings
func precedingEmphasis(n *html.Node) string {
	cur := n
	for depth := 0; depth < 2 && cur != nil; depth++ {
		for s := cur.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode && emphasisAtoms[s.DataAtom] {
				return nodeText(s)
			}
		}
		cur = cur.Parent
	}
	return ""
}
