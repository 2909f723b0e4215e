package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Chapter groups the rule PDFs listed under one heading on the rules
// page.
type Chapter struct {
	Name  string
	Links []Link
}

// FetchRuleChapters fetches the rules listing page and returns its
// chapter structure: one entry per h2/h3 heading that has PDF links
// under it.
func (s *Scraper) FetchRuleChapters(ctx context.Context, pageURL string) ([]Chapter, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rules page %s returned status %d", pageURL, resp.StatusCode)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %s: %w", pageURL, err)
	}
	chapters, err := ParseRuleChapters(resp.Body, base)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}
	return chapters, nil
}

// ParseRuleChapters parses the rules page into chapters. Headings (h2,
// h3) open a chapter; the PDF anchors between a heading and the next one
// belong to it. Chapters without any PDF link are dropped. Parsing is
// scoped to the page body container when one exists.
func ParseRuleChapters(r io.Reader, base *url.URL) ([]Chapter, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	root := findDivByClass(doc, "pagebody")
	if root == nil {
		root = doc
	}

	var chapters []Chapter
	var current *Chapter
	seen := map[[2]string]bool{}

	flush := func() {
		if current != nil && len(current.Links) > 0 {
			chapters = append(chapters, *current)
		}
		current = nil
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h1":
				flush()
				return
			case "h2", "h3":
				flush()
				if title := collapseSpace(textOf(n)); title != "" {
					current = &Chapter{Name: title}
					seen = map[[2]string]bool{}
				}
				// Fall through to children: a heading may itself wrap
				// the chapter's first link.
			case "a":
				if current == nil {
					return
				}
				href, ok := attr(n, "href")
				if !ok || !isPDFHref(href) {
					return
				}
				name := collapseSpace(textOf(n))
				resolved := resolve(base, href)
				if name == "" || resolved == "" {
					return
				}
				key := [2]string{name, resolved}
				if seen[key] {
					return
				}
				seen[key] = true
				current.Links = append(current.Links, Link{URL: resolved, Text: name})
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	flush()
	return chapters, nil
}

func findDivByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && n.Data == "div" {
		if cls, ok := attr(n, "class"); ok && hasClass(cls, class) {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findDivByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(attrVal, class string) bool {
	for _, c := range strings.Fields(attrVal) {
		if c == class {
			return true
		}
	}
	return false
}
