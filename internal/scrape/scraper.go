// Package scrape discovers published documents on the school site:
// anchor-tag links to PDFs plus the publication metadata (year, month,
// term) encoded in link text and filenames.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const userAgent = "campusfeed/1.0 (+https://github.com/campusfeed/campusfeed)"

// Link is a discovered document link.
type Link struct {
	URL  string // absolute
	Text string // anchor text, whitespace-collapsed
}

// Scraper fetches listing pages and extracts document links.
type Scraper struct {
	client *http.Client
}

// New creates a scraper. A nil client uses a 30s-timeout default.
func New(client *http.Client) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Scraper{client: client}
}

// FetchPDFLinks fetches a listing page and returns its PDF links in
// document order.
func (s *Scraper) FetchPDFLinks(ctx context.Context, pageURL string) ([]Link, error) {
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
		return nil, fmt.Errorf("listing page %s returned status %d", pageURL, resp.StatusCode)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %s: %w", pageURL, err)
	}
	links, err := ParsePDFLinks(resp.Body, base)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}
	return links, nil
}

// ParsePDFLinks walks an HTML document and collects anchors whose href
// points at a PDF, resolving relative URLs against base.
func ParsePDFLinks(r io.Reader, base *url.URL) ([]Link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var links []Link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := attr(n, "href"); ok && isPDFHref(href) {
				if resolved := resolve(base, href); resolved != "" {
					links = append(links, Link{
						URL:  resolved,
						Text: collapseSpace(textOf(n)),
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func isPDFHref(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
