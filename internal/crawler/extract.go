package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// boilerplate is removed before text and title extraction.
const boilerplate = "script, style, nav, footer, header"

// contentSelectors are tried in order; the document itself is the fallback.
var contentSelectors = []string{"main", "article", "div.content"}

// extractLinks resolves every href against base and keeps those under base,
// excluding base itself. Fragments are dropped. Order follows the document.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	prefix := base.String()
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		full := resolved.String()

		if !strings.HasPrefix(full, prefix) || full == prefix {
			return
		}
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}
		links = append(links, full)
	})
	return links
}

// extractContent strips boilerplate from doc and returns the title and the
// main text as trimmed, non-empty lines joined by "\n". doc is modified.
func extractContent(doc *goquery.Document, pageURL string) (title, text string) {
	doc.Find(boilerplate).Remove()

	root := doc.Selection
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			root = found
			break
		}
	}

	var lines []string
	for _, n := range root.Nodes {
		collectText(n, &lines)
	}
	text = strings.Join(lines, "\n")

	title = strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = lastSegment(pageURL)
	}
	return title, text
}

// collectText appends each non-blank text node under n, split on newlines
// and trimmed.
func collectText(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		for _, line := range strings.Split(n.Data, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				*lines = append(*lines, line)
			}
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}

// lastSegment returns the last non-empty path segment of rawURL, or its host.
func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if seg, err := url.PathUnescape(parts[i]); err == nil && seg != "" {
			return seg
		}
	}
	return u.Host
}
