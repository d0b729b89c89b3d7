package urlutil

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ExtractedLink is a candidate link pulled from page markup.
type ExtractedLink struct {
	URL string
	Nav bool // found inside a nav/header/footer element
}

var skipPrefixes = []string{"#", "javascript:", "mailto:", "tel:", "data:"}

// ExtractLinks pulls candidate links from HTML, resolved against base and
// normalized. Duplicate targets collapse to one entry; a link seen both in
// navigation and body keeps the nav flag.
func ExtractLinks(htmlContent string, base *url.URL) []ExtractedLink {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}

	seen := make(map[string]int)
	links := make([]ExtractedLink, 0, 64)

	var walk func(n *html.Node, inNav bool)
	walk = func(n *html.Node, inNav bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "nav", "header", "footer":
				inNav = true
			case "a", "area":
				if href := attr(n, "href"); href != "" {
					if resolved := resolveLink(href, base); resolved != "" {
						if i, ok := seen[resolved]; ok {
							if inNav {
								links[i].Nav = true
							}
						} else {
							seen[resolved] = len(links)
							links = append(links, ExtractedLink{URL: resolved, Nav: inNav})
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inNav)
		}
	}
	walk(doc, false)

	return links
}

func resolveLink(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	for _, p := range skipPrefixes {
		if strings.HasPrefix(href, p) {
			return ""
		}
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := parsed
	if base != nil {
		resolved = base.ResolveReference(parsed)
	}
	return NormalizeURL(resolved)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
