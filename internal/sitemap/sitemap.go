// Package sitemap discovers URLs from sitemap.xml files, including sitemap
// indexes, for frontier seeding.
package sitemap

import (
	"context"
	"encoding/xml"
	"strings"

	"github.com/answerscope/answerscope/internal/fetch"
)

// Candidate sitemap locations probed when robots.txt declares none.
var candidatePaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/wp-sitemap.xml",
	"/sitemap/sitemap.xml",
}

const (
	maxIndexDepth = 3
	maxURLs       = 500
)

// Entry is one URL from a sitemap.
type Entry struct {
	Loc      string  `xml:"loc"`
	LastMod  string  `xml:"lastmod"`
	Priority float64 `xml:"priority"`
}

type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []Entry  `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Result is the outcome of sitemap discovery.
type Result struct {
	Found    bool
	Sitemaps []string // sitemap documents that parsed successfully
	Entries  []Entry
}

// Discoverer finds and parses sitemaps.
type Discoverer struct {
	client *fetch.Client
}

// NewDiscoverer creates a sitemap discoverer.
func NewDiscoverer(client *fetch.Client) *Discoverer {
	return &Discoverer{client: client}
}

// Discover parses the sitemaps declared in robots.txt, falling back to the
// common candidate paths. Recurses through sitemap indexes up to a bounded
// depth and caps total URLs collected.
func (d *Discoverer) Discover(ctx context.Context, origin string, declared []string) (*Result, error) {
	res := &Result{}
	seen := make(map[string]bool)

	sources := declared
	if len(sources) == 0 {
		base := strings.TrimSuffix(origin, "/")
		for _, p := range candidatePaths {
			sources = append(sources, base+p)
		}
	}

	for _, src := range sources {
		if len(res.Entries) >= maxURLs {
			break
		}
		entries, ok := d.parse(ctx, src, 0, seen, maxURLs-len(res.Entries))
		if ok {
			res.Found = true
			res.Sitemaps = append(res.Sitemaps, src)
			res.Entries = append(res.Entries, entries...)
			// When probing candidates, the first hit is enough; declared
			// sitemaps are all honored.
			if len(declared) == 0 {
				break
			}
		}
	}
	return res, nil
}

func (d *Discoverer) parse(ctx context.Context, sitemapURL string, depth int, seen map[string]bool, budget int) ([]Entry, bool) {
	if depth > maxIndexDepth || budget <= 0 || seen[sitemapURL] {
		return nil, false
	}
	seen[sitemapURL] = true

	res, err := d.client.Get(ctx, sitemapURL, "")
	if err != nil || res.StatusCode != 200 || res.Body == "" {
		return nil, false
	}

	// Index first: a urlset never contains <sitemap> children.
	var index sitemapIndex
	if err := xml.Unmarshal([]byte(res.Body), &index); err == nil && len(index.Sitemaps) > 0 {
		var all []Entry
		for _, child := range index.Sitemaps {
			if len(all) >= budget {
				break
			}
			entries, ok := d.parse(ctx, strings.TrimSpace(child.Loc), depth+1, seen, budget-len(all))
			if ok {
				all = append(all, entries...)
			}
		}
		return all, true
	}

	var set urlset
	if err := xml.Unmarshal([]byte(res.Body), &set); err == nil && len(set.URLs) > 0 {
		entries := set.URLs
		if len(entries) > budget {
			entries = entries[:budget]
		}
		for i := range entries {
			entries[i].Loc = strings.TrimSpace(entries[i].Loc)
		}
		return entries, true
	}

	return nil, false
}
