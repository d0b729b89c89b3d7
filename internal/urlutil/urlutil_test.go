package urlutil

import (
	"net/url"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "https://Example.COM/Page", "https://example.com/Page"},
		{"strips fragment", "https://example.com/page#section", "https://example.com/page"},
		{"strips default https port", "https://example.com:443/page", "https://example.com/page"},
		{"strips default http port", "http://example.com:80/page", "http://example.com/page"},
		{"keeps custom port", "https://example.com:8443/page", "https://example.com:8443/page"},
		{"strips tracking params", "https://example.com/page?utm_source=x&utm_medium=y&id=3", "https://example.com/page?id=3"},
		{"strips gclid", "https://example.com/?gclid=abc", "https://example.com/"},
		{"sorts query keys", "https://example.com/p?b=2&a=1", "https://example.com/p?a=1&b=2"},
		{"collapses index.html", "https://example.com/index.html", "https://example.com/"},
		{"collapses trailing slash", "https://example.com/about/", "https://example.com/about"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"cleans dot segments", "https://example.com/a/../b", "https://example.com/b"},
		{"rejects non-http scheme", "ftp://example.com/file", ""},
		{"rejects empty host", "https:///path", ""},
		{"rejects garbage", "::not a url::", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://Example.com/About/?utm_source=x",
		"http://example.com:80/index.html#top",
		"https://example.com/a/b/../c?z=1&a=2",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestSameSite(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"example.com", "www.example.com", true},
		{"blog.example.com", "example.com", true},
		{"example.com", "example.org", false},
		{"example.com:8080", "example.com", true},
		{"Example.COM", "example.com", true},
		{"example.co.uk", "other.co.uk", false},
		{"a.example.co.uk", "example.co.uk", true},
	}
	for _, tt := range tests {
		if got := SameSite(tt.a, tt.b); got != tt.want {
			t.Errorf("SameSite(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPriorityFor(t *testing.T) {
	origin := "https://example.com"
	tests := []struct {
		name   string
		url    string
		parent string
		source string
		want   float64
	}{
		{"home page", "https://example.com/", "", SourcePage, PriorityHome},
		{"seed source", "https://example.com/pricing", "", SourceSeed, PriorityHome},
		{"sitemap source", "https://example.com/blog/post", "", SourceSitemap, PrioritySitemap},
		{"nav source", "https://example.com/about", "https://example.com/", SourceNav, PrioritySitemap},
		{"same section", "https://example.com/docs/install", "https://example.com/docs", SourcePage, PrioritySubPath},
		{"other section", "https://example.com/careers", "https://example.com/docs", SourcePage, PriorityDefault},
		{"no parent", "https://example.com/misc", "", SourcePage, PriorityDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PriorityFor(tt.url, origin, tt.parent, tt.source); got != tt.want {
				t.Errorf("PriorityFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractLinks(t *testing.T) {
	page := `<html><head><base href="https://example.com/"></head><body>
		<nav><a href="/about">About</a><a href="/pricing">Pricing</a></nav>
		<main>
			<a href="/blog/post-1">Post</a>
			<a href="/about">About again</a>
			<a href="#section">Anchor</a>
			<a href="javascript:void(0)">JS</a>
			<a href="mailto:hi@example.com">Mail</a>
			<a href="https://other.org/page">External</a>
		</main>
		<footer><a href="/contact/">Contact</a></footer>
	</body></html>`

	base, _ := url.Parse("https://example.com/")
	links := ExtractLinks(page, base)

	byURL := make(map[string]ExtractedLink)
	for _, l := range links {
		byURL[l.URL] = l
	}

	if len(links) != 5 {
		t.Fatalf("got %d links, want 5: %+v", len(links), links)
	}
	if l, ok := byURL["https://example.com/about"]; !ok || !l.Nav {
		t.Errorf("about link missing or not flagged nav: %+v", l)
	}
	if l, ok := byURL["https://example.com/blog/post-1"]; !ok || l.Nav {
		t.Errorf("blog link missing or wrongly flagged nav: %+v", l)
	}
	if l, ok := byURL["https://example.com/contact"]; !ok || !l.Nav {
		t.Errorf("footer link should be nav and trailing slash collapsed: %+v", l)
	}
	if _, ok := byURL["https://other.org/page"]; !ok {
		t.Error("external links should still be extracted (classification happens later)")
	}
}
