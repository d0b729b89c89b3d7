// Package urlutil provides URL canonicalization and link classification
// for the audit crawler.
package urlutil

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Tracking parameters stripped during normalization.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "msclkid": {}, "mc_cid": {}, "mc_eid": {}, "ref": {},
}

var reDefaultPort = regexp.MustCompile(`:(80|443)$`)

var indexPages = []string{"/index.html", "/index.htm", "/index.php", "/default.aspx"}

// Normalize canonicalizes a URL string so that trivially-different spellings
// of the same page map to one frontier row. Returns "" for unusable input.
func Normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return NormalizeURL(u)
}

// NormalizeURL canonicalizes a parsed URL.
func NormalizeURL(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}

	uu := *u
	uu.Fragment = ""
	uu.User = nil
	uu.Scheme = strings.ToLower(uu.Scheme)
	uu.Host = reDefaultPort.ReplaceAllString(strings.ToLower(uu.Host), "")

	uu.Path = path.Clean(uu.Path)
	if uu.Path == "." || uu.Path == "" {
		uu.Path = "/"
	}
	for _, idx := range indexPages {
		if strings.EqualFold(uu.Path, idx) {
			uu.Path = "/"
			break
		}
	}
	if uu.Path != "/" {
		uu.Path = strings.TrimSuffix(uu.Path, "/")
	}

	if uu.RawQuery != "" {
		vals := uu.Query()
		keys := make([]string, 0, len(vals))
		for k := range vals {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := trackingParams[strings.ToLower(k)]; ok {
				vals.Del(k)
			}
		}
		uu.RawQuery = vals.Encode()
	}

	return uu.String()
}

// SameSite reports whether two hosts belong to the same registrable domain
// (eTLD+1), so blog.example.com and www.example.com count as one site.
func SameSite(a, b string) bool {
	ea, err := publicsuffix.EffectiveTLDPlusOne(stripPort(strings.ToLower(a)))
	if err != nil {
		ea = stripPort(strings.ToLower(a))
	}
	eb, err := publicsuffix.EffectiveTLDPlusOne(stripPort(strings.ToLower(b)))
	if err != nil {
		eb = stripPort(strings.ToLower(b))
	}
	return ea != "" && ea == eb
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i != -1 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}

// Origin returns the scheme://host prefix for a URL, or "" if unparseable.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// Link source categories used for frontier priority assignment.
const (
	SourceSeed    = "seed"
	SourceSitemap = "sitemap"
	SourceNav     = "nav"
	SourcePage    = "page"
)

// Priority bands. Lower sorts sooner.
const (
	PriorityHome    = 0.0
	PrioritySitemap = 0.3
	PrioritySubPath = 0.5
	PriorityDefault = 1.0
)

// PriorityFor assigns the frontier priority band for a discovered URL.
// The home page always wins; sitemap and navigation links share a band;
// links under the discovering page's path section get a mild boost.
func PriorityFor(normalized, origin, parent, source string) float64 {
	if normalized == origin || normalized == origin+"/" {
		return PriorityHome
	}
	switch source {
	case SourceSeed:
		return PriorityHome
	case SourceSitemap, SourceNav:
		return PrioritySitemap
	}
	if parent != "" {
		if pu, err := url.Parse(parent); err == nil && pu.Path != "" && pu.Path != "/" {
			if cu, err := url.Parse(normalized); err == nil {
				section := pu.Path
				if i := strings.Index(section[1:], "/"); i != -1 {
					section = section[:i+1]
				}
				if strings.HasPrefix(cu.Path, section) {
					return PrioritySubPath
				}
			}
		}
	}
	return PriorityDefault
}
