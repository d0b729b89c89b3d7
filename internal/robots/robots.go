// Package robots fetches and evaluates robots.txt for the audited origin,
// with a focus on whether AI answer-engine crawlers are allowed in.
package robots

import (
	"context"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/answerscope/answerscope/internal/apperr"
	"github.com/answerscope/answerscope/internal/fetch"
	"github.com/answerscope/answerscope/internal/limit"
)

// AIBots is the fixed table of AI crawler user agents the audit evaluates.
var AIBots = []string{
	"GPTBot",
	"ChatGPT-User",
	"ClaudeBot",
	"Claude-Web",
	"PerplexityBot",
	"Google-Extended",
	"CCBot",
	"Bingbot",
	"Amazonbot",
	"Applebot-Extended",
	"meta-externalagent",
}

// Facts summarizes robots.txt as it affects answer-engine readiness.
type Facts struct {
	Present     bool            `json:"present"`
	SitemapURLs []string        `json:"sitemap_urls,omitempty"`
	BotAccess   map[string]bool `json:"bot_access"` // user agent -> allowed at "/"
	AllowedBots int             `json:"allowed_bots"`
	CrawlDelay  float64         `json:"crawl_delay,omitempty"`
}

// Analyzer fetches and evaluates robots.txt.
type Analyzer struct {
	client *fetch.Client
}

// NewAnalyzer creates a robots analyzer.
func NewAnalyzer(client *fetch.Client) *Analyzer {
	return &Analyzer{client: client}
}

// Analyze fetches origin/robots.txt and evaluates each AI bot's access to
// the site root. A missing robots.txt (404) means everything is allowed;
// that is a valid, common configuration, not an error.
func (a *Analyzer) Analyze(ctx context.Context, origin string) (*Facts, error) {
	facts := &Facts{BotAccess: make(map[string]bool, len(AIBots))}

	res, err := a.client.GetWithRetry(ctx, strings.TrimSuffix(origin, "/")+"/robots.txt", "")
	if err != nil && apperr.CodeOf(err) != apperr.Fetch4xx {
		return nil, err
	}

	if res.StatusCode != 200 || res.Body == "" {
		// No robots.txt: all bots allowed by default.
		for _, bot := range AIBots {
			facts.BotAccess[bot] = true
		}
		facts.AllowedBots = len(AIBots)
		return facts, nil
	}

	facts.Present = true
	data, err := robotstxt.FromString(res.Body)
	if err != nil {
		// Unparseable robots.txt is treated as permissive, matching how
		// major crawlers behave.
		for _, bot := range AIBots {
			facts.BotAccess[bot] = true
		}
		facts.AllowedBots = len(AIBots)
		return facts, nil
	}

	for _, bot := range AIBots {
		group := data.FindGroup(bot)
		allowed := group.Test("/")
		facts.BotAccess[bot] = allowed
		if allowed {
			facts.AllowedBots++
		}
		if group.CrawlDelay > 0 && facts.CrawlDelay == 0 {
			facts.CrawlDelay = group.CrawlDelay.Seconds()
		}
	}

	facts.SitemapURLs = sitemapDirectives(res.Body)
	return facts, nil
}

// BlockedBots returns the AI bots that robots.txt shuts out entirely.
func (f *Facts) BlockedBots() []string {
	var blocked []string
	for _, bot := range AIBots {
		if allowed, ok := f.BotAccess[bot]; ok && !allowed {
			blocked = append(blocked, bot)
		}
	}
	return blocked
}

func sitemapDirectives(body string) []string {
	var sitemaps []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 8 && strings.EqualFold(line[:8], "sitemap:") {
			if sm := strings.TrimSpace(line[8:]); sm != "" {
				sitemaps = append(sitemaps, sm)
			}
		}
	}
	return sitemaps
}

// ProbeResult records one live request made as an AI bot.
type ProbeResult struct {
	Bot        string `json:"bot"`
	StatusCode int    `json:"status_code"`
	Blocked    bool   `json:"blocked"` // served an explicit denial (401/403/429/503)
	Error      string `json:"error,omitempty"`
}

// Probe hits the home page once per AI bot user agent to detect
// server-level blocking that robots.txt does not reveal (WAF rules, bot
// management). Concurrency is bounded by sem.
func (a *Analyzer) Probe(ctx context.Context, origin string, sem *limit.Semaphore) []ProbeResult {
	results := make([]ProbeResult, len(AIBots))
	var wg sync.WaitGroup

	for i, bot := range AIBots {
		wg.Add(1)
		go func(idx int, bot string) {
			defer wg.Done()
			pr := ProbeResult{Bot: bot}
			err := sem.WithPermit(ctx, func() error {
				ua := bot + "/1.0 (+https://answerscope.dev/probe)"
				res, ferr := a.client.Head(ctx, origin, ua)
				if ferr != nil && res.StatusCode == 0 {
					return ferr
				}
				pr.StatusCode = res.StatusCode
				pr.Blocked = res.StatusCode == 401 || res.StatusCode == 403 ||
					res.StatusCode == 429 || res.StatusCode == 503
				return nil
			})
			if err != nil {
				pr.Error = err.Error()
			}
			results[idx] = pr
		}(i, bot)
	}
	wg.Wait()

	return results
}
