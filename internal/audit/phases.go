package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/answerscope/answerscope/internal/analyze"
	"github.com/answerscope/answerscope/internal/apperr"
	"github.com/answerscope/answerscope/internal/citation"
	"github.com/answerscope/answerscope/internal/phase"
	"github.com/answerscope/answerscope/internal/score"
	"github.com/answerscope/answerscope/internal/store"
	"github.com/answerscope/answerscope/internal/urlutil"
)

// runDiscovery verifies the origin responds, follows any redirect to the
// canonical origin (https/www collapse), and seeds the home page.
func (o *Orchestrator) runDiscovery(ctx context.Context, a *store.Audit) error {
	res, err := o.client.GetWithRetry(ctx, a.Origin, "")
	if err != nil {
		return err
	}
	if res.Body == "" && res.StatusCode >= 400 {
		return apperr.New(apperr.SeedInsufficient, a.Origin, "discovery",
			fmt.Sprintf("home page returned %d with no content", res.StatusCode), nil)
	}

	origin := a.Origin
	if res.FinalURL != "" {
		if canonical := urlutil.Origin(res.FinalURL); canonical != "" {
			origin = canonical
		}
	}

	home := urlutil.Normalize(origin)
	if home == "" {
		return apperr.New(apperr.SeedInsufficient, a.Origin, "discovery", "origin does not normalize to a crawlable URL", nil)
	}

	inserted, err := o.store.Seed(a.ID, []store.SeedEntry{{
		URL:      home,
		Depth:    0,
		Priority: urlutil.PriorityHome,
		Source:   urlutil.SourceSeed,
	}})
	if err != nil {
		return err
	}

	counts, err := o.store.Counts(a.ID)
	if err != nil {
		return err
	}
	if counts.Pending+counts.Visiting+counts.Finished() < 1 {
		return apperr.New(apperr.SeedInsufficient, a.Origin, "discovery", "no URLs could be seeded", nil)
	}

	_, err = o.store.UpdateAudit(a.ID, func(a *store.Audit) error {
		a.Origin = origin
		return nil
	})
	if err != nil {
		return err
	}
	a.Origin = origin

	o.log.WithAudit(a.ID).Debugf("discovery seeded %d URL(s), origin %s", inserted, origin)
	return nil
}

// runRobots evaluates robots.txt for every AI bot and records a critical
// issue when one is shut out entirely.
func (o *Orchestrator) runRobots(ctx context.Context, a *store.Audit) error {
	facts, err := o.robots.Analyze(ctx, a.Origin)
	if err != nil {
		return err
	}

	if _, err := o.store.UpdateAudit(a.ID, func(a *store.Audit) error {
		a.RobotsPresent = facts.Present
		a.BotsAllowed = facts.AllowedBots
		a.BotsChecked = len(facts.BotAccess)
		a.SitemapURLs = facts.SitemapURLs
		return nil
	}); err != nil {
		return err
	}
	a.SitemapURLs = facts.SitemapURLs

	if blocked := facts.BlockedBots(); len(blocked) > 0 {
		if err := o.store.AppendIssue(&store.Issue{
			AuditID:  a.ID,
			Type:     "robots_blocks_ai",
			Severity: store.SeverityCritical,
			Message:  fmt.Sprintf("robots.txt blocks %d AI crawler(s)", len(blocked)),
			Details:  strings.Join(blocked, ", "),
		}); err != nil {
			return err
		}
	}
	return nil
}

// runSitemap discovers sitemaps and seeds their URLs into the frontier at
// the sitemap priority band.
func (o *Orchestrator) runSitemap(ctx context.Context, a *store.Audit) error {
	result, err := o.sitemaps.Discover(ctx, a.Origin, a.SitemapURLs)
	if err != nil {
		return err
	}

	if _, err := o.store.UpdateAudit(a.ID, func(a *store.Audit) error {
		a.SitemapFound = result.Found
		return nil
	}); err != nil {
		return err
	}

	if !result.Found {
		if err := o.store.AppendIssue(&store.Issue{
			AuditID:  a.ID,
			Type:     "sitemap_missing",
			Severity: store.SeverityWarning,
			Message:  "no sitemap.xml found",
			Details:  "answer engines rely on sitemaps to find content beyond the home page",
		}); err != nil {
			return err
		}
		return nil
	}

	var seeds []store.SeedEntry
	for _, entry := range result.Entries {
		if len(seeds) >= o.opts.SitemapSeedLimit {
			break
		}
		normalized := urlutil.Normalize(entry.Loc)
		if normalized == "" || !sameOrigin(normalized, a.Origin) {
			continue
		}
		seeds = append(seeds, store.SeedEntry{
			URL:      normalized,
			Depth:    0,
			Priority: urlutil.PriorityFor(normalized, a.Origin, "", urlutil.SourceSitemap),
			Source:   urlutil.SourceSitemap,
		})
	}
	inserted, err := o.store.Seed(a.ID, seeds)
	if err != nil {
		return err
	}
	o.log.WithAudit(a.ID).Debugf("sitemap seeded %d of %d URLs", inserted, len(result.Entries))
	return nil
}

// runProbes hits the home page as each AI bot to catch server-level blocks
// robots.txt does not admit to.
func (o *Orchestrator) runProbes(ctx context.Context, a *store.Audit) error {
	facts, err := o.robots.Analyze(ctx, a.Origin)
	if err != nil {
		facts = nil // probe anyway; without facts every block is reportable
	}

	results := o.robots.Probe(ctx, a.Origin, o.probeSem)
	for _, pr := range results {
		if !pr.Blocked {
			continue
		}
		if facts != nil && !facts.BotAccess[pr.Bot] {
			// robots.txt already disallows this bot; the robots phase
			// reported that.
			continue
		}
		if err := o.store.AppendIssue(&store.Issue{
			AuditID:  a.ID,
			Type:     "bot_probe_blocked",
			Severity: store.SeverityWarning,
			Message:  fmt.Sprintf("%s is served %d despite being allowed by robots.txt", pr.Bot, pr.StatusCode),
			Details:  "likely WAF or bot-management rules blocking AI crawlers at the server level",
		}); err != nil {
			return err
		}
	}
	return nil
}

// runCitations queries the connector and persists the citation summary.
func (o *Orchestrator) runCitations(ctx context.Context, a *store.Audit) error {
	pages, err := o.store.Pages(a.ID)
	if err != nil {
		return err
	}

	queries := o.connector.Queries(brand(a.Domain), pages)
	if len(queries) == 0 {
		o.log.WithAudit(a.ID).Debug("no citation queries, connector inactive")
		return nil
	}

	results := o.connector.Run(ctx, queries)
	total, cited, paths := citation.Summarize(results)

	_, err = o.store.UpdateAudit(a.ID, func(a *store.Audit) error {
		a.CitationTotal = total
		a.CitationCited = cited
		a.CitationPaths = paths
		return nil
	})
	return err
}

// runSynth computes per-page analyses for every successfully crawled page.
func (o *Orchestrator) runSynth(ctx context.Context, a *store.Audit) error {
	pages, err := o.store.Pages(a.ID)
	if err != nil {
		return err
	}

	analyzer := analyze.NewAnalyzer()
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.Error != "" || p.StatusCode >= 400 {
			continue
		}
		if err := o.store.PutAnalysis(analyzer.Page(a.ID, p)); err != nil {
			return err
		}
	}
	return nil
}

// runFinalize scores the audit and marks it completed.
func (o *Orchestrator) runFinalize(ctx context.Context, a *store.Audit) error {
	pages, err := o.store.Pages(a.ID)
	if err != nil {
		return err
	}
	analyses, err := o.store.Analyses(a.ID)
	if err != nil {
		return err
	}
	issues, err := o.store.Issues(a.ID)
	if err != nil {
		return err
	}

	current, err := o.store.Audit(a.ID)
	if err != nil {
		return err
	}

	in := score.Input{
		Pages:    pages,
		Analyses: analyses,
		Issues:   issues,
		Crawl: score.CrawlFacts{
			RobotsPresent: current.RobotsPresent,
			BotsAllowed:   current.BotsAllowed,
			BotsChecked:   current.BotsChecked,
			SitemapFound:  current.SitemapFound,
		},
	}
	if current.CitationTotal > 0 {
		in.Citations = &score.CitationFacts{Total: current.CitationTotal, Cited: current.CitationCited}
	}
	scores := score.Compute(in)

	_, err = o.store.UpdateAudit(a.ID, func(a *store.Audit) error {
		a.Scores = &scores
		a.Status = store.AuditCompleted
		a.Phase = phase.Finalize
		a.CompletedAt = time.Now().UTC()
		return nil
	})
	return err
}

// sameOrigin reports whether a normalized URL belongs to the audited site.
func sameOrigin(normalized, origin string) bool {
	return urlutil.SameSite(hostOf(normalized), hostOf(origin))
}

func hostOf(raw string) string {
	if i := strings.Index(raw, "://"); i != -1 {
		raw = raw[i+3:]
	}
	if i := strings.IndexAny(raw, "/?#"); i != -1 {
		raw = raw[:i]
	}
	return raw
}
