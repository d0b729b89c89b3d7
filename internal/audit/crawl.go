package audit

import (
	"context"
	"net/url"

	"github.com/answerscope/answerscope/internal/store"
	"github.com/answerscope/answerscope/internal/urlutil"
)

// runCrawlTick processes one small batch of frontier entries: reclaim stale
// leases, lease, render, persist, discover links. The advancement gate, not
// this function, decides when the crawl phase is over.
func (o *Orchestrator) runCrawlTick(ctx context.Context, a *store.Audit) error {
	log := o.log.WithAudit(a.ID)

	reclaimed, err := o.store.ReclaimStale(a.ID, o.opts.LeaseTTL)
	if err != nil {
		return err
	}
	if len(reclaimed) > 0 {
		log.Warnf("reclaimed %d stale lease(s)", len(reclaimed))
	}

	counts, err := o.store.Counts(a.ID)
	if err != nil {
		return err
	}
	if counts.Finished() >= o.opts.MaxPages {
		// Page cap reached; leave remaining entries pending and let the
		// gate advance the audit.
		return nil
	}

	batch := o.opts.CrawlBatch
	if remaining := o.opts.MaxPages - counts.Finished(); remaining < batch {
		batch = remaining
	}
	leased, err := o.store.LeaseBatch(a.ID, batch)
	if err != nil {
		return err
	}

	for _, entry := range leased {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.crawlOne(ctx, a, entry)
	}
	return nil
}

// crawlOne renders one leased URL and records the outcome. Render failures
// become failed page records, never phase errors: one dead URL must not
// abort the audit.
func (o *Orchestrator) crawlOne(ctx context.Context, a *store.Audit, entry *store.FrontierEntry) {
	log := o.log.WithAudit(a.ID).WithURL(entry.URL)

	res, err := o.pipeline.Render(ctx, entry.URL)
	if err != nil {
		log.WithError(err).Warn("render failed")
		page := &store.PageRecord{
			AuditID: a.ID,
			URL:     entry.URL,
			Error:   err.Error(),
			Depth:   entry.Depth,
		}
		if err := o.store.UpsertPage(page); err != nil {
			log.WithError(err).Error("failed to persist failed page")
		}
		o.finishEntry(a.ID, entry.URL, store.FrontierSkipped, false)
		return
	}

	page := &store.PageRecord{
		AuditID:             a.ID,
		URL:                 entry.URL,
		StatusCode:          res.StatusCode,
		Title:               res.Title,
		H1:                  res.H1,
		StructuredDataCount: res.StructuredDataCount,
		HasFAQ:              res.HasFAQ,
		WordCount:           res.WordCount,
		HTML:                res.HTML,
		ExtractedText:       res.ExtractedText,
		Snippet:             res.Snippet,
		Strategy:            res.Strategy,
		LoadTime:            res.LoadTime,
		Depth:               entry.Depth,
	}
	if err := o.store.UpsertPage(page); err != nil {
		log.WithError(err).Error("failed to persist page")
		o.finishEntry(a.ID, entry.URL, store.FrontierSkipped, false)
		return
	}

	o.recordPageIssues(a.ID, page)

	if entry.Depth < o.opts.MaxDepth && res.StatusCode < 400 {
		o.seedLinks(a, entry, res.FinalURL, res.HTML)
	}

	o.finishEntry(a.ID, entry.URL, store.FrontierDone, true)
	log.Debugf("crawled (%s, %d words)", res.Strategy, res.WordCount)
}

// finishEntry completes the frontier entry and bumps the audit counters.
func (o *Orchestrator) finishEntry(auditID, url string, outcome store.FrontierStatus, ok bool) {
	applied, err := o.store.Complete(auditID, url, outcome)
	if err != nil {
		o.log.WithAudit(auditID).WithURL(url).WithError(err).Error("failed to complete frontier entry")
		return
	}
	if !applied {
		o.log.WithAudit(auditID).WithURL(url).Warn("entry no longer leased, skipping completion")
		return
	}
	if _, err := o.store.UpdateAudit(auditID, func(a *store.Audit) error {
		if ok {
			a.PagesCrawled++
		} else {
			a.PagesFailed++
		}
		return nil
	}); err != nil {
		o.log.WithAudit(auditID).WithError(err).Error("failed to update page counters")
	}
}

// seedLinks extracts links from the rendered HTML and feeds same-site ones
// back into the frontier at depth+1.
func (o *Orchestrator) seedLinks(a *store.Audit, entry *store.FrontierEntry, finalURL, html string) {
	baseRaw := finalURL
	if baseRaw == "" {
		baseRaw = entry.URL
	}
	base, err := url.Parse(baseRaw)
	if err != nil {
		return
	}

	var seeds []store.SeedEntry
	for _, link := range urlutil.ExtractLinks(html, base) {
		normalized := urlutil.Normalize(link.URL)
		if normalized == "" || normalized == entry.URL {
			continue
		}
		if !sameOrigin(normalized, a.Origin) {
			continue
		}
		if o.seenLinks.TestAndAddString(a.ID + "|" + normalized) {
			continue
		}
		source := urlutil.SourcePage
		if link.Nav {
			source = urlutil.SourceNav
		}
		seeds = append(seeds, store.SeedEntry{
			URL:       normalized,
			Depth:     entry.Depth + 1,
			Priority:  urlutil.PriorityFor(normalized, a.Origin, entry.URL, source),
			ParentURL: entry.URL,
			Source:    source,
		})
	}
	if len(seeds) == 0 {
		return
	}

	inserted, err := o.store.Seed(a.ID, seeds)
	if err != nil {
		o.log.WithAudit(a.ID).WithError(err).Error("failed to seed discovered links")
		return
	}
	if inserted > 0 {
		o.log.WithAudit(a.ID).Debugf("discovered %d new URL(s) from %s", inserted, entry.URL)
	}
}

// Thin-content threshold for page-level findings.
const thinContentWords = 150

// recordPageIssues writes the per-page findings the scoring engine and the
// fix-first list consume.
func (o *Orchestrator) recordPageIssues(auditID string, page *store.PageRecord) {
	var issues []*store.Issue

	if page.StatusCode >= 400 {
		issues = append(issues, &store.Issue{
			Type:     "page_error",
			Severity: store.SeverityWarning,
			Message:  "page returned an error status",
		})
	} else {
		if page.Title == "" {
			issues = append(issues, &store.Issue{
				Type:     "missing_title",
				Severity: store.SeverityWarning,
				Message:  "page has no <title>",
			})
		}
		if page.H1 == "" {
			issues = append(issues, &store.Issue{
				Type:     "missing_h1",
				Severity: store.SeverityWarning,
				Message:  "page has no H1 heading",
			})
		}
		if page.WordCount < thinContentWords {
			issues = append(issues, &store.Issue{
				Type:     "thin_content",
				Severity: store.SeverityInfo,
				Message:  "page has very little extractable text",
			})
		}
	}

	for _, issue := range issues {
		issue.AuditID = auditID
		issue.PageURL = page.URL
		if err := o.store.AppendIssue(issue); err != nil {
			o.log.WithAudit(auditID).WithError(err).Error("failed to record page issue")
		}
	}
}
