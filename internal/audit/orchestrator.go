// Package audit composes the store, render pipeline, robots and sitemap
// analyzers, and the citation connector into the phase sequence. One call to
// RunTick advances one audit by at most one phase body; an external scheduler
// keeps calling until the audit reports completion.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/answerscope/answerscope/internal/apperr"
	"github.com/answerscope/answerscope/internal/citation"
	"github.com/answerscope/answerscope/internal/fetch"
	"github.com/answerscope/answerscope/internal/limit"
	"github.com/answerscope/answerscope/internal/logger"
	"github.com/answerscope/answerscope/internal/phase"
	"github.com/answerscope/answerscope/internal/render"
	"github.com/answerscope/answerscope/internal/robots"
	"github.com/answerscope/answerscope/internal/sitemap"
	"github.com/answerscope/answerscope/internal/store"
)

// Options bound the crawl.
type Options struct {
	MaxDepth         int
	MaxPages         int
	CrawlBatch       int           // URLs leased per crawl tick
	LeaseTTL         time.Duration // visiting entries older than this are reclaimed
	SitemapSeedLimit int
}

// DefaultOptions returns the standard crawl bounds.
func DefaultOptions() Options {
	return Options{
		MaxDepth:         2,
		MaxPages:         25,
		CrawlBatch:       2,
		LeaseTTL:         5 * time.Minute,
		SitemapSeedLimit: 15,
	}
}

// TickResult is what one invocation reports back to the scheduler.
type TickResult struct {
	Phase       string `json:"phase"`
	Completed   bool   `json:"completed"`
	FailureCode string `json:"failure_code,omitempty"`
}

// Orchestrator drives audits through the phase pipeline.
type Orchestrator struct {
	store     *store.Store
	client    *fetch.Client
	pipeline  *render.Pipeline
	robots    *robots.Analyzer
	sitemaps  *sitemap.Discoverer
	connector citation.Connector
	runner    *phase.Runner
	probeSem  *limit.Semaphore
	opts      Options
	log       *logger.Logger

	// seenLinks is a cheap in-process duplicate filter in front of the
	// store's idempotent Seed, so a link-heavy page does not turn into
	// thousands of no-op bucket lookups.
	seenLinks *bloom.BloomFilter
}

// New creates an orchestrator. A nil connector disables the citations phase
// gracefully (scoring then sees absent citation data).
func New(st *store.Store, client *fetch.Client, pipeline *render.Pipeline, connector citation.Connector, opts Options, log *logger.Logger) *Orchestrator {
	if connector == nil {
		connector = citation.NopConnector{}
	}
	if opts.MaxPages <= 0 {
		opts = DefaultOptions()
	}
	if opts.CrawlBatch < 1 {
		opts.CrawlBatch = 1
	}
	return &Orchestrator{
		store:     st,
		client:    client,
		pipeline:  pipeline,
		robots:    robots.NewAnalyzer(client),
		sitemaps:  sitemap.NewDiscoverer(client),
		connector: connector,
		runner:    phase.NewRunner(st, log),
		probeSem:  limit.NewSemaphore(2),
		opts:      opts,
		log:       log.WithComponent("audit"),
		seenLinks: bloom.NewWithEstimates(50_000, 0.01),
	}
}

// Runner exposes the phase runner so configuration can adjust timeouts.
func (o *Orchestrator) Runner() *phase.Runner { return o.runner }

// RunTick advances one audit by at most one phase body. Safe to call
// repeatedly: a finished audit reports completed without doing work, and a
// crawl in progress just processes another batch.
func (o *Orchestrator) RunTick(ctx context.Context, auditID string) (*TickResult, error) {
	a, err := o.store.Audit(auditID)
	if err != nil {
		return nil, err
	}
	if a.Status != store.AuditRunning {
		return &TickResult{Phase: a.Phase, Completed: true, FailureCode: a.FailureCode}, nil
	}

	ph := a.Phase
	log := o.log.WithAudit(auditID).WithPhase(ph)

	// Defensive gate re-check: citations/synth/finalize must never run
	// against a partially crawled frontier. A reclaimed lease can regress
	// the gate after crawl already passed it.
	if ph == phase.Citations || ph == phase.Synth || ph == phase.Finalize {
		passed, err := o.gatePassed(auditID)
		if err != nil {
			return nil, err
		}
		if !passed {
			log.Warn("advancement gate regressed, bouncing back to crawl")
			if _, err := o.store.UpdateAudit(auditID, func(a *store.Audit) error {
				a.Phase = phase.Crawl
				return nil
			}); err != nil {
				return nil, err
			}
			return &TickResult{Phase: phase.Crawl}, nil
		}
	}

	res := o.runner.Run(ctx, auditID, ph, o.phaseBody(ph, a))

	if res.Failed() {
		if o.runner.Tolerable(ph) {
			log.WithError(res.Err).Warn("tolerable phase failed, continuing with degraded data")
			return o.advance(auditID, ph)
		}
		return o.fail(auditID, ph, res)
	}

	switch ph {
	case phase.Crawl:
		passed, err := o.gatePassed(auditID)
		if err != nil {
			return nil, err
		}
		if !passed {
			// Batch continuation: same phase next tick.
			return &TickResult{Phase: phase.Crawl}, nil
		}
		return o.advance(auditID, ph)
	case phase.Finalize:
		return &TickResult{Phase: ph, Completed: true}, nil
	default:
		return o.advance(auditID, ph)
	}
}

func (o *Orchestrator) phaseBody(ph string, a *store.Audit) func(ctx context.Context) error {
	switch ph {
	case phase.Discovery:
		return func(ctx context.Context) error { return o.runDiscovery(ctx, a) }
	case phase.Robots:
		return func(ctx context.Context) error { return o.runRobots(ctx, a) }
	case phase.Sitemap:
		return func(ctx context.Context) error { return o.runSitemap(ctx, a) }
	case phase.Probes:
		return func(ctx context.Context) error { return o.runProbes(ctx, a) }
	case phase.Crawl:
		return func(ctx context.Context) error { return o.runCrawlTick(ctx, a) }
	case phase.Citations:
		return func(ctx context.Context) error { return o.runCitations(ctx, a) }
	case phase.Synth:
		return func(ctx context.Context) error { return o.runSynth(ctx, a) }
	case phase.Finalize:
		return func(ctx context.Context) error { return o.runFinalize(ctx, a) }
	default:
		return func(ctx context.Context) error { return fmt.Errorf("unknown phase %q", ph) }
	}
}

// gatePassed reports whether the crawl is provably complete: the frontier is
// drained, or the page cap is reached.
func (o *Orchestrator) gatePassed(auditID string) (bool, error) {
	counts, err := o.store.Counts(auditID)
	if err != nil {
		return false, err
	}
	if counts.Finished() >= o.opts.MaxPages {
		return true, nil
	}
	return counts.Pending == 0 && counts.Visiting == 0, nil
}

// advance moves the audit to the next phase.
func (o *Orchestrator) advance(auditID, from string) (*TickResult, error) {
	next := phase.Next(from)
	if next == "" {
		return &TickResult{Phase: from, Completed: true}, nil
	}
	if _, err := o.store.UpdateAudit(auditID, func(a *store.Audit) error {
		a.Phase = next
		return nil
	}); err != nil {
		return nil, err
	}
	return &TickResult{Phase: next}, nil
}

// fail marks the audit failed with a user-facing reason.
func (o *Orchestrator) fail(auditID, ph string, res *phase.Result) (*TickResult, error) {
	a, err := o.store.UpdateAudit(auditID, func(a *store.Audit) error {
		a.Status = store.AuditFailed
		a.FailureCode = string(res.Code)
		a.FailureDetail = res.Err.Error()
		a.FailureReason = failureReason(res.Code, a.PagesCrawled)
		a.CompletedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.log.WithAudit(auditID).WithPhase(ph).Errorf("audit failed: %s", a.FailureReason)
	return &TickResult{Phase: ph, Completed: true, FailureCode: string(res.Code)}, nil
}

// failureReason maps a failure code onto the closed set of user-visible
// reasons the dashboard shows.
func failureReason(code apperr.Code, pagesCrawled int) string {
	switch code {
	case apperr.SeedInsufficient:
		return "no crawlable pages found"
	case apperr.FetchConnection, apperr.Fetch4xx, apperr.Fetch5xx:
		return "domain error or empty page"
	case apperr.PhaseTimeout, apperr.FetchTimeout:
		if pagesCrawled == 0 {
			return "timeout, no pages discovered"
		}
		return "timed out before the audit could finish"
	default:
		return "audit failed"
	}
}

// brand derives a human query term from the audited domain
// ("acme-tools.co.uk" -> "acme tools").
func brand(domain string) string {
	label := domain
	if i := strings.Index(label, "."); i > 0 {
		label = label[:i]
	}
	return strings.ReplaceAll(label, "-", " ")
}
