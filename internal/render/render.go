// Package render turns a URL into extracted page content through a cascade
// of rendering strategies: full browser, remote headless service, then raw
// HTTP fetch. Each strategy is guarded by its own circuit breaker and by the
// shared render semaphore, and the whole call is bounded by one hard
// deadline no matter which strategy ends up serving it.
package render

import (
	"context"
	"time"

	"github.com/answerscope/answerscope/internal/apperr"
	"github.com/answerscope/answerscope/internal/limit"
	"github.com/answerscope/answerscope/internal/logger"
)

// HardTimeout bounds a render call across all strategies.
const HardTimeout = 30 * time.Second

// Snapshot is the raw output of one rendering strategy before extraction.
type Snapshot struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string
	LoadTime   time.Duration
}

// Result is a rendered page plus the uniform content extraction.
type Result struct {
	URL                 string
	FinalURL            string
	StatusCode          int
	HTML                string
	Strategy            string
	Title               string
	H1                  string
	ExtractedText       string
	WordCount           int
	StructuredDataCount int
	HasFAQ              bool
	Snippet             string
	LoadTime            time.Duration
}

// Strategy renders one URL. Available lets a strategy opt out (e.g. no
// browser binary, no remote endpoint configured) without counting as a
// failure.
type Strategy interface {
	Name() string
	Available() bool
	Render(ctx context.Context, url, userAgent string) (*Snapshot, error)
}

// Pipeline tries strategies in priority order, first success wins.
type Pipeline struct {
	strategies []Strategy
	breakers   map[string]*limit.Breaker
	sem        *limit.Semaphore
	userAgent  string
	log        *logger.Logger
}

// NewPipeline builds a pipeline over the given strategies. The breaker
// store may be nil (in-memory breakers only).
func NewPipeline(strategies []Strategy, sem *limit.Semaphore, breakers limit.BreakerStore, userAgent string, log *logger.Logger) *Pipeline {
	if sem == nil {
		sem = limit.NewSemaphore(1)
	}
	if log == nil {
		log = logger.NewDefault()
	}
	p := &Pipeline{
		strategies: strategies,
		breakers:   make(map[string]*limit.Breaker, len(strategies)),
		sem:        sem,
		userAgent:  userAgent,
		log:        log.WithComponent("render"),
	}
	for _, st := range strategies {
		p.breakers[st.Name()] = limit.NewBreaker("render."+st.Name(), limit.DefaultBreakerConfig(), breakers)
	}
	return p
}

// Render renders a URL through the cascade and runs content extraction on
// the winning snapshot. A strategy whose breaker is open is skipped, not
// counted as a failure.
func (p *Pipeline) Render(ctx context.Context, url string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, HardTimeout)
	defer cancel()

	var result *Result
	var lastErr error
	err := p.sem.WithPermit(ctx, func() error {
		for _, st := range p.strategies {
			if !st.Available() {
				continue
			}
			br := p.breakers[st.Name()]
			if !br.Allow() {
				p.log.WithURL(url).Debugf("strategy %s skipped, breaker open", st.Name())
				continue
			}

			snap, rerr := st.Render(ctx, url, p.userAgent)
			if rerr != nil {
				br.RecordFailure()
				lastErr = rerr
				p.log.WithURL(url).WithError(rerr).Debugf("strategy %s failed", st.Name())
				if ctx.Err() != nil {
					return apperr.Classify(ctx.Err(), url, "render")
				}
				continue
			}
			br.RecordSuccess()
			snap.URL = url
			result = Extract(snap)
			result.Strategy = st.Name()
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, apperr.New(apperr.PhaseError, url, "render", "no rendering strategy available", nil)
	}
	return result, nil
}
