// Package phase runs the named stages of an audit under per-phase timeouts,
// recording attempts, heartbeats, and failure detail on the audit row. One
// tick runs at most one phase body; the orchestrator decides what that body
// does and whether the audit advances.
package phase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/answerscope/answerscope/internal/apperr"
	"github.com/answerscope/answerscope/internal/logger"
	"github.com/answerscope/answerscope/internal/store"
)

// Phase names, in pipeline order.
const (
	Discovery = "discovery"
	Robots    = "robots"
	Sitemap   = "sitemap"
	Probes    = "probes"
	Crawl     = "crawl"
	Citations = "citations"
	Synth     = "synth"
	Finalize  = "finalize"
)

// Order is the phase sequence.
var Order = []string{Discovery, Robots, Sitemap, Probes, Crawl, Citations, Synth, Finalize}

// Spec describes how one phase runs.
type Spec struct {
	Name      string
	Timeout   time.Duration
	Tolerable bool // failure degrades data instead of failing the audit
}

// Specs returns the default phase table. Crawl's timeout bounds one batch
// tick, not the whole crawl; the phase is re-entered until the gate passes.
func Specs() map[string]Spec {
	return map[string]Spec{
		Discovery: {Name: Discovery, Timeout: 30 * time.Second},
		Robots:    {Name: Robots, Timeout: 30 * time.Second},
		Sitemap:   {Name: Sitemap, Timeout: 45 * time.Second, Tolerable: true},
		Probes:    {Name: Probes, Timeout: 60 * time.Second, Tolerable: true},
		Crawl:     {Name: Crawl, Timeout: 90 * time.Second},
		Citations: {Name: Citations, Timeout: 2 * time.Minute, Tolerable: true},
		Synth:     {Name: Synth, Timeout: 60 * time.Second},
		Finalize:  {Name: Finalize, Timeout: 30 * time.Second},
	}
}

// Next returns the phase after ph, or "" when ph is the last one.
func Next(ph string) string {
	for i, name := range Order {
		if name == ph && i+1 < len(Order) {
			return Order[i+1]
		}
	}
	return ""
}

// Result is the outcome of running one phase body.
type Result struct {
	Phase    string
	Attempt  int
	Duration time.Duration
	Err      error
	Code     apperr.Code // set when Err != nil
}

// Failed reports whether the phase body returned an error.
func (r *Result) Failed() bool { return r.Err != nil }

// Runner executes phase bodies against the audit row.
type Runner struct {
	store             *store.Store
	specs             map[string]Spec
	heartbeatInterval time.Duration
	log               *logger.Logger
}

// NewRunner creates a phase runner.
func NewRunner(st *store.Store, log *logger.Logger) *Runner {
	return &Runner{
		store:             st,
		specs:             Specs(),
		heartbeatInterval: 10 * time.Second,
		log:               log.WithComponent("phase"),
	}
}

// Run executes fn as the named phase for the audit: increments the attempt
// counter, stamps the phase start and heartbeat, runs fn under the phase
// deadline with a background heartbeat, and classifies any failure. Panics
// in fn are captured as phase errors, never propagated.
func (r *Runner) Run(ctx context.Context, auditID, name string, fn func(ctx context.Context) error) *Result {
	spec, ok := r.specs[name]
	if !ok {
		return &Result{Phase: name, Err: fmt.Errorf("unknown phase %q", name), Code: apperr.PhaseError}
	}

	res := &Result{Phase: name}
	start := time.Now()

	a, err := r.store.UpdateAudit(auditID, func(a *store.Audit) error {
		a.Attempts[name]++
		a.Phase = name
		a.PhaseStartedAt = start.UTC()
		a.HeartbeatAt = start.UTC()
		return nil
	})
	if err != nil {
		res.Err = err
		res.Code = apperr.PhaseError
		return res
	}
	res.Attempt = a.Attempts[name]

	log := r.log.WithAudit(auditID).WithPhase(name)
	log.Debugf("phase start (attempt %d)", res.Attempt)

	phaseCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	stopHeartbeat := r.startHeartbeat(phaseCtx, auditID)
	res.Err = r.runBody(phaseCtx, fn)
	stopHeartbeat()

	res.Duration = time.Since(start)

	if res.Err != nil {
		res.Code = classify(phaseCtx, res.Err)
		r.recordFailure(auditID, res)
		log.WithError(res.Err).Errorf("phase failed after %s", res.Duration.Round(time.Millisecond))
		return res
	}

	r.log.PhaseEvent(auditID, name, res.Attempt, res.Duration, "phase complete")
	return res
}

// Tolerable reports whether a failure in the named phase allows the audit to
// continue with degraded data.
func (r *Runner) Tolerable(name string) bool {
	return r.specs[name].Tolerable
}

// Timeout returns the configured timeout for the named phase.
func (r *Runner) Timeout(name string) time.Duration {
	return r.specs[name].Timeout
}

// SetTimeout overrides one phase's timeout; used by configuration.
func (r *Runner) SetTimeout(name string, d time.Duration) {
	if spec, ok := r.specs[name]; ok && d > 0 {
		spec.Timeout = d
		r.specs[name] = spec
	}
}

// runBody invokes fn, converting panics into errors so one bad page or
// parser bug cannot take the scheduler down.
func (r *Runner) runBody(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("phase panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// startHeartbeat refreshes the audit heartbeat until stopped.
func (r *Runner) startHeartbeat(ctx context.Context, auditID string) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(r.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.store.Heartbeat(auditID); err != nil {
					r.log.WithError(err).Warn("heartbeat write failed")
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func (r *Runner) recordFailure(auditID string, res *Result) {
	_, err := r.store.UpdateAudit(auditID, func(a *store.Audit) error {
		a.FailureCode = string(res.Code)
		a.FailureDetail = res.Err.Error()
		return nil
	})
	if err != nil {
		r.log.WithError(err).Warn("failed to record phase failure")
	}
}

// classify separates the phase deadline expiring from the body failing.
func classify(ctx context.Context, err error) apperr.Code {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.PhaseTimeout
	}
	return apperr.CodeOf(err)
}
