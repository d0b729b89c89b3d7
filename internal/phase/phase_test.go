package phase

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/answerscope/answerscope/internal/apperr"
	"github.com/answerscope/answerscope/internal/logger"
	"github.com/answerscope/answerscope/internal/store"
)

func testRunner(t *testing.T) (*Runner, *store.Store, string) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	a, err := st.CreateAudit("example.com", "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	return NewRunner(st, logger.Nop()), st, a.ID
}

func TestRunSuccess(t *testing.T) {
	r, st, auditID := testRunner(t)

	res := r.Run(context.Background(), auditID, Robots, func(ctx context.Context) error {
		return nil
	})

	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	if res.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", res.Attempt)
	}

	a, err := st.Audit(auditID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Phase != Robots {
		t.Errorf("Phase = %s, want robots", a.Phase)
	}
	if a.Attempts[Robots] != 1 {
		t.Errorf("Attempts = %v", a.Attempts)
	}
	if a.PhaseStartedAt.IsZero() || a.HeartbeatAt.IsZero() {
		t.Error("phase start and heartbeat should be stamped")
	}
}

func TestRunFailureRecordsCode(t *testing.T) {
	r, st, auditID := testRunner(t)

	res := r.Run(context.Background(), auditID, Crawl, func(ctx context.Context) error {
		return errors.New("something broke")
	})

	if !res.Failed() || res.Code != apperr.PhaseError {
		t.Fatalf("res = %+v, want PHASE_ERROR", res)
	}

	a, _ := st.Audit(auditID)
	if a.FailureCode != string(apperr.PhaseError) {
		t.Errorf("FailureCode = %s", a.FailureCode)
	}
	if a.FailureDetail == "" {
		t.Error("FailureDetail should carry the error message")
	}
}

func TestRunTimeout(t *testing.T) {
	r, _, auditID := testRunner(t)
	r.SetTimeout(Crawl, 30*time.Millisecond)

	res := r.Run(context.Background(), auditID, Crawl, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return nil
		}
	})

	if !res.Failed() {
		t.Fatal("expected timeout failure")
	}
	if res.Code != apperr.PhaseTimeout {
		t.Errorf("Code = %s, want PHASE_TIMEOUT", res.Code)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	r, _, auditID := testRunner(t)

	res := r.Run(context.Background(), auditID, Synth, func(ctx context.Context) error {
		panic("nil map write")
	})

	if !res.Failed() || res.Code != apperr.PhaseError {
		t.Fatalf("res = %+v, want recovered PHASE_ERROR", res)
	}
}

func TestAttemptsAccumulate(t *testing.T) {
	r, _, auditID := testRunner(t)

	for want := 1; want <= 3; want++ {
		res := r.Run(context.Background(), auditID, Crawl, func(ctx context.Context) error { return nil })
		if res.Attempt != want {
			t.Errorf("Attempt = %d, want %d", res.Attempt, want)
		}
	}
}

func TestHeartbeatRefreshesDuringPhase(t *testing.T) {
	r, st, auditID := testRunner(t)
	r.heartbeatInterval = 10 * time.Millisecond

	res := r.Run(context.Background(), auditID, Crawl, func(ctx context.Context) error {
		time.Sleep(80 * time.Millisecond)
		return nil
	})
	if res.Failed() {
		t.Fatal(res.Err)
	}

	a, _ := st.Audit(auditID)
	if !a.HeartbeatAt.After(a.PhaseStartedAt) {
		t.Errorf("heartbeat %v should advance past phase start %v", a.HeartbeatAt, a.PhaseStartedAt)
	}
}

func TestUnknownPhase(t *testing.T) {
	r, _, auditID := testRunner(t)
	res := r.Run(context.Background(), auditID, "teleport", func(ctx context.Context) error { return nil })
	if !res.Failed() {
		t.Fatal("unknown phase must fail")
	}
}

func TestNextAndTolerable(t *testing.T) {
	if got := Next(Discovery); got != Robots {
		t.Errorf("Next(discovery) = %s", got)
	}
	if got := Next(Finalize); got != "" {
		t.Errorf("Next(finalize) = %s, want end of pipeline", got)
	}

	r := NewRunner(nil, logger.Nop())
	for _, ph := range []string{Sitemap, Probes, Citations} {
		if !r.Tolerable(ph) {
			t.Errorf("%s should be tolerable", ph)
		}
	}
	for _, ph := range []string{Crawl, Synth, Finalize, Discovery, Robots} {
		if r.Tolerable(ph) {
			t.Errorf("%s should not be tolerable", ph)
		}
	}
}
