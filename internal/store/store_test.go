package store

import (
	"errors"
	"testing"
	"time"

	"github.com/answerscope/answerscope/internal/limit"
)

func TestAuditLifecycle(t *testing.T) {
	s := testStore(t)

	a, err := s.CreateAudit("example.com", "https://example.com")
	if err != nil {
		t.Fatalf("CreateAudit: %v", err)
	}
	if a.ID == "" || a.Status != AuditRunning || a.Phase != "discovery" {
		t.Fatalf("new audit = %+v", a)
	}

	_, err = s.UpdateAudit(a.ID, func(a *Audit) error {
		a.Phase = "crawl"
		a.Attempts["crawl"]++
		a.PagesCrawled = 4
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAudit: %v", err)
	}

	got, err := s.Audit(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != "crawl" || got.Attempts["crawl"] != 1 || got.PagesCrawled != 4 {
		t.Errorf("reloaded audit = %+v", got)
	}

	if _, err := s.Audit("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Audit(missing) err = %v, want ErrNotFound", err)
	}
}

func TestHeartbeat(t *testing.T) {
	s := testStore(t)
	a, _ := s.CreateAudit("example.com", "https://example.com")

	if err := s.Heartbeat(a.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Audit(a.ID)
	if got.HeartbeatAt.IsZero() {
		t.Error("heartbeat not stamped")
	}
}

func TestPageUpsert(t *testing.T) {
	s := testStore(t)

	// First attempt fails.
	err := s.UpsertPage(&PageRecord{
		AuditID: "a1", URL: "https://example.com/p",
		StatusCode: 0, Error: "FETCH_TIMEOUT",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Retry after a reclaim succeeds and replaces the failure.
	err = s.UpsertPage(&PageRecord{
		AuditID: "a1", URL: "https://example.com/p",
		StatusCode: 200, Title: "Page", WordCount: 500,
	})
	if err != nil {
		t.Fatal(err)
	}

	pages, _ := s.Pages("a1")
	if len(pages) != 1 {
		t.Fatalf("pages = %d rows, want 1 (upsert, not insert)", len(pages))
	}
	if pages[0].StatusCode != 200 || pages[0].Error != "" {
		t.Errorf("page = %+v, want the successful render", pages[0])
	}
}

func TestAnalysisReplacedOnRerun(t *testing.T) {
	s := testStore(t)

	s.PutAnalysis(&PageAnalysis{AuditID: "a1", URL: "https://example.com/p", OutboundLinks: 2})
	s.PutAnalysis(&PageAnalysis{AuditID: "a1", URL: "https://example.com/p", OutboundLinks: 7})

	analyses, _ := s.Analyses("a1")
	if len(analyses) != 1 || analyses[0].OutboundLinks != 7 {
		t.Errorf("analyses = %+v, want single recomputed row", analyses)
	}
}

func TestIssuesAppendOnly(t *testing.T) {
	s := testStore(t)

	for i := 0; i < 3; i++ {
		err := s.AppendIssue(&Issue{
			AuditID: "a1", Type: "missing_title", Severity: SeverityWarning,
			Message: "page has no title",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	issues, _ := s.Issues("a1")
	if len(issues) != 3 {
		t.Errorf("issues = %d, want 3 (append-only, duplicates kept)", len(issues))
	}
}

func TestBreakerStateRoundTrip(t *testing.T) {
	s := testStore(t)

	st, err := s.BreakerState("render")
	if err != nil || st != nil {
		t.Fatalf("unknown service = (%+v, %v), want (nil, nil)", st, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	err = s.PutBreakerState(&limit.BreakerState{
		Service:  "render",
		Failures: []time.Time{now},
		OpenedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}

	st, err = s.BreakerState("render")
	if err != nil || st == nil {
		t.Fatalf("BreakerState = (%+v, %v)", st, err)
	}
	if !st.OpenedAt.Equal(now) || len(st.Failures) != 1 {
		t.Errorf("round-tripped state = %+v", st)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/audit.db"

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := s.CreateAudit("example.com", "https://example.com")
	s.Seed(a.ID, []SeedEntry{{URL: "https://example.com/", Depth: 0}})
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	if _, err := s2.Audit(a.ID); err != nil {
		t.Errorf("audit lost across reopen: %v", err)
	}
	counts, _ := s2.Counts(a.ID)
	if counts.Pending != 1 {
		t.Errorf("frontier lost across reopen: %+v", counts)
	}
}
