package render

import (
	"context"
	"errors"
	"testing"

	"github.com/answerscope/answerscope/internal/limit"
	"github.com/answerscope/answerscope/internal/logger"
)

type fakeStrategy struct {
	name      string
	available bool
	calls     int
	err       error
	html      string
}

func (f *fakeStrategy) Name() string    { return f.name }
func (f *fakeStrategy) Available() bool { return f.available }
func (f *fakeStrategy) Render(ctx context.Context, url, ua string) (*Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Snapshot{URL: url, FinalURL: url, StatusCode: 200, HTML: f.html}, nil
}

func newTestPipeline(strategies ...Strategy) *Pipeline {
	return NewPipeline(strategies, limit.NewSemaphore(1), nil, "TestBot/1.0", logger.Nop())
}

func TestPipelineFirstAvailableWins(t *testing.T) {
	first := &fakeStrategy{name: "browser", available: true, html: "<html><body><main><h1>A</h1></main></body></html>"}
	second := &fakeStrategy{name: "static", available: true, html: "<html><body>B</body></html>"}

	p := newTestPipeline(first, second)
	res, err := p.Render(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != "browser" {
		t.Errorf("Strategy = %s, want browser", res.Strategy)
	}
	if second.calls != 0 {
		t.Error("second strategy should not be tried when first succeeds")
	}
	if res.H1 != "A" {
		t.Errorf("extraction not applied: %+v", res)
	}
}

func TestPipelineFallsBackOnFailure(t *testing.T) {
	first := &fakeStrategy{name: "browser", available: true, err: errors.New("browser crashed")}
	second := &fakeStrategy{name: "static", available: true, html: "<html><body><p>fallback content</p></body></html>"}

	p := newTestPipeline(first, second)
	res, err := p.Render(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != "static" {
		t.Errorf("Strategy = %s, want static", res.Strategy)
	}
	if first.calls != 1 {
		t.Errorf("first strategy calls = %d", first.calls)
	}
}

func TestPipelineSkipsUnavailable(t *testing.T) {
	first := &fakeStrategy{name: "browser", available: false}
	second := &fakeStrategy{name: "static", available: true, html: "<html><body>x</body></html>"}

	p := newTestPipeline(first, second)
	res, err := p.Render(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if first.calls != 0 {
		t.Error("unavailable strategy should never be called")
	}
	if res.Strategy != "static" {
		t.Errorf("Strategy = %s", res.Strategy)
	}
}

func TestPipelineBreakerSkipsFailingStrategy(t *testing.T) {
	failing := &fakeStrategy{name: "remote", available: true, err: errors.New("service down")}
	backup := &fakeStrategy{name: "static", available: true, html: "<html><body>x</body></html>"}

	p := newTestPipeline(failing, backup)

	// Default breaker threshold is 3 failures.
	for i := 0; i < 4; i++ {
		if _, err := p.Render(context.Background(), "https://example.com/"); err != nil {
			t.Fatal(err)
		}
	}

	if failing.calls != 3 {
		t.Errorf("failing strategy calls = %d, want 3 (breaker opens, later renders skip it)", failing.calls)
	}
	if backup.calls != 4 {
		t.Errorf("backup calls = %d, want 4", backup.calls)
	}
}

func TestPipelineAllFail(t *testing.T) {
	only := &fakeStrategy{name: "static", available: true, err: errors.New("unreachable")}
	p := newTestPipeline(only)

	_, err := p.Render(context.Background(), "https://example.com/")
	if err == nil {
		t.Fatal("expected error when every strategy fails")
	}
}

func TestPipelineNoStrategies(t *testing.T) {
	p := newTestPipeline()
	_, err := p.Render(context.Background(), "https://example.com/")
	if err == nil {
		t.Fatal("expected error with no strategies")
	}
}
