package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/answerscope/answerscope/internal/apperr"
)

// BrowserConfig configures the full-browser rendering strategy.
type BrowserConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	Headless          bool          `json:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `json:"navigation_timeout" yaml:"navigation_timeout"`
	IdleWait          time.Duration `json:"idle_wait" yaml:"idle_wait"`
	ViewportWidth     int           `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height" yaml:"viewport_height"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors" yaml:"ignore_https_errors"`
}

// DefaultBrowserConfig returns the standard browser settings.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Enabled:           true,
		Headless:          true,
		NavigationTimeout: 20 * time.Second,
		IdleWait:          2 * time.Second,
		ViewportWidth:     1366,
		ViewportHeight:    900,
		IgnoreHTTPSErrors: true,
	}
}

// BrowserStrategy renders pages in headless Chrome via rod, executing
// JavaScript and waiting for network idle so SPA content is captured.
// The browser launches lazily on first use; if launch fails the strategy
// reports unavailable for the rest of the invocation.
type BrowserStrategy struct {
	config BrowserConfig

	mu        sync.Mutex
	browser   *rod.Browser
	launchErr error
	tried     bool
}

// NewBrowserStrategy creates the browser strategy.
func NewBrowserStrategy(config BrowserConfig) *BrowserStrategy {
	return &BrowserStrategy{config: config}
}

// Name implements Strategy.
func (b *BrowserStrategy) Name() string { return "browser" }

// Available implements Strategy.
func (b *BrowserStrategy) Available() bool {
	if !b.config.Enabled {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return !(b.tried && b.launchErr != nil)
}

func (b *BrowserStrategy) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}
	if b.tried && b.launchErr != nil {
		return nil, b.launchErr
	}
	b.tried = true

	l := launcher.New().Headless(b.config.Headless)
	if b.config.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}
	url, err := l.Launch()
	if err != nil {
		b.launchErr = fmt.Errorf("launch browser: %w", err)
		return nil, b.launchErr
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		b.launchErr = fmt.Errorf("connect browser: %w", err)
		return nil, b.launchErr
	}

	b.browser = browser
	return browser, nil
}

// Render implements Strategy.
func (b *BrowserStrategy) Render(ctx context.Context, url, userAgent string) (*Snapshot, error) {
	browser, err := b.connect()
	if err != nil {
		return nil, apperr.New(apperr.FetchConnection, url, "browser_render", "browser unavailable", err)
	}

	start := time.Now()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, apperr.New(apperr.FetchConnection, url, "browser_render", "create page", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, b.config.NavigationTimeout)
	defer cancel()
	page = page.Context(navCtx)

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  b.config.ViewportWidth,
		Height: b.config.ViewportHeight,
	})
	if userAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: userAgent}.Call(page)
	}

	// Record the main document's response status as it arrives.
	var status int
	var statusMu sync.Mutex
	go page.EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Type == proto.NetworkResourceTypeDocument {
			statusMu.Lock()
			if status == 0 {
				status = e.Response.Status
			}
			statusMu.Unlock()
		}
	})()

	if err := page.Navigate(url); err != nil {
		return nil, apperr.Classify(err, url, "browser_render")
	}
	if err := page.WaitLoad(); err != nil {
		return nil, apperr.Classify(err, url, "browser_render")
	}
	// Bounded settle for late XHR-driven content. WaitRequestIdle would hang
	// on pages with polling, so a fixed idle wait is used instead.
	if b.config.IdleWait > 0 {
		select {
		case <-time.After(b.config.IdleWait):
		case <-navCtx.Done():
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, apperr.Classify(err, url, "browser_render")
	}

	finalURL := url
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	statusMu.Lock()
	st := status
	statusMu.Unlock()
	if st == 0 {
		// Some navigations (e.g. served from cache) emit no response event;
		// readyState confirms the document actually loaded.
		if res, err := page.Eval("() => document.readyState"); err == nil {
			var ready gson.JSON = res.Value
			if ready.Str() == "complete" || ready.Str() == "interactive" {
				st = 200
			}
		}
	}

	return &Snapshot{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: st,
		HTML:       html,
		LoadTime:   time.Since(start),
	}, nil
}

// Close shuts the browser down.
func (b *BrowserStrategy) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		err := b.browser.Close()
		b.browser = nil
		return err
	}
	return nil
}
