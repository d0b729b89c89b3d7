// Package fetch provides the resilient HTTP client every outbound call in
// the audit pipeline goes through: one place for timeouts, retries with
// backoff, per-host pacing, and error classification.
package fetch

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/answerscope/answerscope/internal/apperr"
)

// maxBodyBytes caps response bodies so one huge page cannot blow the
// invocation's memory budget.
const maxBodyBytes = 5 * 1024 * 1024

// Config holds fetch client configuration.
type Config struct {
	Timeout             time.Duration
	UserAgent           string
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	RequestsPerSecond   float64 // per-host pacing; 0 disables
	Burst               int
	SkipTLSVerify       bool
	Retry               apperr.RetryConfig
}

// DefaultConfig returns the standard fetch policy.
func DefaultConfig() Config {
	return Config{
		Timeout:             15 * time.Second,
		UserAgent:           "AnswerScopeBot/1.0 (+https://answerscope.dev/bot)",
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		RequestsPerSecond:   4,
		Burst:               2,
		Retry:               apperr.DefaultRetryConfig(),
	}
}

// Result is the outcome of one fetch.
type Result struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        string
	Duration    time.Duration
}

// Client is a resilient HTTP client for audit fetches.
type Client struct {
	http    *http.Client
	config  Config
	retrier *apperr.Retrier

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a fetch client.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		config:   config,
		retrier:  apperr.NewRetrier(config.Retry),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Get fetches a URL once, with classification but no retries.
func (c *Client) Get(ctx context.Context, targetURL, userAgent string) (*Result, error) {
	return c.do(ctx, http.MethodGet, targetURL, userAgent)
}

// Head performs a HEAD request; used by bot probes where the body is
// irrelevant.
func (c *Client) Head(ctx context.Context, targetURL, userAgent string) (*Result, error) {
	return c.do(ctx, http.MethodHead, targetURL, userAgent)
}

// GetWithRetry fetches a URL, retrying transient failures per the retry
// policy. Non-retryable statuses (4xx) return the result alongside the
// classified error so callers can still inspect the response.
func (c *Client) GetWithRetry(ctx context.Context, targetURL, userAgent string) (*Result, error) {
	var res *Result
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var ferr error
		res, ferr = c.do(ctx, http.MethodGet, targetURL, userAgent)
		return ferr
	})
	if res == nil {
		res = &Result{URL: targetURL}
	}
	return res, err
}

func (c *Client) do(ctx context.Context, method, targetURL, userAgent string) (*Result, error) {
	start := time.Now()
	res := &Result{URL: targetURL}

	if err := c.waitHost(ctx, targetURL); err != nil {
		return res, apperr.Classify(err, targetURL, "rate_wait")
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, nil)
	if err != nil {
		return res, apperr.New(apperr.FetchConnection, targetURL, "request", "invalid request", err)
	}

	if userAgent == "" {
		userAgent = c.config.UserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		return res, apperr.Classify(err, targetURL, "fetch")
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.FinalURL = resp.Request.URL.String()
	res.ContentType = resp.Header.Get("Content-Type")

	if method != http.MethodHead && readableContent(res.ContentType) {
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if rerr != nil {
			res.Duration = time.Since(start)
			return res, apperr.Classify(rerr, targetURL, "body_read")
		}
		res.Body = string(body)
	}
	res.Duration = time.Since(start)

	if httpErr := apperr.FromStatus(resp.StatusCode, targetURL); httpErr != nil {
		return res, httpErr
	}
	return res, nil
}

// waitHost applies per-host pacing so one audit cannot hammer a site even
// across phases.
func (c *Client) waitHost(ctx context.Context, targetURL string) error {
	if c.config.RequestsPerSecond <= 0 {
		return nil
	}
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	lim, ok := c.limiters[u.Host]
	if !ok {
		burst := c.config.Burst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(c.config.RequestsPerSecond), burst)
		c.limiters[u.Host] = lim
	}
	c.mu.Unlock()

	return lim.Wait(ctx)
}

func readableContent(contentType string) bool {
	return contentType == "" ||
		strings.Contains(contentType, "text/") ||
		strings.Contains(contentType, "xml") ||
		strings.Contains(contentType, "json")
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
