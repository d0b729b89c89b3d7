package citation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/answerscope/answerscope/internal/apperr"
	"github.com/answerscope/answerscope/internal/limit"
	"github.com/answerscope/answerscope/internal/logger"
	"github.com/answerscope/answerscope/internal/store"
)

// HTTPConfig configures the HTTP citation connector.
type HTTPConfig struct {
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	APIKey   string        `json:"api_key" yaml:"api_key"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// HTTPConnector posts each query to an answer-engine search endpoint and
// counts how often the audited domain appears among the returned sources.
// Calls are capped by the connector semaphore; the breaker shields a flaky
// endpoint — when open, Run returns empty results and the audit proceeds
// without citation data.
type HTTPConnector struct {
	config  HTTPConfig
	domain  string
	client  *http.Client
	sem     *limit.Semaphore
	breaker *limit.Breaker
	log     *logger.Logger
}

// NewHTTPConnector creates the connector for one audited domain.
func NewHTTPConnector(config HTTPConfig, domain string, sem *limit.Semaphore, breakers limit.BreakerStore, log *logger.Logger) *HTTPConnector {
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	return &HTTPConnector{
		config:  config,
		domain:  strings.ToLower(domain),
		client:  &http.Client{Timeout: config.Timeout},
		sem:     sem,
		breaker: limit.NewBreaker("citation", limit.DefaultBreakerConfig(), breakers),
		log:     log.WithComponent("citation"),
	}
}

// Queries implements Connector.
func (c *HTTPConnector) Queries(brand string, pages []*store.PageRecord) []string {
	return BuildQueries(brand, pages)
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Sources []struct {
		URL string `json:"url"`
	} `json:"sources"`
}

// Run implements Connector. Queries run concurrently under the semaphore;
// each failure feeds the breaker and once it opens the remaining queries are
// skipped rather than attempted.
func (c *HTTPConnector) Run(ctx context.Context, queries []string) []QueryResult {
	results := make([]QueryResult, len(queries))
	var wg sync.WaitGroup

	for i, q := range queries {
		wg.Add(1)
		go func(idx int, query string) {
			defer wg.Done()
			results[idx] = c.runOne(ctx, query)
		}(i, q)
	}
	wg.Wait()

	return results
}

func (c *HTTPConnector) runOne(ctx context.Context, query string) QueryResult {
	qr := QueryResult{Query: query}

	if !c.breaker.Allow() {
		c.log.Debug("citation breaker open, skipping query")
		return qr
	}

	err := c.sem.WithPermit(ctx, func() error {
		payload, err := json.Marshal(searchRequest{Query: query})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		qr.Status = resp.StatusCode
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			// Rate limiting and server errors count against the breaker,
			// same as transport failures.
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return apperr.FromStatus(resp.StatusCode, c.config.Endpoint)
			}
			return nil
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
		if err != nil {
			return err
		}
		var decoded searchResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return err
		}

		qr.Success = true
		qr.TotalSources = len(decoded.Sources)
		for _, src := range decoded.Sources {
			if path, ok := c.domainPath(src.URL); ok {
				qr.DomainSources++
				qr.DomainPaths = append(qr.DomainPaths, path)
			}
		}
		return nil
	})

	if err != nil {
		c.breaker.RecordFailure()
		c.log.WithError(err).Debug("citation query failed")
		return qr
	}
	if qr.Success {
		c.breaker.RecordSuccess()
	}
	return qr
}

// domainPath reports whether a source URL belongs to the audited domain and
// returns its path when it does.
func (c *HTTPConnector) domainPath(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	if host != c.domain && !strings.HasSuffix(host, "."+c.domain) {
		return "", false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return path, true
}

const maxSearchBody = 2 * 1024 * 1024
