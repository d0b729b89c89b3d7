package store

import "time"

// AuditStatus is the lifecycle status of an audit run.
type AuditStatus string

const (
	AuditRunning   AuditStatus = "running"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

// Scores holds the four category percentages and the weighted overall.
type Scores struct {
	Overall       float64 `json:"overall"`
	Crawlability  float64 `json:"crawlability"`
	Structured    float64 `json:"structured"`
	Answerability float64 `json:"answerability"`
	Trust         float64 `json:"trust"`
}

// Audit is one crawl run for one domain. It is the only cross-invocation
// memory the phase machine has, so every transition writes back here.
type Audit struct {
	ID     string      `json:"id"`
	Domain string      `json:"domain"`
	Origin string      `json:"origin"`
	Status AuditStatus `json:"status"`

	Phase          string         `json:"phase"`
	PhaseStartedAt time.Time      `json:"phase_started_at,omitempty"`
	HeartbeatAt    time.Time      `json:"heartbeat_at,omitempty"`
	Attempts       map[string]int `json:"attempts,omitempty"`

	FailureCode   string `json:"failure_code,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	PagesCrawled int `json:"pages_crawled"`
	PagesFailed  int `json:"pages_failed"`

	RobotsPresent bool     `json:"robots_present"`
	SitemapFound  bool     `json:"sitemap_found"`
	BotsAllowed   int      `json:"bots_allowed"`
	BotsChecked   int      `json:"bots_checked"`
	SitemapURLs   []string `json:"sitemap_urls,omitempty"`
	CitationTotal int      `json:"citation_total"`
	CitationCited int      `json:"citation_cited"`
	CitationPaths []string `json:"citation_paths,omitempty"`

	Scores      *Scores   `json:"scores,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// FrontierStatus is the lifecycle status of a frontier entry.
type FrontierStatus string

const (
	FrontierPending  FrontierStatus = "pending"
	FrontierVisiting FrontierStatus = "visiting"
	FrontierDone     FrontierStatus = "done"
	FrontierSkipped  FrontierStatus = "skipped"
)

// FrontierEntry is one candidate URL for one audit. Keyed by normalized URL
// within the audit's bucket, which enforces the one-row-per-URL invariant.
type FrontierEntry struct {
	AuditID   string         `json:"audit_id"`
	URL       string         `json:"url"`
	Depth     int            `json:"depth"`
	Priority  float64        `json:"priority"`
	Status    FrontierStatus `json:"status"`
	ParentURL string         `json:"parent_url,omitempty"`
	Source    string         `json:"source,omitempty"`
	Seq       uint64         `json:"seq"` // insertion order tiebreak
	CreatedAt time.Time      `json:"created_at"`
	LeasedAt  time.Time      `json:"leased_at,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// FrontierCounts summarizes frontier progress for gate decisions.
type FrontierCounts struct {
	Pending  int `json:"pending"`
	Visiting int `json:"visiting"`
	Done     int `json:"done"`
	Skipped  int `json:"skipped"`
}

// Finished returns the number of entries in a terminal state.
func (c FrontierCounts) Finished() int { return c.Done + c.Skipped }

// PageRecord is the result of rendering one URL. Upserted, so a retry after
// a stale-lease reclaim overwrites the earlier failure.
type PageRecord struct {
	AuditID             string        `json:"audit_id"`
	URL                 string        `json:"url"`
	StatusCode          int           `json:"status_code"`
	Title               string        `json:"title"`
	H1                  string        `json:"h1"`
	StructuredDataCount int           `json:"structured_data_count"`
	HasFAQ              bool          `json:"has_faq"`
	WordCount           int           `json:"word_count"`
	HTML                string        `json:"html,omitempty"`
	ExtractedText       string        `json:"extracted_text,omitempty"`
	Snippet             string        `json:"snippet,omitempty"`
	Strategy            string        `json:"strategy,omitempty"`
	LoadTime            time.Duration `json:"load_time"`
	Error               string        `json:"error,omitempty"`
	Depth               int           `json:"depth"`
	FetchedAt           time.Time     `json:"fetched_at"`
}

// PageAnalysis holds derived semantic facts for one page.
type PageAnalysis struct {
	AuditID       string         `json:"audit_id"`
	URL           string         `json:"url"`
	Headings      map[string]int `json:"headings,omitempty"`
	HeadingTexts  []string       `json:"heading_texts,omitempty"`
	SchemaTypes   []string       `json:"schema_types,omitempty"`
	HasAuthor     bool           `json:"has_author"`
	HasDate       bool           `json:"has_date"`
	OutboundLinks int            `json:"outbound_links"`
	HasCitations  bool           `json:"has_citations"`
	AnalyzedAt    time.Time      `json:"analyzed_at"`
}

// IssueSeverity grades audit findings.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityWarning  IssueSeverity = "warning"
	SeverityInfo     IssueSeverity = "info"
)

// Issue is a discrete finding recorded against an audit.
type Issue struct {
	AuditID   string        `json:"audit_id"`
	Type      string        `json:"type"`
	Severity  IssueSeverity `json:"severity"`
	PageURL   string        `json:"page_url,omitempty"`
	Message   string        `json:"message"`
	Details   string        `json:"details,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
