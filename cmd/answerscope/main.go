package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	core "github.com/answerscope/answerscope/internal/audit"
	"github.com/answerscope/answerscope/internal/citation"
	"github.com/answerscope/answerscope/internal/fetch"
	"github.com/answerscope/answerscope/internal/limit"
	"github.com/answerscope/answerscope/internal/logger"
	"github.com/answerscope/answerscope/internal/render"
	"github.com/answerscope/answerscope/internal/store"
	"github.com/answerscope/answerscope/pkg/audit"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	dbPath     string
	verbose    bool
	logJSON    bool

	// Crawl flags
	maxDepth  int
	maxPages  int
	noBrowser bool
	quickMode bool
	tickDelay time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "answerscope",
		Short: "answerscope - AI answer-engine readiness auditor",
		Long: `answerscope audits how ready a website is for AI answer engines.

It crawls the site through a resumable phase pipeline (robots.txt and sitemap
analysis, AI-bot access probing, rendering and content extraction, citation
checks) and produces category scores for crawlability, structured data,
answerability, and trust.`,
		Version: version,
	}

	createCmd := &cobra.Command{
		Use:   "create [domain]",
		Short: "Create a new audit",
		Long:  "Create a new audit for a domain. Returns the audit id to tick or run.",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreate,
	}

	tickCmd := &cobra.Command{
		Use:   "tick [audit-id]",
		Short: "Run one tick of an audit",
		Long:  "Run a single phase tick and print the result as JSON. Intended for external schedulers.",
		Args:  cobra.ExactArgs(1),
		RunE:  runTick,
	}

	runCmd := &cobra.Command{
		Use:   "run [audit-id]",
		Short: "Run an audit to completion",
		Long:  "Tick the audit in a loop until it completes or fails.",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoop,
	}

	statusCmd := &cobra.Command{
		Use:   "status [audit-id]",
		Short: "Show audit status",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List audits",
		RunE:  runList,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default answerscope.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "JSON log output")

	for _, cmd := range []*cobra.Command{tickCmd, runCmd} {
		cmd.Flags().IntVarP(&maxDepth, "max-depth", "d", 2, "Maximum crawl depth")
		cmd.Flags().IntVarP(&maxPages, "max-pages", "p", 25, "Maximum pages to crawl")
		cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Disable headless browser rendering")
		cmd.Flags().BoolVar(&quickMode, "quick", false, "Quick mode: shallow static-only audit")
	}
	runCmd.Flags().DurationVar(&tickDelay, "tick-interval", 0, "Delay between ticks (default from config)")

	rootCmd.AddCommand(createCmd, tickCmd, runCmd, statusCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*audit.Config, error) {
	var config *audit.Config
	if quickMode {
		config = audit.QuickConfig()
	} else {
		config = audit.DefaultConfig()
	}
	if configFile != "" {
		fileConfig, err := audit.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	if dbPath != "" {
		config.DBPath = dbPath
	}
	if cmd.Flags().Changed("max-depth") {
		config.MaxDepth = maxDepth
	}
	if cmd.Flags().Changed("max-pages") {
		config.MaxPages = maxPages
	}
	if noBrowser {
		config.Browser.Enabled = false
	}
	if verbose {
		config.LogLevel = "debug"
	}
	if logJSON {
		config.LogJSON = true
	}

	return config, config.Validate()
}

func newLogger(config *audit.Config) *logger.Logger {
	level, err := logger.ParseLevel(config.LogLevel)
	if err != nil {
		level = logger.InfoLevel
	}
	if config.LogJSON {
		return logger.NewJSON(level)
	}
	return logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})
}

// orchestratorFor wires the store, fetch client, render cascade, and (when
// configured) the citation connector bound to the audit's domain.
func orchestratorFor(config *audit.Config, log *logger.Logger, auditID string) (*core.Orchestrator, *store.Store, func(), error) {
	st, err := store.Open(config.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	a, err := st.Audit(auditID)
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("load audit %s: %w", auditID, err)
	}

	client := fetch.NewClient(config.FetchClientConfig())

	var strategies []render.Strategy
	browser := render.NewBrowserStrategy(config.Browser)
	if config.Browser.Enabled {
		strategies = append(strategies, browser)
	}
	if config.Remote.Endpoint != "" {
		strategies = append(strategies, render.NewRemoteStrategy(config.Remote))
	}
	strategies = append(strategies, render.NewStaticStrategy(client))
	pipeline := render.NewPipeline(strategies, limit.NewSemaphore(1), st, config.UserAgent, log)

	var connector citation.Connector
	if config.Citation.Endpoint != "" {
		connector = citation.NewHTTPConnector(config.Citation, a.Domain, limit.NewSemaphore(2), st, log)
	}

	o := core.New(st, client, pipeline, connector, config.OrchestratorOptions(), log)
	for name, d := range config.PhaseTimeouts {
		o.Runner().SetTimeout(name, d)
	}

	cleanup := func() {
		browser.Close()
		client.Close()
		st.Close()
	}
	return o, st, cleanup, nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	domain, origin, err := parseDomain(args[0])
	if err != nil {
		return err
	}

	st, err := store.Open(config.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	a, err := st.CreateAudit(domain, origin)
	if err != nil {
		return err
	}

	fmt.Printf("created audit %s for %s\n", a.ID, origin)
	fmt.Printf("run it with: answerscope run %s\n", a.ID)
	return nil
}

func runTick(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(config)

	o, _, cleanup, err := orchestratorFor(config, log, args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := o.RunTick(ctx, args[0])
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(res)
}

func runLoop(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if tickDelay > 0 {
		config.TickInterval = tickDelay
	}
	log := newLogger(config)

	o, st, cleanup, err := orchestratorFor(config, log, args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	auditID := args[0]
	start := time.Now()
	for {
		res, err := o.RunTick(ctx, auditID)
		if err != nil {
			return err
		}
		if res.Completed {
			return printSummary(st, auditID, time.Since(start), res)
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "interrupted; audit state is saved and the run can be resumed")
			return nil
		case <-time.After(config.TickInterval):
		}
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(config.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	a, err := st.Audit(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

func runList(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(config.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	audits, err := st.Audits()
	if err != nil {
		return err
	}
	if len(audits) == 0 {
		fmt.Println("no audits")
		return nil
	}

	for _, a := range audits {
		status := string(a.Status)
		if a.Status == store.AuditRunning {
			status = fmt.Sprintf("running (%s)", a.Phase)
		}
		score := "-"
		if a.Scores != nil {
			score = fmt.Sprintf("%.0f%%", a.Scores.Overall)
		}
		fmt.Printf("%-28s %-24s %-20s %s\n", a.ID, a.Domain, status, score)
	}
	return nil
}

func printSummary(st *store.Store, auditID string, elapsed time.Duration, res *core.TickResult) error {
	a, err := st.Audit(auditID)
	if err != nil {
		return err
	}

	fmt.Println()
	if a.Status == store.AuditFailed {
		fmt.Printf("audit failed: %s (%s)\n", a.FailureReason, a.FailureCode)
		return nil
	}

	fmt.Printf("audit completed in %s\n", elapsed.Round(time.Second))
	fmt.Printf("  pages crawled: %d (failed: %d)\n", a.PagesCrawled, a.PagesFailed)
	fmt.Printf("  robots.txt: %v, sitemap: %v, AI bots allowed: %d/%d\n",
		a.RobotsPresent, a.SitemapFound, a.BotsAllowed, a.BotsChecked)
	if a.CitationTotal > 0 {
		fmt.Printf("  citations: cited in %d of %d queries\n", a.CitationCited, a.CitationTotal)
	}
	if a.Scores != nil {
		fmt.Printf("  scores: overall %.1f%% (crawlability %.1f%%, structured %.1f%%, answerability %.1f%%, trust %.1f%%)\n",
			a.Scores.Overall, a.Scores.Crawlability, a.Scores.Structured, a.Scores.Answerability, a.Scores.Trust)
	}

	issues, err := st.Issues(auditID)
	if err == nil && len(issues) > 0 {
		fmt.Printf("  issues: %d\n", len(issues))
		for _, is := range issues {
			if is.Severity == store.SeverityCritical {
				fmt.Printf("    [critical] %s: %s\n", is.Type, is.Message)
			}
		}
	}
	return nil
}

// parseDomain accepts "example.com" or a full URL and returns the bare
// domain plus the https origin to audit.
func parseDomain(raw string) (domain, origin string, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid domain %q", raw)
	}
	host := strings.ToLower(u.Host)
	domain = strings.TrimPrefix(host, "www.")
	return domain, u.Scheme + "://" + host, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nreceived interrupt, finishing current tick...")
		cancel()
	}()
	return ctx, cancel
}
