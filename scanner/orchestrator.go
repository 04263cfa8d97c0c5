// Package scanner owns the scan lifecycle: it claims queued scans, drives the
// crawl → analyze → score pipeline, persists results, and publishes progress.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/a11yscan/canon"
	"github.com/hazyhaar/a11yscan/contextual"
	"github.com/hazyhaar/a11yscan/findings"
	"github.com/hazyhaar/a11yscan/idgen"
	"github.com/hazyhaar/a11yscan/observability"
	"github.com/hazyhaar/a11yscan/progress"
	"github.com/hazyhaar/a11yscan/rules"
	"github.com/hazyhaar/a11yscan/scanner/internal/browser"
	"github.com/hazyhaar/a11yscan/scanner/internal/store"
	"github.com/hazyhaar/a11yscan/scanq"
	"github.com/hazyhaar/a11yscan/scoring"
	"github.com/hazyhaar/a11yscan/wcag"
)

// Fetcher renders one page and returns its HTML plus the probe result JSON.
// The production implementation drives a Chrome tab; tests inject fakes.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (html []byte, probe string, err error)
}

// RodFetcher fetches pages through the browser manager.
type RodFetcher struct {
	Mgr *browser.Manager
}

func (f *RodFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, string, error) {
	tab, err := browser.OpenTab(ctx, f.Mgr, pageURL)
	if err != nil {
		return nil, "", err
	}
	defer tab.Close()

	html, err := tab.HTML(ctx)
	if err != nil {
		return nil, "", err
	}
	probe, err := tab.Eval(ctx, canon.ProbeScript)
	if err != nil {
		// Probe data is an enrichment; the page is still analyzable.
		probe = ""
	}
	return html, probe, nil
}

// Orchestrator runs claimed scans end to end.
type Orchestrator struct {
	cfg      Config
	store    *store.Store
	queue    *scanq.Q
	fetcher  Fetcher
	engine   *rules.Engine
	analyzer *contextual.Analyzer
	bcast    *progress.Broadcaster
	events   *observability.EventLogger
	newID    idgen.Generator
	logger   *slog.Logger
}

// NewOrchestrator wires the pipeline. analyzer may be built with a nil
// provider to disable the AI pass.
func NewOrchestrator(cfg Config, st *store.Store, q *scanq.Q, fetcher Fetcher,
	analyzer *contextual.Analyzer, bcast *progress.Broadcaster,
	events *observability.EventLogger, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		queue:    q,
		fetcher:  fetcher,
		engine:   rules.NewEngine(),
		analyzer: analyzer,
		bcast:    bcast,
		events:   events,
		newID:    idgen.Prefixed("scan_", idgen.Default),
		logger:   logger,
	}
}

// Broadcaster exposes the progress broadcaster for the HTTP/SSE layer.
func (o *Orchestrator) Broadcaster() *progress.Broadcaster { return o.bcast }

// Store exposes the durable store for the HTTP/MCP layer.
func (o *Orchestrator) Store() *store.Store { return o.store }

// StartScan accepts a new scan: creates the record, enqueues the job, and
// publishes the initial queued state. Zero-valued budgets fall back to the
// configured defaults; requested budgets are capped at them.
func (o *Orchestrator) StartScan(ctx context.Context, pageURL string, maxDepth, maxPages int) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("scanner: invalid url %q", pageURL)
	}

	id := o.newID()
	if err := o.store.CreateScan(ctx, id, pageURL, string(StatusQueued)); err != nil {
		return "", fmt.Errorf("scanner: create scan: %w", err)
	}
	if err := o.queue.Enqueue(ctx, scanq.Request{
		ScanID:      id,
		URL:         pageURL,
		MaxDepth:    capBudget(maxDepth, o.cfg.Crawl.MaxDepth),
		MaxPages:    capBudget(maxPages, o.cfg.Crawl.MaxPages),
		MaxDuration: o.cfg.Crawl.MaxDuration,
	}); err != nil {
		return "", fmt.Errorf("scanner: enqueue: %w", err)
	}

	o.bcast.Publish(id, progress.State{
		Status:      string(StatusQueued),
		Progress:    progressFor(StatusQueued, 0, 0),
		CurrentStep: stepLabel(StatusQueued),
	})
	o.events.LogEvent(ctx, observability.ScanEvent{
		ScanID: id, EventType: "scan_queued", PageURL: pageURL, Success: true,
	})
	return id, nil
}

func capBudget(requested, limit int) int {
	if requested <= 0 || requested > limit {
		return limit
	}
	return requested
}

// Run consumes the queue until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	o.queue.Run(ctx, o.handle)
}

// scanRun is the mutable state of one executing scan, owned by one worker.
type scanRun struct {
	o *Orchestrator

	id  string
	url string

	mu          sync.Mutex
	status      Status
	progress    int
	discovered  int
	crawled     int
	currentPage string
	errors      []progress.PageError
	meta        *progress.Metadata
}

func (o *Orchestrator) handle(ctx context.Context, job *scanq.Job) error {
	req := job.Request
	run := &scanRun{o: o, id: req.ScanID, url: req.URL, status: StatusQueued}

	// Reclaimed jobs may already have a row; first deliveries may not when
	// the scan was enqueued directly on the table.
	if sc, err := o.store.GetScan(ctx, run.id); err == nil && sc == nil {
		_ = o.store.CreateScan(ctx, run.id, run.url, string(StatusQueued))
	}

	maxDuration := req.MaxDuration
	if maxDuration <= 0 {
		maxDuration = o.cfg.Crawl.MaxDuration
	}
	scanCtx, cancel := context.WithTimeout(ctx, maxDuration)
	defer cancel()

	run.transition(scanCtx, StatusStarting)
	run.transition(scanCtx, StatusCrawling)
	results, rootHTML := o.crawl(scanCtx, run, req)

	var violations []rules.Violation
	var rootPage *canon.Page
	var firstErr error
	succeeded := 0
	for _, r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		succeeded++
		violations = append(violations, r.violations...)
		if rootPage == nil || r.url == req.URL {
			rootPage = r.page
		}
	}

	// The crawl starts with the entry page, so zero successes means the
	// browser session never produced a usable page.
	if succeeded == 0 {
		switch {
		case scanCtx.Err() != nil:
			run.fail(fmt.Sprintf("scan exceeded maximum duration (%s)", maxDuration), nil)
		case firstErr != nil:
			run.fail(fmt.Sprintf("browser session failed for %s: %v", req.URL, firstErr), nil)
		default:
			run.fail("no pages could be crawled", nil)
		}
		return nil
	}

	// Wall clock expired mid-crawl: fail, but keep what was computed.
	if scanCtx.Err() != nil {
		partial := findings.Normalize(run.id, violations, nil)
		run.fail(fmt.Sprintf("scan exceeded maximum duration (%s)", maxDuration), partial)
		return nil
	}

	run.transition(scanCtx, StatusAnalyzing)

	// The AI pass runs once per scan against the entry page. It is strictly
	// best-effort: the analyzer logs and returns nothing on any failure.
	var candidates []findings.Candidate
	if o.analyzer != nil && rootPage != nil {
		known := findings.Normalize(run.id, violations, nil)
		candidates = o.analyzer.Analyze(scanCtx, rootPage, rootHTML, known)
		o.events.LogEvent(scanCtx, observability.ScanEvent{
			ScanID: run.id, EventType: "ai_pass",
			Details: map[string]int{"candidates": len(candidates)},
			Success: true,
		})
	}

	final := findings.Normalize(run.id, violations, candidates)

	run.transition(scanCtx, StatusGeneratingReport)

	prior, err := o.store.PriorOverall(scanCtx, run.id, run.url)
	if err != nil {
		o.logger.Warn("scanner: prior score lookup failed", "scan_id", run.id, "error", err)
		prior = scoring.NoPreviousScore
	}
	score := scoring.Score(final, prior)
	wins := scoring.QuickWins(final)

	critical := 0
	for _, f := range final {
		if f.Severity == wcag.SeverityCritical {
			critical++
		}
	}
	run.mu.Lock()
	run.meta = &progress.Metadata{
		TotalViolations: len(final),
		CriticalIssues:  critical,
		QuickWins:       len(wins),
		OverallScore:    score.Overall,
	}
	run.mu.Unlock()

	if err := o.persist(scanCtx, run, final, score, critical); err != nil {
		run.fail(fmt.Sprintf("persisting results failed: %v", err), final)
		return nil
	}

	run.transition(scanCtx, StatusCompleted)
	o.events.LogEvent(scanCtx, observability.ScanEvent{
		ScanID: run.id, EventType: "scan_completed",
		Details: run.meta, Success: true,
	})
	return nil
}

// persist writes findings, score, and the terminal row with bounded retry.
// SQLite under WAL rarely needs more than one attempt; the retries cover
// busy contention from concurrent workers.
func (o *Orchestrator) persist(ctx context.Context, run *scanRun,
	final []findings.Finding, score scoring.ScanScore, critical int) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = o.persistOnce(ctx, run, final, score, critical)
		if err == nil {
			return nil
		}
		o.logger.Warn("scanner: persist attempt failed",
			"scan_id", run.id, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return err
}

func (o *Orchestrator) persistOnce(ctx context.Context, run *scanRun,
	final []findings.Finding, score scoring.ScanScore, critical int) error {
	if err := o.store.SaveFindings(ctx, run.id, final); err != nil {
		return fmt.Errorf("save findings: %w", err)
	}
	if err := o.store.SaveScore(ctx, run.id, score); err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	if err := o.store.FinishScan(ctx, run.id, string(StatusCompleted), "",
		len(final), critical); err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}
	return nil
}

type pageResult struct {
	url        string
	page       *canon.Page
	raw        []byte
	violations []rules.Violation
	err        error
}

// crawl walks the site breadth-first from the entry URL, analyzing pages with
// bounded concurrency. It returns every attempted page plus the entry page's
// rendered HTML for the AI pass. Results arriving after the scan context is
// cancelled are discarded.
func (o *Orchestrator) crawl(ctx context.Context, run *scanRun, req scanq.Request) ([]pageResult, []byte) {
	type frontierEntry struct {
		url   string
		depth int
	}

	rootKey := normalizeLink(req.URL)
	if rootKey == "" {
		rootKey = req.URL
	}
	visited := map[string]bool{rootKey: true}
	level := []frontierEntry{{url: req.URL, depth: 0}}

	run.setDiscovered(1)
	run.syncCounters(ctx)
	run.publish()

	var (
		mu       sync.Mutex
		results  []pageResult
		rootHTML []byte
	)

	concurrency := o.cfg.Crawl.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	for len(level) > 0 && len(visited) <= req.MaxPages {
		var next []frontierEntry
		var wg sync.WaitGroup

		for _, entry := range level {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return results, rootHTML
			}
			wg.Add(1)
			go func(entry frontierEntry) {
				defer wg.Done()
				defer func() { <-sem }()

				res := o.scanPage(ctx, run.id, entry.url)

				mu.Lock()
				defer mu.Unlock()
				// Once the scan deadline passed no result may land: the
				// failure path owns the terminal state from here on.
				if ctx.Err() != nil {
					return
				}
				results = append(results, res)
				if res.err == nil {
					if entry.url == req.URL {
						rootHTML = res.raw
					}
					if entry.depth < req.MaxDepth {
						for _, l := range res.page.Layout.Links {
							target := normalizeLink(l.Href)
							if !l.Internal || target == "" || visited[target] {
								continue
							}
							if len(visited) >= req.MaxPages {
								break
							}
							visited[target] = true
							next = append(next, frontierEntry{url: target, depth: entry.depth + 1})
						}
					}
				}
				run.pageDone(entry.url, res.err)
				run.setDiscovered(len(visited))
				run.syncCounters(ctx)
				run.publish()
			}(entry)
		}
		wg.Wait()
		level = next
	}
	return results, rootHTML
}

// scanPage fetches, extracts, and rule-checks one page.
func (o *Orchestrator) scanPage(ctx context.Context, scanID, pageURL string) pageResult {
	html, probeJSON, err := o.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		o.events.LogEvent(ctx, observability.ScanEvent{
			ScanID: scanID, EventType: "page_failed", PageURL: pageURL,
			Details: map[string]string{"error": err.Error()},
		})
		return pageResult{url: pageURL, err: err}
	}

	var probe *canon.Probe
	if probeJSON != "" {
		if p, perr := canon.ParseProbe([]byte(probeJSON)); perr == nil {
			probe = p
		}
	}

	page := canon.Extract(pageURL, html, probe)
	violations := o.engine.Analyze(page)
	return pageResult{url: pageURL, page: page, raw: html, violations: violations}
}

// normalizeLink strips fragments and trailing slashes so the visited set
// doesn't recrawl the same document under spelling variants.
func normalizeLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u.Fragment = ""
	s := u.String()
	if strings.HasSuffix(s, "/") && u.Path != "/" {
		s = strings.TrimSuffix(s, "/")
	}
	return s
}

// --- scanRun state helpers ---

func (r *scanRun) transition(ctx context.Context, to Status) {
	r.mu.Lock()
	if !canTransition(r.status, to) {
		r.mu.Unlock()
		return
	}
	from := r.status
	r.status = to
	r.mu.Unlock()

	if err := r.o.store.UpdateStatus(ctx, r.id, string(to)); err != nil {
		r.o.logger.Warn("scanner: status update failed",
			"scan_id", r.id, "status", to, "error", err)
	}
	r.o.events.LogEvent(ctx, observability.ScanEvent{
		ScanID: r.id, EventType: "status_change",
		Details: map[string]string{"from": string(from), "to": string(to)},
		Success: true,
	})
	r.publish()
}

// fail marks the scan failed with a human-readable reason. Partial findings
// already computed are persisted best-effort; the terminal state is always
// published.
func (r *scanRun) fail(reason string, partial []findings.Finding) {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.status = StatusFailed
	critical := 0
	for _, f := range partial {
		if f.Severity == wcag.SeverityCritical {
			critical++
		}
	}
	r.mu.Unlock()

	// The scan context may already be dead; the failure record gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r.syncCounters(ctx)
	if len(partial) > 0 {
		if err := r.o.store.SaveFindings(ctx, r.id, partial); err != nil {
			r.o.logger.Warn("scanner: partial findings not persisted",
				"scan_id", r.id, "error", err)
		}
	}
	if err := r.o.store.FinishScan(ctx, r.id, string(StatusFailed), reason,
		len(partial), critical); err != nil {
		r.o.logger.Warn("scanner: failure record not persisted",
			"scan_id", r.id, "error", err)
	}
	r.o.events.LogEvent(ctx, observability.ScanEvent{
		ScanID: r.id, EventType: "scan_failed",
		Details: map[string]string{"reason": reason},
	})
	r.o.logger.Error("scanner: scan failed", "scan_id", r.id, "reason", reason)
	r.publish()
}

func (r *scanRun) setDiscovered(n int) {
	r.mu.Lock()
	if n > r.discovered {
		r.discovered = n
	}
	r.mu.Unlock()
}

// syncCounters writes the live crawl counters to the scan row so the
// durable record matches what subscribers see. Failures are logged and
// swallowed; the broadcaster stays authoritative while the scan runs.
func (r *scanRun) syncCounters(ctx context.Context) {
	r.mu.Lock()
	discovered, crawled := r.discovered, r.crawled
	r.mu.Unlock()
	if err := r.o.store.UpdateProgress(ctx, r.id, discovered, crawled); err != nil && ctx.Err() == nil {
		r.o.logger.Warn("scanner: crawl counters not persisted",
			"scan_id", r.id, "error", err)
	}
}

func (r *scanRun) pageDone(pageURL string, err error) {
	r.mu.Lock()
	r.crawled++
	r.currentPage = pageURL
	if err != nil {
		r.errors = append(r.errors, progress.PageError{
			Page:      pageURL,
			Error:     err.Error(),
			Timestamp: time.Now(),
		})
	}
	r.mu.Unlock()
}

// publish pushes the current snapshot to the broadcaster. Progress is
// monotone while the scan advances; only failure may lower it.
func (r *scanRun) publish() {
	r.mu.Lock()
	p := progressFor(r.status, r.crawled, r.discovered)
	if r.status == StatusFailed {
		p = r.progress // failure freezes progress where it was
	} else {
		if p < r.progress {
			p = r.progress
		}
		r.progress = p
	}
	st := progress.State{
		Status:          string(r.status),
		Progress:        p,
		CurrentStep:     stepLabel(r.status),
		PagesDiscovered: r.discovered,
		PagesCrawled:    r.crawled,
		CurrentPage:     r.currentPage,
		Errors:          append([]progress.PageError(nil), r.errors...),
		Metadata:        r.meta,
	}
	r.mu.Unlock()

	r.o.bcast.Publish(r.id, st)
}
