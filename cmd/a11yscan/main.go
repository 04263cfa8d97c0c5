// Command a11yscan runs the accessibility scanner: HTTP API, queue workers,
// and optionally the MCP tool surface on stdio.
//
// Usage:
//
//	a11yscan -config a11yscan.yaml          # serve the API and work the queue
//	a11yscan -url https://example.com       # scan one site and exit
//	a11yscan -config a11yscan.yaml -mcp     # additionally serve MCP on stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/a11yscan/progress"
	"github.com/hazyhaar/a11yscan/scanner"
)

func main() {
	configPath := flag.String("config", "", "path to a11yscan.yaml config file")
	singleURL := flag.String("url", "", "scan a single URL, print the result, and exit")
	serveMCP := flag.Bool("mcp", false, "also serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *serveMCP); err != nil {
		logger.Error("a11yscan: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL string, serveMCP bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svc, err := scanner.NewService(*cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Stop()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	o := svc.Orchestrator()

	if singleURL != "" {
		return runSingle(ctx, logger, o, singleURL)
	}

	if serveMCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "a11yscan",
			Version: "1.0.0",
		}, nil)
		o.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("a11yscan: MCP server", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           o.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("a11yscan: listening", "addr", cfg.Listen, "db", cfg.DBPath)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runSingle queues one scan and follows its progress until it finishes.
func runSingle(ctx context.Context, logger *slog.Logger, o *scanner.Orchestrator, url string) error {
	id, err := o.StartScan(ctx, url, 0, 0)
	if err != nil {
		return err
	}
	logger.Info("a11yscan: scan queued", "scan_id", id, "url", url)

	done := make(chan progress.State, 1)
	unsub := o.Broadcaster().Subscribe(id, func(st progress.State) {
		logger.Info("a11yscan: progress",
			"status", st.Status, "progress", st.Progress,
			"crawled", st.PagesCrawled, "discovered", st.PagesDiscovered)
		if st.Terminal() {
			select {
			case done <- st:
			default:
			}
		}
	})
	defer unsub()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case final := <-done:
		if final.Status == "failed" {
			return errors.New("scan failed")
		}
		printReport(ctx, o, id)
		return nil
	}
}

func printReport(ctx context.Context, o *scanner.Orchestrator, id string) {
	rep, err := o.BuildReport(ctx, id)
	if err != nil || rep.Score == nil {
		return
	}
	score := rep.Score
	fmt.Printf("Overall score:   %d (P %d / O %d / U %d / R %d)\n",
		score.Overall, score.Perceivable, score.Operable, score.Understandable, score.Robust)
	fmt.Printf("Compliance:      A=%v AA=%v AAA=%v\n",
		score.CompliantA, score.CompliantAA, score.CompliantAAA)
	fmt.Printf("Findings:        %d\n", len(rep.Findings))
	for _, f := range rep.Findings {
		fmt.Printf("  [%s] %s %s: %s\n", f.SeverityLabel, f.RuleID, f.Element.Selector, f.Description)
	}
	for _, w := range rep.QuickWins {
		fmt.Printf("Quick win: %s x%d (~%d min, +%d)\n", w.RuleID, w.Count, w.FixMinutes, w.ScoreGain)
	}
}

func loadConfig(path string) (*scanner.Config, error) {
	if path != "" {
		return scanner.LoadConfig(path)
	}
	return scanner.DefaultConfig(), nil
}
