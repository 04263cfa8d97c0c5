package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/a11yscan/contextual"
	"github.com/hazyhaar/a11yscan/observability"
	"github.com/hazyhaar/a11yscan/progress"
	"github.com/hazyhaar/a11yscan/scanner/internal/browser"
	"github.com/hazyhaar/a11yscan/scanner/internal/store"
	"github.com/hazyhaar/a11yscan/scanq"
)

// Service owns the scanner's process-wide resources: the SQLite file shared
// by store, queue, and observability, the browser manager, and the
// orchestrator wired on top of them. Entrypoints use Service; tests wire an
// Orchestrator directly with fakes.
type Service struct {
	cfg    Config
	o      *Orchestrator
	st     *store.Store
	queue  *scanq.Q
	mgr    *browser.Manager
	logger *slog.Logger
}

// NewService opens the store and wires the full pipeline. The AI pass is
// enabled only when a provider endpoint is configured.
func NewService(cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	db := st.DB()

	if err := observability.Init(db); err != nil {
		st.Close()
		return nil, fmt.Errorf("observability init: %w", err)
	}
	queue := scanq.New(db, scanq.Options{Logger: logger})

	cfg.Browser.Logger = logger
	mgr := browser.NewManager(cfg.Browser)

	var analyzer *contextual.Analyzer
	if cfg.AI.Provider.Endpoint != "" {
		cfg.AI.Logger = logger
		analyzer = contextual.New(cfg.AI, contextual.NewProvider(cfg.AI.Provider))
		logger.Info("scanner: AI pass enabled",
			"endpoint", cfg.AI.Provider.Endpoint, "model", cfg.AI.Provider.Model)
	} else {
		logger.Info("scanner: AI pass disabled (no provider endpoint)")
	}

	bcast := progress.New(progress.Options{TTL: cfg.Progress.TTL, Logger: logger})
	events := observability.NewEventLogger(db)
	o := NewOrchestrator(cfg, st, queue, &RodFetcher{Mgr: mgr},
		analyzer, bcast, events, logger)

	return &Service{
		cfg:    cfg,
		o:      o,
		st:     st,
		queue:  queue,
		mgr:    mgr,
		logger: logger,
	}, nil
}

// Orchestrator exposes the wired orchestrator for API and MCP surfaces.
func (s *Service) Orchestrator() *Orchestrator { return s.o }

// Start launches the browser, the queue consumer, and the heartbeat writer.
// Workers run until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if err := s.queue.EnsureTable(ctx); err != nil {
		return fmt.Errorf("queue init: %w", err)
	}
	if err := s.mgr.Start(ctx); err != nil {
		return fmt.Errorf("browser start: %w", err)
	}
	go observability.NewHeartbeatWriter(s.st.DB(), "a11yscan", 15*time.Second).Run(ctx)
	go s.o.Run(ctx)
	return nil
}

// Stop releases the browser and the database.
func (s *Service) Stop() {
	if err := s.mgr.Close(); err != nil {
		s.logger.Warn("scanner: browser close", "error", err)
	}
	if err := s.st.Close(); err != nil {
		s.logger.Warn("scanner: store close", "error", err)
	}
}
