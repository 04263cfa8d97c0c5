// Package observability records scan lifecycle events and worker liveness in
// SQLite. Persistence never propagates errors: a failing observability store
// must not break a scan, so failures go to slog and the caller moves on.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/hazyhaar/a11yscan/idgen"
)

// Schema contains the DDL for the observability tables. Call Init(db) to
// apply it, or embed the constant in your own schema management.
const Schema = `
-- Scan lifecycle events
CREATE TABLE IF NOT EXISTS scan_event_logs (
    event_id   TEXT PRIMARY KEY,
    scan_id    TEXT NOT NULL,
    event_type TEXT NOT NULL,
    page_url   TEXT,
    details    TEXT,
    success    INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_scan_events_scan
    ON scan_event_logs(scan_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_scan_events_type
    ON scan_event_logs(event_type, created_at DESC);

-- Worker liveness heartbeats
CREATE TABLE IF NOT EXISTS worker_heartbeats (
    heartbeat_id TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
    worker_name  TEXT NOT NULL,
    hostname     TEXT NOT NULL,
    worker_pid   INTEGER NOT NULL,
    timestamp    INTEGER NOT NULL,
    goroutines_count INTEGER,
    memory_alloc_mb  REAL,
    created_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
    ON worker_heartbeats(worker_name, timestamp DESC);
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// ScanEvent is one lifecycle event of a scan: a state transition, a page
// failure, an AI pass outcome.
type ScanEvent struct {
	ScanID    string
	EventType string // e.g. "status_change", "page_failed", "ai_skipped"
	PageURL   string
	Details   any // marshalled to JSON when non-nil
	Success   bool
}

// EventLogger writes scan events. Safe for concurrent use.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger backed by the given database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records a scan event. Errors are logged via slog but do not
// propagate.
func (l *EventLogger) LogEvent(ctx context.Context, event ScanEvent) {
	var details string
	if event.Details != nil {
		if b, err := json.Marshal(event.Details); err == nil {
			details = string(b)
		}
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO scan_event_logs (
			event_id, scan_id, event_type, page_url, details, success, created_at
		) VALUES (?,?,?,?,?,?,?)`,
		l.newID(), event.ScanID, event.EventType, event.PageURL,
		details, event.Success, time.Now().Unix())
	if err != nil {
		slog.Error("observability: event log failed",
			"error", err, "scan_id", event.ScanID, "event_type", event.EventType)
	}
}

// EventCount returns how many events of one type a scan has recorded.
func (l *EventLogger) EventCount(ctx context.Context, scanID, eventType string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scan_event_logs WHERE scan_id = ? AND event_type = ?`,
		scanID, eventType).Scan(&n)
	return n, err
}

// HeartbeatWriter writes periodic liveness probes for a scan worker.
type HeartbeatWriter struct {
	db         *sql.DB
	workerName string
	hostname   string
	workerPID  int
	interval   time.Duration
}

// NewHeartbeatWriter creates a writer. Recommended interval: 15s.
func NewHeartbeatWriter(db *sql.DB, workerName string, interval time.Duration) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &HeartbeatWriter{
		db:         db,
		workerName: workerName,
		hostname:   hostname,
		workerPID:  os.Getpid(),
		interval:   interval,
	}
}

// WriteHeartbeat writes a single heartbeat row with current runtime stats.
func (hw *HeartbeatWriter) WriteHeartbeat() error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	_, err := hw.db.Exec(`
		INSERT INTO worker_heartbeats (
			worker_name, hostname, worker_pid, timestamp,
			goroutines_count, memory_alloc_mb
		) VALUES (?,?,?,?,?,?)`,
		hw.workerName, hw.hostname, hw.workerPID, time.Now().Unix(),
		runtime.NumGoroutine(), float64(mem.Alloc)/1024/1024)
	return err
}

// Run writes one heartbeat immediately, then repeats at the configured
// interval until ctx is cancelled.
func (hw *HeartbeatWriter) Run(ctx context.Context) {
	if err := hw.WriteHeartbeat(); err != nil {
		slog.Error("observability: heartbeat failed", "error", err, "worker", hw.workerName)
	}
	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := hw.WriteHeartbeat(); err != nil {
				slog.Error("observability: heartbeat failed", "error", err, "worker", hw.workerName)
			}
		}
	}
}
