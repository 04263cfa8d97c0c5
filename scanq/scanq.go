// Package scanq is a SQLite-backed scan job queue with visibility timeouts.
//
// A claimed job turns invisible for the visibility window. If the worker
// finishes it acks (deletes) the row; if the worker dies or the window
// expires the job reappears and another worker can claim it. Long scans keep
// the claim alive by extending the window (heartbeat).
//
// The queue is pure SQLite, no external broker.
//
// Schema (created by EnsureTable):
//
//	CREATE TABLE IF NOT EXISTS scan_jobs (
//	    id          TEXT PRIMARY KEY,           -- scan id
//	    request     TEXT NOT NULL,              -- JSON Request
//	    visible_at  INTEGER NOT NULL DEFAULT 0, -- milliseconds since epoch
//	    created_at  INTEGER NOT NULL,
//	    attempts    INTEGER NOT NULL DEFAULT 0
//	);
package scanq

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Request describes one scan to run. The scan id doubles as the job id, so
// enqueueing the same scan twice is a constraint violation rather than a
// duplicate run.
type Request struct {
	ScanID      string        `json:"scan_id"`
	URL         string        `json:"url"`
	MaxDepth    int           `json:"max_depth"`
	MaxPages    int           `json:"max_pages"`
	MaxDuration time.Duration `json:"max_duration"`
}

// Job is a claimed queue row with its decoded request.
type Job struct {
	Request   Request
	VisibleAt time.Time
	CreatedAt time.Time
	Attempts  int
}

// Options configures queue behaviour.
type Options struct {
	// Visibility is how long a claimed job stays invisible. Default: 2m,
	// generous because a full crawl holds the claim. Extend for longer scans.
	Visibility time.Duration
	// PollInterval is the delay between claim attempts in the Run loop.
	// Default: 1s.
	PollInterval time.Duration
	// MaxAttempts limits redeliveries before a job is discarded.
	// 0 means unlimited. Default: 0.
	MaxAttempts int
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 2 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Q is the queue handle.
type Q struct {
	db   *sql.DB
	opts Options
}

// New creates a queue handle. Call EnsureTable once at startup.
func New(db *sql.DB, opts Options) *Q {
	opts.defaults()
	return &Q{db: db, opts: opts}
}

// EnsureTable creates the scan_jobs table and index if they don't exist.
func (q *Q) EnsureTable(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scan_jobs (
			id          TEXT PRIMARY KEY,
			request     TEXT NOT NULL,
			visible_at  INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			attempts    INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_scan_jobs_visible ON scan_jobs (visible_at);
	`)
	return err
}

// Enqueue inserts a scan request that is immediately visible.
func (q *Q) Enqueue(ctx context.Context, req Request) error {
	if req.ScanID == "" {
		return errors.New("scanq: request has no scan id")
	}
	if req.URL == "" {
		return errors.New("scanq: request has no url")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("scanq: marshal request: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO scan_jobs (id, request, visible_at, created_at) VALUES (?,?,?,?)`,
		req.ScanID, string(payload), now, now,
	)
	return err
}

// Claim atomically picks the oldest visible job, hides it for the visibility
// window, and returns it. Returns nil, nil when nothing is available.
func (q *Q) Claim(ctx context.Context) (*Job, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		UPDATE scan_jobs
		SET visible_at = ?, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM scan_jobs
			WHERE visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT 1
		)
		RETURNING request, visible_at, created_at, attempts`,
		hideUntil, now.UnixMilli(),
	)

	var j Job
	var payload string
	var visAt, creAt int64
	err := row.Scan(&payload, &visAt, &creAt, &j.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &j.Request); err != nil {
		return nil, fmt.Errorf("scanq: corrupt request payload: %w", err)
	}
	j.VisibleAt = time.UnixMilli(visAt)
	j.CreatedAt = time.UnixMilli(creAt)
	return &j, nil
}

// Ack deletes a finished job.
func (q *Q) Ack(ctx context.Context, scanID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM scan_jobs WHERE id = ?`, scanID)
	return err
}

// Nack makes a job immediately visible again.
func (q *Q) Nack(ctx context.Context, scanID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE scan_jobs SET visible_at = 0 WHERE id = ?`, scanID)
	return err
}

// Extend pushes the visibility window forward for a scan that needs more
// time (heartbeat pattern).
func (q *Q) Extend(ctx context.Context, scanID string, extra time.Duration) error {
	hideUntil := time.Now().Add(extra).UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`UPDATE scan_jobs SET visible_at = ? WHERE id = ?`, hideUntil, scanID)
	return err
}

// Len returns the total number of jobs (visible + invisible).
func (q *Q) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_jobs`).Scan(&n)
	return n, err
}

// Handler runs one claimed scan. Return nil to ack, non-nil to nack.
type Handler func(ctx context.Context, job *Job) error

// Run polls for visible jobs and calls handler for each. It blocks until ctx
// is cancelled. Jobs that exceed MaxAttempts are discarded with a warning:
// a scan that keeps crashing its worker must not poison the queue.
func (q *Q) Run(ctx context.Context, handler Handler) {
	log := q.opts.Logger
	log.Info("scanq: consumer started",
		"visibility", q.opts.Visibility, "poll", q.opts.PollInterval)

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scanq: consumer stopped")
			return
		case <-ticker.C:
			q.poll(ctx, handler, log)
		}
	}
}

func (q *Q) poll(ctx context.Context, handler Handler, log *slog.Logger) {
	for {
		job, err := q.Claim(ctx)
		if err != nil {
			log.Warn("scanq: claim failed", "error", err)
			return
		}
		if job == nil {
			return // nothing visible
		}

		id := job.Request.ScanID
		if q.opts.MaxAttempts > 0 && job.Attempts > q.opts.MaxAttempts {
			log.Warn("scanq: scan exceeded max attempts, discarding",
				"scan_id", id, "attempts", job.Attempts)
			_ = q.Ack(ctx, id)
			continue
		}

		if err := handler(ctx, job); err != nil {
			log.Warn("scanq: handler failed, nacking", "scan_id", id, "error", err)
			_ = q.Nack(ctx, id)
		} else {
			_ = q.Ack(ctx, id)
		}
	}
}
