// Package store persists scans, findings, and scores in SQLite. Findings are
// stored as JSON payloads with indexed columns for the query paths the API
// and MCP tools actually use.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/a11yscan/dbopen"
	"github.com/hazyhaar/a11yscan/findings"
	"github.com/hazyhaar/a11yscan/scoring"
)

// Schema contains the DDL for the scan tables.
const Schema = `
CREATE TABLE IF NOT EXISTS scans (
    id               TEXT PRIMARY KEY,
    url              TEXT NOT NULL,
    status           TEXT NOT NULL,
    error            TEXT,
    pages_discovered INTEGER NOT NULL DEFAULT 0,
    pages_crawled    INTEGER NOT NULL DEFAULT 0,
    total_violations INTEGER NOT NULL DEFAULT 0,
    critical_issues  INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    finished_at      INTEGER
);
CREATE INDEX IF NOT EXISTS idx_scans_url_created ON scans(url, created_at DESC);

CREATE TABLE IF NOT EXISTS scan_findings (
    id        TEXT PRIMARY KEY,
    scan_id   TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
    rule_id   TEXT NOT NULL,
    severity  INTEGER NOT NULL,
    page_url  TEXT NOT NULL,
    payload   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_findings_scan ON scan_findings(scan_id, severity DESC);

CREATE TABLE IF NOT EXISTS scan_scores (
    scan_id        TEXT PRIMARY KEY REFERENCES scans(id) ON DELETE CASCADE,
    perceivable    INTEGER NOT NULL,
    operable       INTEGER NOT NULL,
    understandable INTEGER NOT NULL,
    robust         INTEGER NOT NULL,
    overall        INTEGER NOT NULL,
    compliant_a    INTEGER NOT NULL,
    compliant_aa   INTEGER NOT NULL,
    compliant_aaa  INTEGER NOT NULL,
    improvement    INTEGER NOT NULL,
    trend          TEXT NOT NULL,
    created_at     INTEGER NOT NULL
);
`

// Scan is one scan record.
type Scan struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	Status          string     `json:"status"`
	Error           string     `json:"error,omitempty"`
	PagesDiscovered int        `json:"pages_discovered"`
	PagesCrawled    int        `json:"pages_crawled"`
	TotalViolations int        `json:"total_violations"`
	CriticalIssues  int        `json:"critical_issues"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Store wraps the scan database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the scan database at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing database and applies the schema. Used by tests
// and by callers that share one SQLite file across components.
func NewWithDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle so collaborators (queue, observability)
// can share the same file.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// CreateScan inserts a new scan in the given initial status.
func (s *Store) CreateScan(ctx context.Context, id, url, status string) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO scans (id, url, status, created_at) VALUES (?,?,?,?)`,
		id, url, status, time.Now().Unix())
	return err
}

// UpdateStatus sets the scan's status.
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	return s.expectOneRow(ctx,
		`UPDATE scans SET status = ? WHERE id = ?`, status, id)
}

// UpdateProgress records the crawl counters.
func (s *Store) UpdateProgress(ctx context.Context, id string, discovered, crawled int) error {
	return s.expectOneRow(ctx,
		`UPDATE scans SET pages_discovered = ?, pages_crawled = ? WHERE id = ?`,
		discovered, crawled, id)
}

// FinishScan marks the scan terminal with its summary counters. errMsg is
// empty for completed scans.
func (s *Store) FinishScan(ctx context.Context, id, status, errMsg string, totalViolations, criticalIssues int) error {
	return s.expectOneRow(ctx, `
		UPDATE scans SET status = ?, error = NULLIF(?, ''), total_violations = ?,
			critical_issues = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, totalViolations, criticalIssues, time.Now().Unix(), id)
}

func (s *Store) expectOneRow(ctx context.Context, query string, args ...any) error {
	res, err := dbopen.Exec(ctx, s.db, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("store: scan not found")
	}
	return nil
}

// GetScan returns a scan by id, or nil if it doesn't exist.
func (s *Store) GetScan(ctx context.Context, id string) (*Scan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, status, COALESCE(error, ''), pages_discovered,
			pages_crawled, total_violations, critical_issues, created_at, finished_at
		FROM scans WHERE id = ?`, id)

	var sc Scan
	var created int64
	var finished sql.NullInt64
	err := row.Scan(&sc.ID, &sc.URL, &sc.Status, &sc.Error, &sc.PagesDiscovered,
		&sc.PagesCrawled, &sc.TotalViolations, &sc.CriticalIssues, &created, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sc.CreatedAt = time.Unix(created, 0)
	if finished.Valid {
		t := time.Unix(finished.Int64, 0)
		sc.FinishedAt = &t
	}
	return &sc, nil
}

// SaveFindings replaces the scan's findings in one transaction.
func (s *Store) SaveFindings(ctx context.Context, scanID string, fs []findings.Finding) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM scan_findings WHERE scan_id = ?`, scanID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO scan_findings (id, scan_id, rule_id, severity, page_url, payload)
			VALUES (?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, f := range fs {
			payload, err := json.Marshal(f)
			if err != nil {
				return fmt.Errorf("marshal finding %s: %w", f.ID, err)
			}
			if _, err := stmt.ExecContext(ctx,
				f.ID, scanID, string(f.RuleID), int(f.Severity), f.PageURL, string(payload)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListFindings returns the scan's findings, most severe first.
func (s *Store) ListFindings(ctx context.Context, scanID string) ([]findings.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM scan_findings WHERE scan_id = ?
		ORDER BY severity DESC, id ASC`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []findings.Finding{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var f findings.Finding
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return nil, fmt.Errorf("store: corrupt finding payload: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveScore upserts the scan's score set.
func (s *Store) SaveScore(ctx context.Context, scanID string, sc scoring.ScanScore) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO scan_scores (scan_id, perceivable, operable, understandable,
			robust, overall, compliant_a, compliant_aa, compliant_aaa,
			improvement, trend, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(scan_id) DO UPDATE SET
			perceivable = excluded.perceivable,
			operable = excluded.operable,
			understandable = excluded.understandable,
			robust = excluded.robust,
			overall = excluded.overall,
			compliant_a = excluded.compliant_a,
			compliant_aa = excluded.compliant_aa,
			compliant_aaa = excluded.compliant_aaa,
			improvement = excluded.improvement,
			trend = excluded.trend`,
		scanID, sc.Perceivable, sc.Operable, sc.Understandable, sc.Robust,
		sc.Overall, sc.CompliantA, sc.CompliantAA, sc.CompliantAAA,
		sc.Improvement, string(sc.Trend), time.Now().Unix())
	return err
}

// GetScore returns the score set for a scan, or nil if none was saved.
func (s *Store) GetScore(ctx context.Context, scanID string) (*scoring.ScanScore, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT perceivable, operable, understandable, robust, overall,
			compliant_a, compliant_aa, compliant_aaa, improvement, trend
		FROM scan_scores WHERE scan_id = ?`, scanID)

	var sc scoring.ScanScore
	var trend string
	err := row.Scan(&sc.Perceivable, &sc.Operable, &sc.Understandable, &sc.Robust,
		&sc.Overall, &sc.CompliantA, &sc.CompliantAA, &sc.CompliantAAA,
		&sc.Improvement, &trend)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sc.Trend = scoring.TrendDirection(trend)
	return &sc, nil
}

// PriorOverall returns the overall score of the most recent completed scan of
// the same URL before the given scan, or scoring.NoPreviousScore if none.
func (s *Store) PriorOverall(ctx context.Context, scanID, url string) (int, error) {
	var overall int
	err := s.db.QueryRowContext(ctx, `
		SELECT sc.overall FROM scan_scores sc
		JOIN scans s ON s.id = sc.scan_id
		WHERE s.url = ? AND s.id != ? AND s.status = 'completed'
		ORDER BY s.created_at DESC LIMIT 1`, url, scanID).Scan(&overall)
	if errors.Is(err, sql.ErrNoRows) {
		return scoring.NoPreviousScore, nil
	}
	if err != nil {
		return scoring.NoPreviousScore, err
	}
	return overall, nil
}
