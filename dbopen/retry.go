package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Scan persistence contends on a single SQLite file: the orchestrator
// writes findings while HTTP handlers read scan rows. Locking errors
// from that contention are transient, so writes get a short linear
// backoff before giving up.
const (
	busyAttempts = 3
	busyBackoff  = 100 * time.Millisecond
)

// IsBusy reports whether err is a transient SQLite locking error worth
// retrying.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"SQLITE_BUSY", "database is locked", "database table is locked"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RunTx runs fn inside a transaction, retrying the whole transaction
// when SQLite reports the database busy. fn must be safe to re-run.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		if err = attemptTx(ctx, db, fn); err == nil || !IsBusy(err) {
			return err
		}
		if attempt < busyAttempts {
			if werr := waitBackoff(ctx, attempt); werr != nil {
				return fmt.Errorf("dbopen: context cancelled during retry: %w", werr)
			}
		}
	}
	return fmt.Errorf("dbopen: RunTx gave up after %d busy attempts: %w", busyAttempts, err)
}

func attemptTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// Exec runs a single statement with the same busy-retry policy as
// RunTx.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var (
		res sql.Result
		err error
	)
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		if res, err = db.ExecContext(ctx, query, args...); err == nil || !IsBusy(err) {
			return res, err
		}
		if attempt < busyAttempts {
			if werr := waitBackoff(ctx, attempt); werr != nil {
				return nil, fmt.Errorf("dbopen: context cancelled during retry: %w", werr)
			}
		}
	}
	return nil, fmt.Errorf("dbopen: Exec gave up after %d busy attempts: %w", busyAttempts, err)
}

// waitBackoff sleeps attempt*busyBackoff or until ctx is done.
func waitBackoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt) * busyBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
