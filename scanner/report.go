package scanner

import (
	"context"
	"errors"

	"github.com/hazyhaar/a11yscan/findings"
	"github.com/hazyhaar/a11yscan/scanner/internal/store"
	"github.com/hazyhaar/a11yscan/scoring"
)

// ErrScanNotFound is returned when a report is requested for an unknown scan.
var ErrScanNotFound = errors.New("scan not found")

// Report is the full result set for a completed scan: the scan record, its
// score set, and the ranked fix lists. Rankings are recomputed from the
// persisted findings, so a report never drifts from its findings.
type Report struct {
	Scan      *store.Scan        `json:"scan"`
	Score     *scoring.ScanScore `json:"score"`
	QuickWins []scoring.QuickWin `json:"quick_wins"`
	TopIssues []scoring.Issue    `json:"top_issues"`
	Findings  []findings.Finding `json:"findings"`
}

// BuildReport assembles the report for a scan. It works for failed scans too:
// partial findings still yield rankings, while the score stays nil.
func (o *Orchestrator) BuildReport(ctx context.Context, scanID string) (*Report, error) {
	sc, err := o.store.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, ErrScanNotFound
	}

	fs, err := o.store.ListFindings(ctx, scanID)
	if err != nil {
		return nil, err
	}
	score, err := o.store.GetScore(ctx, scanID)
	if err != nil {
		return nil, err
	}

	return &Report{
		Scan:      sc,
		Score:     score,
		QuickWins: scoring.QuickWins(fs),
		TopIssues: scoring.TopIssues(fs),
		Findings:  fs,
	}, nil
}
