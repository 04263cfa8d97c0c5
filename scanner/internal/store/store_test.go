package store

import (
	"context"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/a11yscan/dbopen"
	"github.com/hazyhaar/a11yscan/findings"
	"github.com/hazyhaar/a11yscan/scoring"
	"github.com/hazyhaar/a11yscan/wcag"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	s, err := NewWithDB(db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestScanLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.CreateScan(ctx, "s1", "https://example.com", "queued"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(ctx, "s1", "crawling"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateProgress(ctx, "s1", 8, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishScan(ctx, "s1", "completed", "", 12, 2); err != nil {
		t.Fatal(err)
	}

	sc, err := s.GetScan(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sc == nil {
		t.Fatal("scan not found")
	}
	if sc.Status != "completed" || sc.TotalViolations != 12 || sc.CriticalIssues != 2 {
		t.Errorf("scan = %+v", sc)
	}
	if sc.PagesDiscovered != 8 || sc.PagesCrawled != 3 {
		t.Errorf("crawl counters = %d/%d, want 8/3", sc.PagesDiscovered, sc.PagesCrawled)
	}
	if sc.Error != "" {
		t.Errorf("completed scan has error %q", sc.Error)
	}
	if sc.FinishedAt == nil {
		t.Error("finished scan has no finish time")
	}
}

func TestFinishScanWithError(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.CreateScan(ctx, "s1", "https://example.com", "queued"); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishScan(ctx, "s1", "failed", "browser session failed", 0, 0); err != nil {
		t.Fatal(err)
	}
	sc, _ := s.GetScan(ctx, "s1")
	if sc.Status != "failed" || sc.Error != "browser session failed" {
		t.Errorf("scan = %+v", sc)
	}
}

func TestUpdateMissingScan(t *testing.T) {
	s := openStore(t)
	if err := s.UpdateStatus(context.Background(), "nope", "crawling"); err == nil {
		t.Error("updating a missing scan should fail")
	}
}

func TestGetScanMissing(t *testing.T) {
	s := openStore(t)
	sc, err := s.GetScan(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if sc != nil {
		t.Errorf("got %+v, want nil", sc)
	}
}

func TestFindingsRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.CreateScan(ctx, "s1", "https://example.com", "completed"); err != nil {
		t.Fatal(err)
	}
	fs := []findings.Finding{
		{
			ID: "s1_img-missing-alt_001", Source: findings.SourceRule,
			RuleID: wcag.RuleImgMissingAlt, Criterion: "1.1.1",
			Level: wcag.LevelA, Category: wcag.Perceivable,
			Severity: wcag.SeverityCritical, SeverityLabel: "critical",
			PageURL: "https://example.com", Confidence: 1,
		},
		{
			ID: "s1_link-text-nondescriptive_001", Source: findings.SourceAI,
			RuleID: wcag.RuleLinkTextNondescriptive, Criterion: "2.4.4",
			Level: wcag.LevelA, Category: wcag.Operable,
			Severity: wcag.SeverityModerate, SeverityLabel: "moderate",
			PageURL: "https://example.com", Confidence: 0.7,
		},
	}
	if err := s.SaveFindings(ctx, "s1", fs); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListFindings(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d findings, want 2", len(got))
	}
	// Most severe first.
	if got[0].RuleID != wcag.RuleImgMissingAlt {
		t.Errorf("critical finding should sort first, got %s", got[0].RuleID)
	}

	// Saving again replaces, not appends.
	if err := s.SaveFindings(ctx, "s1", fs[:1]); err != nil {
		t.Fatal(err)
	}
	got, _ = s.ListFindings(ctx, "s1")
	if len(got) != 1 {
		t.Errorf("re-save left %d findings, want 1", len(got))
	}
}

func TestScoreRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.CreateScan(ctx, "s1", "https://example.com", "completed"); err != nil {
		t.Fatal(err)
	}
	want := scoring.ScanScore{
		Perceivable: 92, Operable: 98, Understandable: 100, Robust: 87,
		Overall: 94, CompliantA: true, CompliantAA: false, CompliantAAA: false,
		Improvement: -3, Trend: scoring.TrendDeclining,
	}
	if err := s.SaveScore(ctx, "s1", want); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetScore(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("score not found")
	}
	// Integer category scores survive the round trip exactly.
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("round trip changed the score:\ngot  %+v\nwant %+v", *got, want)
	}
}

func TestPriorOverall(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	// No prior scan of the URL.
	prior, err := s.PriorOverall(ctx, "s2", "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if prior != scoring.NoPreviousScore {
		t.Errorf("prior = %d, want NoPreviousScore", prior)
	}

	if err := s.CreateScan(ctx, "s1", "https://example.com", "queued"); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishScan(ctx, "s1", "completed", "", 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveScore(ctx, "s1", scoring.ScanScore{Overall: 88, Trend: scoring.TrendStable}); err != nil {
		t.Fatal(err)
	}

	prior, err = s.PriorOverall(ctx, "s2", "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if prior != 88 {
		t.Errorf("prior = %d, want 88", prior)
	}

	// A scan must not see its own score as prior.
	prior, err = s.PriorOverall(ctx, "s1", "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if prior != scoring.NoPreviousScore {
		t.Errorf("own score leaked as prior: %d", prior)
	}
}
