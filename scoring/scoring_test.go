package scoring

import (
	"fmt"
	"testing"

	"github.com/hazyhaar/a11yscan/findings"
	"github.com/hazyhaar/a11yscan/wcag"
)

func finding(rule wcag.RuleID, cat wcag.Category, level wcag.Level, sev wcag.Severity, risk wcag.LegalRisk) findings.Finding {
	return findings.Finding{
		RuleID:    rule,
		Category:  cat,
		Level:     level,
		Severity:  sev,
		LegalRisk: risk,
	}
}

func TestScoreEmpty(t *testing.T) {
	s := Score(nil, NoPreviousScore)
	for _, c := range wcag.Categories {
		if got := s.Category(c); got != 100 {
			t.Errorf("category %s = %d, want 100", c, got)
		}
	}
	if s.Overall != 100 {
		t.Errorf("overall = %d, want 100", s.Overall)
	}
	if !s.CompliantA || !s.CompliantAA || !s.CompliantAAA {
		t.Errorf("empty scan should be fully compliant, got %+v", s)
	}
	if s.Trend != TrendStable || s.Improvement != 0 {
		t.Errorf("no prior score should be stable, got trend=%s improvement=%d", s.Trend, s.Improvement)
	}
}

func TestScoreCategoryPenalty(t *testing.T) {
	fs := []findings.Finding{
		// critical, high risk: 4 * 2 = 8
		finding(wcag.RuleImgMissingAlt, wcag.Perceivable, wcag.LevelA, wcag.SeverityCritical, wcag.RiskHigh),
		// moderate, medium risk: 2 * 1 = 2
		finding(wcag.RuleLinkTextNondescriptive, wcag.Operable, wcag.LevelA, wcag.SeverityModerate, wcag.RiskMedium),
	}
	s := Score(fs, NoPreviousScore)
	if s.Perceivable != 92 {
		t.Errorf("perceivable = %d, want 92", s.Perceivable)
	}
	if s.Operable != 98 {
		t.Errorf("operable = %d, want 98", s.Operable)
	}
	if s.Understandable != 100 || s.Robust != 100 {
		t.Errorf("untouched categories should stay 100, got %+v", s)
	}
	// mean of 92, 98, 100, 100 = 97.5 rounds to 98
	if s.Overall != 98 {
		t.Errorf("overall = %d, want 98", s.Overall)
	}
}

func TestScoreFloorsAtZero(t *testing.T) {
	var fs []findings.Finding
	for i := 0; i < 20; i++ {
		fs = append(fs, finding(wcag.RuleImgMissingAlt, wcag.Perceivable, wcag.LevelA, wcag.SeverityCritical, wcag.RiskHigh))
	}
	s := Score(fs, NoPreviousScore)
	if s.Perceivable != 0 {
		t.Errorf("perceivable = %d, want floor 0", s.Perceivable)
	}
}

func TestScoreCompliance(t *testing.T) {
	// One serious AA finding breaks AA and AAA but leaves A intact.
	fs := []findings.Finding{
		finding(wcag.RuleContrastInsufficient, wcag.Perceivable, wcag.LevelAA, wcag.SeveritySerious, wcag.RiskHigh),
	}
	s := Score(fs, NoPreviousScore)
	if !s.CompliantA {
		t.Error("serious AA finding should not break level A")
	}
	if s.CompliantAA {
		t.Error("serious AA finding should break level AA")
	}
	if s.CompliantAAA {
		t.Error("serious AA finding should break level AAA")
	}

	// A moderate finding breaks nothing, whatever its level.
	fs = []findings.Finding{
		finding(wcag.RuleLinkTextNondescriptive, wcag.Operable, wcag.LevelA, wcag.SeverityModerate, wcag.RiskMedium),
	}
	s = Score(fs, NoPreviousScore)
	if !s.CompliantA || !s.CompliantAA || !s.CompliantAAA {
		t.Errorf("moderate finding should break no level, got %+v", s)
	}

	// A critical level-A finding breaks all three.
	fs = []findings.Finding{
		finding(wcag.RuleImgMissingAlt, wcag.Perceivable, wcag.LevelA, wcag.SeverityCritical, wcag.RiskHigh),
	}
	s = Score(fs, NoPreviousScore)
	if s.CompliantA || s.CompliantAA || s.CompliantAAA {
		t.Errorf("critical level-A finding should break every level, got %+v", s)
	}
}

func TestScoreTrend(t *testing.T) {
	fs := []findings.Finding{
		finding(wcag.RuleImgMissingAlt, wcag.Perceivable, wcag.LevelA, wcag.SeverityCritical, wcag.RiskHigh),
	}
	s := Score(fs, 90) // overall will be 98
	if s.Trend != TrendImproving || s.Improvement != 8 {
		t.Errorf("trend = %s improvement = %d, want improving +8", s.Trend, s.Improvement)
	}
	s = Score(fs, 100)
	if s.Trend != TrendDeclining || s.Improvement != -2 {
		t.Errorf("trend = %s improvement = %d, want declining -2", s.Trend, s.Improvement)
	}
	s = Score(fs, 98)
	if s.Trend != TrendStable || s.Improvement != 0 {
		t.Errorf("trend = %s improvement = %d, want stable 0", s.Trend, s.Improvement)
	}
}

func TestScoreSkipsFalsePositives(t *testing.T) {
	f := finding(wcag.RuleImgMissingAlt, wcag.Perceivable, wcag.LevelA, wcag.SeverityCritical, wcag.RiskHigh)
	f.FalsePositive = true
	s := Score([]findings.Finding{f}, NoPreviousScore)
	if s.Perceivable != 100 || !s.CompliantA {
		t.Errorf("false positive should not count, got %+v", s)
	}
}

func TestQuickWinsTopFive(t *testing.T) {
	var fs []findings.Finding
	// Seven quick-win rule groups with distinct gains: rule i contributes
	// i+1 moderate instances, gain (i+1)*4.
	for i := 0; i < 7; i++ {
		rule := wcag.RuleID(fmt.Sprintf("rule-%d", i))
		for j := 0; j <= i; j++ {
			f := finding(rule, wcag.Operable, wcag.LevelA, wcag.SeverityModerate, wcag.RiskMedium)
			f.QuickWin = true
			f.FixMinutes = 5
			fs = append(fs, f)
		}
	}
	wins := QuickWins(fs)
	if len(wins) != 5 {
		t.Fatalf("got %d quick wins, want 5", len(wins))
	}
	for i := 1; i < len(wins); i++ {
		if wins[i].ScoreGain > wins[i-1].ScoreGain {
			t.Errorf("quick wins out of order at %d: %d > %d", i, wins[i].ScoreGain, wins[i-1].ScoreGain)
		}
	}
	top := wins[0]
	if top.RuleID != "rule-6" || top.Count != 7 || top.ScoreGain != 28 || top.FixMinutes != 35 {
		t.Errorf("top win = %+v, want rule-6 count=7 gain=28 minutes=35", top)
	}
	// rule-0 and rule-1 have the smallest gains and must be cut.
	for _, w := range wins {
		if w.RuleID == "rule-0" || w.RuleID == "rule-1" {
			t.Errorf("rule %s should have been trimmed", w.RuleID)
		}
	}
}

func TestQuickWinsSkipsNonWins(t *testing.T) {
	fs := []findings.Finding{
		finding(wcag.RuleContrastInsufficient, wcag.Perceivable, wcag.LevelAA, wcag.SeveritySerious, wcag.RiskHigh),
	}
	if wins := QuickWins(fs); len(wins) != 0 {
		t.Errorf("non-quick-win findings should produce no entries, got %+v", wins)
	}
}

func TestTopIssuesOrdering(t *testing.T) {
	var fs []findings.Finding
	// One high-risk group with a single instance and one medium-risk group
	// with many: risk outranks count.
	fs = append(fs, finding(wcag.RuleImgMissingAlt, wcag.Perceivable, wcag.LevelA, wcag.SeverityCritical, wcag.RiskHigh))
	for i := 0; i < 10; i++ {
		fs = append(fs, finding(wcag.RuleLinkTextNondescriptive, wcag.Operable, wcag.LevelA, wcag.SeverityModerate, wcag.RiskMedium))
	}
	issues := TopIssues(fs)
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2", len(issues))
	}
	if issues[0].RuleID != wcag.RuleImgMissingAlt {
		t.Errorf("high-risk group should rank first, got %s", issues[0].RuleID)
	}
	if issues[1].Count != 10 {
		t.Errorf("medium group count = %d, want 10", issues[1].Count)
	}
	if issues[0].Justification == "" || issues[1].Justification == "" {
		t.Error("every issue needs a business justification")
	}
	if issues[0].Justification == issues[1].Justification {
		t.Error("justification should vary by risk tier")
	}
}

func TestTopIssuesCapsAtTen(t *testing.T) {
	var fs []findings.Finding
	for i := 0; i < 12; i++ {
		rule := wcag.RuleID(fmt.Sprintf("rule-%d", i))
		fs = append(fs, finding(rule, wcag.Robust, wcag.LevelAA, wcag.SeverityMinor, wcag.RiskLow))
	}
	if issues := TopIssues(fs); len(issues) != 10 {
		t.Errorf("got %d issues, want cap 10", len(issues))
	}
}
