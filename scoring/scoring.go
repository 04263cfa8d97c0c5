// Package scoring computes derived scores over a finding set: POUR category
// scores, compliance flags, trend, quick-win and top-issue rankings. Every
// value is a pure function of the current findings, no hidden counters, so
// scores can always be recomputed from persisted findings.
package scoring

import (
	"math"
	"sort"

	"github.com/hazyhaar/a11yscan/findings"
	"github.com/hazyhaar/a11yscan/wcag"
)

// TrendDirection describes score movement against the previous scan.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// NoPreviousScore marks the absence of a prior overall score.
const NoPreviousScore = -1

// ScanScore is the derived score set for one scan. Category scores are
// integers in [0,100]; integer storage makes the store round-trip exact.
type ScanScore struct {
	Perceivable    int `json:"perceivable"`
	Operable       int `json:"operable"`
	Understandable int `json:"understandable"`
	Robust         int `json:"robust"`
	Overall        int `json:"overall"`

	CompliantA   bool `json:"compliant_a"`
	CompliantAA  bool `json:"compliant_aa"`
	CompliantAAA bool `json:"compliant_aaa"`

	Improvement int            `json:"improvement"`
	Trend       TrendDirection `json:"trend"`
}

// Category returns the score for one POUR category.
func (s ScanScore) Category(c wcag.Category) int {
	switch c {
	case wcag.Perceivable:
		return s.Perceivable
	case wcag.Operable:
		return s.Operable
	case wcag.Understandable:
		return s.Understandable
	default:
		return s.Robust
	}
}

// Score computes the full score set. Pass NoPreviousScore for
// previousOverall when the scan has no predecessor. Findings flagged as
// false positives are excluded.
//
// Category score = max(0, 100 − Σ severity × legalRiskWeight) over the
// category's findings; an empty category scores 100. Overall is the rounded
// mean of the four category scores.
func Score(fs []findings.Finding, previousOverall int) ScanScore {
	penalty := map[wcag.Category]int{}
	var breakA, breakAA, breakAAA bool

	for _, f := range fs {
		if f.FalsePositive {
			continue
		}
		penalty[f.Category] += int(f.Severity) * f.LegalRisk.Weight()

		if f.Severity >= wcag.SeveritySerious {
			breakAAA = true
			if f.Level == wcag.LevelA || f.Level == wcag.LevelAA {
				breakAA = true
			}
			if f.Level == wcag.LevelA {
				breakA = true
			}
		}
	}

	score := func(c wcag.Category) int {
		s := 100 - penalty[c]
		if s < 0 {
			return 0
		}
		return s
	}

	out := ScanScore{
		Perceivable:    score(wcag.Perceivable),
		Operable:       score(wcag.Operable),
		Understandable: score(wcag.Understandable),
		Robust:         score(wcag.Robust),
		CompliantA:     !breakA,
		CompliantAA:    !breakAA,
		CompliantAAA:   !breakAAA,
	}
	mean := float64(out.Perceivable+out.Operable+out.Understandable+out.Robust) / 4
	out.Overall = int(math.Round(mean))

	switch {
	case previousOverall < 0:
		out.Improvement = 0
		out.Trend = TrendStable
	case out.Overall > previousOverall:
		out.Improvement = out.Overall - previousOverall
		out.Trend = TrendImproving
	case out.Overall < previousOverall:
		out.Improvement = out.Overall - previousOverall
		out.Trend = TrendDeclining
	default:
		out.Improvement = 0
		out.Trend = TrendStable
	}
	return out
}

// QuickWin is a group of low-effort, high-value fixes for one rule.
type QuickWin struct {
	RuleID     wcag.RuleID `json:"rule_id"`
	Count      int         `json:"count"`
	FixMinutes int         `json:"fix_minutes"` // summed per-instance estimates
	ScoreGain  int         `json:"score_gain"`  // Σ severity × 2 per instance
}

const maxQuickWins = 5

// QuickWins groups quick-win findings by rule, ranks by descending score
// gain and keeps the top 5. Ties break on rule ID for determinism.
func QuickWins(fs []findings.Finding) []QuickWin {
	byRule := map[wcag.RuleID]*QuickWin{}
	var order []wcag.RuleID
	for _, f := range fs {
		if !f.QuickWin || f.FalsePositive {
			continue
		}
		qw, ok := byRule[f.RuleID]
		if !ok {
			qw = &QuickWin{RuleID: f.RuleID}
			byRule[f.RuleID] = qw
			order = append(order, f.RuleID)
		}
		qw.Count++
		qw.FixMinutes += f.FixMinutes
		qw.ScoreGain += int(f.Severity) * 2
	}

	out := make([]QuickWin, 0, len(order))
	for _, id := range order {
		out = append(out, *byRule[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScoreGain != out[j].ScoreGain {
			return out[i].ScoreGain > out[j].ScoreGain
		}
		return out[i].RuleID < out[j].RuleID
	})
	if len(out) > maxQuickWins {
		out = out[:maxQuickWins]
	}
	return out
}

// Issue is a ranked finding group for the top-issues list.
type Issue struct {
	RuleID        wcag.RuleID    `json:"rule_id"`
	Count         int            `json:"count"`
	LegalRisk     wcag.LegalRisk `json:"legal_risk"`
	Justification string         `json:"justification"`
}

const maxTopIssues = 10

// TopIssues groups all findings by rule, ranks by legal risk then instance
// count and keeps the top 10. Each group carries a business justification
// keyed by its legal-risk tier.
func TopIssues(fs []findings.Finding) []Issue {
	byRule := map[wcag.RuleID]*Issue{}
	var order []wcag.RuleID
	for _, f := range fs {
		if f.FalsePositive {
			continue
		}
		is, ok := byRule[f.RuleID]
		if !ok {
			is = &Issue{RuleID: f.RuleID, LegalRisk: f.LegalRisk}
			byRule[f.RuleID] = is
			order = append(order, f.RuleID)
		}
		is.Count++
	}

	out := make([]Issue, 0, len(order))
	for _, id := range order {
		is := *byRule[id]
		is.Justification = justification(is.LegalRisk)
		out = append(out, is)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LegalRisk != out[j].LegalRisk {
			return out[i].LegalRisk.MoreSevere(out[j].LegalRisk)
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RuleID < out[j].RuleID
	})
	if len(out) > maxTopIssues {
		out = out[:maxTopIssues]
	}
	return out
}

func justification(r wcag.LegalRisk) string {
	switch r {
	case wcag.RiskHigh:
		return "Frequently cited in accessibility litigation; fixing it materially reduces legal exposure."
	case wcag.RiskMedium:
		return "Flagged by standard audits; fixing it improves conformance and user reach."
	default:
		return "Low litigation exposure, but fixing it improves overall usability."
	}
}
