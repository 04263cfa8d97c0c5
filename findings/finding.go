// Package findings defines the uniform finding model and the normalizer that
// merges deterministic rule violations and AI candidates into it.
package findings

import (
	"github.com/hazyhaar/a11yscan/rules"
	"github.com/hazyhaar/a11yscan/wcag"
)

// Source tells which detector produced a finding.
type Source string

const (
	SourceRule Source = "rule"
	SourceAI   Source = "ai"
)

// Finding is a single detected issue with its full WCAG classification.
// Immutable after normalization except for the FalsePositive flag, which
// downstream review may set.
type Finding struct {
	ID     string      `json:"id"` // unique within the scan
	Source Source      `json:"source"`
	RuleID wcag.RuleID `json:"rule_id"`

	Criterion string        `json:"criterion"`
	Level     wcag.Level    `json:"level"`
	Category  wcag.Category `json:"category"`

	Severity      wcag.Severity `json:"severity"`
	SeverityLabel string        `json:"severity_label"`

	Element rules.Element `json:"element"`
	PageURL string        `json:"page_url"`

	LegalRisk  wcag.LegalRisk `json:"legal_risk"`
	QuickWin   bool           `json:"quick_win"`
	FixMinutes int            `json:"fix_minutes"`
	Confidence float64        `json:"confidence"` // 1.0 for rule findings

	Description    string           `json:"description"`
	BusinessImpact string           `json:"business_impact"`
	UserImpact     string           `json:"user_impact"`
	Remediation    wcag.Remediation `json:"remediation"`

	FalsePositive bool `json:"false_positive"`
}

// Candidate is a supplementary finding suggested by the AI capability. The
// contextual analyzer validates candidates before they reach the normalizer.
type Candidate struct {
	RuleID      wcag.RuleID   `json:"rule_id"`
	Severity    wcag.Severity `json:"severity"`
	Description string        `json:"description"`
	Element     rules.Element `json:"element"`
	PageURL     string        `json:"page_url"`
	Confidence  float64       `json:"confidence"`
}
