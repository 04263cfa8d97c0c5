package findings

import (
	"fmt"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/a11yscan/rules"
	"github.com/hazyhaar/a11yscan/wcag"
)

// snippetPolicy sanitizes element snippets before they are stored: scripts
// and event handlers are stripped, structural markup and the attributes the
// rules reason about are kept.
var snippetPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("input", "select", "textarea", "form", "label", "button", "main", "nav", "header", "footer", "aside", "section", "article")
	p.AllowAttrs("alt", "aria-label", "aria-labelledby", "aria-hidden", "role",
		"type", "name", "placeholder", "for", "lang", "value").Globally()
	return p
}()

// Normalize merges rule violations and AI candidates into the uniform
// finding model: WCAG metadata, remediation template and fix-time estimate
// are attached per rule ID (with guaranteed defaults for unknown IDs; a
// finding is never dropped for lacking a catalog entry), and each finding
// gets a stable ID derived from the scan ID, rule ID and ordinal index.
//
// Rule and AI findings covering the same element are both retained; the
// analyzer already receives known findings to avoid duplicate suggestions,
// and dropping near-duplicates here would erase corroboration signal.
func Normalize(scanID string, ruleViolations []rules.Violation, aiCandidates []Candidate) []Finding {
	out := make([]Finding, 0, len(ruleViolations)+len(aiCandidates))

	for _, v := range ruleViolations {
		f := build(scanID, len(out), SourceRule, v.RuleID, v.Severity, v.Description, v.Element, v.PageURL, 1.0)
		out = append(out, f)
	}

	for _, c := range aiCandidates {
		f := build(scanID, len(out), SourceAI, c.RuleID, clampSeverity(c.Severity), c.Description, c.Element, c.PageURL, clampConfidence(c.Confidence))
		out = append(out, f)
	}

	return out
}

func build(scanID string, ordinal int, src Source, ruleID wcag.RuleID, sev wcag.Severity, desc string, el rules.Element, pageURL string, confidence float64) Finding {
	meta := wcag.Lookup(ruleID)
	el.Snippet = snippetPolicy.Sanitize(el.Snippet)

	return Finding{
		ID:     fmt.Sprintf("%s_%s_%03d", scanID, ruleID, ordinal),
		Source: src,
		RuleID: ruleID,

		Criterion: meta.Criterion,
		Level:     meta.Level,
		Category:  meta.Category,

		Severity:      sev,
		SeverityLabel: sev.Label(),

		Element: el,
		PageURL: pageURL,

		LegalRisk:  meta.LegalRisk,
		QuickWin:   meta.QuickWin,
		FixMinutes: wcag.FixMinutes(ruleID),
		Confidence: confidence,

		Description:    desc,
		BusinessImpact: meta.BusinessImpact,
		UserImpact:     meta.UserImpact,
		Remediation:    wcag.RemediationFor(ruleID),
	}
}

func clampSeverity(s wcag.Severity) wcag.Severity {
	if s < wcag.SeverityMinor {
		return wcag.SeverityMinor
	}
	if s > wcag.SeverityCritical {
		return wcag.SeverityCritical
	}
	return s
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
