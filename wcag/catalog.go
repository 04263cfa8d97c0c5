// Package wcag is the metadata catalog for accessibility findings: WCAG
// criteria, conformance levels, POUR categories, legal-risk tiers and
// remediation guidance, keyed by rule identifier.
//
// Lookup never fails: unknown rule IDs resolve to a conservative default
// entry instead of being dropped.
package wcag

// RuleID identifies a detection rule. Known rules have constants below;
// the type is open so AI-suggested rules flow through the same catalog.
type RuleID string

const (
	RuleImgMissingAlt          RuleID = "img-missing-alt"
	RuleFormInputUnlabeled     RuleID = "form-input-unlabeled"
	RuleLinkTextNondescriptive RuleID = "link-text-nondescriptive"
	RuleHeadingFirstNotH1      RuleID = "heading-first-not-h1"
	RuleHeadingSkipLevel       RuleID = "heading-skip-level"
	RuleDocLanguageMissing     RuleID = "doc-language-missing"
	RuleContrastInsufficient   RuleID = "contrast-insufficient"
	RuleLandmarkMainMissing    RuleID = "landmark-main-missing"
)

// Category is one of the four POUR principles.
type Category string

const (
	Perceivable    Category = "perceivable"
	Operable       Category = "operable"
	Understandable Category = "understandable"
	Robust         Category = "robust"
)

// Categories lists all four POUR categories in canonical order.
var Categories = []Category{Perceivable, Operable, Understandable, Robust}

// Level is a WCAG conformance level.
type Level string

const (
	LevelA   Level = "A"
	LevelAA  Level = "AA"
	LevelAAA Level = "AAA"
)

// LegalRisk estimates litigation exposure for a violation type.
type LegalRisk string

const (
	RiskHigh   LegalRisk = "high"
	RiskMedium LegalRisk = "medium"
	RiskLow    LegalRisk = "low"
)

// Severity is the numeric impact of a finding. Higher is worse.
type Severity int

const (
	SeverityMinor    Severity = 1
	SeverityModerate Severity = 2
	SeveritySerious  Severity = 3
	SeverityCritical Severity = 4
)

// Label returns the human-readable severity name.
func (s Severity) Label() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeveritySerious:
		return "serious"
	case SeverityModerate:
		return "moderate"
	default:
		return "minor"
	}
}

// Meta is the catalog entry for one rule.
type Meta struct {
	Criterion      string    `json:"criterion"` // e.g. "1.1.1"
	Level          Level     `json:"level"`
	Category       Category  `json:"category"`
	LegalRisk      LegalRisk `json:"legal_risk"`
	QuickWin       bool      `json:"quick_win"`
	BusinessImpact string    `json:"business_impact"`
	UserImpact     string    `json:"user_impact"`
}

// DefaultMeta is the fallback for unrecognized rule IDs. Conservative by
// construction: robust category, medium legal risk, AA level.
var DefaultMeta = Meta{
	Criterion:      "4.1.2",
	Level:          LevelAA,
	Category:       Robust,
	LegalRisk:      RiskMedium,
	QuickWin:       false,
	BusinessImpact: "Unclassified issues degrade assistive-technology compatibility.",
	UserImpact:     "May prevent assistive technologies from interpreting the page.",
}

var catalog = map[RuleID]Meta{
	RuleImgMissingAlt: {
		Criterion:      "1.1.1",
		Level:          LevelA,
		Category:       Perceivable,
		LegalRisk:      RiskHigh,
		QuickWin:       true,
		BusinessImpact: "Missing alt text is the most cited violation in accessibility lawsuits.",
		UserImpact:     "Screen reader users receive no information about the image.",
	},
	RuleFormInputUnlabeled: {
		Criterion:      "3.3.2",
		Level:          LevelA,
		Category:       Understandable,
		LegalRisk:      RiskHigh,
		QuickWin:       true,
		BusinessImpact: "Unlabeled forms block sign-ups and purchases for assistive-technology users.",
		UserImpact:     "Users cannot tell what the input expects.",
	},
	RuleLinkTextNondescriptive: {
		Criterion:      "2.4.4",
		Level:          LevelA,
		Category:       Operable,
		LegalRisk:      RiskMedium,
		QuickWin:       true,
		BusinessImpact: "Generic link text hurts both accessibility and search ranking.",
		UserImpact:     "Screen reader users navigating by links cannot tell where a link leads.",
	},
	RuleHeadingFirstNotH1: {
		Criterion:      "1.3.1",
		Level:          LevelA,
		Category:       Perceivable,
		LegalRisk:      RiskMedium,
		QuickWin:       true,
		BusinessImpact: "A broken document outline undermines SEO and navigability.",
		UserImpact:     "Screen reader users lose the page's structural entry point.",
	},
	RuleHeadingSkipLevel: {
		Criterion:      "1.3.1",
		Level:          LevelA,
		Category:       Perceivable,
		LegalRisk:      RiskLow,
		QuickWin:       true,
		BusinessImpact: "Inconsistent structure increases maintenance and audit cost.",
		UserImpact:     "Users navigating by headings miss intermediate sections.",
	},
	RuleDocLanguageMissing: {
		Criterion:      "3.1.1",
		Level:          LevelA,
		Category:       Understandable,
		LegalRisk:      RiskMedium,
		QuickWin:       true,
		BusinessImpact: "Trivial to fix, commonly flagged by automated audits.",
		UserImpact:     "Screen readers may use the wrong pronunciation rules for the whole page.",
	},
	RuleContrastInsufficient: {
		Criterion:      "1.4.3",
		Level:          LevelAA,
		Category:       Perceivable,
		LegalRisk:      RiskMedium,
		QuickWin:       false,
		BusinessImpact: "Low contrast excludes low-vision users and ages poorly on mobile.",
		UserImpact:     "Text is unreadable for users with low vision or color deficiency.",
	},
	RuleLandmarkMainMissing: {
		Criterion:      "2.4.1",
		Level:          LevelA,
		Category:       Operable,
		LegalRisk:      RiskLow,
		QuickWin:       true,
		BusinessImpact: "Landmark navigation is a baseline expectation of accessibility audits.",
		UserImpact:     "Keyboard and screen reader users cannot skip to the main content.",
	},
}

// Lookup returns the catalog entry for a rule ID, falling back to
// DefaultMeta for unknown IDs. It never fails.
func Lookup(id RuleID) Meta {
	if m, ok := catalog[id]; ok {
		return m
	}
	return DefaultMeta
}

// Known reports whether the rule ID has a dedicated catalog entry.
func Known(id RuleID) bool {
	_, ok := catalog[id]
	return ok
}

// legalWeight maps risk tiers to score weights: high risk counts double.
func legalWeight(r LegalRisk) int {
	if r == RiskHigh {
		return 2
	}
	return 1
}

// Weight returns the scoring weight for a legal-risk tier.
func (r LegalRisk) Weight() int { return legalWeight(r) }

// rank orders risk tiers for sorting (high first).
func (r LegalRisk) rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// MoreSevere reports whether r outranks other.
func (r LegalRisk) MoreSevere(other LegalRisk) bool { return r.rank() > other.rank() }
