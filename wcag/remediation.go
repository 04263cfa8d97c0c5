package wcag

// Effort is a coarse remediation effort tier.
type Effort string

const (
	EffortTrivial  Effort = "trivial"
	EffortModerate Effort = "moderate"
	EffortInvolved Effort = "involved"
)

// Remediation is the guidance attached to a finding.
type Remediation struct {
	Description string `json:"description"`
	Example     string `json:"example"`
	Effort      Effort `json:"effort"`
}

// DefaultRemediation is the generic fallback for unknown rules.
var DefaultRemediation = Remediation{
	Description: "Review the flagged element against the cited WCAG criterion and adjust markup or styling accordingly.",
	Example:     "",
	Effort:      EffortModerate,
}

var remediations = map[RuleID]Remediation{
	RuleImgMissingAlt: {
		Description: "Add an alt attribute describing the image's purpose, or alt=\"\" with role=\"presentation\" for decorative images.",
		Example:     `<img src="chart.png" alt="Q3 revenue by region">`,
		Effort:      EffortTrivial,
	},
	RuleFormInputUnlabeled: {
		Description: "Associate a visible label via for/id, or add an aria-label when a visible label is not possible.",
		Example:     `<label for="email">Email address</label>` + "\n" + `<input id="email" type="email">`,
		Effort:      EffortTrivial,
	},
	RuleLinkTextNondescriptive: {
		Description: "Replace generic link text with text that describes the destination out of context.",
		Example:     `<a href="/pricing">View pricing plans</a>`,
		Effort:      EffortTrivial,
	},
	RuleHeadingFirstNotH1: {
		Description: "Start the document outline with a single h1 that names the page's main topic.",
		Example:     `<h1>Order history</h1>`,
		Effort:      EffortModerate,
	},
	RuleHeadingSkipLevel: {
		Description: "Adjust heading levels so each heading is at most one level deeper than the previous one.",
		Example:     `<h2>Shipping</h2> … <h3>International rates</h3>`,
		Effort:      EffortTrivial,
	},
	RuleDocLanguageMissing: {
		Description: "Declare the document language on the html element.",
		Example:     `<html lang="en">`,
		Effort:      EffortTrivial,
	},
	RuleContrastInsufficient: {
		Description: "Increase the contrast ratio between text and its background to at least 4.5:1 (3:1 for large text).",
		Example:     `color: #595959; /* on #ffffff, ratio 7:1 */`,
		Effort:      EffortInvolved,
	},
	RuleLandmarkMainMissing: {
		Description: "Wrap the primary content in a main element (or role=\"main\").",
		Example:     `<main>…</main>`,
		Effort:      EffortTrivial,
	},
}

// RemediationFor returns remediation guidance for a rule ID, falling back to
// DefaultRemediation for unknown IDs.
func RemediationFor(id RuleID) Remediation {
	if r, ok := remediations[id]; ok {
		return r
	}
	return DefaultRemediation
}

// DefaultFixMinutes is the per-instance fix estimate for unknown rules.
const DefaultFixMinutes = 20

var fixMinutes = map[RuleID]int{
	RuleImgMissingAlt:          5,
	RuleFormInputUnlabeled:     10,
	RuleLinkTextNondescriptive: 5,
	RuleHeadingFirstNotH1:      15,
	RuleHeadingSkipLevel:       10,
	RuleDocLanguageMissing:     2,
	RuleContrastInsufficient:   30,
	RuleLandmarkMainMissing:    15,
}

// FixMinutes returns the estimated per-instance fix time for a rule.
func FixMinutes(id RuleID) int {
	if m, ok := fixMinutes[id]; ok {
		return m
	}
	return DefaultFixMinutes
}
