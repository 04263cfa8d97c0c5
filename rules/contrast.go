package rules

import (
	"fmt"

	"github.com/hazyhaar/a11yscan/canon"
	"github.com/hazyhaar/a11yscan/wcag"
)

// WCAG AA contrast thresholds.
const (
	minContrastNormal = 4.5
	minContrastLarge  = 3.0
)

// contrastRule flags sampled text whose contrast ratio is below the AA
// threshold. It only fires when the browser probe produced contrast pairs;
// static extraction cannot measure computed colors.
type contrastRule struct{}

func (contrastRule) ID() wcag.RuleID { return wcag.RuleContrastInsufficient }

func (contrastRule) Check(p *canon.Page) []Violation {
	var out []Violation
	for _, pair := range p.AccessibilityTree.ContrastPairs {
		if pair.Ratio <= 0 {
			continue // unmeasured sample
		}
		threshold := minContrastNormal
		if pair.LargeText {
			threshold = minContrastLarge
		}
		if pair.Ratio >= threshold {
			continue
		}
		out = append(out, Violation{
			RuleID:   wcag.RuleContrastInsufficient,
			Severity: wcag.SeveritySerious,
			Description: fmt.Sprintf("Text contrast ratio %.2f:1 is below the required %.1f:1 (%s on %s).",
				pair.Ratio, threshold, pair.Foreground, pair.Background),
			Element: Element{
				Type:     "text",
				Selector: pair.Selector,
			},
			PageURL: p.URL,
		})
	}
	return out
}
