package rules

import (
	"fmt"

	"github.com/hazyhaar/a11yscan/canon"
	"github.com/hazyhaar/a11yscan/wcag"
)

// headingOrderRule checks the heading tree: the first heading must be an h1,
// and no heading may jump more than one level deeper than its predecessor.
type headingOrderRule struct{}

func (headingOrderRule) ID() wcag.RuleID { return wcag.RuleHeadingFirstNotH1 }

func (headingOrderRule) Check(p *canon.Page) []Violation {
	headings := p.Layout.Headings
	if len(headings) == 0 {
		return nil
	}

	var out []Violation
	if headings[0].Level != 1 {
		out = append(out, Violation{
			RuleID:      wcag.RuleHeadingFirstNotH1,
			Severity:    wcag.SeverityModerate,
			Description: fmt.Sprintf("First heading is an h%d; the document outline should start with an h1.", headings[0].Level),
			Element: Element{
				Type:     fmt.Sprintf("h%d", headings[0].Level),
				Selector: headings[0].Selector,
			},
			PageURL: p.URL,
		})
	}

	prev := headings[0].Level
	for _, h := range headings[1:] {
		if h.Level > prev+1 {
			out = append(out, Violation{
				RuleID:      wcag.RuleHeadingSkipLevel,
				Severity:    wcag.SeverityMinor,
				Description: fmt.Sprintf("Heading level jumps from h%d to h%d.", prev, h.Level),
				Element: Element{
					Type:     fmt.Sprintf("h%d", h.Level),
					Selector: h.Selector,
				},
				PageURL: p.URL,
			})
		}
		prev = h.Level
	}
	return out
}
