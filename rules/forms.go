package rules

import (
	"github.com/hazyhaar/a11yscan/canon"
	"github.com/hazyhaar/a11yscan/wcag"
)

// formLabelRule flags visible form controls without an associated label
// (label for/id, wrapping label, aria-label or aria-labelledby).
type formLabelRule struct{}

func (formLabelRule) ID() wcag.RuleID { return wcag.RuleFormInputUnlabeled }

func (formLabelRule) Check(p *canon.Page) []Violation {
	var out []Violation
	for _, form := range p.Flows.Forms {
		for _, in := range form.Inputs {
			if in.Tag == "input" {
				switch in.Type {
				case "hidden", "submit", "button", "image", "reset":
					continue
				}
			}
			if in.HasLabel {
				continue
			}
			out = append(out, Violation{
				RuleID:      wcag.RuleFormInputUnlabeled,
				Severity:    wcag.SeveritySerious,
				Description: "Form control has no associated label.",
				Element: Element{
					Type:     in.Tag,
					Selector: in.Selector,
					Snippet:  in.Snippet,
				},
				PageURL: p.URL,
			})
		}
	}
	return out
}
