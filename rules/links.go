package rules

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/a11yscan/canon"
	"github.com/hazyhaar/a11yscan/wcag"
)

// boilerplate holds link phrases that carry no destination information.
// Matching is case-insensitive on the trimmed text.
var boilerplate = map[string]bool{
	"click here": true,
	"click":      true,
	"here":       true,
	"read more":  true,
	"more":       true,
	"learn more": true,
	"link":       true,
	"this link":  true,
	"details":    true,
	"continue":   true,
}

// linkTextRule flags links whose text is empty or boilerplate.
type linkTextRule struct{}

func (linkTextRule) ID() wcag.RuleID { return wcag.RuleLinkTextNondescriptive }

func (linkTextRule) Check(p *canon.Page) []Violation {
	var out []Violation
	for _, link := range p.Layout.Links {
		text := strings.ToLower(strings.TrimSpace(link.Text))
		desc := ""
		switch {
		case text == "":
			desc = "Link has no text content."
		case boilerplate[text]:
			desc = fmt.Sprintf("Link text %q does not describe the destination.", strings.TrimSpace(link.Text))
		default:
			continue
		}
		out = append(out, Violation{
			RuleID:      wcag.RuleLinkTextNondescriptive,
			Severity:    wcag.SeverityModerate,
			Description: desc,
			Element: Element{
				Type:     "a",
				Selector: link.Selector,
				Snippet:  link.Snippet,
			},
			PageURL: p.URL,
		})
	}
	return out
}
