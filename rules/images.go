package rules

import (
	"strings"

	"github.com/hazyhaar/a11yscan/canon"
	"github.com/hazyhaar/a11yscan/wcag"
)

// imgAltRule flags images that are neither decorative nor carry a text
// alternative (alt or aria-label).
type imgAltRule struct{}

func (imgAltRule) ID() wcag.RuleID { return wcag.RuleImgMissingAlt }

func (imgAltRule) Check(p *canon.Page) []Violation {
	var out []Violation
	for _, img := range p.Content.Images {
		if img.Decorative {
			continue
		}
		if img.HasAlt && strings.TrimSpace(img.Alt) != "" {
			continue
		}
		if strings.TrimSpace(img.AriaLabel) != "" {
			continue
		}
		out = append(out, Violation{
			RuleID:      wcag.RuleImgMissingAlt,
			Severity:    wcag.SeverityCritical,
			Description: "Image has no text alternative: add alt text or mark it decorative.",
			Element: Element{
				Type:     "img",
				Selector: img.Selector,
				Snippet:  img.Snippet,
			},
			PageURL: p.URL,
		})
	}
	return out
}
