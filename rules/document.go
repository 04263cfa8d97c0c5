package rules

import (
	"strings"

	"github.com/hazyhaar/a11yscan/canon"
	"github.com/hazyhaar/a11yscan/wcag"
)

// docLanguageRule flags documents without a lang attribute on html.
type docLanguageRule struct{}

func (docLanguageRule) ID() wcag.RuleID { return wcag.RuleDocLanguageMissing }

func (docLanguageRule) Check(p *canon.Page) []Violation {
	if strings.TrimSpace(p.Meta.Language) != "" {
		return nil
	}
	return []Violation{{
		RuleID:      wcag.RuleDocLanguageMissing,
		Severity:    wcag.SeveritySerious,
		Description: "Document language is not declared on the html element.",
		Element:     Element{Type: "html", Selector: "html"},
		PageURL:     p.URL,
	}}
}

// mainLandmarkRule flags pages without a main landmark.
type mainLandmarkRule struct{}

func (mainLandmarkRule) ID() wcag.RuleID { return wcag.RuleLandmarkMainMissing }

func (mainLandmarkRule) Check(p *canon.Page) []Violation {
	for _, l := range p.Layout.Landmarks {
		if l.Tag == "main" || l.Role == "main" {
			return nil
		}
	}
	return []Violation{{
		RuleID:      wcag.RuleLandmarkMainMissing,
		Severity:    wcag.SeverityModerate,
		Description: "Page has no main landmark; assistive technology users cannot skip to the primary content.",
		Element:     Element{Type: "body", Selector: "body"},
		PageURL:     p.URL,
	}}
}
