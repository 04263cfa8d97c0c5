// Package rules implements the deterministic WCAG rule engine. Analyze is a
// pure function over a canonical snapshot: same input, same output, no shared
// state between rules and no ordering dependency among them.
package rules

import (
	"github.com/hazyhaar/a11yscan/canon"
	"github.com/hazyhaar/a11yscan/wcag"
)

// Element describes where a violation was found.
type Element struct {
	Type     string `json:"type"` // img, input, a, h1…h6, html, body
	Selector string `json:"selector"`
	Snippet  string `json:"snippet,omitempty"`
}

// Violation is one issue detected by a rule. Confidence is implicitly 1.0
// for every rule violation; only AI candidates carry a lower confidence.
type Violation struct {
	RuleID      wcag.RuleID   `json:"rule_id"`
	Severity    wcag.Severity `json:"severity"`
	Description string        `json:"description"`
	Element     Element       `json:"element"`
	PageURL     string        `json:"page_url"`
}

// Rule inspects one structural facet of a snapshot.
type Rule interface {
	ID() wcag.RuleID
	Check(p *canon.Page) []Violation
}

// Engine runs registered rules in registration order.
type Engine struct {
	rules []Rule
}

// NewEngine creates an Engine with the built-in rule set.
func NewEngine() *Engine {
	e := &Engine{}
	e.Register(imgAltRule{})
	e.Register(formLabelRule{})
	e.Register(linkTextRule{})
	e.Register(headingOrderRule{})
	e.Register(docLanguageRule{})
	e.Register(contrastRule{})
	e.Register(mainLandmarkRule{})
	return e
}

// Register appends a rule. Rules are independent; registration order only
// fixes the output order for reproducibility.
func (e *Engine) Register(r Rule) {
	e.rules = append(e.rules, r)
}

// Analyze applies every rule to the snapshot and concatenates the results.
// Deterministic and side-effect-free.
func (e *Engine) Analyze(p *canon.Page) []Violation {
	out := []Violation{}
	if p == nil {
		return out
	}
	for _, r := range e.rules {
		out = append(out, r.Check(p)...)
	}
	return out
}
