package rules

import (
	"reflect"
	"testing"

	"github.com/hazyhaar/a11yscan/canon"
	"github.com/hazyhaar/a11yscan/wcag"
)

func pageWith(mutate func(*canon.Page)) *canon.Page {
	p := canon.Extract("https://example.com", []byte(`<!DOCTYPE html><html lang="en"><body><main><h1>T</h1></main></body></html>`), nil)
	if mutate != nil {
		mutate(p)
	}
	return p
}

func byRule(vs []Violation, id wcag.RuleID) []Violation {
	var out []Violation
	for _, v := range vs {
		if v.RuleID == id {
			out = append(out, v)
		}
	}
	return out
}

func TestAnalyze_CleanPage(t *testing.T) {
	vs := NewEngine().Analyze(pageWith(nil))
	if len(vs) != 0 {
		t.Fatalf("clean page produced %d violations: %+v", len(vs), vs)
	}
}

func TestAnalyze_NilPage(t *testing.T) {
	vs := NewEngine().Analyze(nil)
	if vs == nil || len(vs) != 0 {
		t.Fatal("nil page must yield an empty, non-nil slice")
	}
}

func TestImgAlt_SinglePageScenario(t *testing.T) {
	// A single img with no alt and no aria-label: exactly one critical,
	// high-legal-risk finding on criterion 1.1.1.
	html := `<!DOCTYPE html><html lang="en"><body><main><h1>T</h1><img src="x.png"></main></body></html>`
	p := canon.Extract("https://example.com", []byte(html), nil)

	vs := byRule(NewEngine().Analyze(p), wcag.RuleImgMissingAlt)
	if len(vs) != 1 {
		t.Fatalf("got %d img-missing-alt violations, want 1", len(vs))
	}
	v := vs[0]
	if v.Severity != wcag.SeverityCritical {
		t.Errorf("severity %d, want critical", v.Severity)
	}
	meta := wcag.Lookup(v.RuleID)
	if meta.Criterion != "1.1.1" || meta.LegalRisk != wcag.RiskHigh {
		t.Errorf("metadata %+v", meta)
	}
}

func TestImgAlt_SkipsDecorativeAndLabeled(t *testing.T) {
	p := pageWith(func(p *canon.Page) {
		p.Content.Images = []canon.Image{
			{Selector: "img:nth-of-type(1)", HasAlt: true, Alt: ""},              // decorative-by-alt
			{Selector: "img:nth-of-type(2)", Decorative: true},                   // role=presentation
			{Selector: "img:nth-of-type(3)", AriaLabel: "Chart of Q3 revenue"},   // aria-label
			{Selector: "img:nth-of-type(4)", HasAlt: true, Alt: "A storefront "}, // real alt
		}
		p.Content.Images[0].Decorative = true
	})
	if vs := byRule(NewEngine().Analyze(p), wcag.RuleImgMissingAlt); len(vs) != 0 {
		t.Fatalf("expected no violations, got %+v", vs)
	}
}

func TestFormLabel(t *testing.T) {
	p := pageWith(func(p *canon.Page) {
		p.Flows.Forms = []canon.Form{{
			Selector: "form",
			Inputs: []canon.Input{
				{Tag: "input", Type: "email", HasLabel: true, Selector: "#email"},
				{Tag: "input", Type: "text", Selector: "#nick"},
				{Tag: "input", Type: "hidden", Selector: "#token"},
				{Tag: "select", Selector: "#country"},
			},
		}}
	})
	vs := byRule(NewEngine().Analyze(p), wcag.RuleFormInputUnlabeled)
	if len(vs) != 2 {
		t.Fatalf("got %d unlabeled violations, want 2 (text input + select): %+v", len(vs), vs)
	}
	for _, v := range vs {
		if v.Severity != wcag.SeveritySerious {
			t.Errorf("severity %d, want serious", v.Severity)
		}
	}
}

func TestLinkText(t *testing.T) {
	p := pageWith(func(p *canon.Page) {
		p.Layout.Links = []canon.Link{
			{Text: "View pricing plans", Selector: "a:nth-of-type(1)"},
			{Text: "Click Here", Selector: "a:nth-of-type(2)"},
			{Text: "  ", Selector: "a:nth-of-type(3)"},
			{Text: "read more", Selector: "a:nth-of-type(4)"},
		}
	})
	vs := byRule(NewEngine().Analyze(p), wcag.RuleLinkTextNondescriptive)
	if len(vs) != 3 {
		t.Fatalf("got %d link-text violations, want 3: %+v", len(vs), vs)
	}
}

func TestHeadings_FirstNotH1(t *testing.T) {
	p := pageWith(func(p *canon.Page) {
		p.Layout.Headings = []canon.Heading{{Level: 2, Text: "Intro", Selector: "h2"}}
	})
	vs := NewEngine().Analyze(p)
	if len(byRule(vs, wcag.RuleHeadingFirstNotH1)) != 1 {
		t.Fatal("expected a first-not-h1 violation")
	}
	if len(byRule(vs, wcag.RuleHeadingSkipLevel)) != 0 {
		t.Fatal("single heading cannot skip a level")
	}
}

func TestHeadings_SkipLevel(t *testing.T) {
	p := pageWith(func(p *canon.Page) {
		p.Layout.Headings = []canon.Heading{
			{Level: 1, Selector: "h1"},
			{Level: 3, Selector: "h3"}, // jump
			{Level: 4, Selector: "h4"},
			{Level: 2, Selector: "h2"}, // going shallower is fine
			{Level: 5, Selector: "h5"}, // jump
		}
	})
	vs := byRule(NewEngine().Analyze(p), wcag.RuleHeadingSkipLevel)
	if len(vs) != 2 {
		t.Fatalf("got %d skip violations, want 2: %+v", len(vs), vs)
	}
	for _, v := range vs {
		if v.Severity != wcag.SeverityMinor {
			t.Errorf("severity %d, want minor", v.Severity)
		}
	}
}

func TestDocLanguage(t *testing.T) {
	p := pageWith(func(p *canon.Page) { p.Meta.Language = "" })
	vs := byRule(NewEngine().Analyze(p), wcag.RuleDocLanguageMissing)
	if len(vs) != 1 || vs[0].Severity != wcag.SeveritySerious {
		t.Fatalf("got %+v", vs)
	}
}

func TestMainLandmark(t *testing.T) {
	p := pageWith(func(p *canon.Page) {
		p.Layout.Landmarks = []canon.Landmark{{Tag: "nav", Selector: "nav"}}
	})
	if vs := byRule(NewEngine().Analyze(p), wcag.RuleLandmarkMainMissing); len(vs) != 1 {
		t.Fatalf("got %+v", vs)
	}

	// role="main" on a div satisfies the landmark.
	p2 := pageWith(func(p *canon.Page) {
		p.Layout.Landmarks = []canon.Landmark{{Tag: "div", Role: "main", Selector: "div"}}
	})
	if vs := byRule(NewEngine().Analyze(p2), wcag.RuleLandmarkMainMissing); len(vs) != 0 {
		t.Fatalf("role=main should satisfy the rule: %+v", vs)
	}
}

func TestContrast(t *testing.T) {
	p := pageWith(func(p *canon.Page) {
		p.AccessibilityTree.ContrastPairs = []canon.ContrastPair{
			{Selector: "p:nth-of-type(1)", Ratio: 2.8},                  // fails normal
			{Selector: "p:nth-of-type(2)", Ratio: 3.5, LargeText: true}, // passes large
			{Selector: "p:nth-of-type(3)", Ratio: 7.2},                  // passes
			{Selector: "p:nth-of-type(4)", Ratio: 0},                    // unmeasured
		}
	})
	vs := byRule(NewEngine().Analyze(p), wcag.RuleContrastInsufficient)
	if len(vs) != 1 {
		t.Fatalf("got %d contrast violations, want 1: %+v", len(vs), vs)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	html := `<!DOCTYPE html><html><body>
		<h2>Start</h2><h5>Jump</h5>
		<img src="a.png"><img src="b.png">
		<a href="/x">click here</a>
		<input type="text" name="q">
	</body></html>`
	p := canon.Extract("https://example.com", []byte(html), nil)
	e := NewEngine()

	first := e.Analyze(p)
	second := e.Analyze(p)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("Analyze is not deterministic")
	}
	if len(first) == 0 {
		t.Fatal("fixture should produce violations")
	}
}

type customRule struct{ fired *bool }

func (customRule) ID() wcag.RuleID { return "custom-check" }
func (c customRule) Check(p *canon.Page) []Violation {
	*c.fired = true
	return []Violation{{RuleID: "custom-check", Severity: wcag.SeverityMinor, PageURL: p.URL}}
}

func TestRegister_CustomRule(t *testing.T) {
	fired := false
	e := NewEngine()
	e.Register(customRule{fired: &fired})

	vs := e.Analyze(pageWith(nil))
	if !fired {
		t.Fatal("custom rule did not run")
	}
	if len(byRule(vs, "custom-check")) != 1 {
		t.Fatal("custom rule violation missing")
	}
	// Unknown rule IDs still resolve metadata via the default entry.
	if wcag.Lookup("custom-check") != wcag.DefaultMeta {
		t.Fatal("custom rule should map to the default catalog entry")
	}
}
