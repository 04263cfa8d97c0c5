package canon

import (
	"strings"
	"testing"
)

const fixture = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Store</title>
<link rel="canonical" href="https://example.com/store">
</head>
<body>
<header><nav><a href="/about">About us</a></nav></header>
<main id="content">
  <h1>Welcome</h1>
  <h3>Skipped level</h3>
  <p>Some text with <a href="https://other.example.org/x">an external link</a>
     and <a href="/more">click here</a>.</p>
  <img src="hero.png" alt="A storefront at dusk">
  <img src="divider.png" alt="">
  <img src="promo.png">
  <table>
    <caption>Prices</caption>
    <tr><th>Item</th><th>Price</th></tr>
    <tr><td>Widget</td><td>3</td></tr>
  </table>
  <form action="/subscribe">
    <label for="email">Email</label>
    <input id="email" type="email" name="email">
    <input type="text" name="nickname" placeholder="Nickname">
    <input type="hidden" name="token">
    <input type="submit" value="Subscribe">
  </form>
</main>
<footer role="contentinfo">© 2026</footer>
</body>
</html>`

func extractFixture(t *testing.T) *Page {
	t.Helper()
	return Extract("https://example.com/store", []byte(fixture), nil)
}

func TestExtract_Meta(t *testing.T) {
	p := extractFixture(t)
	if p.Meta.Language != "en" {
		t.Errorf("language %q, want en", p.Meta.Language)
	}
	if p.Meta.CanonicalURL != "https://example.com/store" {
		t.Errorf("canonical %q", p.Meta.CanonicalURL)
	}
}

func TestExtract_Headings(t *testing.T) {
	p := extractFixture(t)
	if len(p.Layout.Headings) != 2 {
		t.Fatalf("got %d headings, want 2", len(p.Layout.Headings))
	}
	if p.Layout.Headings[0].Level != 1 || p.Layout.Headings[0].Text != "Welcome" {
		t.Errorf("first heading %+v", p.Layout.Headings[0])
	}
	if p.Layout.Headings[1].Level != 3 {
		t.Errorf("second heading level %d, want 3", p.Layout.Headings[1].Level)
	}
}

func TestExtract_Links(t *testing.T) {
	p := extractFixture(t)
	if len(p.Layout.Links) != 3 {
		t.Fatalf("got %d links, want 3: %+v", len(p.Layout.Links), p.Layout.Links)
	}
	var internal, external int
	for _, l := range p.Layout.Links {
		if l.Internal {
			internal++
		} else {
			external++
		}
	}
	if internal != 2 || external != 1 {
		t.Errorf("internal=%d external=%d, want 2/1", internal, external)
	}
	// Relative hrefs are resolved against the page URL.
	if p.Layout.Links[0].Href != "https://example.com/about" {
		t.Errorf("first href %q", p.Layout.Links[0].Href)
	}
}

func TestExtract_Images(t *testing.T) {
	p := extractFixture(t)
	if len(p.Content.Images) != 3 {
		t.Fatalf("got %d images, want 3", len(p.Content.Images))
	}
	withAlt, decorative, bare := p.Content.Images[0], p.Content.Images[1], p.Content.Images[2]
	if !withAlt.HasAlt || withAlt.Alt == "" || withAlt.Decorative {
		t.Errorf("first image: %+v", withAlt)
	}
	if !decorative.Decorative {
		t.Errorf("alt=\"\" image should be decorative: %+v", decorative)
	}
	if bare.HasAlt || bare.Decorative {
		t.Errorf("bare image should have no alt and not be decorative: %+v", bare)
	}
	if bare.Snippet == "" || !strings.Contains(bare.Snippet, "promo.png") {
		t.Errorf("snippet should carry the element markup: %q", bare.Snippet)
	}
}

func TestExtract_Forms(t *testing.T) {
	p := extractFixture(t)
	if len(p.Flows.Forms) != 1 {
		t.Fatalf("got %d forms, want 1", len(p.Flows.Forms))
	}
	inputs := p.Flows.Forms[0].Inputs
	// submit becomes a call to action; hidden stays captured with its type.
	if len(inputs) != 3 {
		t.Fatalf("got %d inputs, want 3: %+v", len(inputs), inputs)
	}
	byName := map[string]Input{}
	for _, in := range inputs {
		byName[in.Name] = in
	}
	if !byName["email"].HasLabel {
		t.Error("email input has a label and must be marked so")
	}
	if byName["nickname"].HasLabel {
		t.Error("nickname input has no label")
	}
	if byName["token"].Type != "hidden" {
		t.Error("hidden input should still be captured with its type")
	}

	var ctaFound bool
	for _, c := range p.Flows.CallsToAction {
		if c.Tag == "input" && c.Text == "Subscribe" {
			ctaFound = true
		}
	}
	if !ctaFound {
		t.Error("submit input should appear as a call to action")
	}
}

func TestExtract_LandmarksAndTables(t *testing.T) {
	p := extractFixture(t)
	tags := map[string]bool{}
	for _, l := range p.Layout.Landmarks {
		tags[l.Tag] = true
	}
	for _, want := range []string{"header", "nav", "main", "footer"} {
		if !tags[want] {
			t.Errorf("missing landmark %q", want)
		}
	}
	if len(p.Content.Tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(p.Content.Tables))
	}
	tb := p.Content.Tables[0]
	if tb.Caption != "Prices" || !tb.HasHeaderRow {
		t.Errorf("table %+v", tb)
	}
}

func TestExtract_SelectorUsesID(t *testing.T) {
	p := extractFixture(t)
	for _, l := range p.Layout.Landmarks {
		if l.Tag == "main" && l.Selector != "#content" {
			t.Errorf("main selector %q, want #content", l.Selector)
		}
	}
}

func TestExtract_MalformedDegradesGracefully(t *testing.T) {
	p := Extract("https://example.com", []byte("<div><span>unclosed<img src=x>"), nil)
	if p == nil {
		t.Fatal("Extract must never return nil")
	}
	if len(p.Content.Images) != 1 {
		t.Errorf("got %d images from malformed markup, want 1", len(p.Content.Images))
	}
	if p.Layout.Headings == nil || p.Flows.Forms == nil {
		t.Error("missing sections must be empty collections, not nil")
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	p := Extract("https://example.com", nil, nil)
	if p == nil || p.Layout.Links == nil || p.Content.Images == nil {
		t.Fatal("empty input must still produce a well-formed snapshot")
	}
}

func TestExtract_ProbeMerge(t *testing.T) {
	probe := &Probe{
		ContrastPairs: []ContrastPair{{Selector: "p", Ratio: 2.1}},
		FocusOrder:    []string{"#email"},
		Framework:     "react",
	}
	p := Extract("https://example.com/store", []byte(fixture), probe)
	if len(p.AccessibilityTree.ContrastPairs) != 1 {
		t.Error("probe contrast pairs not merged")
	}
	if len(p.AccessibilityTree.FocusOrder) != 1 || p.AccessibilityTree.FocusOrder[0] != "#email" {
		t.Error("probe focus order should override the static walk")
	}
	if p.Meta.Framework != "react" {
		t.Errorf("framework %q, want react", p.Meta.Framework)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	a := extractFixture(t)
	b := extractFixture(t)
	a.CapturedAt = b.CapturedAt
	if len(a.Layout.Links) != len(b.Layout.Links) || len(a.Flows.Forms) != len(b.Flows.Forms) {
		t.Fatal("repeated extraction differs")
	}
	for i := range a.Layout.Links {
		if a.Layout.Links[i] != b.Layout.Links[i] {
			t.Fatalf("link %d differs: %+v vs %+v", i, a.Layout.Links[i], b.Layout.Links[i])
		}
	}
}

func TestParseProbe(t *testing.T) {
	p, err := ParseProbe([]byte(`{"contrast_pairs":[{"selector":"p","ratio":3.2}],"focus_order":["a"],"framework":"vue"}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.ContrastPairs[0].Ratio != 3.2 || p.Framework != "vue" {
		t.Fatalf("probe %+v", p)
	}

	if _, err := ParseProbe([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed probe output")
	}
}
