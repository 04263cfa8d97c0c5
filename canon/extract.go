package canon

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	maxSnippetLen  = 200
	maxContextLen  = 160
	maxVisibleText = 64 * 1024
)

var landmarkTags = map[atom.Atom]bool{
	atom.Main:    true,
	atom.Nav:     true,
	atom.Header:  true,
	atom.Footer:  true,
	atom.Aside:   true,
	atom.Article: true,
	atom.Section: true,
}

var landmarkRoles = map[string]bool{
	"main": true, "navigation": true, "banner": true, "contentinfo": true,
	"complementary": true, "region": true, "search": true, "form": true,
}

// Extract builds a canonical snapshot from rendered HTML. It never fails:
// malformed or unclosed markup degrades to empty collections. The probe, when
// present, contributes browser-measured data (contrast pairs, focus order,
// framework detection) that static parsing cannot produce.
//
// Extract does not fetch anything; unreachable pages are a navigation
// concern and surface as page-level errors in the orchestrator.
func Extract(pageURL string, renderedHTML []byte, probe *Probe) *Page {
	page := &Page{
		URL:        pageURL,
		CapturedAt: time.Now().UTC(),
		Layout: Layout{
			Landmarks: []Landmark{},
			Headings:  []Heading{},
			Links:     []Link{},
		},
		AccessibilityTree: AccessibilityTree{
			Roles:         []AriaNode{},
			FocusOrder:    []string{},
			ContrastPairs: []ContrastPair{},
		},
		Content: Content{
			Tables: []Table{},
			Images: []Image{},
		},
		Flows: Flows{
			Forms:         []Form{},
			CallsToAction: []CallToAction{},
		},
	}

	root, err := html.Parse(bytes.NewReader(renderedHTML))
	if err != nil || root == nil {
		applyProbe(page, probe)
		return page
	}

	base, _ := url.Parse(pageURL)

	w := &walker{page: page, base: base, labelFor: map[string]bool{}}
	w.walk(root, false)
	w.finish()

	applyProbe(page, probe)
	return page
}

func applyProbe(page *Page, probe *Probe) {
	if probe == nil {
		return
	}
	if len(probe.ContrastPairs) > 0 {
		page.AccessibilityTree.ContrastPairs = probe.ContrastPairs
	}
	if len(probe.FocusOrder) > 0 {
		page.AccessibilityTree.FocusOrder = probe.FocusOrder
	}
	if probe.Framework != "" {
		page.Meta.Framework = probe.Framework
	}
}

// walker accumulates snapshot data during a single depth-first pass.
type walker struct {
	page *Page
	base *url.URL

	text      strings.Builder
	labelFor  map[string]bool // ids referenced by <label for=…>
	inputs    []pendingInput  // resolved against labelFor in finish()
	focusable []focusEntry
}

type pendingInput struct {
	form  string // selector of the enclosing form, or "document"
	input Input
}

type focusEntry struct {
	tabIndex int
	selector string
}

func (w *walker) walk(n *html.Node, insideLabel bool) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		}
		w.element(n, insideLabel)
		if n.DataAtom == atom.Label {
			insideLabel = true
		}
	}

	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" && w.text.Len() < maxVisibleText {
			if w.text.Len() > 0 {
				w.text.WriteByte(' ')
			}
			w.text.WriteString(t)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, insideLabel)
	}
}

func (w *walker) element(n *html.Node, insideLabel bool) {
	role := attr(n, "role")

	if landmarkTags[n.DataAtom] || landmarkRoles[role] {
		w.page.Layout.Landmarks = append(w.page.Layout.Landmarks, Landmark{
			Tag:      n.Data,
			Role:     role,
			Selector: selectorFor(n),
		})
	}

	if role != "" {
		w.page.AccessibilityTree.Roles = append(w.page.AccessibilityTree.Roles, AriaNode{
			Role:     role,
			Name:     attr(n, "aria-label"),
			Selector: selectorFor(n),
		})
	}

	if ti := attr(n, "tabindex"); ti != "" || isNativelyFocusable(n) {
		idx, _ := strconv.Atoi(ti)
		if idx >= 0 { // tabindex="-1" removes the element from tab order
			w.focusable = append(w.focusable, focusEntry{tabIndex: idx, selector: selectorFor(n)})
		}
	}

	switch n.DataAtom {
	case atom.Html:
		w.page.Meta.Language = attr(n, "lang")

	case atom.Link:
		if strings.EqualFold(attr(n, "rel"), "canonical") {
			w.page.Meta.CanonicalURL = attr(n, "href")
		}

	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		w.page.Layout.Headings = append(w.page.Layout.Headings, Heading{
			Level:    level,
			Text:     textOf(n),
			Selector: selectorFor(n),
		})

	case atom.A:
		w.anchor(n)

	case atom.Img:
		w.image(n)

	case atom.Table:
		w.table(n)

	case atom.Label:
		if id := attr(n, "for"); id != "" {
			w.labelFor[id] = true
		}

	case atom.Input, atom.Select, atom.Textarea:
		w.control(n, insideLabel)

	case atom.Button:
		w.page.Flows.CallsToAction = append(w.page.Flows.CallsToAction, CallToAction{
			Tag:      "button",
			Text:     textOf(n),
			Selector: selectorFor(n),
		})
	}

	if w.page.Meta.Framework == "" {
		w.page.Meta.Framework = detectFramework(n)
	}
}

func (w *walker) anchor(n *html.Node) {
	href := attr(n, "href")
	if href == "" || strings.HasPrefix(href, "#") {
		return
	}
	resolved := href
	internal := false
	if w.base != nil {
		if u, err := url.Parse(href); err == nil {
			r := w.base.ResolveReference(u)
			if r.Scheme != "http" && r.Scheme != "https" {
				return // mailto:, javascript:, tel:, …
			}
			resolved = r.String()
			internal = r.Host == w.base.Host
		}
	}
	text := textOf(n)
	if text == "" {
		// Image links take their text from the image alternative.
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Img {
				text = attr(c, "alt")
				break
			}
		}
	}
	if text == "" {
		text = attr(n, "aria-label")
	}
	w.page.Layout.Links = append(w.page.Layout.Links, Link{
		Text:     text,
		Href:     resolved,
		Internal: internal,
		Selector: selectorFor(n),
		Snippet:  snippetOf(n),
	})

	if attr(n, "role") == "button" {
		w.page.Flows.CallsToAction = append(w.page.Flows.CallsToAction, CallToAction{
			Tag:      "a",
			Text:     text,
			Selector: selectorFor(n),
		})
	}
}

func (w *walker) image(n *html.Node) {
	alt, hasAlt := lookupAttr(n, "alt")
	role := attr(n, "role")
	decorative := (hasAlt && strings.TrimSpace(alt) == "") ||
		role == "presentation" || role == "none" ||
		attr(n, "aria-hidden") == "true"

	surrounding := ""
	if n.Parent != nil {
		surrounding = truncate(textOf(n.Parent), maxContextLen)
	}

	w.page.Content.Images = append(w.page.Content.Images, Image{
		Selector:        selectorFor(n),
		Src:             attr(n, "src"),
		Alt:             alt,
		HasAlt:          hasAlt,
		AriaLabel:       attr(n, "aria-label"),
		Decorative:      decorative,
		SurroundingText: surrounding,
		Snippet:         snippetOf(n),
	})
}

func (w *walker) table(n *html.Node) {
	t := Table{Selector: selectorFor(n)}
	var visit func(*html.Node, bool)
	firstRowSeen := false
	visit = func(m *html.Node, inFirstRow bool) {
		if m.Type == html.ElementNode {
			switch m.DataAtom {
			case atom.Caption:
				t.Caption = textOf(m)
				return
			case atom.Tr:
				if firstRowSeen {
					return // only the header row matters here
				}
				firstRowSeen = true
				inFirstRow = true
			case atom.Th:
				if inFirstRow {
					t.HasHeaderRow = true
				}
			case atom.Table:
				if m != n {
					return // nested tables are extracted on their own visit
				}
			}
		}
		for c := m.FirstChild; c != nil; c = c.NextSibling {
			visit(c, inFirstRow)
		}
	}
	visit(n, false)
	w.page.Content.Tables = append(w.page.Content.Tables, t)
}

func (w *walker) control(n *html.Node, insideLabel bool) {
	typ := strings.ToLower(attr(n, "type"))

	if n.DataAtom == atom.Input {
		switch typ {
		case "submit", "button", "image":
			w.page.Flows.CallsToAction = append(w.page.Flows.CallsToAction, CallToAction{
				Tag:      "input",
				Text:     attr(n, "value"),
				Selector: selectorFor(n),
			})
			return
		}
	}

	formSel := "document"
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Form {
			formSel = selectorFor(p)
			break
		}
	}

	aria := attr(n, "aria-label")
	w.inputs = append(w.inputs, pendingInput{
		form: formSel,
		input: Input{
			Tag:         n.Data,
			Type:        typ,
			Name:        attr(n, "name"),
			ID:          attr(n, "id"),
			Selector:    selectorFor(n),
			HasLabel:    insideLabel || aria != "" || attr(n, "aria-labelledby") != "",
			AriaLabel:   aria,
			Placeholder: attr(n, "placeholder"),
			Snippet:     snippetOf(n),
		},
	})
}

// finish resolves label associations and groups controls into forms.
func (w *walker) finish() {
	w.page.Content.Text = truncate(w.text.String(), maxVisibleText)

	formIndex := map[string]int{}
	for _, pi := range w.inputs {
		in := pi.input
		if !in.HasLabel && in.ID != "" && w.labelFor[in.ID] {
			in.HasLabel = true
		}
		i, ok := formIndex[pi.form]
		if !ok {
			w.page.Flows.Forms = append(w.page.Flows.Forms, Form{Selector: pi.form})
			i = len(w.page.Flows.Forms) - 1
			formIndex[pi.form] = i
		}
		w.page.Flows.Forms[i].Inputs = append(w.page.Flows.Forms[i].Inputs, in)
	}

	// Positive tabindex values come first in ascending order, then document
	// order for the rest. Stable by construction: one pass for each bucket.
	var explicit, natural []focusEntry
	for _, f := range w.focusable {
		if f.tabIndex > 0 {
			explicit = append(explicit, f)
		} else {
			natural = append(natural, f)
		}
	}
	for i := 1; i < len(explicit); i++ {
		for j := i; j > 0 && explicit[j].tabIndex < explicit[j-1].tabIndex; j-- {
			explicit[j], explicit[j-1] = explicit[j-1], explicit[j]
		}
	}
	order := make([]string, 0, len(w.focusable))
	for _, f := range explicit {
		order = append(order, f.selector)
	}
	for _, f := range natural {
		order = append(order, f.selector)
	}
	w.page.AccessibilityTree.FocusOrder = order
}

func isNativelyFocusable(n *html.Node) bool {
	switch n.DataAtom {
	case atom.A:
		return attr(n, "href") != ""
	case atom.Button, atom.Select, atom.Textarea:
		return true
	case atom.Input:
		return strings.ToLower(attr(n, "type")) != "hidden"
	}
	return false
}

func detectFramework(n *html.Node) string {
	for _, a := range n.Attr {
		switch {
		case a.Key == "data-reactroot" || a.Key == "data-reactid":
			return "react"
		case a.Key == "ng-version" || strings.HasPrefix(a.Key, "ng-"):
			return "angular"
		case a.Key == "data-server-rendered" || strings.HasPrefix(a.Key, "data-v-"):
			return "vue"
		case a.Key == "id" && a.Val == "__next":
			return "next"
		case a.Key == "id" && a.Val == "___gatsby":
			return "gatsby"
		}
	}
	return ""
}

// --- node helpers ---

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// textOf returns the collapsed visible text of a subtree.
func textOf(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(m *html.Node) {
		if m.Type == html.TextNode {
			b.WriteString(m.Data)
			b.WriteByte(' ')
		}
		if m.Type == html.ElementNode {
			switch m.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := m.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// snippetOf renders the element's outer HTML, truncated.
func snippetOf(n *html.Node) string {
	var b bytes.Buffer
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return truncate(b.String(), maxSnippetLen)
}

// selectorFor builds a CSS selector path for a node. Elements with an id get
// the short "#id" form; otherwise the path uses :nth-of-type where needed.
func selectorFor(n *html.Node) string {
	if id := attr(n, "id"); id != "" && !strings.ContainsAny(id, " \t") {
		return "#" + id
	}

	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id := attr(cur, "id"); id != "" && !strings.ContainsAny(id, " \t") {
			parts = append(parts, "#"+id)
			break
		}
		idx, total := 1, 1
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == cur.Data {
				idx++
			}
		}
		for sib := cur.NextSibling; sib != nil; sib = sib.NextSibling {
			if sib.Type == html.ElementNode && sib.Data == cur.Data {
				total++
			}
		}
		total += idx - 1
		part := cur.Data
		if total > 1 {
			part += ":nth-of-type(" + strconv.Itoa(idx) + ")"
		}
		parts = append(parts, part)
	}

	// parts were collected leaf-first.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
