// Package canon defines the canonical page snapshot: a structured,
// framework-agnostic representation of a rendered page that every analysis
// stage consumes. A snapshot is immutable once captured and may be persisted
// for later re-analysis without re-crawling.
package canon

import "time"

// Page is the canonical snapshot of one crawled URL.
type Page struct {
	URL        string    `json:"url"`
	CapturedAt time.Time `json:"captured_at"`

	Layout            Layout            `json:"layout"`
	AccessibilityTree AccessibilityTree `json:"accessibility_tree"`
	Content           Content           `json:"content"`
	Flows             Flows             `json:"flows"`
	Meta              Meta              `json:"meta"`
}

// Layout captures the page's structural skeleton.
type Layout struct {
	Landmarks []Landmark `json:"landmarks"`
	Headings  []Heading  `json:"headings"`
	Links     []Link     `json:"links"`
}

// Landmark is a sectioning element (main, nav, header, footer, aside,
// article, section) or an element with an explicit landmark role.
type Landmark struct {
	Tag      string `json:"tag"`
	Role     string `json:"role,omitempty"`
	Selector string `json:"selector"`
}

// Heading is one entry of the heading tree in document order.
type Heading struct {
	Level    int    `json:"level"`
	Text     string `json:"text"`
	Selector string `json:"selector"`
}

// Link is an anchor with a resolvable href.
type Link struct {
	Text     string `json:"text"`
	Href     string `json:"href"`
	Internal bool   `json:"internal"`
	Selector string `json:"selector"`
	Snippet  string `json:"snippet,omitempty"`
}

// AccessibilityTree carries ARIA and interaction data.
type AccessibilityTree struct {
	Roles         []AriaNode     `json:"roles"`
	FocusOrder    []string       `json:"focus_order"` // selectors in tab order
	ContrastPairs []ContrastPair `json:"contrast_pairs"`
}

// AriaNode is an element with an explicit ARIA role.
type AriaNode struct {
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"` // accessible name, when derivable
	Selector string `json:"selector"`
}

// ContrastPair is a sampled foreground/background color pair. Only the
// browser probe can populate these; static extraction leaves them empty.
type ContrastPair struct {
	Selector   string  `json:"selector"`
	Foreground string  `json:"foreground"`
	Background string  `json:"background"`
	Ratio      float64 `json:"ratio"`
	LargeText  bool    `json:"large_text"`
}

// Content captures visible text and media.
type Content struct {
	Text   string  `json:"text"`
	Tables []Table `json:"tables"`
	Images []Image `json:"images"`
}

// Table describes a data table's accessibility-relevant structure.
type Table struct {
	Selector     string `json:"selector"`
	Caption      string `json:"caption,omitempty"`
	HasHeaderRow bool   `json:"has_header_row"`
}

// Image is an img element with its text alternatives and context.
type Image struct {
	Selector        string `json:"selector"`
	Src             string `json:"src,omitempty"`
	Alt             string `json:"alt"`
	HasAlt          bool   `json:"has_alt"` // attribute present, even if empty
	AriaLabel       string `json:"aria_label,omitempty"`
	Decorative      bool   `json:"decorative"` // alt="" or presentation role
	SurroundingText string `json:"surrounding_text,omitempty"`
	Snippet         string `json:"snippet,omitempty"`
}

// Flows captures interactive structures: forms and calls to action.
type Flows struct {
	Forms         []Form         `json:"forms"`
	CallsToAction []CallToAction `json:"calls_to_action"`
}

// Form groups the controls of one form element. Controls outside any form
// are grouped under a pseudo-form with selector "document".
type Form struct {
	Selector string  `json:"selector"`
	Inputs   []Input `json:"inputs"`
}

// Input is a form control (input, select, textarea).
type Input struct {
	Tag         string `json:"tag"`
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	Selector    string `json:"selector"`
	HasLabel    bool   `json:"has_label"` // associated label, wrapping label, or aria-label
	AriaLabel   string `json:"aria_label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
}

// CallToAction is a button-like interactive element.
type CallToAction struct {
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Selector string `json:"selector"`
}

// Meta carries document-level metadata.
type Meta struct {
	Framework    string `json:"framework,omitempty"` // react, vue, angular, next, …
	Language     string `json:"language,omitempty"`  // html lang attribute
	CanonicalURL string `json:"canonical_url,omitempty"`
}
