// Package contextual runs the AI pass over an extracted page. It is strictly
// best-effort: any failure (transport, timeout, malformed output) yields an
// empty candidate slice and a log line, never an error that could fail a scan.
package contextual

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/a11yscan/canon"
	"github.com/hazyhaar/a11yscan/findings"
	"github.com/hazyhaar/a11yscan/rules"
	"github.com/hazyhaar/a11yscan/wcag"
)

// Config configures the analyzer.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`

	// Timeout bounds one Analyze call end to end.
	Timeout time.Duration `yaml:"timeout"`

	// MaxPayloadBytes caps the markdown body embedded in the prompt.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 90 * time.Second
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = 32 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Analyzer asks a completion provider for accessibility issues the
// deterministic rules cannot see (ambiguous alt text, confusing flow,
// misleading link context).
type Analyzer struct {
	provider Provider
	md       *converter.Converter
	cfg      Config
	logger   *slog.Logger
}

// New builds an Analyzer. Pass a nil provider to disable the AI pass; Analyze
// then always returns an empty slice.
func New(cfg Config, provider Provider) *Analyzer {
	cfg.applyDefaults()
	return &Analyzer{
		provider: provider,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Analyze sends one page to the provider and returns validated candidates.
// html is the rendered document as captured by the browser; known lists the
// findings already produced so the model focuses elsewhere.
func (a *Analyzer) Analyze(ctx context.Context, page *canon.Page, html []byte, known []findings.Finding) []findings.Candidate {
	if a.provider == nil || page == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	prompt := a.buildPrompt(page, html, known)
	raw, err := a.provider.Complete(ctx, prompt)
	if err != nil {
		a.logger.Warn("contextual: completion failed, skipping AI pass",
			"url", page.URL, "error", err)
		return nil
	}

	cands, dropped := a.parse(raw, page.URL)
	if dropped > 0 {
		a.logger.Warn("contextual: dropped invalid candidates",
			"url", page.URL, "dropped", dropped, "kept", len(cands))
	}
	return cands
}

// candidateWire is the JSON entry the model is asked to emit.
type candidateWire struct {
	RuleID      string  `json:"rule_id"`
	Severity    int     `json:"severity"`
	Description string  `json:"description"`
	Selector    string  `json:"selector"`
	Snippet     string  `json:"snippet"`
	ElementType string  `json:"element_type"`
	Confidence  float64 `json:"confidence"`
}

func (a *Analyzer) buildPrompt(page *canon.Page, html []byte, known []findings.Finding) string {
	var b strings.Builder
	b.WriteString("You are an accessibility auditor. Review the page below and report issues a deterministic WCAG checker would miss: meaningless alt text, misleading link context, confusing reading order, forms whose purpose is unclear.\n\n")
	b.WriteString("Respond with a JSON array only, no prose. Each entry: {\"rule_id\", \"severity\" (1-4), \"description\", \"selector\", \"snippet\", \"element_type\", \"confidence\" (0-1)}.\n\n")

	fmt.Fprintf(&b, "URL: %s\n", page.URL)
	if page.Meta.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", page.Meta.Language)
	}

	b.WriteString("\n## Structure\n")
	for _, l := range page.Layout.Landmarks {
		role := l.Role
		if role == "" {
			role = l.Tag
		}
		fmt.Fprintf(&b, "- landmark %s (%s)\n", role, l.Selector)
	}
	for _, h := range page.Layout.Headings {
		fmt.Fprintf(&b, "- h%d: %s\n", h.Level, h.Text)
	}
	for _, f := range page.Flows.Forms {
		fmt.Fprintf(&b, "- form %s with %d controls\n", f.Selector, len(f.Inputs))
	}

	if len(known) > 0 {
		b.WriteString("\n## Already reported (do not repeat)\n")
		seen := map[string]bool{}
		for _, f := range known {
			key := string(f.RuleID) + " " + f.Element.Selector
			if seen[key] {
				continue
			}
			seen[key] = true
			fmt.Fprintf(&b, "- %s at %s\n", f.RuleID, f.Element.Selector)
		}
	}

	b.WriteString("\n## Page body (markdown)\n")
	b.WriteString(a.markdownBody(page, html))
	return b.String()
}

// markdownBody converts the rendered HTML to markdown, falling back to the
// extracted visible text, and truncates to the payload budget.
func (a *Analyzer) markdownBody(page *canon.Page, html []byte) string {
	body := page.Content.Text
	if len(html) > 0 {
		md, err := a.md.ConvertString(string(html), converter.WithDomain(page.URL))
		if err == nil && strings.TrimSpace(md) != "" {
			body = strings.TrimSpace(md)
		}
	}
	if len(body) > a.cfg.MaxPayloadBytes {
		cut := body[:a.cfg.MaxPayloadBytes]
		if i := strings.LastIndexByte(cut, '\n'); i > 0 {
			cut = cut[:i]
		}
		body = cut
	}
	return body
}

// parse validates the raw model output. A payload that is not a JSON array
// yields nothing; individual invalid entries are dropped and counted.
func (a *Analyzer) parse(raw, pageURL string) ([]findings.Candidate, int) {
	raw = stripFence(raw)

	var wire []candidateWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		a.logger.Warn("contextual: unparseable model output", "url", pageURL, "error", err)
		return nil, 0
	}

	var out []findings.Candidate
	dropped := 0
	for _, w := range wire {
		if w.RuleID == "" || strings.TrimSpace(w.Description) == "" || w.Selector == "" {
			dropped++
			continue
		}
		if w.Severity < int(wcag.SeverityMinor) || w.Severity > int(wcag.SeverityCritical) {
			dropped++
			continue
		}
		conf := w.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		out = append(out, findings.Candidate{
			RuleID:      wcag.RuleID(w.RuleID),
			Severity:    wcag.Severity(w.Severity),
			Description: strings.TrimSpace(w.Description),
			Element: rules.Element{
				Type:     w.ElementType,
				Selector: w.Selector,
				Snippet:  w.Snippet,
			},
			PageURL:    pageURL,
			Confidence: conf,
		})
	}
	return out, dropped
}

// stripFence removes a markdown code fence if the model wrapped its JSON in one.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
