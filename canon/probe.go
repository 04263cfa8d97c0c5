package canon

import (
	"encoding/json"
	"fmt"
)

// Probe carries browser-measured page data that static HTML parsing cannot
// produce. It is evaluated inside the rendered page and merged into the
// snapshot by Extract.
type Probe struct {
	ContrastPairs []ContrastPair `json:"contrast_pairs"`
	FocusOrder    []string       `json:"focus_order"`
	Framework     string         `json:"framework"`
}

// ParseProbe decodes the JSON string returned by ProbeScript.
func ParseProbe(data []byte) (*Probe, error) {
	var p Probe
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("canon: parse probe: %w", err)
	}
	for i := range p.ContrastPairs {
		if p.ContrastPairs[i].Ratio < 0 {
			p.ContrastPairs[i].Ratio = 0
		}
	}
	return &p, nil
}

// ProbeScript is evaluated in the page to sample computed styles and the
// real focus order. It returns a JSON string matching Probe.
//
// Contrast sampling walks visible text elements, resolves the effective
// background by climbing ancestors until a non-transparent color is found,
// and computes the WCAG relative-luminance contrast ratio. The sample is
// capped to keep evaluation cheap on large pages.
const ProbeScript = `() => {
	const MAX_SAMPLES = 200;

	const cssPath = (el) => {
		if (el.id && !/\s/.test(el.id)) return '#' + el.id;
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1) {
			if (node.id && !/\s/.test(node.id)) { parts.unshift('#' + node.id); break; }
			let idx = 1;
			let sib = node.previousElementSibling;
			while (sib) {
				if (sib.tagName === node.tagName) idx++;
				sib = sib.previousElementSibling;
			}
			const tag = node.tagName.toLowerCase();
			let same = idx;
			sib = node.nextElementSibling;
			while (sib) {
				if (sib.tagName === node.tagName) same++;
				sib = sib.nextElementSibling;
			}
			parts.unshift(same > 1 ? tag + ':nth-of-type(' + idx + ')' : tag);
			node = node.parentElement;
		}
		return parts.join(' > ');
	};

	const parseColor = (s) => {
		const m = s.match(/rgba?\(([\d.]+)[, ]+([\d.]+)[, ]+([\d.]+)(?:[,/ ]+([\d.]+))?\)/);
		if (!m) return null;
		return { r: +m[1], g: +m[2], b: +m[3], a: m[4] === undefined ? 1 : +m[4] };
	};

	const luminance = (c) => {
		const f = (v) => {
			v /= 255;
			return v <= 0.04045 ? v / 12.92 : Math.pow((v + 0.055) / 1.055, 2.4);
		};
		return 0.2126 * f(c.r) + 0.7152 * f(c.g) + 0.0722 * f(c.b);
	};

	const effectiveBackground = (el) => {
		let node = el;
		while (node && node.nodeType === 1) {
			const c = parseColor(getComputedStyle(node).backgroundColor);
			if (c && c.a > 0) return c;
			node = node.parentElement;
		}
		return { r: 255, g: 255, b: 255, a: 1 };
	};

	const pairs = [];
	const walker = document.createTreeWalker(document.body || document.documentElement, NodeFilter.SHOW_TEXT);
	const seen = new Set();
	while (pairs.length < MAX_SAMPLES) {
		const textNode = walker.nextNode();
		if (!textNode) break;
		if (!textNode.textContent.trim()) continue;
		const el = textNode.parentElement;
		if (!el || seen.has(el)) continue;
		seen.add(el);
		const style = getComputedStyle(el);
		if (style.visibility === 'hidden' || style.display === 'none') continue;
		const fg = parseColor(style.color);
		if (!fg) continue;
		const bg = effectiveBackground(el);
		const l1 = luminance(fg), l2 = luminance(bg);
		const ratio = (Math.max(l1, l2) + 0.05) / (Math.min(l1, l2) + 0.05);
		const size = parseFloat(style.fontSize) || 16;
		const weight = parseInt(style.fontWeight, 10) || 400;
		pairs.push({
			selector: cssPath(el),
			foreground: style.color,
			background: 'rgb(' + bg.r + ', ' + bg.g + ', ' + bg.b + ')',
			ratio: Math.round(ratio * 100) / 100,
			large_text: size >= 24 || (size >= 18.66 && weight >= 700)
		});
	}

	const focusables = document.querySelectorAll(
		'a[href], button, input:not([type=hidden]), select, textarea, [tabindex]');
	const entries = [];
	let docIdx = 0;
	for (const el of focusables) {
		const ti = el.tabIndex;
		if (ti < 0) continue;
		entries.push({ ti: ti, idx: docIdx++, sel: cssPath(el) });
	}
	entries.sort((a, b) => {
		if (a.ti > 0 && b.ti > 0) return a.ti - b.ti || a.idx - b.idx;
		if (a.ti > 0) return -1;
		if (b.ti > 0) return 1;
		return a.idx - b.idx;
	});

	let framework = '';
	if (window.__NEXT_DATA__) framework = 'next';
	else if (window.React || document.querySelector('[data-reactroot]')) framework = 'react';
	else if (window.Vue || document.querySelector('[data-server-rendered]')) framework = 'vue';
	else if (window.ng || document.querySelector('[ng-version]')) framework = 'angular';

	return JSON.stringify({
		contrast_pairs: pairs,
		focus_order: entries.map(e => e.sel),
		framework: framework
	});
}`
