package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

// RodPageOptions describes how to reach the live chat tab.
type RodPageOptions struct {
	// DebuggerURL is the DevTools websocket of a running browser. When empty
	// a browser is launched.
	DebuggerURL string
	Headless    bool
	PageURL     string
	// Settle is the render wait after each scroll.
	Settle time.Duration
}

// RodPage is a live conversation view in a Chromium tab driven over the
// DevTools protocol.
type RodPage struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	settle   time.Duration
}

var (
	_ core.Surface     = (*RodPage)(nil)
	_ core.Highlighter = (*RodPage)(nil)
)

// ConnectRodPage attaches to (or launches) a browser and finds the tab whose
// URL matches opts.PageURL, opening one if none exists.
func ConnectRodPage(ctx context.Context, opts RodPageOptions) (*RodPage, error) {
	rp := &RodPage{settle: opts.Settle}

	controlURL := opts.DebuggerURL
	if controlURL == "" {
		rp.launcher = launcher.New().Headless(opts.Headless)
		u, err := rp.launcher.Launch()
		if err != nil {
			return nil, fmt.Errorf("no debugger_url and failed to launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		rp.cleanupLauncher()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	rp.browser = browser

	page, err := findOrOpenPage(browser, opts.PageURL)
	if err != nil {
		_ = rp.Close()
		return nil, err
	}
	rp.page = page
	return rp, nil
}

func findOrOpenPage(browser *rod.Browser, pageURL string) (*rod.Page, error) {
	pattern := regexp.QuoteMeta(pageURL)
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		pattern = regexp.QuoteMeta(u.Host)
	}

	pages, err := browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("listing browser tabs: %w", err)
	}
	if page, err := pages.FindByURL(pattern); err == nil {
		return page, nil
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for %s to load: %w", pageURL, err)
	}
	return page, nil
}

// Rows snapshots every rendered conversation row.
func (p *RodPage) Rows(ctx context.Context) ([]models.RowNode, error) {
	var rows []models.RowNode
	if err := p.eval(ctx, &rows, rowsScript); err != nil {
		return nil, fmt.Errorf("snapshotting rows: %w", err)
	}
	return rows, nil
}

// Width returns the window's inner width.
func (p *RodPage) Width(ctx context.Context) (float64, error) {
	var w float64
	if err := p.eval(ctx, &w, `() => window.innerWidth`); err != nil {
		return 0, fmt.Errorf("reading viewport width: %w", err)
	}
	return w, nil
}

// FindContainer locates the scrollable conversation region and tags it so
// later scroll calls can address it.
func (p *RodPage) FindContainer(ctx context.Context) (core.ScrollDriver, error) {
	var found bool
	if err := p.eval(ctx, &found, containerScript); err != nil {
		return nil, &core.CaptureError{Code: core.CodeContainerNotFound, Msg: "evaluating container lookup", Err: err}
	}
	if !found {
		return nil, &core.CaptureError{Code: core.CodeContainerNotFound, Msg: "no scrollable conversation region on the page"}
	}
	return &rodScroller{page: p}, nil
}

// Highlight outlines the anchored row.
func (p *RodPage) Highlight(ctx context.Context, row models.RowNode, role core.MarkerRole) error {
	if row.DataID == "" {
		return nil
	}
	color := "#25d366"
	if role == core.MarkerEnd {
		color = "#ff5722"
	}
	var ok bool
	return p.eval(ctx, &ok, highlightScript, row.DataID, color)
}

// ClearHighlights removes every outline added by Highlight.
func (p *RodPage) ClearHighlights(ctx context.Context) error {
	var n int
	return p.eval(ctx, &n, clearHighlightsScript)
}

// FindRow returns the first rendered row matching ref, either by exact data
// id or by a case-insensitive substring of its text.
func (p *RodPage) FindRow(ctx context.Context, ref string) (models.RowNode, bool, error) {
	rows, err := p.Rows(ctx)
	if err != nil {
		return models.RowNode{}, false, err
	}
	row, ok := matchRow(rows, ref)
	return row, ok, nil
}

// Close removes markers and, if the browser was launched by ConnectRodPage,
// shuts it down.
func (p *RodPage) Close() error {
	if p.page != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = p.ClearHighlights(ctx)
		cancel()
	}
	if p.launcher == nil || p.browser == nil {
		return nil
	}
	err := p.browser.Close()
	p.cleanupLauncher()
	if err != nil {
		return fmt.Errorf("closing browser: %w", err)
	}
	return nil
}

func (p *RodPage) cleanupLauncher() {
	if p.launcher != nil {
		p.launcher.Kill()
		p.launcher.Cleanup()
	}
}

// eval runs js in the page and decodes its JSON result into out.
func (p *RodPage) eval(ctx context.Context, out any, js string, args ...any) error {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("empty evaluation result")
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal evaluation result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode evaluation result: %w", err)
	}
	return nil
}

// rodScroller drives the tagged conversation container.
type rodScroller struct {
	page *RodPage
}

type scrollMetrics struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Client float64 `json:"client"`
}

func (s *rodScroller) metrics(ctx context.Context) (scrollMetrics, error) {
	var m *scrollMetrics
	if err := s.page.eval(ctx, &m, metricsScript); err != nil {
		return scrollMetrics{}, err
	}
	if m == nil {
		return scrollMetrics{}, &core.CaptureError{Code: core.CodeContainerNotFound, Msg: "conversation region detached"}
	}
	return *m, nil
}

func (s *rodScroller) Offset(ctx context.Context) (float64, error) {
	m, err := s.metrics(ctx)
	return m.Top, err
}

func (s *rodScroller) ScrollBy(ctx context.Context, delta float64) (float64, error) {
	var m *scrollMetrics
	if err := s.page.eval(ctx, &m, scrollByScript, delta); err != nil {
		return 0, err
	}
	if m == nil {
		return 0, &core.CaptureError{Code: core.CodeContainerNotFound, Msg: "conversation region detached"}
	}
	return m.Top, nil
}

func (s *rodScroller) ScrollTo(ctx context.Context, offset float64) error {
	var m *scrollMetrics
	if err := s.page.eval(ctx, &m, scrollToScript, offset); err != nil {
		return err
	}
	return nil
}

func (s *rodScroller) AtTop(ctx context.Context) (bool, error) {
	m, err := s.metrics(ctx)
	return err == nil && m.Top <= 0, err
}

func (s *rodScroller) AtBottom(ctx context.Context) (bool, error) {
	m, err := s.metrics(ctx)
	return err == nil && m.Top+m.Client >= m.Height-1, err
}

func (s *rodScroller) Settle(ctx context.Context) error {
	return core.SettleDelay(ctx, s.page.settle)
}

const rowsScript = `() => {
	const segments = (root) => {
		const out = [];
		const walk = (node) => {
			if (node.nodeType === Node.TEXT_NODE) { out.push({text: node.textContent}); return; }
			if (node.nodeType !== Node.ELEMENT_NODE) return;
			if (node.tagName === 'IMG') { if (node.alt) out.push({alt: node.alt}); return; }
			if (node.tagName === 'BR') { out.push({text: '\n'}); return; }
			node.childNodes.forEach(walk);
		};
		if (root) walk(root);
		return out;
	};
	return Array.from(document.querySelectorAll('div[role="row"]')).map((row) => {
		const r = row.getBoundingClientRect();
		const idEl = row.querySelector('[data-id]');
		const node = {
			dataId: idEl ? idEl.getAttribute('data-id') : '',
			rect: {x: r.left, y: r.top, width: r.width, height: r.height},
			innerText: row.innerText || '',
			mediaPlay: !!row.querySelector('span[data-testid="media-play"]'),
			images: Array.from(row.querySelectorAll('img'))
				.filter((img) => !img.closest('.copyable-text'))
				.map((img) => ({src: img.src || '', alt: img.alt || ''})),
		};
		const time = row.querySelector('span[data-testid="msg-time"]') || row.querySelector('._amig');
		if (time) node.timeLabel = time.innerText;
		const copy = row.querySelector('.copyable-text[data-pre-plain-text]');
		if (copy) {
			node.copyable = {
				prePlainText: copy.getAttribute('data-pre-plain-text') || '',
				segments: segments(copy.querySelector('span.selectable-text')),
				text: copy.innerText || '',
			};
		}
		const quoted = row.querySelector('div[aria-label="Quoted message"]');
		if (quoted) {
			const author = quoted.querySelector('span[dir="auto"]');
			node.quote = {
				sender: author ? author.innerText : '',
				segments: segments(quoted.querySelector('span.quoted-mention') || quoted),
			};
		}
		return node;
	});
}`

const containerScript = `() => {
	document.querySelectorAll('[data-chatrange-container]').forEach((e) => e.removeAttribute('data-chatrange-container'));
	const selectors = [
		'div[data-tab="6"]',
		'div[data-tab="7"]',
		'div[aria-label*="essage list"]',
		'div[aria-label*="Message list"]',
	];
	let el = null;
	for (const s of selectors) {
		el = document.querySelector(s);
		if (el) break;
	}
	if (!el) {
		el = Array.from(document.querySelectorAll('div'))
			.find((d) => d.scrollHeight > d.clientHeight && d.scrollHeight > 1000) || null;
	}
	if (!el) return false;
	el.setAttribute('data-chatrange-container', '1');
	return true;
}`

const metricsScript = `() => {
	const c = document.querySelector('[data-chatrange-container]');
	return c ? {top: c.scrollTop, height: c.scrollHeight, client: c.clientHeight} : null;
}`

const scrollByScript = `(delta) => {
	const c = document.querySelector('[data-chatrange-container]');
	if (!c) return null;
	c.scrollTop += delta;
	return {top: c.scrollTop, height: c.scrollHeight, client: c.clientHeight};
}`

const scrollToScript = `(offset) => {
	const c = document.querySelector('[data-chatrange-container]');
	if (!c) return null;
	c.scrollTop = offset;
	return {top: c.scrollTop, height: c.scrollHeight, client: c.clientHeight};
}`

const highlightScript = `(id, color) => {
	const el = document.querySelector('[data-id="' + CSS.escape(id) + '"]');
	if (!el) return false;
	const row = el.closest('div[role="row"]') || el;
	row.setAttribute('data-chatrange-marker', '1');
	row.style.outline = '3px solid ' + color;
	row.style.outlineOffset = '-3px';
	return true;
}`

const clearHighlightsScript = `() => {
	const marked = document.querySelectorAll('[data-chatrange-marker]');
	marked.forEach((row) => {
		row.style.outline = '';
		row.style.outlineOffset = '';
		row.removeAttribute('data-chatrange-marker');
	});
	return marked.length;
}`
