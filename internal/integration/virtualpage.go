package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

// Default VirtualPage geometry.
const (
	DefaultViewportHeight = 600.0
	DefaultViewportWidth  = 1200.0
	DefaultRowHeight      = 60.0
	DefaultOverscan       = 2
)

// ConversationRow is one item of a simulated conversation together with its
// rendered height.
type ConversationRow struct {
	Node   models.RowNode
	Height float64
}

// VirtualPageOptions configures a VirtualPage.
type VirtualPageOptions struct {
	ViewportHeight float64
	Width          float64
	// Overscan is how many rows beyond each viewport edge stay mounted.
	Overscan int
	// Placeholders is how many rows past the overscan are mounted but not yet
	// measured (rendered with an empty rect).
	Placeholders int
	// SidePanel rows are rendered left of the conversation pane on every
	// sample, like a chat list.
	SidePanel []models.RowNode
	// SettleDelay is how long Settle waits before committing a scroll.
	SettleDelay time.Duration
	// NoContainer makes FindContainer fail, as a host without a recognisable
	// scroll region would.
	NoContainer bool
}

// VirtualPage is an in-memory virtualized conversation view. Only rows
// intersecting the viewport (plus overscan) are rendered, and a scroll only
// changes the rendered window once Settle has run.
type VirtualPage struct {
	mu         sync.Mutex
	rows       []ConversationRow
	tops       []float64
	total      float64
	opts       VirtualPageOptions
	offset     float64
	rendered   float64
	scrolls    int
	highlights map[string]core.MarkerRole
}

var (
	_ core.Surface      = (*VirtualPage)(nil)
	_ core.ScrollDriver = (*VirtualPage)(nil)
	_ core.Highlighter  = (*VirtualPage)(nil)
)

// NewVirtualPage creates a VirtualPage scrolled to the top.
func NewVirtualPage(rows []ConversationRow, opts VirtualPageOptions) *VirtualPage {
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = DefaultViewportHeight
	}
	if opts.Width <= 0 {
		opts.Width = DefaultViewportWidth
	}
	if opts.Overscan < 0 {
		opts.Overscan = 0
	}
	p := &VirtualPage{
		rows:       rows,
		tops:       make([]float64, len(rows)),
		opts:       opts,
		highlights: make(map[string]core.MarkerRole),
	}
	for i := range p.rows {
		if p.rows[i].Height <= 0 {
			p.rows[i].Height = DefaultRowHeight
		}
		p.tops[i] = p.total
		p.total += p.rows[i].Height
	}
	return p
}

// Rows returns the rendered rows in document order: side-panel rows first,
// then the mounted conversation window.
func (p *VirtualPage) Rows(ctx context.Context) ([]models.RowNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.RowNode, 0, len(p.opts.SidePanel)+32)
	sideWidth := p.opts.Width * 0.28
	for i, node := range p.opts.SidePanel {
		node.Rect = models.Rect{X: 0, Y: float64(i) * 72, Width: sideWidth, Height: 72}
		out = append(out, node)
	}

	first, last := p.windowLocked()
	if first > last {
		return out, nil
	}
	mountFrom := max(first-p.opts.Overscan, 0)
	mountTo := min(last+p.opts.Overscan, len(p.rows)-1)
	from := max(mountFrom-p.opts.Placeholders, 0)
	to := min(mountTo+p.opts.Placeholders, len(p.rows)-1)

	paneX := p.opts.Width * 0.35
	paneWidth := p.opts.Width * 0.6
	for i := from; i <= to; i++ {
		node := p.rows[i].Node
		if i >= mountFrom && i <= mountTo {
			node.Rect = models.Rect{
				X:      paneX,
				Y:      p.tops[i] - p.rendered,
				Width:  paneWidth,
				Height: p.rows[i].Height,
			}
		} else {
			node.Rect = models.Rect{X: paneX, Y: p.tops[i] - p.rendered}
		}
		out = append(out, node)
	}
	return out, nil
}

// Width returns the viewport width.
func (p *VirtualPage) Width(ctx context.Context) (float64, error) {
	return p.opts.Width, nil
}

// FindContainer returns the page itself as the scroll driver.
func (p *VirtualPage) FindContainer(ctx context.Context) (core.ScrollDriver, error) {
	if p.opts.NoContainer {
		return nil, &core.CaptureError{Code: core.CodeContainerNotFound, Msg: "simulated page has no scrollable conversation region"}
	}
	return p, nil
}

// Offset returns the current scroll offset.
func (p *VirtualPage) Offset(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset, nil
}

// ScrollBy moves the offset by delta, clamped to the content. The rendered
// window follows on the next Settle.
func (p *VirtualPage) ScrollBy(ctx context.Context, delta float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	p.offset = p.clampLocked(p.offset + delta)
	return p.offset, nil
}

// ScrollTo sets the offset, clamped to the content.
func (p *VirtualPage) ScrollTo(ctx context.Context, offset float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = p.clampLocked(offset)
	return nil
}

// AtTop reports whether the offset is at the start of the content.
func (p *VirtualPage) AtTop(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset <= 0, nil
}

// AtBottom reports whether the offset is at the end of the content.
func (p *VirtualPage) AtBottom(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset >= p.maxOffsetLocked(), nil
}

// Settle waits the configured delay and renders the window at the current
// offset.
func (p *VirtualPage) Settle(ctx context.Context) error {
	if err := core.SettleDelay(ctx, p.opts.SettleDelay); err != nil {
		return err
	}
	p.mu.Lock()
	p.rendered = p.offset
	p.mu.Unlock()
	return nil
}

// Highlight records a marker on the row's id.
func (p *VirtualPage) Highlight(ctx context.Context, row models.RowNode, role core.MarkerRole) error {
	if row.DataID == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.highlights[row.DataID] = role
	return nil
}

// ClearHighlights removes every marker.
func (p *VirtualPage) ClearHighlights(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.highlights = make(map[string]core.MarkerRole)
	return nil
}

// Highlights returns a copy of the current markers keyed by row id.
func (p *VirtualPage) Highlights() map[string]core.MarkerRole {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]core.MarkerRole, len(p.highlights))
	for k, v := range p.highlights {
		out[k] = v
	}
	return out
}

// Len returns the number of conversation rows.
func (p *VirtualPage) Len() int {
	return len(p.rows)
}

// Row returns the i-th conversation row as it would be clicked.
func (p *VirtualPage) Row(i int) (models.RowNode, error) {
	if i < 0 || i >= len(p.rows) {
		return models.RowNode{}, fmt.Errorf("row %d out of range [0,%d)", i, len(p.rows))
	}
	return p.rows[i].Node, nil
}

// IndexOf returns the index of the row with the given data id.
func (p *VirtualPage) IndexOf(id string) (int, bool) {
	for i, r := range p.rows {
		if r.Node.DataID == id {
			return i, true
		}
	}
	return -1, false
}

// FindRow returns the first rendered row matching ref by data id or text.
func (p *VirtualPage) FindRow(ctx context.Context, ref string) (models.RowNode, bool, error) {
	rows, err := p.Rows(ctx)
	if err != nil {
		return models.RowNode{}, false, err
	}
	row, ok := matchRow(rows, ref)
	return row, ok, nil
}

// Reveal scrolls so that row i is at the top of the viewport (or as close as
// the content allows) and renders immediately, like a user jumping to it.
func (p *VirtualPage) Reveal(i int) error {
	if i < 0 || i >= len(p.rows) {
		return fmt.Errorf("row %d out of range [0,%d)", i, len(p.rows))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = p.clampLocked(p.tops[i])
	p.rendered = p.offset
	return nil
}

// VisibleRange returns the first and last row indices intersecting the
// rendered viewport, or (0,-1) when nothing is rendered.
func (p *VirtualPage) VisibleRange() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.windowLocked()
}

// Scrolls returns how many ScrollBy calls the page has received.
func (p *VirtualPage) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

// windowLocked returns the rows intersecting [rendered, rendered+height).
func (p *VirtualPage) windowLocked() (int, int) {
	if len(p.rows) == 0 {
		return 0, -1
	}
	top := p.rendered
	bottom := p.rendered + p.opts.ViewportHeight
	first := sort.Search(len(p.rows), func(i int) bool {
		return p.tops[i]+p.rows[i].Height > top
	})
	last := sort.Search(len(p.rows), func(i int) bool {
		return p.tops[i] >= bottom
	}) - 1
	if first >= len(p.rows) || last < first {
		return 0, -1
	}
	return first, last
}

func (p *VirtualPage) maxOffsetLocked() float64 {
	return max(p.total-p.opts.ViewportHeight, 0)
}

func (p *VirtualPage) clampLocked(offset float64) float64 {
	return min(max(offset, 0), p.maxOffsetLocked())
}
