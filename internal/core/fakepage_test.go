package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/valter-silva-au/chatrange/pkg/models"
)

// fakePage is a minimal virtualized list: only the rows intersecting the
// viewport are rendered, at fixed height.
type fakePage struct {
	mu          sync.Mutex
	rows        []models.RowNode
	rowHeight   float64
	visible     int
	offset      float64
	width       float64
	noContainer bool
	rowsErr     error
	scrolls     int
	// settle, when set, replaces the default immediate Settle.
	settle func(ctx context.Context) error
}

func newFakePage(rows []models.RowNode, visible int) *fakePage {
	return &fakePage{rows: rows, rowHeight: 40, visible: visible, width: 1000}
}

func (p *fakePage) maxOffset() float64 {
	m := float64(len(p.rows)-p.visible) * p.rowHeight
	if m < 0 {
		return 0
	}
	return m
}

func (p *fakePage) Rows(ctx context.Context) ([]models.RowNode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rowsErr != nil {
		return nil, p.rowsErr
	}
	first := int(p.offset / p.rowHeight)
	last := first + p.visible
	if last > len(p.rows) {
		last = len(p.rows)
	}
	out := make([]models.RowNode, 0, last-first)
	for i := first; i < last; i++ {
		row := p.rows[i]
		row.Rect = models.Rect{X: p.width * 0.4, Y: float64(i)*p.rowHeight - p.offset, Width: p.width * 0.5, Height: p.rowHeight}
		out = append(out, row)
	}
	return out, nil
}

func (p *fakePage) Width(ctx context.Context) (float64, error) {
	return p.width, nil
}

func (p *fakePage) FindContainer(ctx context.Context) (ScrollDriver, error) {
	if p.noContainer {
		return nil, newCaptureError(CodeContainerNotFound, "no scrollable region", nil)
	}
	return p, nil
}

func (p *fakePage) Offset(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset, nil
}

func (p *fakePage) ScrollBy(ctx context.Context, delta float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	p.offset = clamp(p.offset+delta, 0, p.maxOffset())
	return p.offset, nil
}

func (p *fakePage) ScrollTo(ctx context.Context, offset float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = clamp(offset, 0, p.maxOffset())
	return nil
}

func (p *fakePage) AtTop(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset <= 0, nil
}

func (p *fakePage) AtBottom(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset >= p.maxOffset(), nil
}

func (p *fakePage) Settle(ctx context.Context) error {
	if p.settle != nil {
		return p.settle(ctx)
	}
	return ctx.Err()
}

// showRow scrolls so that row i is the first rendered row.
func (p *fakePage) showRow(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = clamp(float64(i)*p.rowHeight, 0, p.maxOffset())
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// textRow builds a rendered text message row.
func textRow(id, ts, sender, text string) models.RowNode {
	return models.RowNode{
		DataID: id,
		Copyable: &models.CopyableBlock{
			PrePlainText: fmt.Sprintf("[%s] %s: ", ts, sender),
			Segments:     []models.Segment{{Text: text}},
		},
		TimeLabel: ts,
	}
}

// conversation builds n text rows "m0".."m<n-1>" alternating two senders.
func conversation(n int) []models.RowNode {
	senders := []string{"Alice", "Bob"}
	rows := make([]models.RowNode, n)
	for i := range rows {
		rows[i] = textRow(
			fmt.Sprintf("m%d", i),
			fmt.Sprintf("10:%02d", i%60),
			senders[(i/2)%len(senders)],
			fmt.Sprintf("message number %d", i),
		)
	}
	return rows
}

// recordingLogger captures logged events.
type recordingLogger struct {
	mu     sync.Mutex
	events []string
	data   []map[string]any
}

func (l *recordingLogger) LogEvent(eventType string, data map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, eventType)
	l.data = append(l.data, data)
	return nil
}

func (l *recordingLogger) has(eventType string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == eventType {
			return true
		}
	}
	return false
}

func ids(records []models.MessageRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
