package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

// Defaults for CaptureByRef.
const (
	DefaultEndPoll = 500 * time.Millisecond
	DefaultEndWait = 5 * time.Minute
)

// RowFinder locates a rendered row by data id or visible text.
type RowFinder interface {
	FindRow(ctx context.Context, ref string) (models.RowNode, bool, error)
}

// RefCaptureOptions tunes CaptureByRef.
type RefCaptureOptions struct {
	// Poll is how often the view is checked for the end anchor.
	Poll time.Duration
	// Wait bounds how long the user has to bring the end anchor into view.
	Wait time.Duration
	// OnWaiting is called once when the end anchor is not yet rendered.
	OnWaiting func(ref string)
}

// CaptureByRef marks the rendered row matching startRef, then waits for the
// user to scroll until a row matching endRef is rendered and marks it. The
// engine's periodic sampler collects everything scrolled past meanwhile.
func CaptureByRef(ctx context.Context, eng *core.Engine, finder RowFinder, startRef, endRef string, opts RefCaptureOptions) (*core.Result, error) {
	if opts.Poll <= 0 {
		opts.Poll = DefaultEndPoll
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultEndWait
	}

	startRow, ok, err := finder.FindRow(ctx, startRef)
	if err != nil {
		return nil, fmt.Errorf("finding start anchor: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("start anchor %q is not rendered; scroll it into view first", startRef)
	}

	if _, err := eng.StartSession(ctx); err != nil {
		return nil, fmt.Errorf("starting capture session: %w", err)
	}
	if _, err := eng.MarkAnchor(ctx, startRow); err != nil {
		eng.CancelSession()
		return nil, fmt.Errorf("marking start anchor: %w", err)
	}

	endRow, err := waitForRow(ctx, finder, endRef, opts)
	if err != nil {
		eng.CancelSession()
		return nil, err
	}

	mr, err := eng.MarkAnchor(ctx, endRow)
	if err != nil {
		if errors.Is(err, core.ErrNotAnchorable) {
			eng.CancelSession()
		}
		return nil, fmt.Errorf("marking end anchor: %w", err)
	}
	return mr.Result, nil
}

func waitForRow(ctx context.Context, finder RowFinder, ref string, opts RefCaptureOptions) (models.RowNode, error) {
	deadline := time.NewTimer(opts.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()

	notified := false
	for {
		row, ok, err := finder.FindRow(ctx, ref)
		if err != nil {
			return models.RowNode{}, fmt.Errorf("finding end anchor: %w", err)
		}
		if ok {
			return row, nil
		}
		if !notified && opts.OnWaiting != nil {
			opts.OnWaiting(ref)
			notified = true
		}

		select {
		case <-ctx.Done():
			return models.RowNode{}, ctx.Err()
		case <-deadline.C:
			return models.RowNode{}, fmt.Errorf("end anchor %q was not rendered within %s", ref, opts.Wait)
		case <-ticker.C:
		}
	}
}

// matchRow returns the first measured row whose data id equals ref, or else
// whose text contains ref case-insensitively.
func matchRow(rows []models.RowNode, ref string) (models.RowNode, bool) {
	if ref == "" {
		return models.RowNode{}, false
	}
	for _, r := range rows {
		if !r.Rect.Empty() && r.DataID == ref {
			return r, true
		}
	}
	needle := strings.ToLower(ref)
	for _, r := range rows {
		if !r.Rect.Empty() && strings.Contains(strings.ToLower(rowText(r)), needle) {
			return r, true
		}
	}
	return models.RowNode{}, false
}

func rowText(r models.RowNode) string {
	if r.Copyable == nil {
		return r.InnerText
	}
	if r.Copyable.Text != "" {
		return r.Copyable.Text
	}
	var b strings.Builder
	for _, seg := range r.Copyable.Segments {
		b.WriteString(seg.Text)
		b.WriteString(seg.Alt)
	}
	return b.String()
}
