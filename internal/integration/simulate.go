package integration

import (
	"context"
	"fmt"
	"strconv"

	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

// ScrollMode is how a simulated user gets from the start anchor to the end
// anchor.
type ScrollMode string

const (
	// ScrollManual marks the start, scrolls toward the end in steps while the
	// periodic sampler runs, then marks the end.
	ScrollManual ScrollMode = "manual"
	// ScrollSearch leaves the view on the end anchor and marks the start by
	// id, so the engine has to scroll up and find it.
	ScrollSearch ScrollMode = "search"
)

// SimulationOptions tunes SimulateCapture.
type SimulationOptions struct {
	Mode ScrollMode
	// Step is the manual scroll distance; defaults to half the viewport.
	Step float64
}

// SimulateCapture plays a user selecting rows start..end (indices) on page
// and returns the engine's result.
func SimulateCapture(ctx context.Context, eng *core.Engine, page *VirtualPage, start, end int, opts SimulationOptions) (*core.Result, error) {
	startRow, err := page.Row(start)
	if err != nil {
		return nil, fmt.Errorf("start anchor: %w", err)
	}
	endRow, err := page.Row(end)
	if err != nil {
		return nil, fmt.Errorf("end anchor: %w", err)
	}

	mode := opts.Mode
	if mode == "" || (mode == ScrollSearch && start > end) {
		mode = ScrollManual
	}

	if mode == ScrollSearch {
		if err := page.Reveal(end); err != nil {
			return nil, err
		}
	} else if err := page.Reveal(start); err != nil {
		return nil, err
	}

	if _, err := eng.StartSession(ctx); err != nil {
		return nil, fmt.Errorf("starting capture session: %w", err)
	}
	if _, err := eng.MarkAnchor(ctx, startRow); err != nil {
		return nil, fmt.Errorf("marking start anchor: %w", err)
	}

	if mode == ScrollManual {
		if err := scrollUntilVisible(ctx, eng, page, end, opts.Step); err != nil {
			eng.CancelSession()
			return nil, err
		}
	}

	mr, err := eng.MarkAnchor(ctx, endRow)
	if err != nil {
		return nil, fmt.Errorf("marking end anchor: %w", err)
	}
	return mr.Result, nil
}

// scrollUntilVisible scrolls toward row target, sampling after every step.
func scrollUntilVisible(ctx context.Context, eng *core.Engine, page *VirtualPage, target int, step float64) error {
	if step <= 0 {
		step = page.opts.ViewportHeight / 2
	}
	for {
		first, last := page.VisibleRange()
		if target >= first && target <= last {
			return nil
		}
		delta := step
		if target < first {
			delta = -step
		}
		before, err := page.Offset(ctx)
		if err != nil {
			return err
		}
		after, err := page.ScrollBy(ctx, delta)
		if err != nil {
			return fmt.Errorf("scrolling toward row %d: %w", target, err)
		}
		if err := page.Settle(ctx); err != nil {
			return err
		}
		if _, err := eng.SampleNow(ctx); err != nil {
			return fmt.Errorf("sampling while scrolling: %w", err)
		}
		if after == before {
			return nil
		}
	}
}

// DefaultSyntheticSize is the synthetic conversation length used when a
// request names neither a fixture nor a size.
const DefaultSyntheticSize = 200

// SimulationRequest describes one simulated capture over a fixture file or a
// synthetic conversation. Anchors are row ids, or row indices when no row has
// that id.
type SimulationRequest struct {
	Fixture        string
	Synthetic      int
	StartID        string
	EndID          string
	Mode           ScrollMode
	ViewportHeight float64
	Placeholders   int
	Step           float64
}

// Source labels results of the request.
func (r SimulationRequest) Source() string {
	if r.Fixture != "" {
		return r.Fixture
	}
	return fmt.Sprintf("synthetic:%d", r.size())
}

func (r SimulationRequest) size() int {
	if r.Synthetic > 0 {
		return r.Synthetic
	}
	return DefaultSyntheticSize
}

// Simulator runs SimulationRequests against a fresh VirtualPage and engine
// built from Config.
type Simulator struct {
	Config   models.GlobalConfig
	Events   core.EventLogger
	OnStatus func(core.StatusUpdate)
}

// Run loads the conversation, resolves the anchor ids and plays the capture.
func (s Simulator) Run(ctx context.Context, req SimulationRequest) (*core.Result, error) {
	var fixture *Fixture
	if req.Fixture != "" {
		f, err := LoadFixture(req.Fixture)
		if err != nil {
			return nil, err
		}
		fixture = f
	} else {
		fixture = SyntheticConversation(req.size(), nil)
	}

	page := NewVirtualPage(fixture.Conversation(), VirtualPageOptions{
		ViewportHeight: req.ViewportHeight,
		Overscan:       DefaultOverscan,
		Placeholders:   req.Placeholders,
		SettleDelay:    s.Config.Search.Settle,
	})

	start, err := anchorIndex(page, req.StartID)
	if err != nil {
		return nil, fmt.Errorf("start anchor: %w", err)
	}
	end, err := anchorIndex(page, req.EndID)
	if err != nil {
		return nil, fmt.Errorf("end anchor: %w", err)
	}

	eng := core.NewEngine(page, core.EngineOptions{
		Capture:  s.Config.Capture,
		Search:   s.Config.Search,
		Resolve:  s.Config.Resolve,
		Source:   req.Source(),
		Events:   s.Events,
		OnStatus: s.OnStatus,
	})
	return SimulateCapture(ctx, eng, page, start, end, SimulationOptions{Mode: req.Mode, Step: req.Step})
}

// anchorIndex resolves ref as a row id first, then as a row index.
func anchorIndex(page *VirtualPage, ref string) (int, error) {
	if i, ok := page.IndexOf(ref); ok {
		return i, nil
	}
	if i, err := strconv.Atoi(ref); err == nil && i >= 0 && i < page.Len() {
		return i, nil
	}
	return -1, fmt.Errorf("%q is neither a row id nor an index in [0,%d)", ref, page.Len())
}
