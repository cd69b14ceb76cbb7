package core

import (
	"context"
	"fmt"
	"time"
)

// Search defaults.
const (
	DefaultSearchStep       = 300.0
	DefaultSearchSettle     = 250 * time.Millisecond
	DefaultSearchTimeout    = 30 * time.Second
	DefaultSearchMaxScrolls = 200
)

// Direction is the way the search scrolls to reach presumed content.
type Direction int

const (
	// Up scrolls toward earlier content.
	Up Direction = iota
	// Down scrolls toward later content.
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// SearchOutcome is the terminal state of one anchor search.
type SearchOutcome string

const (
	OutcomeFound      SearchOutcome = "found"
	OutcomeBoundary   SearchOutcome = "boundary-hit"
	OutcomeTimedOut   SearchOutcome = "timed-out"
	OutcomeMaxScrolls SearchOutcome = "max-scrolls"
	OutcomeCancelled  SearchOutcome = "cancelled"
)

// SearchResult summarises one anchor search, or one bridge over a gap
// between the anchors when Gap is set (TargetID is then "<from>..<to>").
type SearchResult struct {
	TargetID  string
	Gap       bool
	Direction Direction
	Outcome   SearchOutcome
	Scrolls   int
	Added     int
	Elapsed   time.Duration
}

// Err converts an unsuccessful outcome to its non-fatal CaptureError.
func (r SearchResult) Err() error {
	if r.Gap {
		switch r.Outcome {
		case OutcomeTimedOut, OutcomeMaxScrolls:
			return newCaptureError(CodeSearchTimeout, fmt.Sprintf("gap in %s still open after %d scrolls %s", r.TargetID, r.Scrolls, r.Direction), nil)
		case OutcomeBoundary:
			return newCaptureError(CodeSearchBoundary, fmt.Sprintf("reached the %s edge with a gap in %s still open", edgeName(r.Direction), r.TargetID), nil)
		}
		return nil
	}
	switch r.Outcome {
	case OutcomeTimedOut, OutcomeMaxScrolls:
		return newCaptureError(CodeSearchTimeout, fmt.Sprintf("anchor %s not found after %d scrolls %s", r.TargetID, r.Scrolls, r.Direction), nil)
	case OutcomeBoundary:
		return newCaptureError(CodeSearchBoundary, fmt.Sprintf("reached the %s edge without finding anchor %s", edgeName(r.Direction), r.TargetID), nil)
	}
	return nil
}

func edgeName(d Direction) string {
	if d == Up {
		return "top"
	}
	return "bottom"
}

// Progress is advisory search progress for status display.
type Progress struct {
	Records      int
	ElapsedRatio float64
}

// SearchOptions bounds a search.
type SearchOptions struct {
	Step       float64
	Timeout    time.Duration
	MaxScrolls int
}

// SearchController scrolls the host and samples after every step until a
// target record is captured, the content edge is reached or the budget runs out.
type SearchController struct {
	sampler *Sampler
	driver  ScrollDriver
	store   *CaptureStore
	opts    SearchOptions
	now     func() time.Time
	// onSampleError receives non-fatal sampling failures.
	onSampleError func(error)
}

// NewSearchController creates a SearchController. Zero option fields use the
// package defaults.
func NewSearchController(sampler *Sampler, driver ScrollDriver, store *CaptureStore, opts SearchOptions) *SearchController {
	if opts.Step <= 0 {
		opts.Step = DefaultSearchStep
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSearchTimeout
	}
	if opts.MaxScrolls <= 0 {
		opts.MaxScrolls = DefaultSearchMaxScrolls
	}
	return &SearchController{
		sampler: sampler,
		driver:  driver,
		store:   store,
		opts:    opts,
		now:     time.Now,
	}
}

// Find searches for targetID in direction. It never returns an error for an
// unsuccessful search; the outcome says why it stopped. The only error is a
// failing scroll driver.
func (c *SearchController) Find(ctx context.Context, targetID string, dir Direction, progress func(Progress)) (SearchResult, error) {
	res := SearchResult{TargetID: targetID, Direction: dir}
	return c.scan(ctx, res, func() bool { return c.store.Has(targetID) }, progress)
}

// Bridge scrolls in dir until the sequence between the records from and to
// has no gap. Outcome found means the run is contiguous.
func (c *SearchController) Bridge(ctx context.Context, from, to string, dir Direction, progress func(Progress)) (SearchResult, error) {
	res := SearchResult{TargetID: from + ".." + to, Gap: true, Direction: dir}
	return c.scan(ctx, res, func() bool {
		_, open := c.store.Gap(from, to)
		return !open
	}, progress)
}

// scan samples, then scrolls and samples until done reports true or a budget
// or the content edge stops it.
func (c *SearchController) scan(ctx context.Context, res SearchResult, done func() bool, progress func(Progress)) (SearchResult, error) {
	start := c.now()
	dir := res.Direction
	placement := PlaceAfter
	delta := c.opts.Step
	if dir == Up {
		placement = PlaceBefore
		delta = -delta
	}

	finish := func(outcome SearchOutcome) (SearchResult, error) {
		res.Outcome = outcome
		res.Elapsed = c.now().Sub(start)
		return res, nil
	}

	// sampling-current
	res.Added += c.sampleInto(ctx, placement)
	if done() {
		return finish(OutcomeFound)
	}

	for {
		if ctx.Err() != nil {
			return finish(OutcomeCancelled)
		}
		elapsed := c.now().Sub(start)
		if elapsed >= c.opts.Timeout {
			return finish(OutcomeTimedOut)
		}
		if res.Scrolls >= c.opts.MaxScrolls {
			return finish(OutcomeMaxScrolls)
		}

		// scrolling
		before, err := c.driver.Offset(ctx)
		if err != nil {
			return res, fmt.Errorf("reading scroll offset: %w", err)
		}
		after, err := c.driver.ScrollBy(ctx, delta)
		if err != nil {
			return res, fmt.Errorf("scrolling %s: %w", dir, err)
		}
		res.Scrolls++
		if err := c.driver.Settle(ctx); err != nil {
			if ctx.Err() != nil {
				return finish(OutcomeCancelled)
			}
			return res, fmt.Errorf("waiting for render: %w", err)
		}

		// sampling-after-scroll
		res.Added += c.sampleInto(ctx, placement)
		if progress != nil {
			progress(Progress{
				Records:      c.store.Size(),
				ElapsedRatio: ratio(c.now().Sub(start), c.opts.Timeout),
			})
		}
		if done() {
			return finish(OutcomeFound)
		}
		if after == before {
			return finish(OutcomeBoundary)
		}
		atEdge, err := c.atEdge(ctx, dir)
		if err != nil {
			return res, fmt.Errorf("checking scroll edge: %w", err)
		}
		if atEdge {
			return finish(OutcomeBoundary)
		}
	}
}

func (c *SearchController) atEdge(ctx context.Context, dir Direction) (bool, error) {
	if dir == Up {
		return c.driver.AtTop(ctx)
	}
	return c.driver.AtBottom(ctx)
}

func (c *SearchController) sampleInto(ctx context.Context, placement Placement) int {
	records, err := c.sampler.Sample(ctx)
	if err != nil {
		if c.onSampleError != nil {
			c.onSampleError(err)
		}
		return 0
	}
	return c.store.MergeWindow(records, placement)
}

func ratio(elapsed, limit time.Duration) float64 {
	if limit <= 0 {
		return 0
	}
	r := float64(elapsed) / float64(limit)
	if r > 1 {
		return 1
	}
	return r
}
