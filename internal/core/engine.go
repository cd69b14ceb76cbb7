package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

// DefaultSampleInterval is the periodic sampler tick between the two anchors.
const DefaultSampleInterval = 100 * time.Millisecond

// restoreTimeout bounds the scroll restore performed on teardown.
const restoreTimeout = 2 * time.Second

// ErrCancelled is returned by MarkAnchor when the session was reset while the
// end-anchor resolution was running.
var ErrCancelled = errors.New("capture session cancelled")

// MarkerRole names a transient visual marker on an anchored row.
type MarkerRole string

const (
	MarkerStart MarkerRole = "start"
	MarkerEnd   MarkerRole = "end"
)

// Highlighter is implemented by surfaces that can outline anchored rows.
// Markers never alter conversation content.
type Highlighter interface {
	Highlight(ctx context.Context, row models.RowNode, role MarkerRole) error
	ClearHighlights(ctx context.Context) error
}

// StatusUpdate is one entry of the status/progress stream for the
// presentation layer. Progress is advisory, in [0,1].
type StatusUpdate struct {
	SessionID string
	Status    models.CaptureStatus
	Count     int
	Message   string
	Progress  float64
}

// AnchorOutcome is the result kind of MarkAnchor.
type AnchorOutcome string

const (
	AnchorStartSet  AnchorOutcome = "start-set"
	AnchorCompleted AnchorOutcome = "completed"
)

// MarkResult is returned by MarkAnchor. Result is set once the end anchor
// has been resolved into a transcript.
type MarkResult struct {
	Outcome AnchorOutcome
	Anchor  models.MessageRecord
	Result  *Result
}

// Result is the terminal output of a successful capture session.
type Result struct {
	SessionID   string
	Source      string
	StartAnchor models.MessageRecord
	EndAnchor   models.MessageRecord
	Resolution  *Resolution
	Transcript  Transcript
	Searches    []SearchResult
	// Warnings holds the non-fatal CaptureErrors met on the way
	// (AnchorUnresolved, SearchTimeout, SearchBoundary).
	Warnings   []error
	Captured   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Capture models.CaptureConfig
	Search  models.SearchConfig
	Resolve models.ResolveConfig
	// Source labels results, e.g. the page URL or fixture path.
	Source   string
	Events   EventLogger
	OnStatus func(StatusUpdate)
	// NewID generates session ids. Defaults to random UUIDs.
	NewID func() string
}

// session is the live CaptureSession state. Its fields are guarded by
// Engine.mu except store, which is internally synchronised.
type session struct {
	id          string
	status      models.CaptureStatus
	startAnchor *models.MessageRecord
	endAnchor   *models.MessageRecord
	startRow    models.RowNode
	store       *CaptureStore
	sampler     *Sampler
	searches    []SearchResult
	startedAt   time.Time
	err         error

	// driver is the scroll region, located on first use.
	driverMu sync.Mutex
	driver   ScrollDriver

	// Tick state, guarded by tickMu: the offset seen by the last tick and
	// where a window overlapping nothing captured is placed.
	tickMu     sync.Mutex
	noDriver   bool
	hasOffset  bool
	lastOffset float64
	placement  Placement

	ctx         context.Context
	cancel      context.CancelFunc
	stopOnce    sync.Once
	samplerStop chan struct{}
	samplerDone chan struct{}
}

// SessionSnapshot is a read-only view of the current session.
type SessionSnapshot struct {
	ID          string
	Status      models.CaptureStatus
	StartAnchor *models.MessageRecord
	EndAnchor   *models.MessageRecord
	Captured    int
	StartedAt   time.Time
	Err         error
}

// Engine owns at most one capture session over a host surface.
type Engine struct {
	surface   Surface
	opts      EngineOptions
	extractor *Extractor
	resolver  *Resolver

	mu      sync.Mutex
	session *session
}

// NewEngine creates an Engine over surface.
func NewEngine(surface Surface, opts EngineOptions) *Engine {
	if opts.Capture.SampleInterval <= 0 {
		opts.Capture.SampleInterval = DefaultSampleInterval
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{
		surface:   surface,
		opts:      opts,
		extractor: NewExtractor(opts.Capture.FingerprintPrefix),
		resolver: NewResolver(ResolveOptions{
			MatchPrefix: opts.Resolve.MatchPrefix,
			DedupWindow: opts.Resolve.DedupWindow,
		}),
	}
}

// Extractor returns the engine's record extractor.
func (e *Engine) Extractor() *Extractor {
	return e.extractor
}

// StartSession discards any previous session and opens a new one awaiting
// its start anchor. It fails with ErrSessionBusy while a session is
// searching or resolving.
func (e *Engine) StartSession(ctx context.Context) (string, error) {
	e.mu.Lock()
	prev := e.session
	if prev != nil && (prev.status == models.StatusSearching || prev.status == models.StatusResolving) {
		e.mu.Unlock()
		return "", ErrSessionBusy
	}
	e.session = nil
	e.mu.Unlock()

	if prev != nil {
		e.teardown(prev)
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		id:        e.opts.NewID(),
		status:    models.StatusIdle,
		store:     NewCaptureStore(),
		startedAt: time.Now(),
		ctx:       sessCtx,
		cancel:    cancel,
	}
	sess.sampler = NewSampler(e.surface, e.extractor, e.opts.Capture.SidePanelFraction)

	e.mu.Lock()
	e.session = sess
	e.mu.Unlock()

	e.logEvent("capture.session_started", map[string]any{"session_id": sess.id, "source": e.opts.Source})
	e.notify(StatusUpdate{SessionID: sess.id, Status: models.StatusIdle, Message: "Mark the FIRST message you want to include"})
	return sess.id, nil
}

// MarkAnchor designates row as the start anchor, or as the end anchor if a
// start is already set. Marking the end anchor runs the search and
// resolution synchronously and returns the completed result.
func (e *Engine) MarkAnchor(ctx context.Context, row models.RowNode) (MarkResult, error) {
	e.mu.Lock()
	sess := e.session
	if sess == nil {
		e.mu.Unlock()
		return MarkResult{}, ErrNoSession
	}
	rec, ok := e.extractor.Extract(row)
	if !ok {
		e.mu.Unlock()
		return MarkResult{}, ErrNotAnchorable
	}

	switch sess.status {
	case models.StatusIdle:
		sess.startAnchor = &rec
		sess.startRow = row
		sess.status = models.StatusAwaitingEnd
		e.mu.Unlock()
		return e.markStart(ctx, sess, row, rec), nil

	case models.StatusAwaitingEnd:
		sess.endAnchor = &rec
		sess.status = models.StatusSearching
		e.mu.Unlock()
		return e.complete(ctx, sess, row, rec)

	case models.StatusSearching, models.StatusResolving:
		e.mu.Unlock()
		return MarkResult{}, ErrSessionBusy

	default:
		e.mu.Unlock()
		return MarkResult{}, ErrNoSession
	}
}

// CancelSession stops any in-flight sampling or searching and discards the
// session. It is a no-op when no session exists.
func (e *Engine) CancelSession() {
	e.mu.Lock()
	sess := e.session
	e.session = nil
	e.mu.Unlock()
	if sess == nil {
		return
	}

	e.teardown(sess)
	sess.store.Reset()
	e.logEvent("capture.cancelled", map[string]any{"session_id": sess.id})
	e.notify(StatusUpdate{SessionID: sess.id, Status: models.StatusIdle, Message: "Selection reset"})
}

// SampleNow runs one sampler tick for a session awaiting its end anchor and
// returns the number of newly captured records.
func (e *Engine) SampleNow(ctx context.Context) (int, error) {
	e.mu.Lock()
	sess := e.session
	if sess == nil || sess.status != models.StatusAwaitingEnd {
		e.mu.Unlock()
		return 0, ErrNoSession
	}
	e.mu.Unlock()
	return e.sampleTick(ctx, sess), nil
}

// Status returns the current session status, idle when no session exists.
func (e *Engine) Status() models.CaptureStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return models.StatusIdle
	}
	return e.session.status
}

// Snapshot returns a copy of the current session state.
func (e *Engine) Snapshot() SessionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.session
	if sess == nil {
		return SessionSnapshot{Status: models.StatusIdle}
	}
	snap := SessionSnapshot{
		ID:        sess.id,
		Status:    sess.status,
		Captured:  sess.store.Size(),
		StartedAt: sess.startedAt,
		Err:       sess.err,
	}
	if sess.startAnchor != nil {
		a := *sess.startAnchor
		snap.StartAnchor = &a
	}
	if sess.endAnchor != nil {
		a := *sess.endAnchor
		snap.EndAnchor = &a
	}
	return snap
}

func (e *Engine) markStart(ctx context.Context, sess *session, row models.RowNode, rec models.MessageRecord) MarkResult {
	e.highlight(ctx, row, MarkerStart)
	e.sampleTick(ctx, sess)

	e.logEvent("capture.anchor_marked", map[string]any{
		"session_id": sess.id,
		"role":       "start",
		"anchor_id":  rec.ID,
	})
	e.notify(StatusUpdate{
		SessionID: sess.id,
		Status:    models.StatusAwaitingEnd,
		Count:     sess.store.Size(),
		Message:   "Start set! Now mark the END message.",
	})

	sess.samplerStop = make(chan struct{})
	sess.samplerDone = make(chan struct{})
	go e.runSampler(sess)

	return MarkResult{Outcome: AnchorStartSet, Anchor: rec}
}

// complete runs the search and resolution phases for the end anchor.
func (e *Engine) complete(ctx context.Context, sess *session, row models.RowNode, end models.MessageRecord) (MarkResult, error) {
	// The periodic sampler and the search loop are both writers of the
	// store and the surface; the sampler is joined before searching.
	e.stopSampler(sess)
	e.highlight(ctx, row, MarkerEnd)
	e.logEvent("capture.anchor_marked", map[string]any{
		"session_id": sess.id,
		"role":       "end",
		"anchor_id":  end.ID,
	})

	opCtx, cancelOp := context.WithCancel(ctx)
	defer cancelOp()
	stop := context.AfterFunc(sess.ctx, cancelOp)
	defer stop()

	e.notify(StatusUpdate{SessionID: sess.id, Status: models.StatusSearching, Count: sess.store.Size(), Message: "Capturing visible messages...", Progress: 0.4})
	e.sampleTick(opCtx, sess)

	start := *sess.startAnchor
	var warnings []error

	if err := e.searchMissing(opCtx, sess, start, end, &warnings); err != nil {
		if sess.ctx.Err() != nil {
			return MarkResult{}, ErrCancelled
		}
		return e.fail(sess, err)
	}
	if sess.ctx.Err() != nil {
		return MarkResult{}, ErrCancelled
	}

	if !e.setStatus(sess, models.StatusResolving) {
		return MarkResult{}, ErrCancelled
	}
	e.notify(StatusUpdate{SessionID: sess.id, Status: models.StatusResolving, Count: sess.store.Size(), Message: "Processing messages...", Progress: 0.85})

	resolution, err := e.resolver.Resolve(start, end, sess.store.Sequence())
	if err != nil {
		return e.fail(sess, err)
	}
	warnings = append(warnings, resolution.Unresolved...)

	transcript := FormatTranscript(resolution.Records)
	result := &Result{
		SessionID:   sess.id,
		Source:      e.opts.Source,
		StartAnchor: start,
		EndAnchor:   end,
		Resolution:  resolution,
		Transcript:  transcript,
		Searches:    sess.searches,
		Warnings:    warnings,
		Captured:    sess.store.Size(),
		StartedAt:   sess.startedAt,
		FinishedAt:  time.Now(),
	}

	e.mu.Lock()
	if e.session != sess {
		e.mu.Unlock()
		return MarkResult{}, ErrCancelled
	}
	sess.status = models.StatusDone
	e.session = nil
	e.mu.Unlock()

	e.clearHighlights()
	e.logEvent("capture.completed", map[string]any{
		"session_id":  sess.id,
		"messages":    transcript.MessageCount,
		"blocks":      transcript.BlockCount,
		"captured":    result.Captured,
		"start_match": string(resolution.StartMatch),
		"end_match":   string(resolution.EndMatch),
		"swapped":     resolution.Swapped,
		"duplicates":  resolution.Duplicates,
	})
	e.notify(StatusUpdate{
		SessionID: sess.id,
		Status:    models.StatusDone,
		Count:     transcript.MessageCount,
		Message:   fmt.Sprintf("Captured %d messages", transcript.MessageCount),
		Progress:  1,
	})
	return MarkResult{Outcome: AnchorCompleted, Anchor: end, Result: result}, nil
}

// searchMissing scrolls for whichever anchor is not yet captured, the start
// upward and the end downward, then bridges any gap left between the two.
// Unsuccessful searches only add warnings.
func (e *Engine) searchMissing(ctx context.Context, sess *session, start, end models.MessageRecord, warnings *[]error) error {
	hasStart := sess.store.Has(start.ID)
	hasEnd := sess.store.Has(end.ID)
	_, gap := sess.store.Gap(start.ID, end.ID)
	if hasStart && hasEnd && !gap {
		return nil
	}

	driver, err := e.scrollDriver(ctx, sess)
	if err != nil {
		return err
	}
	if e.opts.Search.RestoreScroll {
		if offset, err := driver.Offset(ctx); err == nil {
			defer e.restoreScroll(driver, offset)
		}
	}

	ctrl := NewSearchController(sess.sampler, driver, sess.store, SearchOptions{
		Step:       e.opts.Search.Step,
		Timeout:    e.opts.Search.Timeout,
		MaxScrolls: e.opts.Search.MaxScrolls,
	})
	ctrl.onSampleError = func(err error) { e.sampleFailed(sess, err) }

	targets := []struct {
		missing bool
		id      string
		dir     Direction
	}{
		{!hasStart, start.ID, Up},
		{!hasEnd, end.ID, Down},
	}
	for _, t := range targets {
		if !t.missing {
			continue
		}
		e.notify(StatusUpdate{SessionID: sess.id, Status: models.StatusSearching, Count: sess.store.Size(), Message: "Searching for missing messages...", Progress: 0.5})
		res, err := ctrl.Find(ctx, t.id, t.dir, e.searchProgress(sess, t.dir))
		if err != nil {
			return fmt.Errorf("searching for anchor %s: %w", t.id, err)
		}
		if e.recordSearch(sess, res, warnings) {
			return nil
		}
	}
	return e.bridgeGaps(ctx, sess, ctrl, driver, start.ID, end.ID, warnings)
}

// bridgeGaps closes gaps in the sequence between the anchors a and b, left
// when the view jumped past rows faster than the sampler ticked. It scrolls
// down from the current view toward gaps after it, then returns to the same
// offset and scrolls up toward gaps before it.
func (e *Engine) bridgeGaps(ctx context.Context, sess *session, ctrl *SearchController, driver ScrollDriver, a, b string, warnings *[]error) error {
	if _, open := sess.store.Gap(a, b); !open || ctx.Err() != nil {
		return nil
	}
	view, ok := e.viewRecord(ctx, sess)
	if !ok {
		return nil
	}
	lo, hi := a, b
	loPos, _ := sess.store.Position(a)
	hiPos, _ := sess.store.Position(b)
	if loPos > hiPos {
		lo, hi = b, a
		loPos, hiPos = hiPos, loPos
	}
	viewPos, _ := sess.store.Position(view)
	origin, err := driver.Offset(ctx)
	if err != nil {
		return fmt.Errorf("reading scroll offset: %w", err)
	}

	passes := []struct {
		from, to string
		dir      Direction
		run      bool
	}{
		{view, hi, Down, viewPos < hiPos},
		{lo, view, Up, viewPos > loPos},
	}
	moved := false
	for _, p := range passes {
		if !p.run {
			continue
		}
		if _, open := sess.store.Gap(p.from, p.to); !open {
			continue
		}
		if moved {
			if err := driver.ScrollTo(ctx, origin); err != nil {
				return fmt.Errorf("returning to offset %g: %w", origin, err)
			}
			if err := driver.Settle(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("waiting for render: %w", err)
			}
		}
		e.notify(StatusUpdate{SessionID: sess.id, Status: models.StatusSearching, Count: sess.store.Size(), Message: "Filling in skipped messages...", Progress: 0.5})
		res, err := ctrl.Bridge(ctx, p.from, p.to, p.dir, e.searchProgress(sess, p.dir))
		if err != nil {
			return fmt.Errorf("bridging %s: %w", res.TargetID, err)
		}
		moved = true
		if e.recordSearch(sess, res, warnings) {
			return nil
		}
	}
	return nil
}

// viewRecord returns the id of a captured record that is rendered now.
func (e *Engine) viewRecord(ctx context.Context, sess *session) (string, bool) {
	records, err := sess.sampler.Sample(ctx)
	if err != nil {
		e.sampleFailed(sess, err)
		return "", false
	}
	for _, r := range records {
		if sess.store.Has(r.ID) {
			return r.ID, true
		}
	}
	return "", false
}

func (e *Engine) searchProgress(sess *session, dir Direction) func(Progress) {
	return func(p Progress) {
		e.notify(StatusUpdate{
			SessionID: sess.id,
			Status:    models.StatusSearching,
			Count:     p.Records,
			Message:   fmt.Sprintf("Searching %s...", dir),
			Progress:  0.5 + 0.3*p.ElapsedRatio,
		})
	}
}

// recordSearch stores and logs a finished search, adding its warning if it
// was unsuccessful. It reports whether the search was cancelled.
func (e *Engine) recordSearch(sess *session, res SearchResult, warnings *[]error) bool {
	e.mu.Lock()
	sess.searches = append(sess.searches, res)
	e.mu.Unlock()
	e.logEvent("capture.search_finished", map[string]any{
		"session_id": sess.id,
		"target_id":  res.TargetID,
		"gap":        res.Gap,
		"direction":  res.Direction.String(),
		"outcome":    string(res.Outcome),
		"scrolls":    res.Scrolls,
		"added":      res.Added,
	})
	if res.Outcome == OutcomeCancelled {
		return true
	}
	if werr := res.Err(); werr != nil {
		*warnings = append(*warnings, werr)
	}
	return false
}

// scrollDriver returns the session's scroll region, locating it on first use.
func (e *Engine) scrollDriver(ctx context.Context, sess *session) (ScrollDriver, error) {
	sess.driverMu.Lock()
	defer sess.driverMu.Unlock()
	if sess.driver != nil {
		return sess.driver, nil
	}
	driver, err := e.surface.FindContainer(ctx)
	if err != nil {
		if ErrorCodeOf(err) == CodeContainerNotFound {
			return nil, err
		}
		return nil, newCaptureError(CodeContainerNotFound, "locating the conversation scroll region", err)
	}
	sess.driver = driver
	return driver, nil
}

func (e *Engine) fail(sess *session, err error) (MarkResult, error) {
	e.mu.Lock()
	if e.session != sess {
		e.mu.Unlock()
		return MarkResult{}, ErrCancelled
	}
	sess.status = models.StatusFailed
	sess.err = err
	e.session = nil
	e.mu.Unlock()

	e.clearHighlights()
	e.logEvent("capture.failed", map[string]any{
		"session_id": sess.id,
		"code":       string(ErrorCodeOf(err)),
		"error":      err.Error(),
	})
	e.notify(StatusUpdate{SessionID: sess.id, Status: models.StatusFailed, Count: sess.store.Size(), Message: "Error: " + err.Error()})
	return MarkResult{Outcome: AnchorCompleted}, err
}

// setStatus moves sess to status if it is still the engine's session.
func (e *Engine) setStatus(sess *session, status models.CaptureStatus) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != sess {
		return false
	}
	sess.status = status
	return true
}

func (e *Engine) runSampler(sess *session) {
	defer close(sess.samplerDone)
	ticker := time.NewTicker(e.opts.Capture.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sess.samplerStop:
			return
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
			e.sampleTick(sess.ctx, sess)
		}
	}
}

func (e *Engine) sampleTick(ctx context.Context, sess *session) int {
	sess.tickMu.Lock()
	defer sess.tickMu.Unlock()

	placement := e.tickPlacement(ctx, sess)
	records, err := sess.sampler.Sample(ctx)
	if err != nil {
		e.sampleFailed(sess, err)
		return 0
	}
	added := sess.store.MergeWindow(records, placement)
	if added > 0 {
		e.notify(StatusUpdate{
			SessionID: sess.id,
			Status:    e.statusOf(sess),
			Count:     sess.store.Size(),
			Message:   fmt.Sprintf("%d messages captured", sess.store.Size()),
		})
	}
	return added
}

// tickPlacement places a sampled window that overlaps nothing captured before
// the known records when the view moved up since the last tick and after
// them when it moved down. A view that did not move keeps the last choice,
// since rows render after the offset changes. Callers hold sess.tickMu.
func (e *Engine) tickPlacement(ctx context.Context, sess *session) Placement {
	if sess.noDriver {
		return sess.placement
	}
	driver, err := e.scrollDriver(ctx, sess)
	if err != nil {
		sess.noDriver = true
		return sess.placement
	}
	offset, err := driver.Offset(ctx)
	if err != nil {
		return sess.placement
	}
	if sess.hasOffset {
		switch {
		case offset < sess.lastOffset:
			sess.placement = PlaceBefore
		case offset > sess.lastOffset:
			sess.placement = PlaceAfter
		}
	}
	sess.lastOffset, sess.hasOffset = offset, true
	return sess.placement
}

func (e *Engine) statusOf(sess *session) models.CaptureStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sess.status
}

func (e *Engine) sampleFailed(sess *session, err error) {
	if sess.ctx.Err() != nil {
		return
	}
	e.logEvent("capture.sample_failed", map[string]any{"session_id": sess.id, "error": err.Error()})
}

// stopSampler stops the periodic sampler, if running, and waits for it.
func (e *Engine) stopSampler(sess *session) {
	sess.stopOnce.Do(func() {
		if sess.samplerStop == nil {
			return
		}
		close(sess.samplerStop)
		<-sess.samplerDone
	})
}

func (e *Engine) teardown(sess *session) {
	sess.cancel()
	e.stopSampler(sess)
	e.clearHighlights()
}

func (e *Engine) restoreScroll(driver ScrollDriver, offset float64) {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	_ = driver.ScrollTo(ctx, offset) // Best effort: the capture result stands either way.
}

func (e *Engine) highlight(ctx context.Context, row models.RowNode, role MarkerRole) {
	if h, ok := e.surface.(Highlighter); ok {
		_ = h.Highlight(ctx, row, role) // Markers are cosmetic.
	}
}

func (e *Engine) clearHighlights() {
	if h, ok := e.surface.(Highlighter); ok {
		ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
		defer cancel()
		_ = h.ClearHighlights(ctx)
	}
}

func (e *Engine) notify(u StatusUpdate) {
	if e.opts.OnStatus != nil {
		e.opts.OnStatus(u)
	}
}

func (e *Engine) logEvent(eventType string, data map[string]any) {
	if e.opts.Events != nil {
		_ = e.opts.Events.LogEvent(eventType, data) // Non-fatal: event logging is best effort.
	}
}
