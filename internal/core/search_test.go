package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestSearch(page *fakePage, store *CaptureStore, opts SearchOptions) *SearchController {
	sampler := NewSampler(page, nil, 0)
	return NewSearchController(sampler, page, store, opts)
}

func assertAscending(t *testing.T, got []string) {
	t.Helper()
	prev := -1
	for _, id := range got {
		var n int
		if _, err := fmt.Sscanf(id, "m%d", &n); err != nil {
			t.Fatalf("unexpected id %q", id)
		}
		if n <= prev {
			t.Fatalf("sequence out of order: %v", got)
		}
		prev = n
	}
}

func TestSearch_FindsTargetDownward(t *testing.T) {
	page := newFakePage(conversation(30), 5)
	store := NewCaptureStore()
	ctrl := newTestSearch(page, store, SearchOptions{Step: 120})

	var reports int
	res, err := ctrl.Find(context.Background(), "m20", Down, func(Progress) { reports++ })
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Outcome != OutcomeFound {
		t.Fatalf("Outcome = %s, want found", res.Outcome)
	}
	if res.Scrolls != 6 {
		t.Errorf("Scrolls = %d, want 6", res.Scrolls)
	}
	if reports != res.Scrolls {
		t.Errorf("progress reported %d times, want %d", reports, res.Scrolls)
	}
	if res.Err() != nil {
		t.Errorf("Err() = %v, want nil", res.Err())
	}
	assertAscending(t, ids(store.Sequence()))
	if store.Size() != 23 {
		t.Errorf("Size = %d, want 23 (m0..m22)", store.Size())
	}
}

func TestSearch_FindsTargetUpwardInOrder(t *testing.T) {
	page := newFakePage(conversation(30), 5)
	page.showRow(25)
	store := NewCaptureStore()
	ctrl := newTestSearch(page, store, SearchOptions{Step: 120})

	res, err := ctrl.Find(context.Background(), "m2", Up, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Outcome != OutcomeFound {
		t.Fatalf("Outcome = %s, want found", res.Outcome)
	}
	seq := ids(store.Sequence())
	assertAscending(t, seq)
	if seq[len(seq)-1] != "m29" {
		t.Errorf("last = %s, want m29", seq[len(seq)-1])
	}
}

func TestSearch_AlreadyVisible(t *testing.T) {
	page := newFakePage(conversation(10), 5)
	ctrl := newTestSearch(page, NewCaptureStore(), SearchOptions{})

	res, err := ctrl.Find(context.Background(), "m3", Down, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Outcome != OutcomeFound || res.Scrolls != 0 {
		t.Errorf("got %+v, want found without scrolling", res)
	}
}

func TestSearch_BridgeClosesGap(t *testing.T) {
	page := newFakePage(conversation(30), 5)
	store := NewCaptureStore()
	sampler := NewSampler(page, nil, 0)
	for _, row := range []int{20, 0} {
		page.showRow(row)
		records, err := sampler.Sample(context.Background())
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		store.MergeWindow(records, PlaceBefore)
	}
	ctrl := newTestSearch(page, store, SearchOptions{Step: 120})

	res, err := ctrl.Bridge(context.Background(), "m0", "m20", Down, nil)
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if res.Outcome != OutcomeFound || !res.Gap {
		t.Fatalf("got %+v, want a found gap search", res)
	}
	if _, open := store.Gap("m0", "m24"); open {
		t.Error("gap still open")
	}
	if got := ids(store.Sequence()); len(got) != 25 {
		t.Errorf("Sequence = %v, want m0..m24", got)
	} else {
		assertAscending(t, got)
	}
}

func TestSearch_BridgeBoundaryWarns(t *testing.T) {
	page := newFakePage(conversation(30), 5)
	store := NewCaptureStore()
	store.Merge(recs("a", "b"))
	store.Merge(recs("y", "z"))
	ctrl := newTestSearch(page, store, SearchOptions{Step: 120})

	res, err := ctrl.Bridge(context.Background(), "a", "z", Down, nil)
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if res.Outcome != OutcomeBoundary {
		t.Fatalf("Outcome = %s, want boundary-hit", res.Outcome)
	}
	if !errors.Is(res.Err(), ErrSearchBoundary) {
		t.Errorf("Err() = %v, want SEARCH_BOUNDARY", res.Err())
	}
}

func TestSearch_BoundaryHit(t *testing.T) {
	page := newFakePage(conversation(30), 5)
	ctrl := newTestSearch(page, NewCaptureStore(), SearchOptions{Step: 120})

	res, err := ctrl.Find(context.Background(), "nope", Down, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Outcome != OutcomeBoundary {
		t.Fatalf("Outcome = %s, want boundary-hit", res.Outcome)
	}
	if res.Scrolls != 9 {
		t.Errorf("Scrolls = %d, want 9", res.Scrolls)
	}
	if !errors.Is(res.Err(), ErrSearchBoundary) {
		t.Errorf("Err() = %v, want SEARCH_BOUNDARY", res.Err())
	}
}

func TestSearch_BoundaryWhenOffsetDoesNotMove(t *testing.T) {
	page := newFakePage(conversation(30), 5)
	ctrl := newTestSearch(page, NewCaptureStore(), SearchOptions{Step: 120})

	res, err := ctrl.Find(context.Background(), "nope", Up, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Outcome != OutcomeBoundary || res.Scrolls != 1 {
		t.Errorf("got %+v, want boundary after one scroll at the top", res)
	}
}

func TestSearch_Timeout(t *testing.T) {
	page := newFakePage(conversation(200), 5)
	ctrl := newTestSearch(page, NewCaptureStore(), SearchOptions{Step: 40, Timeout: 3 * time.Second})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctrl.now = func() time.Time {
		clock = clock.Add(500 * time.Millisecond)
		return clock
	}

	res, err := ctrl.Find(context.Background(), "nope", Down, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Outcome != OutcomeTimedOut {
		t.Fatalf("Outcome = %s, want timed-out", res.Outcome)
	}
	if !errors.Is(res.Err(), ErrSearchTimeout) {
		t.Errorf("Err() = %v, want SEARCH_TIMEOUT", res.Err())
	}
}

func TestSearch_MaxScrolls(t *testing.T) {
	page := newFakePage(conversation(200), 5)
	ctrl := newTestSearch(page, NewCaptureStore(), SearchOptions{Step: 40, MaxScrolls: 4})

	res, err := ctrl.Find(context.Background(), "nope", Down, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Outcome != OutcomeMaxScrolls || res.Scrolls != 4 {
		t.Errorf("got %+v, want max-scrolls after 4", res)
	}
	if ErrorCodeOf(res.Err()) != CodeSearchTimeout {
		t.Errorf("Err() code = %s, want SEARCH_TIMEOUT", ErrorCodeOf(res.Err()))
	}
}

func TestSearch_Cancelled(t *testing.T) {
	page := newFakePage(conversation(50), 5)
	ctx, cancel := context.WithCancel(context.Background())
	page.settle = func(context.Context) error {
		cancel()
		return context.Canceled
	}
	ctrl := newTestSearch(page, NewCaptureStore(), SearchOptions{})

	res, err := ctrl.Find(ctx, "nope", Down, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Outcome != OutcomeCancelled {
		t.Errorf("Outcome = %s, want cancelled", res.Outcome)
	}
}

func TestSearch_SettleFailure(t *testing.T) {
	page := newFakePage(conversation(50), 5)
	boom := errors.New("renderer crashed")
	page.settle = func(context.Context) error { return boom }
	ctrl := newTestSearch(page, NewCaptureStore(), SearchOptions{})

	_, err := ctrl.Find(context.Background(), "nope", Down, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped settle failure", err)
	}
}

func TestSearch_SampleErrorsAreReported(t *testing.T) {
	page := newFakePage(conversation(10), 5)
	page.rowsErr = errors.New("detached")
	ctrl := newTestSearch(page, NewCaptureStore(), SearchOptions{Step: 120})
	var reported int
	ctrl.onSampleError = func(error) { reported++ }

	res, err := ctrl.Find(context.Background(), "m1", Down, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Outcome != OutcomeBoundary {
		t.Errorf("Outcome = %s, want boundary-hit", res.Outcome)
	}
	if reported == 0 {
		t.Error("sample errors were not reported")
	}
}
