package core

import (
	"errors"
	"reflect"
	"testing"

	"github.com/valter-silva-au/chatrange/pkg/models"
)

func msg(id, ts, sender, text string) models.MessageRecord {
	return models.MessageRecord{ID: id, Timestamp: ts, Sender: sender, Text: text, Kind: models.KindText}
}

func TestResolve_ByID(t *testing.T) {
	records := recs("a", "b", "c", "d", "e")
	res, err := NewResolver(ResolveOptions{}).Resolve(records[1], records[3], records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Errorf("Records = %v", got)
	}
	if res.StartMatch != models.MatchByID || res.EndMatch != models.MatchByID {
		t.Errorf("matches = %s/%s, want by-id", res.StartMatch, res.EndMatch)
	}
	if res.Swapped || len(res.Unresolved) != 0 {
		t.Errorf("unexpected swap/unresolved: %+v", res)
	}
}

func TestResolve_SwapsReversedAnchors(t *testing.T) {
	records := recs("a", "b", "c", "d", "e")
	res, err := NewResolver(ResolveOptions{}).Resolve(records[4], records[1], records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Swapped {
		t.Error("expected Swapped")
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"b", "c", "d", "e"}) {
		t.Errorf("Records = %v", got)
	}
}

func TestResolve_SameAnchorYieldsSingleRecord(t *testing.T) {
	records := recs("a", "b", "c")
	res, err := NewResolver(ResolveOptions{}).Resolve(records[1], records[1], records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Records = %v", got)
	}
}

func TestResolve_ContentFallback(t *testing.T) {
	records := []models.MessageRecord{
		msg("h1", "9:00", "Alice", "good morning everyone"),
		msg("h2", "9:01", "Bob", "Let's review the launch checklist today"),
		msg("h3", "9:02", "Alice", "sure"),
	}
	// Re-rendered row: the host id changed, the text did not.
	start := msg("stale-id", "9:01", "Bob", "let's   review the launch checklist before noon")

	res, err := NewResolver(ResolveOptions{}).Resolve(start, records[2], records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.StartMatch != models.MatchByFingerprint {
		t.Errorf("StartMatch = %s, want by-fingerprint", res.StartMatch)
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"h2", "h3"}) {
		t.Errorf("Records = %v", got)
	}
}

func TestResolve_ContentFallbackAcceptsPrefix(t *testing.T) {
	records := []models.MessageRecord{
		msg("h1", "9:00", "Alice", "hi there"),
		msg("h2", "9:01", "Bob", "hello"),
		msg("h3", "9:02", "Alice", "see you at the standup tomorrow"),
		msg("h4", "9:03", "Bob", "see you"),
	}
	start := msg("stale-1", "9:00", "Alice", "hi")
	end := msg("stale-2", "9:02", "Alice", "See you at the standup tomorrow morning, bring the notes")

	res, err := NewResolver(ResolveOptions{}).Resolve(start, end, records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.StartMatch != models.MatchByFingerprint || res.EndMatch != models.MatchByFingerprint {
		t.Errorf("matches = %s/%s, want by-fingerprint", res.StartMatch, res.EndMatch)
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"h1", "h2", "h3"}) {
		t.Errorf("Records = %v", got)
	}

	// An equal key is preferred over an earlier prefix match.
	res, err = NewResolver(ResolveOptions{}).Resolve(msg("stale-3", "", "Bob", "see you"), records[3], records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.StartIndex != 3 {
		t.Errorf("StartIndex = %d, want 3 (exact match)", res.StartIndex)
	}
}

func TestResolve_ExtremityFallback(t *testing.T) {
	records := recs("a", "b", "c")
	start := msg("gone-1", "", "Zed", "never captured start")
	end := msg("gone-2", "", "Zed", "never captured end")

	res, err := NewResolver(ResolveOptions{}).Resolve(start, end, records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.StartIndex != 0 || res.EndIndex != 2 {
		t.Errorf("indices = %d..%d, want 0..2", res.StartIndex, res.EndIndex)
	}
	if res.StartMatch != models.MatchByExtremity || res.EndMatch != models.MatchByExtremity {
		t.Errorf("matches = %s/%s", res.StartMatch, res.EndMatch)
	}
	if len(res.Unresolved) != 2 {
		t.Fatalf("Unresolved = %d, want 2", len(res.Unresolved))
	}
	for _, err := range res.Unresolved {
		if !errors.Is(err, ErrAnchorUnresolved) {
			t.Errorf("unresolved error %v is not ANCHOR_UNRESOLVED", err)
		}
	}
}

func TestResolve_DropsUnusableRecords(t *testing.T) {
	records := []models.MessageRecord{
		msg("a", "9:00", "Alice", "one"),
		{ID: "blank", Sender: "Bob", Kind: models.KindText},
		{ID: "photo", Sender: "Bob", Text: models.PlaceholderMedia, Kind: models.KindMedia},
		msg("b", "9:02", "Alice", "two"),
	}
	res, err := NewResolver(ResolveOptions{}).Resolve(records[0], records[3], records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"a", "photo", "b"}) {
		t.Errorf("Records = %v", got)
	}
}

func TestResolve_Dedup(t *testing.T) {
	records := []models.MessageRecord{
		msg("a", "9:00", "Alice", "hi"),
		msg("b", "9:01", "Bob", "hey"),
		msg("gen_9:00_Alice_hi", "9:00", "Alice", "hi"),
		msg("c", "9:02", "Alice", "hi"),
	}
	res, err := NewResolver(ResolveOptions{}).Resolve(records[0], records[3], records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Records = %v", got)
	}
	if res.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", res.Duplicates)
	}
}

func TestResolve_DedupWindowKeepsDistantRepeats(t *testing.T) {
	records := []models.MessageRecord{
		msg("a", "9:00", "Alice", "ok"),
		msg("b", "9:00", "Bob", "x"),
		msg("c", "9:00", "Bob", "y"),
		msg("d", "9:00", "Alice", "ok"),
	}
	res, err := NewResolver(ResolveOptions{DedupWindow: 2}).Resolve(records[0], records[3], records)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Records) != 4 {
		t.Errorf("Records = %v, want all four kept", ids(res.Records))
	}

	res, _ = NewResolver(ResolveOptions{}).Resolve(records[0], records[3], records)
	if len(res.Records) != 3 {
		t.Errorf("unbounded window: Records = %v, want three", ids(res.Records))
	}
}

func TestResolve_EmptyRange(t *testing.T) {
	_, err := NewResolver(ResolveOptions{}).Resolve(msg("a", "", "A", "x"), msg("b", "", "B", "y"), nil)
	if !errors.Is(err, ErrEmptyRange) {
		t.Fatalf("err = %v, want EMPTY_RANGE", err)
	}
	if !ErrorCodeOf(err).Fatal() {
		t.Error("EMPTY_RANGE should be fatal")
	}

	onlyBlank := []models.MessageRecord{{ID: "z", Kind: models.KindText}}
	if _, err := NewResolver(ResolveOptions{}).Resolve(onlyBlank[0], onlyBlank[0], onlyBlank); !errors.Is(err, ErrEmptyRange) {
		t.Errorf("err = %v, want EMPTY_RANGE", err)
	}
}

func TestMatchKey(t *testing.T) {
	if matchKey("  Hello\n  World  and more text here", 11) != "hello world" {
		t.Errorf("matchKey = %q", matchKey("  Hello\n  World  and more text here", 11))
	}
	if matchKey("", 20) != "" {
		t.Error("empty text should produce empty key")
	}
}
