package core

import (
	"strings"

	"github.com/valter-silva-au/chatrange/pkg/models"
)

// DefaultMatchPrefix is the number of normalized leading runes compared when an
// anchor has to be matched by content.
const DefaultMatchPrefix = 20

// Resolution is the ordered, deduplicated range between two anchors.
type Resolution struct {
	Records    []models.MessageRecord
	StartIndex int
	EndIndex   int
	StartMatch models.MatchStrategy
	EndMatch   models.MatchStrategy
	Swapped    bool
	Duplicates int
	// Unresolved holds the AnchorUnresolved errors for anchors that fell back
	// to an extremity.
	Unresolved []error
}

// ResolveOptions tunes anchor matching and deduplication.
type ResolveOptions struct {
	MatchPrefix int
	// DedupWindow bounds how far apart two identical records may be and still
	// be merged. Zero means anywhere in the range.
	DedupWindow int
}

// Resolver turns captured records and two anchors into a transcript range.
type Resolver struct {
	opts ResolveOptions
}

// NewResolver creates a Resolver. A non-positive MatchPrefix uses
// DefaultMatchPrefix.
func NewResolver(opts ResolveOptions) *Resolver {
	if opts.MatchPrefix <= 0 {
		opts.MatchPrefix = DefaultMatchPrefix
	}
	if opts.DedupWindow < 0 {
		opts.DedupWindow = 0
	}
	return &Resolver{opts: opts}
}

// Resolve slices records (in conversation order) between start and end.
// Anchors are located by id, then by content prefix, then by falling back to
// the first/last record. Only an empty result is an error (EmptyRange).
func (r *Resolver) Resolve(start, end models.MessageRecord, records []models.MessageRecord) (*Resolution, error) {
	usable := make([]models.MessageRecord, 0, len(records))
	for _, rec := range records {
		if rec.Usable() {
			usable = append(usable, rec)
		}
	}
	if len(usable) == 0 {
		return nil, newCaptureError(CodeEmptyRange, "no usable messages were captured", nil)
	}

	res := &Resolution{}
	res.StartIndex, res.StartMatch = r.locate(usable, start, 0)
	res.EndIndex, res.EndMatch = r.locate(usable, end, len(usable)-1)
	if res.StartMatch == models.MatchByExtremity {
		res.Unresolved = append(res.Unresolved, newCaptureError(CodeAnchorUnresolved, "start anchor "+start.ID+" fell back to the first captured message", nil))
	}
	if res.EndMatch == models.MatchByExtremity {
		res.Unresolved = append(res.Unresolved, newCaptureError(CodeAnchorUnresolved, "end anchor "+end.ID+" fell back to the last captured message", nil))
	}

	if res.StartIndex > res.EndIndex {
		res.StartIndex, res.EndIndex = res.EndIndex, res.StartIndex
		res.Swapped = true
	}

	slice := usable[res.StartIndex : res.EndIndex+1]
	res.Records, res.Duplicates = dedupe(slice, r.opts.DedupWindow)
	if len(res.Records) == 0 {
		return nil, newCaptureError(CodeEmptyRange, "could not extract message range", nil)
	}
	return res, nil
}

func (r *Resolver) locate(records []models.MessageRecord, anchor models.MessageRecord, fallback int) (int, models.MatchStrategy) {
	if anchor.ID != "" {
		for i, rec := range records {
			if rec.ID == anchor.ID {
				return i, models.MatchByID
			}
		}
	}
	// Equal keys win over a key that only extends, or is extended by, the
	// anchor's, as in "hi" against "hi there".
	want := matchKey(anchor.Text, r.opts.MatchPrefix)
	if want != "" {
		related := -1
		for i, rec := range records {
			got := matchKey(rec.Text, r.opts.MatchPrefix)
			if got == want {
				return i, models.MatchByFingerprint
			}
			if related < 0 && got != "" && (strings.HasPrefix(got, want) || strings.HasPrefix(want, got)) {
				related = i
			}
		}
		if related >= 0 {
			return related, models.MatchByFingerprint
		}
	}
	return fallback, models.MatchByExtremity
}

// matchKey is the lower-cased, whitespace-collapsed first n runes of text.
func matchKey(text string, n int) string {
	key := []rune(strings.ToLower(strings.Join(strings.Fields(text), " ")))
	if len(key) > n {
		key = key[:n]
	}
	return string(key)
}

type dedupKey struct {
	timestamp, sender, text string
}

// dedupe keeps the first occurrence of every (timestamp, sender, text) triple.
// With a positive window, an occurrence further than window positions from the
// last kept one counts as a new message.
func dedupe(records []models.MessageRecord, window int) ([]models.MessageRecord, int) {
	lastKept := make(map[dedupKey]int, len(records))
	out := make([]models.MessageRecord, 0, len(records))
	dropped := 0
	for i, rec := range records {
		k := dedupKey{rec.Timestamp, rec.Sender, rec.Text}
		if at, seen := lastKept[k]; seen && (window == 0 || i-at <= window) {
			dropped++
			continue
		}
		lastKept[k] = i
		out = append(out, rec)
	}
	return out, dropped
}
