package core

import (
	"sync"

	"github.com/valter-silva-au/chatrange/pkg/models"
)

// Placement decides where a sampled window with no already-known record goes
// in the store's conversation sequence.
type Placement int

const (
	// PlaceAfter appends unanchored windows (downward discovery).
	PlaceAfter Placement = iota
	// PlaceBefore prepends unanchored windows (upward discovery).
	PlaceBefore
)

// CaptureStore is the deduplicating accumulator of sampled records for one
// session. It keeps two orders: discovery order (Values) and a best estimate
// of conversation order (Sequence), built by splicing every sampled window
// next to the records it overlaps. Records seen side by side in one window
// are linked; adjacent sequence entries without a link mark a gap that no
// sample has covered yet.
type CaptureStore struct {
	mu       sync.RWMutex
	records  map[string]models.MessageRecord
	inserted []string
	sequence []string
	links    map[[2]string]bool
}

// NewCaptureStore creates an empty store.
func NewCaptureStore() *CaptureStore {
	return &CaptureStore{
		records: make(map[string]models.MessageRecord),
		links:   make(map[[2]string]bool),
	}
}

// Merge inserts records whose id is not yet present and returns how many were
// new. The first-seen instance of an id wins; later duplicates are dropped.
func (s *CaptureStore) Merge(records []models.MessageRecord) int {
	return s.MergeWindow(records, PlaceAfter)
}

// MergeWindow merges a window of records given in document order. New records
// are placed next to their nearest known neighbour from the same window; if
// the window shares no record with the store it is placed per placement.
func (s *CaptureStore) MergeWindow(records []models.MessageRecord, placement Placement) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Deduplicate within the window first so a re-rendered row appearing twice
	// in one sample is placed once.
	window := make([]models.MessageRecord, 0, len(records))
	inWindow := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ID == "" || inWindow[r.ID] {
			continue
		}
		inWindow[r.ID] = true
		window = append(window, r)
	}
	for i := 1; i < len(window); i++ {
		s.links[[2]string{window[i-1].ID, window[i].ID}] = true
	}

	first := -1
	for i, r := range window {
		if _, ok := s.records[r.ID]; ok {
			first = i
			break
		}
	}

	var added int
	if first == -1 {
		fresh := make([]string, 0, len(window))
		for _, r := range window {
			s.records[r.ID] = r
			s.inserted = append(s.inserted, r.ID)
			fresh = append(fresh, r.ID)
		}
		if placement == PlaceBefore {
			s.sequence = append(fresh, s.sequence...)
		} else {
			s.sequence = append(s.sequence, fresh...)
		}
		return len(fresh)
	}

	// Records preceding the first known one go immediately before it.
	cursor := s.position(window[first].ID)
	for _, r := range window[:first] {
		s.insertAt(cursor, r)
		cursor++
		added++
	}

	// Every later record follows the last known record seen in the window.
	cursor = s.position(window[first].ID) + 1
	for _, r := range window[first+1:] {
		if _, ok := s.records[r.ID]; ok {
			cursor = s.position(r.ID) + 1
			continue
		}
		s.insertAt(cursor, r)
		cursor++
		added++
	}
	return added
}

// Has reports whether id has been captured.
func (s *CaptureStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// Get returns the first-seen record for id.
func (s *CaptureStore) Get(id string) (models.MessageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// Values returns the records in insertion (discovery) order.
func (s *CaptureStore) Values() []models.MessageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.inserted)
}

// Sequence returns the records in estimated conversation order.
func (s *CaptureStore) Sequence() []models.MessageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.sequence)
}

// Position returns the index of id in the conversation sequence.
func (s *CaptureStore) Position(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.position(id)
	return i, i < len(s.sequence)
}

// Gap returns the sequence index k of the first break between the records a
// and b, in either order: sequence[k] and sequence[k+1] were never sampled
// side by side. ok is false when the run between them is contiguous or either
// record is unknown.
func (s *CaptureStore) Gap(a, b string) (k int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, j := s.position(a), s.position(b)
	if i == len(s.sequence) || j == len(s.sequence) {
		return 0, false
	}
	if i > j {
		i, j = j, i
	}
	for k := i; k < j; k++ {
		if !s.links[[2]string{s.sequence[k], s.sequence[k+1]}] {
			return k, true
		}
	}
	return 0, false
}

// Size returns the number of distinct records.
func (s *CaptureStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Reset discards every record.
func (s *CaptureStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]models.MessageRecord)
	s.inserted = nil
	s.sequence = nil
	s.links = make(map[[2]string]bool)
}

func (s *CaptureStore) collect(ids []string) []models.MessageRecord {
	out := make([]models.MessageRecord, len(ids))
	for i, id := range ids {
		out[i] = s.records[id]
	}
	return out
}

// position returns the index of id in the sequence. Callers hold the lock.
func (s *CaptureStore) position(id string) int {
	for i, seqID := range s.sequence {
		if seqID == id {
			return i
		}
	}
	return len(s.sequence)
}

func (s *CaptureStore) insertAt(i int, r models.MessageRecord) {
	s.records[r.ID] = r
	s.inserted = append(s.inserted, r.ID)
	s.sequence = append(s.sequence, "")
	copy(s.sequence[i+1:], s.sequence[i:])
	s.sequence[i] = r.ID
}
