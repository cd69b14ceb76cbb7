package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/valter-silva-au/chatrange/pkg/models"
)

// DefaultSidePanelFraction is the share of the viewport width, measured from
// the left edge, occupied by the host's side panel.
const DefaultSidePanelFraction = 0.3

// Sampler enumerates the rendered conversation rows and extracts records.
type Sampler struct {
	viewport          Viewport
	extractor         *Extractor
	sidePanelFraction float64
	skipped           atomic.Int64
}

// NewSampler creates a Sampler over viewport. A fraction outside (0,1) uses
// DefaultSidePanelFraction.
func NewSampler(viewport Viewport, extractor *Extractor, sidePanelFraction float64) *Sampler {
	if sidePanelFraction <= 0 || sidePanelFraction >= 1 {
		sidePanelFraction = DefaultSidePanelFraction
	}
	if extractor == nil {
		extractor = NewExtractor(DefaultFingerprintPrefix)
	}
	return &Sampler{
		viewport:          viewport,
		extractor:         extractor,
		sidePanelFraction: sidePanelFraction,
	}
}

// Sample returns the records of the currently rendered window in document
// order. Rows left of the side-panel boundary, rows with no rendered size and
// rows that fail extraction are skipped.
func (s *Sampler) Sample(ctx context.Context) ([]models.MessageRecord, error) {
	rows, err := s.viewport.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading rendered rows: %w", err)
	}
	width, err := s.viewport.Width(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading viewport width: %w", err)
	}
	boundary := width * s.sidePanelFraction

	records := make([]models.MessageRecord, 0, len(rows))
	for _, row := range rows {
		if row.Rect.Empty() || row.Rect.X < boundary {
			continue
		}
		rec, ok := s.extract(row)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Skipped returns how many rows panicked during extraction since creation.
func (s *Sampler) Skipped() int {
	return int(s.skipped.Load())
}

// extract runs the extractor and turns a panic into an ExtractionSkip.
func (s *Sampler) extract(row models.RowNode) (rec models.MessageRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.skipped.Add(1)
			rec, ok = models.MessageRecord{}, false
		}
	}()
	return s.extractor.Extract(row)
}
