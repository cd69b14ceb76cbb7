package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/chatrange/internal/core"
)

func newSimEngine(page *VirtualPage) *core.Engine {
	cfg := core.DefaultConfig()
	cfg.Capture.SampleInterval = time.Hour
	cfg.Search.Timeout = 10 * time.Second
	return core.NewEngine(page, core.EngineOptions{
		Capture: cfg.Capture,
		Search:  cfg.Search,
		Resolve: cfg.Resolve,
		Source:  "simulation",
	})
}

func assertRange(t *testing.T, res *core.Result, from, to int) {
	t.Helper()
	recs := res.Resolution.Records
	if len(recs) != to-from+1 {
		t.Fatalf("expected %d records, got %d", to-from+1, len(recs))
	}
	for i, rec := range recs {
		want := fmt.Sprintf("msg-%04d", from+i)
		if rec.ID != want {
			t.Fatalf("record %d: expected %s, got %s", i, want, rec.ID)
		}
	}
}

func TestSimulateCapture_Modes(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		mode       ScrollMode
		from, to   int
	}{
		{"manual forward", 20, 140, ScrollManual, 20, 140},
		{"manual reversed", 140, 20, ScrollManual, 20, 140},
		{"search up", 10, 180, ScrollSearch, 10, 180},
		{"same row", 50, 50, ScrollManual, 50, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := NewVirtualPage(SyntheticConversation(200, nil).Conversation(), VirtualPageOptions{Placeholders: 1})
			eng := newSimEngine(page)

			res, err := SimulateCapture(context.Background(), eng, page, tt.start, tt.end, SimulationOptions{Mode: tt.mode})
			if err != nil {
				t.Fatalf("SimulateCapture: %v", err)
			}
			assertRange(t, res, tt.from, tt.to)
			if eng.Status() != "idle" {
				t.Errorf("expected engine idle after capture, got %s", eng.Status())
			}
			if res.Transcript.MessageCount != tt.to-tt.from+1 {
				t.Errorf("transcript counts %d messages", res.Transcript.MessageCount)
			}
		})
	}
}

func TestSimulateCapture_SearchRestoresScroll(t *testing.T) {
	ctx := context.Background()
	page := NewVirtualPage(SyntheticConversation(150, nil).Conversation(), VirtualPageOptions{})
	eng := newSimEngine(page)

	res, err := SimulateCapture(ctx, eng, page, 5, 120, SimulationOptions{Mode: ScrollSearch})
	if err != nil {
		t.Fatalf("SimulateCapture: %v", err)
	}
	if len(res.Searches) != 1 || res.Searches[0].Outcome != core.OutcomeFound {
		t.Fatalf("expected one successful search, got %+v", res.Searches)
	}
	if page.Scrolls() == 0 {
		t.Error("expected the search to scroll")
	}

	if err := page.Settle(ctx); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	first, last := page.VisibleRange()
	if 120 < first || 120 > last {
		t.Errorf("expected view restored to the end anchor, window %d..%d", first, last)
	}
}

func TestSimulateCapture_TranscriptText(t *testing.T) {
	f, err := ParseFixture([]byte(sampleFixture))
	if err != nil {
		t.Fatalf("ParseFixture: %v", err)
	}
	page := NewVirtualPage(f.Conversation(), VirtualPageOptions{})
	eng := newSimEngine(page)

	res, err := SimulateCapture(context.Background(), eng, page, 0, 1, SimulationOptions{})
	if err != nil {
		t.Fatalf("SimulateCapture: %v", err)
	}
	want := "[10:00, 3/4/2024] Alice: are we shipping friday?\n\n" +
		"[10:01] Bob: yes, if QA signs off\n    | Alice: are we shipping friday?"
	if res.Transcript.Text != want {
		t.Errorf("unexpected transcript:\n%s", res.Transcript.Text)
	}
}

func TestSimulateCapture_Errors(t *testing.T) {
	page := NewVirtualPage(SyntheticConversation(10, nil).Conversation(), VirtualPageOptions{})
	eng := newSimEngine(page)
	if _, err := SimulateCapture(context.Background(), eng, page, -1, 3, SimulationOptions{}); err == nil {
		t.Error("expected error for out of range start")
	}
	if _, err := SimulateCapture(context.Background(), eng, page, 0, 99, SimulationOptions{}); err == nil {
		t.Error("expected error for out of range end")
	}

	blind := NewVirtualPage(SyntheticConversation(200, nil).Conversation(), VirtualPageOptions{NoContainer: true})
	_, err := SimulateCapture(context.Background(), newSimEngine(blind), blind, 0, 190, SimulationOptions{Mode: ScrollSearch})
	if err == nil || !strings.Contains(err.Error(), "CONTAINER_NOT_FOUND") {
		t.Errorf("expected container error, got %v", err)
	}
}

func fastSimulator() Simulator {
	cfg := core.DefaultConfig()
	cfg.Capture.SampleInterval = time.Hour
	cfg.Search.Settle = 0
	cfg.Search.Timeout = 10 * time.Second
	return Simulator{Config: *cfg}
}

func TestSimulator_RunSynthetic(t *testing.T) {
	req := SimulationRequest{Synthetic: 120, StartID: "msg-0010", EndID: "msg-0100", Mode: ScrollSearch}
	if req.Source() != "synthetic:120" {
		t.Errorf("unexpected source %s", req.Source())
	}

	res, err := fastSimulator().Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertRange(t, res, 10, 100)
	if res.Source != "synthetic:120" {
		t.Errorf("expected result source synthetic:120, got %s", res.Source)
	}
}

func TestSimulator_RunFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planning.yaml")
	if err := os.WriteFile(path, []byte(sampleFixture), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := fastSimulator().Run(context.Background(), SimulationRequest{Fixture: path, StartID: "a1", EndID: "b2"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Source != path {
		t.Errorf("expected source %s, got %s", path, res.Source)
	}
	if res.Transcript.MessageCount != 3 {
		t.Errorf("expected 3 messages, got %d", res.Transcript.MessageCount)
	}
}

func TestSimulator_AnchorsByIndex(t *testing.T) {
	res, err := fastSimulator().Run(context.Background(), SimulationRequest{Synthetic: 60, StartID: "40", EndID: "msg-0012"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertRange(t, res, 12, 40)
}

func TestSimulator_RunErrors(t *testing.T) {
	sim := fastSimulator()
	ctx := context.Background()
	if _, err := sim.Run(ctx, SimulationRequest{Synthetic: 10, StartID: "nope", EndID: "msg-0001"}); err == nil {
		t.Error("expected error for unknown start id")
	}
	if _, err := sim.Run(ctx, SimulationRequest{Synthetic: 10, StartID: "msg-0001", EndID: "nope"}); err == nil {
		t.Error("expected error for unknown end id")
	}
	if _, err := sim.Run(ctx, SimulationRequest{Synthetic: 10, StartID: "3", EndID: "10"}); err == nil {
		t.Error("expected error for out of range index")
	}
	if _, err := sim.Run(ctx, SimulationRequest{Fixture: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("expected error for missing fixture")
	}
}
