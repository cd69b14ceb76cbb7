package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/internal/integration"
	"github.com/valter-silva-au/chatrange/internal/observability"
	"github.com/valter-silva-au/chatrange/internal/storage"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

// testConfig returns defaults tuned so simulations run without waiting.
func testConfig() *models.GlobalConfig {
	cfg := core.DefaultConfig()
	cfg.Capture.SampleInterval = time.Hour
	cfg.Search.Settle = 0
	cfg.Search.Timeout = 10 * time.Second
	return cfg
}

// useTestServices points the package-level services at a fresh archive in a
// temp dir and restores the previous values when the test ends.
func useTestServices(t *testing.T) storage.CaptureArchive {
	t.Helper()
	origBase, origCfg, origArchive, origRecorder, origEvents := BasePath, Config, Archive, Recorder, Events
	origNotifier := Notifier
	t.Cleanup(func() {
		BasePath, Config, Archive, Recorder, Events = origBase, origCfg, origArchive, origRecorder, origEvents
		Notifier = origNotifier
	})

	BasePath = t.TempDir()
	Config = testConfig()
	Archive = storage.NewCaptureArchive(BasePath)
	Recorder = core.NewRecorder(Archive, integration.HeuristicSummarizer{}, nil)
	Events = nil
	Notifier = nil
	return Archive
}

// simulatedResult runs a synthetic capture of rows start..end.
func simulatedResult(t *testing.T, start, end string) *core.Result {
	t.Helper()
	sim := integration.Simulator{Config: *testConfig()}
	res, err := sim.Run(context.Background(), integration.SimulationRequest{
		Synthetic: 60,
		StartID:   start,
		EndID:     end,
		Mode:      integration.ScrollManual,
	})
	if err != nil {
		t.Fatalf("simulating capture: %v", err)
	}
	return res
}

// seedCapture archives a synthetic capture and returns its id.
func seedCapture(t *testing.T, start, end string) string {
	t.Helper()
	id, err := Recorder.Record(simulatedResult(t, start, end))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return id
}

// captureOutput redirects cmd's stdout and stderr into a buffer for the
// duration of the test.
func captureOutput(t *testing.T, cmd *cobra.Command) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
	})
	return &buf
}

type notifierMock struct {
	notified [][]observability.Alert
	shared   []observability.SharedSummary
	err      error
}

func (m *notifierMock) Notify(alerts []observability.Alert) error {
	m.notified = append(m.notified, alerts)
	return m.err
}

func (m *notifierMock) Share(summary observability.SharedSummary) error {
	m.shared = append(m.shared, summary)
	return m.err
}
